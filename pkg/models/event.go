package models

import "time"

// EventType names an audit event emitted after a committed registry mutation
type EventType string

const (
	EventRegistered        EventType = "registered"
	EventPromoted          EventType = "promoted"
	EventDemoted           EventType = "demoted"
	EventArchived          EventType = "archived"
	EventMetricsRecomputed EventType = "metrics_recomputed"
)

// Event records a single lifecycle change of a model record
type Event struct {
	Type         EventType          `json:"type"`
	RecordID     string             `json:"record_id"`
	Name         string             `json:"name"`
	Version      int                `json:"version"`
	ModelType    ModelType          `json:"model_type"`
	FromStage    Stage              `json:"from_stage,omitempty"`
	ToStage      Stage              `json:"to_stage,omitempty"`
	SupersededBy string             `json:"superseded_by,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	OccurredAt   time.Time          `json:"occurred_at"`
}
