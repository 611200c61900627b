// Package dashboards renders Grafana dashboards for the registry metrics.
package dashboards

import (
	"encoding/json"
	"fmt"
)

// GrafanaDashboard is the subset of the Grafana dashboard model the
// registry dashboards use
type GrafanaDashboard struct {
	UID           string           `json:"uid"`
	Title         string           `json:"title"`
	Tags          []string         `json:"tags"`
	Timezone      string           `json:"timezone"`
	Editable      bool             `json:"editable"`
	Time          TimeConfig       `json:"time"`
	Templating    TemplatingConfig `json:"templating"`
	Refresh       string           `json:"refresh"`
	SchemaVersion int              `json:"schemaVersion"`
	Version       int              `json:"version"`
	Panels        []Panel          `json:"panels"`
}

// TimeConfig configures dashboard time range
type TimeConfig struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TemplatingConfig holds dashboard variables
type TemplatingConfig struct {
	List []Variable `json:"list"`
}

// Variable is a dashboard template variable
type Variable struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Label      string `json:"label"`
	Query      string `json:"query"`
	Datasource string `json:"datasource"`
	Refresh    int    `json:"refresh"`
	Multi      bool   `json:"multi"`
	IncludeAll bool   `json:"includeAll"`
	AllValue   string `json:"allValue,omitempty"`
}

// Panel is one dashboard panel
type Panel struct {
	ID          int         `json:"id"`
	Title       string      `json:"title"`
	Type        string      `json:"type"`
	Datasource  string      `json:"datasource,omitempty"`
	GridPos     GridPos     `json:"gridPos"`
	Targets     []Target    `json:"targets,omitempty"`
	FieldConfig FieldConfig `json:"fieldConfig"`
	Description string      `json:"description,omitempty"`
}

// GridPos defines panel position and size
type GridPos struct {
	H int `json:"h"`
	W int `json:"w"`
	X int `json:"x"`
	Y int `json:"y"`
}

// Target represents a query target
type Target struct {
	Expr         string `json:"expr"`
	LegendFormat string `json:"legendFormat"`
	RefID        string `json:"refId"`
}

// FieldConfig configures value rendering
type FieldConfig struct {
	Defaults FieldDefaults `json:"defaults"`
}

// FieldDefaults holds default field options
type FieldDefaults struct {
	Unit       string           `json:"unit,omitempty"`
	Min        *float64         `json:"min,omitempty"`
	Thresholds *ThresholdConfig `json:"thresholds,omitempty"`
}

// ThresholdConfig colors values by step
type ThresholdConfig struct {
	Mode  string      `json:"mode"`
	Steps []Threshold `json:"steps"`
}

// Threshold is one color step; a nil Value is the base step
type Threshold struct {
	Color string   `json:"color"`
	Value *float64 `json:"value"`
}

const datasource = "prometheus"

// RegistryDashboard builds the overview dashboard for metrics exported
// under namespace
func RegistryDashboard(namespace string) *GrafanaDashboard {
	m := func(name string) string { return namespace + "_" + name }
	zero := 0.0

	b := &panelBuilder{}

	b.row("Lifecycle")
	b.add(Panel{
		Title:       "Production Models",
		Type:        "stat",
		Description: "Model names with a version in Production",
		Targets:     []Target{{Expr: fmt.Sprintf(`max(%s{instance=~"$instance"})`, m("production_models")), LegendFormat: "models"}},
		FieldConfig: FieldConfig{Defaults: FieldDefaults{Unit: "short", Min: &zero}},
	}, 6, 4)
	b.add(Panel{
		Title: "Registrations",
		Type:  "timeseries",
		Targets: []Target{{
			Expr:         fmt.Sprintf(`sum by (model_type, result) (rate(%s{instance=~"$instance"}[5m]))`, m("registrations_total")),
			LegendFormat: "{{model_type}} {{result}}",
		}},
		FieldConfig: FieldConfig{Defaults: FieldDefaults{Unit: "ops"}},
	}, 9, 8)
	b.add(Panel{
		Title: "Stage Transitions",
		Type:  "timeseries",
		Targets: []Target{{
			Expr:         fmt.Sprintf(`sum by (target_stage, result) (rate(%s{instance=~"$instance"}[5m]))`, m("promotions_total")),
			LegendFormat: "{{target_stage}} {{result}}",
		}},
		FieldConfig: FieldConfig{Defaults: FieldDefaults{Unit: "ops"}},
	}, 9, 8)

	b.row("Operations")
	b.add(Panel{
		Title: "Operation Latency p95",
		Type:  "timeseries",
		Targets: []Target{{
			Expr:         fmt.Sprintf(`histogram_quantile(0.95, sum by (operation, le) (rate(%s{instance=~"$instance"}[5m])))`, m("operation_duration_seconds_bucket")),
			LegendFormat: "{{operation}}",
		}},
		FieldConfig: FieldConfig{Defaults: FieldDefaults{Unit: "s"}},
	}, 12, 8)
	b.add(Panel{
		Title:       "Event Delivery Failures",
		Type:        "timeseries",
		Description: "Audit events a sink failed to accept",
		Targets: []Target{{
			Expr:         fmt.Sprintf(`sum by (sink) (rate(%s{instance=~"$instance", result="error"}[5m]))`, m("events_total")),
			LegendFormat: "{{sink}}",
		}},
		FieldConfig: FieldConfig{Defaults: FieldDefaults{
			Unit: "ops",
			Thresholds: &ThresholdConfig{
				Mode: "absolute",
				Steps: []Threshold{
					{Color: "green"},
					{Color: "red", Value: &zero},
				},
			},
		}},
	}, 12, 8)

	b.row("HTTP API")
	b.add(Panel{
		Title: "Requests by Route",
		Type:  "timeseries",
		Targets: []Target{{
			Expr:         fmt.Sprintf(`sum by (path, status) (rate(%s{instance=~"$instance"}[5m]))`, m("http_requests_total")),
			LegendFormat: "{{path}} {{status}}",
		}},
		FieldConfig: FieldConfig{Defaults: FieldDefaults{Unit: "reqps"}},
	}, 12, 8)
	b.add(Panel{
		Title: "Request Latency p95",
		Type:  "timeseries",
		Targets: []Target{{
			Expr:         fmt.Sprintf(`histogram_quantile(0.95, sum by (path, le) (rate(%s{instance=~"$instance"}[5m])))`, m("http_request_duration_seconds_bucket")),
			LegendFormat: "{{path}}",
		}},
		FieldConfig: FieldConfig{Defaults: FieldDefaults{Unit: "s"}},
	}, 12, 8)

	return &GrafanaDashboard{
		UID:      namespace + "-overview",
		Title:    "Model Registry",
		Tags:     []string{namespace, "model-registry"},
		Timezone: "browser",
		Editable: true,
		Time:     TimeConfig{From: "now-6h", To: "now"},
		Templating: TemplatingConfig{
			List: []Variable{
				{
					Name:       "instance",
					Type:       "query",
					Label:      "Instance",
					Query:      fmt.Sprintf("label_values(%s, instance)", m("production_models")),
					Datasource: datasource,
					Refresh:    1,
					Multi:      true,
					IncludeAll: true,
					AllValue:   ".*",
				},
			},
		},
		Refresh:       "30s",
		SchemaVersion: 36,
		Version:       1,
		Panels:        b.panels,
	}
}

// ToJSON renders the dashboard for import into Grafana
func (d *GrafanaDashboard) ToJSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// panelBuilder lays panels out left to right on a 24 column grid and
// assigns ids and query ref ids
type panelBuilder struct {
	panels []Panel
	x, y   int
	rowH   int
}

func (b *panelBuilder) row(title string) {
	b.newLine()
	b.panels = append(b.panels, Panel{
		ID:      len(b.panels) + 1,
		Title:   title,
		Type:    "row",
		GridPos: GridPos{H: 1, W: 24, X: 0, Y: b.y},
	})
	b.y++
}

func (b *panelBuilder) add(p Panel, w, h int) {
	if b.x+w > 24 {
		b.newLine()
	}
	p.ID = len(b.panels) + 1
	p.Datasource = datasource
	p.GridPos = GridPos{H: h, W: w, X: b.x, Y: b.y}
	for i := range p.Targets {
		p.Targets[i].RefID = string(rune('A' + i))
	}
	b.panels = append(b.panels, p)

	b.x += w
	if h > b.rowH {
		b.rowH = h
	}
}

func (b *panelBuilder) newLine() {
	if b.x > 0 {
		b.y += b.rowH
	}
	b.x, b.rowH = 0, 0
}
