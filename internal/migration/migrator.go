// Package migration copies registry state from one set of backends to another.
package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/interfaces"
	"github.com/inferloop/modelregistry/pkg/models"
)

// Backends is one side of a migration
type Backends struct {
	Records   interfaces.RecordStore
	Artifacts interfaces.ArtifactStore
}

// Options controls a migration run
type Options struct {
	// DryRun reads the source and reports what would be copied
	DryRun bool

	// SkipExisting leaves names that already have records in the target
	// untouched instead of failing
	SkipExisting bool
}

// Result summarizes a migration run
type Result struct {
	Names     int           `json:"names"`
	Records   int           `json:"records"`
	Artifacts int           `json:"artifacts"`
	Skipped   []string      `json:"skipped,omitempty"`
	DryRun    bool          `json:"dry_run"`
	Duration  time.Duration `json:"duration"`
}

// Migrator copies every record and the artifacts they reference.
// Artifacts are copied before the records of a name are committed, so a
// target record never points at missing content.
type Migrator struct {
	source  Backends
	target  Backends
	options Options
	logger  *logrus.Logger
}

// NewMigrator creates a migrator from source to target
func NewMigrator(source, target Backends, options Options, logger *logrus.Logger) *Migrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Migrator{
		source:  source,
		target:  target,
		options: options,
		logger:  logger,
	}
}

// Run migrates every name known to the source
func (m *Migrator) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{DryRun: m.options.DryRun}

	names, err := m.source.Records.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list source models: %w", err)
	}

	for _, name := range names {
		if err := m.migrateName(ctx, name, result); err != nil {
			return result, fmt.Errorf("failed to migrate %q: %w", name, err)
		}
	}

	result.Duration = time.Since(start)
	m.logger.WithFields(logrus.Fields{
		"names":     result.Names,
		"records":   result.Records,
		"artifacts": result.Artifacts,
		"skipped":   len(result.Skipped),
		"dry_run":   result.DryRun,
		"duration":  result.Duration,
	}).Info("Migration finished")

	return result, nil
}

func (m *Migrator) migrateName(ctx context.Context, name string, result *Result) error {
	records, err := m.source.Records.ListByName(ctx, name)
	if err != nil {
		return err
	}

	logger := m.logger.WithFields(logrus.Fields{
		"name":    name,
		"records": len(records),
	})

	existing, err := m.target.Records.ListByName(ctx, name)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		if m.options.SkipExisting {
			logger.Warn("Target already has records for model, skipping")
			result.Skipped = append(result.Skipped, name)
			return nil
		}
		return errors.NewValidationError(errors.CodeTargetNotEmpty,
			fmt.Sprintf("target already has %d records for %q", len(existing), name))
	}

	copied, err := m.copyArtifacts(ctx, records)
	if err != nil {
		return err
	}

	if !m.options.DryRun {
		err = m.target.Records.Update(ctx, name, func(view *interfaces.NameView) ([]*models.ModelRecord, error) {
			// a concurrent writer may have raced the check above
			if len(view.Records) > 0 {
				return nil, errors.NewValidationError(errors.CodeTargetNotEmpty,
					fmt.Sprintf("target already has records for %q", name))
			}
			upserts := make([]*models.ModelRecord, len(records))
			for i, r := range records {
				upserts[i] = r.Clone()
			}
			return upserts, nil
		})
		if err != nil {
			return err
		}
	}

	result.Names++
	result.Records += len(records)
	result.Artifacts += copied
	logger.WithField("artifacts", copied).Debug("Model migrated")
	return nil
}

// copyArtifacts returns how many artifacts were missing from the target
func (m *Migrator) copyArtifacts(ctx context.Context, records []*models.ModelRecord) (int, error) {
	seen := make(map[string]bool, len(records))
	copied := 0

	for _, r := range records {
		if seen[r.ArtifactRef] {
			continue
		}
		seen[r.ArtifactRef] = true

		exists, err := m.target.Artifacts.Exists(ctx, r.ArtifactRef)
		if err != nil {
			return copied, err
		}
		if exists {
			continue
		}

		content, err := m.source.Artifacts.Get(ctx, r.ArtifactRef)
		if err != nil {
			return copied, err
		}
		copied++
		if m.options.DryRun {
			continue
		}

		ref, err := m.target.Artifacts.Put(ctx, content)
		if err != nil {
			return copied, err
		}
		if ref != r.ArtifactRef {
			return copied, errors.NewStorageError(errors.CodeCorruptArtifact,
				fmt.Sprintf("artifact %s was stored as %s", r.ArtifactRef, ref))
		}
	}

	return copied, nil
}
