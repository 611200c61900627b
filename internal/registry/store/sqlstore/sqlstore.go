// Package sqlstore persists model records in PostgreSQL or SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/interfaces"
	"github.com/inferloop/modelregistry/pkg/models"
)

const recordColumns = `id, name, version, stage, model_type, artifact_ref, training_fingerprint,
	metrics, created_at, promoted_at, archived_at, superseded_by, metrics_updated_at`

// Store implements RecordStore on database/sql
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *logrus.Logger
}

var _ interfaces.RecordStore = (*Store)(nil)

// OpenPostgres connects to PostgreSQL and applies the schema
func OpenPostgres(ctx context.Context, config PostgresConfig, logger *logrus.Logger) (*Store, error) {
	db, err := sql.Open(Postgres.DriverName, config.DSN())
	if err != nil {
		return nil, errors.NewStorageConnectionError("postgres", config.Host, err)
	}

	if config.MaxConnections > 0 {
		db.SetMaxOpenConns(config.MaxConnections)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	store, err := New(ctx, db, Postgres, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	store.logger.WithFields(logrus.Fields{
		"host":     config.Host,
		"port":     config.Port,
		"database": config.Database,
	}).Info("Connected to PostgreSQL record store")

	return store, nil
}

// OpenSQLite opens or creates a SQLite database file and applies the schema
func OpenSQLite(ctx context.Context, config SQLiteConfig, logger *logrus.Logger) (*Store, error) {
	if strings.TrimSpace(config.Path) == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "sqlite path is required")
	}

	db, err := sql.Open(SQLite.DriverName, config.DSN())
	if err != nil {
		return nil, errors.NewStorageConnectionError("sqlite", config.Path, err)
	}
	db.SetMaxOpenConns(1)

	store, err := New(ctx, db, SQLite, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an open database, pings it and applies the schema
func New(ctx context.Context, db *sql.DB, dialect Dialect, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, errors.NewStorageConnectionError(dialect.Name, "database", err)
	}
	if err := migrate(ctx, db); err != nil {
		return nil, errors.WrapStorageError(err, "migrate", dialect.Name)
	}

	return &Store{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}, nil
}

// Update runs fn inside one transaction holding the name's counter row
func (s *Store) Update(ctx context.Context, name string, fn interfaces.UpdateFunc) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap(err, "begin")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, s.q(
		`INSERT INTO model_counters (name, last_version) VALUES (?, 0) ON CONFLICT (name) DO NOTHING`,
	), name); err != nil {
		return s.wrap(err, "update")
	}

	var last int
	if err = tx.QueryRowContext(ctx, s.q(
		`SELECT last_version FROM model_counters WHERE name = ?`+s.dialect.lockSuffix,
	), name).Scan(&last); err != nil {
		return s.wrap(err, "update")
	}

	records, err := s.queryRecords(ctx, tx, `WHERE name = ? ORDER BY version`, name)
	if err != nil {
		return err
	}

	upserts, err := fn(&interfaces.NameView{Name: name, LastVersion: last, Records: records})
	if err != nil {
		return err
	}

	// Demotions are written before promotions so the production index
	// never sees two rows for one name.
	upserts = append([]*models.ModelRecord(nil), upserts...)
	sort.SliceStable(upserts, func(i, j int) bool {
		return upserts[i].Stage != models.StageProduction && upserts[j].Stage == models.StageProduction
	})

	newLast := last
	for _, r := range upserts {
		if r.Name != name {
			err = errors.NewInternalError(fmt.Sprintf("record %s belongs to %q, not %q", r.ID, r.Name, name))
			return err
		}
		if err = s.upsert(ctx, tx, r); err != nil {
			return err
		}
		if r.Version > newLast {
			newLast = r.Version
		}
	}

	if newLast != last {
		if _, err = tx.ExecContext(ctx, s.q(
			`UPDATE model_counters SET last_version = ? WHERE name = ?`,
		), newLast, name); err != nil {
			return s.wrap(err, "update")
		}
	}

	if err = tx.Commit(); err != nil {
		return s.wrap(err, "commit")
	}

	s.logger.WithFields(logrus.Fields{
		"name":         name,
		"records":      len(upserts),
		"last_version": newLast,
	}).Debug("Committed record update")

	return nil
}

// Get returns the record with id
func (s *Store) Get(ctx context.Context, id string) (*models.ModelRecord, error) {
	records, err := s.queryRecords(ctx, s.db, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.NewNotFoundError(errors.CodeRecordNotFound,
			fmt.Sprintf("model record not found: %s", id))
	}
	return records[0], nil
}

// ListByName returns the records of name ordered by version
func (s *Store) ListByName(ctx context.Context, name string) ([]*models.ModelRecord, error) {
	return s.queryRecords(ctx, s.db, `WHERE name = ? ORDER BY version`, name)
}

// Names returns every name with at least one record
func (s *Store) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT name FROM model_records ORDER BY name`)
	if err != nil {
		return nil, s.wrap(err, "names")
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, s.wrap(err, "names")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(err, "names")
	}
	return names, nil
}

// Close closes the database handle
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return s.wrap(err, "close")
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (s *Store) queryRecords(ctx context.Context, q queryer, where string, args ...interface{}) ([]*models.ModelRecord, error) {
	rows, err := q.QueryContext(ctx, s.q(`SELECT `+recordColumns+` FROM model_records `+where), args...)
	if err != nil {
		return nil, s.wrap(err, "query")
	}
	defer rows.Close()

	records := []*models.ModelRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, s.wrap(err, "scan")
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(err, "query")
	}
	return records, nil
}

func (s *Store) upsert(ctx context.Context, tx *sql.Tx, r *models.ModelRecord) error {
	metrics, err := json.Marshal(r.Metrics)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "failed to encode metrics")
	}

	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO model_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			stage = excluded.stage,
			metrics = excluded.metrics,
			promoted_at = excluded.promoted_at,
			archived_at = excluded.archived_at,
			superseded_by = excluded.superseded_by,
			metrics_updated_at = excluded.metrics_updated_at`),
		r.ID, r.Name, r.Version, string(r.Stage), string(r.ModelType), r.ArtifactRef,
		r.TrainingFingerprint, string(metrics), toNanos(r.CreatedAt),
		nullNanos(r.PromotedAt), nullNanos(r.ArchivedAt), r.SupersededBy, nullNanos(r.MetricsUpdatedAt),
	)
	if err != nil {
		return s.wrap(err, "upsert")
	}
	return nil
}

func scanRecord(rows *sql.Rows) (*models.ModelRecord, error) {
	var (
		r                                        models.ModelRecord
		stage, modelType, metrics                string
		createdAt                                int64
		promotedAt, archivedAt, metricsUpdatedAt sql.NullInt64
	)

	if err := rows.Scan(&r.ID, &r.Name, &r.Version, &stage, &modelType, &r.ArtifactRef,
		&r.TrainingFingerprint, &metrics, &createdAt, &promotedAt, &archivedAt,
		&r.SupersededBy, &metricsUpdatedAt); err != nil {
		return nil, err
	}

	r.Stage = models.Stage(stage)
	r.ModelType = models.ModelType(modelType)
	if err := json.Unmarshal([]byte(metrics), &r.Metrics); err != nil {
		return nil, fmt.Errorf("decode metrics of %s: %w", r.ID, err)
	}
	if r.Metrics == nil {
		r.Metrics = map[string]float64{}
	}
	r.CreatedAt = fromNanos(createdAt)
	r.PromotedAt = timePtr(promotedAt)
	r.ArchivedAt = timePtr(archivedAt)
	r.MetricsUpdatedAt = timePtr(metricsUpdatedAt)

	return &r, nil
}

func (s *Store) q(query string) string {
	return s.dialect.rebind(query)
}

func (s *Store) wrap(err error, operation string) error {
	if s.dialect.isConflict != nil && s.dialect.isConflict(err) {
		return &errors.StorageError{
			AppError: errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeTxConflict,
				fmt.Sprintf("%s %s conflicted with a concurrent update", s.dialect.Name, operation)),
			StorageType: s.dialect.Name,
			Operation:   operation,
		}
	}
	return errors.WrapStorageError(err, operation, s.dialect.Name)
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}
