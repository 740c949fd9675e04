package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sitepulse-io/sitepulse-engine/pkg/database"
	"github.com/sitepulse-io/sitepulse-engine/pkg/models"
)

// coreProjectID is the sentinel project under which core (globally visible)
// metric catalog entries are stored. The zero UUID is never a real project.
var coreProjectID = uuid.Nil

// ReadingFilter narrows a readings query. Zero values mean "no constraint".
type ReadingFilter struct {
	ObjectID *uuid.UUID
	MetricID string
	From     *time.Time
	To       *time.Time
	Limit    int
}

// UnifiedTx is the write API available inside one ETL transaction. All
// writes are upserts on the natural keys, so re-running a dataset converges
// instead of duplicating.
type UnifiedTx interface {
	// UpsertObject inserts or updates an entity keyed (project_id,
	// external_id) and returns its canonical ID. Name, coordinates and
	// extras from the new row replace the stored values when present;
	// extras merge key-by-key.
	UpsertObject(ctx context.Context, obj *models.UnifiedObject) (uuid.UUID, error)
	// UpsertReadings writes a batch of readings keyed (object_id,
	// metric_id, ts), replacing value and extra on conflict.
	UpsertReadings(ctx context.Context, readings []*models.UnifiedReading) (int, error)
	// EnsureMetric resolves a raw metric name to a catalog ID, creating a
	// project-scoped entry on first encounter. Core entries win over
	// project entries with the same slug.
	EnsureMetric(ctx context.Context, projectID uuid.UUID, rawName string) (string, error)
}

// UnifiedStore is the normalized store boundary: a transaction runner for
// the ETL engine plus the read API for the query endpoints.
type UnifiedStore interface {
	// InTx runs fn inside a single database transaction. A non-nil return
	// rolls everything back and is returned unchanged.
	InTx(ctx context.Context, fn func(tx UnifiedTx) error) error

	ListObjects(ctx context.Context, projectID uuid.UUID) ([]*models.UnifiedObject, error)
	ListReadings(ctx context.Context, projectID uuid.UUID, filter ReadingFilter) ([]*models.UnifiedReading, error)
}

type unifiedStore struct {
	db *database.DB
}

// NewUnifiedStore creates a PostgreSQL-backed unified store.
func NewUnifiedStore(db *database.DB) UnifiedStore {
	return &unifiedStore{db: db}
}

func (s *unifiedStore) InTx(ctx context.Context, fn func(tx UnifiedTx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(&unifiedTx{tx: tx, metricCache: make(map[string]string)}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *unifiedStore) ListObjects(ctx context.Context, projectID uuid.UUID) ([]*models.UnifiedObject, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, project_id, external_id, name, latitude, longitude, extra, created_at, updated_at
		FROM unified_objects WHERE project_id = $1 ORDER BY external_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	defer rows.Close()

	var objects []*models.UnifiedObject
	for rows.Next() {
		var o models.UnifiedObject
		var extra []byte
		if err := rows.Scan(&o.ID, &o.ProjectID, &o.ExternalID, &o.Name,
			&o.Latitude, &o.Longitude, &extra, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan object: %w", err)
		}
		if err := unmarshalExtra(extra, &o.Extra); err != nil {
			return nil, err
		}
		objects = append(objects, &o)
	}
	return objects, rows.Err()
}

func (s *unifiedStore) ListReadings(ctx context.Context, projectID uuid.UUID, filter ReadingFilter) ([]*models.UnifiedReading, error) {
	query := `
		SELECT id, project_id, object_id, metric_id, ts, value, extra
		FROM unified_readings WHERE project_id = $1`
	args := []any{projectID}

	if filter.ObjectID != nil {
		args = append(args, *filter.ObjectID)
		query += fmt.Sprintf(" AND object_id = $%d", len(args))
	}
	if filter.MetricID != "" {
		args = append(args, filter.MetricID)
		query += fmt.Sprintf(" AND metric_id = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND ts >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND ts < $%d", len(args))
	}
	query += " ORDER BY ts"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	defer rows.Close()

	var readings []*models.UnifiedReading
	for rows.Next() {
		var rd models.UnifiedReading
		var extra []byte
		if err := rows.Scan(&rd.ID, &rd.ProjectID, &rd.ObjectID, &rd.MetricID,
			&rd.Timestamp, &rd.Value, &extra); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		if err := unmarshalExtra(extra, &rd.Extra); err != nil {
			return nil, err
		}
		readings = append(readings, &rd)
	}
	return readings, rows.Err()
}

// unifiedTx implements UnifiedTx over one pgx transaction. metricCache
// memoizes EnsureMetric lookups for the duration of the run.
type unifiedTx struct {
	tx          pgx.Tx
	metricCache map[string]string
}

func (t *unifiedTx) UpsertObject(ctx context.Context, obj *models.UnifiedObject) (uuid.UUID, error) {
	extra, err := marshalExtra(obj.Extra)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = t.tx.QueryRow(ctx, `
		INSERT INTO unified_objects (id, project_id, external_id, name, latitude, longitude, extra, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (project_id, external_id) DO UPDATE
		SET name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE unified_objects.name END,
		    latitude = COALESCE(EXCLUDED.latitude, unified_objects.latitude),
		    longitude = COALESCE(EXCLUDED.longitude, unified_objects.longitude),
		    extra = unified_objects.extra || EXCLUDED.extra,
		    updated_at = now()
		RETURNING id`,
		uuid.New(), obj.ProjectID, obj.ExternalID, obj.Name, obj.Latitude, obj.Longitude, extra).
		Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert object %q: %w", obj.ExternalID, err)
	}
	return id, nil
}

func (t *unifiedTx) UpsertReadings(ctx context.Context, readings []*models.UnifiedReading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, rd := range readings {
		extra, err := marshalExtra(rd.Extra)
		if err != nil {
			return 0, err
		}
		batch.Queue(`
			INSERT INTO unified_readings (project_id, object_id, metric_id, ts, value, extra)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (object_id, metric_id, ts) DO UPDATE
			SET value = EXCLUDED.value,
			    extra = EXCLUDED.extra`,
			rd.ProjectID, rd.ObjectID, rd.MetricID, rd.Timestamp, rd.Value, extra)
	}

	results := t.tx.SendBatch(ctx, batch)
	defer results.Close()
	for range readings {
		if _, err := results.Exec(); err != nil {
			return 0, fmt.Errorf("failed to upsert readings: %w", err)
		}
	}
	return len(readings), nil
}

func (t *unifiedTx) EnsureMetric(ctx context.Context, projectID uuid.UUID, rawName string) (string, error) {
	slug := MetricID(rawName)
	if slug == "" {
		return "", fmt.Errorf("metric name %q normalizes to an empty slug", rawName)
	}

	cacheKey := projectID.String() + "/" + slug
	if id, ok := t.metricCache[cacheKey]; ok {
		return id, nil
	}

	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM metric_catalog
			WHERE id = $1 AND (project_id = $2 OR project_id = $3)
		)`, slug, coreProjectID, projectID).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("failed to look up metric %q: %w", slug, err)
	}

	if !exists {
		_, err = t.tx.Exec(ctx, `
			INSERT INTO metric_catalog (project_id, id, name, unit, description, is_core)
			VALUES ($1, $2, $3, '', '', FALSE)
			ON CONFLICT (project_id, id) DO NOTHING`,
			projectID, slug, rawName)
		if err != nil {
			return "", fmt.Errorf("failed to create metric %q: %w", slug, err)
		}
	}

	t.metricCache[cacheKey] = slug
	return slug, nil
}

func marshalExtra(extra map[string]any) ([]byte, error) {
	if extra == nil {
		extra = map[string]any{}
	}
	encoded, err := json.Marshal(extra)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extra: %w", err)
	}
	return encoded, nil
}

func unmarshalExtra(encoded []byte, dst *map[string]any) error {
	if len(encoded) == 0 {
		return nil
	}
	if err := json.Unmarshal(encoded, dst); err != nil {
		return fmt.Errorf("failed to unmarshal extra: %w", err)
	}
	if len(*dst) == 0 {
		*dst = nil
	}
	return nil
}
