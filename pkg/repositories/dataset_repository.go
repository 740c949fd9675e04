package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sitepulse-io/sitepulse-engine/pkg/apperrors"
	"github.com/sitepulse-io/sitepulse-engine/pkg/database"
	"github.com/sitepulse-io/sitepulse-engine/pkg/models"
)

// StatusUpdate carries the fields written together with a status transition.
type StatusUpdate struct {
	// Mapping replaces the stored mapping when non-nil; otherwise the
	// stored mapping is kept.
	Mapping *models.ColumnMapping
	// ErrorMessage is written as-is; nil clears any previous error.
	ErrorMessage *string
	Retryable    bool
}

// DatasetRepository defines dataset data access. Status changes go through
// Transition exclusively, so the lifecycle controller stays the single
// writer of dataset status.
type DatasetRepository interface {
	Create(ctx context.Context, dataset *models.Dataset) error
	Get(ctx context.Context, id uuid.UUID) (*models.Dataset, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Dataset, error)
	SetStorageKey(ctx context.Context, id uuid.UUID, key string) error

	// Transition performs a guarded status change: it succeeds only when the
	// dataset's current (status, revision) still matches the expectation,
	// otherwise it returns apperrors.ErrStaleTransition and the caller must
	// re-read current state. Every accepted transition bumps the revision.
	Transition(ctx context.Context, id uuid.UUID, expected models.DatasetStatus, expectedRevision int64, to models.DatasetStatus, upd StatusUpdate) (*models.Dataset, error)
}

// datasetRepository implements DatasetRepository using PostgreSQL.
type datasetRepository struct {
	db *database.DB
}

// NewDatasetRepository creates a new dataset repository.
func NewDatasetRepository(db *database.DB) DatasetRepository {
	return &datasetRepository{db: db}
}

const datasetColumns = `id, project_id, original_filename, storage_key, headers, row_count,
		status, revision, mapping, error_message, retryable, default_metric, created_at, updated_at`

func (r *datasetRepository) Create(ctx context.Context, dataset *models.Dataset) error {
	if dataset.ID == uuid.Nil {
		dataset.ID = uuid.New()
	}
	now := time.Now()
	dataset.CreatedAt = now
	dataset.UpdatedAt = now
	if dataset.Status == "" {
		dataset.Status = models.DatasetStatusUploaded
	}

	headers, err := json.Marshal(dataset.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}

	query := `
		INSERT INTO datasets (id, project_id, original_filename, storage_key, headers,
			row_count, status, revision, default_metric, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10)`

	_, err = r.db.Exec(ctx, query,
		dataset.ID,
		dataset.ProjectID,
		dataset.OriginalFilename,
		dataset.StorageKey,
		headers,
		dataset.RowCount,
		dataset.Status,
		dataset.DefaultMetric,
		dataset.CreatedAt,
		dataset.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create dataset: %w", err)
	}
	return nil
}

func (r *datasetRepository) Get(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	row := r.db.QueryRow(ctx, `SELECT `+datasetColumns+` FROM datasets WHERE id = $1`, id)
	dataset, err := scanDataset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	return dataset, nil
}

func (r *datasetRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Dataset, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+datasetColumns+` FROM datasets WHERE project_id = $1 ORDER BY created_at DESC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var datasets []*models.Dataset
	for rows.Next() {
		dataset, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		datasets = append(datasets, dataset)
	}
	return datasets, rows.Err()
}

func (r *datasetRepository) SetStorageKey(ctx context.Context, id uuid.UUID, key string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE datasets SET storage_key = $2, updated_at = now() WHERE id = $1`, id, key)
	if err != nil {
		return fmt.Errorf("failed to set storage key: %w", err)
	}
	return nil
}

func (r *datasetRepository) Transition(ctx context.Context, id uuid.UUID, expected models.DatasetStatus, expectedRevision int64, to models.DatasetStatus, upd StatusUpdate) (*models.Dataset, error) {
	var mapping []byte
	if upd.Mapping != nil {
		var err error
		mapping, err = json.Marshal(upd.Mapping)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal mapping: %w", err)
		}
	}

	query := `
		UPDATE datasets
		SET status = $4,
		    revision = revision + 1,
		    mapping = COALESCE($5, mapping),
		    error_message = $6,
		    retryable = $7,
		    updated_at = now()
		WHERE id = $1 AND status = $2 AND revision = $3
		RETURNING ` + datasetColumns

	row := r.db.QueryRow(ctx, query, id, expected, expectedRevision, to, mapping, upd.ErrorMessage, upd.Retryable)
	dataset, err := scanDataset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the dataset is gone or someone else transitioned it
			// first; let the caller re-read and decide.
			if _, getErr := r.Get(ctx, id); errors.Is(getErr, apperrors.ErrNotFound) {
				return nil, apperrors.ErrNotFound
			}
			return nil, apperrors.ErrStaleTransition
		}
		return nil, fmt.Errorf("failed to transition dataset: %w", err)
	}
	return dataset, nil
}

// scanDataset scans one dataset row from either QueryRow or Rows.
func scanDataset(row pgx.Row) (*models.Dataset, error) {
	var d models.Dataset
	var headers, mapping []byte

	err := row.Scan(
		&d.ID,
		&d.ProjectID,
		&d.OriginalFilename,
		&d.StorageKey,
		&headers,
		&d.RowCount,
		&d.Status,
		&d.Revision,
		&mapping,
		&d.ErrorMessage,
		&d.Retryable,
		&d.DefaultMetric,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(headers, &d.Headers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal headers: %w", err)
	}
	if mapping != nil {
		d.Mapping = &models.ColumnMapping{}
		if err := json.Unmarshal(mapping, d.Mapping); err != nil {
			return nil, fmt.Errorf("failed to unmarshal mapping: %w", err)
		}
	}
	return &d, nil
}
