package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sitepulse-io/sitepulse-engine/pkg/database"
)

// DatasetRowRepository stores and streams the immutable raw rows captured at
// upload time. Rows are keyed (dataset_id, row_index) with cells as a jsonb
// object under original header names, so the ETL engine can re-run against
// the exact bytes the user uploaded.
type DatasetRowRepository interface {
	// InsertBatch appends a contiguous batch of rows starting at startIndex.
	InsertBatch(ctx context.Context, datasetID uuid.UUID, startIndex int, rows []map[string]string) error
	// StreamRows invokes fn for every row in index order. A non-nil return
	// from fn stops the stream and is returned unchanged.
	StreamRows(ctx context.Context, datasetID uuid.UUID, fn func(index int, cells map[string]string) error) error
	// SampleRows returns up to limit leading rows as cell slices aligned to
	// the given header order, for inference prompts.
	SampleRows(ctx context.Context, datasetID uuid.UUID, headers []string, limit int) ([][]string, error)
}

type datasetRowRepository struct {
	db *database.DB
}

// NewDatasetRowRepository creates a new raw row repository.
func NewDatasetRowRepository(db *database.DB) DatasetRowRepository {
	return &datasetRowRepository{db: db}
}

func (r *datasetRowRepository) InsertBatch(ctx context.Context, datasetID uuid.UUID, startIndex int, rows []map[string]string) error {
	if len(rows) == 0 {
		return nil
	}

	source := make([][]any, 0, len(rows))
	for i, cells := range rows {
		encoded, err := json.Marshal(cells)
		if err != nil {
			return fmt.Errorf("failed to marshal row %d: %w", startIndex+i, err)
		}
		source = append(source, []any{datasetID, startIndex + i, encoded})
	}

	_, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"dataset_rows"},
		[]string{"dataset_id", "row_index", "cells"},
		pgx.CopyFromRows(source))
	if err != nil {
		return fmt.Errorf("failed to insert dataset rows: %w", err)
	}
	return nil
}

func (r *datasetRowRepository) StreamRows(ctx context.Context, datasetID uuid.UUID, fn func(index int, cells map[string]string) error) error {
	rows, err := r.db.Query(ctx, `
		SELECT row_index, cells FROM dataset_rows
		WHERE dataset_id = $1 ORDER BY row_index`, datasetID)
	if err != nil {
		return fmt.Errorf("failed to stream dataset rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var index int
		var encoded []byte
		if err := rows.Scan(&index, &encoded); err != nil {
			return fmt.Errorf("failed to scan dataset row: %w", err)
		}
		var cells map[string]string
		if err := json.Unmarshal(encoded, &cells); err != nil {
			return fmt.Errorf("failed to unmarshal row %d: %w", index, err)
		}
		if err := fn(index, cells); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *datasetRowRepository) SampleRows(ctx context.Context, datasetID uuid.UUID, headers []string, limit int) ([][]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT cells FROM dataset_rows
		WHERE dataset_id = $1 ORDER BY row_index LIMIT $2`, datasetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to sample dataset rows: %w", err)
	}
	defer rows.Close()

	var sample [][]string
	for rows.Next() {
		var encoded []byte
		if err := rows.Scan(&encoded); err != nil {
			return nil, fmt.Errorf("failed to scan sample row: %w", err)
		}
		var cells map[string]string
		if err := json.Unmarshal(encoded, &cells); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sample row: %w", err)
		}
		values := make([]string, len(headers))
		for i, h := range headers {
			values[i] = cells[h]
		}
		sample = append(sample, values)
	}
	return sample, rows.Err()
}
