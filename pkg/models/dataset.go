package models

import (
	"time"

	"github.com/google/uuid"
)

// DatasetStatus represents the processing state of an uploaded dataset.
// State machine:
//
//	uploaded → analyzing → analyzed → confirmed → ingesting → ingested
//	                ↓           ↓          ↓           ↓
//	              failed      failed     failed      failed
//
//	analyzed → analyzing (re-analyze, overwrites the stored proposal)
//	failed(retryable) → analyzing | ingesting (explicit retry)
type DatasetStatus string

const (
	DatasetStatusUploaded  DatasetStatus = "UPLOADED"
	DatasetStatusAnalyzing DatasetStatus = "ANALYZING"
	DatasetStatusAnalyzed  DatasetStatus = "ANALYZED"
	DatasetStatusConfirmed DatasetStatus = "CONFIRMED"
	DatasetStatusIngesting DatasetStatus = "INGESTING"
	DatasetStatusIngested  DatasetStatus = "INGESTED"
	DatasetStatusFailed    DatasetStatus = "FAILED"
)

// ValidDatasetStatuses contains all valid status values.
var ValidDatasetStatuses = []DatasetStatus{
	DatasetStatusUploaded,
	DatasetStatusAnalyzing,
	DatasetStatusAnalyzed,
	DatasetStatusConfirmed,
	DatasetStatusIngesting,
	DatasetStatusIngested,
	DatasetStatusFailed,
}

// IsValidDatasetStatus checks if the given status is valid.
func IsValidDatasetStatus(s DatasetStatus) bool {
	for _, v := range ValidDatasetStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// CanTransitionTo returns true if transitioning from this status to the
// target is valid. Whether a FAILED dataset may actually be re-driven also
// depends on its retryable flag, which the lifecycle controller checks.
func (s DatasetStatus) CanTransitionTo(target DatasetStatus) bool {
	switch s {
	case DatasetStatusUploaded:
		return target == DatasetStatusAnalyzing
	case DatasetStatusAnalyzing:
		return target == DatasetStatusAnalyzed || target == DatasetStatusFailed
	case DatasetStatusAnalyzed:
		// Re-analysis is allowed; stale-mapping detection may fail it.
		return target == DatasetStatusAnalyzing ||
			target == DatasetStatusConfirmed ||
			target == DatasetStatusFailed
	case DatasetStatusConfirmed:
		return target == DatasetStatusIngesting || target == DatasetStatusFailed
	case DatasetStatusIngesting:
		return target == DatasetStatusIngested || target == DatasetStatusFailed
	case DatasetStatusFailed:
		return target == DatasetStatusAnalyzing || target == DatasetStatusIngesting
	case DatasetStatusIngested:
		return false
	default:
		return false
	}
}

// Dataset is one uploaded file plus its processing state. Status is mutated
// only by the dataset lifecycle controller, through guarded transitions.
type Dataset struct {
	ID               uuid.UUID      `json:"id"`
	ProjectID        uuid.UUID      `json:"project_id"`
	OriginalFilename string         `json:"original_filename"`
	StorageKey       string         `json:"storage_key,omitempty"`
	Headers          []string       `json:"headers"`
	RowCount         int            `json:"row_count"`
	Status           DatasetStatus  `json:"status"`
	Revision         int64          `json:"revision"`
	Mapping          *ColumnMapping `json:"mapping,omitempty"`
	ErrorMessage     *string        `json:"error,omitempty"`
	Retryable        bool           `json:"retryable"`
	DefaultMetric    *string        `json:"default_metric,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// IsTerminal returns true when no further transition is possible: ingested,
// or failed without the retryable flag.
func (d *Dataset) IsTerminal() bool {
	if d.Status == DatasetStatusIngested {
		return true
	}
	return d.Status == DatasetStatusFailed && !d.Retryable
}

// CanRetry reports whether an explicit retry action may re-drive the dataset.
func (d *Dataset) CanRetry() bool {
	return d.Status == DatasetStatusFailed && d.Retryable
}
