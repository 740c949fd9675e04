package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatasetStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    DatasetStatus
		to      DatasetStatus
		allowed bool
	}{
		{"upload to analyzing", DatasetStatusUploaded, DatasetStatusAnalyzing, true},
		{"upload cannot skip to confirmed", DatasetStatusUploaded, DatasetStatusConfirmed, false},
		{"analyzing to analyzed", DatasetStatusAnalyzing, DatasetStatusAnalyzed, true},
		{"analyzing to failed", DatasetStatusAnalyzing, DatasetStatusFailed, true},
		{"re-analyze", DatasetStatusAnalyzed, DatasetStatusAnalyzing, true},
		{"analyzed to confirmed", DatasetStatusAnalyzed, DatasetStatusConfirmed, true},
		{"analyzed to failed on stale mapping", DatasetStatusAnalyzed, DatasetStatusFailed, true},
		{"confirmed to ingesting", DatasetStatusConfirmed, DatasetStatusIngesting, true},
		{"confirmed cannot jump to ingested", DatasetStatusConfirmed, DatasetStatusIngested, false},
		{"ingesting to ingested", DatasetStatusIngesting, DatasetStatusIngested, true},
		{"ingesting to failed", DatasetStatusIngesting, DatasetStatusFailed, true},
		{"failed retry to analyzing", DatasetStatusFailed, DatasetStatusAnalyzing, true},
		{"failed retry to ingesting", DatasetStatusFailed, DatasetStatusIngesting, true},
		{"failed cannot go to confirmed", DatasetStatusFailed, DatasetStatusConfirmed, false},
		{"ingested is terminal", DatasetStatusIngested, DatasetStatusAnalyzing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestDatasetTerminality(t *testing.T) {
	d := &Dataset{Status: DatasetStatusIngested}
	assert.True(t, d.IsTerminal())
	assert.False(t, d.CanRetry())

	d = &Dataset{Status: DatasetStatusFailed, Retryable: true}
	assert.False(t, d.IsTerminal())
	assert.True(t, d.CanRetry())

	d = &Dataset{Status: DatasetStatusFailed, Retryable: false}
	assert.True(t, d.IsTerminal())
	assert.False(t, d.CanRetry())

	d = &Dataset{Status: DatasetStatusAnalyzed}
	assert.False(t, d.IsTerminal())
}

func TestIsValidDatasetStatus(t *testing.T) {
	for _, s := range ValidDatasetStatuses {
		assert.True(t, IsValidDatasetStatus(s))
	}
	assert.False(t, IsValidDatasetStatus("PENDING"))
}
