package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitepulse-io/sitepulse-engine/pkg/apperrors"
	"github.com/sitepulse-io/sitepulse-engine/pkg/llm"
	"github.com/sitepulse-io/sitepulse-engine/pkg/models"
)

func proposalService(client *llm.MockLLMClient) *InferenceService {
	return NewInferenceService(client, 5*time.Second, 5, zap.NewNop())
}

func TestProposeDecodesMapping(t *testing.T) {
	client := &llm.MockLLMClient{
		CompleteFunc: func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
			return `Here is the mapping:
{
  "roles": {
    "ENTITY_ID": {"column": "Well_ID", "confidence": 0.95},
    "LATITUDE": {"column": "Lat_N", "confidence": 1.4},
    "TIMESTAMP": {"column": "Missing", "confidence": 0.9}
  },
  "columns": {
    "Depth_M": "NUMERICAL",
    "Status": "CATEGORICAL",
    "Well_ID": "TEXT"
  }
}`, nil
		},
	}
	svc := proposalService(client)

	mapping, err := svc.Propose(context.Background(), wellHeaders, [][]string{{"W1", "12.9", "77.5", "10", "active"}})
	require.NoError(t, err)

	assert.Equal(t, "Well_ID", mapping.Roles[models.RoleEntityID].Column)
	// Confidence clamped to [0,1].
	assert.Equal(t, 1.0, mapping.Roles[models.RoleLatitude].Confidence)
	// Reference to a non-existent column is dropped.
	_, ok := mapping.Roles[models.RoleTimestamp]
	assert.False(t, ok)
	// A role column is never also classified.
	_, ok = mapping.Columns["Well_ID"]
	assert.False(t, ok)
	// Unmentioned headers default to TEXT so the user still sees them.
	assert.Equal(t, models.ClassText, mapping.Columns["Long_E"])
	assert.Equal(t, models.ClassNumerical, mapping.Columns["Depth_M"])
}

func TestProposeMalformedOutputFallsBack(t *testing.T) {
	client := &llm.MockLLMClient{
		CompleteFunc: func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
			return "I could not find any structure in this file, sorry.", nil
		},
	}
	svc := proposalService(client)

	mapping, err := svc.Propose(context.Background(), wellHeaders, nil)
	require.NoError(t, err, "malformed output degrades, it does not fail")
	assert.Empty(t, mapping.Roles)
	for _, h := range wellHeaders {
		assert.Equal(t, models.ClassText, mapping.Columns[h])
	}
}

func TestProposeUnavailable(t *testing.T) {
	client := &llm.MockLLMClient{
		CompleteFunc: func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
			return "", fmt.Errorf("call llm: %w", apperrors.ErrInferenceUnavailable)
		},
	}
	svc := proposalService(client)

	_, err := svc.Propose(context.Background(), wellHeaders, nil)
	assert.ErrorIs(t, err, apperrors.ErrInferenceUnavailable)
}

func TestProposeBoundsSample(t *testing.T) {
	var seenPrompt string
	client := &llm.MockLLMClient{
		CompleteFunc: func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
			seenPrompt = prompt
			return `{"roles": {"ENTITY_ID": {"column": "Well_ID", "confidence": 1}}, "columns": {}}`, nil
		},
	}
	svc := NewInferenceService(client, 5*time.Second, 2, zap.NewNop())

	sample := [][]string{
		{"W1", "12.9", "77.5", "10", "active"},
		{"W2", "12.8", "77.4", "11", "active"},
		{"W3", "12.7", "77.3", "12", "dry"},
	}
	_, err := svc.Propose(context.Background(), wellHeaders, sample)
	require.NoError(t, err)
	assert.Contains(t, seenPrompt, "W2")
	assert.NotContains(t, seenPrompt, "W3", "rows past the sample limit must not reach the model")
}
