package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitepulse-io/sitepulse-engine/pkg/apperrors"
	"github.com/sitepulse-io/sitepulse-engine/pkg/services"
)

func TestWriteServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", apperrors.ErrNotFound, http.StatusNotFound, "not_found"},
		{"wrapped not found", fmt.Errorf("get dataset: %w", apperrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{"stale transition", apperrors.ErrStaleTransition, http.StatusConflict, "stale_transition"},
		{"conflict", fmt.Errorf("%w: bad state", apperrors.ErrConflict), http.StatusConflict, "conflict"},
		{"malformed upload", fmt.Errorf("%w: empty", apperrors.ErrMalformedUpload), http.StatusBadRequest, "malformed_upload"},
		{"inference unavailable", fmt.Errorf("propose: %w", apperrors.ErrInferenceUnavailable), http.StatusServiceUnavailable, "inference_unavailable"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, zap.NewNop(), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body["error"])
		})
	}
}

func TestWriteServiceErrorValidation(t *testing.T) {
	rec := httptest.NewRecorder()
	verr := &services.ValidationError{Problems: []services.FieldProblem{
		{Field: "roles.ENTITY_ID", Problem: "column does not exist"},
	}}
	writeServiceError(rec, zap.NewNop(), verr)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body struct {
		Error    string                  `json:"error"`
		Problems []services.FieldProblem `json:"problems"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_mapping", body.Error)
	require.Len(t, body.Problems, 1)
	assert.Equal(t, "roles.ENTITY_ID", body.Problems[0].Field)
}

func TestWriteServiceErrorIngest(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, zap.NewNop(), &services.IngestError{
		Reason:    services.IngestReasonThreshold,
		Message:   "too many rejects",
		Retryable: false,
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ingest_failed", body["error"])
	assert.Equal(t, "threshold", body["reason"])
	assert.Equal(t, false, body["retryable"])

	rec = httptest.NewRecorder()
	writeServiceError(rec, zap.NewNop(), &services.IngestError{
		Reason: services.IngestReasonStorage, Message: "db down", Retryable: true,
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
