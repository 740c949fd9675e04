package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sitepulse-io/sitepulse-engine/pkg/apperrors"
	"github.com/sitepulse-io/sitepulse-engine/pkg/services"
)

// writeServiceError maps service-layer errors onto HTTP responses. The
// mapping is by error identity, not message text, so handlers stay out of
// the business of interpreting failures.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		writeJSONOrLog(w, logger, http.StatusUnprocessableEntity, map[string]any{
			"error":    "invalid_mapping",
			"message":  "mapping validation failed",
			"problems": verr.Problems,
		})
		return
	}

	var ingErr *services.IngestError
	if errors.As(err, &ingErr) {
		status := http.StatusUnprocessableEntity
		if ingErr.Reason == services.IngestReasonStorage {
			status = http.StatusServiceUnavailable
		}
		writeJSONOrLog(w, logger, status, map[string]any{
			"error":     "ingest_failed",
			"reason":    ingErr.Reason,
			"message":   ingErr.Message,
			"retryable": ingErr.Retryable,
		})
		return
	}

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		respond(w, logger, http.StatusNotFound, "not_found", "Resource not found")
	case errors.Is(err, apperrors.ErrStaleTransition):
		respond(w, logger, http.StatusConflict, "stale_transition", "Dataset state changed concurrently; re-read and retry")
	case errors.Is(err, apperrors.ErrConflict):
		respond(w, logger, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, apperrors.ErrMalformedUpload):
		respond(w, logger, http.StatusBadRequest, "malformed_upload", err.Error())
	case errors.Is(err, apperrors.ErrInferenceUnavailable):
		respond(w, logger, http.StatusServiceUnavailable, "inference_unavailable", "Mapping inference is unavailable; the dataset can be retried")
	default:
		logger.Error("Unhandled service error", zap.Error(err))
		respond(w, logger, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func respond(w http.ResponseWriter, logger *zap.Logger, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

func writeJSONOrLog(w http.ResponseWriter, logger *zap.Logger, status int, payload any) {
	if err := WriteJSON(w, status, payload); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}
