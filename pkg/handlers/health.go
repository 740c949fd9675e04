package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sitepulse-io/sitepulse-engine/pkg/database"
)

// HealthHandler reports process liveness and database reachability.
type HealthHandler struct {
	db      *database.DB
	version string
	logger  *zap.Logger
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(db *database.DB, version string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, version: version, logger: logger.Named("health")}
}

// RegisterRoutes registers the health endpoint.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
}

// Health returns 200 when the database answers a ping, 503 otherwise.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("Health check database ping failed", zap.Error(err))
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSONOrLog(w, h.logger, code, map[string]string{
		"status":  status,
		"version": h.version,
	})
}
