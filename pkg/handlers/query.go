package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitepulse-io/sitepulse-engine/pkg/models"
	"github.com/sitepulse-io/sitepulse-engine/pkg/repositories"
)

// defaultReadingsLimit bounds an unfiltered readings query.
const defaultReadingsLimit = 10000

// QueryHandler is the read-only boundary for downstream reporting: unified
// objects, readings and the metric catalog, scoped by project.
type QueryHandler struct {
	store   repositories.UnifiedStore
	catalog repositories.MetricCatalogRepository
	logger  *zap.Logger
}

// NewQueryHandler creates a query handler.
func NewQueryHandler(store repositories.UnifiedStore, catalog repositories.MetricCatalogRepository, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{store: store, catalog: catalog, logger: logger.Named("query")}
}

// RegisterRoutes registers the query endpoints.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux, scoped func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("GET /api/projects/{pid}/objects", scoped(h.Objects))
	mux.HandleFunc("GET /api/projects/{pid}/readings", scoped(h.Readings))
	mux.HandleFunc("GET /api/projects/{pid}/metrics", scoped(h.Metrics))
}

// Objects lists the project's unified objects.
func (h *QueryHandler) Objects(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseUUID(w, h.logger, r.PathValue("pid"))
	if !ok {
		return
	}
	objects, err := h.store.ListObjects(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if objects == nil {
		objects = []*models.UnifiedObject{}
	}
	writeJSONOrLog(w, h.logger, http.StatusOK, objects)
}

// Readings lists readings filtered by object, metric and time range.
// Query parameters: object (UUID), metric (catalog ID), from/to (RFC 3339,
// to exclusive), limit.
func (h *QueryHandler) Readings(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseUUID(w, h.logger, r.PathValue("pid"))
	if !ok {
		return
	}

	filter := repositories.ReadingFilter{
		MetricID: r.URL.Query().Get("metric"),
		Limit:    defaultReadingsLimit,
	}
	if raw := r.URL.Query().Get("object"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respond(w, h.logger, http.StatusBadRequest, "invalid_request", "object must be a UUID")
			return
		}
		filter.ObjectID = &id
	}
	if ts, ok := h.parseTimeParam(w, r, "from"); !ok {
		return
	} else {
		filter.From = ts
	}
	if ts, ok := h.parseTimeParam(w, r, "to"); !ok {
		return
	} else {
		filter.To = ts
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respond(w, h.logger, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	readings, err := h.store.ListReadings(r.Context(), projectID, filter)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if readings == nil {
		readings = []*models.UnifiedReading{}
	}
	writeJSONOrLog(w, h.logger, http.StatusOK, readings)
}

// Metrics lists the catalog entries visible to the project: the core set
// plus its own lazily created entries.
func (h *QueryHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseUUID(w, h.logger, r.PathValue("pid"))
	if !ok {
		return
	}
	metrics, err := h.catalog.ListForProject(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if metrics == nil {
		metrics = []*models.Metric{}
	}
	writeJSONOrLog(w, h.logger, http.StatusOK, metrics)
}

func (h *QueryHandler) parseTimeParam(w http.ResponseWriter, r *http.Request, name string) (*time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		respond(w, h.logger, http.StatusBadRequest, "invalid_request", name+" must be RFC 3339")
		return nil, false
	}
	return &ts, true
}
