package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sitepulse-io/sitepulse-engine/pkg/models"
	"github.com/sitepulse-io/sitepulse-engine/pkg/services"
)

// maxUploadBytes caps a single dataset upload (64 MiB).
const maxUploadBytes = 64 << 20

// DatasetHandler exposes the dataset lifecycle over HTTP: upload, analyze,
// confirm, retry, read. It holds no state of its own; everything goes
// through the lifecycle controller.
type DatasetHandler struct {
	datasets *services.DatasetService
	logger   *zap.Logger
}

// NewDatasetHandler creates a dataset handler.
func NewDatasetHandler(datasets *services.DatasetService, logger *zap.Logger) *DatasetHandler {
	return &DatasetHandler{datasets: datasets, logger: logger.Named("datasets")}
}

// RegisterRoutes registers dataset endpoints. Project-scoped routes go
// through scoped; dataset-addressed routes only need a valid token.
func (h *DatasetHandler) RegisterRoutes(mux *http.ServeMux, global, scoped func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("POST /api/projects/{pid}/datasets", scoped(h.Upload))
	mux.HandleFunc("GET /api/projects/{pid}/datasets", scoped(h.List))
	mux.HandleFunc("GET /api/datasets/{id}", global(h.Get))
	mux.HandleFunc("POST /api/datasets/{id}/analyze", global(h.Analyze))
	mux.HandleFunc("POST /api/datasets/{id}/confirm", global(h.Confirm))
	mux.HandleFunc("POST /api/datasets/{id}/retry", global(h.Retry))
}

// Upload accepts a multipart form with a "file" part and an optional
// "metric" field declaring the dataset's single metric name.
func (h *DatasetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseUUID(w, h.logger, r.PathValue("pid"))
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		respond(w, h.logger, http.StatusBadRequest, "invalid_request", "Multipart form must carry a \"file\" part")
		return
	}
	defer file.Close()

	metric := strings.TrimSpace(r.FormValue("metric"))
	dataset, err := h.datasets.Upload(r.Context(), projectID, header.Filename, file, metric)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSONOrLog(w, h.logger, http.StatusCreated, dataset)
}

// Get returns one dataset, including status, error and retryable so the
// caller can decide between "try again" and "fix the mapping".
func (h *DatasetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, h.logger, r.PathValue("id"))
	if !ok {
		return
	}
	dataset, err := h.datasets.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSONOrLog(w, h.logger, http.StatusOK, dataset)
}

// List returns a project's datasets.
func (h *DatasetHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseUUID(w, h.logger, r.PathValue("pid"))
	if !ok {
		return
	}
	datasets, err := h.datasets.List(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if datasets == nil {
		datasets = []*models.Dataset{}
	}
	writeJSONOrLog(w, h.logger, http.StatusOK, datasets)
}

// Analyze triggers a mapping proposal for the dataset.
func (h *DatasetHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, h.logger, r.PathValue("id"))
	if !ok {
		return
	}
	dataset, err := h.datasets.Analyze(r.Context(), id)
	h.respondLifecycle(w, dataset, nil, err)
}

// Confirm accepts the user-edited mapping and, when it validates, drives
// the dataset through ingestion synchronously.
func (h *DatasetHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, h.logger, r.PathValue("id"))
	if !ok {
		return
	}

	var mapping models.ColumnMapping
	if err := json.NewDecoder(r.Body).Decode(&mapping); err != nil {
		respond(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	dataset, result, err := h.datasets.Confirm(r.Context(), id, &mapping)
	h.respondLifecycle(w, dataset, result, err)
}

// Retry re-drives a retryable failed dataset.
func (h *DatasetHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, h.logger, r.PathValue("id"))
	if !ok {
		return
	}
	dataset, result, err := h.datasets.Retry(r.Context(), id)
	h.respondLifecycle(w, dataset, result, err)
}

// lifecycleResponse is the envelope for operations that move a dataset.
type lifecycleResponse struct {
	Dataset *models.Dataset      `json:"dataset,omitempty"`
	Result  *models.IngestResult `json:"result,omitempty"`
}

// respondLifecycle renders the outcome of a lifecycle operation. When the
// operation failed but still left the dataset in a well-defined state (for
// example FAILED after an ingest error), the response carries both the
// error and the dataset record.
func (h *DatasetHandler) respondLifecycle(w http.ResponseWriter, dataset *models.Dataset, result *models.IngestResult, err error) {
	if err == nil {
		writeJSONOrLog(w, h.logger, http.StatusOK, lifecycleResponse{Dataset: dataset, Result: result})
		return
	}
	writeServiceError(w, h.logger, err)
}
