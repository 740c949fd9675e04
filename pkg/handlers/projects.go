package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitepulse-io/sitepulse-engine/pkg/models"
	"github.com/sitepulse-io/sitepulse-engine/pkg/repositories"
)

// ProjectHandler is minimal project CRUD: enough for datasets and unified
// data to have an owner. Access control lives in the auth middleware.
type ProjectHandler struct {
	projects repositories.ProjectRepository
	logger   *zap.Logger
}

// NewProjectHandler creates a project handler.
func NewProjectHandler(projects repositories.ProjectRepository, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, logger: logger.Named("projects")}
}

// RegisterRoutes registers project endpoints. scoped wraps project-bound
// routes; global wraps routes that only need a valid token.
func (h *ProjectHandler) RegisterRoutes(mux *http.ServeMux, global, scoped func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("POST /api/projects", global(h.Create))
	mux.HandleFunc("GET /api/projects", global(h.List))
	mux.HandleFunc("GET /api/projects/{pid}", scoped(h.Get))
}

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Create registers a new project.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respond(w, h.logger, http.StatusBadRequest, "invalid_request", "Project name is required")
		return
	}

	project := &models.Project{Name: req.Name, Description: req.Description}
	if err := h.projects.Create(r.Context(), project); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSONOrLog(w, h.logger, http.StatusCreated, project)
}

// Get returns one project.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, h.logger, r.PathValue("pid"))
	if !ok {
		return
	}
	project, err := h.projects.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSONOrLog(w, h.logger, http.StatusOK, project)
}

// List returns all projects.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	writeJSONOrLog(w, h.logger, http.StatusOK, projects)
}

// parseUUID parses a path parameter as a UUID, writing a 400 on failure.
func parseUUID(w http.ResponseWriter, logger *zap.Logger, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		respond(w, logger, http.StatusBadRequest, "invalid_id", "Invalid UUID in path")
		return uuid.Nil, false
	}
	return id, true
}
