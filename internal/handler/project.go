package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/echoboard/echoboard/internal/directory"
	"github.com/echoboard/echoboard/internal/domain"
	"github.com/echoboard/echoboard/internal/events"
	"github.com/echoboard/echoboard/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// ProjectHandler handles project directory operations.
type ProjectHandler struct {
	dir       *directory.Directory
	publisher *events.Publisher
}

// NewProjectHandler creates a new ProjectHandler. publisher may be nil when
// event publishing is disabled.
func NewProjectHandler(dir *directory.Directory, publisher *events.Publisher) *ProjectHandler {
	return &ProjectHandler{dir: dir, publisher: publisher}
}

// CreateProjectRequest is the request body for creating a project.
type CreateProjectRequest struct {
	Config domain.Config `json:"config"`
}

// UpdateProjectRequest is the request body for updating a project config.
// PreviousVersion enables optimistic concurrency; empty means last write wins.
type UpdateProjectRequest struct {
	Config          domain.Config `json:"config"`
	PreviousVersion string        `json:"previousVersion,omitempty"`
}

// WebhookListenerRequest is the request body for webhook listener changes.
type WebhookListenerRequest struct {
	ResourceType string `json:"resourceType"`
	EventType    string `json:"eventType"`
	URL          string `json:"url"`
}

// ProjectResponse is the response for a project.
type ProjectResponse struct {
	ProjectID string        `json:"projectId"`
	AccountID string        `json:"accountId"`
	Version   string        `json:"version"`
	Config    domain.Config `json:"config"`
}

func toProjectResponse(p *domain.Project) ProjectResponse {
	return ProjectResponse{
		ProjectID: p.ProjectID(),
		AccountID: p.AccountID(),
		Version:   p.Version(),
		Config:    p.Config(),
	}
}

// Create creates a new project together with its slug records.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r.Context())
	if authCtx == nil || authCtx.AccountID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Config.Slug == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "config.slug is required"})
		return
	}

	req.Config.SchemaVersion = domain.CurrentSchemaVersion
	projectID := domain.GenerateProjectID()
	conf := domain.VersionedConfig{Config: req.Config, Version: domain.NewVersion()}

	project, err := h.dir.CreateProject(r.Context(), authCtx.AccountID, projectID, conf)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publish(r.Context(), events.TypeProjectCreated, projectID, authCtx.AccountID)
	writeJSON(w, http.StatusCreated, toProjectResponse(project))
}

// Get retrieves a project by ID. The noCache query param forces a
// strongly-consistent read.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r.Context())
	if authCtx == nil || authCtx.AccountID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	projectID := chi.URLParam(r, "projectId")
	if projectID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "project id is required"})
		return
	}

	useCache := r.URL.Query().Get("noCache") == ""
	project, err := h.dir.GetProject(r.Context(), projectID, useCache)
	if err != nil {
		writeError(w, err)
		return
	}
	if project.AccountID() != authCtx.AccountID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	writeJSON(w, http.StatusOK, toProjectResponse(project))
}

// GetBySlug resolves a slug to its project. Used by the edge router, so it
// does not filter by account: a slug maps to exactly one project regardless
// of who asks.
func (h *ProjectHandler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if slug == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "slug is required"})
		return
	}

	useCache := r.URL.Query().Get("noCache") == ""
	project, err := h.dir.GetProjectBySlug(r.Context(), slug, useCache)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProjectResponse(project))
}

// Update replaces the project configuration, running slug migration when the
// subdomain or custom domain changed.
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r.Context())
	if authCtx == nil || authCtx.AccountID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	projectID := chi.URLParam(r, "projectId")
	if projectID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "project id is required"})
		return
	}

	var req UpdateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Config.Slug == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "config.slug is required"})
		return
	}

	current, err := h.dir.GetProject(r.Context(), projectID, false)
	if err != nil {
		writeError(w, err)
		return
	}
	if current.AccountID() != authCtx.AccountID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	req.Config.SchemaVersion = domain.CurrentSchemaVersion
	conf := domain.VersionedConfig{Config: req.Config, Version: domain.NewVersion()}
	if err := h.dir.UpdateConfig(r.Context(), projectID, req.PreviousVersion, conf); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r.Context(), events.TypeProjectUpdated, projectID, authCtx.AccountID)
	writeJSON(w, http.StatusOK, map[string]any{
		"projectId": projectID,
		"version":   conf.Version,
		"config":    conf.Config,
	})
}

// Delete removes a project and all slugs pointing at it.
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r.Context())
	if authCtx == nil || authCtx.AccountID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	projectID := chi.URLParam(r, "projectId")
	if projectID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "project id is required"})
		return
	}

	project, err := h.dir.GetProject(r.Context(), projectID, false)
	if err != nil {
		writeError(w, err)
		return
	}
	if project.AccountID() != authCtx.AccountID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if err := h.dir.DeleteProject(r.Context(), projectID); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r.Context(), events.TypeProjectDeleted, projectID, authCtx.AccountID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// AddWebhookListener registers a webhook listener on the project.
func (h *ProjectHandler) AddWebhookListener(w http.ResponseWriter, r *http.Request) {
	h.updateWebhookListener(w, r, true)
}

// RemoveWebhookListener removes a webhook listener from the project.
func (h *ProjectHandler) RemoveWebhookListener(w http.ResponseWriter, r *http.Request) {
	h.updateWebhookListener(w, r, false)
}

func (h *ProjectHandler) updateWebhookListener(w http.ResponseWriter, r *http.Request, add bool) {
	authCtx := middleware.GetAuthContext(r.Context())
	if authCtx == nil || authCtx.AccountID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	projectID := chi.URLParam(r, "projectId")
	if projectID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "project id is required"})
		return
	}

	var req WebhookListenerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.ResourceType == "" || req.EventType == "" || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "resourceType, eventType and url are required"})
		return
	}

	listener := domain.WebhookListener{
		ResourceType: domain.ResourceType(req.ResourceType),
		EventType:    req.EventType,
		URL:          req.URL,
	}

	var err error
	if add {
		err = h.dir.AddWebhookListener(r.Context(), projectID, listener)
	} else {
		err = h.dir.RemoveWebhookListener(r.Context(), projectID, listener)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// publish sends a lifecycle event when a publisher is configured. The
// directory write has already committed, so a publish failure is logged and
// swallowed.
func (h *ProjectHandler) publish(ctx context.Context, eventType, projectID, accountID string) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(ctx, events.NewEvent(eventType, projectID, accountID)); err != nil {
		slog.Warn("failed to publish project event",
			"type", eventType,
			"project_id", projectID,
			"error", err,
		)
	}
}
