package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/devsignal-systems/devsignal/internal/httputil"
	"github.com/devsignal-systems/devsignal/internal/logging"
	"github.com/devsignal-systems/devsignal/internal/models"
	"github.com/devsignal-systems/devsignal/internal/repository"
)

// IntegrationHandler serves the tenant-facing read and configuration
// surface around integrations, synced resources, and project
// connections.
type IntegrationHandler struct {
	repo   repository.Repository
	logger *logging.Logger
}

func NewIntegrationHandler(repo repository.Repository, logger *logging.Logger) *IntegrationHandler {
	return &IntegrationHandler{repo: repo, logger: logger}
}

func parseProvider(s string) (models.Provider, bool) {
	switch models.Provider(s) {
	case models.ProviderGitHub, models.ProviderSlack:
		return models.Provider(s), true
	}
	return "", false
}

// List handles GET /api/v1/orgs/{orgID}/integrations.
func (h *IntegrationHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("orgID")

	integrations, err := h.repo.ListIntegrationsByOrg(r.Context(), orgID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list integrations")
		return
	}
	if integrations == nil {
		integrations = []*models.Integration{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"integrations": integrations})
}

// Disconnect handles DELETE /api/v1/orgs/{orgID}/integrations/{provider}.
// The row survives with its status reset, so reconnecting later keeps
// the integration identity stable.
func (h *IntegrationHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := r.PathValue("orgID")

	provider, ok := parseProvider(r.PathValue("provider"))
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "unknown provider")
		return
	}

	integration, err := h.repo.GetIntegrationByOrgProvider(ctx, orgID, provider)
	if errors.Is(err, repository.ErrNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "integration not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load integration")
		return
	}

	if err := h.repo.DisconnectIntegration(ctx, integration.ID); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to disconnect integration")
		return
	}

	h.logger.InfoContext(ctx, "integration disconnected",
		logging.OrgID(orgID),
		logging.ProviderName(string(provider)),
	)
	httputil.WriteNoContent(w)
}

// ListResources handles GET /api/v1/orgs/{orgID}/integrations/{provider}/resources.
func (h *IntegrationHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := r.PathValue("orgID")

	provider, ok := parseProvider(r.PathValue("provider"))
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "unknown provider")
		return
	}

	integration, err := h.repo.GetIntegrationByOrgProvider(ctx, orgID, provider)
	if errors.Is(err, repository.ErrNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "integration not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load integration")
		return
	}

	resources, err := h.repo.ListIntegrationResources(ctx, integration.ID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list resources")
		return
	}
	if resources == nil {
		resources = []*models.IntegrationResource{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"resources": resources})
}

type setConnectionRequest struct {
	ResourceIDs []string `json:"resource_ids"`
}

// SetConnection handles PUT /api/v1/projects/{projectID}/connections/{provider}.
// It replaces the resource selection feeding the project.
func (h *IntegrationHandler) SetConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := r.PathValue("projectID")

	provider, ok := parseProvider(r.PathValue("provider"))
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "unknown provider")
		return
	}

	var req setConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	project, err := h.repo.GetProject(ctx, projectID)
	if errors.Is(err, repository.ErrNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load project")
		return
	}

	integration, err := h.repo.GetIntegrationByOrgProvider(ctx, project.OrgID, provider)
	if errors.Is(err, repository.ErrNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "integration not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load integration")
		return
	}

	conn := &models.IntegrationConnection{
		ID:            uuid.New().String(),
		ProjectID:     project.ID,
		IntegrationID: integration.ID,
		ResourceIDs:   req.ResourceIDs,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := h.repo.SetProjectConnection(ctx, conn); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to store connection")
		return
	}

	h.logger.InfoContext(ctx, "project connection updated",
		logging.ProjectID(project.ID),
		logging.ProviderName(string(provider)),
		"resource_count", len(req.ResourceIDs),
	)
	httputil.WriteJSON(w, http.StatusOK, conn)
}

// MarkProcessed handles POST /api/v1/raw-events/{id}/processed, the ack
// the analysis consumer sends once an event has been analyzed.
func (h *IntegrationHandler) MarkProcessed(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := h.repo.MarkRawEventProcessed(r.Context(), id, time.Now())
	if errors.Is(err, repository.ErrNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "raw event not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to mark event processed")
		return
	}
	httputil.WriteNoContent(w)
}
