package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/devsignal-systems/devsignal/internal/httputil"
	"github.com/devsignal-systems/devsignal/internal/logging"
	"github.com/devsignal-systems/devsignal/internal/models"
	"github.com/devsignal-systems/devsignal/internal/provider/github"
	"github.com/devsignal-systems/devsignal/internal/repository"
	"github.com/devsignal-systems/devsignal/internal/tokenbroker"
)

// TokenSource serves a valid provider token for an integration.
type TokenSource interface {
	GetValidToken(ctx context.Context, integrationID string) (string, error)
}

// GitHubRepoLister narrows the GitHub client to the repo sync call.
type GitHubRepoLister interface {
	ListInstallationRepositories(ctx context.Context, token string) ([]github.Repository, error)
}

// SyncHandler refreshes the synced resource list from the provider on
// demand. This is the one tenant-facing operation that spends provider
// tokens, so it runs through the broker.
type SyncHandler struct {
	repo   repository.Repository
	tokens TokenSource
	github GitHubRepoLister
	slack  SlackChannelLister
	logger *logging.Logger
}

func NewSyncHandler(repo repository.Repository, tokens TokenSource, gh GitHubRepoLister, sl SlackChannelLister, logger *logging.Logger) *SyncHandler {
	return &SyncHandler{repo: repo, tokens: tokens, github: gh, slack: sl, logger: logger}
}

// Sync handles POST /api/v1/orgs/{orgID}/integrations/{provider}/resources/sync.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
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
	if integration.Status != models.StatusConnected {
		httputil.WriteError(w, http.StatusConflict, "integration is not connected")
		return
	}

	token, err := h.tokens.GetValidToken(ctx, integration.ID)
	if errors.Is(err, tokenbroker.ErrNotConfigured) {
		httputil.WriteError(w, http.StatusConflict, "integration is missing credentials")
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "token acquisition failed",
			logging.IntegrationID(integration.ID),
			logging.Error(err),
		)
		httputil.WriteError(w, http.StatusBadGateway, "provider token unavailable")
		return
	}

	var count int
	switch provider {
	case models.ProviderGitHub:
		count, err = h.syncGitHub(ctx, integration, token)
	case models.ProviderSlack:
		count, err = h.syncSlack(ctx, integration, token)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "resource sync failed",
			logging.IntegrationID(integration.ID),
			logging.ProviderName(string(provider)),
			logging.Error(err),
		)
		httputil.WriteError(w, http.StatusBadGateway, "resource sync failed")
		return
	}

	h.logger.InfoContext(ctx, "resources synced",
		logging.IntegrationID(integration.ID),
		logging.ProviderName(string(provider)),
		"resource_count", count,
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"synced": count})
}

func (h *SyncHandler) syncGitHub(ctx context.Context, integration *models.Integration, token string) (int, error) {
	repos, err := h.github.ListInstallationRepositories(ctx, token)
	if err != nil {
		return 0, err
	}

	for _, repo := range repos {
		resource := &models.IntegrationResource{
			ID:            uuid.New().String(),
			IntegrationID: integration.ID,
			Provider:      models.ProviderGitHub,
			ProviderID:    strconv.FormatInt(repo.ID, 10),
			Name:          repo.FullName,
			Kind:          "repository",
			CreatedAt:     time.Now(),
			UpdatedAt:     time.Now(),
		}
		if err := h.repo.UpsertIntegrationResource(ctx, resource); err != nil {
			return 0, err
		}
	}
	return len(repos), nil
}

func (h *SyncHandler) syncSlack(ctx context.Context, integration *models.Integration, token string) (int, error) {
	channels, err := h.slack.ListChannels(ctx, token)
	if err != nil {
		return 0, err
	}

	for _, ch := range channels {
		resource := &models.IntegrationResource{
			ID:            uuid.New().String(),
			IntegrationID: integration.ID,
			Provider:      models.ProviderSlack,
			ProviderID:    ch.ID,
			Name:          ch.Name,
			Kind:          "channel",
			CreatedAt:     time.Now(),
			UpdatedAt:     time.Now(),
		}
		if err := h.repo.UpsertIntegrationResource(ctx, resource); err != nil {
			return 0, err
		}
	}
	return len(channels), nil
}
