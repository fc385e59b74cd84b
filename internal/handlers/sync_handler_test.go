package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devsignal-systems/devsignal/internal/logging"
	"github.com/devsignal-systems/devsignal/internal/models"
	"github.com/devsignal-systems/devsignal/internal/provider/github"
	"github.com/devsignal-systems/devsignal/internal/provider/slack"
	"github.com/devsignal-systems/devsignal/internal/repository"
	"github.com/devsignal-systems/devsignal/internal/tokenbroker"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) GetValidToken(ctx context.Context, integrationID string) (string, error) {
	return s.token, s.err
}

type staticRepos struct {
	repos []github.Repository
	err   error
}

func (s staticRepos) ListInstallationRepositories(ctx context.Context, token string) ([]github.Repository, error) {
	return s.repos, s.err
}

func newSyncMux(t *testing.T, repo repository.Repository, tokens TokenSource, gh GitHubRepoLister, sl SlackChannelLister) http.Handler {
	t.Helper()
	handler := NewSyncHandler(repo, tokens, gh, sl, logging.New(slog.LevelError, "text"))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/orgs/{orgID}/integrations/{provider}/resources/sync", handler.Sync)
	return mux
}

func seedSyncIntegration(t *testing.T, repo repository.Repository, provider models.Provider, status models.IntegrationStatus) (orgID string, integrationID string) {
	t.Helper()
	ctx := context.Background()

	org := &models.Organization{ID: uuid.New().String(), Name: "acme", CreatedAt: time.Now()}
	require.NoError(t, repo.CreateOrganization(ctx, org))

	integration := &models.Integration{
		ID:                uuid.New().String(),
		OrgID:             org.ID,
		Provider:          provider,
		Status:            status,
		AuthType:          models.AuthAppAssertion,
		ExternalAccountID: "9001",
	}
	require.NoError(t, repo.UpsertIntegration(ctx, integration))
	return org.ID, integration.ID
}

func TestSyncGitHubRepositories(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	orgID, integrationID := seedSyncIntegration(t, repo, models.ProviderGitHub, models.StatusConnected)

	gh := staticRepos{repos: []github.Repository{
		{ID: 555, FullName: "acme/api"},
		{ID: 777, FullName: "acme/web"},
	}}
	mux := newSyncMux(t, repo, staticTokens{token: "ghs_token"}, gh, staticChannels{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orgs/"+orgID+"/integrations/github/resources/sync", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resources, err := repo.ListIntegrationResources(context.Background(), integrationID)
	require.NoError(t, err)
	assert.Len(t, resources, 2)
}

func TestSyncSlackChannels(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	orgID, integrationID := seedSyncIntegration(t, repo, models.ProviderSlack, models.StatusConnected)

	sl := staticChannels{channels: []slack.Channel{{ID: "C42", Name: "general"}}}
	mux := newSyncMux(t, repo, staticTokens{token: "xoxb-token"}, staticRepos{}, sl)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orgs/"+orgID+"/integrations/slack/resources/sync", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resources, err := repo.ListIntegrationResources(context.Background(), integrationID)
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "general", resources[0].Name)
	assert.Equal(t, "channel", resources[0].Kind)
}

func TestSyncNotConnected(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	orgID, _ := seedSyncIntegration(t, repo, models.ProviderGitHub, models.StatusNotConnected)

	mux := newSyncMux(t, repo, staticTokens{token: "ghs_token"}, staticRepos{}, staticChannels{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orgs/"+orgID+"/integrations/github/resources/sync", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSyncMissingCredentials(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	orgID, _ := seedSyncIntegration(t, repo, models.ProviderGitHub, models.StatusConnected)

	mux := newSyncMux(t, repo, staticTokens{err: tokenbroker.ErrNotConfigured}, staticRepos{}, staticChannels{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orgs/"+orgID+"/integrations/github/resources/sync", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSyncProviderFailure(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	orgID, _ := seedSyncIntegration(t, repo, models.ProviderGitHub, models.StatusConnected)

	gh := staticRepos{err: errors.New("upstream down")}
	mux := newSyncMux(t, repo, staticTokens{token: "ghs_token"}, gh, staticChannels{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orgs/"+orgID+"/integrations/github/resources/sync", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}
