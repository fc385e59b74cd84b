package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devsignal-systems/devsignal/internal/logging"
	"github.com/devsignal-systems/devsignal/internal/models"
	"github.com/devsignal-systems/devsignal/internal/provider/slack"
	"github.com/devsignal-systems/devsignal/internal/repository"
	"github.com/devsignal-systems/devsignal/internal/statetoken"
	"github.com/devsignal-systems/devsignal/internal/vault"
)

type staticChannels struct {
	channels []slack.Channel
}

func (s staticChannels) ListChannels(ctx context.Context, token string) ([]slack.Channel, error) {
	return s.channels, nil
}

type connectFixture struct {
	repo    *repository.InMemoryRepository
	handler *ConnectHandler
	states  *statetoken.Signer
	org     *models.Organization
}

func newConnectFixture(t *testing.T) *connectFixture {
	t.Helper()
	repo := repository.NewInMemoryRepository()
	states := statetoken.NewSigner("test-master-key", 10*time.Minute)
	v, err := vault.New("test-master-key")
	require.NoError(t, err)

	oauth := slack.NewOAuthConfig("client-id", "client-secret", "http://localhost:8086/api/v1/integrations/slack/callback", "https://slack.com/api")
	handler := NewConnectHandler(repo, states, v, oauth, staticChannels{}, "devsignal-app", "http://localhost:3000", logging.New(slog.LevelError, "text"))

	org := &models.Organization{ID: uuid.New().String(), Name: "acme", CreatedAt: time.Now()}
	require.NoError(t, repo.CreateOrganization(context.Background(), org))

	return &connectFixture{repo: repo, handler: handler, states: states, org: org}
}

func TestGitHubInstallRedirect(t *testing.T) {
	f := newConnectFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/integrations/github/install?orgId="+f.org.ID, nil)
	w := httptest.NewRecorder()
	f.handler.GitHubInstall(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "github.com", loc.Host)
	assert.Equal(t, "/apps/devsignal-app/installations/new", loc.Path)

	// The state in the redirect is verifiable and carries the tenant.
	payload, err := f.states.Verify(loc.Query().Get("state"))
	require.NoError(t, err)
	assert.Equal(t, f.org.ID, payload.OrgID)
}

func TestGitHubInstallUnknownOrg(t *testing.T) {
	f := newConnectFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/integrations/github/install?orgId="+uuid.New().String(), nil)
	w := httptest.NewRecorder()
	f.handler.GitHubInstall(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGitHubInstallMissingOrg(t *testing.T) {
	f := newConnectFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/integrations/github/install", nil)
	w := httptest.NewRecorder()
	f.handler.GitHubInstall(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGitHubCallbackBindsInstallation(t *testing.T) {
	f := newConnectFixture(t)
	ctx := context.Background()

	state, err := f.states.Sign(statetoken.Payload{OrgID: f.org.ID})
	require.NoError(t, err)

	target := "/api/v1/integrations/github/callback?state=" + url.QueryEscape(state) + "&installation_id=9001&setup_action=install"
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	f.handler.GitHubCallback(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "connected=github")

	integration, err := f.repo.GetIntegrationByOrgProvider(ctx, f.org.ID, models.ProviderGitHub)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConnected, integration.Status)
	assert.Equal(t, models.AuthAppAssertion, integration.AuthType)
	assert.Equal(t, "9001", integration.ExternalAccountID)

	installationID, ok := integration.ConfigValue("installation_id")
	require.True(t, ok)
	assert.Equal(t, "9001", installationID)
}

func TestGitHubCallbackForgedState(t *testing.T) {
	f := newConnectFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/integrations/github/callback?state=forged&installation_id=9001", nil)
	w := httptest.NewRecorder()
	f.handler.GitHubCallback(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "error=invalid_state")

	_, err := f.repo.GetIntegrationByOrgProvider(context.Background(), f.org.ID, models.ProviderGitHub)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestGitHubCallbackExpiredState(t *testing.T) {
	f := newConnectFixture(t)

	expired := statetoken.NewSigner("test-master-key", -time.Minute)
	state, err := expired.Sign(statetoken.Payload{OrgID: f.org.ID})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/integrations/github/callback?state="+url.QueryEscape(state)+"&installation_id=9001", nil)
	w := httptest.NewRecorder()
	f.handler.GitHubCallback(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "error=invalid_state")
}

func TestSlackInstallRedirect(t *testing.T) {
	f := newConnectFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/integrations/slack/install?orgId="+f.org.ID, nil)
	w := httptest.NewRecorder()
	f.handler.SlackInstall(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "slack.com", loc.Host)
	assert.NotEmpty(t, loc.Query().Get("state"))
	assert.Equal(t, "client-id", loc.Query().Get("client_id"))
}

func TestSlackCallbackUserDenied(t *testing.T) {
	f := newConnectFixture(t)

	state, err := f.states.Sign(statetoken.Payload{OrgID: f.org.ID})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/integrations/slack/callback?state="+url.QueryEscape(state)+"&error=access_denied", nil)
	w := httptest.NewRecorder()
	f.handler.SlackCallback(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "error=access_denied")
}
