package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/devsignal-systems/devsignal/internal/httputil"
	"github.com/devsignal-systems/devsignal/internal/logging"
	"github.com/devsignal-systems/devsignal/internal/models"
	"github.com/devsignal-systems/devsignal/internal/provider/slack"
	"github.com/devsignal-systems/devsignal/internal/repository"
	"github.com/devsignal-systems/devsignal/internal/statetoken"
	"github.com/devsignal-systems/devsignal/internal/tokenbroker"
	"github.com/devsignal-systems/devsignal/internal/vault"
)

// SlackChannelLister narrows the Slack client surface the callback
// needs for the channel sync.
type SlackChannelLister interface {
	ListChannels(ctx context.Context, token string) ([]slack.Channel, error)
}

// ConnectHandler drives the browser-facing provider authorization
// round trips. All failures redirect back to the frontend with an
// error code; the browser never sees a bare 500 mid-flow.
type ConnectHandler struct {
	repo         repository.Repository
	states       *statetoken.Signer
	vault        *vault.Vault
	slackOAuth   *slack.OAuthConfig
	slackClient  SlackChannelLister
	githubSlug   string
	frontendBase string
	logger       *logging.Logger
}

func NewConnectHandler(
	repo repository.Repository,
	states *statetoken.Signer,
	v *vault.Vault,
	slackOAuth *slack.OAuthConfig,
	slackClient SlackChannelLister,
	githubSlug string,
	frontendBase string,
	logger *logging.Logger,
) *ConnectHandler {
	return &ConnectHandler{
		repo:         repo,
		states:       states,
		vault:        v,
		slackOAuth:   slackOAuth,
		slackClient:  slackClient,
		githubSlug:   githubSlug,
		frontendBase: frontendBase,
		logger:       logger,
	}
}

func (h *ConnectHandler) redirectError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, h.frontendBase+"/integrations?error="+url.QueryEscape(code), http.StatusFound)
}

func (h *ConnectHandler) redirectConnected(w http.ResponseWriter, r *http.Request, provider models.Provider) {
	http.Redirect(w, r, h.frontendBase+"/integrations?connected="+string(provider), http.StatusFound)
}

// signState issues the CSRF token binding the flow to the tenant. The
// organization must exist before a flow can start.
func (h *ConnectHandler) signState(w http.ResponseWriter, r *http.Request) (string, bool) {
	orgID := r.URL.Query().Get("orgId")
	if orgID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "orgId is required")
		return "", false
	}
	if _, err := h.repo.GetOrganization(r.Context(), orgID); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "organization not found")
		return "", false
	}

	state, err := h.states.Sign(statetoken.Payload{OrgID: orgID})
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to start authorization")
		return "", false
	}
	return state, true
}

// GitHubInstall handles GET /api/v1/integrations/github/install.
func (h *ConnectHandler) GitHubInstall(w http.ResponseWriter, r *http.Request) {
	state, ok := h.signState(w, r)
	if !ok {
		return
	}
	target := fmt.Sprintf("https://github.com/apps/%s/installations/new?state=%s", h.githubSlug, url.QueryEscape(state))
	http.Redirect(w, r, target, http.StatusFound)
}

// GitHubCallback handles GET /api/v1/integrations/github/callback. It
// binds the installation id delivered by GitHub to the tenant carried
// in the state token.
func (h *ConnectHandler) GitHubCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	payload, err := h.states.Verify(q.Get("state"))
	if err != nil {
		h.redirectError(w, r, "invalid_state")
		return
	}

	installationID := q.Get("installation_id")
	if installationID == "" {
		h.redirectError(w, r, "missing_installation")
		return
	}

	integration := &models.Integration{
		ID:                uuid.New().String(),
		OrgID:             payload.OrgID,
		Provider:          models.ProviderGitHub,
		Status:            models.StatusConnected,
		AuthType:          models.AuthAppAssertion,
		ExternalAccountID: installationID,
		Config:            map[string]string{tokenbroker.KeyInstallationID: installationID},
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	if err := h.repo.UpsertIntegration(ctx, integration); err != nil {
		h.logger.ErrorContext(ctx, "failed to bind github installation",
			logging.OrgID(payload.OrgID),
			logging.Error(err),
		)
		h.redirectError(w, r, "connect_failed")
		return
	}

	h.logger.InfoContext(ctx, "github integration connected",
		logging.OrgID(payload.OrgID),
		"installation_id", installationID,
	)
	h.redirectConnected(w, r, models.ProviderGitHub)
}

// SlackInstall handles GET /api/v1/integrations/slack/install.
func (h *ConnectHandler) SlackInstall(w http.ResponseWriter, r *http.Request) {
	state, ok := h.signState(w, r)
	if !ok {
		return
	}
	http.Redirect(w, r, h.slackOAuth.AuthorizeURL(state), http.StatusFound)
}

// SlackCallback handles GET /api/v1/integrations/slack/callback. It
// exchanges the code, seals the bot token into the vault, and syncs the
// workspace channel list.
func (h *ConnectHandler) SlackCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	payload, err := h.states.Verify(q.Get("state"))
	if err != nil {
		h.redirectError(w, r, "invalid_state")
		return
	}
	if denied := q.Get("error"); denied != "" {
		h.redirectError(w, r, denied)
		return
	}

	result, err := h.slackOAuth.Exchange(ctx, q.Get("code"))
	if err != nil {
		h.logger.ErrorContext(ctx, "slack code exchange failed",
			logging.OrgID(payload.OrgID),
			logging.Error(err),
		)
		h.redirectError(w, r, "exchange_failed")
		return
	}

	sealed, err := h.vault.Encrypt(result.BotToken)
	if err != nil {
		h.redirectError(w, r, "connect_failed")
		return
	}

	integration := &models.Integration{
		ID:                uuid.New().String(),
		OrgID:             payload.OrgID,
		Provider:          models.ProviderSlack,
		Status:            models.StatusConnected,
		AuthType:          models.AuthOAuth,
		ExternalAccountID: result.TeamID,
		Config: map[string]string{
			tokenbroker.KeyBotToken: sealed,
			tokenbroker.KeyTeamID:   result.TeamID,
			"team_name":             result.TeamName,
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := h.repo.UpsertIntegration(ctx, integration); err != nil {
		h.logger.ErrorContext(ctx, "failed to store slack integration",
			logging.OrgID(payload.OrgID),
			logging.Error(err),
		)
		h.redirectError(w, r, "connect_failed")
		return
	}

	if result.AuthedUserID != "" {
		account := &models.ProviderAccount{
			ID:             uuid.New().String(),
			OrgID:          payload.OrgID,
			Provider:       models.ProviderSlack,
			ProviderUserID: result.AuthedUserID,
			EncryptedToken: sealed,
		}
		if err := h.repo.UpsertProviderAccount(ctx, account); err != nil {
			h.logger.WarnContext(ctx, "failed to record authorizing user",
				logging.OrgID(payload.OrgID),
				logging.Error(err),
			)
		}
	}

	h.syncSlackChannels(r, integration, result.BotToken)

	h.logger.InfoContext(ctx, "slack integration connected",
		logging.OrgID(payload.OrgID),
		"team_id", result.TeamID,
	)
	h.redirectConnected(w, r, models.ProviderSlack)
}

// syncSlackChannels pulls the workspace channel list so connections can
// be configured immediately. Sync failures degrade the resource list,
// not the connect flow.
func (h *ConnectHandler) syncSlackChannels(r *http.Request, integration *models.Integration, token string) {
	ctx := r.Context()

	channels, err := h.slackClient.ListChannels(ctx, token)
	if err != nil {
		h.logger.WarnContext(ctx, "slack channel sync failed",
			logging.IntegrationID(integration.ID),
			logging.Error(err),
		)
		return
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
			h.logger.WarnContext(ctx, "failed to store slack channel",
				logging.IntegrationID(integration.ID),
				logging.Error(err),
			)
		}
	}
}
