// Package tokenbroker obtains, caches, and refreshes provider access
// tokens. Tokens live encrypted inside the Integration config; the
// broker is the only component that decrypts them, and decrypted values
// never appear in logs or responses.
package tokenbroker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devsignal-systems/devsignal/internal/metrics"
	"github.com/devsignal-systems/devsignal/internal/models"
	"github.com/devsignal-systems/devsignal/internal/provider/github"
	"github.com/devsignal-systems/devsignal/internal/repository"
	"github.com/devsignal-systems/devsignal/internal/vault"
)

// Config keys inside Integration.Config. Secret-bearing keys hold vault
// envelopes, never plaintext.
const (
	KeyInstallationID = "installation_id"
	KeyToken          = "token"
	KeyTokenExpiresAt = "token_expires_at"
	KeyBotToken       = "bot_token"
	KeyTeamID         = "team_id"
)

// expiryMargin is the safety window: a stored token expiring within it
// is treated as already stale and refreshed.
const expiryMargin = 60 * time.Second

// ErrNotConfigured marks a missing installation linkage or credential.
// Configuration errors are fatal to the calling operation and never
// retried.
var ErrNotConfigured = errors.New("tokenbroker: integration is not configured")

// Exchanger trades a signed app assertion for an installation token.
type Exchanger interface {
	CreateInstallationToken(ctx context.Context, assertion, installationID string) (*github.InstallationToken, error)
}

// Broker serves valid provider tokens for integrations.
type Broker struct {
	repo      repository.Repository
	vault     *vault.Vault
	signer    *github.AssertionSigner
	exchanger Exchanger
	now       func() time.Time
}

// New creates a Broker. signer and exchanger may be nil when no
// app-assertion provider is configured; OAuth integrations still work.
func New(repo repository.Repository, v *vault.Vault, signer *github.AssertionSigner, exchanger Exchanger) *Broker {
	return &Broker{
		repo:      repo,
		vault:     v,
		signer:    signer,
		exchanger: exchanger,
		now:       time.Now,
	}
}

// GetValidToken returns a provider access token for the integration,
// refreshing it through the provider when the stored one is absent or
// inside the expiry margin.
//
// Two callers racing on an expiring token each refresh independently;
// both writes are self-consistent and the provider tolerates multiple
// live tokens, so no coordination is needed.
func (b *Broker) GetValidToken(ctx context.Context, integrationID string) (string, error) {
	integration, err := b.repo.GetIntegration(ctx, integrationID)
	if err != nil {
		return "", fmt.Errorf("tokenbroker: load integration: %w", err)
	}

	switch integration.AuthType {
	case models.AuthOAuth:
		return b.oauthToken(integration)
	case models.AuthAppAssertion:
		return b.installationToken(ctx, integration)
	default:
		return "", fmt.Errorf("tokenbroker: unknown auth type %q", integration.AuthType)
	}
}

// oauthToken returns the stored bot token. OAuth bot tokens do not
// expire; there is nothing to refresh.
func (b *Broker) oauthToken(integration *models.Integration) (string, error) {
	envelope, ok := integration.ConfigValue(KeyBotToken)
	if !ok || envelope == "" {
		return "", ErrNotConfigured
	}
	token, err := b.vault.Decrypt(envelope)
	if err != nil {
		return "", fmt.Errorf("tokenbroker: decrypt bot token: %w", err)
	}
	metrics.TokenCacheHitsTotal.Inc()
	return token, nil
}

func (b *Broker) installationToken(ctx context.Context, integration *models.Integration) (string, error) {
	if token, ok := b.cachedToken(integration); ok {
		metrics.TokenCacheHitsTotal.Inc()
		return token, nil
	}

	installationID, ok := integration.ConfigValue(KeyInstallationID)
	if !ok || installationID == "" {
		return "", ErrNotConfigured
	}
	if b.signer == nil || b.exchanger == nil {
		return "", ErrNotConfigured
	}

	assertion, err := b.signer.Sign()
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(string(integration.Provider), "error").Inc()
		return "", fmt.Errorf("tokenbroker: build assertion: %w", err)
	}

	fresh, err := b.exchanger.CreateInstallationToken(ctx, assertion, installationID)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(string(integration.Provider), "error").Inc()
		return "", fmt.Errorf("tokenbroker: token exchange: %w", err)
	}

	envelope, err := b.vault.Encrypt(fresh.Token)
	if err != nil {
		return "", fmt.Errorf("tokenbroker: encrypt token: %w", err)
	}

	// Overwrite only the token fields; unrelated config keys survive.
	integration.SetConfigValue(KeyToken, envelope)
	integration.SetConfigValue(KeyTokenExpiresAt, fresh.ExpiresAt.UTC().Format(time.RFC3339))
	if err := b.repo.UpdateIntegrationConfig(ctx, integration.ID, integration.Config); err != nil {
		return "", fmt.Errorf("tokenbroker: persist refreshed token: %w", err)
	}

	metrics.TokenRefreshesTotal.WithLabelValues(string(integration.Provider), "ok").Inc()
	return fresh.Token, nil
}

// cachedToken decrypts and returns the stored token when its expiry is
// further out than the safety margin.
func (b *Broker) cachedToken(integration *models.Integration) (string, bool) {
	envelope, ok := integration.ConfigValue(KeyToken)
	if !ok || envelope == "" {
		return "", false
	}
	expiresRaw, ok := integration.ConfigValue(KeyTokenExpiresAt)
	if !ok {
		return "", false
	}
	expires, err := time.Parse(time.RFC3339, expiresRaw)
	if err != nil {
		return "", false
	}
	if !expires.After(b.now().Add(expiryMargin)) {
		return "", false
	}

	token, err := b.vault.Decrypt(envelope)
	if err != nil {
		// A corrupt envelope forces a refresh rather than failing the call.
		return "", false
	}
	return token, true
}
