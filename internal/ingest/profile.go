package ingest

import (
	"context"
	"fmt"

	"github.com/devsignal-systems/devsignal/internal/models"
)

// ProfileLookup resolves a provider user id to a human display name.
// Lookups are best-effort enrichment; callers fall back to the raw user
// id when one fails.
type ProfileLookup interface {
	DisplayName(ctx context.Context, integration *models.Integration, providerUserID string) (string, error)
}

type profileTokenSource interface {
	GetValidToken(ctx context.Context, integrationID string) (string, error)
}

type userInfoClient interface {
	UserInfo(ctx context.Context, token, userID string) (string, error)
}

// SlackProfileLookup resolves Slack author display names through the
// Web API, authenticating with the integration's brokered token.
type SlackProfileLookup struct {
	tokens profileTokenSource
	client userInfoClient
}

// NewSlackProfileLookup builds the lookup used to enrich Slack message
// authors.
func NewSlackProfileLookup(tokens profileTokenSource, client userInfoClient) *SlackProfileLookup {
	return &SlackProfileLookup{tokens: tokens, client: client}
}

// DisplayName fetches the user's profile name from Slack.
func (l *SlackProfileLookup) DisplayName(ctx context.Context, integration *models.Integration, providerUserID string) (string, error) {
	token, err := l.tokens.GetValidToken(ctx, integration.ID)
	if err != nil {
		return "", fmt.Errorf("profile token: %w", err)
	}
	name, err := l.client.UserInfo(ctx, token, providerUserID)
	if err != nil {
		return "", err
	}
	return name, nil
}
