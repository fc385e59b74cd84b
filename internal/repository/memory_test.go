package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devsignal-systems/devsignal/internal/models"
)

func TestCreateWebhookEventDuplicateDelivery(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	first := &models.WebhookEvent{
		ID:              uuid.New().String(),
		Provider:        models.ProviderGitHub,
		ProviderEventID: "d-1",
		EventKind:       "push",
		ReceivedAt:      time.Now(),
	}
	require.NoError(t, repo.CreateWebhookEvent(ctx, first))

	dup := &models.WebhookEvent{
		ID:              uuid.New().String(),
		Provider:        models.ProviderGitHub,
		ProviderEventID: "d-1",
		EventKind:       "push",
		ReceivedAt:      time.Now(),
	}
	assert.ErrorIs(t, repo.CreateWebhookEvent(ctx, dup), ErrDuplicateDelivery)

	// Same id under a different provider is a distinct delivery.
	other := &models.WebhookEvent{
		ID:              uuid.New().String(),
		Provider:        models.ProviderSlack,
		ProviderEventID: "d-1",
		EventKind:       "event_callback",
		ReceivedAt:      time.Now(),
	}
	assert.NoError(t, repo.CreateWebhookEvent(ctx, other))
}

func TestCreateWebhookEventEmptyProviderEventID(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	// Deliveries without a provider event id never collide.
	for i := 0; i < 2; i++ {
		event := &models.WebhookEvent{
			ID:         uuid.New().String(),
			Provider:   models.ProviderGitHub,
			EventKind:  "push",
			ReceivedAt: time.Now(),
		}
		require.NoError(t, repo.CreateWebhookEvent(ctx, event))
	}
	assert.Equal(t, 2, repo.WebhookEventCount())
}

func TestUpsertIntegrationByOrgProvider(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	orgID := uuid.New().String()

	first := &models.Integration{
		ID:       uuid.New().String(),
		OrgID:    orgID,
		Provider: models.ProviderGitHub,
		Status:   models.StatusConnected,
		AuthType: models.AuthAppAssertion,
	}
	require.NoError(t, repo.UpsertIntegration(ctx, first))

	// A second connect for the same (org, provider) replaces state but
	// keeps the row identity.
	second := &models.Integration{
		ID:                uuid.New().String(),
		OrgID:             orgID,
		Provider:          models.ProviderGitHub,
		Status:            models.StatusConnected,
		AuthType:          models.AuthAppAssertion,
		ExternalAccountID: "9001",
	}
	require.NoError(t, repo.UpsertIntegration(ctx, second))

	got, err := repo.GetIntegrationByOrgProvider(ctx, orgID, models.ProviderGitHub)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "9001", got.ExternalAccountID)

	all, err := repo.ListIntegrationsByOrg(ctx, orgID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetIntegrationByExternalAccount(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	integration := &models.Integration{
		ID:                uuid.New().String(),
		OrgID:             uuid.New().String(),
		Provider:          models.ProviderSlack,
		Status:            models.StatusConnected,
		AuthType:          models.AuthOAuth,
		ExternalAccountID: "T123",
	}
	require.NoError(t, repo.UpsertIntegration(ctx, integration))

	got, err := repo.GetIntegrationByExternalAccount(ctx, models.ProviderSlack, "T123")
	require.NoError(t, err)
	assert.Equal(t, integration.ID, got.ID)

	_, err = repo.GetIntegrationByExternalAccount(ctx, models.ProviderGitHub, "T123")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertIntegrationResourceKeepsIdentity(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	integrationID := uuid.New().String()

	first := &models.IntegrationResource{
		ID:            uuid.New().String(),
		IntegrationID: integrationID,
		Provider:      models.ProviderGitHub,
		ProviderID:    "555",
		Name:          "acme/api",
		Kind:          "repository",
	}
	require.NoError(t, repo.UpsertIntegrationResource(ctx, first))

	renamed := &models.IntegrationResource{
		ID:            uuid.New().String(),
		IntegrationID: integrationID,
		Provider:      models.ProviderGitHub,
		ProviderID:    "555",
		Name:          "acme/api-v2",
		Kind:          "repository",
	}
	require.NoError(t, repo.UpsertIntegrationResource(ctx, renamed))

	got, err := repo.GetIntegrationResource(ctx, integrationID, "555")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "acme/api-v2", got.Name)
}
