package repository

import (
	"context"
	"errors"
	"time"

	"github.com/devsignal-systems/devsignal/internal/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateDelivery = errors.New("duplicate webhook delivery")
)

// Repository is the persistence boundary for the integration hub.
type Repository interface {
	// Ping reports whether the backing store is reachable. Used by
	// readiness probes.
	Ping(ctx context.Context) error

	// Organizations and projects
	GetOrganization(ctx context.Context, id string) (*models.Organization, error)
	CreateOrganization(ctx context.Context, org *models.Organization) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	CreateProject(ctx context.Context, project *models.Project) error
	ListProjectsByOrg(ctx context.Context, orgID string) ([]*models.Project, error)
	CreateMember(ctx context.Context, member *models.OrganizationMember) error

	// Integrations
	GetIntegration(ctx context.Context, id string) (*models.Integration, error)
	GetIntegrationByOrgProvider(ctx context.Context, orgID string, provider models.Provider) (*models.Integration, error)
	GetIntegrationByExternalAccount(ctx context.Context, provider models.Provider, externalAccountID string) (*models.Integration, error)
	ListIntegrationsByOrg(ctx context.Context, orgID string) ([]*models.Integration, error)
	UpsertIntegration(ctx context.Context, integration *models.Integration) error
	UpdateIntegrationConfig(ctx context.Context, id string, config map[string]string) error
	DisconnectIntegration(ctx context.Context, id string) error

	// Provider accounts (legacy per-user OAuth identities)
	UpsertProviderAccount(ctx context.Context, account *models.ProviderAccount) error

	// Webhook audit records
	CreateWebhookEvent(ctx context.Context, event *models.WebhookEvent) error

	// Canonical events
	CreateRawEvent(ctx context.Context, event *models.RawEvent) error
	MarkRawEventProcessed(ctx context.Context, id string, at time.Time) error

	// Identities and contributor mapping
	GetIdentity(ctx context.Context, orgID string, provider models.Provider, providerUserID string) (*models.Identity, error)
	CreateIdentity(ctx context.Context, identity *models.Identity) error
	GetContributorMapByIdentity(ctx context.Context, identityID string) (*models.ContributorMap, error)
	CreateContributorMap(ctx context.Context, m *models.ContributorMap) error

	// Synced resources
	UpsertIntegrationResource(ctx context.Context, resource *models.IntegrationResource) error
	DeleteIntegrationResource(ctx context.Context, integrationID, providerID string) error
	GetIntegrationResource(ctx context.Context, integrationID, providerID string) (*models.IntegrationResource, error)
	ListIntegrationResources(ctx context.Context, integrationID string) ([]*models.IntegrationResource, error)

	// Per-project resource selections
	ListConnectionsByIntegration(ctx context.Context, integrationID string) ([]*models.IntegrationConnection, error)
	SetProjectConnection(ctx context.Context, conn *models.IntegrationConnection) error
}
