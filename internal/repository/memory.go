package repository

import (
	"context"
	"sync"
	"time"

	"github.com/devsignal-systems/devsignal/internal/models"
)

// InMemoryRepository is a map-backed Repository for development and
// tests. It mirrors the uniqueness semantics of the postgres schema.
type InMemoryRepository struct {
	mu sync.RWMutex

	orgs          map[string]*models.Organization
	projects      map[string]*models.Project
	members       map[string]*models.OrganizationMember
	integrations  map[string]*models.Integration
	accounts      map[string]*models.ProviderAccount
	webhookEvents map[string]*models.WebhookEvent
	deliveryKeys  map[string]bool // provider + "\x00" + provider event id
	rawEvents     map[string]*models.RawEvent
	rawOrder      []string
	identities    map[string]*models.Identity
	contributors  map[string]*models.ContributorMap // keyed by identity id
	resources     map[string]*models.IntegrationResource
	connections   map[string]*models.IntegrationConnection // keyed by project+integration
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		orgs:          make(map[string]*models.Organization),
		projects:      make(map[string]*models.Project),
		members:       make(map[string]*models.OrganizationMember),
		integrations:  make(map[string]*models.Integration),
		accounts:      make(map[string]*models.ProviderAccount),
		webhookEvents: make(map[string]*models.WebhookEvent),
		deliveryKeys:  make(map[string]bool),
		rawEvents:     make(map[string]*models.RawEvent),
		identities:    make(map[string]*models.Identity),
		contributors:  make(map[string]*models.ContributorMap),
		resources:     make(map[string]*models.IntegrationResource),
		connections:   make(map[string]*models.IntegrationConnection),
	}
}

func (r *InMemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Organizations and projects

func (r *InMemoryRepository) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	org, ok := r.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return org, nil
}

func (r *InMemoryRepository) CreateOrganization(ctx context.Context, org *models.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orgs[org.ID] = org
	return nil
}

func (r *InMemoryRepository) GetProject(ctx context.Context, id string) (*models.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (r *InMemoryRepository) CreateProject(ctx context.Context, project *models.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[project.ID] = project
	return nil
}

func (r *InMemoryRepository) ListProjectsByOrg(ctx context.Context, orgID string) ([]*models.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var projects []*models.Project
	for _, p := range r.projects {
		if p.OrgID == orgID {
			projects = append(projects, p)
		}
	}
	return projects, nil
}

func (r *InMemoryRepository) CreateMember(ctx context.Context, member *models.OrganizationMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[member.ID] = member
	return nil
}

// Integrations

func (r *InMemoryRepository) GetIntegration(ctx context.Context, id string) (*models.Integration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.integrations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return i, nil
}

func (r *InMemoryRepository) GetIntegrationByOrgProvider(ctx context.Context, orgID string, provider models.Provider) (*models.Integration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, i := range r.integrations {
		if i.OrgID == orgID && i.Provider == provider {
			return i, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryRepository) GetIntegrationByExternalAccount(ctx context.Context, provider models.Provider, externalAccountID string) (*models.Integration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, i := range r.integrations {
		if i.Provider == provider && i.ExternalAccountID == externalAccountID {
			return i, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryRepository) ListIntegrationsByOrg(ctx context.Context, orgID string) ([]*models.Integration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var integrations []*models.Integration
	for _, i := range r.integrations {
		if i.OrgID == orgID {
			integrations = append(integrations, i)
		}
	}
	return integrations, nil
}

func (r *InMemoryRepository) UpsertIntegration(ctx context.Context, integration *models.Integration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.integrations {
		if existing.OrgID == integration.OrgID && existing.Provider == integration.Provider {
			integration.ID = existing.ID
			r.integrations[id] = integration
			return nil
		}
	}
	r.integrations[integration.ID] = integration
	return nil
}

func (r *InMemoryRepository) UpdateIntegrationConfig(ctx context.Context, id string, config map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.integrations[id]
	if !ok {
		return ErrNotFound
	}
	i.Config = config
	i.UpdatedAt = time.Now()
	return nil
}

func (r *InMemoryRepository) DisconnectIntegration(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.integrations[id]
	if !ok {
		return ErrNotFound
	}
	i.Status = models.StatusNotConnected
	i.Config = map[string]string{}
	i.ExternalAccountID = ""
	i.UpdatedAt = time.Now()
	return nil
}

// Provider accounts

func (r *InMemoryRepository) UpsertProviderAccount(ctx context.Context, account *models.ProviderAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.accounts {
		if existing.Provider == account.Provider &&
			existing.ProviderUserID == account.ProviderUserID &&
			existing.OrgID == account.OrgID {
			account.ID = existing.ID
			r.accounts[id] = account
			return nil
		}
	}
	r.accounts[account.ID] = account
	return nil
}

// Webhook audit records

func (r *InMemoryRepository) CreateWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.ProviderEventID != "" {
		key := string(event.Provider) + "\x00" + event.ProviderEventID
		if r.deliveryKeys[key] {
			return ErrDuplicateDelivery
		}
		r.deliveryKeys[key] = true
	}
	r.webhookEvents[event.ID] = event
	return nil
}

// Canonical events

func (r *InMemoryRepository) CreateRawEvent(ctx context.Context, event *models.RawEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rawEvents[event.ID] = event
	r.rawOrder = append(r.rawOrder, event.ID)
	return nil
}

func (r *InMemoryRepository) MarkRawEventProcessed(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rawEvents[id]
	if !ok {
		return ErrNotFound
	}
	e.ProcessedAt = &at
	return nil
}

// Identities and contributor mapping

func (r *InMemoryRepository) GetIdentity(ctx context.Context, orgID string, provider models.Provider, providerUserID string) (*models.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, i := range r.identities {
		if i.OrgID == orgID && i.Provider == provider && i.ProviderUserID == providerUserID {
			return i, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryRepository) CreateIdentity(ctx context.Context, identity *models.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identities[identity.ID] = identity
	return nil
}

func (r *InMemoryRepository) GetContributorMapByIdentity(ctx context.Context, identityID string) (*models.ContributorMap, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.contributors[identityID]
	if !ok {
		return nil, ErrNotFound
	}
	return m, nil
}

func (r *InMemoryRepository) CreateContributorMap(ctx context.Context, m *models.ContributorMap) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contributors[m.IdentityID] = m
	return nil
}

// Synced resources

func (r *InMemoryRepository) UpsertIntegrationResource(ctx context.Context, resource *models.IntegrationResource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := resource.IntegrationID + "\x00" + resource.ProviderID
	if existing, ok := r.resources[key]; ok {
		resource.ID = existing.ID
	}
	r.resources[key] = resource
	return nil
}

func (r *InMemoryRepository) DeleteIntegrationResource(ctx context.Context, integrationID, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.resources, integrationID+"\x00"+providerID)
	return nil
}

func (r *InMemoryRepository) GetIntegrationResource(ctx context.Context, integrationID, providerID string) (*models.IntegrationResource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[integrationID+"\x00"+providerID]
	if !ok {
		return nil, ErrNotFound
	}
	return res, nil
}

func (r *InMemoryRepository) ListIntegrationResources(ctx context.Context, integrationID string) ([]*models.IntegrationResource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var resources []*models.IntegrationResource
	for _, res := range r.resources {
		if res.IntegrationID == integrationID {
			resources = append(resources, res)
		}
	}
	return resources, nil
}

// Per-project resource selections

func (r *InMemoryRepository) ListConnectionsByIntegration(ctx context.Context, integrationID string) ([]*models.IntegrationConnection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var conns []*models.IntegrationConnection
	for _, c := range r.connections {
		if c.IntegrationID == integrationID {
			conns = append(conns, c)
		}
	}
	return conns, nil
}

func (r *InMemoryRepository) SetProjectConnection(ctx context.Context, conn *models.IntegrationConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := conn.ProjectID + "\x00" + conn.IntegrationID
	if existing, ok := r.connections[key]; ok {
		conn.ID = existing.ID
	}
	r.connections[key] = conn
	return nil
}

// WebhookEventCount reports how many audit records exist. Test helper.
func (r *InMemoryRepository) WebhookEventCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.webhookEvents)
}

// RawEventsInOrder returns raw events in creation order. Test helper.
func (r *InMemoryRepository) RawEventsInOrder() []*models.RawEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := make([]*models.RawEvent, 0, len(r.rawOrder))
	for _, id := range r.rawOrder {
		events = append(events, r.rawEvents[id])
	}
	return events
}
