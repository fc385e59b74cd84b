package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devsignal-systems/devsignal/internal/models"
)

const queryTimeout = 5 * time.Second

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return r.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Organizations and projects

func (r *PostgresRepository) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT id, name, created_at FROM organizations WHERE id = $1`

	var org models.Organization
	err := r.pool.QueryRow(ctx, query, id).Scan(&org.ID, &org.Name, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &org, nil
}

func (r *PostgresRepository) CreateOrganization(ctx context.Context, org *models.Organization) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `INSERT INTO organizations (id, name, created_at) VALUES ($1, $2, $3)`
	if _, err := r.pool.Exec(ctx, query, org.ID, org.Name, org.CreatedAt); err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetProject(ctx context.Context, id string) (*models.Project, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT id, organization_id, name, created_at FROM projects WHERE id = $1`

	var p models.Project
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.OrgID, &p.Name, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) CreateProject(ctx context.Context, project *models.Project) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `INSERT INTO projects (id, organization_id, name, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.pool.Exec(ctx, query, project.ID, project.OrgID, project.Name, project.CreatedAt); err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListProjectsByOrg(ctx context.Context, orgID string) ([]*models.Project, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT id, organization_id, name, created_at FROM projects WHERE organization_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

func (r *PostgresRepository) CreateMember(ctx context.Context, member *models.OrganizationMember) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO organization_members (id, organization_id, user_id, name, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		member.ID, member.OrgID, member.UserID, member.Name, member.Email, member.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

// Integrations

const integrationColumns = `id, organization_id, provider, status, auth_type, external_account_id, config, created_at, updated_at`

func (r *PostgresRepository) scanIntegration(row pgx.Row) (*models.Integration, error) {
	var i models.Integration
	err := row.Scan(
		&i.ID, &i.OrgID, &i.Provider, &i.Status, &i.AuthType,
		&i.ExternalAccountID, &i.Config, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan integration: %w", err)
	}
	return &i, nil
}

func (r *PostgresRepository) GetIntegration(ctx context.Context, id string) (*models.Integration, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE id = $1`
	return r.scanIntegration(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) GetIntegrationByOrgProvider(ctx context.Context, orgID string, provider models.Provider) (*models.Integration, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE organization_id = $1 AND provider = $2`
	return r.scanIntegration(r.pool.QueryRow(ctx, query, orgID, provider))
}

func (r *PostgresRepository) GetIntegrationByExternalAccount(ctx context.Context, provider models.Provider, externalAccountID string) (*models.Integration, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE provider = $1 AND external_account_id = $2`
	return r.scanIntegration(r.pool.QueryRow(ctx, query, provider, externalAccountID))
}

func (r *PostgresRepository) ListIntegrationsByOrg(ctx context.Context, orgID string) ([]*models.Integration, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE organization_id = $1 ORDER BY provider`

	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	defer rows.Close()

	var integrations []*models.Integration
	for rows.Next() {
		i, err := r.scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		integrations = append(integrations, i)
	}
	return integrations, rows.Err()
}

func (r *PostgresRepository) UpsertIntegration(ctx context.Context, integration *models.Integration) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO integrations (id, organization_id, provider, status, auth_type, external_account_id, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (organization_id, provider) DO UPDATE SET
			status = EXCLUDED.status,
			auth_type = EXCLUDED.auth_type,
			external_account_id = EXCLUDED.external_account_id,
			config = EXCLUDED.config,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		integration.ID, integration.OrgID, integration.Provider, integration.Status,
		integration.AuthType, integration.ExternalAccountID, integration.Config,
		integration.CreatedAt, integration.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert integration: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateIntegrationConfig(ctx context.Context, id string, config map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `UPDATE integrations SET config = $2, updated_at = now() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, config)
	if err != nil {
		return fmt.Errorf("failed to update integration config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) DisconnectIntegration(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		UPDATE integrations
		SET status = $2, config = '{}'::jsonb, external_account_id = '', updated_at = now()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, models.StatusNotConnected)
	if err != nil {
		return fmt.Errorf("failed to disconnect integration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Provider accounts

func (r *PostgresRepository) UpsertProviderAccount(ctx context.Context, account *models.ProviderAccount) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO provider_accounts (id, organization_id, provider, provider_user_id, encrypted_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider, provider_user_id, organization_id) DO UPDATE SET
			encrypted_token = EXCLUDED.encrypted_token,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		account.ID, account.OrgID, account.Provider, account.ProviderUserID,
		account.EncryptedToken, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert provider account: %w", err)
	}
	return nil
}

// Webhook audit records

func (r *PostgresRepository) CreateWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO webhook_events (id, provider, provider_event_id, event_kind, payload, received_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		event.ID, event.Provider, event.ProviderEventID, event.EventKind,
		event.Payload, event.ReceivedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateDelivery
		}
		return fmt.Errorf("failed to create webhook event: %w", err)
	}
	return nil
}

// Canonical events

func (r *PostgresRepository) CreateRawEvent(ctx context.Context, event *models.RawEvent) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO raw_events (id, provider, source_id, event_type, author_name, author_email,
			identity_id, member_id, project_id, resource_id, event_timestamp, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.pool.Exec(ctx, query,
		event.ID, event.Provider, event.SourceID, event.EventType,
		event.AuthorName, event.AuthorEmail, event.IdentityID, event.MemberID,
		event.ProjectID, event.ResourceID, event.Timestamp, event.Content,
		event.Metadata, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create raw event: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkRawEventProcessed(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `UPDATE raw_events SET processed_at = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark raw event processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Identities and contributor mapping

func (r *PostgresRepository) GetIdentity(ctx context.Context, orgID string, provider models.Provider, providerUserID string) (*models.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT id, organization_id, provider, provider_user_id, display_name, profile, created_at
		FROM identities
		WHERE organization_id = $1 AND provider = $2 AND provider_user_id = $3
	`
	var i models.Identity
	err := r.pool.QueryRow(ctx, query, orgID, provider, providerUserID).Scan(
		&i.ID, &i.OrgID, &i.Provider, &i.ProviderUserID, &i.DisplayName, &i.Profile, &i.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return &i, nil
}

func (r *PostgresRepository) CreateIdentity(ctx context.Context, identity *models.Identity) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO identities (id, organization_id, provider, provider_user_id, display_name, profile, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		identity.ID, identity.OrgID, identity.Provider, identity.ProviderUserID,
		identity.DisplayName, identity.Profile, identity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetContributorMapByIdentity(ctx context.Context, identityID string) (*models.ContributorMap, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT id, identity_id, member_id, created_at FROM contributor_maps WHERE identity_id = $1`

	var m models.ContributorMap
	err := r.pool.QueryRow(ctx, query, identityID).Scan(&m.ID, &m.IdentityID, &m.MemberID, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get contributor map: %w", err)
	}
	return &m, nil
}

func (r *PostgresRepository) CreateContributorMap(ctx context.Context, m *models.ContributorMap) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `INSERT INTO contributor_maps (id, identity_id, member_id, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.pool.Exec(ctx, query, m.ID, m.IdentityID, m.MemberID, m.CreatedAt); err != nil {
		return fmt.Errorf("failed to create contributor map: %w", err)
	}
	return nil
}

// Synced resources

func (r *PostgresRepository) UpsertIntegrationResource(ctx context.Context, resource *models.IntegrationResource) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO integration_resources (id, integration_id, provider, provider_id, name, kind, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (integration_id, provider, provider_id) DO UPDATE SET
			name = EXCLUDED.name,
			kind = EXCLUDED.kind,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		resource.ID, resource.IntegrationID, resource.Provider, resource.ProviderID,
		resource.Name, resource.Kind, resource.CreatedAt, resource.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert integration resource: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteIntegrationResource(ctx context.Context, integrationID, providerID string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `DELETE FROM integration_resources WHERE integration_id = $1 AND provider_id = $2`
	if _, err := r.pool.Exec(ctx, query, integrationID, providerID); err != nil {
		return fmt.Errorf("failed to delete integration resource: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetIntegrationResource(ctx context.Context, integrationID, providerID string) (*models.IntegrationResource, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT id, integration_id, provider, provider_id, name, kind, created_at, updated_at
		FROM integration_resources
		WHERE integration_id = $1 AND provider_id = $2
	`
	var res models.IntegrationResource
	err := r.pool.QueryRow(ctx, query, integrationID, providerID).Scan(
		&res.ID, &res.IntegrationID, &res.Provider, &res.ProviderID,
		&res.Name, &res.Kind, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get integration resource: %w", err)
	}
	return &res, nil
}

func (r *PostgresRepository) ListIntegrationResources(ctx context.Context, integrationID string) ([]*models.IntegrationResource, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT id, integration_id, provider, provider_id, name, kind, created_at, updated_at
		FROM integration_resources
		WHERE integration_id = $1
		ORDER BY name
	`
	rows, err := r.pool.Query(ctx, query, integrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list integration resources: %w", err)
	}
	defer rows.Close()

	var resources []*models.IntegrationResource
	for rows.Next() {
		var res models.IntegrationResource
		if err := rows.Scan(
			&res.ID, &res.IntegrationID, &res.Provider, &res.ProviderID,
			&res.Name, &res.Kind, &res.CreatedAt, &res.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan integration resource: %w", err)
		}
		resources = append(resources, &res)
	}
	return resources, rows.Err()
}

// Per-project resource selections

func (r *PostgresRepository) ListConnectionsByIntegration(ctx context.Context, integrationID string) ([]*models.IntegrationConnection, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT id, project_id, integration_id, resource_ids, created_at, updated_at
		FROM integration_connections
		WHERE integration_id = $1
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, integrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list integration connections: %w", err)
	}
	defer rows.Close()

	var conns []*models.IntegrationConnection
	for rows.Next() {
		var c models.IntegrationConnection
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.IntegrationID, &c.ResourceIDs, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan integration connection: %w", err)
		}
		conns = append(conns, &c)
	}
	return conns, rows.Err()
}

func (r *PostgresRepository) SetProjectConnection(ctx context.Context, conn *models.IntegrationConnection) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO integration_connections (id, project_id, integration_id, resource_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (project_id, integration_id) DO UPDATE SET
			resource_ids = EXCLUDED.resource_ids,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		conn.ID, conn.ProjectID, conn.IntegrationID, conn.ResourceIDs,
		conn.CreatedAt, conn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to set project connection: %w", err)
	}
	return nil
}
