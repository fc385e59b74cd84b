package models

import (
	"encoding/json"
	"time"
)

// Provider identifies an external collaboration provider.
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderSlack  Provider = "slack"
)

// IntegrationStatus is the connection state of an Integration.
type IntegrationStatus string

const (
	StatusNotConnected IntegrationStatus = "NOT_CONNECTED"
	StatusConnected    IntegrationStatus = "CONNECTED"
)

// AuthType distinguishes how an Integration authenticates to its provider.
type AuthType string

const (
	AuthOAuth        AuthType = "OAUTH"
	AuthAppAssertion AuthType = "APP_ASSERTION"
)

// EventType is the canonical activity classification for raw events.
type EventType string

const (
	EventCommit      EventType = "COMMIT"
	EventPullRequest EventType = "PULL_REQUEST"
	EventIssue       EventType = "ISSUE"
	EventMessage     EventType = "MESSAGE"
)

// Organization is the tenant root. Only the fields the ingestion core
// touches are modeled here.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// OrganizationMember is a user's membership in an organization.
type OrganizationMember struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"organization_id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Project is a tenant workspace that consumes integration activity.
type Project struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"organization_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Integration is the per-(organization, provider) connection record.
// It is never deleted on disconnect, only reset to NOT_CONNECTED with
// its config cleared.
type Integration struct {
	ID                string            `json:"id"`
	OrgID             string            `json:"organization_id"`
	Provider          Provider          `json:"provider"`
	Status            IntegrationStatus `json:"status"`
	AuthType          AuthType          `json:"auth_type"`
	ExternalAccountID string            `json:"external_account_id"`
	// Config holds token material and provider-specific fields. Secret
	// values inside it are vault envelopes, never plaintext.
	Config    map[string]string `json:"-"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ConfigValue returns a config field, with ok reporting presence.
func (i *Integration) ConfigValue(key string) (string, bool) {
	if i.Config == nil {
		return "", false
	}
	v, ok := i.Config[key]
	return v, ok
}

// SetConfigValue sets a config field, preserving unrelated keys.
func (i *Integration) SetConfigValue(key, value string) {
	if i.Config == nil {
		i.Config = make(map[string]string)
	}
	i.Config[key] = value
}

// ProviderAccount is the legacy per-user OAuth identity, unique per
// (provider, provider user id, organization).
type ProviderAccount struct {
	ID             string    `json:"id"`
	OrgID          string    `json:"organization_id"`
	Provider       Provider  `json:"provider"`
	ProviderUserID string    `json:"provider_user_id"`
	// EncryptedToken is a vault envelope.
	EncryptedToken string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// WebhookEvent is the immutable audit record of a verified inbound
// delivery. It is written once and never mutated.
type WebhookEvent struct {
	ID              string          `json:"id"`
	Provider        Provider        `json:"provider"`
	ProviderEventID string          `json:"provider_event_id,omitempty"`
	EventKind       string          `json:"event_kind"`
	Payload         json.RawMessage `json:"payload"`
	ReceivedAt      time.Time       `json:"received_at"`
}

// RawEvent is the canonical normalized activity unit. One is created
// per (matching project x inbound item); immutable afterwards except
// for downstream-processing bookkeeping.
type RawEvent struct {
	ID          string          `json:"id"`
	Provider    Provider        `json:"provider"`
	SourceID    string          `json:"source_id"`
	EventType   EventType       `json:"event_type"`
	AuthorName  string          `json:"author_name"`
	AuthorEmail string          `json:"author_email,omitempty"`
	IdentityID  *string         `json:"identity_id,omitempty"`
	MemberID    *string         `json:"member_id,omitempty"`
	ProjectID   *string         `json:"project_id,omitempty"`
	ResourceID  string          `json:"resource_id,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Content     string          `json:"content"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

// Identity is an external actor identity scoped to an organization,
// unique per (organization, provider, provider user id). Created lazily
// on first observed activity and never deleted.
type Identity struct {
	ID             string          `json:"id"`
	OrgID          string          `json:"organization_id"`
	Provider       Provider        `json:"provider"`
	ProviderUserID string          `json:"provider_user_id"`
	DisplayName    string          `json:"display_name"`
	Profile        json.RawMessage `json:"profile,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ContributorMap links an Identity to an OrganizationMember. The
// ingestion core only ever reads these.
type ContributorMap struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	MemberID   string    `json:"member_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// IntegrationResource is a synced remote object (repository, channel)
// under an Integration, unique per (integration, provider, provider id).
type IntegrationResource struct {
	ID            string    `json:"id"`
	IntegrationID string    `json:"integration_id"`
	Provider      Provider  `json:"provider"`
	ProviderID    string    `json:"provider_id"`
	Name          string    `json:"name"`
	Kind          string    `json:"kind"` // "repository" or "channel"
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IntegrationConnection selects which resources feed a project, stored
// as a set of provider-side external identifiers.
type IntegrationConnection struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	IntegrationID string    `json:"integration_id"`
	ResourceIDs   []string  `json:"resource_ids"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SelectsResource reports whether the connection includes the given
// provider-side resource identifier.
func (c *IntegrationConnection) SelectsResource(providerID string) bool {
	for _, id := range c.ResourceIDs {
		if id == providerID {
			return true
		}
	}
	return false
}
