package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/devsignal-systems/devsignal/internal/models"
	"github.com/devsignal-systems/devsignal/internal/repository"
)

// Enrichment is the outcome of identity resolution. Both fields are nil
// when resolution could not attribute the actor; the zero value is the
// explicit "unattributed" result.
type Enrichment struct {
	IdentityID *string
	MemberID   *string
}

// IdentityResolver maps external actors to internal identities and,
// where a contributor mapping exists, to organization members.
type IdentityResolver struct {
	repo repository.Repository
}

// NewIdentityResolver creates an IdentityResolver.
func NewIdentityResolver(repo repository.Repository) *IdentityResolver {
	return &IdentityResolver{repo: repo}
}

// Resolve finds or lazily creates the Identity for the actor and looks
// up its contributor mapping. Resolution is best-effort enrichment: the
// caller receives the error for logging but must treat a zero
// Enrichment as a valid outcome, never as grounds to drop the event.
func (r *IdentityResolver) Resolve(ctx context.Context, orgID string, provider models.Provider, providerUserID, displayName string, profile json.RawMessage) (Enrichment, error) {
	if providerUserID == "" {
		return Enrichment{}, nil
	}

	identity, err := r.repo.GetIdentity(ctx, orgID, provider, providerUserID)
	if errors.Is(err, repository.ErrNotFound) {
		identity = &models.Identity{
			ID:             uuid.New().String(),
			OrgID:          orgID,
			Provider:       provider,
			ProviderUserID: providerUserID,
			DisplayName:    displayName,
			Profile:        profile,
			CreatedAt:      time.Now(),
		}
		if createErr := r.repo.CreateIdentity(ctx, identity); createErr != nil {
			// A concurrent delivery may have created it first; re-read
			// before giving up.
			identity, err = r.repo.GetIdentity(ctx, orgID, provider, providerUserID)
			if err != nil {
				return Enrichment{}, fmt.Errorf("identity create/read race: %w", createErr)
			}
		}
	} else if err != nil {
		return Enrichment{}, fmt.Errorf("identity lookup: %w", err)
	}

	enrichment := Enrichment{IdentityID: &identity.ID}

	mapping, err := r.repo.GetContributorMapByIdentity(ctx, identity.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return enrichment, nil
	}
	if err != nil {
		// The identity still counts even when the member lookup fails.
		return enrichment, fmt.Errorf("contributor map lookup: %w", err)
	}

	enrichment.MemberID = &mapping.MemberID
	return enrichment, nil
}
