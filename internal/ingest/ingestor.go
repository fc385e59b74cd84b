// Package ingest normalizes verified webhook deliveries into the
// canonical event stream, resolves tenant fan-out, and hands completed
// events to the analysis collaborator.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/devsignal-systems/devsignal/internal/logging"
	"github.com/devsignal-systems/devsignal/internal/metrics"
	"github.com/devsignal-systems/devsignal/internal/models"
	"github.com/devsignal-systems/devsignal/internal/repository"
)

// AnalysisHandoff is the downstream analysis collaborator. A hand-off
// failure never rolls back the raw event it was called for.
type AnalysisHandoff interface {
	ProcessRawEvent(ctx context.Context, eventID string) error
}

// Ingestor runs the per-delivery state machine: audit, dispatch,
// fan-out, identity resolution, raw event creation, analysis hand-off.
type Ingestor struct {
	repo     repository.Repository
	resolver *IdentityResolver
	analysis AnalysisHandoff
	profiles ProfileLookup
	logger   *logging.Logger
	now      func() time.Time
}

// New creates an Ingestor. profiles may be nil, in which case author
// display names stay at whatever the payload carried.
func New(repo repository.Repository, resolver *IdentityResolver, analysis AnalysisHandoff, profiles ProfileLookup, logger *logging.Logger) *Ingestor {
	return &Ingestor{
		repo:     repo,
		resolver: resolver,
		analysis: analysis,
		profiles: profiles,
		logger:   logger,
		now:      time.Now,
	}
}

// item is one normalized activity unit extracted from a delivery,
// before fan-out assigns it to projects.
type item struct {
	sourceID       string
	eventType      models.EventType
	authorName     string
	authorEmail    string
	providerUserID string
	displayName    string
	timestamp      time.Time
	content        string
	metadata       json.RawMessage
}

// recordDelivery persists the immutable audit record. A duplicate
// provider event id means the delivery was already seen; the caller
// skips normalization but still answers success.
func (s *Ingestor) recordDelivery(ctx context.Context, provider models.Provider, providerEventID, kind string, body []byte) (bool, error) {
	event := &models.WebhookEvent{
		ID:              uuid.New().String(),
		Provider:        provider,
		ProviderEventID: providerEventID,
		EventKind:       kind,
		Payload:         json.RawMessage(body),
		ReceivedAt:      s.now(),
	}

	err := s.repo.CreateWebhookEvent(ctx, event)
	if errors.Is(err, repository.ErrDuplicateDelivery) {
		s.logger.InfoContext(ctx, "duplicate webhook delivery skipped",
			logging.ProviderName(string(provider)),
			logging.DeliveryID(providerEventID),
		)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// resolveProjects computes the fan-out target set for a resource. When
// connections exist, the projects whose selection includes the resource
// win. When the integration has no connections at all and the tenant
// has exactly one project, that project is the implicit sole consumer.
// An empty result means the event is recorded without attribution.
func (s *Ingestor) resolveProjects(ctx context.Context, integration *models.Integration, resourceProviderID string) ([]string, error) {
	conns, err := s.repo.ListConnectionsByIntegration(ctx, integration.ID)
	if err != nil {
		return nil, err
	}

	if len(conns) == 0 {
		projects, err := s.repo.ListProjectsByOrg(ctx, integration.OrgID)
		if err != nil {
			return nil, err
		}
		if len(projects) == 1 {
			return []string{projects[0].ID}, nil
		}
		return nil, nil
	}

	var targets []string
	for _, conn := range conns {
		if conn.SelectsResource(resourceProviderID) {
			targets = append(targets, conn.ProjectID)
		}
	}
	return targets, nil
}

// emit creates one RawEvent per resolved project (or a single
// unattributed one) and hands each off to analysis. Enrichment and
// hand-off failures are logged and swallowed; the primary write always
// proceeds.
func (s *Ingestor) emit(ctx context.Context, integration *models.Integration, resourceProviderID string, items []item) error {
	projects, err := s.resolveProjects(ctx, integration, resourceProviderID)
	if err != nil {
		return err
	}

	// No matching project: record the activity unattributed rather than
	// dropping it.
	targets := make([]*string, 0, len(projects))
	if len(projects) == 0 {
		targets = append(targets, nil)
	} else {
		for i := range projects {
			targets = append(targets, &projects[i])
		}
	}

	for _, it := range items {
		for _, projectID := range targets {
			enrichment, err := s.resolver.Resolve(ctx, integration.OrgID, integration.Provider, it.providerUserID, it.displayName, nil)
			if err != nil {
				s.logger.WarnContext(ctx, "identity resolution degraded",
					logging.ProviderName(string(integration.Provider)),
					logging.Error(err),
				)
			}

			raw := &models.RawEvent{
				ID:          uuid.New().String(),
				Provider:    integration.Provider,
				SourceID:    it.sourceID,
				EventType:   it.eventType,
				AuthorName:  it.authorName,
				AuthorEmail: it.authorEmail,
				IdentityID:  enrichment.IdentityID,
				MemberID:    enrichment.MemberID,
				ProjectID:   projectID,
				ResourceID:  resourceProviderID,
				Timestamp:   it.timestamp,
				Content:     it.content,
				Metadata:    it.metadata,
				CreatedAt:   s.now(),
			}
			if err := s.repo.CreateRawEvent(ctx, raw); err != nil {
				return err
			}
			metrics.RawEventsTotal.WithLabelValues(string(integration.Provider), string(it.eventType)).Inc()

			if err := s.analysis.ProcessRawEvent(ctx, raw.ID); err != nil {
				metrics.AnalysisHandoffsTotal.WithLabelValues("error").Inc()
				s.logger.WarnContext(ctx, "analysis hand-off failed",
					logging.EventID(raw.ID),
					logging.Error(err),
				)
			} else {
				metrics.AnalysisHandoffsTotal.WithLabelValues("ok").Inc()
			}
		}
	}
	return nil
}
