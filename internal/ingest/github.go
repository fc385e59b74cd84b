package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/devsignal-systems/devsignal/internal/logging"
	"github.com/devsignal-systems/devsignal/internal/metrics"
	"github.com/devsignal-systems/devsignal/internal/models"
	"github.com/devsignal-systems/devsignal/internal/provider/github"
	"github.com/devsignal-systems/devsignal/internal/repository"
)

// HandleGitHub runs the delivery state machine for an already-verified
// GitHub webhook. kind is the X-GitHub-Event header, deliveryID the
// X-GitHub-Delivery header.
func (s *Ingestor) HandleGitHub(ctx context.Context, kind, deliveryID string, body []byte) error {
	start := s.now()
	defer func() {
		metrics.NormalizationDuration.Observe(s.now().Sub(start).Seconds())
	}()

	fresh, err := s.recordDelivery(ctx, models.ProviderGitHub, deliveryID, kind, body)
	if err != nil {
		return fmt.Errorf("record github delivery: %w", err)
	}
	if !fresh {
		return nil
	}

	payload, err := github.ParsePayload(kind, body)
	if err != nil {
		// The audit record exists; a malformed payload is never
		// normalized, and retrying the delivery would not help.
		s.logger.WarnContext(ctx, "malformed github payload",
			logging.DeliveryID(deliveryID),
			logging.Error(err),
		)
		return nil
	}

	switch p := payload.(type) {
	case *github.InstallationEvent:
		return s.handleInstallation(ctx, p)
	case *github.InstallationRepositoriesEvent:
		return s.handleInstallationRepositories(ctx, p)
	case *github.PushEvent:
		return s.handlePush(ctx, p)
	case *github.PullRequestEvent:
		return s.handlePullRequest(ctx, p)
	case *github.IssuesEvent:
		return s.handleIssues(ctx, p)
	default:
		// Unhandled kinds are recorded but produce no canonical events.
		return nil
	}
}

func (s *Ingestor) githubIntegration(ctx context.Context, installationID int64) (*models.Integration, error) {
	return s.repo.GetIntegrationByExternalAccount(ctx, models.ProviderGitHub, strconv.FormatInt(installationID, 10))
}

func (s *Ingestor) handleInstallation(ctx context.Context, p *github.InstallationEvent) error {
	integration, err := s.githubIntegration(ctx, p.Installation.ID)
	if errors.Is(err, repository.ErrNotFound) {
		// Installation events can arrive before the callback binds the
		// installation to a tenant; there is nothing to update yet.
		s.logger.InfoContext(ctx, "installation event for unbound installation",
			logging.ProviderName("github"),
			"installation_id", p.Installation.ID,
		)
		return nil
	}
	if err != nil {
		return err
	}

	switch p.Action {
	case "deleted", "suspend":
		return s.repo.DisconnectIntegration(ctx, integration.ID)
	case "created", "unsuspend", "new_permissions_accepted":
		for _, repo := range p.Repositories {
			if err := s.upsertRepoResource(ctx, integration.ID, repo); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

func (s *Ingestor) handleInstallationRepositories(ctx context.Context, p *github.InstallationRepositoriesEvent) error {
	integration, err := s.githubIntegration(ctx, p.Installation.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	for _, repo := range p.RepositoriesAdded {
		if err := s.upsertRepoResource(ctx, integration.ID, repo); err != nil {
			return err
		}
	}
	for _, repo := range p.RepositoriesRemoved {
		providerID := strconv.FormatInt(repo.ID, 10)
		if err := s.repo.DeleteIntegrationResource(ctx, integration.ID, providerID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Ingestor) upsertRepoResource(ctx context.Context, integrationID string, repo github.EventRepo) error {
	now := s.now()
	return s.repo.UpsertIntegrationResource(ctx, &models.IntegrationResource{
		ID:            uuid.New().String(),
		IntegrationID: integrationID,
		Provider:      models.ProviderGitHub,
		ProviderID:    strconv.FormatInt(repo.ID, 10),
		Name:          repo.FullName,
		Kind:          "repository",
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func (s *Ingestor) handlePush(ctx context.Context, p *github.PushEvent) error {
	integration, err := s.githubIntegration(ctx, p.Installation.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	commits := p.Commits
	if len(commits) == 0 && p.HeadCommit != nil {
		commits = []github.Commit{*p.HeadCommit}
	}

	items := make([]item, 0, len(commits))
	for _, c := range commits {
		ts := c.Timestamp
		if ts.IsZero() {
			ts = s.now()
		}
		metadata, _ := json.Marshal(map[string]string{"ref": p.Ref, "repository": p.Repository.FullName})
		items = append(items, item{
			sourceID:       c.ID,
			eventType:      models.EventCommit,
			authorName:     c.Author.Name,
			authorEmail:    c.Author.Email,
			providerUserID: c.Author.Username,
			displayName:    c.Author.Name,
			timestamp:      ts,
			content:        c.Message,
			metadata:       metadata,
		})
	}

	return s.emit(ctx, integration, strconv.FormatInt(p.Repository.ID, 10), items)
}

func (s *Ingestor) handlePullRequest(ctx context.Context, p *github.PullRequestEvent) error {
	integration, err := s.githubIntegration(ctx, p.Installation.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	ts := p.PullRequest.UpdatedAt
	if ts.IsZero() {
		ts = s.now()
	}
	metadata, _ := json.Marshal(map[string]any{
		"action":     p.Action,
		"number":     p.PullRequest.Number,
		"repository": p.Repository.FullName,
	})

	items := []item{{
		sourceID:       strconv.FormatInt(p.PullRequest.ID, 10),
		eventType:      models.EventPullRequest,
		authorName:     p.PullRequest.User.Login,
		providerUserID: p.PullRequest.User.Login,
		displayName:    p.PullRequest.User.Login,
		timestamp:      ts,
		content:        p.PullRequest.Title,
		metadata:       metadata,
	}}

	return s.emit(ctx, integration, strconv.FormatInt(p.Repository.ID, 10), items)
}

func (s *Ingestor) handleIssues(ctx context.Context, p *github.IssuesEvent) error {
	integration, err := s.githubIntegration(ctx, p.Installation.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	ts := p.Issue.UpdatedAt
	if ts.IsZero() {
		ts = s.now()
	}
	metadata, _ := json.Marshal(map[string]any{
		"action":     p.Action,
		"number":     p.Issue.Number,
		"repository": p.Repository.FullName,
	})

	items := []item{{
		sourceID:       strconv.FormatInt(p.Issue.ID, 10),
		eventType:      models.EventIssue,
		authorName:     p.Issue.User.Login,
		providerUserID: p.Issue.User.Login,
		displayName:    p.Issue.User.Login,
		timestamp:      ts,
		content:        p.Issue.Title,
		metadata:       metadata,
	}}

	return s.emit(ctx, integration, strconv.FormatInt(p.Repository.ID, 10), items)
}
