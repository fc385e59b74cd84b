package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/devsignal-systems/devsignal/internal/logging"
	"github.com/devsignal-systems/devsignal/internal/metrics"
	"github.com/devsignal-systems/devsignal/internal/models"
	"github.com/devsignal-systems/devsignal/internal/provider/slack"
	"github.com/devsignal-systems/devsignal/internal/repository"
)

// HandleSlack runs the delivery state machine for an already-verified
// Slack Events API delivery. A non-empty challenge return means the
// delivery was a URL verification handshake and the caller must echo
// the challenge instead of acknowledging an event.
func (s *Ingestor) HandleSlack(ctx context.Context, body []byte) (challenge string, err error) {
	start := s.now()
	defer func() {
		metrics.NormalizationDuration.Observe(s.now().Sub(start).Seconds())
	}()

	env, err := slack.ParseEnvelope(body)
	if err != nil {
		// The delivery passed signature verification, so it is recorded
		// even though the envelope cannot be normalized. Slack would
		// keep redelivering on a non-200.
		if _, recErr := s.recordDelivery(ctx, models.ProviderSlack, "", "unknown", body); recErr != nil {
			return "", fmt.Errorf("record slack delivery: %w", recErr)
		}
		s.logger.WarnContext(ctx, "malformed slack event",
			logging.Error(err),
		)
		return "", nil
	}

	if env.Type == slack.TypeURLVerification {
		return env.Challenge, nil
	}
	if env.Type != slack.TypeEventCallback {
		return "", nil
	}

	fresh, err := s.recordDelivery(ctx, models.ProviderSlack, env.EventID, env.Type, body)
	if err != nil {
		return "", fmt.Errorf("record slack delivery: %w", err)
	}
	if !fresh {
		return "", nil
	}

	integration, err := s.repo.GetIntegrationByExternalAccount(ctx, models.ProviderSlack, env.TeamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.InfoContext(ctx, "slack event for unknown workspace",
				logging.ProviderName("slack"),
				"team_id", env.TeamID,
			)
			return "", nil
		}
		return "", err
	}

	msg, err := env.ParseMessage()
	if err != nil {
		// Recorded but unparseable; retrying would not help.
		s.logger.WarnContext(ctx, "malformed slack event",
			logging.DeliveryID(env.EventID),
			logging.Error(err),
		)
		return "", nil
	}
	if msg == nil {
		return "", nil
	}

	ts := msg.Timestamp()
	if ts.IsZero() {
		ts = s.now()
	}

	// Slack events only carry the opaque user id. Enrich it to a human
	// name when a profile source is wired; failures fall back to the id.
	displayName := ""
	if s.profiles != nil {
		displayName, err = s.profiles.DisplayName(ctx, integration, msg.User)
		if err != nil {
			s.logger.WarnContext(ctx, "slack profile lookup degraded",
				"user_id", msg.User,
				logging.Error(err),
			)
			displayName = ""
		}
	}
	authorName := displayName
	if authorName == "" {
		authorName = msg.User
	}

	items := []item{{
		sourceID:       msg.Channel + ":" + msg.TS,
		eventType:      models.EventMessage,
		authorName:     authorName,
		providerUserID: msg.User,
		displayName:    displayName,
		timestamp:      ts,
		content:        msg.Text,
	}}

	return "", s.emit(ctx, integration, msg.Channel, items)
}
