package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devsignal-systems/devsignal/internal/ingest"
	"github.com/devsignal-systems/devsignal/internal/logging"
	"github.com/devsignal-systems/devsignal/internal/models"
	"github.com/devsignal-systems/devsignal/internal/ratelimit"
	"github.com/devsignal-systems/devsignal/internal/repository"
	"github.com/devsignal-systems/devsignal/internal/webhook"
)

const (
	testGitHubSecret = "gh-webhook-secret"
	testSlackSecret  = "slack-signing-secret"
	testMaxBody      = 1 << 20
)

type recordingAnalysis struct {
	calls []string
}

func (a *recordingAnalysis) ProcessRawEvent(ctx context.Context, eventID string) error {
	a.calls = append(a.calls, eventID)
	return nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, key string) (bool, error) { return false, nil }
func (denyLimiter) Close() error                                        { return nil }

type webhookFixture struct {
	repo     *repository.InMemoryRepository
	analysis *recordingAnalysis
	handler  *WebhookHandler
	org      *models.Organization
	project  *models.Project
}

func newWebhookFixture(t *testing.T, limiter ratelimit.Limiter) *webhookFixture {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewInMemoryRepository()
	analysis := &recordingAnalysis{}
	logger := logging.New(slog.LevelError, "text")

	ingestor := ingest.New(repo, ingest.NewIdentityResolver(repo), analysis, nil, logger)
	handler := NewWebhookHandler(ingestor, limiter, testGitHubSecret, testSlackSecret, testMaxBody, logger)

	org := &models.Organization{ID: uuid.New().String(), Name: "acme", CreatedAt: time.Now()}
	require.NoError(t, repo.CreateOrganization(ctx, org))

	project := &models.Project{ID: uuid.New().String(), OrgID: org.ID, Name: "api", CreatedAt: time.Now()}
	require.NoError(t, repo.CreateProject(ctx, project))

	github := &models.Integration{
		ID:                uuid.New().String(),
		OrgID:             org.ID,
		Provider:          models.ProviderGitHub,
		Status:            models.StatusConnected,
		AuthType:          models.AuthAppAssertion,
		ExternalAccountID: "9001",
	}
	require.NoError(t, repo.UpsertIntegration(ctx, github))

	slack := &models.Integration{
		ID:                uuid.New().String(),
		OrgID:             org.ID,
		Provider:          models.ProviderSlack,
		Status:            models.StatusConnected,
		AuthType:          models.AuthOAuth,
		ExternalAccountID: "T123",
	}
	require.NoError(t, repo.UpsertIntegration(ctx, slack))

	return &webhookFixture{repo: repo, analysis: analysis, handler: handler, org: org, project: project}
}

func githubRequest(body []byte, event, delivery, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", delivery)
	req.Header.Set("X-Hub-Signature-256", signature)
	return req
}

func slackRequest(body []byte, secret string) *http.Request {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/slack", bytes.NewReader(body))
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", webhook.SignSlack(body, ts, secret))
	return req
}

func TestGitHubDeliveryEndToEnd(t *testing.T) {
	f := newWebhookFixture(t, ratelimit.NoOp{})

	body := []byte(`{
		"ref": "refs/heads/main",
		"head_commit": {"id": "abc", "message": "fix bug", "author": {"name": "ann", "email": "a@x.com", "username": "ann"}},
		"repository": {"id": 555, "full_name": "acme/api"},
		"installation": {"id": 9001}
	}`)

	w := httptest.NewRecorder()
	f.handler.GitHub(w, githubRequest(body, "push", "d-1", webhook.SignGitHub(body, testGitHubSecret)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.repo.WebhookEventCount())

	events := f.repo.RawEventsInOrder()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventCommit, events[0].EventType)
	assert.Equal(t, "abc", events[0].SourceID)
	assert.Equal(t, "fix bug", events[0].Content)
	require.NotNil(t, events[0].ProjectID)
	assert.Equal(t, f.project.ID, *events[0].ProjectID)

	require.Len(t, f.analysis.calls, 1)
	assert.Equal(t, events[0].ID, f.analysis.calls[0])
}

func TestGitHubDeliveryBadSignature(t *testing.T) {
	f := newWebhookFixture(t, ratelimit.NoOp{})

	body := []byte(`{"ref": "refs/heads/main"}`)
	w := httptest.NewRecorder()
	f.handler.GitHub(w, githubRequest(body, "push", "d-2", webhook.SignGitHub(body, "wrong-secret")))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, f.repo.WebhookEventCount())
	assert.Empty(t, f.repo.RawEventsInOrder())
}

func TestGitHubDeliveryDuplicate(t *testing.T) {
	f := newWebhookFixture(t, ratelimit.NoOp{})

	body := []byte(`{
		"head_commit": {"id": "abc", "message": "fix bug", "author": {"name": "ann", "username": "ann"}},
		"repository": {"id": 555, "full_name": "acme/api"},
		"installation": {"id": 9001}
	}`)
	sig := webhook.SignGitHub(body, testGitHubSecret)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		f.handler.GitHub(w, githubRequest(body, "push", "d-3", sig))
		assert.Equal(t, http.StatusOK, w.Code, "redelivery %d is still acknowledged", i)
	}

	assert.Equal(t, 1, f.repo.WebhookEventCount())
	assert.Len(t, f.repo.RawEventsInOrder(), 1)
	assert.Len(t, f.analysis.calls, 1)
}

func TestGitHubDeliveryRateLimited(t *testing.T) {
	f := newWebhookFixture(t, denyLimiter{})

	body := []byte(`{"ref": "refs/heads/main"}`)
	w := httptest.NewRecorder()
	f.handler.GitHub(w, githubRequest(body, "push", "d-4", webhook.SignGitHub(body, testGitHubSecret)))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, 0, f.repo.WebhookEventCount())
}

func TestGitHubDeliveryMalformedPayloadStillAccepted(t *testing.T) {
	f := newWebhookFixture(t, ratelimit.NoOp{})

	body := []byte(`{"ref": 12`) // truncated
	w := httptest.NewRecorder()
	f.handler.GitHub(w, githubRequest(body, "push", "d-5", webhook.SignGitHub(body, testGitHubSecret)))

	// Signed garbage is recorded for audit and acknowledged so GitHub
	// does not redeliver it forever.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.repo.WebhookEventCount())
	assert.Empty(t, f.repo.RawEventsInOrder())
}

func TestSlackURLVerificationChallenge(t *testing.T) {
	f := newWebhookFixture(t, ratelimit.NoOp{})

	body := []byte(`{"type": "url_verification", "challenge": "3eZbrw1aB1"}`)
	w := httptest.NewRecorder()
	f.handler.Slack(w, slackRequest(body, testSlackSecret))

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "3eZbrw1aB1", resp["challenge"])
}

func TestSlackMessageDelivery(t *testing.T) {
	f := newWebhookFixture(t, ratelimit.NoOp{})

	body := []byte(`{
		"type": "event_callback",
		"event_id": "Ev1",
		"team_id": "T123",
		"event": {"type": "message", "channel": "C42", "user": "U7", "text": "ship it", "ts": "1700000000.000100"}
	}`)
	w := httptest.NewRecorder()
	f.handler.Slack(w, slackRequest(body, testSlackSecret))

	assert.Equal(t, http.StatusOK, w.Code)
	events := f.repo.RawEventsInOrder()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventMessage, events[0].EventType)
	assert.Equal(t, "C42:1700000000.000100", events[0].SourceID)
}

func TestSlackDeliveryMalformedPayloadStillAccepted(t *testing.T) {
	f := newWebhookFixture(t, ratelimit.NoOp{})

	body := []byte(`{"type": 12`) // truncated
	w := httptest.NewRecorder()
	f.handler.Slack(w, slackRequest(body, testSlackSecret))

	// Signed garbage is recorded for audit and acknowledged so Slack
	// does not redeliver it forever.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.repo.WebhookEventCount())
	assert.Empty(t, f.repo.RawEventsInOrder())
}

func TestSlackDeliveryBadSignature(t *testing.T) {
	f := newWebhookFixture(t, ratelimit.NoOp{})

	body := []byte(`{"type": "event_callback", "event_id": "Ev2", "team_id": "T123"}`)
	w := httptest.NewRecorder()
	f.handler.Slack(w, slackRequest(body, "wrong-secret"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, f.repo.WebhookEventCount())
}

func TestSlackDeliveryStaleTimestamp(t *testing.T) {
	f := newWebhookFixture(t, ratelimit.NoOp{})

	body := []byte(`{"type": "event_callback", "event_id": "Ev3", "team_id": "T123"}`)
	ts := strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/slack", bytes.NewReader(body))
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", webhook.SignSlack(body, ts, testSlackSecret))

	w := httptest.NewRecorder()
	f.handler.Slack(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, f.repo.WebhookEventCount())
}
