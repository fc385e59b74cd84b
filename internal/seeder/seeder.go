package seeder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/devsignal-systems/devsignal/internal/webhook"
)

// author is a synthetic contributor reused across deliveries so the
// identity resolver sees repeat activity from the same people.
type author struct {
	name     string
	email    string
	username string
	slackID  string
}

// Seeder posts generated deliveries at a devsignal webhook surface.
type Seeder struct {
	scenario *Scenario
	client   *http.Client
	rng      *rand.Rand
	authors  []author
}

// New builds a Seeder for the scenario. seed fixes the random stream so
// repeated runs produce the same traffic.
func New(scenario *Scenario, seed int64) *Seeder {
	faker := gofakeit.New(seed)
	rng := rand.New(rand.NewSource(seed))

	authors := make([]author, scenario.Authors)
	for i := range authors {
		authors[i] = author{
			name:     faker.Name(),
			email:    faker.Email(),
			username: faker.Username(),
			slackID:  "U" + strconv.FormatInt(10000000+int64(i), 36),
		}
	}

	return &Seeder{
		scenario: scenario,
		client:   &http.Client{Timeout: 10 * time.Second},
		rng:      rng,
		authors:  authors,
	}
}

// Run sends count deliveries, pacing them by interval. Returns how many
// were accepted.
func (s *Seeder) Run(ctx context.Context, count int, interval time.Duration) (int, error) {
	accepted := 0
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return accepted, err
		}

		path, body, headers := s.nextDelivery()
		ok, err := s.post(ctx, path, body, headers)
		if err != nil {
			return accepted, fmt.Errorf("delivery %d: %w", i, err)
		}
		if ok {
			accepted++
		}

		if interval > 0 && i < count-1 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return accepted, ctx.Err()
			}
		}
	}
	return accepted, nil
}

// nextDelivery picks an event kind by scenario weight and renders a
// signed delivery for it.
func (s *Seeder) nextDelivery() (path string, body []byte, headers map[string]string) {
	push, pr, issue, msg := s.scenario.PushWeight, s.scenario.PRWeight, s.scenario.IssueWeight, s.scenario.MessageWeight
	if len(s.scenario.Repositories) == 0 {
		push, pr, issue = 0, 0, 0
	}
	if len(s.scenario.Channels) == 0 {
		msg = 0
	}
	total := push + pr + issue + msg
	if total == 0 {
		if len(s.scenario.Repositories) > 0 {
			push = 1
		} else {
			msg = 1
		}
		total = 1
	}
	pick := s.rng.Intn(total)

	switch {
	case pick < push:
		return s.githubDelivery("push", s.pushPayload())
	case pick < push+pr:
		return s.githubDelivery("pull_request", s.pullRequestPayload())
	case pick < push+pr+issue:
		return s.githubDelivery("issues", s.issuePayload())
	default:
		return s.slackDelivery(s.messagePayload())
	}
}

func (s *Seeder) githubDelivery(kind string, payload any) (string, []byte, map[string]string) {
	body, _ := json.Marshal(payload)
	return "/webhooks/github", body, map[string]string{
		"X-GitHub-Event":      kind,
		"X-GitHub-Delivery":   uuid.New().String(),
		"X-Hub-Signature-256": webhook.SignGitHub(body, s.scenario.GitHubSecret),
	}
}

func (s *Seeder) slackDelivery(payload any) (string, []byte, map[string]string) {
	body, _ := json.Marshal(payload)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	return "/webhooks/slack", body, map[string]string{
		"X-Slack-Request-Timestamp": ts,
		"X-Slack-Signature":         webhook.SignSlack(body, ts, s.scenario.SlackSecret),
	}
}

func (s *Seeder) repo() RepoTarget {
	return s.scenario.Repositories[s.rng.Intn(len(s.scenario.Repositories))]
}

func (s *Seeder) author() author {
	return s.authors[s.rng.Intn(len(s.authors))]
}

func (s *Seeder) pushPayload() map[string]any {
	repo := s.repo()
	a := s.author()
	commits := make([]map[string]any, 1+s.rng.Intn(3))
	for i := range commits {
		commits[i] = map[string]any{
			"id":        uuid.New().String(),
			"message":   gofakeit.HackerPhrase(),
			"timestamp": time.Now().Add(-time.Duration(s.rng.Intn(3600)) * time.Second).Format(time.RFC3339),
			"author":    map[string]any{"name": a.name, "email": a.email, "username": a.username},
		}
	}
	return map[string]any{
		"ref":          "refs/heads/main",
		"commits":      commits,
		"repository":   map[string]any{"id": repo.ID, "full_name": repo.FullName},
		"installation": map[string]any{"id": s.scenario.InstallationID},
		"sender":       map[string]any{"login": a.username},
	}
}

func (s *Seeder) pullRequestPayload() map[string]any {
	repo := s.repo()
	a := s.author()
	return map[string]any{
		"action": "opened",
		"pull_request": map[string]any{
			"id":         s.rng.Int63n(1 << 30),
			"number":     1 + s.rng.Intn(500),
			"title":      gofakeit.HackerPhrase(),
			"created_at": time.Now().Format(time.RFC3339),
			"updated_at": time.Now().Format(time.RFC3339),
			"user":       map[string]any{"login": a.username},
		},
		"repository":   map[string]any{"id": repo.ID, "full_name": repo.FullName},
		"installation": map[string]any{"id": s.scenario.InstallationID},
		"sender":       map[string]any{"login": a.username},
	}
}

func (s *Seeder) issuePayload() map[string]any {
	repo := s.repo()
	a := s.author()
	return map[string]any{
		"action": "opened",
		"issue": map[string]any{
			"id":         s.rng.Int63n(1 << 30),
			"number":     1 + s.rng.Intn(500),
			"title":      gofakeit.BuzzWord() + " " + gofakeit.HackerVerb() + " failure",
			"created_at": time.Now().Format(time.RFC3339),
			"updated_at": time.Now().Format(time.RFC3339),
			"user":       map[string]any{"login": a.username},
		},
		"repository":   map[string]any{"id": repo.ID, "full_name": repo.FullName},
		"installation": map[string]any{"id": s.scenario.InstallationID},
		"sender":       map[string]any{"login": a.username},
	}
}

func (s *Seeder) messagePayload() map[string]any {
	a := s.author()
	channel := s.scenario.Channels[s.rng.Intn(len(s.scenario.Channels))]
	ts := fmt.Sprintf("%d.%06d", time.Now().Unix(), s.rng.Intn(1000000))
	return map[string]any{
		"type":     "event_callback",
		"event_id": "Ev" + uuid.New().String()[:8],
		"team_id":  s.scenario.SlackTeamID,
		"event": map[string]any{
			"type":    "message",
			"channel": channel,
			"user":    a.slackID,
			"text":    gofakeit.HipsterSentence(8),
			"ts":      ts,
		},
	}
}

func (s *Seeder) post(ctx context.Context, path string, body []byte, headers map[string]string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.scenario.TargetURL+path, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}
