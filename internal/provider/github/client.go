package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/devsignal-systems/devsignal/internal/httpclient"
)

// Client talks to the GitHub REST API. It is constructed per call site
// from the resolved credential; there is no ambient shared client.
type Client struct {
	api     *httpclient.Client
	baseURL string
}

// NewClient wraps the rate-limited HTTP client for the GitHub API.
func NewClient(api *httpclient.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &Client{api: api, baseURL: baseURL}
}

// InstallationToken is the result of exchanging an app assertion for an
// installation-scoped access token.
type InstallationToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateInstallationToken exchanges a signed app assertion for a fresh
// installation token.
func (c *Client) CreateInstallationToken(ctx context.Context, assertion, installationID string) (*InstallationToken, error) {
	req := &httpclient.Request{
		Method:   http.MethodPost,
		URL:      fmt.Sprintf("%s/app/installations/%s/access_tokens", c.baseURL, installationID),
		Header:   c.headers("Bearer " + assertion),
		Provider: "github",
	}

	resp, err := c.api.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("github: installation token exchange: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("github: installation token exchange returned status %d", resp.StatusCode)
	}

	var token InstallationToken
	if err := json.Unmarshal(resp.Body, &token); err != nil {
		return nil, fmt.Errorf("github: decode installation token: %w", err)
	}
	return &token, nil
}

// Repository is the subset of the GitHub repository object the resource
// sync needs.
type Repository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
}

// ListInstallationRepositories returns every repository the
// installation grants access to, across all pages.
func (c *Client) ListInstallationRepositories(ctx context.Context, token string) ([]Repository, error) {
	req := &httpclient.Request{
		URL:      c.baseURL + "/installation/repositories?per_page=100",
		Header:   c.headers("token " + token),
		Provider: "github",
	}

	pages, err := c.api.GetAll(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("github: list installation repositories: %w", err)
	}

	var repos []Repository
	for _, page := range pages {
		var body struct {
			Repositories []Repository `json:"repositories"`
		}
		if err := json.Unmarshal(page, &body); err != nil {
			return nil, fmt.Errorf("github: decode repositories page: %w", err)
		}
		repos = append(repos, body.Repositories...)
	}
	return repos, nil
}

func (c *Client) headers(authorization string) http.Header {
	h := make(http.Header)
	h.Set("Authorization", authorization)
	h.Set("Accept", "application/vnd.github+json")
	h.Set("X-GitHub-Api-Version", "2022-11-28")
	return h
}
