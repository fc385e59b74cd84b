package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/devsignal-systems/devsignal/internal/httpclient"
)

// Client talks to the Slack Web API with a resolved bot token.
type Client struct {
	api     *httpclient.Client
	baseURL string
}

// NewClient wraps the rate-limited HTTP client for the Slack Web API.
func NewClient(api *httpclient.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://slack.com/api"
	}
	return &Client{api: api, baseURL: baseURL}
}

// Channel is the subset of the Slack conversation object the resource
// sync needs.
type Channel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsMember bool   `json:"is_member"`
}

// ListChannels returns every public channel in the workspace, following
// Slack's cursor pagination until the cursor runs out.
func (c *Client) ListChannels(ctx context.Context, token string) ([]Channel, error) {
	var channels []Channel
	cursor := ""

	for {
		q := url.Values{"limit": {"200"}}
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		req := &httpclient.Request{
			Method:   http.MethodGet,
			URL:      c.baseURL + "/conversations.list?" + q.Encode(),
			Header:   c.headers(token),
			Provider: "slack",
		}
		resp, err := c.api.Do(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("slack: list channels: %w", err)
		}

		var body struct {
			OK       bool      `json:"ok"`
			Error    string    `json:"error"`
			Channels []Channel `json:"channels"`
			Metadata struct {
				NextCursor string `json:"next_cursor"`
			} `json:"response_metadata"`
		}
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			return nil, fmt.Errorf("slack: decode channels page: %w", err)
		}
		if !body.OK {
			return nil, fmt.Errorf("slack: list channels rejected: %s", body.Error)
		}

		channels = append(channels, body.Channels...)
		cursor = body.Metadata.NextCursor
		if cursor == "" {
			return channels, nil
		}
	}
}

// UserInfo fetches a user's display profile for identity enrichment.
func (c *Client) UserInfo(ctx context.Context, token, userID string) (string, error) {
	req := &httpclient.Request{
		Method:   http.MethodGet,
		URL:      c.baseURL + "/users.info?user=" + url.QueryEscape(userID),
		Header:   c.headers(token),
		Provider: "slack",
	}
	resp, err := c.api.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("slack: user info: %w", err)
	}

	var body struct {
		OK   bool `json:"ok"`
		User struct {
			RealName string `json:"real_name"`
			Name     string `json:"name"`
		} `json:"user"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil || !body.OK {
		return "", fmt.Errorf("slack: user info lookup failed")
	}
	if body.User.RealName != "" {
		return body.User.RealName, nil
	}
	return body.User.Name, nil
}

func (c *Client) headers(token string) http.Header {
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+token)
	return h
}
