package github

import (
	"encoding/json"
	"fmt"
	"time"
)

// Webhook event kinds, as delivered in the X-GitHub-Event header.
const (
	KindPush                     = "push"
	KindPullRequest              = "pull_request"
	KindIssues                   = "issues"
	KindInstallation             = "installation"
	KindInstallationRepositories = "installation_repositories"
)

// Payload shapes are typed per event kind and narrowed at the ingestion
// boundary; past ParsePayload no field is read out of a raw map.

// Installation identifies the app installation a delivery belongs to.
type Installation struct {
	ID      int64 `json:"id"`
	Account struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
	} `json:"account"`
}

// Author is the commit/user attribution block.
type Author struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Commit is one commit entry in a push payload.
type Commit struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Author    Author    `json:"author"`
}

// PushEvent is the push webhook payload.
type PushEvent struct {
	Ref          string       `json:"ref"`
	Commits      []Commit     `json:"commits"`
	HeadCommit   *Commit      `json:"head_commit"`
	Repository   EventRepo    `json:"repository"`
	Installation Installation `json:"installation"`
	Sender       Sender       `json:"sender"`
}

// EventRepo is the repository block common to content payloads.
type EventRepo struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

// Sender is the acting user block common to all payloads.
type Sender struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// PullRequestEvent is the pull_request webhook payload.
type PullRequestEvent struct {
	Action      string `json:"action"`
	PullRequest struct {
		ID        int64     `json:"id"`
		Number    int       `json:"number"`
		Title     string    `json:"title"`
		Body      string    `json:"body"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
		User      Sender    `json:"user"`
	} `json:"pull_request"`
	Repository   EventRepo    `json:"repository"`
	Installation Installation `json:"installation"`
	Sender       Sender       `json:"sender"`
}

// IssuesEvent is the issues webhook payload.
type IssuesEvent struct {
	Action string `json:"action"`
	Issue  struct {
		ID        int64     `json:"id"`
		Number    int       `json:"number"`
		Title     string    `json:"title"`
		Body      string    `json:"body"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
		User      Sender    `json:"user"`
	} `json:"issue"`
	Repository   EventRepo    `json:"repository"`
	Installation Installation `json:"installation"`
	Sender       Sender       `json:"sender"`
}

// InstallationEvent is the installation lifecycle payload.
type InstallationEvent struct {
	Action       string       `json:"action"` // "created", "deleted", "suspend", ...
	Installation Installation `json:"installation"`
	Repositories []EventRepo  `json:"repositories"`
	Sender       Sender       `json:"sender"`
}

// InstallationRepositoriesEvent is the resource-list change payload.
type InstallationRepositoriesEvent struct {
	Action              string       `json:"action"` // "added" or "removed"
	Installation        Installation `json:"installation"`
	RepositoriesAdded   []EventRepo  `json:"repositories_added"`
	RepositoriesRemoved []EventRepo  `json:"repositories_removed"`
	Sender              Sender       `json:"sender"`
}

// ParsePayload narrows a raw delivery body into its typed payload based
// on the event kind header. Unknown kinds return (nil, nil): the
// delivery is recorded but not normalized.
func ParsePayload(kind string, body []byte) (any, error) {
	switch kind {
	case KindPush:
		var p PushEvent
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("github: parse push payload: %w", err)
		}
		return &p, nil
	case KindPullRequest:
		var p PullRequestEvent
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("github: parse pull_request payload: %w", err)
		}
		return &p, nil
	case KindIssues:
		var p IssuesEvent
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("github: parse issues payload: %w", err)
		}
		return &p, nil
	case KindInstallation:
		var p InstallationEvent
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("github: parse installation payload: %w", err)
		}
		return &p, nil
	case KindInstallationRepositories:
		var p InstallationRepositoriesEvent
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("github: parse installation_repositories payload: %w", err)
		}
		return &p, nil
	default:
		return nil, nil
	}
}
