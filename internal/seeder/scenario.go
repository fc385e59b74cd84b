// Package seeder generates signed fake provider deliveries and posts
// them at a running devsignal instance. Development tooling: it lets a
// demo environment fill up with plausible activity without any real
// GitHub or Slack traffic.
package seeder

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario describes the shape of the generated traffic.
type Scenario struct {
	TargetURL      string       `yaml:"target_url"`
	GitHubSecret   string       `yaml:"github_secret"`
	SlackSecret    string       `yaml:"slack_secret"`
	InstallationID int64        `yaml:"installation_id"`
	SlackTeamID    string       `yaml:"slack_team_id"`
	Repositories   []RepoTarget `yaml:"repositories"`
	Channels       []string     `yaml:"channels"`
	Authors        int          `yaml:"authors"`
	PushWeight     int          `yaml:"push_weight"`
	PRWeight       int          `yaml:"pr_weight"`
	IssueWeight    int          `yaml:"issue_weight"`
	MessageWeight  int          `yaml:"message_weight"`
}

// RepoTarget is one repository deliveries are attributed to.
type RepoTarget struct {
	ID       int64  `yaml:"id"`
	FullName string `yaml:"full_name"`
}

// DefaultScenario returns a runnable scenario against a local instance.
func DefaultScenario() *Scenario {
	return &Scenario{
		TargetURL:      "http://localhost:8086",
		GitHubSecret:   "dev-github-secret",
		SlackSecret:    "dev-slack-secret",
		InstallationID: 9001,
		SlackTeamID:    "T0DEVSEED",
		Repositories: []RepoTarget{
			{ID: 555, FullName: "acme/api"},
			{ID: 777, FullName: "acme/web"},
		},
		Channels:      []string{"C0GENERAL", "C0ENGINEER"},
		Authors:       8,
		PushWeight:    5,
		PRWeight:      2,
		IssueWeight:   2,
		MessageWeight: 4,
	}
}

// LoadScenario reads a scenario file, falling back to defaults when the
// path is empty.
func LoadScenario(path string) (*Scenario, error) {
	if path == "" {
		return DefaultScenario(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	s := DefaultScenario()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scenario) validate() error {
	if s.TargetURL == "" {
		return fmt.Errorf("scenario: target_url is required")
	}
	if len(s.Repositories) == 0 && len(s.Channels) == 0 {
		return fmt.Errorf("scenario: at least one repository or channel is required")
	}
	if s.Authors <= 0 {
		return fmt.Errorf("scenario: authors must be positive")
	}
	return nil
}
