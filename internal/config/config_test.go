package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DEVSIGNAL_SECURITY_MASTER_KEY", "test-master-key")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8086, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)

	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)

	assert.Equal(t, 10*time.Minute, cfg.Security.StateTTL)
	assert.Equal(t, "https://api.github.com", cfg.GitHub.APIBaseURL)
	assert.Equal(t, "https://slack.com/api", cfg.Slack.APIBaseURL)
	assert.Equal(t, "analysis.raw_events.process", cfg.Analysis.Subject)
	assert.Equal(t, 1048576, cfg.Ingestion.MaxBodySize)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090

database:
  type: memory

security:
  master_key: file-master-key
  state_ttl: 5m

github:
  app_id: "12345"
  app_slug: devsignal-app
  webhook_secret: gh-secret

slack:
  client_id: client-id
  signing_secret: slack-secret

analysis:
  enabled: false

logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Type)
	assert.Equal(t, "file-master-key", cfg.Security.MasterKey)
	assert.Equal(t, 5*time.Minute, cfg.Security.StateTTL)
	assert.Equal(t, "12345", cfg.GitHub.AppID)
	assert.Equal(t, "devsignal-app", cfg.GitHub.AppSlug)
	assert.False(t, cfg.Analysis.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_MissingMasterKey(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "master_key")
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DEVSIGNAL_SECURITY_MASTER_KEY", "env-master-key")
	t.Setenv("DEVSIGNAL_SERVER_PORT", "7070")
	t.Setenv("DEVSIGNAL_DATABASE_TYPE", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-master-key", cfg.Security.MasterKey)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Type)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing master key",
			mutate:  func(c *Config) { c.Security.MasterKey = "" },
			wantErr: "master_key",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name:    "unknown database type",
			mutate:  func(c *Config) { c.Database.Type = "mongo" },
			wantErr: "database.type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Security.MasterKey = "k"
			cfg.Server.Port = 8086
			cfg.Database.Type = "memory"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
