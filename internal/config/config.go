package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Security  SecurityConfig  `mapstructure:"security"`
	GitHub    GitHubConfig    `mapstructure:"github"`
	Slack     SlackConfig     `mapstructure:"slack"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Frontend  FrontendConfig  `mapstructure:"frontend"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Type     string         `mapstructure:"type"` // "postgres" or "memory"
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a postgres connection string.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

// SecurityConfig holds the secrets shared across the credential vault
// and the state token signer.
type SecurityConfig struct {
	// MasterKey protects stored provider credentials and signs
	// authorization-flow state tokens.
	MasterKey string        `mapstructure:"master_key"`
	StateTTL  time.Duration `mapstructure:"state_ttl"`
}

type GitHubConfig struct {
	AppID         string `mapstructure:"app_id"`
	AppSlug       string `mapstructure:"app_slug"`
	PrivateKeyPEM string `mapstructure:"private_key_pem"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	APIBaseURL    string `mapstructure:"api_base_url"`
}

type SlackConfig struct {
	ClientID      string `mapstructure:"client_id"`
	ClientSecret  string `mapstructure:"client_secret"`
	SigningSecret string `mapstructure:"signing_secret"`
	RedirectURL   string `mapstructure:"redirect_url"`
	APIBaseURL    string `mapstructure:"api_base_url"`
}

type AnalysisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	NATSURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

type IngestionConfig struct {
	MaxBodySize       int           `mapstructure:"max_body_size"`
	RateLimitEnabled  bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
	RedisURL          string        `mapstructure:"redis_url"`
}

type FrontendConfig struct {
	// BaseURL is where callback handlers redirect the browser after the
	// provider round trip.
	BaseURL string `mapstructure:"base_url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8086)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("database.type", "postgres")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "devsignal")
	v.SetDefault("database.postgres.database", "devsignal")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("security.state_ttl", "10m")
	v.SetDefault("github.api_base_url", "https://api.github.com")
	v.SetDefault("slack.api_base_url", "https://slack.com/api")
	v.SetDefault("analysis.enabled", true)
	v.SetDefault("analysis.nats_url", "nats://localhost:4222")
	v.SetDefault("analysis.subject", "analysis.raw_events.process")
	v.SetDefault("ingestion.max_body_size", 1048576)
	v.SetDefault("ingestion.rate_limit_enabled", false)
	v.SetDefault("ingestion.rate_limit_requests", 1000)
	v.SetDefault("ingestion.rate_limit_window", "1m")
	v.SetDefault("ingestion.redis_url", "redis://localhost:6379/0")
	v.SetDefault("frontend.base_url", "http://localhost:3000")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/devsignal")
	}

	// Environment variables override
	v.SetEnvPrefix("DEVSIGNAL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration that must be present before the service
// can start. Missing secrets are configuration errors: fatal, never
// retried.
func (c *Config) Validate() error {
	if c.Security.MasterKey == "" {
		return fmt.Errorf("security.master_key is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Type != "postgres" && c.Database.Type != "memory" {
		return fmt.Errorf("database.type must be postgres or memory, got %q", c.Database.Type)
	}
	return nil
}
