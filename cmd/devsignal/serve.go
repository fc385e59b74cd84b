package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/devsignal-systems/devsignal/internal/analysis"
	"github.com/devsignal-systems/devsignal/internal/config"
	"github.com/devsignal-systems/devsignal/internal/handlers"
	"github.com/devsignal-systems/devsignal/internal/httpclient"
	"github.com/devsignal-systems/devsignal/internal/ingest"
	"github.com/devsignal-systems/devsignal/internal/logging"
	"github.com/devsignal-systems/devsignal/internal/provider/github"
	"github.com/devsignal-systems/devsignal/internal/provider/slack"
	"github.com/devsignal-systems/devsignal/internal/ratelimit"
	"github.com/devsignal-systems/devsignal/internal/repository"
	"github.com/devsignal-systems/devsignal/internal/server"
	"github.com/devsignal-systems/devsignal/internal/statetoken"
	"github.com/devsignal-systems/devsignal/internal/tokenbroker"
	"github.com/devsignal-systems/devsignal/internal/vault"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the devsignal HTTP service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("devsignal"))
	logging.SetDefault(logger)

	slog.Info("Starting devsignal",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Repository
	var repo repository.Repository
	if cfg.Database.Type == "postgres" {
		connString := cfg.Database.Postgres.ConnString()

		slog.Info("Connecting to PostgreSQL",
			slog.String("host", cfg.Database.Postgres.Host),
			slog.String("database", cfg.Database.Postgres.Database),
		)
		pgRepo, err := repository.NewPostgresRepository(context.Background(), connString)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pgRepo.Close()
		repo = pgRepo

		if err := runMigrations(connString); err != nil {
			return err
		}
	} else {
		slog.Warn("Using in-memory repository (development only)")
		repo = repository.NewInMemoryRepository()
	}

	// Credential vault and state signing share the master key.
	v, err := vault.New(cfg.Security.MasterKey)
	if err != nil {
		return fmt.Errorf("init vault: %w", err)
	}
	states := statetoken.NewSigner(cfg.Security.MasterKey, cfg.Security.StateTTL)

	// Provider clients ride the retrying HTTP client.
	api := httpclient.New()
	githubClient := github.NewClient(api, cfg.GitHub.APIBaseURL)
	slackClient := slack.NewClient(api, cfg.Slack.APIBaseURL)
	slackOAuth := slack.NewOAuthConfig(cfg.Slack.ClientID, cfg.Slack.ClientSecret, cfg.Slack.RedirectURL, cfg.Slack.APIBaseURL)

	var appSigner *github.AssertionSigner
	if cfg.GitHub.AppID != "" && cfg.GitHub.PrivateKeyPEM != "" {
		appSigner, err = github.NewAssertionSigner(cfg.GitHub.AppID, cfg.GitHub.PrivateKeyPEM)
		if err != nil {
			return fmt.Errorf("init github app signer: %w", err)
		}
	}
	broker := tokenbroker.New(repo, v, appSigner, githubClient)

	// Analysis hand-off
	var handoff ingest.AnalysisHandoff = analysis.Noop{}
	if cfg.Analysis.Enabled {
		publisher, err := analysis.Connect(cfg.Analysis.NATSURL, cfg.Analysis.Subject)
		if err != nil {
			return fmt.Errorf("connect analysis publisher: %w", err)
		}
		defer publisher.Close()
		handoff = publisher
		slog.Info("Analysis hand-off enabled", slog.String("subject", cfg.Analysis.Subject))
	}

	// Webhook rate limiting
	var limiter ratelimit.Limiter = ratelimit.NoOp{}
	if cfg.Ingestion.RateLimitEnabled {
		limiter, err = ratelimit.NewRedis(cfg.Ingestion.RedisURL, cfg.Ingestion.RateLimitRequests, cfg.Ingestion.RateLimitWindow)
		if err != nil {
			return fmt.Errorf("init rate limiter: %w", err)
		}
		defer limiter.Close()
	}

	profiles := ingest.NewSlackProfileLookup(broker, slackClient)
	ingestor := ingest.New(repo, ingest.NewIdentityResolver(repo), handoff, profiles, logger)

	webhookHandler := handlers.NewWebhookHandler(
		ingestor, limiter,
		cfg.GitHub.WebhookSecret, cfg.Slack.SigningSecret,
		int64(cfg.Ingestion.MaxBodySize), logger,
	)
	connectHandler := handlers.NewConnectHandler(
		repo, states, v, slackOAuth, slackClient,
		cfg.GitHub.AppSlug, cfg.Frontend.BaseURL, logger,
	)
	integrationHandler := handlers.NewIntegrationHandler(repo, logger)
	syncHandler := handlers.NewSyncHandler(repo, broker, githubClient, slackClient, logger)
	healthHandler := handlers.NewHealthHandler(repo)

	router := server.NewRouter(webhookHandler, connectHandler, integrationHandler, syncHandler, healthHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("devsignal listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	slog.Info("Server stopped gracefully")
	return nil
}

func runMigrations(connString string) error {
	slog.Info("Running database migrations")
	m, err := migrate.New("file://migrations", connString)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		slog.Warn("Could not get migration version", slog.String("error", err.Error()))
		return nil
	}
	slog.Info("Database migration complete",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}
