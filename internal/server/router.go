// Package server assembles the HTTP routing surface.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devsignal-systems/devsignal/internal/handlers"
	"github.com/devsignal-systems/devsignal/internal/middleware"
)

// NewRouter constructs a ServeMux with all API routes registered.
func NewRouter(
	webhooks *handlers.WebhookHandler,
	connect *handlers.ConnectHandler,
	integrations *handlers.IntegrationHandler,
	sync *handlers.SyncHandler,
	health *handlers.HealthHandler,
) http.Handler {
	mux := http.NewServeMux()

	// Inbound provider deliveries
	mux.HandleFunc("POST /webhooks/github", webhooks.GitHub)
	mux.HandleFunc("POST /webhooks/slack", webhooks.Slack)

	// Provider authorization flows (browser-facing)
	mux.HandleFunc("GET /api/v1/integrations/github/install", connect.GitHubInstall)
	mux.HandleFunc("GET /api/v1/integrations/github/callback", connect.GitHubCallback)
	mux.HandleFunc("GET /api/v1/integrations/slack/install", connect.SlackInstall)
	mux.HandleFunc("GET /api/v1/integrations/slack/callback", connect.SlackCallback)

	// Tenant configuration surface
	mux.HandleFunc("GET /api/v1/orgs/{orgID}/integrations", integrations.List)
	mux.HandleFunc("DELETE /api/v1/orgs/{orgID}/integrations/{provider}", integrations.Disconnect)
	mux.HandleFunc("GET /api/v1/orgs/{orgID}/integrations/{provider}/resources", integrations.ListResources)
	mux.HandleFunc("POST /api/v1/orgs/{orgID}/integrations/{provider}/resources/sync", sync.Sync)
	mux.HandleFunc("PUT /api/v1/projects/{projectID}/connections/{provider}", integrations.SetConnection)

	// Analysis consumer ack
	mux.HandleFunc("POST /api/v1/raw-events/{id}/processed", integrations.MarkProcessed)

	// Probes and metrics
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
