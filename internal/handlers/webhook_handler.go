// Package handlers wires the HTTP surface: inbound webhook deliveries,
// provider authorization flows, and the thin tenant CRUD around
// integrations and connections.
package handlers

import (
	"io"
	"net/http"

	"github.com/devsignal-systems/devsignal/internal/httputil"
	"github.com/devsignal-systems/devsignal/internal/ingest"
	"github.com/devsignal-systems/devsignal/internal/logging"
	"github.com/devsignal-systems/devsignal/internal/metrics"
	"github.com/devsignal-systems/devsignal/internal/ratelimit"
	"github.com/devsignal-systems/devsignal/internal/webhook"
)

// WebhookHandler terminates inbound provider deliveries. Verification
// happens against the raw body before any parsing; a verified delivery
// is answered 200 once its audit record exists, whatever normalization
// then decides.
type WebhookHandler struct {
	ingestor     *ingest.Ingestor
	limiter      ratelimit.Limiter
	githubSecret string
	slackSecret  string
	maxBodyBytes int64
	logger       *logging.Logger
}

func NewWebhookHandler(ingestor *ingest.Ingestor, limiter ratelimit.Limiter, githubSecret, slackSecret string, maxBodyBytes int64, logger *logging.Logger) *WebhookHandler {
	return &WebhookHandler{
		ingestor:     ingestor,
		limiter:      limiter,
		githubSecret: githubSecret,
		slackSecret:  slackSecret,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// readBody enforces the size cap and the rate limit, answering for the
// caller when either rejects the delivery.
func (h *WebhookHandler) readBody(w http.ResponseWriter, r *http.Request, provider string) ([]byte, bool) {
	allowed, err := h.limiter.Allow(r.Context(), provider+":"+httputil.GetClientIP(r))
	if err != nil {
		// A broken limiter must not drop verified provider traffic.
		h.logger.WarnContext(r.Context(), "rate limiter unavailable, admitting delivery",
			logging.ProviderName(provider),
			logging.Error(err),
		)
	} else if !allowed {
		metrics.WebhookDeliveriesTotal.WithLabelValues(provider, "rate_limited").Inc()
		httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return nil, false
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues(provider, "oversized").Inc()
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return nil, false
	}
	return body, true
}

// GitHub handles POST /webhooks/github.
func (h *WebhookHandler) GitHub(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, ok := h.readBody(w, r, "github")
	if !ok {
		return
	}

	if err := webhook.VerifyGitHub(body, r.Header.Get("X-Hub-Signature-256"), h.githubSecret); err != nil {
		metrics.WebhookVerificationFailures.WithLabelValues("github").Inc()
		metrics.WebhookDeliveriesTotal.WithLabelValues("github", "rejected").Inc()
		h.logger.WarnContext(ctx, "github delivery rejected",
			logging.ProviderName("github"),
			"remote_ip", httputil.GetClientIP(r),
		)
		httputil.WriteError(w, http.StatusUnauthorized, "signature verification failed")
		return
	}

	kind := r.Header.Get("X-GitHub-Event")
	deliveryID := r.Header.Get("X-GitHub-Delivery")

	if err := h.ingestor.HandleGitHub(ctx, kind, deliveryID, body); err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues("github", "error").Inc()
		h.logger.ErrorContext(ctx, "github delivery failed",
			logging.DeliveryID(deliveryID),
			logging.Error(err),
		)
		httputil.WriteError(w, http.StatusInternalServerError, "delivery processing failed")
		return
	}

	metrics.WebhookDeliveriesTotal.WithLabelValues("github", "accepted").Inc()
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// Slack handles POST /webhooks/slack.
func (h *WebhookHandler) Slack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, ok := h.readBody(w, r, "slack")
	if !ok {
		return
	}

	err := webhook.VerifySlack(body,
		r.Header.Get("X-Slack-Request-Timestamp"),
		r.Header.Get("X-Slack-Signature"),
		h.slackSecret,
	)
	if err != nil {
		metrics.WebhookVerificationFailures.WithLabelValues("slack").Inc()
		metrics.WebhookDeliveriesTotal.WithLabelValues("slack", "rejected").Inc()
		h.logger.WarnContext(ctx, "slack delivery rejected",
			logging.ProviderName("slack"),
			"remote_ip", httputil.GetClientIP(r),
		)
		httputil.WriteError(w, http.StatusUnauthorized, "signature verification failed")
		return
	}

	challenge, err := h.ingestor.HandleSlack(ctx, body)
	if err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues("slack", "error").Inc()
		h.logger.ErrorContext(ctx, "slack delivery failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "delivery processing failed")
		return
	}

	metrics.WebhookDeliveriesTotal.WithLabelValues("slack", "accepted").Inc()
	if challenge != "" {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"challenge": challenge})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}
