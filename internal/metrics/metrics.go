package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook delivery metrics
	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devsignal_webhook_deliveries_total",
			Help: "Total number of inbound webhook deliveries",
		},
		[]string{"provider", "status"},
	)

	WebhookVerificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devsignal_webhook_verification_failures_total",
			Help: "Total number of webhook signature verification failures",
		},
		[]string{"provider"},
	)

	// Normalization metrics
	RawEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devsignal_raw_events_total",
			Help: "Total number of canonical raw events created",
		},
		[]string{"provider", "event_type"},
	)

	NormalizationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "devsignal_normalization_duration_seconds",
			Help:    "Duration of webhook payload normalization in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Token broker metrics
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devsignal_token_refreshes_total",
			Help: "Total number of provider token refreshes",
		},
		[]string{"provider", "result"},
	)

	TokenCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devsignal_token_cache_hits_total",
			Help: "Total number of token requests served from the stored token",
		},
	)

	// Outbound provider API metrics
	ProviderAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devsignal_provider_api_calls_total",
			Help: "Total number of outbound provider API calls",
		},
		[]string{"provider", "status"},
	)

	ProviderRateLimitWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devsignal_provider_rate_limit_waits_total",
			Help: "Total number of waits triggered by provider rate limiting",
		},
	)

	// Analysis hand-off metrics
	AnalysisHandoffsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devsignal_analysis_handoffs_total",
			Help: "Total number of raw events handed off to analysis",
		},
		[]string{"result"},
	)
)
