package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhooksReceived counts inbound notifications by verification outcome:
	// "accepted", "rejected" (bad signature), "duplicate".
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_received_total",
		Help: "Inbound payment webhooks by outcome",
	}, []string{"outcome"})

	ReconciliationsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconciliations_completed_total",
		Help: "Transactions driven to a terminal state, by status and source channel",
	}, []string{"status", "source"})

	PollAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_poll_attempts_total",
		Help: "Gateway status poll attempts",
	})

	CreditsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "holdings_credits_applied_total",
		Help: "Holdings credits applied, by asset type",
	}, []string{"asset_type"})

	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Outbound payment gateway requests by operation and result",
	}, []string{"operation", "result"})
)
