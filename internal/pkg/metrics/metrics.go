// Package metrics holds the Prometheus collectors for the ledger core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ledger"

var (
	gatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Payment gateway call latency partitioned by operation and outcome.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation", "outcome"},
	)

	reconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciliation",
			Name:      "attempts_total",
			Help:      "Charge reconciliation attempts partitioned by entry path and outcome.",
		},
		[]string{"source", "outcome"},
	)

	withdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "withdrawal",
			Name:      "transitions_total",
			Help:      "Withdrawal state transitions partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	otpChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "withdrawal",
			Name:      "otp_checks_total",
			Help:      "Withdrawal OTP submissions partitioned by result.",
		},
		[]string{"result"},
	)

	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Provider webhook deliveries partitioned by event and result.",
		},
		[]string{"event", "result"},
	)

	eventPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_errors_total",
			Help:      "Ledger events that could not be handed to the notification backend.",
		},
	)
)

// ObserveGateway records one gateway call.
func ObserveGateway(operation string, err error, started time.Time) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	gatewayRequestDuration.WithLabelValues(operation, outcome).Observe(time.Since(started).Seconds())
}

func Reconciliation(source, outcome string) {
	reconciliationsTotal.WithLabelValues(source, outcome).Inc()
}

func Withdrawal(outcome string) {
	withdrawalsTotal.WithLabelValues(outcome).Inc()
}

func OTPCheck(result string) {
	otpChecksTotal.WithLabelValues(result).Inc()
}

func WebhookEvent(event, result string) {
	webhookEventsTotal.WithLabelValues(event, result).Inc()
}

func EventPublishError() {
	eventPublishErrors.Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
