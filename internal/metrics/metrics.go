// Package metrics instruments the protocol engine. Serving the registry is
// the host application's concern; this package only records.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lumeo-social/walletbridge/pkg/walleterr"
)

var (
	operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletbridge_operations_total",
		Help: "Wallet protocol operations by protocol, operation and outcome.",
	}, []string{"protocol", "operation", "outcome"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "walletbridge_operation_duration_seconds",
		Help:    "Wallet protocol operation latency. Includes user think time.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90},
	}, []string{"protocol", "operation"})

	reauthFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletbridge_reauth_fallbacks_total",
		Help: "Reauthorization failures that fell back to a full authorize.",
	})
)

// ObserveOperation records one protocol operation's outcome and latency.
func ObserveOperation(protocol, operation string, start time.Time, err error) {
	operations.WithLabelValues(protocol, operation, outcome(err)).Inc()
	operationDuration.WithLabelValues(protocol, operation).Observe(time.Since(start).Seconds())
}

// ReauthFallback records a reauthorize-to-authorize fallback.
func ReauthFallback() {
	reauthFallbacks.Inc()
}

// outcome buckets an operation result. Cancellation is its own bucket so it
// never skews the failure rate.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}
	if kind := walleterr.KindOf(err); kind != 0 {
		return kind.String()
	}
	return "error"
}
