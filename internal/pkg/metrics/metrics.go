package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OTPIssued counts codes stored for delivery, by purpose (register|login).
	OTPIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopnest_otp_issued_total",
			Help: "Total number of verification codes issued",
		},
		[]string{"purpose"},
	)

	// OTPVerifications counts verification attempts by outcome
	// (success|not_found|expired|mismatch|error).
	OTPVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopnest_otp_verifications_total",
			Help: "Total number of verification code checks",
		},
		[]string{"result"},
	)

	// Deliveries counts outbound notifications per channel (email|sms) and
	// result (success|failure).
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopnest_notification_deliveries_total",
			Help: "Total number of notification delivery attempts",
		},
		[]string{"channel", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopnest_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Result returns the success|failure label for err.
func Result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
