package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhooksTotal,
		webhookDuration,
	)
}

var (
	// result: processed|already_processed|signature_invalid|
	// authorization_invalid|unknown_tenant|malformed|error
	webhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_total",
			Help: "Webhook deliveries by provider and outcome.",
		},
		[]string{"provider", "result"},
	)

	webhookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_duration_seconds",
			Help:    "Duration of webhook processing in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"provider", "result"},
	)
)

func IncWebhook(provider, result string) {
	webhooksTotal.WithLabelValues(norm(provider), norm(result)).Inc()
}

func ObserveWebhook(provider, result string, seconds float64) {
	webhookDuration.WithLabelValues(norm(provider), norm(result)).Observe(seconds)
}
