package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		gatewayCallDuration,
		tokenRefreshTotal,
		adapterFallbackTotal,
	)
}

var (
	gatewayCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_call_duration_seconds",
			Help:    "Latency of outbound provider calls by operation and result.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "op", "result"},
	)

	// result: ok|error. trigger: expiry|window|forced
	tokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_token_refresh_total",
			Help: "Gateway auth token refreshes by trigger and result.",
		},
		[]string{"provider", "trigger", "result"},
	)

	adapterFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adapter_fallback_total",
			Help: "Times routing fell back from one provider to another.",
		},
		[]string{"from", "to"},
	)
)

func ObserveGatewayCall(provider, op, result string, seconds float64) {
	gatewayCallDuration.WithLabelValues(norm(provider), norm(op), norm(result)).Observe(seconds)
}

func IncTokenRefresh(provider, trigger, result string) {
	tokenRefreshTotal.WithLabelValues(norm(provider), norm(trigger), norm(result)).Inc()
}

func IncAdapterFallback(from, to string) {
	adapterFallbackTotal.WithLabelValues(norm(from), norm(to)).Inc()
}
