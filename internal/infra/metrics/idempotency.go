package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(idempotencyTotal) }

// outcome: miss|hit|in_progress|conflict
var idempotencyTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "idempotency_lookups_total",
		Help: "Idempotency key lookups by scope and outcome.",
	},
	[]string{"scope", "outcome"},
)

func IncIdempotency(scope, outcome string) {
	idempotencyTotal.WithLabelValues(norm(scope), norm(outcome)).Inc()
}
