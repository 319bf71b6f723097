package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(reconcileChecksTotal) }

var reconcileChecksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reconcile_checks_total",
		Help: "Stale payment re-verifications, split by whether the status moved.",
	},
	[]string{"provider", "changed"},
)

func IncReconciled(provider string, changed bool) {
	reconcileChecksTotal.WithLabelValues(norm(provider), strconv.FormatBool(changed)).Inc()
}
