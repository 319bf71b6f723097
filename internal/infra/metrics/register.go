// Package metrics holds every Prometheus collector the service exports. Each
// file declares its collectors and enqueues them from init(); the process
// activates the whole set with one MustRegister call at startup. Recording
// functions work before registration, so tests never need the registry.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once       sync.Once
	collectors []prometheus.Collector
)

// register enqueues collectors; called from init() in each metrics file.
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// MustRegister registers every enqueued collector with the default registry
// exactly once. Safe to call from multiple entry points.
func MustRegister() {
	once.Do(func() {
		if len(collectors) > 0 {
			prometheus.MustRegister(collectors...)
		}
	})
}
