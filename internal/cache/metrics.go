package cache

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Load sources reported in billsplit_cache_loads_total.
const (
	sourceMemory    = "memory"
	sourcePersisted = "persisted"
	sourceRemote    = "remote"
	sourceFallback  = "fallback"
	sourceEmpty     = "empty"
)

type metrics struct {
	loads       *prometheus.CounterVec
	persistErrs *prometheus.CounterVec
}

// newMetrics builds the cache collectors and registers them with reg when it
// is non-nil. A second Manager on the same registry shares the collectors.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billsplit_cache_loads_total",
				Help: "Completed cache loads by collection and the source that satisfied them.",
			},
			[]string{"collection", "source"},
		),
		persistErrs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billsplit_cache_persist_errors_total",
				Help: "Failed writes or deletes against the persistent store, by key.",
			},
			[]string{"key"},
		),
	}
	if reg == nil {
		return m
	}
	m.loads = register(reg, m.loads)
	m.persistErrs = register(reg, m.persistErrs)
	return m
}

func register(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func (m *metrics) load(collection, source string) {
	m.loads.WithLabelValues(collection, source).Inc()
}

func (m *metrics) persistFailed(key string) {
	m.persistErrs.WithLabelValues(key).Inc()
}
