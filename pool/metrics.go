package pool

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the pool collectors.
type metrics struct {
	sessions  *prometheus.GaugeVec
	checkouts prometheus.Counter
	retries   prometheus.Counter
	discarded prometheus.Counter
}

// newMetrics creates the pool collectors and registers them with reg, if
// not nil. Collectors registered by another pool are shared.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		sessions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orb_pool_sessions",
				Help: "Number of pooled sessions by state",
			},
			[]string{"state"},
		),
		checkouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orb_pool_checkouts_total",
			Help: "Total number of session checkouts",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orb_pool_retries_total",
			Help: "Total number of statements replayed after a lost connection",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orb_pool_discarded_total",
			Help: "Total number of sessions discarded instead of returned",
		}),
	}
	if reg != nil {
		m.sessions = register(reg, m.sessions)
		m.checkouts = register(reg, m.checkouts)
		m.retries = register(reg, m.retries)
		m.discarded = register(reg, m.discarded)
	}
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
	}
	return c
}
