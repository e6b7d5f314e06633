package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Lookup results recorded by a Tier.
const (
	resultHit   = "hit"
	resultMiss  = "miss"
	resultStale = "stale"
	resultError = "error"
	resultOK    = "ok"
)

// Metrics counts tier lookups and writes per table.
type Metrics struct {
	lookups *prometheus.CounterVec
	writes  *prometheus.CounterVec
}

// NewMetrics creates the tier counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dexcache",
			Name:      "tier_lookups_total",
			Help:      "Cache tier lookups by table and result (hit, miss, stale, error).",
		}, []string{"table", "result"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dexcache",
			Name:      "tier_writes_total",
			Help:      "Cache tier writes by table and result (ok, error).",
		}, []string{"table", "result"}),
	}
	if reg != nil {
		if err := reg.Register(m.lookups); err != nil {
			return nil, err
		}
		if err := reg.Register(m.writes); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) lookup(table, result string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(table, result).Inc()
}

func (m *Metrics) write(table, result string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(table, result).Inc()
}
