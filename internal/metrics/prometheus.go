package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/shardgate/internal/readiness"
)

// Prometheus implements the scheduler, readiness and cache metrics hooks.
type Prometheus struct {
	dispatched  *prometheus.CounterVec
	queueDepth  prometheus.Gauge
	retries     prometheus.Counter
	signals     *prometheus.CounterVec
	globalReady prometheus.Gauge
	evicted     prometheus.Counter
	cacheSize   prometheus.Gauge
	remaining   prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Prometheus {
	m := &Prometheus{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shardgate_scheduler_dispatched_total",
			Help: "Connection attempts dispatched, by admission path",
		}, []string{"path"}),

		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shardgate_scheduler_queue_depth",
			Help: "Shards waiting for admission",
		}),

		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shardgate_scheduler_retries_total",
			Help: "Admission retry polls scheduled",
		}),

		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shardgate_readiness_signals_total",
			Help: "Readiness events emitted, by kind",
		}, []string{"kind"}),

		globalReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shardgate_ready",
			Help: "1 when every shard is ready",
		}),

		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shardgate_cache_evictions_total",
			Help: "Objects evicted from the cache",
		}),

		cacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shardgate_cache_entries",
			Help: "Objects currently cached",
		}),

		remaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shardgate_session_starts_remaining",
			Help: "Session starts left in the current window, as last reported by the service",
		}),
	}

	reg.MustRegister(
		m.dispatched,
		m.queueDepth,
		m.retries,
		m.signals,
		m.globalReady,
		m.evicted,
		m.cacheSize,
		m.remaining,
	)
	return m
}

func (m *Prometheus) Dispatched(fast bool) {
	path := "queued"
	if fast {
		path = "fast"
	}
	m.dispatched.WithLabelValues(path).Inc()
}

func (m *Prometheus) QueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

func (m *Prometheus) RetryScheduled() {
	m.retries.Inc()
}

func (m *Prometheus) Signal(kind readiness.EventKind) {
	m.signals.WithLabelValues(kind.String()).Inc()
}

func (m *Prometheus) GlobalReady(ready bool) {
	if ready {
		m.globalReady.Set(1)
		return
	}
	m.globalReady.Set(0)
}

func (m *Prometheus) Evicted(n int) {
	m.evicted.Add(float64(n))
}

func (m *Prometheus) Size(n int) {
	m.cacheSize.Set(float64(n))
}

// SessionStartsRemaining records the last reported session-start budget.
func (m *Prometheus) SessionStartsRemaining(n int) {
	m.remaining.Set(float64(n))
}
