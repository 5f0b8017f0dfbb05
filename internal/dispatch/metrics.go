package dispatch

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/company-research/internal/model"
)

// Metrics holds the Prometheus collectors for task execution.
type Metrics struct {
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	running   prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns collectors registered with the global registry.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// NewMetrics registers the collectors with reg. Collectors that are already
// registered are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "research_tasks_processed_total",
			Help: "Tasks that reached a terminal or detached state, by agent type and status.",
		}, []string{"agent_type", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "research_task_duration_seconds",
			Help:    "Time spent executing a task attempt.",
			Buckets: prometheus.DefBuckets,
		}, []string{"agent_type"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "research_tasks_running",
			Help: "Task attempts currently executing in this process.",
		}),
	}

	m.processed = register(reg, m.processed)
	m.duration = register(reg, m.duration)
	m.running = register(reg, m.running)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) start() {
	if m == nil {
		return
	}
	m.running.Inc()
}

func (m *Metrics) finish(agentType model.AgentType, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.running.Dec()
	m.processed.WithLabelValues(string(agentType), status).Inc()
	m.duration.WithLabelValues(string(agentType)).Observe(elapsed.Seconds())
}
