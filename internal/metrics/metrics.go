package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cutstyle"

// Metrics holds the reservation counters. A nil *Metrics records nothing,
// so components can be built without a registry in tests and tools.
type Metrics struct {
	holdsCreated   prometheus.Counter
	holdsReused    prometheus.Counter
	transitions    *prometheus.CounterVec
	sweepRuns      prometheus.Counter
	sweepCancelled prometheus.Counter
	sweepDuration  prometheus.Histogram
	notifications  *prometheus.CounterVec
	gatewayErrors  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		holdsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_created_total",
			Help:      "Payment holds created.",
		}),
		holdsReused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_reused_total",
			Help:      "Reservation retries answered with a live hold.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hold_transitions_total",
			Help:      "Hold transitions by target status and actor.",
		}, []string{"to", "by"}),
		sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Expiry sweep runs.",
		}),
		sweepCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_cancelled_total",
			Help:      "Holds cancelled by the expiry sweep.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one expiry sweep run.",
			Buckets:   prometheus.DefBuckets,
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Customer and professional notifications by kind and result.",
		}, []string{"kind", "result"}),
		gatewayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_errors_total",
			Help:      "Payment gateway failures by operation.",
		}, []string{"op"}),
	}

	reg.MustRegister(
		m.holdsCreated,
		m.holdsReused,
		m.transitions,
		m.sweepRuns,
		m.sweepCancelled,
		m.sweepDuration,
		m.notifications,
		m.gatewayErrors,
	)

	return m
}

func (m *Metrics) HoldCreated() {
	if m != nil {
		m.holdsCreated.Inc()
	}
}

func (m *Metrics) HoldReused() {
	if m != nil {
		m.holdsReused.Inc()
	}
}

func (m *Metrics) Transition(to, by string) {
	if m != nil {
		m.transitions.WithLabelValues(to, by).Inc()
	}
}

func (m *Metrics) SweepRun(cancelled int, took time.Duration) {
	if m == nil {
		return
	}
	m.sweepRuns.Inc()
	m.sweepCancelled.Add(float64(cancelled))
	m.sweepDuration.Observe(took.Seconds())
}

// Notification records one dispatch attempt; result is sent, failed or unreachable.
func (m *Metrics) Notification(kind, result string) {
	if m != nil {
		m.notifications.WithLabelValues(kind, result).Inc()
	}
}

func (m *Metrics) GatewayError(op string) {
	if m != nil {
		m.gatewayErrors.WithLabelValues(op).Inc()
	}
}
