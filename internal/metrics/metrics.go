package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"skeddy/internal/reminder"
)

const namespace = "skeddy"

// Metrics exposes Prometheus collectors that report reminder activity.
// It implements reminder.Observer.
type Metrics struct {
	created    prometheus.Counter
	rejected   *prometheus.CounterVec
	dispatched *prometheus.CounterVec
	evicted    prometheus.Counter
	pending    prometheus.Gauge
}

var _ reminder.Observer = (*Metrics)(nil)

// MustNewMetrics constructs and registers the collectors with reg.
// Collectors already present in reg are reused, so building twice against the
// same registry is safe. Any other registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "created_total",
			Help:      "Reminders accepted and stored.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "rejected_total",
			Help:      "Reminder requests refused at intake, by reason.",
		}, []string{"reason"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "attempts_total",
			Help:      "Finished notification dispatches, by result.",
		}, []string{"result"}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "evicted_total",
			Help:      "Sent reminders removed after the retention window.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "pending",
			Help:      "Unsent reminders held in memory.",
		}),
	}

	m.created = register(reg, m.created).(prometheus.Counter)
	m.rejected = register(reg, m.rejected).(*prometheus.CounterVec)
	m.dispatched = register(reg, m.dispatched).(*prometheus.CounterVec)
	m.evicted = register(reg, m.evicted).(prometheus.Counter)
	m.pending = register(reg, m.pending).(prometheus.Gauge)
	return m
}

// RegisterQueueDepth exports a gauge that samples fn on every scrape.
func RegisterQueueDepth(reg prometheus.Registerer, fn func() int) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	register(reg, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "queue_depth",
		Help:      "Notifications waiting for a worker.",
	}, func() float64 { return float64(fn()) }))
}

func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return already.ExistingCollector
		}
		panic(err)
	}
	return c
}

func (m *Metrics) ReminderCreated() {
	if m == nil {
		return
	}
	m.created.Inc()
}

func (m *Metrics) ReminderRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) DispatchFinished(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.dispatched.WithLabelValues(result).Inc()
}

func (m *Metrics) RemindersEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evicted.Add(float64(n))
}

func (m *Metrics) RemindersPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
