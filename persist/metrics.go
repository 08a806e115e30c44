package persist

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors of a scheduler.
type Metrics struct {
	Submitted *prometheus.CounterVec
	Executed  *prometheus.CounterVec
	Discarded *prometheus.CounterVec
	Failed    *prometheus.CounterVec
	Pending   prometheus.Gauge
	Flushes   prometheus.Counter
}

// NewMetrics creates the collectors, they are not registered.
func NewMetrics(namespace string) *Metrics {
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persist",
			Name:      name,
			Help:      help,
		}, []string{"kind"})
	}

	return &Metrics{
		Submitted: counter("actions_submitted_total", "Number of scheduled persist actions."),
		Executed:  counter("actions_executed_total", "Number of persist actions that resulted in a successful storage call."),
		Discarded: counter("actions_discarded_total", "Number of stale persist actions dropped without a storage call."),
		Failed:    counter("actions_failed_total", "Number of persist actions whose storage call failed."),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "persist",
			Name:      "actions_pending",
			Help:      "Number of persist actions waiting for execution.",
		}),
		Flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persist",
			Name:      "batch_flushes_total",
			Help:      "Number of batch flushes.",
		}),
	}
}

// Register registers all collectors.
func (m *Metrics) Register(registerer prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{m.Submitted, m.Executed, m.Discarded, m.Failed, m.Pending, m.Flushes} {
		if err := registerer.Register(collector); err != nil {
			return errors.Wrap(err, "failed to register persist metrics")
		}
	}

	return nil
}
