package bridge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels recorded by Metrics.
const (
	OutcomeCreated   = "created"
	OutcomeExtended  = "extended"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeForwarded = "forwarded"
	OutcomeDropped   = "dropped"
	OutcomeMalformed = "malformed"
	OutcomeFailed    = "failed"
)

// Metrics holds the Prometheus collectors for one bridge variant.
// A nil *Metrics records nothing.
type Metrics struct {
	received prometheus.Counter
	outcomes *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics creates collectors labelled with the bridge name and registers
// them with reg.
func NewMetrics(reg prometheus.Registerer, bridgeName string) (*Metrics, error) {
	labels := prometheus.Labels{"bridge": bridgeName}
	m := &Metrics{
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "kcibridge",
			Name:        "nodes_received_total",
			Help:        "Nodes retrieved from the subscription.",
			ConstLabels: labels,
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "kcibridge",
			Name:        "nodes_processed_total",
			Help:        "Processed nodes by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "kcibridge",
			Name:        "node_processing_seconds",
			Help:        "Time spent handling one node, flush included.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{m.received, m.outcomes, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) nodeReceived() {
	if m == nil {
		return
	}
	m.received.Inc()
}

// Outcome counts one node with the given outcome label.
func (m *Metrics) Outcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observe(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}
