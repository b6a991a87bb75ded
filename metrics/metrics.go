// Package metrics implements the prometheus metrics collaborator the
// consumption engines notify on every fetched message.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	secondsBehind    prometheus.Gauge
	messagesConsumed *prometheus.CounterVec
}

// New builds the collectors and registers them on reg. Pass
// prometheus.DefaultRegisterer for process-wide exposition, or a private
// registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		secondsBehind: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fluvii",
			Name:      "seconds_behind",
			Help:      "Seconds between now and the timestamp of the last consumed message.",
		}),
		messagesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fluvii",
			Name:      "messages_consumed_total",
			Help:      "Messages consumed, by topic.",
		}, []string{"topic"}),
	}
	reg.MustRegister(m.secondsBehind, m.messagesConsumed)
	return m
}

func (m *Metrics) SetSecondsBehind(seconds int64) {
	m.secondsBehind.Set(float64(seconds))
}

func (m *Metrics) IncMessagesConsumed(n int, topic string) {
	m.messagesConsumed.WithLabelValues(topic).Add(float64(n))
}
