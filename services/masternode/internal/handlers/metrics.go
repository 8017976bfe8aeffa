package handlers

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Searches      *prometheus.CounterVec
	Registrations *prometheus.CounterVec
	Released      prometheus.Counter
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Searches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "masternode_searches_total",
				Help: "Total masternode table searches.",
			},
			[]string{"sort_by", "filtered"},
		),
		Registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "masternode_registrations_total",
				Help: "Masternode registration attempts.",
			},
			[]string{"result"},
		),
		Released: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "masternode_ownership_released_total",
				Help: "Masternodes released after their owner was deleted.",
			},
		),
	}

	registry.MustRegister(m.Searches, m.Registrations, m.Released)
	return m
}
