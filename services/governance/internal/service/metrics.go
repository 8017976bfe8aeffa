package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Proposals          *prometheus.CounterVec
	Votes              *prometheus.CounterVec
	StatsRefreshDur    prometheus.Histogram
	StatsRefreshErrors prometheus.Counter
	EnabledMasternodes prometheus.Gauge
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Proposals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governance_proposals_total",
				Help: "Proposal drafts and submissions.",
			},
			[]string{"action", "result"},
		),
		Votes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governance_votes_total",
				Help: "Masternode votes recorded.",
			},
			[]string{"outcome"},
		),
		StatsRefreshDur: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "governance_stats_refresh_duration_seconds",
				Help:    "Masternode stats refresh duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		StatsRefreshErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "governance_stats_refresh_errors_total",
				Help: "Failed masternode stats refreshes.",
			},
		),
		EnabledMasternodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "governance_enabled_masternodes",
				Help: "Enabled masternodes used for the pass threshold.",
			},
		),
	}

	registry.MustRegister(m.Proposals, m.Votes, m.StatsRefreshDur, m.StatsRefreshErrors, m.EnabledMasternodes)
	return m
}

func (m *Metrics) ObserveRefresh(d time.Duration) { m.StatsRefreshDur.Observe(d.Seconds()) }
func (m *Metrics) SetEnabled(count int)           { m.EnabledMasternodes.Set(float64(count)) }
func (m *Metrics) IncRefreshError()               { m.StatsRefreshErrors.Inc() }
