// Package metrics exposes Prometheus collectors for the monitoring core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// latencyBuckets follow typical API response times in milliseconds.
var latencyBuckets = []float64{25, 50, 75, 100, 150, 200, 300, 500, 700, 1000, 1500, 2000, 3000, 5000, 10000}

type Metrics struct {
	ChecksTotal     *prometheus.CounterVec
	ChecksFailTotal *prometheus.CounterVec
	IncidentsTotal  *prometheus.CounterVec
	AnomaliesTotal  *prometheus.CounterVec
	ResponseTimeMS  *prometheus.HistogramVec
	TargetUp        *prometheus.GaugeVec

	MLMedianMS *prometheus.GaugeVec
	MLMADMS    *prometheus.GaugeVec
	MLUCLMS    *prometheus.GaugeVec
	MLP95MS    *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_monitor_checks_total",
			Help: "Checks executed per target.",
		}, []string{"target"}),
		ChecksFailTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_monitor_checks_fail_total",
			Help: "Failed checks per target.",
		}, []string{"target"}),
		IncidentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_monitor_incidents_total",
			Help: "Incidents opened per target.",
		}, []string{"target"}),
		AnomaliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_monitor_anomalies_total",
			Help: "Latency anomalies recorded per target.",
		}, []string{"target"}),
		ResponseTimeMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_monitor_response_time_ms",
			Help:    "Response time of successful checks in milliseconds.",
			Buckets: latencyBuckets,
		}, []string{"target"}),
		TargetUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "api_monitor_target_up",
			Help: "1 when the target is UP, 0 when DOWN.",
		}, []string{"target"}),
		MLMedianMS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "api_monitor_ml_median_ms",
			Help: "Baseline latency median.",
		}, []string{"target"}),
		MLMADMS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "api_monitor_ml_mad_ms",
			Help: "Baseline latency MAD.",
		}, []string{"target"}),
		MLUCLMS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "api_monitor_ml_ucl_ms",
			Help: "Baseline upper control limit.",
		}, []string{"target"}),
		MLP95MS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "api_monitor_ml_p95_ms",
			Help: "Baseline latency p95.",
		}, []string{"target"}),
	}
	reg.MustRegister(
		m.ChecksTotal, m.ChecksFailTotal, m.IncidentsTotal, m.AnomaliesTotal,
		m.ResponseTimeMS, m.TargetUp,
		m.MLMedianMS, m.MLMADMS, m.MLUCLMS, m.MLP95MS,
	)
	return m
}

// NewNop returns collectors bound to a throwaway registry, for tests and
// for callers that do not expose metrics.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
