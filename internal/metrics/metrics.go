package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors. A fresh registry
// per instance keeps parallel test engines from colliding.
type Metrics struct {
	Registry *prometheus.Registry

	ChecksTotal     *prometheus.CounterVec
	CheckDuration   prometheus.Histogram
	MonitorsByState *prometheus.GaugeVec
	OpenIncidents   prometheus.Gauge
	SchedulerFaults prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ChecksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "uptime_checks_total",
			Help: "Probe outcomes by result.",
		}, []string{"result"}),
		CheckDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "uptime_check_duration_seconds",
			Help:    "Probe wall-clock duration.",
			Buckets: prometheus.DefBuckets,
		}),
		MonitorsByState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "uptime_monitors",
			Help: "Monitors by current status.",
		}, []string{"status"}),
		OpenIncidents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "uptime_open_incidents",
			Help: "Currently open incidents.",
		}),
		SchedulerFaults: factory.NewCounter(prometheus.CounterOpts{
			Name: "uptime_scheduler_faults_total",
			Help: "Unexpected faults absorbed by the scheduler loop.",
		}),
	}
}
