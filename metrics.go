package smbclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of a client. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	transfersTotal   *prometheus.CounterVec
	transferBytes    *prometheus.CounterVec
	transferDuration *prometheus.HistogramVec
	releaseFailures  *prometheus.CounterVec
	poolHandles      *prometheus.GaugeVec
}

// NewMetrics creates the client collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		transfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smbclient_transfers_total",
				Help: "Total number of transfers by direction and result",
			},
			[]string{"direction", "result"},
		),
		transferBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smbclient_transfer_bytes_total",
				Help: "Total bytes moved by transfers",
			},
			[]string{"direction"},
		),
		transferDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smbclient_transfer_duration_seconds",
				Help:    "Transfer duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"direction"},
		),
		releaseFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smbclient_release_failures_total",
				Help: "Handle release failures swallowed by a strategy",
			},
			[]string{"strategy"},
		),
		poolHandles: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "smbclient_pool_handles",
				Help: "Pooled handles by state",
			},
			[]string{"state"},
		),
	}
}

func (m *Metrics) observeTransfer(dir direction, err error, n int64, took time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.transfersTotal.WithLabelValues(string(dir), result).Inc()
	m.transferBytes.WithLabelValues(string(dir)).Add(float64(n))
	m.transferDuration.WithLabelValues(string(dir)).Observe(took.Seconds())
}

func (m *Metrics) releaseFailed(strategy string) {
	if m == nil {
		return
	}
	m.releaseFailures.WithLabelValues(strategy).Inc()
}

func (m *Metrics) setPoolHandles(active, idle int) {
	if m == nil {
		return
	}
	m.poolHandles.WithLabelValues("active").Set(float64(active))
	m.poolHandles.WithLabelValues("idle").Set(float64(idle))
}
