// Package prometheus implements the metrics interfaces with
// prometheus/client_golang collectors registered on metrics.GetRegistry().
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/filebox/pkg/metrics"
)

func init() {
	metrics.RegisterFileboxMetricsConstructor(func() metrics.FileboxMetrics {
		return NewFileboxMetrics()
	})
}

type fileboxMetrics struct {
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
	sessionPanics          prometheus.Counter
	activeConnections      prometheus.Gauge

	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	bytes           *prometheus.CounterVec
	authAttempts    *prometheus.CounterVec

	indexEntries    prometheus.Gauge
	indexRefresh    prometheus.Histogram
	indexRefreshErr prometheus.Counter
}

// NewFileboxMetrics creates the collectors. Returns nil if metrics are not
// enabled (InitRegistry not called).
func NewFileboxMetrics() *fileboxMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	f := promauto.With(metrics.GetRegistry())

	return &fileboxMetrics{
		connectionsAccepted: f.NewCounter(prometheus.CounterOpts{
			Name: "filebox_connections_accepted_total",
			Help: "Total number of accepted client connections",
		}),
		connectionsClosed: f.NewCounter(prometheus.CounterOpts{
			Name: "filebox_connections_closed_total",
			Help: "Total number of closed client connections",
		}),
		connectionsForceClosed: f.NewCounter(prometheus.CounterOpts{
			Name: "filebox_connections_force_closed_total",
			Help: "Connections force-closed after the shutdown timeout",
		}),
		sessionPanics: f.NewCounter(prometheus.CounterOpts{
			Name: "filebox_session_panics_total",
			Help: "Sessions that ended in a recovered panic",
		}),
		activeConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "filebox_active_connections",
			Help: "Number of sessions currently served",
		}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "filebox_commands_total",
			Help: "Total number of commands by verb and outcome",
		}, []string{"verb", "outcome"}),
		commandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "filebox_command_duration_seconds",
			Help:    "Command duration in seconds by verb",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 30, 120},
		}, []string{"verb"}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "filebox_transfer_bytes_total",
			Help: "Payload bytes transferred by direction",
		}, []string{"direction"}),
		authAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "filebox_auth_attempts_total",
			Help: "Authentication attempts by result",
		}, []string{"result"}),
		indexEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "filebox_index_entries",
			Help: "Number of files in the current index snapshot",
		}),
		indexRefresh: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "filebox_index_refresh_duration_seconds",
			Help:    "Time to walk the shared root and rebuild the index",
			Buckets: prometheus.DefBuckets,
		}),
		indexRefreshErr: f.NewCounter(prometheus.CounterOpts{
			Name: "filebox_index_refresh_errors_total",
			Help: "Index refreshes that failed",
		}),
	}
}

func (m *fileboxMetrics) RecordCommand(verb, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(verb, outcome).Inc()
	m.commandDuration.WithLabelValues(verb).Observe(duration.Seconds())
}

func (m *fileboxMetrics) RecordBytes(direction string, bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}
	m.bytes.WithLabelValues(direction).Add(float64(bytes))
}

func (m *fileboxMetrics) RecordAuth(result string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(result).Inc()
}

func (m *fileboxMetrics) RecordConnectionAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
}

func (m *fileboxMetrics) RecordConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsClosed.Inc()
}

func (m *fileboxMetrics) RecordConnectionForceClosed() {
	if m == nil {
		return
	}
	m.connectionsForceClosed.Inc()
}

func (m *fileboxMetrics) RecordSessionPanic() {
	if m == nil {
		return
	}
	m.sessionPanics.Inc()
}

func (m *fileboxMetrics) SetActiveConnections(count int32) {
	if m == nil {
		return
	}
	m.activeConnections.Set(float64(count))
}

func (m *fileboxMetrics) ObserveRefresh(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.indexRefresh.Observe(d.Seconds())
	if err != nil {
		m.indexRefreshErr.Inc()
	}
}

func (m *fileboxMetrics) SetEntries(n int) {
	if m == nil {
		return
	}
	m.indexEntries.Set(float64(n))
}

var _ metrics.FileboxMetrics = (*fileboxMetrics)(nil)
