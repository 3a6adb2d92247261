package metrics

import (
	"time"
)

// Transfer directions for RecordBytes.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// FileboxMetrics provides observability for the filebox server: connection
// lifecycle, commands, transferred bytes, authentication and the file index.
//
// It satisfies adapter.MetricsRecorder and index.Metrics so one instance can
// be handed to the dispatcher, the sessions and the indexer. Pass nil to
// disable collection.
type FileboxMetrics interface {
	// RecordCommand records a completed command with its verb, outcome
	// ("ok", "rejected", "violation", "io_error", "invalid") and duration.
	RecordCommand(verb, outcome string, duration time.Duration)

	// RecordBytes records payload bytes moved in direction.
	RecordBytes(direction string, bytes int64)

	// RecordAuth records an authentication attempt ("success", "failure",
	// "error").
	RecordAuth(result string)

	RecordConnectionAccepted()
	RecordConnectionClosed()
	RecordConnectionForceClosed()
	RecordSessionPanic()
	SetActiveConnections(count int32)

	ObserveRefresh(d time.Duration, err error)
	SetEntries(n int)
}

// NewFileboxMetrics returns the Prometheus implementation, or nil when
// metrics are disabled.
//
//	metrics.InitRegistry()
//	m := metrics.NewFileboxMetrics()
//	server := filebox.New(cfg, deps, m)
func NewFileboxMetrics() FileboxMetrics {
	if !IsEnabled() || newPrometheusFileboxMetrics == nil {
		return nil
	}
	return newPrometheusFileboxMetrics()
}

// newPrometheusFileboxMetrics is set by pkg/metrics/prometheus during
// package initialization, which keeps this package free of the collector
// definitions.
var newPrometheusFileboxMetrics func() FileboxMetrics

// RegisterFileboxMetricsConstructor registers the Prometheus constructor.
func RegisterFileboxMetricsConstructor(constructor func() FileboxMetrics) {
	newPrometheusFileboxMetrics = constructor
}
