package config

import (
	"strings"
	"time"

	"github.com/marmos91/filebox/internal/bytesize"
	"github.com/marmos91/filebox/pkg/bufpool"
	"github.com/marmos91/filebox/pkg/controlplane/store"
)

// DefaultPort is the filebox listener port when none is configured.
const DefaultPort = 12345

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", false, nil) are replaced with defaults; explicit
// values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyServerDefaults(&cfg.Server)
	applyTransferDefaults(&cfg.Transfer)
	applyAuthDefaults(&cfg.Auth)
	applyIndexDefaults(&cfg.Index)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_space",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.AuthTimeout == 0 {
		cfg.AuthTimeout = 30 * time.Second
	}
}

func applyTransferDefaults(cfg *TransferConfig) {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = bytesize.ByteSize(bufpool.DefaultSize)
	}
	// MaxTransferSize 0 means unlimited
}

func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.Backend == "" {
		cfg.Backend = AuthBackendStatic
	}
	// The database is only opened by the database and chain backends, but
	// defaults keep 'config show' meaningful for all of them.
	cfg.Database.ApplyDefaults()
}

func applyIndexDefaults(cfg *IndexConfig) {
	if cfg.Backend == "" {
		cfg.Backend = IndexBackendMemory
	}
	if cfg.Refresh == "" {
		cfg.Refresh = "on_connect"
	}
	if cfg.Refresh == "interval" && cfg.Interval == 0 {
		cfg.Interval = 5 * time.Minute
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config with all default values applied and
// root as the shared directory.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Root: "/srv/filebox",
		},
		Auth: AuthConfig{
			Database: store.Config{
				Type: store.DatabaseTypeSQLite,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
