package telemetry

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/grafana/pyroscope-go"
)

// ProfilingConfig configures Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled bool

	// ServiceName is the application name shown in Pyroscope.
	ServiceName string

	ServiceVersion string

	// Endpoint is the Pyroscope server URL (e.g. "http://localhost:4040").
	Endpoint string

	// ProfileTypes lists the profiles to collect. Valid values: cpu,
	// alloc_objects, alloc_space, inuse_objects, inuse_space, goroutines,
	// mutex_count, mutex_duration, block_count, block_duration.
	ProfileTypes []string

	// Tags are attached to every profile in addition to the version.
	Tags map[string]string
}

// DefaultProfileTypes is used when ProfileTypes is empty.
var DefaultProfileTypes = []string{"cpu", "alloc_space", "inuse_space", "goroutines"}

var profiling atomic.Bool

var profileTypes = map[string]pyroscope.ProfileType{
	"cpu":            pyroscope.ProfileCPU,
	"alloc_objects":  pyroscope.ProfileAllocObjects,
	"alloc_space":    pyroscope.ProfileAllocSpace,
	"inuse_objects":  pyroscope.ProfileInuseObjects,
	"inuse_space":    pyroscope.ProfileInuseSpace,
	"goroutines":     pyroscope.ProfileGoroutines,
	"mutex_count":    pyroscope.ProfileMutexCount,
	"mutex_duration": pyroscope.ProfileMutexDuration,
	"block_count":    pyroscope.ProfileBlockCount,
	"block_duration": pyroscope.ProfileBlockDuration,
}

// ParseProfileTypes validates names and converts them to Pyroscope types.
func ParseProfileTypes(names []string) ([]pyroscope.ProfileType, error) {
	out := make([]pyroscope.ProfileType, 0, len(names))
	for _, n := range names {
		pt, ok := profileTypes[n]
		if !ok {
			return nil, fmt.Errorf("unknown profile type %q", n)
		}
		out = append(out, pt)
	}
	return out, nil
}

// InitProfiling starts the Pyroscope profiler. The returned function stops
// it.
func InitProfiling(cfg ProfilingConfig) (shutdown func() error, err error) {
	if !cfg.Enabled {
		profiling.Store(false)
		return func() error { return nil }, nil
	}

	names := cfg.ProfileTypes
	if len(names) == 0 {
		names = DefaultProfileTypes
	}
	types, err := ParseProfileTypes(names)
	if err != nil {
		return nil, err
	}

	for _, n := range names {
		switch n {
		case "mutex_count", "mutex_duration":
			runtime.SetMutexProfileFraction(5)
		case "block_count", "block_duration":
			runtime.SetBlockProfileRate(5)
		}
	}

	tags := map[string]string{"version": cfg.ServiceVersion}
	for k, v := range cfg.Tags {
		tags[k] = v
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ServiceName,
		ServerAddress:   cfg.Endpoint,
		Tags:            tags,
		ProfileTypes:    types,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}
	profiling.Store(true)

	return func() error {
		profiling.Store(false)
		return profiler.Stop()
	}, nil
}

// IsProfilingEnabled reports whether the profiler is running.
func IsProfilingEnabled() bool {
	return profiling.Load()
}
