package telemetry

// Config holds OpenTelemetry tracing settings.
type Config struct {
	Enabled bool

	// ServiceName is reported to the trace backend.
	ServiceName string

	ServiceVersion string

	// Endpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	Endpoint string

	// Insecure disables TLS to the collector.
	Insecure bool

	// SampleRate is the fraction of sessions traced, 0.0 to 1.0.
	SampleRate float64
}

// DefaultConfig returns tracing disabled with a local collector address.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "fileboxd",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}

// sampleRate clamps r to [0, 1].
func sampleRate(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}
