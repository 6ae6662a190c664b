package telemetry

// Config configures the OTLP trace exporter.
type Config struct {
	Enabled bool

	// ServiceName and ServiceVersion are reported with every span.
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP gRPC collector address, e.g. "localhost:4317".
	Endpoint string

	// Insecure disables TLS towards the collector.
	Insecure bool

	// SampleRate is the head sampling ratio; 1.0 keeps every trace.
	SampleRate float64
}

// DefaultConfig disables tracing and points at a local collector.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "jinshu",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}
