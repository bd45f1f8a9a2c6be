package telemetry

// Service identifies this process to the trace and profiling backends.
type Service struct {
	Name    string
	Version string

	// Label is the agent label. Exported as agentd.label when set.
	Label string
}

// Config holds OpenTelemetry tracing configuration.
type Config struct {
	Enabled bool
	Service Service

	// Endpoint is the OTLP gRPC collector (host:port)
	Endpoint string

	// Insecure disables TLS towards the collector
	Insecure bool

	// SampleRate is the fraction of root spans kept, 0.0 to 1.0
	SampleRate float64
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Service:    Service{Name: "agentd", Version: "dev"},
		Endpoint:   "localhost:4317",
		Insecure:   true,
		SampleRate: 1.0,
	}
}
