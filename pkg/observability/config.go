package observability

import (
	"strconv"

	"github.com/wjabrac/agentrun/pkg/config"
)

// TracingConfigFromEnv builds a TracerConfig from OTEL_TRACING_ENABLED,
// OTEL_SAMPLING_RATE and OTEL_SERVICE_NAME, the same env-first pattern
// pkg/policy and pkg/budget follow instead of a YAML file, since this
// runtime has no server-mode config file to layer over.
func TracingConfigFromEnv() TracerConfig {
	rate := 1.0
	if v := config.String("OTEL_SAMPLING_RATE", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			rate = f
		}
	}
	return TracerConfig{
		Enabled:      config.Bool("OTEL_TRACING_ENABLED", false),
		SamplingRate: rate,
		ServiceName:  config.String("OTEL_SERVICE_NAME", "agentrun"),
	}
}
