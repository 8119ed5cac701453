// Package observability installs the process-wide OpenTelemetry tracer
// provider that pkg/instrument's span-per-tool-call wiring pulls spans
// from. There is no collector endpoint in this runtime (a CLI, not a
// server), so the only exporter wired is stdouttrace — spans print as
// JSON, readable piped to a file or a local trace viewer.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerConfig selects whether step-execution spans are exported.
type TracerConfig struct {
	Enabled      bool
	SamplingRate float64
	ServiceName  string
}

// InitGlobalTracer installs the process-wide otel.SetTracerProvider per
// cfg. Disabled (the default) installs a noop provider so every
// otel.Tracer(...).Start call downstream is a zero-cost no-op. Returns a
// shutdown func that flushes and closes the exporter; callers should defer
// it.
func InitGlobalTracer(ctx context.Context, cfg TracerConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("observability: stdout exporter: %w", err)
	}

	rate := cfg.SamplingRate
	if rate <= 0 {
		rate = 1.0
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "agentrun"
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("observability: resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(rate)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the named tracer off whatever provider InitGlobalTracer
// last installed (noop until it's called).
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
