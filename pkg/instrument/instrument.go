// Package instrument wraps a registry.ToolSpec's Run func with the
// executor:start/executor:done/executor:error trace events and tool_calls
// metrics spec.md §4.7 requires around every invocation, so the executor's
// per-step loop doesn't have to duplicate that bookkeeping at every call
// site. Grounded on original_source/core/instrumentation.py's decorator,
// which wraps a tool callable the same way: log before, time the call, log
// after with outcome and elapsed milliseconds.
package instrument

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wjabrac/agentrun/pkg/metrics"
	"github.com/wjabrac/agentrun/pkg/observability"
	"github.com/wjabrac/agentrun/pkg/rctx"
	"github.com/wjabrac/agentrun/pkg/registry"
	"github.com/wjabrac/agentrun/pkg/trace"
)

var tracer = observability.Tracer("github.com/wjabrac/agentrun/pkg/executor")

// Wrap returns a RunFunc that emits executor:start before calling fn and
// executor:done/executor:error after, plus a tool_calls_total/latency
// metric observation. traceID is read from ctx via rctx at call time, so
// one wrapped RunFunc can serve every trace a tool participates in.
func Wrap(tool string, fn registry.RunFunc, log *trace.Log, m *metrics.Registry) registry.RunFunc {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		amb := rctx.From(ctx)
		start := time.Now()

		ctx, span := tracer.Start(ctx, "tool:"+tool)
		span.SetAttributes(attribute.String("tool.name", tool))
		defer span.End()

		emit(ctx, log, amb.TraceID, trace.RoleExecutorStart, map[string]any{
			"tool": tool,
			"args": args,
			"tags": amb.Tags,
		})

		out, err := fn(ctx, args)
		elapsedMs := float64(time.Since(start).Microseconds()) / 1000.0
		span.SetAttributes(attribute.Float64("tool.elapsed_ms", elapsedMs))

		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			emit(ctx, log, amb.TraceID, trace.RoleExecutorError, map[string]any{
				"tool":       tool,
				"error":      err.Error(),
				"elapsed_ms": elapsedMs,
			})
			if m != nil {
				m.RecordToolCall(tool, false, elapsedMs)
			}
			if log != nil {
				log.RecordCall(tool, false, elapsedMs)
			}
			return out, err
		}

		span.SetStatus(codes.Ok, "")
		emit(ctx, log, amb.TraceID, trace.RoleExecutorDone, map[string]any{
			"tool":       tool,
			"elapsed_ms": elapsedMs,
		})
		if m != nil {
			m.RecordToolCall(tool, true, elapsedMs)
		}
		if log != nil {
			log.RecordCall(tool, true, elapsedMs)
		}
		return out, nil
	}
}

func emit(ctx context.Context, log *trace.Log, traceID, role string, payload map[string]any) {
	if log == nil || traceID == "" {
		return
	}
	_, _ = log.Emit(ctx, traceID, role, payload)
}
