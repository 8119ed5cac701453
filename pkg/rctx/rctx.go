// Package rctx carries the ambient execution context — thread_id, trace_id,
// and tags — through every tool invocation.
//
// spec.md's Design Notes call for "an explicit request-scoped value passed
// to every scheduler method; implementations may use task-local storage but
// the contract is explicit propagation, not implicit globals." Go has no
// goroutine-local storage, so this package rides on context.Context values:
// the executor binds (thread_id, trace_id, tags) once at the top of
// ExecuteSteps and every nested call receives it because context.Context is
// always the first parameter threaded through the call chain.
package rctx

import "context"

type contextKey struct{ name string }

var ambientKey = &contextKey{"agentrun.ambient"}

// Ambient is the propagated execution context for one ExecuteSteps call.
type Ambient struct {
	ThreadID string
	TraceID  string
	Tags     []string
}

// With returns a derived context carrying the given Ambient value.
func With(ctx context.Context, amb Ambient) context.Context {
	return context.WithValue(ctx, ambientKey, amb)
}

// From extracts the Ambient bound to ctx, or the zero value if none is
// bound.
func From(ctx context.Context) Ambient {
	amb, _ := ctx.Value(ambientKey).(Ambient)
	return amb
}

// WithTags returns a derived context whose Ambient has its Tags field
// replaced (not appended to), keeping ThreadID/TraceID from the parent.
// No package in this module calls it; the reflection tail phase passes its
// "escalated" tag in the escalation step's args instead.
func WithTags(ctx context.Context, tags []string) context.Context {
	amb := From(ctx)
	amb.Tags = tags
	return With(ctx, amb)
}
