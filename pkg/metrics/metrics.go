// Package metrics provides the labeled counters and histograms spec.md §2
// (L2) and §8 invariants 1-2 require: tool lookups, tool calls, latency,
// skips, and LLM calls. Adapted from the teacher's pkg/observability/metrics.go
// (same NewCounterVec/NewHistogramVec-per-concern layout, same nil-receiver
// no-op pattern so a disabled Registry can be passed around safely).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the process-wide metrics singleton for the core.
type Registry struct {
	reg *prometheus.Registry

	toolRequestsTotal *prometheus.CounterVec // tool_requests_total{tool,found}
	toolCallsTotal    *prometheus.CounterVec // tool_calls_total{tool,ok}
	toolLatencyMs     *prometheus.HistogramVec
	toolSkipsTotal    *prometheus.CounterVec // {tool,reason}
	cacheHitsTotal    *prometheus.CounterVec // {tool}
	llmCallsTotal     *prometheus.CounterVec // {provider,ok}
	budgetDeniedTotal *prometheus.CounterVec // {scope}
}

// New creates a fresh, registered Registry.
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.toolRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentrun",
		Subsystem: "registry",
		Name:      "tool_requests_total",
		Help:      "Total number of Registry.Get lookups, by tool and whether found.",
	}, []string{"tool", "found"})

	r.toolCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentrun",
		Subsystem: "executor",
		Name:      "tool_calls_total",
		Help:      "Total number of completed tool attempts, by tool and outcome.",
	}, []string{"tool", "ok"})

	r.toolLatencyMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agentrun",
		Subsystem: "executor",
		Name:      "tool_latency_ms",
		Help:      "Tool attempt latency in milliseconds.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 16), // 1ms .. 32s
	}, []string{"tool"})

	r.toolSkipsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentrun",
		Subsystem: "executor",
		Name:      "tool_skips_total",
		Help:      "Total number of steps skipped, by tool and reason.",
	}, []string{"tool", "reason"})

	r.cacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentrun",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total number of result-cache hits, by tool.",
	}, []string{"tool"})

	r.llmCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentrun",
		Subsystem: "planner",
		Name:      "llm_calls_total",
		Help:      "Total number of planner LLM calls, by provider and outcome.",
	}, []string{"provider", "ok"})

	r.budgetDeniedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentrun",
		Subsystem: "budget",
		Name:      "denied_total",
		Help:      "Total number of budget checks that failed, by scope.",
	}, []string{"scope"})

	r.reg.MustRegister(
		r.toolRequestsTotal, r.toolCallsTotal, r.toolLatencyMs,
		r.toolSkipsTotal, r.cacheHitsTotal, r.llmCallsTotal, r.budgetDeniedTotal,
	)
	return r
}

// RecordToolRequest implements invariant 1: every Get(name) call increments
// tool_requests_total{tool,found} exactly once.
func (r *Registry) RecordToolRequest(tool string, found bool) {
	if r == nil {
		return
	}
	r.toolRequestsTotal.WithLabelValues(tool, boolLabel(found)).Inc()
}

// RecordToolCall implements invariant 2: every completed attempt increments
// tool_calls_total{tool,ok} exactly once and observes exactly one latency
// sample.
func (r *Registry) RecordToolCall(tool string, ok bool, latencyMs float64) {
	if r == nil {
		return
	}
	r.toolCallsTotal.WithLabelValues(tool, boolLabel(ok)).Inc()
	r.toolLatencyMs.WithLabelValues(tool).Observe(latencyMs)
}

// RecordSkip records a step being skipped (blocked or prior_error).
func (r *Registry) RecordSkip(tool, reason string) {
	if r == nil {
		return
	}
	r.toolSkipsTotal.WithLabelValues(tool, reason).Inc()
}

// RecordCacheHit records a result-cache hit for tool.
func (r *Registry) RecordCacheHit(tool string) {
	if r == nil {
		return
	}
	r.cacheHitsTotal.WithLabelValues(tool).Inc()
}

// RecordLLMCall records a planner LLM call outcome.
func (r *Registry) RecordLLMCall(provider string, ok bool) {
	if r == nil {
		return
	}
	r.llmCallsTotal.WithLabelValues(provider, boolLabel(ok)).Inc()
}

// RecordBudgetDenied records a failed budget check for scope.
func (r *Registry) RecordBudgetDenied(scope string) {
	if r == nil {
		return
	}
	r.budgetDeniedTotal.WithLabelValues(scope).Inc()
}

// Handler exposes the registry over /metrics.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Prometheus exposes the underlying registry for tests that want to scrape
// gathered metric families directly.
func (r *Registry) Prometheus() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
