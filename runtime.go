// Package agentrun is the public facade: construct a Runtime once per
// process and call ExecuteSteps/PlanSteps/ComputeInsights/trace lookups
// against it. Every other package in this module is an implementation
// detail a caller only needs to reach for directly when composing its own
// Runtime (custom tool registration, a different sandbox.Runner, etc).
//
// Grounded on the teacher's pkg/runtime.Runtime: one struct bundling every
// shared singleton behind a single constructor, so cmd/toolrun (and any
// other entry point) builds exactly one of these and passes it down
// instead of threading five constructors through main.
package agentrun

import (
	"context"
	"fmt"

	"github.com/wjabrac/agentrun/pkg/budget"
	"github.com/wjabrac/agentrun/pkg/cache"
	"github.com/wjabrac/agentrun/pkg/config"
	"github.com/wjabrac/agentrun/pkg/executor"
	"github.com/wjabrac/agentrun/pkg/insights"
	"github.com/wjabrac/agentrun/pkg/metrics"
	"github.com/wjabrac/agentrun/pkg/observability"
	"github.com/wjabrac/agentrun/pkg/planner"
	"github.com/wjabrac/agentrun/pkg/policy"
	"github.com/wjabrac/agentrun/pkg/registry"
	"github.com/wjabrac/agentrun/pkg/sandbox"
	"github.com/wjabrac/agentrun/pkg/store"
	"github.com/wjabrac/agentrun/pkg/trace"
)

// Runtime bundles the L1-L12 singletons one process needs to plan and
// execute steps: tool registry, trace log, metrics registry, result cache,
// budget manager, policy engine, and a sandbox.Runner for risky tools.
type Runtime struct {
	Registry *registry.Registry
	Trace    *trace.Log
	Metrics  *metrics.Registry
	Cache    *cache.Cache
	Budget   *budget.Manager
	Policy   *policy.Engine

	store           *store.Store
	exec            *executor.Runtime
	shutdownTracing func(context.Context) error
}

// Options configures New. A zero-value Options builds a fully workable
// Runtime from environment defaults (STORE_DRIVER/STORE_DSN,
// BUDGET_CONFIG, MICROTOOL_DIRS, ...), the same env-first pattern every
// other package in this module follows.
type Options struct {
	// StorePath, if set, overrides STORE_DRIVER/STORE_DSN (mainly for
	// tests: pass ":memory:").
	StorePath string

	// RegistryOptions are passed through to registry.New, so a caller can
	// add registry.WithMicrotoolDirs, WithPluginManifestDir, etc. on top
	// of the env-driven defaults New already wires.
	RegistryOptions []registry.Option

	// Sandbox overrides the sandbox.Runner risky tools run under.
	// Defaults to a *sandbox.ProcessSandbox whose Dispatch resolves
	// through Registry.Get, re-exec'ing the current binary with
	// sandbox.WorkerFlag. Pass sandbox.Direct{} to disable process
	// isolation (tests, single-binary embeddings with no risky tools).
	Sandbox sandbox.Runner
}

// New builds a Runtime: opens the durable store, wires trace/cache/budget/
// policy/registry against it, runs initial tool discovery, and returns the
// assembled executor.Runtime underneath. Discovery errors are logged as
// discovery:error trace events rather than failing New, per spec.md §4.1 —
// only a store-open or tracer-init failure is fatal.
func New(ctx context.Context, opts Options) (*Runtime, error) {
	var s *store.Store
	var err error
	if opts.StorePath != "" {
		s, err = store.Open(opts.StorePath)
	} else {
		s, err = store.OpenWithConfig(config.DatabaseConfigFromEnv("agentrun.db"))
	}
	if err != nil {
		return nil, fmt.Errorf("agentrun: open store: %w", err)
	}

	shutdownTracing, err := observability.InitGlobalTracer(ctx, observability.TracingConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("agentrun: init tracer: %w", err)
	}

	m := metrics.New()
	tr := trace.New(s)
	c := cache.New(s, m)
	b := budget.New(budget.LoadConfig(), m)
	p := policy.New()

	regOpts := append([]registry.Option{
		registry.WithMetrics(m),
		registry.WithMicrotoolDirs(config.CSV("MICROTOOL_DIRS")),
		registry.WithPluginManifestDir(config.String("PLUGIN_MANIFEST_DIR", "")),
		registry.WithRemoteToolsConfig(config.String("REMOTE_TOOLS_CONFIG", "")),
		registry.WithTemplatesPath(config.String("TEMPLATES_PATH", "data/templates.json")),
		registry.WithManifest(config.String("TOOLS_MANIFEST_PATH", "data/tools_manifest.json")),
		registry.WithHotReload(config.Bool("TOOL_HOT_RELOAD", false)),
	}, opts.RegistryOptions...)
	reg := registry.New(regOpts...)

	rt := &Runtime{Registry: reg, Trace: tr, Metrics: m, Cache: c, Budget: b, Policy: p, store: s, shutdownTracing: shutdownTracing}

	for _, derr := range reg.Discover(ctx) {
		rt.logDiscoveryError(ctx, derr)
	}

	sb := opts.Sandbox
	if sb == nil {
		sb = &sandbox.ProcessSandbox{Dispatch: rt.dispatch}
	}

	rt.exec = &executor.Runtime{
		Registry: reg,
		Trace:    tr,
		Metrics:  m,
		Cache:    c,
		Budget:   b,
		Policy:   p,
		Sandbox:  sb,
	}
	return rt, nil
}

// dispatch resolves tool -> ToolSpec.Run. New stores it as the default
// ProcessSandbox's Dispatch, which ProcessSandbox.Run does not read;
// cmd/toolrun's WorkerFlag handling builds its own equivalent closure.
func (rt *Runtime) dispatch(tool string, args map[string]any) (map[string]any, error) {
	spec, err := rt.Registry.Get(tool)
	if err != nil {
		return nil, err
	}
	return spec.Run(context.Background(), args)
}

func (rt *Runtime) logDiscoveryError(ctx context.Context, err error) {
	tr, serr := rt.Trace.StartTrace(ctx, "")
	if serr != nil {
		return
	}
	_, _ = rt.Trace.Emit(ctx, tr.ID, trace.RoleDiscoveryError, map[string]any{"error": err.Error()})
}

// Close flushes the tracer and releases the underlying store handle. Safe
// to call once at process shutdown.
func (rt *Runtime) Close() error {
	if rt.shutdownTracing != nil {
		_ = rt.shutdownTracing(context.Background())
	}
	return rt.store.Close()
}

// PlanSteps resolves raw (possibly empty, possibly control-flow-bearing)
// steps into a validated []planner.Step, per executor.ResolveSteps.
func (rt *Runtime) PlanSteps(ctx context.Context, prompt string, raw executor.RawSteps) ([]planner.Step, error) {
	names := rt.Registry.Names()
	return executor.ResolveSteps(ctx, prompt, raw, names)
}

// ExecuteSteps plans (if steps is empty), then executes: the single entry
// point cmd/toolrun's run command and any embedding caller drive.
func (rt *Runtime) ExecuteSteps(ctx context.Context, prompt string, raw executor.RawSteps, threadID string, tags []string) (*executor.Result, error) {
	steps, err := rt.PlanSteps(ctx, prompt, raw)
	if err != nil {
		return nil, err
	}
	return rt.exec.ExecuteSteps(ctx, prompt, steps, threadID, tags)
}

// ComputeInsights summarizes accumulated per-tool statistics and recent
// error events, per spec.md §4.9.
func (rt *Runtime) ComputeInsights(ctx context.Context) (*insights.Report, error) {
	return insights.ComputeInsights(ctx, rt.Trace)
}

// ListRecentTraces returns the most recent traces, newest first.
func (rt *Runtime) ListRecentTraces(ctx context.Context, limit int) ([]*trace.Trace, error) {
	return rt.Trace.ListRecent(ctx, limit)
}

// GetTraceSummary loads one trace and its full event history.
func (rt *Runtime) GetTraceSummary(ctx context.Context, traceID string) (*trace.Summary, error) {
	return rt.Trace.GetSummary(ctx, traceID)
}

// ToolNames lists every currently registered tool name.
func (rt *Runtime) ToolNames() []string {
	return rt.Registry.Names()
}

// BudgetRemaining reports the remaining pool for a scope ("global",
// "tool:<name>", or "tag:<name>"), per budget.Manager.Remaining.
func (rt *Runtime) BudgetRemaining(scope string) int64 {
	return rt.Budget.Remaining(scope)
}
