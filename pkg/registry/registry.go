// Package registry implements the tool registry (L3): a name → ToolSpec map
// fed by discovery from built-in adapters, plugin packages, microtool
// directories, plugin manifests, remote tool descriptors, and templates.
//
// Grounded on the teacher's pkg/registry.BaseRegistry[T] (generic
// name→item map with RWMutex-guarded Register/Get/List/Remove), specialized
// here to ToolSpec and extended with the discovery pipeline and hot-reload
// spec.md §4.1 requires.
package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	goplugin "github.com/hashicorp/go-plugin"

	"github.com/wjabrac/agentrun/pkg/metrics"
)

// RunFunc is the pure invocation contract spec.md §3 describes for
// ToolSpec.run: takes a mapping of named arguments, returns a mapping
// result or fails.
type RunFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

// ToolSpec is the registry entry for one tool.
type ToolSpec struct {
	// Name is the unique string key.
	Name string

	// Description is a human-readable summary, copied into the tool's
	// manifest entry.
	Description string

	// InputSchema optionally declares accepted fields/types. May be nil
	// for untyped tools.
	InputSchema map[string]any

	// Run is the invocation contract.
	Run RunFunc

	// Tags classify the tool (e.g. "fs", "http", "delegate") for policy
	// and manifest bookkeeping.
	Tags []string

	// CompositeOf names the steps a template-derived tool expands to,
	// empty for ordinary tools.
	CompositeOf []string

	// Source records where this ToolSpec came from, for discovery
	// diagnostics (e.g. "builtin", "plugin:echo", "remote:weather-api").
	Source string
}

// Registry is the process-wide tool registry singleton.
type Registry struct {
	mu    sync.RWMutex
	items map[string]*ToolSpec

	metrics *metrics.Registry

	manifest *Manifest

	remoteConfigPath  string
	remoteConfigMTime time.Time
	microtoolDirs     []string
	pluginManifestDir string
	pluginMTimes      map[string]time.Time
	pluginClients     []*goplugin.Client
	templatesPath     string
	hotReload         bool
	watcher           *fsnotify.Watcher
}

// Option configures a Registry at construction.
type Option func(*Registry)

// WithMetrics wires a metrics.Registry so Get calls are observed.
func WithMetrics(m *metrics.Registry) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithManifest wires a persisted tool manifest at path.
func WithManifest(path string) Option {
	return func(r *Registry) { r.manifest = NewManifest(path) }
}

// WithMicrotoolDirs sets the MICROTOOL_DIRS discovery sources (source 3).
func WithMicrotoolDirs(dirs []string) Option {
	return func(r *Registry) { r.microtoolDirs = dirs }
}

// WithPluginManifestDir sets the root directory scanned for plugin.json
// manifests (source 4).
func WithPluginManifestDir(dir string) Option {
	return func(r *Registry) { r.pluginManifestDir = dir }
}

// WithRemoteToolsConfig sets the REMOTE_TOOLS_CONFIG path (source 5).
func WithRemoteToolsConfig(path string) Option {
	return func(r *Registry) { r.remoteConfigPath = path }
}

// WithTemplatesPath sets the TEMPLATES_PATH (source 6), default
// data/templates.json per spec.md §4.1.
func WithTemplatesPath(path string) Option {
	return func(r *Registry) { r.templatesPath = path }
}

// WithHotReload enables fsnotify-backed watching of the remote tools config
// and plugin manifest tree, in addition to the mtime-poll fallback
// ReloadIfNeeded always performs.
func WithHotReload(enabled bool) Option {
	return func(r *Registry) { r.hotReload = enabled }
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		items:        make(map[string]*ToolSpec),
		pluginMTimes: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.manifest == nil {
		r.manifest = NewManifest("")
	}
	return r
}

// Register inserts or replaces a ToolSpec by name. A duplicate name emits a
// warning but overwrites, per spec.md §4.1.
func (r *Registry) Register(spec *ToolSpec) error {
	if spec == nil || spec.Name == "" {
		return &NotFoundError{Name: ""}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[spec.Name]; exists {
		slog.Warn("registry: overwriting existing tool", "tool", spec.Name)
	}
	r.items[spec.Name] = spec
	r.manifest.EnsureEntry(spec.Name, spec)
	return nil
}

// Get resolves a tool by name. Every call, found or not, increments
// tool_requests_total{tool,found} exactly once (spec.md §8 invariant 1).
func (r *Registry) Get(name string) (*ToolSpec, error) {
	r.mu.RLock()
	spec, ok := r.items[name]
	r.mu.RUnlock()

	if r.metrics != nil {
		r.metrics.RecordToolRequest(name, ok)
	}

	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return spec, nil
}

// List returns every registered ToolSpec, in no particular order.
func (r *Registry) List() []*ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ToolSpec, 0, len(r.items))
	for _, spec := range r.items {
		out = append(out, spec)
	}
	return out
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.items))
	for name := range r.items {
		out = append(out, name)
	}
	return out
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// RecordUse updates the persisted tool manifest after an invocation
// completes. Safe to call with no manifest path configured: only the
// in-memory copy is updated then.
func (r *Registry) RecordUse(name string, errored bool) {
	r.manifest.RecordUse(name, errored)
}

// Close stops any hot-reload watcher and kills any plugin subprocesses
// launched by Discover. Safe to call on a Registry that never discovered
// anything.
func (r *Registry) Close() error {
	r.mu.Lock()
	w := r.watcher
	r.watcher = nil
	r.mu.Unlock()

	if w != nil {
		_ = w.Close()
	}
	r.closePlugins()
	return nil
}
