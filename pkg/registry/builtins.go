package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotImplemented is returned by the stub adapters below when no real
// implementation has been wired in via Register.
var ErrNotImplemented = errors.New("tool_not_implemented")

// sleepArgs is the typed shape behind the "sleep" tool's InputSchema and
// DecodeArgs call, demonstrating the struct-first alternative to indexing
// args by hand.
type sleepArgs struct {
	DurationMs float64 `json:"duration_ms" jsonschema:"description=Milliseconds to sleep"`
}

// registerBuiltins installs discovery source 1 (spec.md §4.1): a small set
// of built-ins sufficient to exercise the pipeline end to end (echo, sleep,
// fail_n_times), plus registration stubs for the adapter names spec.md and
// original_source/plugins/ reference. Real filesystem/HTTP/SQLite/shell/git
// adapters are out of scope per spec.md §1 — the core only ever sees tools
// through the registry contract, so a caller supplies those via Register.
func (r *Registry) registerBuiltins() {
	_ = r.Register(&ToolSpec{
		Name:        "echo",
		Description: "Returns its arguments unchanged.",
		Source:      "builtin",
		Run: func(_ context.Context, args map[string]any) (map[string]any, error) {
			return args, nil
		},
	})

	sleepSchema, _ := SchemaFor(sleepArgs{})
	_ = r.Register(&ToolSpec{
		Name:        "sleep",
		Description: "Sleeps for duration_ms milliseconds, then returns.",
		Source:      "builtin",
		InputSchema: sleepSchema,
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			a, err := DecodeArgs[sleepArgs](args)
			if err != nil {
				return nil, err
			}
			if a.DurationMs <= 0 {
				a.DurationMs = 0
			}
			select {
			case <-time.After(time.Duration(a.DurationMs) * time.Millisecond):
				return map[string]any{"slept_ms": a.DurationMs}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})

	_ = r.Register(&ToolSpec{
		Name:        "fail_n_times",
		Description: "Fails its first n invocations per key, then succeeds. Test fixture for retry/fallback behavior.",
		Source:      "builtin",
		Run:         failNTimesRun(),
	})

	for _, stub := range []struct {
		name string
		tags []string
	}{
		{"web_fetch", []string{"http"}},
		{"pdf_text", []string{"fs"}},
		{"mcp.fs.read", []string{"fs"}},
		{"mcp.http.get", []string{"http"}},
		{"agent.delegate", []string{"delegate"}},
	} {
		name := stub.name
		_ = r.Register(&ToolSpec{
			Name:   name,
			Tags:   stub.tags,
			Source: "builtin:stub",
			Run: func(_ context.Context, _ map[string]any) (map[string]any, error) {
				return nil, fmt.Errorf("%s: %w", name, ErrNotImplemented)
			},
		})
	}
}

// failNTimesRun tracks per-key (args["key"]) attempt counts in memory so
// repeated calls within a process can be made to fail a fixed number of
// times before succeeding — used by executor retry/fallback tests.
func failNTimesRun() RunFunc {
	var mu sync.Mutex
	counts := make(map[string]int)

	return func(_ context.Context, args map[string]any) (map[string]any, error) {
		key, _ := args["key"].(string)
		if key == "" {
			key = "default"
		}
		n := 0
		if v, ok := args["n"].(float64); ok {
			n = int(v)
		}

		mu.Lock()
		counts[key]++
		attempt := counts[key]
		mu.Unlock()

		if attempt <= n {
			return nil, fmt.Errorf("fail_n_times: forced failure (attempt %d of %d)", attempt, n)
		}
		return map[string]any{"attempt": attempt}, nil
	}
}
