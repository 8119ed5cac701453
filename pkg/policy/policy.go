// Package policy implements the policy engine (L4): allowlisting, filesystem
// path containment, and HTTP rate limiting for tool invocations. Reads its
// configuration from the environment on every call, per spec.md §4.2, so a
// test can flip a var and see the next check reflect it immediately.
//
// The per-minute HTTP budget is enforced with golang.org/x/time/rate (a
// token bucket rebuilt whenever the configured ceiling changes); pkg/ratelimit
// separately records the same calls into an in-memory usage store so
// CheckAndRecord's result can be inspected independently of the bucket.
package policy

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/wjabrac/agentrun/pkg/config"
	"github.com/wjabrac/agentrun/pkg/ratelimit"
	"github.com/wjabrac/agentrun/pkg/xerrors"
)

var defaultRiskyTools = []string{"shell"}

// Engine checks tool invocations against the environment-configured
// policy. It is safe for concurrent use.
type Engine struct {
	// limiter records HTTP call counts via pkg/ratelimit's Store
	// abstraction, independently of the live token bucket below, so
	// GetUsage-style introspection has a count to read even when the
	// bucket itself has no notion of cumulative usage.
	limiter *ratelimit.Limiter

	// rl is the live enforcement point: a token bucket rebuilt whenever
	// HTTP_RATE_LIMIT_PER_MIN changes, since golang.org/x/time/rate's
	// Limiter has no concept of "re-read the ceiling on every check" the
	// way spec.md requires.
	rlMu    sync.Mutex
	rl      *rate.Limiter
	rlLimit int64
}

// New builds an Engine. The rate limiter's own Config.Enabled is always
// true; POLICY_ENGINE_ENABLED gates the whole engine in CheckToolAllowed
// instead, so the limit can be reconfigured per call per spec.md §4.2.
func New() *Engine {
	store := ratelimit.NewMemoryStore()
	limiter, _ := ratelimit.NewRateLimiter(&ratelimit.Config{
		Enabled: true,
		Limits: []ratelimit.LimitRule{
			{Window: ratelimit.WindowMinute, Limit: 1 << 30},
		},
	}, store)
	return &Engine{limiter: limiter}
}

const httpRateScope ratelimit.Scope = "policy"

// CheckToolAllowed runs allowlist -> path restriction -> HTTP rate limit,
// per spec.md §4.2. Returns nil when POLICY_ENGINE_ENABLED is false. An
// unset POLICY_ENGINE_ENABLED counts as enabled, matching the engine
// existing specifically to be checked.
func (e *Engine) CheckToolAllowed(ctx context.Context, name string, args map[string]any) error {
	if !config.Bool("POLICY_ENGINE_ENABLED", true) {
		return nil
	}

	if allowed := config.CSV("ALLOWED_TOOLS"); len(allowed) > 0 {
		ok := false
		for _, a := range allowed {
			if a == name {
				ok = true
				break
			}
		}
		if !ok {
			return &xerrors.ToolNotAllowedError{Name: name}
		}
	}

	if roots := config.CSV("FS_SAFE_ROOTS"); len(roots) > 0 {
		for _, field := range []string{"path", "db_path", "repo"} {
			raw, ok := args[field].(string)
			if !ok || raw == "" {
				continue
			}
			if err := checkPathRestricted(field, raw, roots); err != nil {
				return err
			}
		}
	}

	if isHTTPTool(name) {
		limit := config.Int64("HTTP_RATE_LIMIT_PER_MIN", 0)
		if limit > 0 {
			if err := e.checkHTTPRateLimit(ctx, limit); err != nil {
				return err
			}
		}
	}

	return nil
}

func checkPathRestricted(field, raw string, roots []string) error {
	abs, err := filepath.Abs(raw)
	if err != nil {
		return &xerrors.PathRestrictedError{Field: field, Path: raw}
	}
	for _, root := range roots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(rootAbs, abs)
		if err != nil {
			continue
		}
		if rel == "." || !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != ".." {
			return nil
		}
	}
	return &xerrors.PathRestrictedError{Field: field, Path: raw}
}

func isHTTPTool(name string) bool {
	if name == "web_fetch" {
		return true
	}
	if strings.HasPrefix(name, "mcp.http.") {
		return true
	}
	if strings.HasSuffix(name, "_fetch") {
		return true
	}
	return false
}

func (e *Engine) checkHTTPRateLimit(ctx context.Context, limit int64) error {
	// Record usage regardless of outcome; the token bucket below is the
	// actual enforcement point.
	_, _ = e.limiter.CheckAndRecord(ctx, httpRateScope, "http", 1)

	e.rlMu.Lock()
	if e.rl == nil || e.rlLimit != limit {
		e.rl = rate.NewLimiter(rate.Limit(float64(limit)/60.0), int(limit))
		e.rlLimit = limit
	}
	allowed := e.rl.Allow()
	e.rlMu.Unlock()

	if !allowed {
		return &xerrors.RateLimitedError{Scope: "http_per_min"}
	}
	return nil
}

// IsRiskyTool reports whether name should run sandboxed, per RISKY_TOOLS
// (default: the shell tool).
func IsRiskyTool(name string) bool {
	risky := config.CSV("RISKY_TOOLS")
	if len(risky) == 0 {
		risky = defaultRiskyTools
	}
	for _, r := range risky {
		if r == name {
			return true
		}
	}
	return false
}

// CheckOutputSize enforces MAX_OUTPUT_BYTES over a tool's JSON-serialized
// output, per spec.md §4.2/§7 (output_too_large).
func CheckOutputSize(output map[string]any) error {
	limit := config.Int("MAX_OUTPUT_BYTES", 0)
	if limit <= 0 {
		return nil
	}
	data, err := json.Marshal(output)
	if err != nil {
		return nil
	}
	if len(data) > limit {
		return &xerrors.OutputTooLargeError{Bytes: len(data), Limit: limit}
	}
	return nil
}
