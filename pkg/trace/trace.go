// Package trace implements the append-only event/trace log (L1): one Trace
// per ExecuteSteps call, a stream of Events within it, and a read API for
// recent traces and trace detail. Grounded on the teacher's SQL-backed
// session/task stores (pkg/memory/session_service_sql.go,
// pkg/agent/task_service_sql.go) — same shape: a durable table fronted by a
// thin Go API, IDs minted with google/uuid.
package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wjabrac/agentrun/pkg/store"
)

// Phase is the enum-ish classification spec.md §3 describes for events.
// The only phase the core currently emits is "decision"; the type exists so
// callers pattern-match on it rather than a bare string.
type Phase string

// PhaseDecision is the sole phase emitted by the core today.
const PhaseDecision Phase = "decision"

// Well-known event roles, named by call site per spec.md §3.
const (
	RolePlannerProposed     = "planner:proposed"
	RolePlannerStep         = "planner:step"
	RoleExecutorStart       = "executor:start"
	RoleExecutorDone        = "executor:done"
	RoleExecutorError       = "executor:error"
	RoleExecutorCacheHit    = "executor:cache_hit"
	RoleExecutorSkip        = "executor:skip"
	RoleExecutorFallback    = "executor:fallback"
	RoleExecutorFallbackErr = "executor:fallback_error"
	RoleToolResult          = "tool:result"
	RoleToolLookupError     = "tool:lookup_error"
	RoleHITLAwait           = "hitl:await"
	RoleReflectCheckpoint   = "reflect:checkpoint"
	RoleReflectReplan       = "reflect:replan"
	RoleReflectEscalate     = "reflect:escalate"
	RoleDiscoveryError      = "discovery:error"
)

// Trace records one ExecuteSteps invocation.
type Trace struct {
	ID        string
	ThreadID  string
	CreatedAt time.Time
}

// Event records one observation within a trace.
type Event struct {
	ID        string
	TraceID   string
	Phase     Phase
	Role      string
	Payload   map[string]any
	CreatedAt time.Time
}

// Log is the append-only trace/event store, plus the bounded in-memory
// per-tool call/skip statistics pkg/insights summarizes (see stats.go).
type Log struct {
	store *store.Store
	stats *statsBook
}

// New wraps a shared *store.Store as a trace Log.
func New(s *store.Store) *Log {
	return &Log{store: s, stats: newStatsBook()}
}

// StartTrace opens a new trace and persists it immediately.
func (l *Log) StartTrace(ctx context.Context, threadID string) (*Trace, error) {
	t := &Trace{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		CreatedAt: time.Now().UTC(),
	}
	_, err := l.store.DB().ExecContext(ctx,
		`INSERT INTO traces (id, thread_id, created_at) VALUES (?, ?, ?)`,
		t.ID, t.ThreadID, t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("trace: start: %w", err)
	}
	return t, nil
}

// Emit appends an event to a trace. Event IDs are unique; traces may have
// zero or more events.
func (l *Log) Emit(ctx context.Context, traceID, role string, payload map[string]any) (*Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("trace: marshal payload: %w", err)
	}
	ev := &Event{
		ID:        uuid.NewString(),
		TraceID:   traceID,
		Phase:     PhaseDecision,
		Role:      role,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	_, err = l.store.DB().ExecContext(ctx,
		`INSERT INTO trace_events (id, trace_id, phase, role, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.TraceID, string(ev.Phase), ev.Role, string(body), ev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("trace: emit: %w", err)
	}
	return ev, nil
}

// ListRecent returns the most recent traces, newest first.
func (l *Log) ListRecent(ctx context.Context, limit int) ([]*Trace, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.store.DB().QueryContext(ctx,
		`SELECT id, thread_id, created_at FROM traces ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("trace: list recent: %w", err)
	}
	defer rows.Close()

	var out []*Trace
	for rows.Next() {
		var t Trace
		var threadID sql.NullString
		if err := rows.Scan(&t.ID, &threadID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("trace: scan: %w", err)
		}
		t.ThreadID = threadID.String
		out = append(out, &t)
	}
	return out, rows.Err()
}

// Summary is the full detail of one trace: its metadata plus every event
// recorded against it, in insertion order.
type Summary struct {
	Trace  *Trace
	Events []*Event
}

// GetSummary loads a trace and its full event history.
func (l *Log) GetSummary(ctx context.Context, traceID string) (*Summary, error) {
	var t Trace
	var threadID sql.NullString
	err := l.store.DB().QueryRowContext(ctx,
		`SELECT id, thread_id, created_at FROM traces WHERE id = ?`, traceID,
	).Scan(&t.ID, &threadID, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("trace: get %s: %w", traceID, err)
	}
	t.ThreadID = threadID.String

	rows, err := l.store.DB().QueryContext(ctx,
		`SELECT id, trace_id, phase, role, payload, created_at FROM trace_events WHERE trace_id = ? ORDER BY created_at ASC`, traceID)
	if err != nil {
		return nil, fmt.Errorf("trace: list events %s: %w", traceID, err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var ev Event
		var phase, payload string
		if err := rows.Scan(&ev.ID, &ev.TraceID, &phase, &ev.Role, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("trace: scan event: %w", err)
		}
		ev.Phase = Phase(phase)
		_ = json.Unmarshal([]byte(payload), &ev.Payload)
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &Summary{Trace: &t, Events: events}, nil
}

// PutSessionKV writes (or overwrites) the per-thread scratchpad entry
// (threadID, key), per spec.md §3's SessionKV entity. At the end of each
// ExecuteSteps invocation the executor calls this once per output, under
// the key "step:<tool>", to persist step outputs for later recall.
func (l *Log) PutSessionKV(ctx context.Context, threadID, key, value string) error {
	_, err := l.store.DB().ExecContext(ctx,
		`INSERT INTO session_kv (thread_id, key, value, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(thread_id, key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at`,
		threadID, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("trace: put session kv: %w", err)
	}
	return nil
}

// GetSessionKV reads the scratchpad entry (threadID, key), returning
// ok=false if absent.
func (l *Log) GetSessionKV(ctx context.Context, threadID, key string) (string, bool, error) {
	var value string
	err := l.store.DB().QueryRowContext(ctx,
		`SELECT value FROM session_kv WHERE thread_id = ? AND key = ?`, threadID, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("trace: get session kv: %w", err)
	}
	return value, true, nil
}
