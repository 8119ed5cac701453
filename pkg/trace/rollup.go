package trace

import (
	"context"
	"encoding/json"
	"fmt"
)

// ErrorEvent is one executor:error/tool:lookup_error event, flattened for
// pkg/insights' trace_rollups.
type ErrorEvent struct {
	Tool  string
	Error string
	Role  string
}

// RecentErrors scans the most recent limit error-shaped events across every
// trace, for pkg/insights' "counts of errors per tool and per error type"
// rollup (spec.md §4.9). Best-effort: an undecodable payload or one with no
// tool is skipped rather than failing the whole scan; a payload with no
// error string is kept with an empty Error.
func (l *Log) RecentErrors(ctx context.Context, limit int) ([]ErrorEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := l.store.DB().QueryContext(ctx,
		`SELECT role, payload FROM trace_events WHERE role IN (?, ?) ORDER BY created_at DESC LIMIT ?`,
		RoleExecutorError, RoleToolLookupError, limit)
	if err != nil {
		return nil, fmt.Errorf("trace: recent errors: %w", err)
	}
	defer rows.Close()

	var out []ErrorEvent
	for rows.Next() {
		var role, payload string
		if err := rows.Scan(&role, &payload); err != nil {
			return nil, fmt.Errorf("trace: scan error event: %w", err)
		}
		var body map[string]any
		if err := json.Unmarshal([]byte(payload), &body); err != nil {
			continue
		}
		tool, _ := body["tool"].(string)
		if tool == "" {
			continue
		}
		msg, _ := body["error"].(string)
		out = append(out, ErrorEvent{Tool: tool, Error: msg, Role: role})
	}
	return out, rows.Err()
}
