// Package insights implements the insights aggregator (L12): derives
// per-tool success rates, latency percentiles, error/skip-reason counts,
// and heuristic recommendations from the trace log's bounded in-memory
// rollups, per spec.md §4.9.
//
// Grounded on original_source/core/observability/insights.py's
// compute_insights: same four top-level fields, same percentile math
// (sorted-sample nearest-rank), same recommendation thresholds.
package insights

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wjabrac/agentrun/pkg/trace"
)

// ToolInsight is one tool's rollup.
type ToolInsight struct {
	Tool          string         `json:"tool"`
	Successes     int            `json:"successes"`
	Failures      int            `json:"failures"`
	SuccessRate   float64        `json:"success_rate"`
	LatencyP50Ms  float64        `json:"latency_p50_ms"`
	LatencyP95Ms  float64        `json:"latency_p95_ms"`
	LatencyAvgMs  float64        `json:"latency_avg_ms"`
	SkipReasons   map[string]int `json:"skip_reasons,omitempty"`
	NotFoundCount int            `json:"not_found_count"`
}

// TraceRollup is the "counts of errors per tool and per error type" view
// spec.md §4.9 asks for, derived from recent executor:error/tool:lookup_error
// events rather than the in-memory success/failure counters.
type TraceRollup struct {
	Tool        string         `json:"tool"`
	ErrorTotal  int            `json:"error_total"`
	ErrorKinds  map[string]int `json:"error_kinds,omitempty"`
}

// Report is ComputeInsights' return shape.
type Report struct {
	GeneratedAt     time.Time      `json:"generated_at"`
	Tools           []ToolInsight  `json:"tools"`
	TraceRollups    []TraceRollup  `json:"trace_rollups"`
	Recommendations []string       `json:"recommendations"`
}

// ComputeInsights summarizes log's accumulated per-tool statistics and
// recent error events into a Report, per spec.md §4.9.
func ComputeInsights(ctx context.Context, log *trace.Log) (*Report, error) {
	snap := log.StatsSnapshot()

	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	report := &Report{GeneratedAt: time.Now().UTC()}

	for _, name := range names {
		s := snap[name]
		total := s.Successes + s.Failures
		var rate float64
		if total > 0 {
			rate = float64(s.Successes) / float64(total)
		}

		p50, p95, avg := percentiles(s.Latencies)

		ti := ToolInsight{
			Tool:          name,
			Successes:     s.Successes,
			Failures:      s.Failures,
			SuccessRate:   rate,
			LatencyP50Ms:  p50,
			LatencyP95Ms:  p95,
			LatencyAvgMs:  avg,
			SkipReasons:   s.SkipReasons,
			NotFoundCount: s.NotFound,
		}
		report.Tools = append(report.Tools, ti)
		report.Recommendations = append(report.Recommendations, recommend(ti)...)
	}

	errs, err := log.RecentErrors(ctx, 500)
	if err != nil {
		return nil, fmt.Errorf("insights: recent errors: %w", err)
	}
	rollups := map[string]*TraceRollup{}
	var order []string
	for _, e := range errs {
		r, ok := rollups[e.Tool]
		if !ok {
			r = &TraceRollup{Tool: e.Tool, ErrorKinds: map[string]int{}}
			rollups[e.Tool] = r
			order = append(order, e.Tool)
		}
		r.ErrorTotal++
		if e.Error != "" {
			r.ErrorKinds[e.Error]++
		}
	}
	sort.Strings(order)
	for _, name := range order {
		report.TraceRollups = append(report.TraceRollups, *rollups[name])
	}

	return report, nil
}

// percentiles returns (p50, p95, avg) over samples using nearest-rank
// percentile math, matching insights.py's approach of sorting the raw
// sample list rather than approximating from histogram buckets.
func percentiles(samples []float64) (p50, p95, avg float64) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	avg = sum / float64(len(sorted))
	p50 = nearestRank(sorted, 0.50)
	p95 = nearestRank(sorted, 0.95)
	return p50, p95, avg
}

func nearestRank(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p*float64(len(sorted)-1) + 0.5)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// recommend applies spec.md §4.9's heuristic thresholds to one tool's
// rollup.
func recommend(t ToolInsight) []string {
	var out []string

	total := t.Successes + t.Failures
	if total > 0 {
		failRate := float64(t.Failures) / float64(total)
		if failRate >= 0.15 && t.Failures >= 3 {
			out = append(out, fmt.Sprintf("%s: failure rate %.0f%% over %d calls — add retries/timeouts", t.Tool, failRate*100, total))
		}
	}
	if t.LatencyP95Ms > 2000 {
		out = append(out, fmt.Sprintf("%s: p95 latency %.0fms — add caching", t.Tool, t.LatencyP95Ms))
	}
	if t.NotFoundCount >= 3 {
		out = append(out, fmt.Sprintf("%s: %d not_found lookups — alias/define missing tool", t.Tool, t.NotFoundCount))
	}
	if t.SkipReasons["prior_error"] >= 3 {
		out = append(out, fmt.Sprintf("%s: %d prior_error skips — reorder/guard pipeline", t.Tool, t.SkipReasons["prior_error"]))
	}
	return out
}
