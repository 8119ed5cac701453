package insights

import (
	"context"
	"testing"

	"github.com/wjabrac/agentrun/pkg/store"
	"github.com/wjabrac/agentrun/pkg/trace"
)

func newTestLog(t *testing.T) *trace.Log {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return trace.New(s)
}

func TestComputeInsightsEmpty(t *testing.T) {
	log := newTestLog(t)
	report, err := ComputeInsights(context.Background(), log)
	if err != nil {
		t.Fatalf("ComputeInsights: %v", err)
	}
	if len(report.Tools) != 0 {
		t.Fatalf("expected no tools, got %+v", report.Tools)
	}
}

func TestComputeInsightsSuccessRateAndLatency(t *testing.T) {
	log := newTestLog(t)
	log.RecordCall("web_fetch", true, 100)
	log.RecordCall("web_fetch", true, 200)
	log.RecordCall("web_fetch", false, 50)

	report, err := ComputeInsights(context.Background(), log)
	if err != nil {
		t.Fatalf("ComputeInsights: %v", err)
	}
	if len(report.Tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(report.Tools))
	}
	ti := report.Tools[0]
	if ti.Successes != 2 || ti.Failures != 1 {
		t.Fatalf("unexpected counts: %+v", ti)
	}
	want := 2.0 / 3.0
	if ti.SuccessRate < want-0.001 || ti.SuccessRate > want+0.001 {
		t.Fatalf("expected success rate ~%.3f, got %.3f", want, ti.SuccessRate)
	}
}

func TestComputeInsightsRecommendsRetriesOnHighFailureRate(t *testing.T) {
	log := newTestLog(t)
	for i := 0; i < 7; i++ {
		log.RecordCall("flaky", false, 10)
	}
	log.RecordCall("flaky", true, 10)

	report, err := ComputeInsights(context.Background(), log)
	if err != nil {
		t.Fatalf("ComputeInsights: %v", err)
	}
	if len(report.Recommendations) == 0 {
		t.Fatal("expected a recommendation for a high failure rate tool")
	}
}

func TestComputeInsightsRecommendsCachingOnHighLatency(t *testing.T) {
	log := newTestLog(t)
	for i := 0; i < 10; i++ {
		log.RecordCall("slow_tool", true, 3000)
	}

	report, err := ComputeInsights(context.Background(), log)
	if err != nil {
		t.Fatalf("ComputeInsights: %v", err)
	}
	found := false
	for _, r := range report.Recommendations {
		if r != "" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected at least one recommendation for consistently slow tool")
	}
}

func TestComputeInsightsNotFoundRecommendation(t *testing.T) {
	log := newTestLog(t)
	log.RecordNotFound("missing_tool")
	log.RecordNotFound("missing_tool")
	log.RecordNotFound("missing_tool")
	log.RecordCall("missing_tool", false, 1) // ensure it surfaces in the tool list

	report, err := ComputeInsights(context.Background(), log)
	if err != nil {
		t.Fatalf("ComputeInsights: %v", err)
	}
	var ti *ToolInsight
	for i := range report.Tools {
		if report.Tools[i].Tool == "missing_tool" {
			ti = &report.Tools[i]
		}
	}
	if ti == nil || ti.NotFoundCount != 3 {
		t.Fatalf("expected not_found_count 3, got %+v", ti)
	}
}
