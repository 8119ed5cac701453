// Package planner implements the planner (L8): turning a free-text prompt
// into an ordered list of Steps, either by asking a local Ollama model or,
// failing that, a small keyword-based fallback — then expanding any
// conditional/loop control-flow nodes (advanced.go) and, later in the
// executor's lifecycle, proposing replan/escalation steps from a
// reflection checkpoint (reflect.go).
//
// Grounded on original_source/core/agentControl.py's plan_steps: prefer a
// local LLM via Ollama when OLLAMA_HOST is set, prompting it with the
// registered tool names and asking for a JSON step list; otherwise fall
// back to a keyword scan, extending the original's http/url/web and .pdf
// rules with triggers for the other original_source/plugins/ tools.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

// Step is one node of a plan, per spec.md §3.
type Step struct {
	Tool         string         `json:"tool"`
	Args         map[string]any `json:"args"`
	DependsOn    []string       `json:"depends_on,omitempty"`
	TTLSeconds   int            `json:"ttl_s,omitempty"`
	FallbackTool string         `json:"fallback_tool,omitempty"`
	TimeoutS     int            `json:"timeout_s,omitempty"`
	Retries      int            `json:"retries,omitempty"`
}

// Normalize fills in defaults (timeout_s=20, retries=1) the way spec.md §3
// describes a Step's defaults, without rejecting anything — validation of
// the result is the executor's job.
func (s *Step) Normalize() {
	if s.TimeoutS <= 0 {
		s.TimeoutS = 20
	}
	if s.Retries <= 0 {
		s.Retries = 1
	}
	if s.Args == nil {
		s.Args = map[string]any{}
	}
}

// ollamaGenerateRequest/Response mirror the minimal fields agentControl.py's
// plan_steps reads from Ollama's /api/generate.
type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// PlanSteps proposes an ordered step list for prompt. toolNames lists the
// registry's currently known tools, used to ground the Ollama prompt (and
// ignored by the rule-based fallback).
func PlanSteps(ctx context.Context, prompt string, toolNames []string) []Step {
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		if steps, ok := planWithOllama(ctx, host, prompt, toolNames); ok {
			return steps
		}
	}
	return ruleBasedPlan(prompt)
}

func planWithOllama(ctx context.Context, host, prompt string, toolNames []string) ([]Step, bool) {
	names := append([]string(nil), toolNames...)
	sort.Strings(names)

	q := fmt.Sprintf(
		"You are a planner. Given a task: '%s', propose a short ordered JSON list of steps using tools from: [%s]. Each step object must be of the form {\"tool\": \"...\", \"args\": {...}}.",
		prompt, strings.Join(names, ", "),
	)
	model := os.Getenv("OLLAMA_MODEL")
	if model == "" {
		model = "llama3.1:8b"
	}

	payload, err := json.Marshal(ollamaGenerateRequest{Model: model, Prompt: q, Stream: false})
	if err != nil {
		return nil, false
	}

	reqCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()

	url := strings.TrimSuffix(host, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false
	}
	var gen ollamaGenerateResponse
	if err := json.Unmarshal(body, &gen); err != nil {
		return nil, false
	}

	var steps []Step
	if err := json.Unmarshal([]byte(gen.Response), &steps); err != nil || len(steps) == 0 {
		return nil, false
	}
	return steps, true
}

// ruleBasedPlan is the local-first fallback: a lightweight keyword scan.
// The first two checks (http/url/web, .pdf) are agentControl.py's
// _rule_based_plan verbatim. csv/json/search-or-find have no rule-based
// precedent in agentControl.py; they're added so plugins/csv_parse.py and
// plugins/json_parse.py are reachable without an LLM, evaluated after the
// original two so their behavior is unchanged.
func ruleBasedPlan(prompt string) []Step {
	var steps []Step
	p := strings.ToLower(prompt)
	if strings.Contains(p, "http") || strings.Contains(p, "url") || strings.Contains(p, "web") {
		steps = append(steps, Step{Tool: "web_fetch", Args: map[string]any{"url": "https://example.com"}})
	}
	if strings.Contains(p, ".pdf") {
		steps = append(steps, Step{Tool: "pdf_text", Args: map[string]any{"path": "./document.pdf"}})
	}
	if strings.Contains(p, ".csv") {
		steps = append(steps, Step{Tool: "csv_parse", Args: map[string]any{"path": "./data.csv"}})
	}
	if strings.Contains(p, ".json") {
		steps = append(steps, Step{Tool: "json_parse", Args: map[string]any{"path": "./data.json"}})
	}
	if strings.Contains(p, "search") || strings.Contains(p, "find") {
		steps = append(steps, Step{Tool: "search", Args: map[string]any{"query": prompt}})
	}
	if len(steps) == 0 {
		steps = append(steps, Step{Tool: "web_fetch", Args: map[string]any{"url": "https://example.com"}})
	}
	return steps
}
