// Command toolrun is the CLI for the agent execution runtime: plan and run
// a tool pipeline, inspect its trace log, and read the insights
// aggregator's recommendations.
//
// Usage:
//
//	toolrun run --prompt "fetch https://example.com and summarize"
//	toolrun run --steps steps.json
//	toolrun trace show <trace-id>
//	toolrun trace list
//	toolrun insights
//	toolrun tools list
//	toolrun budget <scope>
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	agentrun "github.com/wjabrac/agentrun"
	"github.com/wjabrac/agentrun/pkg/executor"
	"github.com/wjabrac/agentrun/pkg/logger"
	"github.com/wjabrac/agentrun/pkg/sandbox"
)

// CLI defines the command-line interface.
type CLI struct {
	Run      RunCmd      `cmd:"" help:"Plan (if needed) and execute a tool pipeline."`
	Trace    TraceCmd    `cmd:"" help:"Inspect recorded traces."`
	Insights InsightsCmd `cmd:"" help:"Show the insights aggregator's report."`
	Tools    ToolsCmd    `cmd:"" help:"List registered tools."`
	Budget   BudgetCmd   `cmd:"" help:"Show remaining budget for a scope."`

	Store     string `help:"Result store path (sqlite file, or :memory:)." default:"agentrun.db"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, or custom)." default:"simple"`
}

// RunCmd plans (if Prompt is given and Steps is empty) and executes a
// pipeline.
type RunCmd struct {
	Prompt string   `help:"Natural-language goal; rule-based planner expands it into steps when --steps is empty."`
	Steps  string   `help:"Path to a JSON file holding the raw step/control-flow list. Overrides --prompt-derived planning." type:"path"`
	Thread string   `help:"Thread ID the run's trace and session scratchpad are recorded under." default:"cli"`
	Tags   []string `help:"Budget tags to attribute this run's tool calls to."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	rt, err := newRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.Close()

	var raw executor.RawSteps
	if c.Steps != "" {
		data, err := os.ReadFile(c.Steps)
		if err != nil {
			return fmt.Errorf("read steps file: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parse steps file: %w", err)
		}
	}

	res, err := rt.ExecuteSteps(ctx, c.Prompt, raw, c.Thread, c.Tags)
	if err != nil {
		return err
	}
	return printJSON(res)
}

// TraceCmd groups trace-inspection subcommands.
type TraceCmd struct {
	List TraceListCmd `cmd:"" help:"List recent traces."`
	Show TraceShowCmd `cmd:"" help:"Show one trace's full event history."`
}

// TraceListCmd lists recent traces.
type TraceListCmd struct {
	Limit int `help:"Max traces to return." default:"20"`
}

func (c *TraceListCmd) Run(cli *CLI) error {
	ctx := context.Background()
	rt, err := newRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.Close()

	traces, err := rt.ListRecentTraces(ctx, c.Limit)
	if err != nil {
		return err
	}
	return printJSON(traces)
}

// TraceShowCmd shows one trace's full event history.
type TraceShowCmd struct {
	ID string `arg:"" help:"Trace ID."`
}

func (c *TraceShowCmd) Run(cli *CLI) error {
	ctx := context.Background()
	rt, err := newRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.Close()

	summary, err := rt.GetTraceSummary(ctx, c.ID)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

// InsightsCmd computes and prints the insights report.
type InsightsCmd struct{}

func (c *InsightsCmd) Run(cli *CLI) error {
	ctx := context.Background()
	rt, err := newRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.Close()

	report, err := rt.ComputeInsights(ctx)
	if err != nil {
		return err
	}
	return printJSON(report)
}

// ToolsCmd groups tool-registry inspection subcommands.
type ToolsCmd struct {
	List ToolsListCmd `cmd:"" help:"List registered tool names."`
}

// ToolsListCmd lists registered tool names.
type ToolsListCmd struct{}

func (c *ToolsListCmd) Run(cli *CLI) error {
	ctx := context.Background()
	rt, err := newRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.Close()
	return printJSON(rt.ToolNames())
}

// BudgetCmd shows remaining budget for a scope.
type BudgetCmd struct {
	Scope string `arg:"" help:"Scope name: \"global\", \"tool:<name>\", or \"tag:<name>\"."`
}

func (c *BudgetCmd) Run(cli *CLI) error {
	ctx := context.Background()
	rt, err := newRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.Close()
	return printJSON(map[string]any{"scope": c.Scope, "remaining": rt.BudgetRemaining(c.Scope)})
}

func newRuntime(ctx context.Context, cli *CLI) (*agentrun.Runtime, error) {
	return agentrun.New(ctx, agentrun.Options{StorePath: cli.Store})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()
	return ctx, cancel
}

// runSandboxWorker is the re-exec entry point sandbox.ProcessSandbox drives:
// read one request from stdin, dispatch it against a freshly discovered
// registry, write one response to stdout. See pkg/sandbox's WorkerFlag.
func runSandboxWorker() {
	req, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "toolrun: read sandbox request: %v\n", err)
		os.Exit(1)
	}

	rt, err := agentrun.New(context.Background(), agentrun.Options{StorePath: ":memory:", Sandbox: sandbox.Direct{}})
	if err != nil {
		fmt.Fprintf(os.Stderr, "toolrun: build sandbox worker runtime: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	dispatch := func(tool string, args map[string]any) (map[string]any, error) {
		spec, err := rt.Registry.Get(tool)
		if err != nil {
			return nil, err
		}
		return spec.Run(context.Background(), args)
	}

	os.Stdout.Write(sandbox.RunWorker(dispatch, req))
}

func main() {
	for _, a := range os.Args[1:] {
		if a == sandbox.WorkerFlag {
			runSandboxWorker()
			return
		}
	}

	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("toolrun"),
		kong.Description("agentrun - tool-pipeline execution runtime"),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q: %v\n", cli.LogLevel, err)
		os.Exit(1)
	}
	out := os.Stderr
	if cli.LogFile != "" {
		f, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		out = f
	}
	logger.Init(level, out, cli.LogFormat)

	err = kctx.Run(&cli)
	kctx.FatalIfErrorf(err)
}
