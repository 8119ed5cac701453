// Package sandbox implements the out-of-process tool runner (L5). A risky
// tool's fn is invoked in a child OS process, request/response shipped as
// JSON over stdin/stdout, bounded by a wall-clock timeout that SIGKILLs the
// child on expiry.
//
// Grounded on original_source/core/safety/sandbox.py's subprocess + queue
// model and the teacher's pkg/plugins/grpc out-of-process pattern, minus
// the gRPC framing — a single call/response round trip doesn't need an RPC
// protocol, just a pipe.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/wjabrac/agentrun/pkg/xerrors"
)

// WorkerFlag is the hidden CLI flag cmd/toolrun recognizes to re-exec
// itself as a sandbox worker instead of running the normal CLI.
const WorkerFlag = "--sandbox-worker"

// Runner executes fn(args) under sandboxing appropriate to the
// implementation. The in-process Direct runner exists for tools that don't
// need isolation; ProcessSandbox is used when policy.IsRiskyTool(name).
type Runner interface {
	Run(ctx context.Context, tool string, fn func(context.Context, map[string]any) (map[string]any, error), args map[string]any, timeout time.Duration) (map[string]any, error)
}

// Direct runs fn in-process with a timeout, no process isolation.
type Direct struct{}

func (Direct) Run(ctx context.Context, tool string, fn func(context.Context, map[string]any) (map[string]any, error), args map[string]any, timeout time.Duration) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		out map[string]any
		err error
	}
	ch := make(chan result, 1)
	go func() {
		out, err := fn(ctx, args)
		ch <- result{out, err}
	}()

	select {
	case r := <-ch:
		return r.out, r.err
	case <-ctx.Done():
		return nil, &xerrors.SandboxTimeoutError{Tool: tool}
	}
}

// workerRequest/workerResponse are the JSON envelopes piped to/from the
// sandbox worker subprocess.
type workerRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

type workerResponse struct {
	Output map[string]any `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
	Kind   string         `json:"kind,omitempty"`
}

// ProcessSandbox re-execs the current binary with WorkerFlag and pipes one
// request/response pair over stdin/stdout. Registry lookup for `tool` must
// succeed identically in the worker process — callers pass the same
// process image (os.Executable), so this only works when the registered
// tool's Run closure is reconstructible from a pure (tool, args) pair; in
// practice this means built-in/plugin/remote adapters, not ad hoc Go
// closures captured over local state. That limitation is documented, not
// worked around: spec.md's sandbox only ever wraps the risky-tool set,
// which in this repo's registry are adapter tools satisfying that
// contract.
type ProcessSandbox struct {
	// Dispatch resolves a tool name back to a runnable function. Run does
	// not read it: the worker process resolves tools through the dispatch
	// function its own entry point passes to RunWorker.
	Dispatch func(tool string, args map[string]any) (map[string]any, error)
}

func (p *ProcessSandbox) Run(ctx context.Context, tool string, _ func(context.Context, map[string]any) (map[string]any, error), args map[string]any, timeout time.Duration) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	exe, err := os.Executable()
	if err != nil {
		return nil, &xerrors.SandboxError{Kind: "exec_lookup", Message: err.Error()}
	}

	req := workerRequest{Tool: tool, Args: args}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &xerrors.SandboxError{Kind: "marshal", Message: err.Error()}
	}

	cmd := exec.CommandContext(ctx, exe, WorkerFlag)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, &xerrors.SandboxTimeoutError{Tool: tool}
	}
	if err != nil {
		return nil, &xerrors.SandboxError{Kind: "exit", Message: fmt.Sprintf("%v: %s", err, stderr.String())}
	}

	var resp workerResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, &xerrors.SandboxError{Kind: "decode", Message: err.Error()}
	}
	if resp.Error != "" {
		return nil, &xerrors.SandboxError{Kind: resp.Kind, Message: resp.Error}
	}
	return resp.Output, nil
}

// RunWorker is the worker-side entry point: decode one workerRequest from
// r, dispatch it, and return the encoded workerResponse. cmd/toolrun calls
// this when
// invoked with WorkerFlag instead of starting the normal CLI.
func RunWorker(dispatch func(tool string, args map[string]any) (map[string]any, error), r []byte) []byte {
	var req workerRequest
	resp := workerResponse{}
	if err := json.Unmarshal(r, &req); err != nil {
		resp.Error = err.Error()
		resp.Kind = "decode"
	} else {
		out, err := dispatch(req.Tool, req.Args)
		if err != nil {
			resp.Error = err.Error()
			resp.Kind = "runtime"
		} else {
			resp.Output = out
		}
	}
	data, _ := json.Marshal(resp)
	return data
}
