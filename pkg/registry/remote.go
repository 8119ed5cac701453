package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// remoteToolEntry is one element of REMOTE_TOOLS_CONFIG, spec.md §4.1
// discovery source 5, extended with an optional MCP descriptor in place of
// the bare REST url/method pair.
type remoteToolEntry struct {
	Name string `json:"name"`

	URL        string `json:"url"`
	Method     string `json:"method"`
	APIKeyEnv  string `json:"api_key_env"`
	TimeoutS   int    `json:"timeout_s"`
	ResultPath string `json:"result_path"`

	MCP *remoteMCPDescriptor `json:"mcp"`
}

type remoteMCPDescriptor struct {
	Transport string            `json:"transport"` // stdio, sse, streamable-http
	Command   string            `json:"command"`
	Args      []string          `json:"args"`
	Env       map[string]string `json:"env"`
	URL       string            `json:"url"`
	Tool      string            `json:"tool"`
	TimeoutS  int               `json:"timeout_s"`
}

func loadRemoteToolsConfig(path string) ([]remoteToolEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []remoteToolEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// discoverRemoteTools materializes every REMOTE_TOOLS_CONFIG entry into a
// ToolSpec. REST entries perform the HTTP call directly; MCP entries use
// mark3labs/mcp-go, matching the teacher's pkg/tool/mcptoolset split.
func (r *Registry) discoverRemoteTools(entries []remoteToolEntry) []error {
	var errs []error
	for _, e := range entries {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("remote tool entry missing name"))
			continue
		}
		var run RunFunc
		if e.MCP != nil {
			run = mcpToolRun(*e.MCP)
		} else {
			if e.URL == "" {
				errs = append(errs, fmt.Errorf("remote tool %s: missing url", e.Name))
				continue
			}
			run = restToolRun(e)
		}
		_ = r.Register(&ToolSpec{
			Name:   e.Name,
			Source: "remote:" + e.Name,
			Run:    run,
		})
	}
	return errs
}

func restToolRun(e remoteToolEntry) RunFunc {
	method := e.Method
	if method == "" {
		method = http.MethodPost
	}
	timeout := time.Duration(e.TimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		body, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("remote tool %s: marshal args: %w", e.Name, err)
		}

		req, err := http.NewRequestWithContext(ctx, method, e.URL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("remote tool %s: build request: %w", e.Name, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if e.APIKeyEnv != "" {
			if key := os.Getenv(e.APIKeyEnv); key != "" {
				req.Header.Set("Authorization", "Bearer "+key)
			}
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("remote tool %s: %w", e.Name, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("remote tool %s: read response: %w", e.Name, err)
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("remote tool %s: http %d: %s", e.Name, resp.StatusCode, string(respBody))
		}

		var decoded any
		if err := json.Unmarshal(respBody, &decoded); err != nil {
			return map[string]any{"result": string(respBody)}, nil
		}
		if e.ResultPath != "" {
			decoded = extractPath(decoded, e.ResultPath)
		}
		if m, ok := decoded.(map[string]any); ok {
			return m, nil
		}
		return map[string]any{"result": decoded}, nil
	}
}

func mcpToolRun(d remoteMCPDescriptor) RunFunc {
	timeout := time.Duration(d.TimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var mcpClient *client.Client
		var err error
		switch d.Transport {
		case "", "stdio":
			env := make([]string, 0, len(d.Env))
			for k, v := range d.Env {
				env = append(env, k+"="+v)
			}
			mcpClient, err = client.NewStdioMCPClient(d.Command, env, d.Args...)
		case "sse":
			mcpClient, err = client.NewSSEMCPClient(d.URL)
		case "streamable-http":
			mcpClient, err = client.NewStreamableHttpClient(d.URL)
		default:
			return nil, fmt.Errorf("mcp tool: unsupported transport %q", d.Transport)
		}
		if err != nil {
			return nil, fmt.Errorf("mcp tool: connect: %w", err)
		}
		defer mcpClient.Close()

		if err := mcpClient.Start(ctx); err != nil {
			return nil, fmt.Errorf("mcp tool: start: %w", err)
		}

		initReq := mcp.InitializeRequest{}
		initReq.Params.ClientInfo = mcp.Implementation{Name: "agentrun", Version: "1.0.0"}
		initReq.Params.ProtocolVersion = "2024-11-05"
		if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
			return nil, fmt.Errorf("mcp tool: initialize: %w", err)
		}

		callReq := mcp.CallToolRequest{}
		callReq.Params.Name = d.Tool
		callReq.Params.Arguments = args

		result, err := mcpClient.CallTool(ctx, callReq)
		if err != nil {
			return nil, fmt.Errorf("mcp tool: call %s: %w", d.Tool, err)
		}

		out := map[string]any{}
		if result.IsError {
			out["error"] = mcpTextContent(result)
			return out, nil
		}
		out["result"] = mcpTextContent(result)
		return out, nil
	}
}

func mcpTextContent(result *mcp.CallToolResult) string {
	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

// extractPath walks a dotted path (e.g. "data.items") through decoded JSON.
func extractPath(v any, path string) any {
	cur := v
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}
