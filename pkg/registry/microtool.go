package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// microtoolDescriptor is the on-disk shape of one MICROTOOL_DIRS entry. The
// Python original exposes a ToolSpec per decorated function in a module;
// the Go-native equivalent is a JSON descriptor naming an external command
// to exec, since Go cannot import and call arbitrary source at runtime the
// way the interpreter does.
type microtoolDescriptor struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Command     string   `json:"command"`
	Args        []string `json:"args"`
	TimeoutS    int      `json:"timeout_s"`
}

// discoverMicrotools scans every directory in dirs for *.json descriptors
// and registers each as a ToolSpec whose run execs Command with Args,
// feeding the step's own args as JSON on stdin and decoding stdout as JSON.
func (r *Registry) discoverMicrotools(dirs []string) []error {
	var errs []error
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				errs = append(errs, fmt.Errorf("microtool dir %s: %w", dir, err))
			}
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				errs = append(errs, fmt.Errorf("microtool file %s: %w", path, err))
				continue
			}
			var desc microtoolDescriptor
			if err := json.Unmarshal(data, &desc); err != nil {
				errs = append(errs, fmt.Errorf("microtool file %s: %w", path, err))
				continue
			}
			if desc.Name == "" || desc.Command == "" {
				errs = append(errs, fmt.Errorf("microtool file %s: missing name or command", path))
				continue
			}
			timeout := time.Duration(desc.TimeoutS) * time.Second
			if timeout <= 0 {
				timeout = 30 * time.Second
			}
			spec := &ToolSpec{
				Name:        desc.Name,
				Description: desc.Description,
				Tags:        desc.Tags,
				Source:      "microtool:" + path,
				Run:         microtoolRun(desc.Command, desc.Args, timeout),
			}
			_ = r.Register(spec)
		}
	}
	return errs
}

func microtoolRun(command string, args []string, timeout time.Duration) RunFunc {
	return func(ctx context.Context, toolArgs map[string]any) (map[string]any, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		payload, err := json.Marshal(toolArgs)
		if err != nil {
			return nil, fmt.Errorf("microtool: marshal args: %w", err)
		}

		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Stdin = bytes.NewReader(payload)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("microtool: %s: %w: %s", command, err, stderr.String())
		}

		var result map[string]any
		if stdout.Len() == 0 {
			return map[string]any{}, nil
		}
		if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
			return nil, fmt.Errorf("microtool: %s: decode stdout: %w", command, err)
		}
		return result, nil
	}
}
