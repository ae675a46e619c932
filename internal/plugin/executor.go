package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ErrTimeout is returned when a plugin does not answer within the executor
// timeout.
var ErrTimeout = errors.New("plugin timed out")

// Executor runs plugin executables with a per-call timeout.
type Executor struct {
	timeout time.Duration
}

// NewExecutor returns an Executor that kills plugins running longer than
// timeoutMs milliseconds. A non-positive value means five seconds.
func NewExecutor(timeoutMs int) *Executor {
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}
	return &Executor{timeout: time.Duration(timeoutMs) * time.Millisecond}
}

// Timeout returns the per-call timeout.
func (e *Executor) Timeout() time.Duration { return e.timeout }

// Execute writes req to the plugin's stdin and decodes its stdout as a
// [Response]. The plugin runs in its own directory.
func (e *Executor) Execute(ctx context.Context, p *Plugin, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.Executable)
	cmd.Dir = p.Path
	cmd.Stdin = bytes.NewReader(body)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%s after %s: %w", p.Manifest.Name, e.timeout, ErrTimeout)
	}
	if err != nil {
		if msg := stderr.String(); msg != "" {
			return nil, fmt.Errorf("run %s: %w, stderr: %s", p.Manifest.Name, err, msg)
		}
		return nil, fmt.Errorf("run %s: %w", p.Manifest.Name, err)
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("parse %s response: %w, stdout: %s", p.Manifest.Name, err, stdout.String())
	}
	return &resp, nil
}
