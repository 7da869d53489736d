// Package claude wraps the claude CLI two ways: one-shot print-mode runs
// for chat-thread sessions, and detached long-running instances for spawned
// agents.
package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// killDelay is how long a signaled process gets to exit before SIGKILL.
const killDelay = 5 * time.Second

// Runner executes one-shot claude invocations in print mode and parses the
// JSON envelope the CLI emits.
type Runner struct {
	binPath string
	model   string
	logger  *slog.Logger
}

// NewRunner builds a runner. binPath defaults to "claude" and is resolved
// against PATH when possible; model is passed on every invocation when set.
func NewRunner(binPath, model string) *Runner {
	if binPath == "" {
		binPath = "claude"
	}
	if resolved, err := exec.LookPath(binPath); err == nil {
		binPath = resolved
	}
	return &Runner{
		binPath: binPath,
		model:   model,
		logger:  slog.Default().With("component", "claude"),
	}
}

// RunOptions shape a single print-mode invocation. The prompt travels over
// stdin; everything else becomes flags.
type RunOptions struct {
	Prompt       string
	SystemPrompt string
	ResumeID     string
	WorkDir      string
}

// RunResult is the parsed reply of a print-mode run.
type RunResult struct {
	SessionID string
	Reply     string
}

// printEnvelope mirrors the CLI's --output-format json payload.
type printEnvelope struct {
	SessionID string `json:"session_id"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error"`
}

// args assembles the flag list for one invocation.
func (o RunOptions) args(model string) []string {
	args := []string{"--print", "--output-format", "json"}
	if model != "" {
		args = append(args, "--model", model)
	}
	if o.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", o.SystemPrompt)
	}
	if o.ResumeID != "" {
		args = append(args, "--resume", o.ResumeID)
	}
	return args
}

// Run executes the CLI once and returns the parsed reply. Canceling ctx
// sends SIGTERM; the process is killed if it has not exited after 5s.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	if strings.TrimSpace(opts.Prompt) == "" {
		return RunResult{}, fmt.Errorf("prompt is required")
	}

	cmd := exec.CommandContext(ctx, r.binPath, opts.args(r.model)...) // #nosec G204 -- binPath resolved at construction
	if opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}
	cmd.Stdin = strings.NewReader(opts.Prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killDelay

	start := time.Now()
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		return RunResult{}, fmt.Errorf("claude run failed: %w: %s", err, detail)
	}
	r.logger.Debug("claude run complete",
		"resume", opts.ResumeID != "",
		"duration", time.Since(start).Round(time.Millisecond))

	return parsePrintOutput(stdout.Bytes())
}

// parsePrintOutput decodes the JSON envelope from a print-mode run.
func parsePrintOutput(raw []byte) (RunResult, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return RunResult{}, fmt.Errorf("claude produced no output")
	}
	var env printEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return RunResult{}, fmt.Errorf("claude output is not valid JSON: %w", err)
	}
	if env.IsError {
		return RunResult{}, fmt.Errorf("claude reported an error: %s", env.Result)
	}
	if env.SessionID == "" {
		return RunResult{}, fmt.Errorf("claude output is missing a session id")
	}
	return RunResult{SessionID: env.SessionID, Reply: env.Result}, nil
}
