package claude

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/herd-sh/herd/pkg/adapters"
)

// Spawner launches detached claude instances for spawned agents. Instances
// outlive the request that started them; the registry tracks liveness.
type Spawner struct {
	binPath      string
	defaultModel string
	logger       *slog.Logger
	procs        *registry
}

var _ adapters.Agent = (*Spawner)(nil)

// NewSpawner builds a spawner. binPath defaults to "claude" and is resolved
// against PATH when possible.
func NewSpawner(binPath, defaultModel string) *Spawner {
	if binPath == "" {
		binPath = "claude"
	}
	if resolved, err := exec.LookPath(binPath); err == nil {
		binPath = resolved
	}
	return &Spawner{
		binPath:      binPath,
		defaultModel: defaultModel,
		logger:       slog.Default().With("component", "spawner"),
		procs:        newRegistry(),
	}
}

// spawnArgs builds the flag list for a detached instance.
func spawnArgs(model string) []string {
	args := []string{"--print", "--dangerously-skip-permissions"}
	if model != "" {
		args = append(args, "--model", model)
	}
	return args
}

// Spawn starts a detached instance with the context payload on stdin. The
// request ctx is deliberately not attached to the command: the instance
// must survive the tool call that created it.
func (s *Spawner) Spawn(_ context.Context, req adapters.SpawnRequest) (adapters.SpawnResult, error) {
	if req.AgentCode == "" {
		return adapters.SpawnResult{}, fmt.Errorf("agent code is required")
	}
	model := req.Model
	if model == "" {
		model = s.defaultModel
	}

	cmd := exec.Command(s.binPath, spawnArgs(model)...) // #nosec G204 -- binPath resolved at construction
	if req.Worktree != "" {
		cmd.Dir = req.Worktree
	}
	if req.Context != "" {
		cmd.Stdin = strings.NewReader(req.Context)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return adapters.SpawnResult{}, fmt.Errorf("starting claude failed: %w", err)
	}

	p := &proc{
		instanceID: req.AgentCode + "-" + uuid.NewString()[:8],
		agent:      req.AgentCode,
		pid:        cmd.Process.Pid,
		startedAt:  time.Now().UTC(),
		cmd:        cmd,
		done:       make(chan struct{}),
	}
	s.procs.add(p)
	go s.reap(p)

	s.logger.Info("spawned agent instance",
		"agent", req.AgentCode, "instance", p.instanceID, "pid", p.pid, "ticket", req.TicketID)
	return adapters.SpawnResult{
		InstanceID: p.instanceID,
		Agent:      req.AgentCode,
		TicketID:   req.TicketID,
		Model:      model,
		Worktree:   req.Worktree,
		Branch:     req.Branch,
		SpawnedAt:  p.startedAt,
	}, nil
}

// reap waits for the process and records its exit.
func (s *Spawner) reap(p *proc) {
	err := p.cmd.Wait()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	s.procs.markExited(p, code)
	s.logger.Debug("agent instance exited", "instance", p.instanceID, "exit_code", code)
}

// Status reports liveness for a tracked instance.
func (s *Spawner) Status(_ context.Context, instanceID string) (adapters.AgentStatus, error) {
	p, ok := s.procs.get(instanceID)
	if !ok {
		return adapters.AgentStatus{}, fmt.Errorf("instance %s: %w", instanceID, adapters.ErrNotFound)
	}
	st := adapters.AgentStatus{
		InstanceID: p.instanceID,
		Running:    p.running(),
		PID:        p.pid,
		StartedAt:  p.startedAt,
	}
	if !st.Running {
		code := p.exit()
		st.ExitCode = &code
	}
	return st, nil
}

// Stop terminates a tracked instance: SIGTERM first, SIGKILL if it has not
// exited after 5s. Stopping an already-exited instance is a no-op.
func (s *Spawner) Stop(ctx context.Context, instanceID string) error {
	p, ok := s.procs.get(instanceID)
	if !ok {
		return fmt.Errorf("instance %s: %w", instanceID, adapters.ErrNotFound)
	}
	if !p.running() {
		return nil
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Likely lost the race with the reaper; fall through and wait.
		s.logger.Debug("signal failed", "instance", instanceID, "error", err)
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(killDelay):
	}

	if err := p.cmd.Process.Kill(); err != nil && p.running() {
		return fmt.Errorf("killing instance %s failed: %w", instanceID, err)
	}
	<-p.done
	return nil
}

// Running counts tracked instances that have not exited.
func (s *Spawner) Running() int {
	return s.procs.runningCount()
}
