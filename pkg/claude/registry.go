package claude

import (
	"os/exec"
	"sync"
	"time"

	"github.com/herd-sh/herd/pkg/metrics"
)

// proc is one tracked detached subprocess.
type proc struct {
	instanceID string
	agent      string
	pid        int
	startedAt  time.Time
	cmd        *exec.Cmd

	done     chan struct{}
	exitCode int // valid once done is closed
}

// running reports whether the process is still alive.
func (p *proc) running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// exit returns the recorded exit code, blocking until the process has been
// reaped. Only call after running() reports false.
func (p *proc) exit() int {
	<-p.done
	return p.exitCode
}

// registry indexes detached processes by instance id and keeps the
// running-process gauge current.
type registry struct {
	mu    sync.Mutex
	procs map[string]*proc
}

func newRegistry() *registry {
	return &registry{procs: make(map[string]*proc)}
}

func (r *registry) add(p *proc) {
	r.mu.Lock()
	r.procs[p.instanceID] = p
	r.mu.Unlock()
	metrics.AgentProcsRunning.Inc()
}

func (r *registry) get(id string) (*proc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.procs[id]
	return p, ok
}

// markExited records the exit code and releases the gauge slot. Called
// exactly once per process, by the reaper.
func (r *registry) markExited(p *proc, code int) {
	r.mu.Lock()
	p.exitCode = code
	close(p.done)
	r.mu.Unlock()
	metrics.AgentProcsRunning.Dec()
}

func (r *registry) runningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.procs {
		if p.running() {
			n++
		}
	}
	return n
}
