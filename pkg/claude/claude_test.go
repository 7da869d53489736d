package claude

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herd-sh/herd/pkg/adapters"
)

// writeFakeCLI drops an executable shell script standing in for the claude
// binary and returns its path.
func writeFakeCLI(t *testing.T, script string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "fake-claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func TestRunOptionsArgs(t *testing.T) {
	assert.Equal(t, []string{"--print", "--output-format", "json"}, RunOptions{}.args(""))

	args := RunOptions{SystemPrompt: "you are the coordinator", ResumeID: "sid-1"}.args("sonnet")
	assert.Equal(t, []string{
		"--print", "--output-format", "json",
		"--model", "sonnet",
		"--append-system-prompt", "you are the coordinator",
		"--resume", "sid-1",
	}, args)
}

func TestParsePrintOutput(t *testing.T) {
	res, err := parsePrintOutput([]byte(`{"session_id":"abc-123","result":"on it","is_error":false}`))
	require.NoError(t, err)
	assert.Equal(t, "abc-123", res.SessionID)
	assert.Equal(t, "on it", res.Reply)
}

func TestParsePrintOutputErrors(t *testing.T) {
	_, err := parsePrintOutput([]byte("  \n"))
	assert.ErrorContains(t, err, "no output")

	_, err = parsePrintOutput([]byte("not json"))
	assert.ErrorContains(t, err, "not valid JSON")

	_, err = parsePrintOutput([]byte(`{"session_id":"abc","result":"rate limited","is_error":true}`))
	assert.ErrorContains(t, err, "rate limited")

	_, err = parsePrintOutput([]byte(`{"result":"hi"}`))
	assert.ErrorContains(t, err, "session id")
}

func TestRunnerRun(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	t.Setenv("ARGS_FILE", argsFile)
	bin := writeFakeCLI(t, `echo "$@" > "$ARGS_FILE"; prompt=$(cat); printf '{"session_id":"s-1","result":"got: %s"}' "$prompt"`)

	r := NewRunner(bin, "sonnet")
	res, err := r.Run(context.Background(), RunOptions{Prompt: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "s-1", res.SessionID)
	assert.Equal(t, "got: ping", res.Reply)

	raw, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "--print --output-format json --model sonnet", strings.TrimSpace(string(raw)))
}

func TestRunnerRunRequiresPrompt(t *testing.T) {
	_, err := NewRunner("claude", "").Run(context.Background(), RunOptions{})
	assert.ErrorContains(t, err, "prompt is required")
}

func TestRunnerRunSurfacesStderr(t *testing.T) {
	bin := writeFakeCLI(t, `echo "quota exhausted" >&2; exit 3`)
	_, err := NewRunner(bin, "").Run(context.Background(), RunOptions{Prompt: "ping"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exhausted")
}

func TestRunnerRunCanceled(t *testing.T) {
	bin := writeFakeCLI(t, `exec sleep 30`)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewRunner(bin, "").Run(ctx, RunOptions{Prompt: "ping"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second, "SIGTERM should end the run promptly")
}

func TestSpawnArgs(t *testing.T) {
	assert.Equal(t, []string{"--print", "--dangerously-skip-permissions"}, spawnArgs(""))
	assert.Equal(t,
		[]string{"--print", "--dangerously-skip-permissions", "--model", "opus"},
		spawnArgs("opus"))
}

func TestSpawnerLifecycle(t *testing.T) {
	bin := writeFakeCLI(t, `exec sleep 30`)
	s := NewSpawner(bin, "sonnet")

	res, err := s.Spawn(context.Background(), adapters.SpawnRequest{
		AgentCode: "fresco",
		TicketID:  "HERD-7",
		Context:   "you are fresco, working HERD-7",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.InstanceID, "fresco-"), res.InstanceID)
	assert.Equal(t, "sonnet", res.Model, "default model fills the gap")
	assert.Equal(t, "HERD-7", res.TicketID)

	st, err := s.Status(context.Background(), res.InstanceID)
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.NotZero(t, st.PID)
	assert.Equal(t, 1, s.Running())

	require.NoError(t, s.Stop(context.Background(), res.InstanceID))
	st, err = s.Status(context.Background(), res.InstanceID)
	require.NoError(t, err)
	assert.False(t, st.Running)
	require.NotNil(t, st.ExitCode)
	assert.Equal(t, 0, s.Running())

	// Stopping an exited instance is a no-op.
	require.NoError(t, s.Stop(context.Background(), res.InstanceID))
}

func TestSpawnerReapsExit(t *testing.T) {
	bin := writeFakeCLI(t, `exit 7`)
	s := NewSpawner(bin, "")

	res, err := s.Spawn(context.Background(), adapters.SpawnRequest{AgentCode: "rook"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, err := s.Status(context.Background(), res.InstanceID)
		return err == nil && !st.Running
	}, 5*time.Second, 20*time.Millisecond)

	st, err := s.Status(context.Background(), res.InstanceID)
	require.NoError(t, err)
	require.NotNil(t, st.ExitCode)
	assert.Equal(t, 7, *st.ExitCode)
}

func TestSpawnerModelOverride(t *testing.T) {
	bin := writeFakeCLI(t, `exit 0`)
	s := NewSpawner(bin, "sonnet")

	res, err := s.Spawn(context.Background(), adapters.SpawnRequest{AgentCode: "vigil", Model: "haiku"})
	require.NoError(t, err)
	assert.Equal(t, "haiku", res.Model)
}

func TestSpawnerUnknownInstance(t *testing.T) {
	s := NewSpawner("claude", "")

	_, err := s.Status(context.Background(), "ghost")
	assert.ErrorIs(t, err, adapters.ErrNotFound)

	err = s.Stop(context.Background(), "ghost")
	assert.ErrorIs(t, err, adapters.ErrNotFound)
}

func TestSpawnerRequiresAgentCode(t *testing.T) {
	s := NewSpawner("claude", "")
	_, err := s.Spawn(context.Background(), adapters.SpawnRequest{})
	assert.ErrorContains(t, err, "agent code")
}
