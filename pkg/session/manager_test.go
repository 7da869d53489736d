package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herd-sh/herd/pkg/claude"
)

// fakeRunner records every invocation and replies with canned session ids.
type fakeRunner struct {
	mu    sync.Mutex
	calls []claude.RunOptions
	sids  []string // per-call ids; the last one repeats
	reply string
	err   error
	delay time.Duration
}

func (f *fakeRunner) Run(ctx context.Context, opts claude.RunOptions) (claude.RunResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	n := len(f.calls)
	err := f.err
	delay := f.delay
	reply := f.reply
	sid := "sid-1"
	if len(f.sids) > 0 {
		if n <= len(f.sids) {
			sid = f.sids[n-1]
		} else {
			sid = f.sids[len(f.sids)-1]
		}
	}
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return claude.RunResult{}, ctx.Err()
		}
	}
	if err != nil {
		return claude.RunResult{}, err
	}
	if reply == "" {
		reply = "ok"
	}
	return claude.RunResult{SessionID: sid, Reply: reply}, nil
}

func (f *fakeRunner) callList() []claude.RunOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]claude.RunOptions(nil), f.calls...)
}

func (f *fakeRunner) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func newTestManager(t *testing.T, r Runner, opts Options) *Manager {
	t.Helper()
	m := NewManager(r, opts)
	t.Cleanup(m.Close)
	return m
}

func TestIsShutdownPhrase(t *testing.T) {
	for _, text := range []string{"go to sleep", "Stand Down", "  standdown  ", "TERMINATE", "shutdown"} {
		assert.True(t, isShutdownPhrase(text), text)
	}
	for _, text := range []string{"hello", "please shutdown later", ""} {
		assert.False(t, isShutdownPhrase(text), text)
	}
}

func TestFirstMessageStartsSession(t *testing.T) {
	f := &fakeRunner{reply: "on it"}
	m := newTestManager(t, f, Options{SystemPrompt: "you are the coordinator", WorkDir: "/tmp/herd"})

	reply, err := m.HandleMessage(context.Background(), "T1", "status?", "maria")
	require.NoError(t, err)
	assert.Equal(t, "on it", reply)
	assert.Equal(t, 1, m.Active())

	calls := f.callList()
	require.Len(t, calls, 1)
	assert.Equal(t, "maria says: status?", calls[0].Prompt)
	assert.Equal(t, "you are the coordinator", calls[0].SystemPrompt)
	assert.Equal(t, "/tmp/herd", calls[0].WorkDir)
	assert.Empty(t, calls[0].ResumeID)
}

func TestFollowUpResumesLatestSessionID(t *testing.T) {
	f := &fakeRunner{sids: []string{"sid-1", "sid-2", "sid-3"}}
	m := newTestManager(t, f, Options{})
	ctx := context.Background()

	_, err := m.HandleMessage(ctx, "T1", "one", "ops")
	require.NoError(t, err)
	_, err = m.HandleMessage(ctx, "T1", "two", "ops")
	require.NoError(t, err)
	_, err = m.HandleMessage(ctx, "T1", "three", "ops")
	require.NoError(t, err)

	calls := f.callList()
	require.Len(t, calls, 3)
	assert.Equal(t, "sid-1", calls[1].ResumeID)
	assert.Equal(t, "sid-2", calls[2].ResumeID, "resume follows the id each run reports")
	assert.Empty(t, calls[1].SystemPrompt, "system prompt only on the first run")
	assert.Equal(t, 1, m.Active())
}

func TestShutdownPhraseClosesSession(t *testing.T) {
	f := &fakeRunner{}
	m := newTestManager(t, f, Options{})
	ctx := context.Background()

	_, err := m.HandleMessage(ctx, "T1", "hello", "ops")
	require.NoError(t, err)
	require.Equal(t, 1, m.Active())

	reply, err := m.HandleMessage(ctx, "T1", "stand down", "ops")
	require.NoError(t, err)
	assert.Equal(t, "Standing down. Session closed.", reply)
	assert.Equal(t, 0, m.Active())

	reply, err = m.HandleMessage(ctx, "T1", "terminate", "ops")
	require.NoError(t, err)
	assert.Equal(t, "No active session for this thread.", reply)
}

func TestConcurrentFirstMessagesCreateOneSession(t *testing.T) {
	f := &fakeRunner{delay: 30 * time.Millisecond}
	m := newTestManager(t, f, Options{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.HandleMessage(context.Background(), "T1", fmt.Sprintf("msg %d", i), "ops")
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	calls := f.callList()
	require.Len(t, calls, 2)
	created := 0
	for _, c := range calls {
		if c.ResumeID == "" {
			created++
		}
	}
	assert.Equal(t, 1, created, "only one run may create the session")
	assert.Equal(t, 1, m.Active())
}

func TestFailedStartLeavesNoSession(t *testing.T) {
	f := &fakeRunner{}
	f.setErr(errors.New("claude exploded"))
	m := newTestManager(t, f, Options{})
	ctx := context.Background()

	_, err := m.HandleMessage(ctx, "T1", "hello", "ops")
	require.ErrorContains(t, err, "claude exploded")
	assert.Equal(t, 0, m.Active())

	f.setErr(nil)
	reply, err := m.HandleMessage(ctx, "T1", "hello again", "ops")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Equal(t, 1, m.Active())
}

func TestReaperEvictsIdleSessions(t *testing.T) {
	f := &fakeRunner{}
	m := newTestManager(t, f, Options{IdleTimeout: time.Minute})
	ctx := context.Background()

	_, err := m.HandleMessage(ctx, "T1", "hello", "ops")
	require.NoError(t, err)
	require.Equal(t, 1, m.Active())

	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	m.reapIdle()
	assert.Equal(t, 0, m.Active())

	m.now = time.Now
	_, err = m.HandleMessage(ctx, "T1", "hello again", "ops")
	require.NoError(t, err)
	calls := f.callList()
	require.Len(t, calls, 2)
	assert.Empty(t, calls[1].ResumeID, "evicted thread starts over")
}

func TestHandleMessageRequiresThreadID(t *testing.T) {
	m := newTestManager(t, &fakeRunner{}, Options{})
	_, err := m.HandleMessage(context.Background(), "", "hello", "ops")
	assert.ErrorContains(t, err, "thread id")
}

func TestCloseEndsSessions(t *testing.T) {
	f := &fakeRunner{}
	m := NewManager(f, Options{})
	_, err := m.HandleMessage(context.Background(), "T1", "hello", "ops")
	require.NoError(t, err)

	m.Close()
	assert.Equal(t, 0, m.Active())
	m.Close() // idempotent
}
