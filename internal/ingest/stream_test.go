package ingest

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authwatch/internal/logging"
)

func shellStream(script string) func(ctx context.Context, service string) *exec.Cmd {
	return func(ctx context.Context, _ string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", script)
	}
}

func TestStreamerForwardsNonBlankLines(t *testing.T) {
	handler := &recordingHandler{}
	s := NewStreamer([]string{"sshd"}, handler, logging.NewNopNotifier())
	s.command = shellStream(`printf 'one\n\n  \ntwo\n'`)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"one", "two"}, handler.all())
}

func TestStreamerDeadFeedDoesNotStopSiblings(t *testing.T) {
	handler := &recordingHandler{}
	s := NewStreamer([]string{"broken", "healthy"}, handler, logging.NewNopNotifier())
	s.command = func(ctx context.Context, service string) *exec.Cmd {
		if service == "broken" {
			return exec.CommandContext(ctx, "sh", "-c", "exit 1")
		}
		return exec.CommandContext(ctx, "sh", "-c", `sleep 0.1; printf 'alive\n'`)
	}

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"alive"}, handler.all())
}

func TestStreamerUnstartableCommandIsIsolated(t *testing.T) {
	handler := &recordingHandler{}
	s := NewStreamer([]string{"ghost", "healthy"}, handler, logging.NewNopNotifier())
	s.command = func(ctx context.Context, service string) *exec.Cmd {
		if service == "ghost" {
			return exec.CommandContext(ctx, "/nonexistent/binary")
		}
		return exec.CommandContext(ctx, "sh", "-c", `printf 'alive\n'`)
	}

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"alive"}, handler.all())
}

func TestStreamerJoinsOnCancel(t *testing.T) {
	handler := &recordingHandler{}
	s := NewStreamer([]string{"sshd"}, handler, logging.NewNopNotifier())
	// exec replaces the shell so cancellation kills the process that is
	// actually holding the stdout pipe open.
	s.command = shellStream(`printf 'early\n'; exec sleep 30`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(handler.all()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("streamer still running after cancellation")
	}
	assert.Equal(t, []string{"early"}, handler.all())
}
