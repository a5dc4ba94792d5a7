package ipc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startServer(t *testing.T, h Handler) string {
	t.Helper()
	// Unix socket paths are short; t.TempDir can exceed the limit.
	dir, err := os.MkdirTemp("", "vist")
	if err != nil {
		t.Fatalf("tempdir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "s.sock")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, path, h, nil) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("serve: %v", err)
		}
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("socket never appeared")
	return ""
}

func TestSendReceivesReply(t *testing.T) {
	got := make(chan ControlMessage, 1)
	path := startServer(t, func(m ControlMessage) Reply {
		got <- m
		return Reply{OK: true, State: "listening"}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := Send(ctx, path, ControlMessage{Cmd: CmdSay, Text: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !reply.OK || reply.State != "listening" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if m := <-got; m.Cmd != CmdSay || m.Text != "hello" {
		t.Fatalf("unexpected message %+v", m)
	}
}

func TestSendSurfacesError(t *testing.T) {
	path := startServer(t, func(ControlMessage) Reply {
		return Reply{Error: "assistant is busy"}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := Send(ctx, path, ControlMessage{Cmd: CmdAsk, Text: "hi"}); err == nil || err.Error() != "assistant is busy" {
		t.Fatalf("expected busy error, got %v", err)
	}
}

func TestSendWithoutDaemon(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := Send(ctx, filepath.Join(os.TempDir(), "vist-missing.sock"), ControlMessage{Cmd: CmdTrigger}); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestDefaultSocketPath(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got := DefaultSocketPath(); got != "/run/user/1000/vist.sock" {
		t.Fatalf("unexpected path %q", got)
	}
}
