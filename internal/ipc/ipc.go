// Package ipc is the local control socket of the daemon: one JSON command
// per connection, one JSON reply.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	CmdTrigger = "trigger"
	CmdStop    = "stop"
	CmdSay     = "say"
	CmdAsk     = "ask"
	CmdState   = "state"
)

type ControlMessage struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text,omitempty"`
}

type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	State string `json:"state,omitempty"`
}

// Handler answers one command.
type Handler func(ControlMessage) Reply

// DefaultSocketPath is $XDG_RUNTIME_DIR/vist.sock, or /tmp/vist.sock without a runtime dir.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "vist.sock")
	}
	return filepath.Join(os.TempDir(), "vist.sock")
}

// Serve accepts commands on the unix socket at path until ctx ends.
func Serve(ctx context.Context, path string, handler Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	_ = os.Remove(path)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", path)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer os.Remove(path)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Warn("ipc accept failed", "err", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			handleConn(conn, handler, logger)
		}()
	}
}

func handleConn(conn net.Conn, handler Handler, logger *slog.Logger) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		logger.Debug("ipc decode failed", "err", err)
		_ = json.NewEncoder(conn).Encode(Reply{Error: "bad command"})
		return
	}
	logger.Debug("ipc command", "cmd", msg.Cmd)

	if err := json.NewEncoder(conn).Encode(handler(msg)); err != nil {
		logger.Debug("ipc reply failed", "err", err)
	}
}

// Send delivers msg to the daemon listening on path and returns its reply.
func Send(ctx context.Context, path string, msg ControlMessage) (Reply, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return Reply{}, err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return Reply{}, fmt.Errorf("send: %w", err)
	}
	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return Reply{}, fmt.Errorf("read reply: %w", err)
	}
	if !reply.OK && reply.Error != "" {
		return reply, errors.New(reply.Error)
	}
	return reply, nil
}
