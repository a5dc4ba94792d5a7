// Package notify signals the user that the assistant started listening.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	ListeningTitle = "vist"
	ListeningBody  = "Listening…"

	notifyTimeout = 2 * time.Second
	earconTimeout = 5 * time.Second
)

// Player plays an audio file and blocks until it finished; audio.Player implements it.
type Player interface {
	PlayFile(ctx context.Context, path string) error
}

type Options struct {
	// Earcon is the sound played when listening starts; empty disables it.
	Earcon  string
	Desktop bool
	Player  Player
	Logger  *slog.Logger
}

type Notifier struct {
	opts Options
	log  *slog.Logger
	// run executes an external command.
	run func(ctx context.Context, name string, args ...string) error
}

func New(opts Options) *Notifier {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{opts: opts, log: logger, run: runCommand}
}

// Listening fires the earcon and the desktop notification without waiting for either.
func (n *Notifier) Listening() {
	if n.opts.Earcon != "" && n.opts.Player != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), earconTimeout)
			defer cancel()
			if err := n.Earcon(ctx); err != nil {
				n.log.Debug("earcon failed", "err", err)
			}
		}()
	}
	if n.opts.Desktop {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			if err := n.Desktop(ctx, ListeningTitle, ListeningBody); err != nil {
				n.log.Debug("desktop notification failed", "err", err)
			}
		}()
	}
}

func (n *Notifier) Earcon(ctx context.Context) error {
	if n.opts.Earcon == "" || n.opts.Player == nil {
		return nil
	}
	return n.opts.Player.PlayFile(ctx, n.opts.Earcon)
}

// Desktop shows a transient notification through notify-send.
func (n *Notifier) Desktop(ctx context.Context, title, body string) error {
	return n.run(ctx, "notify-send", "--app-name=vist", "--expire-time=1500", "--urgency=low", title, body)
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
