package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"vist/internal/app"
	"vist/internal/assistant"
	"vist/internal/backend"
	"vist/internal/config"
	"vist/internal/logging"
	"vist/internal/orb"
	"vist/internal/tui"
)

type globals struct {
	configPath string
	envPath    string
	logLevel   string

	cfg      config.Config
	logger   *log.Logger
	logClose io.Closer
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "vist",
		Short:         "Voice assistant client",
		Long:          "vist talks to the assistant server. Without a subcommand it opens the terminal UI.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.load(cmd, cmd == cmd.Root())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if g.logClose != nil {
				_ = g.logClose.Close()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), g)
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to config file (default ~/.config/vist/config.yaml)")
	root.PersistentFlags().StringVarP(&g.envPath, "env", "e", ".env", "env file path")
	root.PersistentFlags().StringVarP(&g.logLevel, "log", "l", "", "log level (debug, info, warn, error)")

	root.AddCommand(newAskCmd(g))
	root.AddCommand(newSayCmd(g))
	root.AddCommand(newHistoryCmd(g))
	root.AddCommand(newAnalyzeCmd(g))
	root.AddCommand(newWeatherCmd(g))
	root.AddCommand(newRemindersCmd(g))
	root.AddCommand(newNutritionCmd(g))
	root.AddCommand(newAttachCmd(g))
	root.AddCommand(newConfigCmd(g))
	addTranscribeCmd(root, g)

	return root
}

// load reads .env and the config, then installs the logger. The TUI owns
// the terminal, so its logs go to log.file.
func (g *globals) load(cmd *cobra.Command, toFile bool) error {
	if err := config.LoadEnv(g.envPath); err != nil {
		return err
	}
	if cmd.Annotations["skip-config"] == "true" {
		_, err := logging.Setup(os.Stderr, g.logLevel)
		return err
	}

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return err
	}
	g.cfg = cfg

	level := cfg.Log.Level
	if g.logLevel != "" {
		level = g.logLevel
	}

	var w io.Writer = os.Stderr
	if toFile && cfg.Log.File != "" {
		f, err := logging.OpenFile(cfg.Log.File)
		if err != nil {
			return err
		}
		g.logClose = f
		w = f
	}
	g.logger, err = logging.Setup(w, level)
	return err
}

func (g *globals) backend() (*backend.Client, error) {
	return app.NewBackend(g.cfg)
}

// started is an assistant running on its own goroutine.
type started struct {
	*app.App
	stop func()
}

func startAssistant(ctx context.Context, g *globals, opts app.Options) (*started, error) {
	opts.Logger = g.logger
	a, err := app.Build(g.cfg, opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.Assistant.Run(ctx); err != nil {
			g.logger.Error("assistant stopped", "err", err)
		}
	}()

	return &started{App: a, stop: func() {
		cancel()
		<-done
		a.Close()
	}}, nil
}

func runTUI(ctx context.Context, g *globals) error {
	s, err := startAssistant(ctx, g, app.Options{})
	if err != nil {
		return err
	}
	defer s.stop()

	if g.cfg.Backend.UID != "" {
		hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if n, err := s.Assistant.LoadHistory(hctx); err != nil {
			g.logger.Warn("history not loaded", "err", err)
		} else {
			g.logger.Info("history loaded", "messages", n)
		}
		cancel()
	}

	return tui.Run(s.Assistant)
}

// waitIdle returns once the assistant went busy and came back to idle.
func waitIdle(ctx context.Context, events <-chan assistant.Event, onEvent func(assistant.Event)) error {
	busy := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return errors.New("assistant stopped")
			}
			if onEvent != nil {
				onEvent(ev)
			}
			if ev.Type != assistant.EventState {
				continue
			}
			if ev.State != orb.Idle {
				busy = true
			} else if busy {
				return nil
			}
		}
	}
}

func requireUID(g *globals) error {
	if g.cfg.Backend.UID == "" {
		return fmt.Errorf("backend.uid is not set (config or VIST_BACKEND_UID)")
	}
	return nil
}
