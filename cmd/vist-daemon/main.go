package main

import (
	"context"
	"errors"
	log "log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"vist/internal/app"
	"vist/internal/config"
	"vist/internal/ipc"
	"vist/internal/logging"
	"vist/internal/orb"
	"vist/internal/shell"
	"vist/pkg/stt"
)

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	configPath := cli.StringP("config", "c", "", "Config file path")
	logLevel := cli.StringP("log", "l", "", "Log level")
	shellAddr := cli.String("shell", "", "Websocket address for front ends (overrides shell.addr)")
	socket := cli.String("socket", "", "Control socket path (overrides shell.socket)")
	cli.Parse()

	if err := config.LoadEnv(*envFile); err != nil {
		log.Error("Failed to load env", "err", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *shellAddr != "" {
		cfg.Shell.Addr = *shellAddr
	}
	if *socket != "" {
		cfg.Shell.Socket = *socket
	}

	logger, err := logging.Setup(os.Stdout, cfg.Log.Level)
	if err != nil {
		logger.Warn("Bad log level, using info", "err", err)
	}
	logger.Info("Booting up")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Daemon stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("Bye")
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	a, err := app.Build(cfg, app.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("Boot up - successful", "backend", a.Backend.BaseURL(), "uid", cfg.Backend.UID)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Assistant.Run(ctx) })
	g.Go(func() error {
		if a.Backend.UID() == "" {
			return nil
		}
		hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if n, err := a.Assistant.LoadHistory(hctx); err != nil {
			logger.Warn("History not loaded", "err", err)
		} else {
			logger.Debug("History loaded", "messages", n)
		}
		return nil
	})
	if cfg.Shell.Addr != "" {
		g.Go(func() error {
			return shell.NewServer(a.Assistant, logger).ListenAndServe(ctx, cfg.Shell.Addr)
		})
	}
	if cfg.Shell.Socket != "" {
		g.Go(func() error {
			return ipc.Serve(ctx, cfg.Shell.Socket, controlHandler(a.Assistant, logger), logger)
		})
	}
	return g.Wait()
}

// controller is the part of the assistant the control socket drives.
type controller interface {
	Listen() error
	Stop() error
	Say(text string) error
	Submit(text string) error
	State() orb.State
}

func controlHandler(c controller, logger *log.Logger) ipc.Handler {
	return func(msg ipc.ControlMessage) ipc.Reply {
		logger.Debug("Control command", "cmd", msg.Cmd)

		var err error
		switch msg.Cmd {
		case ipc.CmdTrigger:
			// A trigger while already listening is not an error for the caller.
			if err = c.Listen(); errors.Is(err, stt.ErrBusy) {
				err = nil
			}
		case ipc.CmdStop:
			err = c.Stop()
		case ipc.CmdSay:
			err = c.Say(msg.Text)
		case ipc.CmdAsk:
			err = c.Submit(msg.Text)
		case ipc.CmdState:
		default:
			logger.Warn("Unknown command", "cmd", msg.Cmd)
			return ipc.Reply{Error: "unknown command " + msg.Cmd}
		}
		if err != nil {
			return ipc.Reply{Error: err.Error()}
		}
		return ipc.Reply{OK: true, State: c.State().String()}
	}
}
