package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	cli "github.com/spf13/pflag"

	"vist/internal/config"
	"vist/internal/devbackend"
	"vist/internal/logging"
	"vist/internal/proxy"
)

func main() {
	addr := cli.StringP("addr", "a", "127.0.0.1:5000", "Listen address")
	dataDir := cli.StringP("data", "d", filepath.Join(os.TempDir(), "vist-devbackend"), "Directory for generated and uploaded images")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks Proxy Address for the OpenAI API")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	model := cli.StringP("model", "m", "", "OpenAI chat model")
	cli.Parse()

	logger, err := logging.Setup(os.Stdout, *logLevel)
	if err != nil {
		logger.Warn("Bad log level, using info", "err", err)
	}

	if err := config.LoadEnv(*envFile); err != nil {
		logger.Error("Failed to load env", "err", err)
		os.Exit(1)
	}

	opts := devbackend.Options{DataDir: *dataDir, Logger: logger}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		httpClient, err := proxy.NewClient(*proxyAddr, 0)
		if err != nil {
			logger.Error("Failed to dial socks proxy", "proxy", *proxyAddr, "err", err)
			os.Exit(1)
		}
		client := openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithHTTPClient(httpClient),
		)
		opts.Planner = devbackend.FallbackPlanner{
			Primary:   &devbackend.LLMPlanner{Client: client, Model: *model},
			Secondary: devbackend.RulePlanner{},
		}
		opts.Describer = &devbackend.LLMDescriber{Client: client, Model: *model}
		logger.Info("Using OpenAI", "model", *model)
	} else {
		logger.Info("OPENAI_API_KEY not set, using rule based replies")
	}

	srv, err := devbackend.New(opts)
	if err != nil {
		logger.Error("Failed to create backend", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx, *addr); err != nil {
		logger.Error("Backend stopped", "err", err)
		os.Exit(1)
	}
}
