package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/emmett/hark/internal/app"
	"github.com/emmett/hark/internal/config"
	"github.com/emmett/hark/internal/logger"
	"github.com/emmett/hark/internal/server/mcp"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

var (
	configFile      = flag.String("config", "", "Path to configuration file")
	modelName       = flag.String("model", "", "Use a specific model (default: vosk-model-small-en-us-0.15)")
	vadThreshold    = flag.Float64("vad-threshold", 0.01, "VAD energy threshold (0.001-0.1, lower=more sensitive)")
	vadSilenceDelay = flag.Float64("vad-silence-delay", 1.0, "Seconds of silence that end an utterance")
	autoStart       = flag.Bool("start", false, "Start listening immediately instead of waiting for the start_listening tool")
	showVersion     = flag.Bool("version", false, "Show version information")
)

func main() {
	_ = godotenv.Load()
	flag.Parse()

	if *showVersion {
		fmt.Printf("hark MCP v%s\n", Version)
		fmt.Printf("  Commit:  %s\n", GitCommit)
		fmt.Printf("  Branch:  %s\n", GitBranch)
		fmt.Printf("  Built:   %s\n", BuildTime)
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWithFallback(*configFile)
	if err != nil {
		return err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model":
			cfg.Model.Default = *modelName
		case "vad-threshold":
			cfg.VAD.Threshold = *vadThreshold
		case "vad-silence-delay":
			cfg.VAD.SilenceDelay = *vadSilenceDelay
		}
	})
	// stdout carries the MCP protocol
	cfg.Output.File = ""
	cfg.Server.HTTPAddr = ""
	cfg.Server.GRPCPort = 0
	cfg.Hotkey.Enabled = false

	logger.Init(logger.FromEnv(logger.Options{
		Level:   cfg.Log.Level,
		Format:  "json",
		Service: "hark-mcp",
		Writer:  os.Stderr,
	}))
	log := *logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := app.New(ctx, app.Options{
		Config:  cfg,
		Version: Version,
		Log:     log,
		Out:     os.Stderr,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, *autoStart) }()

	srv := mcp.NewServer(mcp.Config{ServerName: "hark", ServerVersion: Version}, l.Supervisor(), l.Words(), log)
	serveErr := srv.RunStdio(ctx)
	if ctx.Err() != nil {
		serveErr = nil
	}
	cancel()
	if err := <-done; err != nil {
		return err
	}
	return serveErr
}
