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
	"github.com/emmett/hark/internal/models"
	"github.com/emmett/hark/internal/output"
	"github.com/emmett/hark/internal/wordstore"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

var (
	configFile      = flag.String("config", "", "Path to configuration file (default: ~/.harkrc or /etc/hark/config.yaml)")
	listModels      = flag.Bool("list-models", false, "List all available models for download")
	listDownloaded  = flag.Bool("list-downloaded", false, "List all downloaded models")
	downloadModel   = flag.String("download-model", "", "Download a specific model by name")
	modelName       = flag.String("model", "", "Use a specific model (default: vosk-model-small-en-us-0.15)")
	setDefault      = flag.String("set-default", "", "Set a model as the default")
	autoDownload    = flag.Bool("auto-download", false, "Download the model if it is missing without asking")
	listDevices     = flag.Bool("list-devices", false, "List all available audio input devices")
	audioDevice     = flag.String("device", "", "Audio input device ID (use --list-devices to see available devices)")
	vadThreshold    = flag.Float64("vad-threshold", 0.01, "VAD energy threshold (0.001-0.1, lower=more sensitive)")
	vadSilenceDelay = flag.Float64("vad-silence-delay", 1.0, "Seconds of silence that end an utterance")
	language        = flag.String("language", "en-US", "Recognition language")
	outputFormat    = flag.String("format", "text", "Event output format: text, json")
	outputFile      = flag.String("output", "", "Event output file (default: stdout)")
	words           = flag.String("words", "", "Save a comma-separated list of trigger words and exit")
	showWords       = flag.Bool("show-words", false, "Print the saved trigger words and exit")
	httpAddr        = flag.String("http", "", "Serve the word API and event WebSocket on this address, e.g. :8080")
	grpcPort        = flag.Int("grpc-port", 50051, "gRPC control port (0 disables)")
	useHotkey       = flag.Bool("hotkey", false, "Toggle listening with the global hotkey")
	noStart         = flag.Bool("no-start", false, "Wait for a start command instead of listening right away")
	showVersion     = flag.Bool("version", false, "Show version information")
)

func main() {
	_ = godotenv.Load()
	flag.Parse()

	if *showVersion {
		fmt.Printf("hark v%s\n", Version)
		fmt.Printf("  Commit:  %s\n", GitCommit)
		fmt.Printf("  Branch:  %s\n", GitBranch)
		fmt.Printf("  Built:   %s\n", BuildTime)
		os.Exit(0)
	}

	console := output.DefaultConsoleOutput()

	cfg, err := config.LoadWithFallback(*configFile)
	if err != nil {
		console.Error(fmt.Sprintf("Failed to load config: %v", err))
		cfg = config.DefaultConfig()
	}
	applyFlags(cfg)

	logger.Init(logger.FromEnv(logger.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: "hark",
	}))
	log := *logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *listDevices {
		if err := app.ListDevices(os.Stdout); err != nil {
			console.Error(err.Error())
			os.Exit(1)
		}
		return
	}

	mgr := app.NewModelManager(models.NewManager(cfg.Model.Dir, log), os.Stdout, os.Stdin)
	var cmdErr error
	switch {
	case *listModels:
		cmdErr = mgr.ListModels()
	case *listDownloaded:
		cmdErr = mgr.ListDownloaded()
	case *downloadModel != "":
		cmdErr = mgr.Download(ctx, *downloadModel)
	case *setDefault != "":
		cmdErr = mgr.SetDefault(*setDefault)
	case *words != "" || *showWords:
		cmdErr = manageWords(ctx, cfg)
	default:
		cmdErr = run(ctx, cfg, mgr)
	}
	if cmdErr != nil {
		console.Error(cmdErr.Error())
		os.Exit(1)
	}
}

// applyFlags lets explicitly set flags override the config file
func applyFlags(cfg *config.Config) {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	if set["model"] {
		cfg.Model.Default = *modelName
	}
	if set["device"] {
		cfg.Audio.Device = *audioDevice
	}
	if set["vad-threshold"] {
		cfg.VAD.Threshold = *vadThreshold
	}
	if set["vad-silence-delay"] {
		cfg.VAD.SilenceDelay = *vadSilenceDelay
	}
	if set["language"] {
		cfg.Recognition.Language = *language
	}
	if set["format"] {
		cfg.Output.Format = *outputFormat
	}
	if set["output"] {
		cfg.Output.File = *outputFile
	}
	if set["http"] {
		cfg.Server.HTTPAddr = *httpAddr
	}
	if set["grpc-port"] {
		cfg.Server.GRPCPort = *grpcPort
	}
	if set["hotkey"] {
		cfg.Hotkey.Enabled = *useHotkey
	}
}

func manageWords(ctx context.Context, cfg *config.Config) error {
	store, err := wordstore.Open(ctx, wordstore.Config{
		Backend:     cfg.Words.Backend,
		Path:        cfg.Words.Path,
		PostgresURL: cfg.Words.PostgresURL,
		MaxConns:    cfg.Words.MaxConns,
	})
	if err != nil {
		return err
	}
	if c, ok := store.(interface{ Close() error }); ok {
		defer c.Close()
	}

	m := wordstore.NewManager(store, wordstore.NewCache(cfg.Words.CachePath), nil, *logger.Get())
	var list []string
	if *words != "" {
		list, err = m.SaveInput(ctx, *words)
	} else {
		list, err = m.Load(ctx)
	}
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No trigger words saved.")
		return nil
	}
	fmt.Printf("Trigger words (%d):\n", len(list))
	for _, w := range list {
		fmt.Printf("  - %s\n", w)
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, mgr *app.ModelManager) error {
	name, err := mgr.Ensure(ctx, cfg.Model.Default, *autoDownload)
	if err != nil {
		return err
	}

	console := output.DefaultConsoleOutput()
	console.Info(fmt.Sprintf("hark v%s (commit: %s) using model %s", Version, GitCommit, name))

	l, err := app.New(ctx, app.Options{
		Config:    cfg,
		ModelName: name,
		Version:   Version,
		Log:       *logger.Get(),
	})
	if err != nil {
		return err
	}
	if !*noStart {
		console.Info("Listening for trigger words. Press Ctrl+C to stop.")
	}
	return l.Run(ctx, !*noStart)
}
