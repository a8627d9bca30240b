package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Model settings
	Model struct {
		Default string `yaml:"default"`
		Dir     string `yaml:"dir"`
	} `yaml:"model"`

	// Audio settings
	Audio struct {
		Device string `yaml:"device"`
	} `yaml:"audio"`

	// VAD settings
	VAD struct {
		Threshold float64 `yaml:"threshold"`
		// SilenceDelay is how long a pause ends speech, in seconds
		SilenceDelay float64 `yaml:"silence_delay"`
	} `yaml:"vad"`

	// Recognition settings
	Recognition struct {
		Language       string `yaml:"language"`
		InterimResults bool   `yaml:"interim_results"`
		// NoSpeechTimeout ends a run after this many seconds of silence; 0 disables
		NoSpeechTimeout float64 `yaml:"no_speech_timeout"`
	} `yaml:"recognition"`

	// Supervisor settings, in seconds
	Supervisor struct {
		TransientRetryDelay float64   `yaml:"transient_retry_delay"`
		RestartBackoff      []float64 `yaml:"restart_backoff"`
	} `yaml:"supervisor"`

	// Trigger word storage
	Words struct {
		Backend     string   `yaml:"backend"`
		Path        string   `yaml:"path"`
		CachePath   string   `yaml:"cache_path"`
		PostgresURL string   `yaml:"postgres_url"`
		MaxConns    int32    `yaml:"max_conns"`
		Seed        []string `yaml:"seed"`
	} `yaml:"words"`

	// Alert settings
	Alert struct {
		Title   string `yaml:"title"`
		Desktop bool   `yaml:"desktop"`
		Beep    bool   `yaml:"beep"`
		Pattern []int  `yaml:"pattern"`
	} `yaml:"alert"`

	// Output settings
	Output struct {
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"output"`

	// Server settings
	Server struct {
		GRPCPort int    `yaml:"grpc_port"`
		Host     string `yaml:"host"`
		HTTPAddr string `yaml:"http_addr"`
		// AllowedOrigins for CORS on the HTTP API
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	// Hotkey settings
	Hotkey struct {
		Enabled bool   `yaml:"enabled"`
		Keys    string `yaml:"keys"`
	} `yaml:"hotkey"`

	// Log settings
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	// Trace settings
	Trace struct {
		Exporter     string  `yaml:"exporter"`
		OTLPEndpoint string  `yaml:"otlp_endpoint"`
		SamplingRate float64 `yaml:"sampling_rate"`
	} `yaml:"trace"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Model.Dir = "models"

	cfg.VAD.Threshold = 0.01
	cfg.VAD.SilenceDelay = 1.0

	cfg.Recognition.Language = "en-US"
	cfg.Recognition.NoSpeechTimeout = 8.0

	cfg.Supervisor.TransientRetryDelay = 1.0
	cfg.Supervisor.RestartBackoff = []float64{0, 1, 2}

	cfg.Words.Backend = "file"
	cfg.Words.Path = defaultDataPath("words.yaml")
	cfg.Words.CachePath = defaultDataPath("words-cache.json")

	cfg.Alert.Title = "Speech Alert"
	cfg.Alert.Desktop = true
	cfg.Alert.Beep = true
	cfg.Alert.Pattern = []int{200, 100, 200}

	cfg.Output.Format = "text"

	cfg.Server.GRPCPort = 50051
	cfg.Server.Host = "localhost"
	cfg.Server.HTTPAddr = ""
	cfg.Server.AllowedOrigins = []string{"*"}

	cfg.Hotkey.Keys = "ctrl+shift+h"

	cfg.Log.Level = "info"
	cfg.Log.Format = "console"

	cfg.Trace.Exporter = "none"
	cfg.Trace.OTLPEndpoint = "localhost:4317"
	cfg.Trace.SamplingRate = 1.0

	return cfg
}

func defaultDataPath(name string) string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "hark", name)
	}
	return filepath.Join(".hark", name)
}

// Load loads configuration from file over the defaults
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// SystemConfigPath is the last config file tried before defaults
var SystemConfigPath = "/etc/hark/config.yaml"

// LoadWithFallback attempts to load configuration from multiple locations
// Priority: explicit path > ~/.harkrc > /etc/hark/config.yaml > defaults
func LoadWithFallback(explicitPath string) (*Config, error) {
	if explicitPath != "" {
		return Load(explicitPath)
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigPath := filepath.Join(homeDir, ".harkrc")
		if _, err := os.Stat(userConfigPath); err == nil {
			if cfg, err := Load(userConfigPath); err == nil {
				return cfg, nil
			}
		}
	}

	if _, err := os.Stat(SystemConfigPath); err == nil {
		if cfg, err := Load(SystemConfigPath); err == nil {
			return cfg, nil
		}
	}

	return DefaultConfig(), nil
}

// Validate checks values that would break the listener at runtime
func (c *Config) Validate() error {
	if c.Supervisor.TransientRetryDelay < 0 {
		return fmt.Errorf("supervisor.transient_retry_delay must not be negative")
	}
	if len(c.Supervisor.RestartBackoff) == 0 {
		return fmt.Errorf("supervisor.restart_backoff needs at least one entry")
	}
	for _, d := range c.Supervisor.RestartBackoff {
		if d < 0 {
			return fmt.Errorf("supervisor.restart_backoff must not contain negative delays")
		}
	}
	if c.Recognition.NoSpeechTimeout < 0 {
		return fmt.Errorf("recognition.no_speech_timeout must not be negative")
	}
	for _, ms := range c.Alert.Pattern {
		if ms < 0 {
			return fmt.Errorf("alert.pattern must not contain negative durations")
		}
	}
	return nil
}

// Seconds converts a float seconds setting to a duration
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// RestartBackoff returns the restart delays as durations
func (c *Config) RestartBackoff() []time.Duration {
	out := make([]time.Duration, len(c.Supervisor.RestartBackoff))
	for i, s := range c.Supervisor.RestartBackoff {
		out[i] = Seconds(s)
	}
	return out
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
