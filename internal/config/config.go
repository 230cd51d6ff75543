package config

import (
	"fmt"
	"net/url"
	"time"
)

type Config struct {
	Server  ServerConfig
	Ollama  OllamaConfig
	Chat    ChatConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type OllamaConfig struct {
	// BaseURL includes the API prefix, e.g. http://localhost:11434/api.
	BaseURL string
	// Timeout bounds a whole request including the streamed body.
	// Empty or "0" disables it.
	Timeout string
}

// RequestTimeout parses Timeout. Zero means no limit.
func (o OllamaConfig) RequestTimeout() (time.Duration, error) {
	if o.Timeout == "" || o.Timeout == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(o.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid ollama.timeout %q: %w", o.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid ollama.timeout %q: must not be negative", o.Timeout)
	}
	return d, nil
}

type ChatConfig struct {
	Model         string
	Temperature   float64
	ContextLength int
	SystemPrompt  string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level  string
	Format string
	// File enables rotating file output instead of stderr.
	File string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434/api",
		},
		Chat: ChatConfig{
			Temperature:   0.7,
			ContextLength: 4096,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the platform-native backend and
// environment variables.
//
// On macOS the backend is UserDefaults (domain: com.ollachat.app).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/ollachat/config.json.
//
// Environment variables (OLLACHAT_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	u, err := url.Parse(cfg.Ollama.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid ollama.base_url %q: want an http(s) URL such as http://localhost:11434/api", cfg.Ollama.BaseURL)
	}
	if _, err := cfg.Ollama.RequestTimeout(); err != nil {
		return err
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", cfg.Server.Port)
	}
	return nil
}
