package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/ocr"
)

// Config holds folio configuration.
// Stored at: ~/.folio/config.yaml
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Workers WorkersConfig `mapstructure:"workers" yaml:"workers"`
	OCR     OCRConfig     `mapstructure:"ocr" yaml:"ocr"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host          string `mapstructure:"host" yaml:"host"`
	Port          int    `mapstructure:"port" yaml:"port"`
	MaxFileSizeMB int    `mapstructure:"max_file_size_mb" yaml:"max_file_size_mb"` // Upload size cap
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"` // Database file path
}

// WorkersConfig configures the page-processing pool.
type WorkersConfig struct {
	Count int `mapstructure:"count" yaml:"count"` // Concurrent workers
}

// OCRConfig selects and configures the OCR backend.
type OCRConfig struct {
	Backend        string `mapstructure:"backend" yaml:"backend"`                 // "huggingface" or "ollama"
	Mode           string `mapstructure:"mode" yaml:"mode"`                       // "auto", "text", "table"
	HFToken        string `mapstructure:"hf_token" yaml:"hf_token"`               // Supports ${ENV_VAR} syntax
	HFSpace        string `mapstructure:"hf_space" yaml:"hf_space"`               // Hosted space base URL
	OllamaURL      string `mapstructure:"ollama_url" yaml:"ollama_url"`           // Self-hosted server URL
	OllamaModel    string `mapstructure:"ollama_model" yaml:"ollama_model"`       // Vision model name
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"` // Per-request HTTP timeout
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8000,
			MaxFileSizeMB: 50,
		},
		Store: StoreConfig{
			// A bare filename is resolved into the home directory by the
			// server; set an explicit path to override.
			Path: home.DBFileName,
		},
		Workers: WorkersConfig{
			Count: 2,
		},
		OCR: OCRConfig{
			Backend:        ocr.HuggingFaceName,
			Mode:           string(ocr.ModeAuto),
			HFToken:        "${HF_TOKEN}",
			HFSpace:        ocr.DefaultSpaceURL,
			OllamaURL:      "http://localhost:11434",
			OllamaModel:    ocr.DefaultOllamaModel,
			TimeoutSeconds: 300,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxFileSizeMB < 1 {
		return fmt.Errorf("server.max_file_size_mb must be at least 1, got %d", c.Server.MaxFileSizeMB)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Workers.Count < 1 {
		return fmt.Errorf("workers.count must be at least 1, got %d", c.Workers.Count)
	}
	switch c.OCR.Backend {
	case ocr.HuggingFaceName, ocr.OllamaName:
	default:
		return fmt.Errorf("ocr.backend %q unknown (want %q or %q)", c.OCR.Backend, ocr.HuggingFaceName, ocr.OllamaName)
	}
	if !ocr.Mode(c.OCR.Mode).Valid() {
		return fmt.Errorf("ocr.mode %q unknown (want auto, text, or table)", c.OCR.Mode)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown", c.Log.Level)
	}
	return nil
}

// MaxFileBytes returns the upload size cap in bytes.
func (c *Config) MaxFileBytes() int64 {
	return int64(c.Server.MaxFileSizeMB) * 1024 * 1024
}

// ListenAddr returns the host:port the server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// OCRBackendConfig converts the config into the backend constructor's form.
// It resolves ${ENV_VAR} references in the token so secrets stay out of the
// config file.
func (c *Config) OCRBackendConfig(logger *slog.Logger) ocr.Config {
	return ocr.Config{
		Backend:     c.OCR.Backend,
		Mode:        ocr.Mode(c.OCR.Mode),
		HFToken:     ResolveEnvVars(c.OCR.HFToken),
		HFSpace:     c.OCR.HFSpace,
		OllamaURL:   c.OCR.OllamaURL,
		OllamaModel: c.OCR.OllamaModel,
		Timeout:     time.Duration(c.OCR.TimeoutSeconds) * time.Second,
		Logger:      logger,
	}
}

// LogLevel maps the configured level to slog's.
func (c *Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
