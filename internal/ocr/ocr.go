// Package ocr provides pluggable page-image-to-Markdown backends.
//
// Backends share a retry envelope (3 attempts, exponential backoff) and a
// single contract: ProcessImage returns Markdown or a *ProcessingError once
// retries are exhausted. Workers know nothing beyond the Backend interface.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Backend converts one page image to Markdown text.
type Backend interface {
	// Name returns the backend identifier (e.g., "huggingface", "ollama").
	Name() string

	// ProcessImage extracts Markdown from a page image. It retries
	// internally; the error it returns is final for this page.
	ProcessImage(ctx context.Context, image []byte) (string, error)
}

// Mode controls how the hosted backend prompts the model.
type Mode string

const (
	// ModeAuto runs a Markdown pass and, when the output smells like a
	// table, a second HTML table pass.
	ModeAuto Mode = "auto"
	// ModeText runs only the Markdown pass.
	ModeText Mode = "text"
	// ModeTable runs only the table pass.
	ModeTable Mode = "table"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeAuto, ModeText, ModeTable:
		return true
	}
	return false
}

// ErrNotConfigured marks configuration problems (missing token, missing
// URL) that no amount of retrying can fix; ProcessImage fails immediately.
var ErrNotConfigured = errors.New("ocr backend not configured")

// ProcessingError is the terminal error for a page: the wrapped error is the
// last underlying failure after Attempts tries.
type ProcessingError struct {
	Backend  string
	Attempts int
	Err      error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s ocr failed after %d attempt(s): %v", e.Backend, e.Attempts, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Config selects and configures a backend.
type Config struct {
	// Backend is "huggingface" (hosted space) or "ollama" (self-hosted).
	Backend string
	// Mode controls the hosted backend's prompting (auto, text, table).
	Mode Mode
	// HFToken authenticates against the hosted space.
	HFToken string
	// HFSpace overrides the hosted space base URL.
	HFSpace string
	// OllamaURL is the self-hosted server base URL.
	OllamaURL string
	// OllamaModel is the vision model to use (default glm-ocr).
	OllamaModel string
	// Timeout bounds a single HTTP request to either backend.
	Timeout time.Duration
	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// New builds the backend selected by cfg.Backend.
func New(cfg Config) (Backend, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	switch cfg.Backend {
	case HuggingFaceName:
		return NewHuggingFaceBackend(HuggingFaceConfig{
			Token:    cfg.HFToken,
			SpaceURL: cfg.HFSpace,
			Mode:     cfg.Mode,
			Timeout:  cfg.Timeout,
			Logger:   cfg.Logger,
		}), nil
	case OllamaName:
		return NewOllamaBackend(OllamaConfig{
			URL:     cfg.OllamaURL,
			Model:   cfg.OllamaModel,
			Timeout: cfg.Timeout,
			Logger:  cfg.Logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown ocr backend %q (want %q or %q)", cfg.Backend, HuggingFaceName, OllamaName)
	}
}
