package ocr

import (
	"errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("huggingface", func(t *testing.T) {
		b, err := New(Config{Backend: HuggingFaceName, HFToken: "tok"})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if b.Name() != HuggingFaceName {
			t.Errorf("Name() = %q", b.Name())
		}
	})

	t.Run("ollama", func(t *testing.T) {
		b, err := New(Config{Backend: OllamaName, OllamaURL: "http://localhost:11434"})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if b.Name() != OllamaName {
			t.Errorf("Name() = %q", b.Name())
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		if _, err := New(Config{Backend: "tesseract"}); err == nil {
			t.Error("New() expected error for unknown backend")
		}
	})
}

func TestModeValid(t *testing.T) {
	for _, m := range []Mode{ModeAuto, ModeText, ModeTable} {
		if !m.Valid() {
			t.Errorf("Mode(%q).Valid() = false", m)
		}
	}
	if Mode("turbo").Valid() {
		t.Error(`Mode("turbo").Valid() = true`)
	}
}

func TestProcessingError(t *testing.T) {
	inner := errors.New("connection refused")
	err := &ProcessingError{Backend: HuggingFaceName, Attempts: 3, Err: inner}

	if !errors.Is(err, inner) {
		t.Error("ProcessingError does not unwrap to inner error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "3 attempt") || !strings.Contains(msg, "connection refused") {
		t.Errorf("Error() = %q", msg)
	}
}
