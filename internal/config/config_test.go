package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configFile
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Workers.Count != 2 {
		t.Errorf("workers.count = %d, want 2", cfg.Workers.Count)
	}
	if cfg.Server.MaxFileSizeMB != 50 {
		t.Errorf("server.max_file_size_mb = %d, want 50", cfg.Server.MaxFileSizeMB)
	}
	if cfg.OCR.Backend != "huggingface" {
		t.Errorf("ocr.backend = %q, want huggingface", cfg.OCR.Backend)
	}
	if cfg.OCR.HFToken != "${HF_TOKEN}" {
		t.Error("expected HF token placeholder")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Workers.Count = 0 }},
		{"zero max file size", func(c *Config) { c.Server.MaxFileSizeMB = 0 }},
		{"empty store path", func(c *Config) { c.Store.Path = "" }},
		{"unknown backend", func(c *Config) { c.OCR.Backend = "tesseract" }},
		{"unknown mode", func(c *Config) { c.OCR.Mode = "fancy" }},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }},
		{"port out of range", func(c *Config) { c.Server.Port = 99999 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_OCR_TOKEN", "secret123")

		result := ResolveEnvVars("${TEST_OCR_TOKEN}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestOCRBackendConfig(t *testing.T) {
	t.Setenv("TEST_HF_TOKEN", "hf_abc123")

	cfg := DefaultConfig()
	cfg.OCR.HFToken = "${TEST_HF_TOKEN}"
	cfg.OCR.TimeoutSeconds = 60

	bc := cfg.OCRBackendConfig(nil)
	if bc.HFToken != "hf_abc123" {
		t.Errorf("HFToken = %q, want hf_abc123", bc.HFToken)
	}
	if bc.Timeout != 60*time.Second {
		t.Errorf("Timeout = %v, want 60s", bc.Timeout)
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		configFile := writeConfigFile(t, `
workers:
  count: 7
ocr:
  backend: ollama
`)

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Workers.Count != 7 {
			t.Errorf("workers.count = %d, want 7", cfg.Workers.Count)
		}
		if cfg.OCR.Backend != "ollama" {
			t.Errorf("ocr.backend = %q, want ollama", cfg.OCR.Backend)
		}
		// Unset keys keep their defaults.
		if cfg.Server.MaxFileSizeMB != 50 {
			t.Errorf("server.max_file_size_mb = %d, want default 50", cfg.Server.MaxFileSizeMB)
		}
	})

	t.Run("rejects invalid file", func(t *testing.T) {
		configFile := writeConfigFile(t, `
workers:
  count: 0
`)
		if _, err := NewManager(configFile); err == nil {
			t.Error("NewManager() = nil error for invalid config")
		}
	})

	t.Run("bare env names override file", func(t *testing.T) {
		t.Setenv("NUM_WORKERS", "5")
		t.Setenv("OCR_MODE", "table")

		configFile := writeConfigFile(t, `
workers:
  count: 2
`)
		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Workers.Count != 5 {
			t.Errorf("workers.count = %d, want 5 from NUM_WORKERS", cfg.Workers.Count)
		}
		if cfg.OCR.Mode != "table" {
			t.Errorf("ocr.mode = %q, want table from OCR_MODE", cfg.OCR.Mode)
		}
	})
}

func TestManager_OnChange_Multiple(t *testing.T) {
	configFile := writeConfigFile(t, "workers:\n  count: 2\n")

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	configFile := writeConfigFile(t, "workers:\n  count: 2\n")

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cfg := mgr.Get()
				_ = cfg.Workers.Count
			}
			done <- struct{}{}
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfigFile(t, "ocr:\n  backend: huggingface\n")

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	if got := mgr.Get().OCR.Backend; got != "huggingface" {
		t.Errorf("initial ocr.backend = %q, want huggingface", got)
	}

	var callbackCount atomic.Int32
	var lastBackend atomic.Value

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastBackend.Store(cfg.OCR.Backend)
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("ocr:\n  backend: ollama\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	// Wait for the watcher to detect the change (fsnotify is async)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if callbackCount.Load() > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Error("callback was not invoked after config file change")
	}

	if got := mgr.Get().OCR.Backend; got != "ollama" {
		t.Errorf("config not updated: ocr.backend = %q, want ollama", got)
	}
	if v := lastBackend.Load(); v != "ollama" {
		t.Errorf("callback received wrong value: %v", v)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "backend: huggingface") {
		t.Error("expected default backend in written config")
	}
	if !strings.Contains(content, "${HF_TOKEN}") {
		t.Error("expected HF token placeholder in written config")
	}
}
