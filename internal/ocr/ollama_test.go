package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fakeOllama serves both the OpenAI-compatible chat endpoint and the native
// generate endpoint.
type fakeOllama struct {
	chatFails    bool
	generateFail bool
	chatCalls    int
	genCalls     int
}

func (f *fakeOllama) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		f.chatCalls++
		if f.chatFails {
			http.Error(w, `{"error":"model does not support chat"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"# From Chat"}}]}`)
	})
	mux.HandleFunc("POST /api/generate", func(w http.ResponseWriter, r *http.Request) {
		f.genCalls++
		if f.generateFail {
			http.Error(w, "generate failed", http.StatusInternalServerError)
			return
		}
		var req ollamaGenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Images) != 1 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "# From Generate"})
	})
	return mux
}

func newTestOllamaBackend(url string) *OllamaBackend {
	return NewOllamaBackend(OllamaConfig{URL: url, RetryDelay: time.Millisecond})
}

func TestOllamaChatCompletion(t *testing.T) {
	f := &fakeOllama{}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	got, err := newTestOllamaBackend(srv.URL).ProcessImage(context.Background(), []byte("png"))
	if err != nil {
		t.Fatalf("ProcessImage() error = %v", err)
	}
	if got != "# From Chat" {
		t.Errorf("ProcessImage() = %q, want %q", got, "# From Chat")
	}
	if f.genCalls != 0 {
		t.Errorf("generate called %d times, want 0", f.genCalls)
	}
}

func TestOllamaGenerateFallback(t *testing.T) {
	f := &fakeOllama{chatFails: true}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	got, err := newTestOllamaBackend(srv.URL).ProcessImage(context.Background(), []byte("png"))
	if err != nil {
		t.Fatalf("ProcessImage() error = %v", err)
	}
	if got != "# From Generate" {
		t.Errorf("ProcessImage() = %q, want %q", got, "# From Generate")
	}
	if f.chatCalls == 0 {
		t.Error("chat endpoint never tried")
	}
}

func TestOllamaRetryBound(t *testing.T) {
	f := &fakeOllama{chatFails: true, generateFail: true}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	_, err := newTestOllamaBackend(srv.URL).ProcessImage(context.Background(), []byte("png"))
	if err == nil {
		t.Fatal("ProcessImage() expected error")
	}

	var pErr *ProcessingError
	if !errors.As(err, &pErr) {
		t.Fatalf("error type = %T, want *ProcessingError", err)
	}
	if pErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", pErr.Attempts)
	}
	if f.genCalls != 3 {
		t.Errorf("generate calls = %d, want 3", f.genCalls)
	}
}

func TestOllamaMissingURL(t *testing.T) {
	b := NewOllamaBackend(OllamaConfig{})
	_, err := b.ProcessImage(context.Background(), []byte("png"))
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}
