package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OllamaName         = "ollama"
	DefaultOllamaModel = "glm-ocr"

	ollamaPrompt = "Convert the document to markdown."
)

// OllamaConfig configures the self-hosted backend.
type OllamaConfig struct {
	// URL is the Ollama server base URL, e.g. http://localhost:11434.
	URL     string
	Model   string
	Timeout time.Duration
	Logger  *slog.Logger

	// RetryDelay overrides the base backoff interval (tests).
	RetryDelay time.Duration
}

// OllamaBackend runs OCR against a local Ollama server. The primary path is
// the OpenAI-compatible chat completions endpoint; when that fails it falls
// back to Ollama's native generate API with the image inline.
type OllamaBackend struct {
	url        string
	model      string
	timeout    time.Duration
	retryDelay time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	client *http.Client
}

// NewOllamaBackend creates the self-hosted backend.
func NewOllamaBackend(cfg OllamaConfig) *OllamaBackend {
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &OllamaBackend{
		url:        strings.TrimRight(cfg.URL, "/"),
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger.With("backend", OllamaName),
	}
}

// Name returns the backend identifier.
func (b *OllamaBackend) Name() string {
	return OllamaName
}

// ProcessImage extracts Markdown from a page image, retrying transient
// failures with exponential backoff.
func (b *OllamaBackend) ProcessImage(ctx context.Context, image []byte) (string, error) {
	if b.url == "" {
		return "", fmt.Errorf("%w: OLLAMA_URL is not set", ErrNotConfigured)
	}

	return withRetry(ctx, OllamaName, b.retryDelay,
		func() (string, error) {
			return b.processOnce(ctx, image)
		},
		func(attempt uint, err error) {
			b.logger.Warn("ocr attempt failed, reconnecting", "attempt", attempt+1, "error", err)
			b.resetClient()
		},
	)
}

func (b *OllamaBackend) processOnce(ctx context.Context, image []byte) (string, error) {
	text, chatErr := b.chatCompletion(ctx, image)
	if chatErr == nil {
		return text, nil
	}

	b.logger.Debug("chat completions failed, falling back to generate", "error", chatErr)
	text, genErr := b.generate(ctx, image)
	if genErr != nil {
		return "", fmt.Errorf("chat completions failed (%v); generate fallback failed: %w", chatErr, genErr)
	}
	return text, nil
}

// chatCompletion sends the page through the OpenAI-compatible endpoint as a
// vision message with the PNG inlined as a data URL.
func (b *OllamaBackend) chatCompletion(ctx context.Context, image []byte) (string, error) {
	client := openai.NewClient(
		option.WithBaseURL(b.url+"/v1"),
		option.WithAPIKey("ollama"),
		option.WithHTTPClient(b.httpClient()),
		option.WithMaxRetries(0),
	)

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)
	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: b.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(ollamaPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}),
			}),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// generate posts to Ollama's native API, which some vision models support
// more reliably than the chat shim.
func (b *OllamaBackend) generate(ctx context.Context, image []byte) (string, error) {
	genReq := ollamaGenerateRequest{
		Model:  b.model,
		Prompt: ollamaPrompt,
		Images: []string{base64.StdEncoding.EncodeToString(image)},
		Stream: false,
	}
	bodyBytes, err := json.Marshal(genReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", b.url+"/api/generate", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read generate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generate returned status %d: %s", resp.StatusCode, string(body))
	}

	var genResp ollamaGenerateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}
	if genResp.Response == "" {
		return "", fmt.Errorf("generate response missing text")
	}
	return genResp.Response, nil
}

func (b *OllamaBackend) httpClient() *http.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		b.client = &http.Client{Timeout: b.timeout}
	}
	return b.client
}

func (b *OllamaBackend) resetClient() {
	b.mu.Lock()
	b.client = nil
	b.mu.Unlock()
}

// Ollama native API types

type ollamaGenerateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}
