package ocr

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	HuggingFaceName = "huggingface"

	// DefaultSpaceURL is the hosted OCR space used when no override is set.
	DefaultSpaceURL = "https://prithivmlmods-deepseek-ocr-2-demo.hf.space"

	gradioAPIName = "process_image"

	taskMarkdown = "Convert the document to markdown."
	taskTable    = "Convert the table to HTML."

	// tablePassSeparator joins the table pass output onto the markdown pass.
	tablePassSeparator = "\n\n<!-- HTML tables with rowspan/colspan -->\n\n"
)

// HuggingFaceConfig configures the hosted backend.
type HuggingFaceConfig struct {
	Token    string
	SpaceURL string
	Mode     Mode
	Timeout  time.Duration
	Logger   *slog.Logger

	// RetryDelay overrides the base backoff interval (tests).
	RetryDelay time.Duration
}

// HuggingFaceBackend runs OCR against a Gradio-hosted space. The space's
// Markdown task handles most pages; in auto mode a second table pass is
// attempted when the first result looks like a Markdown table.
type HuggingFaceBackend struct {
	token      string
	baseURL    string
	mode       Mode
	timeout    time.Duration
	retryDelay time.Duration
	logger     *slog.Logger

	// client is cached across calls and discarded on retry so the next
	// attempt reconnects.
	mu     sync.Mutex
	client *http.Client
}

// NewHuggingFaceBackend creates the hosted backend.
func NewHuggingFaceBackend(cfg HuggingFaceConfig) *HuggingFaceBackend {
	if cfg.SpaceURL == "" {
		cfg.SpaceURL = DefaultSpaceURL
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeAuto
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &HuggingFaceBackend{
		token:      cfg.Token,
		baseURL:    strings.TrimRight(cfg.SpaceURL, "/"),
		mode:       cfg.Mode,
		timeout:    cfg.Timeout,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger.With("backend", HuggingFaceName),
	}
}

// Name returns the backend identifier.
func (b *HuggingFaceBackend) Name() string {
	return HuggingFaceName
}

// ProcessImage extracts Markdown from a page image, retrying transient
// failures with exponential backoff.
func (b *HuggingFaceBackend) ProcessImage(ctx context.Context, image []byte) (string, error) {
	if b.token == "" {
		return "", fmt.Errorf("%w: HF_TOKEN is not set", ErrNotConfigured)
	}

	return withRetry(ctx, HuggingFaceName, b.retryDelay,
		func() (string, error) {
			return b.processOnce(ctx, image)
		},
		func(attempt uint, err error) {
			b.logger.Warn("ocr attempt failed, reconnecting", "attempt", attempt+1, "error", err)
			b.resetClient()
		},
	)
}

func (b *HuggingFaceBackend) processOnce(ctx context.Context, image []byte) (string, error) {
	var text string
	switch b.mode {
	case ModeTable:
		out, err := b.runPass(ctx, image, taskTable)
		if err != nil {
			return "", err
		}
		text = out
	default:
		out, err := b.runPass(ctx, image, taskMarkdown)
		if err != nil {
			return "", err
		}
		text = out
		if b.mode == ModeAuto && looksLikeTable(text) {
			// The second pass is best-effort: its failure never costs us
			// the markdown we already have.
			html, err := b.runPass(ctx, image, taskTable)
			if err != nil {
				b.logger.Debug("table pass failed, keeping markdown pass", "error", err)
			} else if strings.Contains(html, "<table") {
				text += tablePassSeparator + html
			}
		}
	}

	text = FixLatexDelimiters(text)
	text = InlineCroppedImages(text, image)
	return text, nil
}

// runPass uploads the image and runs one task through the space's queue:
// upload, enqueue the call, then read the SSE stream until completion.
func (b *HuggingFaceBackend) runPass(ctx context.Context, image []byte, task string) (string, error) {
	serverPath, err := b.upload(ctx, image)
	if err != nil {
		return "", err
	}

	eventID, err := b.enqueue(ctx, serverPath, task)
	if err != nil {
		return "", err
	}

	return b.streamResult(ctx, eventID)
}

// upload posts the PNG bytes to the space and returns the server-side path.
func (b *HuggingFaceBackend) upload(ctx context.Context, image []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", "page.png")
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("failed to write image data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", b.baseURL+"/gradio_api/upload", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+b.token)

	resp, err := b.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload returned status %d: %s", resp.StatusCode, string(body))
	}

	var paths []string
	if err := json.Unmarshal(body, &paths); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("upload returned no file paths")
	}
	return paths[0], nil
}

// enqueue submits the OCR call and returns the queue event id.
func (b *HuggingFaceBackend) enqueue(ctx context.Context, serverPath, task string) (string, error) {
	callReq := gradioCallRequest{
		Data: []any{
			gradioFileData{Path: serverPath, Meta: gradioFileMeta{Type: "gradio.FileData"}},
			task,
		},
	}
	bodyBytes, err := json.Marshal(callReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal call request: %w", err)
	}

	url := fmt.Sprintf("%s/gradio_api/call/%s", b.baseURL, gradioAPIName)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create call request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.token)

	resp, err := b.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read call response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("call returned status %d: %s", resp.StatusCode, string(body))
	}

	var callResp gradioCallResponse
	if err := json.Unmarshal(body, &callResp); err != nil {
		return "", fmt.Errorf("failed to decode call response: %w", err)
	}
	if callResp.EventID == "" {
		return "", fmt.Errorf("call response missing event_id")
	}
	return callResp.EventID, nil
}

// streamResult reads the SSE stream for an event until the complete event
// arrives, then returns the first data element as the OCR text.
func (b *HuggingFaceBackend) streamResult(ctx context.Context, eventID string) (string, error) {
	url := fmt.Sprintf("%s/gradio_api/call/%s/%s", b.baseURL, gradioAPIName, eventID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.token)

	resp, err := b.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("stream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("stream returned status %d: %s", resp.StatusCode, string(body))
	}

	var event string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			switch event {
			case "error":
				return "", fmt.Errorf("space reported error: %s", data)
			case "complete":
				return parseGradioResult(data)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("stream read failed: %w", err)
	}
	return "", fmt.Errorf("stream ended without a complete event")
}

// parseGradioResult extracts the text output from a completion payload.
// The space returns a JSON array whose first element is the OCR string.
func parseGradioResult(data string) (string, error) {
	var outputs []json.RawMessage
	if err := json.Unmarshal([]byte(data), &outputs); err != nil {
		return "", fmt.Errorf("failed to decode result payload: %w", err)
	}
	if len(outputs) == 0 {
		return "", fmt.Errorf("result payload is empty")
	}
	var text string
	if err := json.Unmarshal(outputs[0], &text); err != nil {
		return "", fmt.Errorf("result payload is not a string: %w", err)
	}
	return text, nil
}

// looksLikeTable reports whether markdown output carries a table signature.
// Deliberately loose: a false positive only costs one extra pass.
func looksLikeTable(text string) bool {
	if !strings.Contains(text, "|") {
		return false
	}
	return strings.Contains(text, "---") || strings.Contains(text, "| :")
}

func (b *HuggingFaceBackend) httpClient() *http.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		b.client = &http.Client{Timeout: b.timeout}
	}
	return b.client
}

func (b *HuggingFaceBackend) resetClient() {
	b.mu.Lock()
	b.client = nil
	b.mu.Unlock()
}

// Gradio API types

type gradioFileMeta struct {
	Type string `json:"_type"`
}

type gradioFileData struct {
	Path string         `json:"path"`
	Meta gradioFileMeta `json:"meta"`
}

type gradioCallRequest struct {
	Data []any `json:"data"`
}

type gradioCallResponse struct {
	EventID string `json:"event_id"`
}
