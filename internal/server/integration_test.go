package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"testing"
	"time"

	"github.com/jackzampolin/folio/internal/server/endpoints"
	"github.com/jackzampolin/folio/internal/store"
)

func testPagePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func submitFile(t *testing.T, baseURL, filename string, data []byte) *http.Response {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("part.Write() error = %v", err)
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, baseURL+"/ocr/submit", &body)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("submit request failed: %v", err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

// TestPipeline_SubmitToResult drives a submission through the worker pool to
// a completed result using the fake ollama backend.
func TestPipeline_SubmitToResult(t *testing.T) {
	ollama := newFakeOllama(t, "# Invoice\n\nTotal: $42\n\n## Items\n\n| a | b |\n| --- | --- |")
	srv, baseURL := newTestServer(t, ollama.URL)
	stop := startServer(t, srv, baseURL)
	defer stop()

	// Submit a single-page image.
	resp := submitFile(t, baseURL, "page.png", testPagePNG(t))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var submitted struct {
		JobID      string       `json:"job_id"`
		TotalPages int          `json:"total_pages"`
		Status     store.Status `json:"status"`
	}
	decodeJSON(t, resp, &submitted)

	if submitted.JobID == "" {
		t.Fatal("submit returned empty job_id")
	}
	if submitted.TotalPages != 1 {
		t.Errorf("total_pages = %d, want 1", submitted.TotalPages)
	}
	if submitted.Status != store.StatusQueued {
		t.Errorf("status = %q, want %q", submitted.Status, store.StatusQueued)
	}

	// Poll status until the job completes.
	var status endpoints.StatusResponse
	deadline := time.Now().Add(15 * time.Second)
	for {
		resp, err := http.Get(baseURL + "/ocr/status/" + submitted.JobID)
		if err != nil {
			t.Fatalf("status request failed: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		decodeJSON(t, resp, &status)
		if status.Status.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish, status %q", status.Status)
		}
		time.Sleep(100 * time.Millisecond)
	}

	if status.Status != store.StatusCompleted {
		t.Fatalf("job status = %q, want %q (pages: %+v)", status.Status, store.StatusCompleted, status.Pages)
	}
	if status.CompletedPages != 1 {
		t.Errorf("completed_pages = %d, want 1", status.CompletedPages)
	}
	if status.ProgressPercent != 100 {
		t.Errorf("progress_percent = %v, want 100", status.ProgressPercent)
	}

	// Fetch the result and check markdown plus parsed sections.
	resp, err := http.Get(baseURL + "/ocr/result/" + submitted.JobID)
	if err != nil {
		t.Fatalf("result request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("result status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var result endpoints.ResultResponse
	decodeJSON(t, resp, &result)

	if len(result.Pages) != 1 {
		t.Fatalf("result pages = %d, want 1", len(result.Pages))
	}
	if result.Pages[0].MarkdownText == "" {
		t.Error("page markdown is empty")
	}
	if result.TotalSections != 2 {
		t.Errorf("total_sections = %d, want 2 (got %+v)", result.TotalSections, result.Sections)
	}
	for _, sec := range result.Sections {
		if sec.Page != 1 {
			t.Errorf("section %q page = %d, want 1", sec.Heading, sec.Page)
		}
	}

	// The job shows up in the listing.
	resp, err = http.Get(baseURL + "/ocr/jobs?status=completed")
	if err != nil {
		t.Fatalf("list request failed: %v", err)
	}
	var list endpoints.ListJobsResponse
	decodeJSON(t, resp, &list)
	if list.Total != 1 {
		t.Errorf("list total = %d, want 1", list.Total)
	}

	// Delete it and verify it is gone.
	req, _ := http.NewRequest(http.MethodDelete, baseURL+"/ocr/jobs/"+submitted.JobID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	resp, err = http.Get(baseURL + "/ocr/status/" + submitted.JobID)
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status after delete = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestPipeline_Validation(t *testing.T) {
	ollama := newFakeOllama(t, "# Page")
	srv, baseURL := newTestServer(t, ollama.URL)
	stop := startServer(t, srv, baseURL)
	defer stop()

	t.Run("unsupported type", func(t *testing.T) {
		resp := submitFile(t, baseURL, "notes.txt", []byte("plain text"))
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		resp := submitFile(t, baseURL, "blank.png", nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
	})

	t.Run("missing file field", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		mw.WriteField("other", "value")
		mw.Close()

		req, _ := http.NewRequest(http.MethodPost, baseURL+"/ocr/submit", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
	})

	t.Run("unknown job 404s", func(t *testing.T) {
		for _, path := range []string{"/ocr/status/nope", "/ocr/result/nope"} {
			resp, err := http.Get(baseURL + path)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusNotFound {
				t.Errorf("%s status = %d, want %d", path, resp.StatusCode, http.StatusNotFound)
			}
		}
	})

	t.Run("bad paging 400s", func(t *testing.T) {
		for _, q := range []string{"?page=0", "?page_size=500", "?status=bogus", "?page=abc"} {
			resp, err := http.Get(baseURL + "/ocr/jobs" + q)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("%s status = %d, want %d", q, resp.StatusCode, http.StatusBadRequest)
			}
		}
	})

	t.Run("delete unknown job 404s", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, baseURL+"/ocr/jobs/nope", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
		}
	})
}
