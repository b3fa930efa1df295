package endpoints

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/svcctx"
)

// PageStatus is one page's progress entry in a status response.
type PageStatus struct {
	PageNumber   int          `json:"page_number"`
	Status       store.Status `json:"status"`
	WorkerID     string       `json:"worker_id,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// StatusResponse reports a job's progress.
type StatusResponse struct {
	JobID            string       `json:"job_id"`
	OriginalFilename string       `json:"original_filename"`
	FileType         string       `json:"file_type"`
	Status           store.Status `json:"status"`
	TotalPages       int          `json:"total_pages"`
	CompletedPages   int          `json:"completed_pages"`
	FailedPages      int          `json:"failed_pages"`
	ProcessingPages  int          `json:"processing_pages"`
	QueuedPages      int          `json:"queued_pages"`
	ProgressPercent  float64      `json:"progress_percent"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	Pages            []PageStatus `json:"pages"`
}

// JobStatusEndpoint handles GET /ocr/status/{job_id}.
type JobStatusEndpoint struct{}

var _ api.Endpoint = (*JobStatusEndpoint)(nil)

func (e *JobStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ocr/status/{job_id}", e.handler
}

func (e *JobStatusEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get job status
//	@Description	Per-page progress for a submitted document
//	@Tags			ocr
//	@Produce		json
//	@Param			job_id	path		string	true	"Job ID"
//	@Success		200		{object}	StatusResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/ocr/status/{job_id} [get]
func (e *JobStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	jobID := r.PathValue("job_id")
	job, err := st.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	pages, err := st.ListPageJobs(r.Context(), job.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := StatusResponse{
		JobID:            job.ID,
		OriginalFilename: job.OriginalFilename,
		FileType:         job.FileType,
		Status:           job.Status,
		TotalPages:       job.TotalPages,
		CreatedAt:        job.CreatedAt,
		UpdatedAt:        job.UpdatedAt,
		Pages:            make([]PageStatus, 0, len(pages)),
	}

	for _, p := range pages {
		switch p.Status {
		case store.StatusCompleted:
			resp.CompletedPages++
		case store.StatusFailed:
			resp.FailedPages++
		case store.StatusProcessing:
			resp.ProcessingPages++
		case store.StatusQueued:
			resp.QueuedPages++
		}
		resp.Pages = append(resp.Pages, PageStatus{
			PageNumber:   p.PageNumber,
			Status:       p.Status,
			WorkerID:     p.WorkerID,
			ErrorMessage: p.ErrorMessage,
			UpdatedAt:    p.UpdatedAt,
		})
	}

	if job.TotalPages > 0 {
		done := resp.CompletedPages + resp.FailedPages
		pct := float64(done) / float64(job.TotalPages) * 100
		resp.ProgressPercent = math.Round(pct*10) / 10
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *JobStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Get job status and per-page progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StatusResponse
			if err := client.Get(cmd.Context(), "/ocr/status/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
