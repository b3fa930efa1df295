package endpoints

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/sections"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/svcctx"
)

// PageResult is one page's extracted Markdown.
type PageResult struct {
	PageNumber   int          `json:"page_number"`
	MarkdownText string       `json:"markdown_text"`
	Status       store.Status `json:"status"`
}

// ResultResponse carries extracted text and parsed sections for a job.
// Results are available at any job status; pages that have not finished
// simply carry empty markdown.
type ResultResponse struct {
	JobID         string             `json:"job_id"`
	Status        store.Status       `json:"status"`
	TotalPages    int                `json:"total_pages"`
	Pages         []PageResult       `json:"pages"`
	Sections      []sections.Section `json:"sections"`
	TotalSections int                `json:"total_sections"`
}

// JobResultEndpoint handles GET /ocr/result/{job_id}.
type JobResultEndpoint struct{}

var _ api.Endpoint = (*JobResultEndpoint)(nil)

func (e *JobResultEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ocr/result/{job_id}", e.handler
}

func (e *JobResultEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get job results
//	@Description	Extracted Markdown per page plus parsed sections
//	@Tags			ocr
//	@Produce		json
//	@Param			job_id	path		string	true	"Job ID"
//	@Success		200		{object}	ResultResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/ocr/result/{job_id} [get]
func (e *JobResultEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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

	resp := ResultResponse{
		JobID:      job.ID,
		Status:     job.Status,
		TotalPages: job.TotalPages,
		Pages:      make([]PageResult, 0, len(pages)),
		Sections:   []sections.Section{},
	}

	for _, p := range pages {
		resp.Pages = append(resp.Pages, PageResult{
			PageNumber:   p.PageNumber,
			MarkdownText: p.MarkdownText,
			Status:       p.Status,
		})
		for _, sec := range sections.Parse(p.MarkdownText) {
			sec.Page = p.PageNumber
			resp.Sections = append(resp.Sections, sec)
		}
	}
	resp.TotalSections = len(resp.Sections)

	writeJSON(w, http.StatusOK, resp)
}

func (e *JobResultEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "result <job-id>",
		Short: "Get extracted Markdown and sections for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ResultResponse
			if err := client.Get(cmd.Context(), "/ocr/result/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
