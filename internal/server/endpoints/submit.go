package endpoints

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/ingest"
	"github.com/jackzampolin/folio/internal/svcctx"
)

// SubmitEndpoint handles POST /ocr/submit with a multipart file upload.
type SubmitEndpoint struct{}

var _ api.Endpoint = (*SubmitEndpoint)(nil)

func (e *SubmitEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/ocr/submit", e.handler
}

func (e *SubmitEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Submit a document for OCR
//	@Description	Upload a PDF or image; each page becomes a queued page job
//	@Tags			ocr
//	@Accept			mpfd
//	@Produce		json
//	@Param			file	formData	file	true	"PDF or image file"
//	@Success		200	{object}	ingest.Result
//	@Failure		400	{object}	ErrorResponse
//	@Failure		413	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/ocr/submit [post]
func (e *SubmitEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svcs := svcctx.ServicesFrom(r.Context())
	if svcs == nil || svcs.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	maxBytes := svcs.Config.Get().MaxFileBytes()

	// Cap the request body a little above the file limit so multipart
	// framing doesn't push a maximum-size file over the edge.
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "form field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read upload: %v", err))
		return
	}

	res, err := ingest.Ingest(r.Context(), svcs.Store, svcs.Rasterizer, svcs.Logger, ingest.Submission{
		Filename: header.Filename,
		Data:     data,
		MaxBytes: maxBytes,
	})
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrFileTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, ingest.ErrUnsupportedType),
			errors.Is(err, ingest.ErrEmptyFile),
			errors.Is(err, ingest.ErrBadPDF):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (e *SubmitEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <file>",
		Short: "Submit a PDF or image for OCR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			client := api.NewClient(getServerURL())
			var resp ingest.Result
			if err := client.PostFile(cmd.Context(), "/ocr/submit", "file", filepath.Base(args[0]), data, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
