// Package ingest validates a submitted document and creates its job.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jackzampolin/folio/internal/rasterize"
	"github.com/jackzampolin/folio/internal/store"
)

// Validation errors, mapped to HTTP status codes by the submit endpoint.
var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrEmptyFile       = errors.New("file is empty")
	ErrBadPDF          = errors.New("failed to process PDF")
)

// allowedExtensions maps accepted extensions to the stored file type.
var allowedExtensions = map[string]string{
	".pdf":  "pdf",
	".png":  "image",
	".jpg":  "image",
	".jpeg": "image",
	".tiff": "image",
	".bmp":  "image",
	".webp": "image",
}

// Submission is one uploaded document.
type Submission struct {
	Filename string
	Data     []byte
	// MaxBytes caps the accepted size; 0 means no limit.
	MaxBytes int64
}

// Result reports the created job.
type Result struct {
	JobID            string       `json:"job_id"`
	OriginalFilename string       `json:"original_filename"`
	TotalPages       int          `json:"total_pages"`
	Status           store.Status `json:"status"`
}

// Ingest validates a submission, rasterizes PDFs into per-page PNGs, and
// creates the job with all of its page jobs in one transaction. Images are
// stored as submitted, one page per file.
func Ingest(ctx context.Context, st *store.Store, r rasterize.Rasterizer, logger *slog.Logger, sub Submission) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ext := strings.ToLower(filepath.Ext(sub.Filename))
	fileType, ok := allowedExtensions[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	if len(sub.Data) == 0 {
		return nil, ErrEmptyFile
	}
	if sub.MaxBytes > 0 && int64(len(sub.Data)) > sub.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFileTooLarge, len(sub.Data), sub.MaxBytes)
	}

	// The extension is client-supplied; sniff the bytes so a renamed
	// executable doesn't reach the rasterizer or the OCR backend.
	mtype := mimetype.Detect(sub.Data)
	switch fileType {
	case "pdf":
		if !mtype.Is("application/pdf") {
			return nil, fmt.Errorf("%w: content is %s, not a PDF", ErrUnsupportedType, mtype.String())
		}
	case "image":
		if !strings.HasPrefix(mtype.String(), "image/") {
			return nil, fmt.Errorf("%w: content is %s, not an image", ErrUnsupportedType, mtype.String())
		}
	}

	var pages [][]byte
	if fileType == "pdf" {
		rendered, err := r.PageImages(ctx, sub.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPDF, err)
		}
		pages = rendered
	} else {
		pages = [][]byte{sub.Data}
	}

	job, err := st.CreateJobWithPages(ctx, sub.Filename, fileType, pages)
	if err != nil {
		return nil, err
	}

	logger.Info("submission accepted", "job_id", job.ID, "filename", sub.Filename, "type", fileType, "pages", job.TotalPages)
	return &Result{
		JobID:            job.ID,
		OriginalFilename: job.OriginalFilename,
		TotalPages:       job.TotalPages,
		Status:           job.Status,
	}, nil
}
