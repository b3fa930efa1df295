package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a job does not exist.
var ErrNotFound = errors.New("job not found")

// Status represents the lifecycle state of a Job or PageJob.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one submitted document. Its status is derived from its pages
// after creation and never written directly by handlers.
type Job struct {
	ID               string    `json:"id"`
	OriginalFilename string    `json:"original_filename"`
	FileType         string    `json:"file_type"`
	TotalPages       int       `json:"total_pages"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PageJob is one page of one document, the unit of work claimed by workers.
type PageJob struct {
	ID           string    `json:"id"`
	ParentJobID  string    `json:"parent_job_id"`
	PageNumber   int       `json:"page_number"`
	ImageData    []byte    `json:"-"`
	MarkdownText string    `json:"markdown_text,omitempty"`
	Status       Status    `json:"status"`
	WorkerID     string    `json:"worker_id,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListFilter narrows and pages ListJobs results.
type ListFilter struct {
	Status   Status // empty matches all
	Page     int    // 1-based, default 1
	PageSize int    // default 20
}
