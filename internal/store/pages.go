package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ListPageJobs returns all pages of a job ordered by page number. Image
// bytes are not loaded; status and result endpoints never need them.
func (s *Store) ListPageJobs(ctx context.Context, parentJobID string) ([]*PageJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, parent_job_id, page_number, markdown_text, status, worker_id, error_message, created_at, updated_at
		 FROM page_jobs WHERE parent_job_id = ? ORDER BY page_number ASC`, parentJobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list page jobs: %w", err)
	}
	defer rows.Close()

	var pages []*PageJob
	for rows.Next() {
		page, err := scanPageJob(rows, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page job: %w", err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate page jobs: %w", err)
	}
	return pages, nil
}

// QueueDepth returns the number of queued pages across all jobs.
func (s *Store) QueueDepth(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM page_jobs WHERE status = ?`, StatusQueued).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count queued pages: %w", err)
	}
	return n, nil
}

// NextQueuedPage returns the oldest queued page including its image bytes,
// or (nil, nil) when the queue is empty. Callers must still win ClaimPageJob
// before processing; between the two calls another worker may take the page.
func (s *Store) NextQueuedPage(ctx context.Context) (*PageJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, parent_job_id, page_number, image_data, markdown_text, status, worker_id, error_message, created_at, updated_at
		 FROM page_jobs WHERE status = ? ORDER BY created_at ASC, page_number ASC LIMIT 1`,
		StatusQueued)

	page, err := scanPageJob(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch next queued page: %w", err)
	}
	return page, nil
}

// ClaimPageJob atomically moves a queued page to processing on behalf of
// workerID. The conditional update makes the claim at-most-once: of any
// number of concurrent claimers exactly one sees a row change.
func (s *Store) ClaimPageJob(ctx context.Context, pageID, workerID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE page_jobs SET status = ?, worker_id = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		StatusProcessing, workerID, time.Now().UTC().UnixNano(), pageID, StatusQueued,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim page: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// RecordPageResult writes a terminal result for a claimed page: completed
// with markdown, or failed with an error message. Pages advance only from
// processing, so a stale write against an already-terminal page is an error.
func (s *Store) RecordPageResult(ctx context.Context, pageID string, status Status, markdown, errMsg string) error {
	if !status.Terminal() {
		return fmt.Errorf("page result status must be terminal, got %q", status)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE page_jobs SET status = ?, markdown_text = ?, error_message = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status, nullString(markdown), nullString(errMsg), time.Now().UTC().UnixNano(),
		pageID, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to record page result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("page %s is not processing; result not recorded", pageID)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanPageJob(row scanner, withImage bool) (*PageJob, error) {
	var p PageJob
	var markdown, workerID, errMsg sql.NullString
	var created, updated int64

	var err error
	if withImage {
		err = row.Scan(
			&p.ID, &p.ParentJobID, &p.PageNumber, &p.ImageData,
			&markdown, &p.Status, &workerID, &errMsg, &created, &updated,
		)
	} else {
		err = row.Scan(
			&p.ID, &p.ParentJobID, &p.PageNumber,
			&markdown, &p.Status, &workerID, &errMsg, &created, &updated,
		)
	}
	if err != nil {
		return nil, err
	}

	p.MarkdownText = markdown.String
	p.WorkerID = workerID.String
	p.ErrorMessage = errMsg.String
	p.CreatedAt = time.Unix(0, created).UTC()
	p.UpdatedAt = time.Unix(0, updated).UTC()
	return &p, nil
}
