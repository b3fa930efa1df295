package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateJobWithPages inserts a Job and one PageJob per image in a single
// transaction. Pages are numbered from 1 in slice order and receive strictly
// increasing created_at values (base time plus the page index in nanoseconds)
// so queue ordering is stable even on coarse clocks.
func (s *Store) CreateJobWithPages(ctx context.Context, filename, fileType string, pages [][]byte) (*Job, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("at least one page is required")
	}

	now := time.Now().UTC()
	job := &Job{
		ID:               uuid.NewString(),
		OriginalFilename: filename,
		FileType:         fileType,
		TotalPages:       len(pages),
		Status:           StatusQueued,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO jobs (id, original_filename, file_type, total_pages, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.OriginalFilename, job.FileType, job.TotalPages, job.Status,
		now.UnixNano(), now.UnixNano(),
	); err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}

	for i, img := range pages {
		ts := now.Add(time.Duration(i))
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO page_jobs (id, parent_job_id, page_number, image_data, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), job.ID, i+1, img, StatusQueued,
			ts.UnixNano(), ts.UnixNano(),
		); err != nil {
			return nil, fmt.Errorf("failed to insert page %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit job: %w", err)
	}

	s.logger.Info("job created", "job_id", job.ID, "filename", filename, "pages", len(pages))
	return job, nil
}

// GetJob returns a job by ID, or ErrNotFound.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, original_filename, file_type, total_pages, status, created_at, updated_at
		 FROM jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs newest first, optionally filtered by status, along
// with the total count for the filter. Page and PageSize in the filter are
// 1-based and default to 1/20; validation of caller-supplied values belongs
// to the HTTP layer.
func (s *Store) ListJobs(ctx context.Context, filter ListFilter) ([]*Job, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	where := ""
	args := []any{}
	if filter.Status != "" {
		where = " WHERE status = ?"
		args = append(args, filter.Status)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	query := `SELECT id, original_filename, file_type, total_pages, status, created_at, updated_at
		 FROM jobs` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, total, nil
}

// DeleteJob removes a job and, via the foreign key cascade, all of its
// pages. Returns false when the job does not exist.
func (s *Store) DeleteJob(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Info("job deleted", "job_id", id)
	}
	return n > 0, nil
}

// RecomputeJobStatus re-derives a job's status from its pages:
//
//	all completed                      -> completed
//	any failed and all terminal       -> failed
//	any processing                    -> processing
//	otherwise                         -> unchanged
//
// The derivation runs inside a single UPDATE so concurrent recomputes from
// different workers cannot apply a stale reading; jobs without pages are
// left untouched.
func (s *Store) RecomputeJobStatus(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = (
			SELECT CASE
				WHEN COUNT(*) = SUM(status = 'completed') THEN 'completed'
				WHEN SUM(status = 'failed') > 0
					AND COUNT(*) = SUM(status IN ('completed', 'failed')) THEN 'failed'
				WHEN SUM(status = 'processing') > 0 THEN 'processing'
				ELSE jobs.status
			END
			FROM page_jobs WHERE parent_job_id = jobs.id
		), updated_at = ?
		WHERE id = ? AND EXISTS (SELECT 1 FROM page_jobs WHERE parent_job_id = jobs.id)`,
		time.Now().UTC().UnixNano(), jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to recompute job status: %w", err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var j Job
	var created, updated int64
	if err := row.Scan(
		&j.ID, &j.OriginalFilename, &j.FileType, &j.TotalPages, &j.Status,
		&created, &updated,
	); err != nil {
		return nil, err
	}
	j.CreatedAt = time.Unix(0, created).UTC()
	j.UpdatedAt = time.Unix(0, updated).UTC()
	return &j, nil
}
