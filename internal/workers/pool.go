// Package workers runs the claim-based OCR worker pool.
//
// Workers coordinate exclusively through the store's conditional claim
// update: any number of workers may see the same queued page, at most one
// wins the claim, and the losers move on immediately. The pool never retries
// a page; retrying is the backend's job, and a backend failure marks the
// page failed rather than killing the worker.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/folio/internal/metrics"
	"github.com/jackzampolin/folio/internal/ocr"
	"github.com/jackzampolin/folio/internal/store"
)

// BackendFunc supplies the current OCR backend. Indirection lets a config
// reload swap backends; workers pick up the new one on their next page.
type BackendFunc func() ocr.Backend

// Config configures a Pool.
type Config struct {
	Store   *store.Store
	Backend BackendFunc
	Logger  *slog.Logger

	// PollInterval is how long an idle worker sleeps when the queue is
	// empty (default 1s).
	PollInterval time.Duration
	// ErrorBackoff is how long a worker sleeps after a store error
	// (default 2s).
	ErrorBackoff time.Duration
}

// Pool manages N worker goroutines draining the page queue.
type Pool struct {
	store        *store.Store
	backend      BackendFunc
	logger       *slog.Logger
	pollInterval time.Duration
	errorBackoff time.Duration

	mu          sync.Mutex
	running     bool
	workerCount int
	stop        chan struct{}
	wg          sync.WaitGroup

	// activeMu guards only the active counter; it is deliberately separate
	// from mu so health reads never contend with lifecycle changes.
	activeMu sync.Mutex
	active   int
}

// New creates a stopped pool.
func New(cfg Config) *Pool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 2 * time.Second
	}

	return &Pool{
		store:        cfg.Store,
		backend:      cfg.Backend,
		logger:       logger.With("component", "workers"),
		pollInterval: cfg.PollInterval,
		errorBackoff: cfg.ErrorBackoff,
	}
}

// Start spawns n workers with fresh identities. Calling Start on a running
// pool is a no-op.
func (p *Pool) Start(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		p.logger.Warn("pool already running", "workers", p.workerCount)
		return
	}

	p.running = true
	p.workerCount = n
	p.stop = make(chan struct{})
	for i := 1; i <= n; i++ {
		id := workerID(i)
		p.wg.Add(1)
		go p.run(id)
	}
	p.logger.Info("worker pool started", "workers", n)
}

// Stop signals every worker and waits for each to finish its current
// iteration. An in-flight backend call is not interrupted; the worker
// observes the stop signal after recording its result. The pool can be
// started again afterwards.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	close(p.stop)
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	p.running = false
	p.workerCount = 0
	p.mu.Unlock()
	p.logger.Info("worker pool stopped")
}

// WorkerCount returns the number of workers in the running pool.
func (p *Pool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workerCount
}

// ActiveWorkers returns how many workers are currently processing a page.
func (p *Pool) ActiveWorkers() int {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	return p.active
}

// workerID builds a stable worker identity: ordinal plus 8 random hex.
func workerID(ordinal int) string {
	return fmt.Sprintf("worker-%d-%s", ordinal, uuid.NewString()[:8])
}

// run is one worker's loop: poll, claim, process, repeat until stopped.
func (p *Pool) run(id string) {
	defer p.wg.Done()
	logger := p.logger.With("worker_id", id)
	logger.Info("worker started")

	ctx := context.Background()
	for {
		select {
		case <-p.stop:
			logger.Info("worker stopped")
			return
		default:
		}

		page, err := p.store.NextQueuedPage(ctx)
		if err != nil {
			logger.Error("failed to poll queue", "error", err)
			p.sleep(p.errorBackoff)
			continue
		}
		if page == nil {
			p.sleep(p.pollInterval)
			continue
		}

		claimed, err := p.store.ClaimPageJob(ctx, page.ID, id)
		if err != nil {
			logger.Error("failed to claim page", "page_id", page.ID, "error", err)
			p.sleep(p.errorBackoff)
			continue
		}
		if !claimed {
			// Lost the race; another worker has it. Go straight back to
			// the queue.
			continue
		}

		logger.Info("processing page", "page_id", page.ID, "job_id", page.ParentJobID, "page", page.PageNumber)
		if err := p.process(ctx, page); err != nil {
			logger.Error("failed to record page outcome", "page_id", page.ID, "error", err)
			p.sleep(p.errorBackoff)
		}
	}
}

// process runs the backend on one claimed page and persists the outcome.
// A backend failure is a page failure, not a worker failure; only store
// errors are returned to the loop.
func (p *Pool) process(ctx context.Context, page *store.PageJob) error {
	p.setActive(+1)
	defer p.setActive(-1)

	backend := p.backend()
	start := time.Now()
	markdown, ocrErr := backend.ProcessImage(ctx, page.ImageData)
	metrics.ObservePageDuration(time.Since(start))

	var recordErr error
	if ocrErr != nil {
		p.logger.Warn("page failed", "page_id", page.ID, "backend", backend.Name(), "error", ocrErr)
		metrics.IncOCRRequest(backend.Name(), "failure")
		metrics.IncPageProcessed(string(store.StatusFailed))
		recordErr = p.store.RecordPageResult(ctx, page.ID, store.StatusFailed, "", ocrErr.Error())
	} else {
		metrics.IncOCRRequest(backend.Name(), "success")
		metrics.IncPageProcessed(string(store.StatusCompleted))
		recordErr = p.store.RecordPageResult(ctx, page.ID, store.StatusCompleted, markdown, "")
	}
	if recordErr != nil {
		return recordErr
	}

	return p.store.RecomputeJobStatus(ctx, page.ParentJobID)
}

func (p *Pool) setActive(delta int) {
	p.activeMu.Lock()
	p.active += delta
	n := p.active
	p.activeMu.Unlock()
	metrics.SetActiveWorkers(n)
}

// sleep waits for d or until the pool is stopped, whichever comes first.
func (p *Pool) sleep(d time.Duration) {
	select {
	case <-p.stop:
	case <-time.After(d):
	}
}
