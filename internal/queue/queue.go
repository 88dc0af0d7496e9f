package queue

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veldtkamp/clipdock/internal/storage"
)

// Backoff schedule per failed delivery confirmation: the wait before the job
// is re-surfaced to the user. Failures past the end of the schedule reuse the
// last tier.
var backoffSchedule = []time.Duration{
	5 * time.Second,
	30 * time.Second,
	2 * time.Minute,
}

const defaultMaxAttempts = 3

// JobStore is the persisted job collection the processor operates on.
type JobStore interface {
	CreateJob(j storage.ExportJob) error
	GetJob(id string) (storage.ExportJob, error)
	UpdateJob(j storage.ExportJob) error
	ListJobs() ([]storage.ExportJob, error)
	DeleteJob(id string) error
	DeleteJobsByStatus(statuses ...string) (int, error)
	DeleteTerminalJobsBefore(cutoff time.Time) (int, error)
	RequeueFailedDue(now time.Time) (int, error)
	DueQueuedJobs(now time.Time) ([]storage.ExportJob, error)
	CountJobsByStatus() (map[string]int, error)
}

// Processor owns the durable job list and its retry policy. It decides when a
// job becomes eligible to be re-surfaced to the user; it never performs the
// delivery itself, which is user-assisted.
type Processor struct {
	store       JobStore
	maxAttempts int
	retention   time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// NewProcessor creates a Processor. maxAttempts <= 0 defaults to 3;
// retention <= 0 defaults to 7 days.
func NewProcessor(store JobStore, maxAttempts int, retention time.Duration) *Processor {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &Processor{
		store:       store,
		maxAttempts: maxAttempts,
		retention:   retention,
		now:         time.Now,
		logger:      slog.Default(),
	}
}

// Create appends a new queued job with zero attempts, eligible immediately.
func (p *Processor) Create(bundleID, notebookRef, dedupeKey string) (storage.ExportJob, error) {
	now := p.now().UTC()
	job := storage.ExportJob{
		ID:            uuid.New().String(),
		BundleID:      bundleID,
		NotebookRef:   notebookRef,
		DedupeKey:     dedupeKey,
		Status:        storage.StatusQueued,
		Attempts:      0,
		MaxAttempts:   p.maxAttempts,
		CreatedAt:     now,
		NextAttemptAt: now,
	}
	if err := p.store.CreateJob(job); err != nil {
		return storage.ExportJob{}, fmt.Errorf("creating job: %w", err)
	}
	p.logger.Info("export job queued", "job_id", job.ID, "notebook_ref", notebookRef)
	return job, nil
}

// RecordFailure registers one failed delivery confirmation. Below the attempt
// cap the job waits out its backoff as failed and is later re-queued by the
// due pass; at the cap it becomes max_retries and is never auto-scheduled
// again. Failures are data, not errors: the returned error only covers store
// faults or an unknown job.
func (p *Processor) RecordFailure(id, errMsg string) (storage.ExportJob, error) {
	job, err := p.store.GetJob(id)
	if err != nil {
		return storage.ExportJob{}, err
	}
	if job.Terminal() {
		return job, nil
	}

	now := p.now().UTC()
	job.Attempts++
	job.LastError = errMsg
	job.LastAttemptAt = now

	if job.Attempts >= job.MaxAttempts {
		job.Status = storage.StatusMaxRetries
		p.logger.Warn("export job exhausted retries", "job_id", job.ID, "attempts", job.Attempts, "error", errMsg)
	} else {
		job.Status = storage.StatusFailed
		job.NextAttemptAt = now.Add(backoffFor(job.Attempts))
		p.logger.Warn("export job failed, backing off", "job_id", job.ID, "attempts", job.Attempts, "next_attempt_at", job.NextAttemptAt)
	}

	if err := p.store.UpdateJob(job); err != nil {
		return storage.ExportJob{}, fmt.Errorf("recording failure for job %s: %w", id, err)
	}
	return job, nil
}

// RecordCompletion marks a job delivered. The row stays until retention
// cleanup so the UI can show recent history.
func (p *Processor) RecordCompletion(id string) error {
	job, err := p.store.GetJob(id)
	if err != nil {
		return err
	}
	job.Status = storage.StatusCompleted
	job.LastError = ""
	job.LastAttemptAt = p.now().UTC()
	if err := p.store.UpdateJob(job); err != nil {
		return fmt.Errorf("completing job %s: %w", id, err)
	}
	p.logger.Info("export job completed", "job_id", id)
	return nil
}

// Retry manually re-queues a job: status back to queued, lastError cleared,
// attempts reset to zero, eligible immediately. Resetting attempts gives the
// user a fresh retry budget after they intervene.
func (p *Processor) Retry(id string) (storage.ExportJob, error) {
	job, err := p.store.GetJob(id)
	if err != nil {
		return storage.ExportJob{}, err
	}
	job.Status = storage.StatusQueued
	job.Attempts = 0
	job.LastError = ""
	job.NextAttemptAt = p.now().UTC()
	if err := p.store.UpdateJob(job); err != nil {
		return storage.ExportJob{}, fmt.Errorf("retrying job %s: %w", id, err)
	}
	p.logger.Info("export job manually retried", "job_id", id)
	return job, nil
}

// Cancel removes a job outright. Cancellation is logical removal only: there
// is no in-flight delivery to preempt.
func (p *Processor) Cancel(id string) error {
	return p.store.DeleteJob(id)
}

// ClearFailed bulk-removes jobs in terminal-failure or failed state.
func (p *Processor) ClearFailed() (int, error) {
	return p.store.DeleteJobsByStatus(storage.StatusFailed, storage.StatusMaxRetries)
}

// CleanupOld prunes completed and max_retries jobs older than the retention
// window.
func (p *Processor) CleanupOld() (int, error) {
	return p.store.DeleteTerminalJobsBefore(p.now().UTC().Add(-p.retention))
}

// Due runs one scheduled pass: failed jobs whose backoff elapsed move back to
// queued, then every queued job whose next_attempt_at elapsed is returned,
// ready to be surfaced to the user. Terminal jobs are never included.
func (p *Processor) Due() ([]storage.ExportJob, error) {
	now := p.now().UTC()
	if _, err := p.store.RequeueFailedDue(now); err != nil {
		return nil, fmt.Errorf("requeueing failed jobs: %w", err)
	}
	return p.store.DueQueuedJobs(now)
}

func backoffFor(attempts int) time.Duration {
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	return backoffSchedule[idx]
}
