package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Export job statuses. Terminal statuses are StatusMaxRetries and StatusCompleted.
const (
	StatusQueued     = "queued"
	StatusFailed     = "failed"
	StatusMaxRetries = "max_retries"
	StatusCompleted  = "completed"
)

// ExportJob is one durable export attempt awaiting user-assisted delivery.
type ExportJob struct {
	ID            string
	BundleID      string
	NotebookRef   string
	DedupeKey     string
	Status        string
	Attempts      int
	MaxAttempts   int
	LastError     string
	CreatedAt     time.Time
	LastAttemptAt time.Time // zero if never attempted
	NextAttemptAt time.Time
}

// Terminal reports whether the job has reached a state the retry processor
// will never reschedule.
func (j ExportJob) Terminal() bool {
	return j.Status == StatusMaxRetries || j.Status == StatusCompleted
}

// PendingJob correlates one in-flight UI confirmation round trip.
type PendingJob struct {
	Nonce       string
	JobID       string
	PayloadJSON string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// NoteOutcome records the final export decision persisted onto a note.
type NoteOutcome struct {
	NoteID    string
	Exported  bool
	JobID     string
	Reason    string
	UpdatedAt time.Time
}
