package queue

import (
	"fmt"
	"time"

	"github.com/veldtkamp/clipdock/internal/storage"
)

// JobView is the UI-facing shape of one export job.
type JobView struct {
	JobID         string     `json:"job_id"`
	NotebookRef   string     `json:"notebook_ref"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"max_attempts"`
	CreatedAt     time.Time  `json:"created_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	CanRetry      bool       `json:"can_retry"`
}

// Badge aggregates job counts for the extension badge.
type Badge struct {
	Pending int    `json:"pending"`
	Failed  int    `json:"failed"`
	Total   int    `json:"total"`
	Color   string `json:"color"`
	Text    string `json:"text"`
}

// Badge colors escalate with severity.
const (
	BadgeNeutral = "neutral"
	BadgeAmber   = "amber"
	BadgeRed     = "red"
)

// JobsForDisplay returns every job shaped for the UI, newest first.
func (p *Processor) JobsForDisplay() ([]JobView, error) {
	jobs, err := p.store.ListJobs()
	if err != nil {
		return nil, err
	}
	views := make([]JobView, 0, len(jobs))
	for _, j := range jobs {
		v := JobView{
			JobID:       j.ID,
			NotebookRef: j.NotebookRef,
			Status:      j.Status,
			Attempts:    j.Attempts,
			MaxAttempts: j.MaxAttempts,
			CreatedAt:   j.CreatedAt,
			LastError:   j.LastError,
			CanRetry:    j.Status == storage.StatusFailed || j.Status == storage.StatusMaxRetries,
		}
		if !j.LastAttemptAt.IsZero() {
			t := j.LastAttemptAt
			v.LastAttemptAt = &t
		}
		views = append(views, v)
	}
	return views, nil
}

// BadgeCounts aggregates the queue into badge numbers: pending is queued
// work, failed covers both backed-off and exhausted jobs. Completed jobs
// don't count. Text caps the display at "99+".
func (p *Processor) BadgeCounts() (Badge, error) {
	counts, err := p.store.CountJobsByStatus()
	if err != nil {
		return Badge{}, err
	}

	b := Badge{
		Pending: counts[storage.StatusQueued],
		Failed:  counts[storage.StatusFailed] + counts[storage.StatusMaxRetries],
	}
	b.Total = b.Pending + b.Failed

	switch {
	case b.Failed > 0:
		b.Color = BadgeRed
	case b.Pending > 0:
		b.Color = BadgeAmber
	default:
		b.Color = BadgeNeutral
	}

	if b.Total > 99 {
		b.Text = "99+"
	} else if b.Total > 0 {
		b.Text = fmt.Sprintf("%d", b.Total)
	}

	return b, nil
}
