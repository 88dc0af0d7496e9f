package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/veldtkamp/clipdock/internal/bundle"
	"github.com/veldtkamp/clipdock/internal/config"
	"github.com/veldtkamp/clipdock/internal/dedupe"
	"github.com/veldtkamp/clipdock/internal/notebook"
	"github.com/veldtkamp/clipdock/internal/pending"
	"github.com/veldtkamp/clipdock/internal/privacy"
	"github.com/veldtkamp/clipdock/internal/queue"
	"github.com/veldtkamp/clipdock/internal/storage"
)

// Closed set of policy-failure reasons. These are data for deterministic
// branching in the UI, never raised errors.
const (
	ReasonDisabled            = "disabled"
	ReasonMissingBundle       = "missing_bundle"
	ReasonCloudExportDisabled = "cloud_export_disabled"
	ReasonSensitiveDomain     = "sensitive_domain"
	ReasonDedupe              = "dedupe"
	ReasonPIIWarning          = "pii_warning"
	ReasonUnexpectedError     = "unexpected_error"
)

// Result is the single outcome shape of the export pipeline.
type Result struct {
	OK          bool               `json:"ok"`
	Reason      string             `json:"reason,omitempty"`
	Bundle      *bundle.Bundle     `json:"bundle,omitempty"`
	ClipText    string             `json:"clip_text,omitempty"`
	NotebookRef string             `json:"notebook_ref,omitempty"`
	NotebookURL string             `json:"notebook_url,omitempty"`
	DedupeKey   string             `json:"dedupe_key,omitempty"`
	Job         *storage.ExportJob `json:"job,omitempty"`
	// Nonce correlates a pii_warning preview with its confirm round trip.
	Nonce string `json:"nonce,omitempty"`
}

func failure(reason string) Result {
	return Result{Reason: reason}
}

// OutcomeStore persists the export decision onto the originating note.
type OutcomeStore interface {
	SetNoteOutcome(o storage.NoteOutcome) error
}

// Orchestrator runs the gated export decision pipeline and creates durable
// jobs when every gate passes.
type Orchestrator struct {
	settings config.ExportSettings
	rules    notebook.Rules
	domains  []string
	guard    *dedupe.Guard
	jobs     *queue.Processor
	registry *pending.Registry
	outcomes OutcomeStore
	now      func() time.Time
	logger   *slog.Logger
}

// New wires an Orchestrator. registry and outcomes may be nil in contexts
// (tests, one-shot CLI paths) that never hit the confirmation round trip.
func New(
	settings config.ExportSettings,
	rules notebook.Rules,
	sensitiveDomains []string,
	guard *dedupe.Guard,
	jobs *queue.Processor,
	registry *pending.Registry,
	outcomes OutcomeStore,
) *Orchestrator {
	return &Orchestrator{
		settings: settings,
		rules:    rules.Sanitize(),
		domains:  sensitiveDomains,
		guard:    guard,
		jobs:     jobs,
		registry: registry,
		outcomes: outcomes,
		now:      time.Now,
		logger:   slog.Default(),
	}
}

// PrepareExport runs the gates in strict order, short-circuiting on the first
// failure. Policy failures come back as Result{OK: false, Reason: ...}; only
// store faults surface as errors.
//
// The PII gate is a preview, not a commit: the result carries the bundle,
// clip text, and destination so the UI can ask the user, but no job exists
// and the dedupe key stays unmarked. A follow-up call with bypassPII=true
// re-runs the pipeline and commits. Because dedupe is only marked on commit,
// the bypass call is never blocked by its own preview.
func (o *Orchestrator) PrepareExport(ctx context.Context, note *bundle.RawNote, bypassPII bool) (Result, error) {
	// Gate 1: feature switch.
	if !o.settings.Enabled {
		return failure(ReasonDisabled), nil
	}

	// Gate 2: bundle must be buildable.
	b, err := bundle.Build(note, o.settings.AllowCloudExport, o.now())
	if err != nil {
		return failure(ReasonMissingBundle), nil
	}

	// Gate 3: cloud export policy.
	if !b.Privacy.AllowCloudExport {
		return failure(ReasonCloudExportDisabled), nil
	}

	// Gate 4: sensitive destination screening.
	if privacy.IsSensitiveURL(b.URL, o.domains) {
		return failure(ReasonSensitiveDomain), nil
	}

	// Gate 5: resolve destination, then fingerprint against the persisted set.
	ref := o.rules.Resolve(b.Tags, b.UserIntentLabel, b.Domain, o.settings.DefaultNotebookRef)
	key := dedupe.KeyFor(b, ref)
	hit, err := o.guard.IsHit(key)
	if err != nil {
		return Result{}, fmt.Errorf("checking dedupe key: %w", err)
	}
	if hit {
		return failure(ReasonDedupe), nil
	}

	// Step 6: format the deliverable.
	clip := notebook.FormatClip(b, o.settings.ExportMaxChars)
	dest := notebook.DeepLink(ref, o.settings.NotebookBaseURL)

	// Gate 7: advisory PII warning, bypassable. Preview only.
	if b.Privacy.ContainsPII && o.settings.PIIWarning && !bypassPII {
		res := Result{
			Reason:      ReasonPIIWarning,
			Bundle:      b,
			ClipText:    clip,
			NotebookRef: ref,
			NotebookURL: dest,
			DedupeKey:   key,
		}
		if o.registry != nil {
			payload, err := json.Marshal(note)
			if err != nil {
				return Result{}, fmt.Errorf("encoding pending payload: %w", err)
			}
			p, err := o.registry.Register(b.ID, string(payload))
			if err != nil {
				return Result{}, err
			}
			res.Nonce = p.Nonce
		}
		o.logger.Info("export held for pii confirmation", "bundle_id", b.ID, "domain", b.Domain)
		return res, nil
	}

	// Step 8: commit — create the durable job, then mark the fingerprint.
	o.logger.Info("export attempt", "bundle_id", b.ID, "notebook_ref", ref, "domain", b.Domain)
	job, err := o.jobs.Create(b.ID, ref, key)
	if err != nil {
		return Result{}, err
	}
	if err := o.guard.Mark(key); err != nil {
		return Result{}, fmt.Errorf("marking dedupe key: %w", err)
	}
	o.logger.Info("export queued", "bundle_id", b.ID, "job_id", job.ID)

	return Result{
		OK:          true,
		Bundle:      b,
		ClipText:    clip,
		NotebookRef: ref,
		NotebookURL: dest,
		DedupeKey:   key,
		Job:         &job,
	}, nil
}

// Confirm redeems a pii_warning preview: it takes the pending entry exactly
// once, re-invokes the pipeline with the bypass set, and persists the outcome
// onto the originating note. Unknown, already-taken, or expired nonces return
// the registry's errors unchanged.
func (o *Orchestrator) Confirm(ctx context.Context, nonce string) (Result, error) {
	p, err := o.registry.Take(nonce)
	if err != nil {
		return Result{}, err
	}

	var note bundle.RawNote
	if err := json.Unmarshal([]byte(p.PayloadJSON), &note); err != nil {
		return Result{}, fmt.Errorf("decoding pending payload: %w", err)
	}

	res, err := o.PrepareExport(ctx, &note, true)
	if err != nil {
		return Result{}, err
	}

	// Mark the fingerprint on the confirm path as well; Mark is idempotent so
	// the double call with the commit step is harmless.
	if res.OK && res.DedupeKey != "" {
		if err := o.guard.Mark(res.DedupeKey); err != nil {
			return Result{}, fmt.Errorf("marking dedupe key: %w", err)
		}
	}

	if o.outcomes != nil && note.ID != "" {
		outcome := storage.NoteOutcome{
			NoteID:    note.ID,
			Exported:  res.OK,
			Reason:    res.Reason,
			UpdatedAt: o.now().UTC(),
		}
		if res.Job != nil {
			outcome.JobID = res.Job.ID
		}
		if err := o.outcomes.SetNoteOutcome(outcome); err != nil {
			return Result{}, fmt.Errorf("persisting note outcome: %w", err)
		}
	}

	return res, nil
}
