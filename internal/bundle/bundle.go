package bundle

import (
	"errors"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/veldtkamp/clipdock/internal/privacy"
)

// ErrUnbuildable is returned when a raw note cannot be normalized into a
// bundle (absent note or no usable URL).
var ErrUnbuildable = errors.New("note cannot be built into a bundle")

// Privacy carries the screening flags computed at build time.
type Privacy struct {
	ContainsPII      bool `json:"contains_pii"`
	AllowCloudExport bool `json:"allow_cloud_export"`
}

// Bundle is the canonical, immutable snapshot of a raw note plus derived
// signals. One bundle is built per export attempt and never mutated after
// Build returns.
type Bundle struct {
	ID              string    `json:"id"`
	NoteID          string    `json:"note_id"`
	URL             string    `json:"url"`
	Domain          string    `json:"domain"`
	Title           string    `json:"title"`
	CapturedAt      time.Time `json:"captured_at"`
	ReadingMode     string    `json:"reading_mode"`
	Confidence      float64   `json:"confidence"`
	SelectedText    string    `json:"selected_text,omitempty"`
	ViewportExcerpt string    `json:"viewport_excerpt,omitempty"`
	UserIntentLabel string    `json:"user_intent_label,omitempty"`
	AtomicThought   string    `json:"atomic_thought,omitempty"`
	Tags            []string  `json:"tags"`
	Privacy         Privacy   `json:"privacy"`
}

// Content returns the captured text: selection when present, viewport
// excerpt otherwise. Exactly one of the two is populated on a built bundle.
func (b *Bundle) Content() string {
	if b.SelectedText != "" {
		return b.SelectedText
	}
	return b.ViewportExcerpt
}

// Build normalizes a raw note into a Bundle: derives the reading mode and
// confidence, canonicalizes the domain, dedupes tags, and computes the
// privacy flags. allowCloudExport comes from settings; the PII flag covers
// the captured content and the authored thought.
func Build(n *RawNote, allowCloudExport bool, now time.Time) (*Bundle, error) {
	if n == nil || n.URL == "" {
		return nil, ErrUnbuildable
	}
	u, err := url.Parse(n.URL)
	if err != nil || u.Host == "" {
		return nil, ErrUnbuildable
	}

	capturedAt := n.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = now
	}

	b := &Bundle{
		ID:              uuid.New().String(),
		NoteID:          n.ID,
		URL:             n.URL,
		Domain:          privacy.NormalizeDomain(u.Host),
		Title:           n.Title,
		CapturedAt:      capturedAt.UTC(),
		ReadingMode:     DeriveReadingMode(n),
		Confidence:      DeriveConfidence(n),
		UserIntentLabel: n.UserIntentLabel,
		AtomicThought:   n.AtomicThought,
		Tags:            normalizeTags(n.Tags),
	}

	// Selection wins over the viewport fallback; never carry both.
	if n.SelectedText != "" {
		b.SelectedText = n.SelectedText
	} else {
		b.ViewportExcerpt = n.ViewportExcerpt
	}

	b.Privacy = Privacy{
		ContainsPII:      privacy.ContainsPII(b.Content()) || privacy.ContainsPII(b.AtomicThought),
		AllowCloudExport: allowCloudExport,
	}

	return b, nil
}

// normalizeTags dedupes and sorts tags so the bundle's tag set is canonical.
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
