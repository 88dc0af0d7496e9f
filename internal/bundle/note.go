package bundle

import "time"

// RawNote is the in-context reading note as captured by the extension. It is
// the untrusted input to the export pipeline; everything downstream works on
// the derived Bundle instead.
type RawNote struct {
	ID              string    `json:"id"`
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	CapturedAt      time.Time `json:"captured_at"`
	ReadingMode     string    `json:"reading_mode"` // optional explicit mode
	SelectedText    string    `json:"selected_text"`
	ViewportExcerpt string    `json:"viewport_excerpt"`
	UserIntentLabel string    `json:"user_intent_label"`
	AtomicThought   string    `json:"atomic_thought"`
	Tags            []string  `json:"tags"`
	TagsConfirmed   bool      `json:"tags_confirmed"`
	AISummary       string    `json:"ai_summary"`
	AICritique      string    `json:"ai_critique"`
}

// Content returns the text the user captured: the explicit selection when
// present, otherwise the viewport excerpt fallback.
func (n *RawNote) Content() string {
	if n == nil {
		return ""
	}
	if n.SelectedText != "" {
		return n.SelectedText
	}
	return n.ViewportExcerpt
}
