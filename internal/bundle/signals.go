package bundle

import "strings"

// Reading modes, from lightest to most intentional engagement.
const (
	ModeSkim      = "skim"
	ModeDeep      = "deep"
	ModeReference = "reference"
	ModeReread    = "reread"
)

// ValidMode reports whether s is one of the recognized reading modes.
func ValidMode(s string) bool {
	switch s {
	case ModeSkim, ModeDeep, ModeReference, ModeReread:
		return true
	}
	return false
}

var commandModes = []struct {
	keyword string
	mode    string
}{
	{"critique", ModeDeep},
	{"quiz", ModeDeep},
	{"analyze", ModeDeep},
	{"reference", ModeReference},
	{"cite", ModeReference},
}

// DeriveReadingMode infers the reading mode for a note. It never fails: an
// unrecognized or absent note yields the skim default. An explicit valid mode
// on the note wins outright; after that, command keywords, then engagement
// signals. Confirmed tags and an authored atomic thought count as deep
// regardless of selection length, since deliberate user action is stronger
// evidence than how much text happened to be selected.
func DeriveReadingMode(n *RawNote) string {
	if n == nil {
		return ModeSkim
	}

	if ValidMode(n.ReadingMode) {
		return n.ReadingMode
	}

	label := strings.ToLower(n.UserIntentLabel)
	for _, cm := range commandModes {
		if strings.Contains(label, cm.keyword) {
			return cm.mode
		}
	}

	length := len(n.Content())
	switch {
	case length > 500:
		return ModeDeep
	case n.AtomicThought != "":
		return ModeDeep
	case n.TagsConfirmed && len(n.Tags) > 0:
		return ModeDeep
	case length > 0 && length < 100:
		return ModeSkim
	}

	return ModeSkim
}

// DeriveConfidence scores how sure we are about the derived reading signals,
// in [0, 1]. Each positive signal only ever adds, so the score is monotonic
// non-decreasing in its inputs. Internally it accumulates in hundredths to
// keep the published increments exact.
func DeriveConfidence(n *RawNote) float64 {
	score := 40 // base
	if n == nil {
		return 0.3
	}

	content := n.Content()
	if content != "" {
		score += 20
	}
	if len(content) > 200 {
		score += 10
	}
	if n.AtomicThought != "" {
		score += 15
	}
	if n.TagsConfirmed && len(n.Tags) > 0 {
		score += 10
	}
	if n.AISummary != "" || n.AICritique != "" {
		score += 5
	}

	if score > 100 {
		score = 100
	}
	return float64(score) / 100
}
