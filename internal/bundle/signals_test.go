package bundle

import (
	"strings"
	"testing"
)

func TestDeriveReadingMode(t *testing.T) {
	long := strings.Repeat("x", 600)
	short := "a short selection"

	tests := []struct {
		name string
		note *RawNote
		want string
	}{
		{"nil note", nil, ModeSkim},
		{"empty note", &RawNote{}, ModeSkim},
		{"explicit mode wins", &RawNote{ReadingMode: ModeReread, SelectedText: long}, ModeReread},
		{"invalid explicit mode ignored", &RawNote{ReadingMode: "bogus", SelectedText: long}, ModeDeep},
		{"critique keyword", &RawNote{UserIntentLabel: "please critique this"}, ModeDeep},
		{"quiz keyword", &RawNote{UserIntentLabel: "Quiz me on it"}, ModeDeep},
		{"analyze keyword", &RawNote{UserIntentLabel: "analyze the argument"}, ModeDeep},
		{"reference keyword", &RawNote{UserIntentLabel: "save as reference"}, ModeReference},
		{"cite keyword", &RawNote{UserIntentLabel: "I want to cite this later"}, ModeReference},
		{"long selection", &RawNote{SelectedText: long}, ModeDeep},
		{"atomic thought without selection", &RawNote{AtomicThought: "connects to flow state"}, ModeDeep},
		{"confirmed tags without selection", &RawNote{Tags: []string{"research"}, TagsConfirmed: true}, ModeDeep},
		{"unconfirmed tags stay skim", &RawNote{Tags: []string{"research"}}, ModeSkim},
		{"short selection", &RawNote{SelectedText: short}, ModeSkim},
		{"viewport excerpt counts as content", &RawNote{ViewportExcerpt: long}, ModeDeep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveReadingMode(tt.note); got != tt.want {
				t.Errorf("DeriveReadingMode() = %q, want %q", got, tt.want)
			}
		})
	}
}

// An explicit valid mode must be returned unchanged regardless of every other
// field on the note.
func TestExplicitModeAlwaysWins(t *testing.T) {
	for _, mode := range []string{ModeSkim, ModeDeep, ModeReference, ModeReread} {
		note := &RawNote{
			ReadingMode:     mode,
			SelectedText:    strings.Repeat("y", 1000),
			UserIntentLabel: "critique and cite",
			AtomicThought:   "thought",
			Tags:            []string{"t"},
			TagsConfirmed:   true,
		}
		if got := DeriveReadingMode(note); got != mode {
			t.Errorf("explicit mode %q overridden to %q", mode, got)
		}
	}
}

func TestDeriveConfidence(t *testing.T) {
	tests := []struct {
		name string
		note *RawNote
		want float64
	}{
		{"nil note", nil, 0.3},
		{"empty note", &RawNote{}, 0.4},
		{"selection only", &RawNote{SelectedText: "short"}, 0.6},
		{"600-char selection", &RawNote{SelectedText: strings.Repeat("x", 600)}, 0.7},
		{"selection plus thought", &RawNote{SelectedText: "short", AtomicThought: "t"}, 0.75},
		{"confirmed tags only", &RawNote{Tags: []string{"a"}, TagsConfirmed: true}, 0.5},
		{"ai summary only", &RawNote{AISummary: "summary"}, 0.45},
		{
			"everything caps at 1.0",
			&RawNote{
				SelectedText:  strings.Repeat("x", 600),
				AtomicThought: "t",
				Tags:          []string{"a"},
				TagsConfirmed: true,
				AISummary:     "s",
				AICritique:    "c",
			},
			1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveConfidence(tt.note)
			if got != tt.want {
				t.Errorf("DeriveConfidence() = %v, want %v", got, tt.want)
			}
			if got < 0 || got > 1 {
				t.Errorf("confidence %v out of [0,1]", got)
			}
		})
	}
}

// Adding any positive signal must never lower the confidence.
func TestConfidenceMonotonic(t *testing.T) {
	base := &RawNote{SelectedText: "some selection"}
	baseScore := DeriveConfidence(base)

	additions := []func(n *RawNote){
		func(n *RawNote) { n.SelectedText = strings.Repeat("x", 300) },
		func(n *RawNote) { n.AtomicThought = "a thought" },
		func(n *RawNote) { n.Tags = []string{"t"}; n.TagsConfirmed = true },
		func(n *RawNote) { n.AISummary = "summary" },
	}

	note := &RawNote{SelectedText: "some selection"}
	prev := baseScore
	for i, add := range additions {
		add(note)
		got := DeriveConfidence(note)
		if got < prev {
			t.Errorf("confidence decreased after addition %d: %v -> %v", i, prev, got)
		}
		prev = got
	}
}
