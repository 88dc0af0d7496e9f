package notebook

import "testing"

func TestResolveTierPriority(t *testing.T) {
	rules := Rules{
		ByTag:    []Rule{{Tag: "research", NotebookRef: "Research"}},
		ByIntent: []Rule{{Intent: "critique", NotebookRef: "Critiques"}},
		ByDomain: []Rule{{Domain: "example.com", NotebookRef: "Example Reads"}},
	}

	tests := []struct {
		name       string
		tags       []string
		intent     string
		domain     string
		defaultRef string
		want       string
	}{
		{"tag beats domain", []string{"research"}, "", "example.com", "Default", "Research"},
		{"tag beats intent", []string{"research"}, "critique", "", "Default", "Research"},
		{"intent beats domain", nil, "critique", "example.com", "Default", "Critiques"},
		{"intent case-insensitive", nil, "CRITIQUE", "", "Default", "Critiques"},
		{"domain exact", nil, "", "example.com", "Default", "Example Reads"},
		{"domain subdomain suffix", nil, "", "blog.example.com", "Default", "Example Reads"},
		{"domain suffix overlap rejected", nil, "", "notexample.com", "Default", "Default"},
		{"configured default", nil, "", "other.org", "Default", "Default"},
		{"hard-coded fallback", nil, "", "other.org", "", FallbackRef},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rules.Resolve(tt.tags, tt.intent, tt.domain, tt.defaultRef)
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveFirstMatchingTagRuleWins(t *testing.T) {
	rules := Rules{
		ByTag: []Rule{
			{Tag: "go", NotebookRef: "Go Notes"},
			{Tag: "research", NotebookRef: "Research"},
		},
	}
	got := rules.Resolve([]string{"research", "go"}, "", "", "")
	if got != "Go Notes" {
		t.Errorf("Resolve() = %q, want first rule's notebook", got)
	}
}

func TestSanitizeDiscardsRulesWithoutRef(t *testing.T) {
	rules := Rules{
		ByTag: []Rule{
			{Tag: "broken"},
			{Tag: "ok", NotebookRef: "OK"},
		},
		ByIntent: []Rule{{Intent: "also broken"}},
		ByDomain: []Rule{{Domain: "example.com", NotebookRef: "D"}},
	}.Sanitize()

	if len(rules.ByTag) != 1 || rules.ByTag[0].Tag != "ok" {
		t.Errorf("ByTag = %+v, want only the valid rule", rules.ByTag)
	}
	if len(rules.ByIntent) != 0 {
		t.Errorf("ByIntent = %+v, want empty", rules.ByIntent)
	}
	if len(rules.ByDomain) != 1 {
		t.Errorf("ByDomain = %+v, want one rule", rules.ByDomain)
	}

	// An invalid rule must not shadow lower tiers even unsanitized.
	raw := Rules{
		ByTag:    []Rule{{Tag: "research"}},
		ByDomain: []Rule{{Domain: "example.com", NotebookRef: "D"}},
	}
	if got := raw.Resolve([]string{"research"}, "", "example.com", ""); got != "D" {
		t.Errorf("Resolve() = %q, invalid tag rule should be skipped", got)
	}
}
