package privacy

import "testing"

func TestIsSensitiveURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		patterns []string
		want     bool
	}{
		{"exact match", "https://bank.example/login", []string{"bank.example"}, true},
		{"exact match case-insensitive", "https://BANK.example/login", []string{"Bank.Example"}, true},
		{"www stripped from url", "https://www.bank.example/x", []string{"bank.example"}, true},
		{"www stripped from pattern", "https://bank.example/x", []string{"www.bank.example"}, true},
		{"wildcard matches subdomain", "https://sub.example.com/x", []string{"*.example.com"}, true},
		{"wildcard matches bare domain", "https://example.com/x", []string{"*.example.com"}, true},
		{"wildcard matches deep subdomain", "https://a.b.example.com/x", []string{"*.example.com"}, true},
		{"wildcard rejects sibling", "https://example.org/x", []string{"*.example.com"}, false},
		{"wildcard rejects suffix overlap", "https://notexample.com/x", []string{"*.example.com"}, false},
		{"general glob", "https://mail.eu.corp/x", []string{"mail.*.corp"}, true},
		{"general glob miss", "https://mail.corp/x", []string{"mail.?.corp"}, false},
		{"no patterns", "https://anything.example/x", nil, false},
		{"unparseable url", "::not a url::", []string{"*.example.com"}, false},
		{"second pattern matches", "https://health.example/x", []string{"bank.example", "health.example"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSensitiveURL(tt.url, tt.patterns); got != tt.want {
				t.Errorf("IsSensitiveURL(%q, %v) = %v, want %v", tt.url, tt.patterns, got, tt.want)
			}
		})
	}
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Example.COM", "example.com"},
		{"www.example.com", "example.com"},
		{"example.com:8080", "example.com"},
		{" example.com ", "example.com"},
	}
	for _, tt := range tests {
		if got := NormalizeDomain(tt.in); got != tt.want {
			t.Errorf("NormalizeDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
