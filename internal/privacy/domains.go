package privacy

import (
	"net/url"
	"regexp"
	"strings"
)

// NormalizeDomain lower-cases a host, strips a leading "www.", and drops any
// port. It is the canonical form used for every domain comparison in the
// pipeline.
func NormalizeDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	return strings.TrimPrefix(host, "www.")
}

// IsSensitiveURL reports whether rawURL's host matches any of the configured
// sensitive-domain patterns. Patterns may be exact domains ("bank.example"),
// wildcard prefixes ("*.example.com", which matches the bare domain and every
// subdomain), or general globs ("mail.*.corp"). Matching is case-insensitive
// and ignores a leading "www." on both sides. Unparseable URLs match nothing.
func IsSensitiveURL(rawURL string, patterns []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	domain := NormalizeDomain(u.Host)

	for _, pat := range patterns {
		if matchDomain(domain, pat) {
			return true
		}
	}
	return false
}

func matchDomain(domain, pattern string) bool {
	pattern = NormalizeDomain(pattern)
	if pattern == "" {
		return false
	}

	// Wildcard prefix: "*.example.com" covers example.com and any subdomain.
	if rest, ok := strings.CutPrefix(pattern, "*."); ok && !strings.ContainsAny(rest, "*?") {
		return domain == rest || strings.HasSuffix(domain, "."+rest)
	}

	// General glob: translate to an anchored regex.
	if strings.ContainsAny(pattern, "*?") {
		re, err := globToRegexp(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(domain)
	}

	return domain == pattern
}

// globToRegexp translates a domain glob into an anchored regular expression:
// "*" becomes ".*", "?" becomes ".", everything else is quoted literally.
func globToRegexp(glob string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range glob {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}
