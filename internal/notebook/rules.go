package notebook

import "strings"

// FallbackRef is the hard-coded destination used when no rule and no
// configured default applies.
const FallbackRef = "Inbox"

// Rule maps one matcher (tag, intent, or domain, depending on which list the
// rule lives in) to a destination notebook.
type Rule struct {
	Tag         string `json:"tag,omitempty"`
	Intent      string `json:"intent,omitempty"`
	Domain      string `json:"domain,omitempty"`
	NotebookRef string `json:"notebook_ref"`
}

// Rules holds the prioritized routing rules.
type Rules struct {
	ByTag    []Rule `json:"by_tag"`
	ByIntent []Rule `json:"by_intent"`
	ByDomain []Rule `json:"by_domain"`
}

// Sanitize discards rules lacking a notebook ref. Such rules are invalid and
// must never shadow a lower tier.
func (r Rules) Sanitize() Rules {
	keep := func(rules []Rule) []Rule {
		out := rules[:0:0]
		for _, rule := range rules {
			if rule.NotebookRef != "" {
				out = append(out, rule)
			}
		}
		return out
	}
	return Rules{
		ByTag:    keep(r.ByTag),
		ByIntent: keep(r.ByIntent),
		ByDomain: keep(r.ByDomain),
	}
}

// Resolve maps a bundle's routing signals to a notebook ref using strict tier
// priority: tag > intent > domain > configured default > FallbackRef. The
// first tier with a match wins and lower tiers are never consulted — a tag is
// the most explicit statement of intent, while one domain serves many
// thinking contexts.
func (r Rules) Resolve(tags []string, intent, domain, defaultRef string) string {
	tagSet := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		tagSet[t] = struct{}{}
	}
	for _, rule := range r.ByTag {
		if rule.NotebookRef == "" {
			continue
		}
		if _, ok := tagSet[rule.Tag]; ok {
			return rule.NotebookRef
		}
	}

	for _, rule := range r.ByIntent {
		if rule.NotebookRef == "" {
			continue
		}
		if rule.Intent != "" && strings.EqualFold(rule.Intent, intent) {
			return rule.NotebookRef
		}
	}

	for _, rule := range r.ByDomain {
		if rule.NotebookRef == "" {
			continue
		}
		if matchesDomain(domain, rule.Domain) {
			return rule.NotebookRef
		}
	}

	if defaultRef != "" {
		return defaultRef
	}
	return FallbackRef
}

// matchesDomain accepts an exact match or a subdomain of the rule's domain.
func matchesDomain(domain, ruleDomain string) bool {
	if ruleDomain == "" {
		return false
	}
	domain = strings.ToLower(domain)
	ruleDomain = strings.ToLower(ruleDomain)
	return domain == ruleDomain || strings.HasSuffix(domain, "."+ruleDomain)
}
