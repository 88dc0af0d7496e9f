package privacy

import "regexp"

// The detectors below are deliberately broad: they gate exports with a warning
// the user can bypass, so a false positive costs one extra click while a false
// negative leaks data. Precision belongs in a swappable classifier, not here.
var piiPatterns = []*regexp.Regexp{
	// Email addresses.
	regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
	// Phone-like: optional country code, 8+ digits with common separators.
	regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`),
	// National-ID style grouped digits (e.g. 123-45-6789).
	regexp.MustCompile(`\b\d{3}[- ]\d{2}[- ]\d{4}\b`),
	// Credit-card-like grouped digits.
	regexp.MustCompile(`\b\d{4}[- ]\d{4}[- ]\d{4}[- ]\d{2,4}\b`),
	// Passport-like: one or two letters followed by a digit run.
	regexp.MustCompile(`\b[A-Z]{1,2}\d{6,9}\b`),
	// Generic long digit runs.
	regexp.MustCompile(`\b\d{9,}\b`),
}

// ContainsPII reports whether text matches any of the heuristic PII detectors.
// It is advisory: callers must pair it with an explicit bypass path rather
// than hard-blocking on it.
func ContainsPII(text string) bool {
	if text == "" {
		return false
	}
	for _, re := range piiPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
