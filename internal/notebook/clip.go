package notebook

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/veldtkamp/clipdock/internal/bundle"
)

const defaultMaxChars = 4000

// FormatClip renders a bundle into the text payload delivered to the external
// notebook. The result never exceeds maxChars (default 4000 when <= 0);
// truncation lands on a rune boundary and appends an ellipsis.
func FormatClip(b *bundle.Bundle, maxChars int) string {
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}

	var sb strings.Builder
	if b.Title != "" {
		fmt.Fprintf(&sb, "%s\n", b.Title)
	}
	fmt.Fprintf(&sb, "%s\n", b.URL)
	fmt.Fprintf(&sb, "Captured %s · %s\n", b.CapturedAt.Format("2006-01-02 15:04"), b.ReadingMode)
	if len(b.Tags) > 0 {
		fmt.Fprintf(&sb, "Tags: %s\n", strings.Join(b.Tags, ", "))
	}

	if content := b.Content(); content != "" {
		sb.WriteString("\n")
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	if b.AtomicThought != "" {
		fmt.Fprintf(&sb, "\n> %s\n", b.AtomicThought)
	}

	return truncate(sb.String(), maxChars)
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	if maxChars <= 1 {
		return "…"
	}
	return strings.TrimRight(string(runes[:maxChars-1]), " \n\t") + "…"
}

// DeepLink builds the destination URL the UI opens to hand the clip to the
// external notebook app. Pure: baseURL and ref fully determine the result.
func DeepLink(notebookRef, baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	return base + "/notebooks/" + url.PathEscape(notebookRef)
}
