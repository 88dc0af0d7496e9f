package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/veldtkamp/clipdock/internal/bundle"
)

// KeyFor computes the content-addressed fingerprint of an export: identical
// (url, normalized content, destination) inputs captured within the same
// UTC calendar day always yield the same key. The day bucket suppresses rapid
// double-submits while letting the same excerpt be re-exported later.
func KeyFor(b *bundle.Bundle, notebookRef string) string {
	h := sha256.New()
	h.Write([]byte(b.URL))
	h.Write([]byte{0})
	h.Write([]byte(normalizeContent(b.Content())))
	h.Write([]byte{0})
	h.Write([]byte(notebookRef))
	h.Write([]byte{0})
	h.Write([]byte(b.CapturedAt.UTC().Format("2006-01-02")))
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeContent lower-cases and collapses all whitespace runs so trivial
// formatting differences don't defeat deduplication.
func normalizeContent(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// KeyStore is the persisted fingerprint set.
type KeyStore interface {
	HasDedupeKey(key string) (bool, error)
	MarkDedupeKey(key string, at time.Time) error
}

// Guard checks and records export fingerprints against a persisted set.
type Guard struct {
	store KeyStore
	now   func() time.Time
}

// NewGuard creates a Guard over the given key store.
func NewGuard(store KeyStore) *Guard {
	return &Guard{store: store, now: time.Now}
}

// IsHit reports whether the key has already been marked. Pure read: it never
// mutates the set.
func (g *Guard) IsHit(key string) (bool, error) {
	return g.store.HasDedupeKey(key)
}

// Mark records the key. Idempotent by construction: marking a key that is
// already present is a no-op, so multiple call sites on the confirm path are
// safe.
func (g *Guard) Mark(key string) error {
	return g.store.MarkDedupeKey(key, g.now())
}
