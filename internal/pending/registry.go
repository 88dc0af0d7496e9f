package pending

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/veldtkamp/clipdock/internal/storage"
)

// DefaultTTL bounds how long a confirmation round trip may stay open.
const DefaultTTL = 120 * time.Second

// ErrExpired is returned when a pending entry is looked up past its TTL.
var ErrExpired = errors.New("pending confirmation expired")

// Store is the persisted pending-confirmation list.
type Store interface {
	PutPending(p storage.PendingJob) error
	PeekPending(nonce string) (storage.PendingJob, error)
	TakePending(nonce string) (storage.PendingJob, error)
	DeleteExpiredPending(now time.Time) (int, error)
}

// Registry correlates short-lived UI confirmation round trips. Entries are
// keyed by a high-entropy nonce so a stale or forged confirmation cannot
// resolve the wrong job. It is deliberately decoupled from the durable job
// queue: abandoned entries are dropped, never retried.
type Registry struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewRegistry creates a Registry. ttl <= 0 defaults to DefaultTTL.
func NewRegistry(store Store, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{store: store, ttl: ttl, now: time.Now}
}

// Register stores a new entry carrying the caller payload and returns it with
// a fresh nonce.
func (r *Registry) Register(jobID, payloadJSON string) (storage.PendingJob, error) {
	nonce, err := newNonce()
	if err != nil {
		return storage.PendingJob{}, err
	}
	now := r.now().UTC()
	p := storage.PendingJob{
		Nonce:       nonce,
		JobID:       jobID,
		PayloadJSON: payloadJSON,
		CreatedAt:   now,
		ExpiresAt:   now.Add(r.ttl),
	}
	if err := r.store.PutPending(p); err != nil {
		return storage.PendingJob{}, fmt.Errorf("registering pending confirmation: %w", err)
	}
	return p, nil
}

// Take removes and returns the entry exactly once. A second take, an unknown
// nonce, or an already-expired entry all fail: expiry is observed lazily here
// rather than by a live timer, and an expired entry is consumed so it cannot
// be replayed.
func (r *Registry) Take(nonce string) (storage.PendingJob, error) {
	p, err := r.store.TakePending(nonce)
	if err != nil {
		return storage.PendingJob{}, err
	}
	if IsExpired(p, r.now()) {
		return storage.PendingJob{}, ErrExpired
	}
	return p, nil
}

// Peek reads an entry without consuming it.
func (r *Registry) Peek(nonce string) (storage.PendingJob, error) {
	return r.store.PeekPending(nonce)
}

// PruneExpired drops every entry past its TTL and returns how many were
// removed.
func (r *Registry) PruneExpired() (int, error) {
	return r.store.DeleteExpiredPending(r.now())
}

// IsExpired is a pure time comparison: an entry is expired strictly after its
// expires_at instant.
func IsExpired(p storage.PendingJob, now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// newNonce returns 32 hex characters of cryptographic randomness.
func newNonce() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
