package pending

import (
	"errors"
	"testing"
	"time"

	"github.com/veldtkamp/clipdock/internal/storage"
)

func openTestRegistry(t *testing.T, ttl time.Duration) (*Registry, *time.Time) {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	clock := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	r := NewRegistry(s, ttl)
	r.now = func() time.Time { return clock }
	return r, &clock
}

func TestRegisterIssuesUniqueNonces(t *testing.T) {
	r, clock := openTestRegistry(t, 0)

	p1, err := r.Register("job-1", `{"url":"https://example.com"}`)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	p2, err := r.Register("job-2", `{}`)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if len(p1.Nonce) != 32 {
		t.Errorf("nonce length = %d, want 32 hex chars", len(p1.Nonce))
	}
	if p1.Nonce == p2.Nonce {
		t.Error("nonces must be unique")
	}
	if want := clock.Add(DefaultTTL); !p1.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want created + default TTL %v", p1.ExpiresAt, want)
	}
}

func TestTakeConsumesExactlyOnce(t *testing.T) {
	r, _ := openTestRegistry(t, 0)

	p, err := r.Register("job-1", `{"url":"https://example.com"}`)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := r.Take(p.Nonce)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if got.JobID != "job-1" || got.PayloadJSON != p.PayloadJSON {
		t.Errorf("Take returned %+v", got)
	}

	if _, err := r.Take(p.Nonce); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second Take err = %v, want ErrNotFound", err)
	}
}

func TestTakeUnknownNonce(t *testing.T) {
	r, _ := openTestRegistry(t, 0)
	if _, err := r.Take("deadbeefdeadbeefdeadbeefdeadbeef"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Take err = %v, want ErrNotFound", err)
	}
}

func TestTakeHonorsTTLBoundary(t *testing.T) {
	r, clock := openTestRegistry(t, 120*time.Second)

	// Just inside the TTL the entry is still redeemable.
	p, err := r.Register("job-1", `{}`)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	*clock = clock.Add(119 * time.Second)
	if _, err := r.Take(p.Nonce); err != nil {
		t.Errorf("Take at +119s: %v", err)
	}

	// Just past it the entry is expired, and consumed by the failed take.
	p, err = r.Register("job-2", `{}`)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	*clock = clock.Add(121 * time.Second)
	if _, err := r.Take(p.Nonce); !errors.Is(err, ErrExpired) {
		t.Errorf("Take at +121s err = %v, want ErrExpired", err)
	}
	if _, err := r.Take(p.Nonce); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expired entry should have been consumed, err = %v", err)
	}
}

func TestTakeExactlyAtExpiry(t *testing.T) {
	r, clock := openTestRegistry(t, 120*time.Second)

	p, err := r.Register("job-1", `{}`)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Expiry is strict: at exactly expires_at the entry is still valid.
	*clock = clock.Add(120 * time.Second)
	if _, err := r.Take(p.Nonce); err != nil {
		t.Errorf("Take at exactly +TTL: %v", err)
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	r, _ := openTestRegistry(t, 0)

	p, err := r.Register("job-1", `{}`)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := r.Peek(p.Nonce); err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if _, err := r.Take(p.Nonce); err != nil {
		t.Errorf("Take after Peek: %v", err)
	}
}

func TestPruneExpired(t *testing.T) {
	r, clock := openTestRegistry(t, 60*time.Second)

	stale, err := r.Register("job-1", `{}`)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	*clock = clock.Add(61 * time.Second)
	fresh, err := r.Register("job-2", `{}`)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	n, err := r.PruneExpired()
	if err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("PruneExpired removed %d, want 1", n)
	}
	if _, err := r.Peek(stale.Nonce); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("stale entry should be gone, err = %v", err)
	}
	if _, err := r.Peek(fresh.Nonce); err != nil {
		t.Errorf("fresh entry should survive: %v", err)
	}
}

func TestIsExpired(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	p := storage.PendingJob{ExpiresAt: at}

	if IsExpired(p, at.Add(-time.Second)) {
		t.Error("entry before expires_at should not be expired")
	}
	if IsExpired(p, at) {
		t.Error("entry exactly at expires_at should not be expired")
	}
	if !IsExpired(p, at.Add(time.Second)) {
		t.Error("entry past expires_at should be expired")
	}
}
