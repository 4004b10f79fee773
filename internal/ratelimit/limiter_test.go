package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestLimiter(clock Clock) *Limiter {
	cfg := DefaultConfig()
	cfg.Clock = clock
	return New(cfg)
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)}
	limiter := newTestLimiter(clock)
	r := httptest.NewRequest("POST", "/login", nil)

	for i := 0; i < 5; i++ {
		if !limiter.Allow("user@example.com", r) {
			t.Fatalf("attempt %d blocked before lockout", i+1)
		}
		limiter.RecordFailure("user@example.com")
	}

	if limiter.Allow("user@example.com", r) {
		t.Errorf("account not locked after max failures")
	}

	// Other accounts from the same IP stay allowed.
	if !limiter.Allow("someone-else@example.com", r) {
		t.Errorf("lockout leaked to another account")
	}
}

func TestLockoutExpires(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)}
	limiter := newTestLimiter(clock)
	r := httptest.NewRequest("POST", "/login", nil)

	for i := 0; i < 5; i++ {
		limiter.RecordFailure("user@example.com")
	}
	if limiter.Allow("user@example.com", r) {
		t.Fatalf("expected lockout")
	}

	clock.now = clock.now.Add(6 * time.Minute)
	if !limiter.Allow("user@example.com", r) {
		t.Errorf("lockout did not expire")
	}
}

func TestSuccessClearsFailures(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)}
	limiter := newTestLimiter(clock)
	r := httptest.NewRequest("POST", "/login", nil)

	for i := 0; i < 4; i++ {
		limiter.RecordFailure("user@example.com")
	}
	limiter.RecordSuccess("user@example.com")
	limiter.RecordFailure("user@example.com")

	if !limiter.Allow("user@example.com", r) {
		t.Errorf("single failure after success must not lock")
	}
}

func TestPerIPHourlyCap(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)}
	limiter := newTestLimiter(clock)
	r := httptest.NewRequest("POST", "/login", nil)
	r.RemoteAddr = "203.0.113.9:4242"

	for i := 0; i < 30; i++ {
		// Distinct identifiers so only the IP counter applies.
		if !limiter.Allow("", r) {
			t.Fatalf("attempt %d blocked before the IP cap", i+1)
		}
	}
	if limiter.Allow("", r) {
		t.Errorf("IP cap not enforced")
	}

	// The counter resets after an hour.
	clock.now = clock.now.Add(61 * time.Minute)
	if !limiter.Allow("", r) {
		t.Errorf("IP counter did not reset")
	}
}

func TestClientIPFromForwardedHeader(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)}
	limiter := newTestLimiter(clock)

	first := httptest.NewRequest("POST", "/login", nil)
	first.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	for i := 0; i < 30; i++ {
		limiter.Allow("", first)
	}
	if limiter.Allow("", first) {
		t.Fatalf("forwarded IP not capped")
	}

	other := httptest.NewRequest("POST", "/login", nil)
	other.Header.Set("X-Forwarded-For", "198.51.100.8")
	if !limiter.Allow("", other) {
		t.Errorf("different forwarded IP blocked")
	}
}
