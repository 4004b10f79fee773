// Package ratelimit throttles credential endpoints: failed logins per account
// and password-reset requests per account and source IP.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config holds rate limit configuration.
type Config struct {
	MaxFailures int           // Failed logins per account before lockout
	Lockout     time.Duration // Lockout duration after max failures
	MaxIPHourly int           // Attempts per IP per hour

	// Clock for testing (nil uses real time)
	Clock Clock
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxFailures: 5,
		Lockout:     5 * time.Minute,
		MaxIPHourly: 30,
	}
}

type entry struct {
	count    int
	firstAt  time.Time
	lockedAt time.Time
}

// Limiter tracks failure counts per account and attempt counts per IP.
type Limiter struct {
	config *Config
	clock  Clock
	mu     sync.Mutex
	// Keyed by hash of identifier or IP
	byID map[string]*entry
	byIP map[string]*entry
}

func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	return &Limiter{
		config: cfg,
		clock:  clock,
		byID:   make(map[string]*entry),
		byIP:   make(map[string]*entry),
	}
}

// Allow reports whether an attempt for the identifier from the request's IP
// may proceed.
func (l *Limiter) Allow(identifier string, r *http.Request) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()

	id := hashKey(identifier)
	if e, ok := l.byID[id]; ok {
		if !e.lockedAt.IsZero() {
			if now.Sub(e.lockedAt) < l.config.Lockout {
				return false
			}
			delete(l.byID, id)
		}
	}

	ip := hashKey(clientIP(r))
	e, ok := l.byIP[ip]
	if !ok || now.Sub(e.firstAt) >= time.Hour {
		e = &entry{firstAt: now}
		l.byIP[ip] = e
	}
	e.count++
	return e.count <= l.config.MaxIPHourly
}

// RecordFailure counts a failed attempt for the identifier; reaching the
// failure cap starts the lockout.
func (l *Limiter) RecordFailure(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	id := hashKey(identifier)
	e, ok := l.byID[id]
	if !ok || now.Sub(e.firstAt) >= time.Hour {
		e = &entry{firstAt: now}
		l.byID[id] = e
	}
	e.count++
	if e.count >= l.config.MaxFailures && e.lockedAt.IsZero() {
		e.lockedAt = now
	}
}

// RecordSuccess clears the failure history for the identifier.
func (l *Limiter) RecordSuccess(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byID, hashKey(identifier))
}

func hashKey(s string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(s))))
	return hex.EncodeToString(sum[:])
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
