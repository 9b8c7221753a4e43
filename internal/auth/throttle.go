package auth

import (
	"sync"
	"time"

	"github.com/frahmantamala/hospitality-access/internal"
	"golang.org/x/time/rate"
)

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LoginThrottle limits login attempts per username. Keys are normalized
// usernames whether or not an account exists, so the throttle does not reveal
// which names are real.
type LoginThrottle struct {
	mu        sync.Mutex
	entries   map[string]*throttleEntry
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewLoginThrottle(cfg internal.LoginThrottleConfig, now func() time.Time) *LoginThrottle {
	if now == nil {
		now = time.Now
	}
	return &LoginThrottle{
		entries: make(map[string]*throttleEntry),
		limit:   rate.Limit(cfg.PerMinute / 60),
		burst:   cfg.Burst,
		idleTTL: cfg.IdleTTL,
		now:     now,
	}
}

// Allow consumes one attempt for key.
func (t *LoginThrottle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.sweep(now)

	e, ok := t.entries[key]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Reset forgets key after a successful login.
func (t *LoginThrottle) Reset(key string) {
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
}

func (t *LoginThrottle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// sweep drops limiters idle for longer than idleTTL. Caller holds mu.
func (t *LoginThrottle) sweep(now time.Time) {
	if t.idleTTL <= 0 || now.Sub(t.lastSweep) < t.idleTTL {
		return
	}
	for k, e := range t.entries {
		if now.Sub(e.lastSeen) > t.idleTTL {
			delete(t.entries, k)
		}
	}
	t.lastSweep = now
}
