package signal

import (
	"sync"
	"time"

	"github.com/dkeye/CoWatch/internal/core"
	"github.com/jonboulle/clockwork"
)

// SessionRateLimiter is a sliding window of attempts per session.
type SessionRateLimiter struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	history  map[core.SessionID][]time.Time
	limit    int
	interval time.Duration
}

func NewSessionRateLimiter(clock clockwork.Clock, limit int, interval time.Duration) *SessionRateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SessionRateLimiter{
		clock:    clock,
		history:  make(map[core.SessionID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *SessionRateLimiter) Allow(sid core.SessionID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[sid]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[sid] = fresh
		return false
	}

	rl.history[sid] = append(fresh, now)
	return true
}

func (rl *SessionRateLimiter) Forget(sid core.SessionID) {
	rl.mu.Lock()
	delete(rl.history, sid)
	rl.mu.Unlock()
}
