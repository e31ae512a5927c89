package client

import (
	"errors"
	"time"
)

var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

const (
	backoffBase = time.Second
	backoffMax  = 30 * time.Second
)

// Backoff yields min(base*2^attempt, max) until MaxAttempts delays were
// handed out.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
	attempt     int
}

func NewBackoff(maxAttempts int) *Backoff {
	return &Backoff{Base: backoffBase, Max: backoffMax, MaxAttempts: maxAttempts}
}

// Next returns the delay before the next attempt and counts it. ok is false
// once the budget is spent.
func (b *Backoff) Next() (delay time.Duration, ok bool) {
	if b.attempt >= b.MaxAttempts {
		return 0, false
	}
	delay = b.Max
	if b.attempt < 32 {
		if d := b.Base << b.attempt; d > 0 && d < b.Max {
			delay = d
		}
	}
	b.attempt++
	return delay, true
}

func (b *Backoff) Attempt() int { return b.attempt }

func (b *Backoff) Reset() { b.attempt = 0 }
