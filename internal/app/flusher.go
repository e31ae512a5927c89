package app

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Flusher calls flush every period while started. Start and Stop are
// idempotent and never wait for an in-flight flush.
type Flusher struct {
	clock  clockwork.Clock
	period time.Duration
	flush  func()
	cancel context.CancelFunc
}

func NewFlusher(clock clockwork.Clock, period time.Duration, flush func()) *Flusher {
	return &Flusher{clock: clock, period: period, flush: flush}
}

func (f *Flusher) Start() {
	if f.cancel != nil || f.period <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	ticker := f.clock.NewTicker(f.period)
	log.Info().Str("module", "app.flusher").Dur("period", f.period).Msg("periodic flush started")

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				f.flush()
			}
		}
	}()
}

func (f *Flusher) Stop() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	f.cancel = nil
	log.Info().Str("module", "app.flusher").Msg("periodic flush stopped")
}

func (f *Flusher) Running() bool { return f.cancel != nil }
