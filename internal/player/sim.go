// Package player is a headless stand-in for a video widget: it keeps a
// position that advances with the clock while playing.
package player

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/CoWatch/internal/client"
	"github.com/dkeye/CoWatch/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Clock clockwork.Clock
	// LoadDelay is how long Load takes before ready fires.
	LoadDelay time.Duration
	// ProgressPeriod paces progress events while playing.
	ProgressPeriod time.Duration
	EventBuffer    int
}

type Sim struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	opts   Options
	events chan client.PlayerEvent

	video     *domain.Video
	ready     bool
	playing   bool
	position  float64
	startedAt time.Time
	loading   clockwork.Timer
}

func New(opts Options) *Sim {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.LoadDelay <= 0 {
		opts.LoadDelay = 200 * time.Millisecond
	}
	if opts.ProgressPeriod <= 0 {
		opts.ProgressPeriod = 250 * time.Millisecond
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	return &Sim{
		clock:  opts.Clock,
		opts:   opts,
		events: make(chan client.PlayerEvent, opts.EventBuffer),
	}
}

func (p *Sim) Events() <-chan client.PlayerEvent { return p.events }

// emit never blocks; the consumer is the same loop that calls into Sim.
func (p *Sim) emit(ev client.PlayerEvent) {
	select {
	case p.events <- ev:
	default:
		log.Warn().Str("module", "player").Stringer("event", ev.Kind).Msg("event dropped, buffer full")
	}
}

func (p *Sim) positionLocked() float64 {
	if !p.playing {
		return p.position
	}
	return p.position + p.clock.Since(p.startedAt).Seconds()
}

func (p *Sim) Load(v domain.Video) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loading != nil {
		p.loading.Stop()
	}
	p.video = &v
	p.ready = false
	p.playing = false
	p.position = 0
	log.Debug().Str("module", "player").Str("video", string(v.ID)).Str("url", v.URL).Msg("loading")
	p.loading = p.clock.AfterFunc(p.opts.LoadDelay, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.video == nil || p.video.ID != v.ID || p.ready {
			return
		}
		p.ready = true
		p.loading = nil
		p.emit(client.PlayerEvent{Kind: client.EventReady})
	})
}

func (p *Sim) Unload() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loading != nil {
		p.loading.Stop()
		p.loading = nil
	}
	p.video = nil
	p.ready = false
	p.playing = false
	p.position = 0
}

// Play emits only when the player was paused, like a browser video element.
func (p *Sim) Play(cause client.Cause) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.video == nil || p.playing {
		return
	}
	p.startedAt = p.clock.Now()
	p.playing = true
	p.emit(client.PlayerEvent{Kind: client.EventPlay, Position: p.position, Cause: cause})
}

func (p *Sim) Pause(cause client.Cause) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.video == nil || !p.playing {
		return
	}
	p.position = p.positionLocked()
	p.playing = false
	p.emit(client.PlayerEvent{Kind: client.EventPause, Position: p.position, Cause: cause})
}

func (p *Sim) Seek(position float64, cause client.Cause) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.video == nil {
		return
	}
	if position < 0 {
		position = 0
	}
	p.position = position
	p.startedAt = p.clock.Now()
	p.emit(client.PlayerEvent{Kind: client.EventSeeked, Position: position, Cause: cause})
}

// End stops playback and reports that the video finished.
func (p *Sim) End() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.video == nil {
		return
	}
	p.position = p.positionLocked()
	p.playing = false
	p.emit(client.PlayerEvent{Kind: client.EventEnded, Position: p.position})
}

func (p *Sim) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *Sim) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *Sim) Video() (domain.Video, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.video == nil {
		return domain.Video{}, false
	}
	return *p.video, true
}

// Run emits progress events while playing until ctx ends.
func (p *Sim) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.opts.ProgressPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.mu.Lock()
			if p.playing {
				p.emit(client.PlayerEvent{Kind: client.EventProgress, Position: p.positionLocked()})
			}
			p.mu.Unlock()
		}
	}
}
