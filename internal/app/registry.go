package app

import (
	"time"

	"github.com/dkeye/CoWatch/internal/core"
	"github.com/dkeye/CoWatch/internal/domain"
	"github.com/rs/zerolog/log"
)

// Session is one live connection plus its observed-state cache.
type Session struct {
	ID          core.SessionID
	ClientToken string
	RemoteAddr  string
	Conn        core.SignalConnection
	ConnectedAt time.Time

	// Observed is written only from this session's own updateState reports.
	Observed *domain.PlaybackState
	Leader   bool
}

// Registry keeps sessions in arrival order. It is not safe for concurrent
// use; Room serializes every access.
type Registry struct {
	sessions []*Session
	byID     map[core.SessionID]*Session
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[core.SessionID]*Session)}
}

// Add appends s. The first session of an empty room becomes leader.
func (r *Registry) Add(s *Session) {
	s.Leader = len(r.sessions) == 0
	r.sessions = append(r.sessions, s)
	r.byID[s.ID] = s
	log.Info().Str("module", "app.registry").Str("sid", string(s.ID)).Bool("leader", s.Leader).Int("count", len(r.sessions)).Msg("session added")
}

func (r *Registry) Get(sid core.SessionID) (*Session, bool) {
	s, ok := r.byID[sid]
	return s, ok
}

// Remove drops sid. When the leader leaves, the remaining session with the
// lowest connect time is promoted and returned as promoted.
func (r *Registry) Remove(sid core.SessionID) (removed, promoted *Session, ok bool) {
	removed, ok = r.byID[sid]
	if !ok {
		return nil, nil, false
	}
	delete(r.byID, sid)
	for i, s := range r.sessions {
		if s.ID == sid {
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			break
		}
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Int("count", len(r.sessions)).Msg("session removed")

	if removed.Leader {
		promoted = r.elect()
	}
	return removed, promoted, true
}

func (r *Registry) elect() *Session {
	var next *Session
	for _, s := range r.sessions {
		if next == nil || s.ConnectedAt.Before(next.ConnectedAt) {
			next = s
		}
	}
	if next != nil {
		next.Leader = true
		log.Info().Str("module", "app.registry").Str("sid", string(next.ID)).Msg("leader promoted")
	}
	return next
}

func (r *Registry) Len() int { return len(r.sessions) }

func (r *Registry) Leader() *Session {
	for _, s := range r.sessions {
		if s.Leader {
			return s
		}
	}
	return nil
}

// Sessions returns the sessions in arrival order. The slice is a copy.
func (r *Registry) Sessions() []*Session {
	out := make([]*Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

// FirstObserved returns the observed state of the earliest-arrived session
// other than exclude that has reported one for video. Reports made while an
// earlier video was current are skipped.
func (r *Registry) FirstObserved(exclude core.SessionID, video domain.VideoID) (domain.PlaybackState, bool) {
	for _, s := range r.sessions {
		if s.ID == exclude || s.Observed == nil || s.Observed.VideoID != video {
			continue
		}
		return *s.Observed, true
	}
	return domain.PlaybackState{}, false
}
