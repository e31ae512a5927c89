package app

import (
	"context"

	"github.com/dkeye/CoWatch/internal/core"
	"github.com/dkeye/CoWatch/internal/domain"
	"github.com/dkeye/CoWatch/internal/protocol"
)

// Play, Pause and Seek are positional nudges: last write wins by arrival
// and the identical command goes to everyone but the origin.

func (r *Room) Play(sid core.SessionID, position float64) error {
	return r.relay(sid, protocol.TypePlay, position, func(s *domain.PlaybackState) {
		s.Playing = true
		s.Position = position
	})
}

func (r *Room) Pause(sid core.SessionID, position float64) error {
	return r.relay(sid, protocol.TypePause, position, func(s *domain.PlaybackState) {
		s.Playing = false
		s.Position = position
	})
}

func (r *Room) Seek(sid core.SessionID, position float64) error {
	return r.relay(sid, protocol.TypeSeek, position, func(s *domain.PlaybackState) {
		s.Position = position
	})
}

func (r *Room) relay(sid core.SessionID, t protocol.Type, position float64, mutate func(*domain.PlaybackState)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reg.Get(sid); !ok {
		return ErrNoSession
	}
	mutate(&r.state)
	res := r.broadcast(t, protocol.PositionData{Position: position}, sid)
	r.logger.Debug().Str("sid", string(sid)).Str("type", string(t)).Float64("position", position).Int("sent_to", res.SendTo).Msg("relayed")
	return nil
}

// ChangeVideo resolves the id against the catalog and, on success, resets
// the state to the start position and tells every session, the origin
// included. An unknown id changes nothing. The lookup runs under the room
// lock, so a concurrent DeleteVideo either rejects the change or sees it.
func (r *Room) ChangeVideo(ctx context.Context, sid core.SessionID, req protocol.ChangeVideoRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.reg.Get(sid)
	if !ok {
		return ErrNoSession
	}
	video, found, err := r.catalog.Lookup(ctx, req.VideoID)
	if err != nil {
		return err
	}
	if !found {
		if r.opts.RejectUnknownVideo {
			r.sendTo(s, protocol.TypeError, protocol.ErrorData{Error: protocol.ErrCodeVideoNotFound})
		}
		return ErrVideoNotFound
	}

	start := 0.0
	if req.StartPosition != nil {
		start = *req.StartPosition
	}
	r.state = domain.PlaybackState{VideoID: video.ID, Position: start, Playing: true}
	r.broadcast(protocol.TypeChangeVideo, protocol.ChangeVideoData{
		VideoID:  video.ID,
		Position: start,
		Playing:  true,
	}, "")
	r.logger.Info().Str("sid", string(sid)).Str("video", string(video.ID)).Str("name", video.Name).Float64("position", start).Msg("video changed")
	return nil
}

// UpdateState caches the origin's own report. It is never relayed.
func (r *Room) UpdateState(sid core.SessionID, d protocol.UpdateStateData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.reg.Get(sid)
	if !ok {
		return ErrNoSession
	}
	s.Observed = &domain.PlaybackState{
		VideoID:  r.state.VideoID,
		Position: d.Position,
		Playing:  d.Playing,
	}
	return nil
}

// PlayerReady answers a non-leader's ready notice with a syncState built
// from the first other session that reported a live state, falling back
// to the authoritative state.
func (r *Room) PlayerReady(sid core.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.reg.Get(sid)
	if !ok {
		return ErrNoSession
	}
	if s.Leader || !r.state.HasVideo() {
		return nil
	}
	src, live := r.reg.FirstObserved(sid, r.state.VideoID)
	if !live {
		src = r.state
	}
	r.sendTo(s, protocol.TypeSyncState, r.syncData(src))
	r.logger.Debug().Str("sid", string(sid)).Bool("live", live).Float64("position", src.Position).Msg("resync sent")
	return nil
}

// Heartbeat replies with the server clock and touches no state.
func (r *Room) Heartbeat(sid core.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.reg.Get(sid)
	if !ok {
		return ErrNoSession
	}
	r.sendTo(s, protocol.TypeHeartbeat, protocol.HeartbeatData{Timestamp: r.clock.Now().UnixMilli()})
	return nil
}

// UserLeave records the leaving viewer's position without a broadcast.
func (r *Room) UserLeave(sid core.SessionID, position float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reg.Get(sid); !ok {
		return ErrNoSession
	}
	r.state.Position = position
	r.logger.Info().Str("sid", string(sid)).Float64("position", position).Msg("viewer leaving, position kept")
	return nil
}
