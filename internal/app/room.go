package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/CoWatch/internal/core"
	"github.com/dkeye/CoWatch/internal/domain"
	"github.com/dkeye/CoWatch/internal/protocol"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Clock              clockwork.Clock
	Policy             Policy
	FlushPeriod        time.Duration
	Notifications      bool
	AutoPlayNext       bool
	RejectUnknownVideo bool
	// DelayThreshold is advertised to viewers as the poor-latency boundary.
	DelayThreshold time.Duration
}

// ConnInfo is what the transport knows about a new connection.
type ConnInfo struct {
	ClientToken string
	RemoteAddr  string
}

// Room is the single shared room. It owns the authoritative PlaybackState
// and the session registry; mu serializes every mutation together with
// the messages it produces.
type Room struct {
	mu      sync.Mutex
	state   domain.PlaybackState
	reg     *Registry
	flusher *Flusher
	catalog core.Catalog
	store   core.StateStore
	clock   clockwork.Clock
	policy  Policy
	opts    Options
	logger  zerolog.Logger
}

// NewRoom restores the last saved state from store.
func NewRoom(ctx context.Context, catalog core.Catalog, store core.StateStore, opts Options) (*Room, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Policy == nil {
		opts.Policy = DropPolicy{}
	}
	state, err := store.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load playback state: %w", err)
	}
	r := &Room{
		state:   state,
		reg:     NewRegistry(),
		catalog: catalog,
		store:   store,
		clock:   opts.Clock,
		policy:  opts.Policy,
		opts:    opts,
		logger:  log.With().Str("module", "app.room").Logger(),
	}
	r.flusher = NewFlusher(opts.Clock, opts.FlushPeriod, r.Flush)
	r.logger.Info().Str("video", string(state.VideoID)).Float64("position", state.Position).Msg("room restored")
	return r, nil
}

// Connect registers conn and sends it the bootstrap messages. A non-leader
// joining while a video is selected also gets an immediate syncState.
func (r *Room) Connect(ctx context.Context, conn core.SignalConnection, info ConnInfo) *Session {
	videos, err := r.catalog.List(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("list catalog for init")
		videos = []domain.Video{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Session{
		ID:          core.SessionID(uuid.NewString()),
		ClientToken: info.ClientToken,
		RemoteAddr:  info.RemoteAddr,
		Conn:        conn,
		ConnectedAt: r.clock.Now(),
	}
	r.reg.Add(s)
	if r.reg.Len() == 1 {
		r.flusher.Start()
	}

	r.sendTo(s, protocol.TypeInit, protocol.InitData{
		Videos:         videos,
		CurrentVideo:   r.state,
		ConnectedUsers: r.reg.Len(),
		IsFirstUser:    s.Leader,
		AutoPlayNext:   r.opts.AutoPlayNext,
		DelayThreshold: r.opts.DelayThreshold.Milliseconds(),
	})
	if !s.Leader && r.state.HasVideo() {
		r.sendTo(s, protocol.TypeSyncState, r.syncData(r.state))
	}

	if r.opts.Notifications {
		r.broadcast(protocol.TypeNotification, protocol.NotificationData{
			Message: fmt.Sprintf("viewer from %s joined, %d online", info.RemoteAddr, r.reg.Len()),
			Users:   r.reg.Len(),
		}, s.ID)
	}
	r.logger.Info().Str("sid", string(s.ID)).Str("ip", info.RemoteAddr).Bool("leader", s.Leader).Int("count", r.reg.Len()).Msg("connected")
	return s
}

// Disconnect removes sid. The last one out flushes the state and stops the
// periodic flush; otherwise the remaining sessions learn the new count.
func (r *Room) Disconnect(ctx context.Context, sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed, promoted, ok := r.reg.Remove(sid)
	if !ok {
		return
	}
	r.logger.Info().Str("sid", string(sid)).Str("ip", removed.RemoteAddr).Int("count", r.reg.Len()).Msg("disconnected")

	if r.reg.Len() == 0 {
		r.logger.Info().Msg("room empty, saving playback state")
		r.saveLocked(ctx)
		r.flusher.Stop()
		return
	}
	if promoted != nil {
		r.sendTo(promoted, protocol.TypeRole, protocol.RoleData{IsLeader: true})
	}
	r.broadcast(protocol.TypeNotification, protocol.NotificationData{
		Message: fmt.Sprintf("viewer from %s left, %d online", removed.RemoteAddr, r.reg.Len()),
		Users:   r.reg.Len(),
	}, "")
}

// Flush saves the current state. It is the periodic flush callback.
func (r *Room) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveLocked(context.Background())
}

// Close stops the periodic flush and saves one last time.
func (r *Room) Close(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flusher.Stop()
	r.saveLocked(ctx)
}

func (r *Room) Snapshot() domain.PlaybackState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Room) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reg.Len()
}

// IsLeader reports whether sid is the current leader.
func (r *Room) IsLeader(sid core.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.reg.Leader()
	return l != nil && l.ID == sid
}

func (r *Room) SetNotifications(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts.Notifications = on
}

func (r *Room) saveLocked(ctx context.Context) {
	if err := r.store.SaveState(ctx, r.state); err != nil {
		r.logger.Error().Err(err).Msg("save playback state")
		return
	}
	r.logger.Debug().Str("video", string(r.state.VideoID)).Float64("position", r.state.Position).Msg("playback state saved")
}

func (r *Room) syncData(s domain.PlaybackState) protocol.SyncStateData {
	return protocol.SyncStateData{
		ID:        s.VideoID,
		Position:  s.Position,
		Playing:   s.Playing,
		Timestamp: r.clock.Now().UnixMilli(),
	}
}

func (r *Room) sendTo(s *Session, t protocol.Type, payload any) {
	frame, err := protocol.Encode(t, payload)
	if err != nil {
		r.logger.Error().Err(err).Msg("encode message")
		return
	}
	if err := s.Conn.TrySend(frame); err != nil {
		r.onSendFailure(s, err)
	}
}

// broadcast delivers to every session except exclude (empty for all).
func (r *Room) broadcast(t protocol.Type, payload any, exclude core.SessionID) core.PublishResult {
	frame, err := protocol.Encode(t, payload)
	if err != nil {
		r.logger.Error().Err(err).Msg("encode broadcast")
		return core.PublishResult{}
	}
	return r.broadcastFrame(frame, exclude)
}

func (r *Room) broadcastFrame(frame core.Frame, exclude core.SessionID) core.PublishResult {
	res, failed := fanout(r.reg.Sessions(), frame, exclude)
	for _, f := range failed {
		r.onSendFailure(f.session, f.err)
	}
	return res
}

func (r *Room) onSendFailure(s *Session, err error) {
	switch r.policy.OnBackPressure(s, err) {
	case KickMember:
		r.logger.Warn().Err(err).Str("sid", string(s.ID)).Msg("kicking slow session")
		s.Conn.Close()
	case DropFrame:
		r.logger.Warn().Err(err).Str("sid", string(s.ID)).Msg("frame dropped")
	case NoAction:
		r.logger.Debug().Err(err).Str("sid", string(s.ID)).Msg("send failed")
	}
}
