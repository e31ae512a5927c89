package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/CoWatch/internal/domain"
	"github.com/dkeye/CoWatch/internal/protocol"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrNotConnected = errors.New("not connected")

// Sender puts one message on the wire.
type Sender interface {
	Send(t protocol.Type, payload any) error
}

type MachineOptions struct {
	Clock        clockwork.Clock
	SettleDelay  time.Duration
	ReportPeriod time.Duration
	Notifier     Notifier
}

// Machine reconciles the local player with the room. It is driven from a
// single goroutine and is not safe for concurrent use.
type Machine struct {
	player Player
	out    Sender
	clock  clockwork.Clock
	notify Notifier
	opts   MachineOptions

	view  ClientView
	guard *EchoGuard

	settle     clockwork.Timer
	lastReport time.Time

	logger zerolog.Logger
}

func NewMachine(player Player, out Sender, opts MachineOptions) *Machine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 500 * time.Millisecond
	}
	if opts.ReportPeriod <= 0 {
		opts.ReportPeriod = time.Second
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{}
	}
	return &Machine{
		player: player,
		out:    out,
		clock:  opts.Clock,
		notify: opts.Notifier,
		opts:   opts,
		view:   ClientView{DelayThreshold: defaultDelayThreshold},
		guard:  NewEchoGuard(),
		logger: log.With().Str("module", "client.machine").Logger(),
	}
}

// View returns a copy of the current view.
func (m *Machine) View() ClientView { return m.view.clone() }

func (m *Machine) send(t protocol.Type, payload any) {
	if err := m.out.Send(t, payload); err != nil {
		m.logger.Debug().Err(err).Str("type", string(t)).Msg("send skipped")
	}
}

// HandleMessage applies one message from the server.
func (m *Machine) HandleMessage(env protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeInit:
		var d protocol.InitData
		if err := env.Decode(&d); err != nil {
			return err
		}
		m.onInit(d)
	case protocol.TypeSyncState:
		var d protocol.SyncStateData
		if err := env.Decode(&d); err != nil {
			return err
		}
		m.onSyncState(d)
	case protocol.TypePlay, protocol.TypePause, protocol.TypeSeek:
		var d protocol.PositionData
		if err := env.Decode(&d); err != nil {
			return err
		}
		m.onPositional(env.Type, d.Position)
	case protocol.TypeChangeVideo:
		var d protocol.ChangeVideoData
		if err := env.Decode(&d); err != nil {
			return err
		}
		m.onChangeVideo(d)
	case protocol.TypeNotification:
		var d protocol.NotificationData
		if err := env.Decode(&d); err != nil {
			return err
		}
		m.view.Users = d.Users
		m.notify.Notice(d.Message)
	case protocol.TypeNewVideo:
		var d protocol.NewVideoData
		if err := env.Decode(&d); err != nil {
			return err
		}
		m.view.addVideo(d.Video)
		m.notify.Notice(fmt.Sprintf("new video added: %s", d.Video.Name))
	case protocol.TypeVideoDeleted:
		var d protocol.VideoDeletedData
		if err := env.Decode(&d); err != nil {
			return err
		}
		m.view.removeVideo(d.VideoID)
	case protocol.TypeStop:
		m.onStop()
	case protocol.TypeRole:
		var d protocol.RoleData
		if err := env.Decode(&d); err != nil {
			return err
		}
		if d.IsLeader && !m.view.Leader {
			m.notify.Notice("you are now the leader")
		}
		m.view.Leader = d.IsLeader
	case protocol.TypeError:
		var d protocol.ErrorData
		if err := env.Decode(&d); err != nil {
			return err
		}
		m.logger.Warn().Str("code", d.Error).Msg("server rejected a command")
		m.notify.Notice("server error: " + d.Error)
	default:
		m.logger.Debug().Str("type", string(env.Type)).Msg("message ignored")
	}
	return nil
}

func (m *Machine) onInit(d protocol.InitData) {
	m.view.Leader = d.IsFirstUser
	m.view.Users = d.ConnectedUsers
	m.view.Videos = append([]domain.Video(nil), d.Videos...)
	m.view.AutoPlayNext = d.AutoPlayNext
	if d.DelayThreshold > 0 {
		m.view.DelayThreshold = time.Duration(d.DelayThreshold) * time.Millisecond
	}
	m.logger.Info().Bool("leader", d.IsFirstUser).Int("users", d.ConnectedUsers).Int("videos", len(d.Videos)).Msg("init")

	if d.CurrentVideo.HasVideo() {
		m.adopt(d.CurrentVideo, false)
	}
}

// onSyncState is ignored by the leader; its own player is the reference.
func (m *Machine) onSyncState(d protocol.SyncStateData) {
	if m.view.Leader {
		m.logger.Debug().Msg("leader ignores syncState")
		return
	}
	if !d.State().HasVideo() {
		return
	}
	m.adopt(d.State(), false)
}

func (m *Machine) onChangeVideo(d protocol.ChangeVideoData) {
	m.adopt(domain.PlaybackState{VideoID: d.VideoID, Position: d.Position, Playing: d.Playing}, true)
}

// adopt makes st the target. A different video (or reload) is loaded and st
// waits for ready; when the player was already showing something, the settle
// timer may apply it first. Whichever comes first wins, once.
func (m *Machine) adopt(st domain.PlaybackState, reload bool) {
	if !reload && st.VideoID == m.view.Current {
		if m.view.State.Loaded() {
			m.apply(st)
		} else {
			m.setPending(st)
		}
		return
	}

	video, ok := m.view.video(st.VideoID)
	if !ok {
		m.logger.Warn().Str("video", string(st.VideoID)).Msg("video not in catalog")
		return
	}
	wasLoaded := m.view.State.Loaded()
	m.stopSettle()
	m.view.Current = video.ID
	m.view.State = Loading
	m.player.Load(video)
	m.setPending(st)
	if wasLoaded {
		m.settle = m.clock.NewTimer(m.opts.SettleDelay)
	}
	m.logger.Debug().Str("video", string(video.ID)).Bool("settle", wasLoaded).Msg("loading")
}

func (m *Machine) setPending(st domain.PlaybackState) {
	m.view.Pending = &st
}

func (m *Machine) applyPending() {
	m.stopSettle()
	if m.view.Pending == nil {
		return
	}
	st := *m.view.Pending
	m.view.Pending = nil
	m.apply(st)
}

func (m *Machine) apply(st domain.PlaybackState) {
	m.player.Seek(st.Position, m.guard.Issue(EchoSeek))
	cause := m.guard.Issue(EchoPlayPause)
	if st.Playing {
		m.player.Play(cause)
		m.view.State = PlayingLocal
	} else {
		m.player.Pause(cause)
		m.view.State = PausedLocal
	}
	m.logger.Debug().Str("video", string(st.VideoID)).Float64("position", st.Position).Bool("playing", st.Playing).Msg("state applied")
}

func (m *Machine) onPositional(t protocol.Type, position float64) {
	if !m.view.State.Loaded() {
		// Not ready yet: fold the command into what ready will apply.
		if p := m.view.Pending; p != nil {
			p.Position = position
			switch t {
			case protocol.TypePlay:
				p.Playing = true
			case protocol.TypePause:
				p.Playing = false
			}
		}
		return
	}

	switch t {
	case protocol.TypePlay:
		m.player.Seek(compensate(position, m.view.NetworkDelay), m.guard.Issue(EchoSeek))
		m.player.Play(m.guard.Issue(EchoPlayPause))
		m.view.State = PlayingLocal
	case protocol.TypePause:
		m.player.Seek(position, m.guard.Issue(EchoSeek))
		m.player.Pause(m.guard.Issue(EchoPlayPause))
		m.view.State = PausedLocal
	case protocol.TypeSeek:
		m.player.Seek(position, m.guard.Issue(EchoSeek))
	}
}

func (m *Machine) onStop() {
	m.stopSettle()
	m.view.Current = ""
	m.view.Pending = nil
	m.view.State = Idle
	m.player.Unload()
	m.notify.Notice("the current video was deleted")
}

// SettleC fires when a pending state should be applied without waiting for
// ready. Nil when nothing is armed.
func (m *Machine) SettleC() <-chan time.Time {
	if m.settle == nil {
		return nil
	}
	return m.settle.Chan()
}

func (m *Machine) OnSettle() {
	m.settle = nil
	m.applyPending()
}

func (m *Machine) stopSettle() {
	if m.settle != nil {
		m.settle.Stop()
		m.settle = nil
	}
}

// HandlePlayerEvent turns player events into outbound messages, dropping
// the ones that echo a remote command.
func (m *Machine) HandlePlayerEvent(ev PlayerEvent) {
	switch ev.Kind {
	case EventReady:
		if m.view.Current == "" {
			return
		}
		if !m.view.State.Loaded() {
			m.view.State = Ready
		}
		m.send(protocol.TypePlayerReady, protocol.ReadyData{})
		m.applyPending()
	case EventPlay:
		if m.view.State.Loaded() {
			m.view.State = PlayingLocal
		}
		if !m.guard.Consume(EchoPlayPause, ev.Cause) {
			m.send(protocol.TypePlay, protocol.PositionData{Position: ev.Position})
		}
		m.report()
	case EventPause:
		if m.view.State.Loaded() {
			m.view.State = PausedLocal
		}
		if !m.guard.Consume(EchoPlayPause, ev.Cause) {
			m.send(protocol.TypePause, protocol.PositionData{Position: ev.Position})
		}
		m.report()
	case EventSeeked:
		if !m.guard.Consume(EchoSeek, ev.Cause) {
			m.send(protocol.TypeSeek, protocol.PositionData{Position: ev.Position})
		}
		m.report()
	case EventProgress:
		m.report()
	case EventEnded:
		if m.view.State.Loaded() {
			m.view.State = PausedLocal
		}
		m.playNext()
	}
}

// playNext asks for the following catalog entry. Only the leader asks so
// the room gets one request instead of one per viewer.
func (m *Machine) playNext() {
	if !m.view.AutoPlayNext || !m.view.Leader {
		return
	}
	next, ok := m.view.next(m.view.Current)
	if !ok {
		return
	}
	m.logger.Info().Str("video", string(next.ID)).Msg("auto-play next")
	m.ChangeVideo(next.ID)
}

// ReportTick is the fixed-interval checkpoint.
func (m *Machine) ReportTick() { m.report() }

func (m *Machine) report() {
	if !m.view.State.Loaded() || m.view.Current == "" {
		return
	}
	now := m.clock.Now()
	if !m.lastReport.IsZero() && now.Sub(m.lastReport) < m.opts.ReportPeriod {
		return
	}
	m.lastReport = now
	m.send(protocol.TypeUpdateState, protocol.UpdateStateData{
		Position: m.player.Position(),
		Playing:  m.player.Playing(),
	})
}

// ObserveDelay records a measured round trip and returns its tier.
func (m *Machine) ObserveDelay(d time.Duration) Tier {
	m.view.NetworkDelay = d
	return ClassifyDelay(d, m.view.DelayThreshold)
}

// OnReconnected asks for a resync when the player already has a video.
func (m *Machine) OnReconnected() {
	if m.view.State.Loaded() {
		m.send(protocol.TypePlayerReady, protocol.ReadyData{})
	}
}

func (m *Machine) ChangeVideo(id domain.VideoID) {
	start := 0.0
	m.send(protocol.TypeChangeVideo, protocol.ChangeVideoRequest{VideoID: id, StartPosition: &start})
}

// Leave reports the local position before an orderly shutdown.
func (m *Machine) Leave() {
	if m.view.Current == "" {
		return
	}
	m.send(protocol.TypeUserLeave, protocol.PositionData{Position: m.player.Position()})
}
