package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/CoWatch/internal/protocol"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// Conn is one live transport to the server.
type Conn interface {
	Read() ([]byte, error)
	Write(frame []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnected
	StateReconnecting
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

type SupervisorOptions struct {
	URL             string
	Clock           clockwork.Clock
	HeartbeatPeriod time.Duration
	ReportPeriod    time.Duration
	SettleDelay     time.Duration
	MaxAttempts     int
	Notifier        Notifier
}

type inbound struct {
	gen  uint64
	data []byte
	err  error
}

// Supervisor owns the transport and runs the viewer's event loop. Server
// frames, player events, timers and user commands are all handled on the
// goroutine that called Run.
type Supervisor struct {
	dialer  Dialer
	events  <-chan PlayerEvent
	opts    SupervisorOptions
	clock   clockwork.Clock
	notify  Notifier
	machine *Machine
	backoff *Backoff

	conn          Conn
	gen           uint64
	state         ConnState
	retry         clockwork.Timer
	lastHeartbeat time.Time

	inbox    chan inbound
	commands chan func(*Machine)
	readers  conc.WaitGroup

	logger zerolog.Logger
}

func NewSupervisor(dialer Dialer, player Player, events <-chan PlayerEvent, opts SupervisorOptions) *Supervisor {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.HeartbeatPeriod <= 0 {
		opts.HeartbeatPeriod = 5 * time.Second
	}
	if opts.ReportPeriod <= 0 {
		opts.ReportPeriod = time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{}
	}
	s := &Supervisor{
		dialer:   dialer,
		events:   events,
		opts:     opts,
		clock:    opts.Clock,
		notify:   opts.Notifier,
		backoff:  NewBackoff(opts.MaxAttempts),
		inbox:    make(chan inbound),
		commands: make(chan func(*Machine)),
		logger:   log.With().Str("module", "client.supervisor").Logger(),
	}
	s.machine = NewMachine(player, s, MachineOptions{
		Clock:        opts.Clock,
		SettleDelay:  opts.SettleDelay,
		ReportPeriod: opts.ReportPeriod,
		Notifier:     opts.Notifier,
	})
	return s
}

// Send implements Sender over the current connection.
func (s *Supervisor) Send(t protocol.Type, payload any) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	frame, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}
	if err := s.conn.Write(frame); err != nil {
		return fmt.Errorf("write %s: %w", t, err)
	}
	return nil
}

// Do runs fn on the event loop.
func (s *Supervisor) Do(ctx context.Context, fn func(*Machine)) error {
	select {
	case s.commands <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run connects and serves until ctx ends or reconnecting gives up, in which
// case it returns ErrReconnectExhausted.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.readers.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.closeConn()

	heartbeat := s.clock.NewTicker(s.opts.HeartbeatPeriod)
	defer heartbeat.Stop()
	report := s.clock.NewTicker(s.opts.ReportPeriod)
	defer report.Stop()

	s.dial(ctx)
	for {
		if s.state == StateFailed {
			return ErrReconnectExhausted
		}
		select {
		case <-ctx.Done():
			s.machine.Leave()
			s.logger.Info().Msg("viewer stopped")
			return nil
		case in := <-s.inbox:
			s.onInbound(in)
		case ev := <-s.events:
			s.machine.HandlePlayerEvent(ev)
		case <-s.machine.SettleC():
			s.machine.OnSettle()
		case <-heartbeat.Chan():
			s.sendHeartbeat()
		case <-report.Chan():
			s.machine.ReportTick()
		case <-s.retryC():
			s.retry = nil
			s.dial(ctx)
		case fn := <-s.commands:
			fn(s.machine)
		}
	}
}

func (s *Supervisor) retryC() <-chan time.Time {
	if s.retry == nil {
		return nil
	}
	return s.retry.Chan()
}

func (s *Supervisor) dial(ctx context.Context) {
	conn, err := s.dialer.Dial(ctx, s.opts.URL)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", s.opts.URL).Int("attempt", s.backoff.Attempt()).Msg("dial failed")
		s.scheduleRetry()
		return
	}

	s.gen++
	s.conn = conn
	s.state = StateConnected
	s.backoff.Reset()
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	s.logger.Info().Str("url", s.opts.URL).Msg("connected")
	s.notify.Connected()

	gen := s.gen
	s.readers.Go(func() {
		for {
			data, err := conn.Read()
			select {
			case s.inbox <- inbound{gen: gen, data: data, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	})
	s.machine.OnReconnected()
}

func (s *Supervisor) scheduleRetry() {
	delay, ok := s.backoff.Next()
	if !ok {
		s.state = StateFailed
		s.logger.Error().Int("attempts", s.opts.MaxAttempts).Msg("giving up on the server")
		s.notify.Failed(ErrReconnectExhausted)
		return
	}
	s.state = StateReconnecting
	s.retry = s.clock.NewTimer(delay)
	s.notify.Reconnecting(s.backoff.Attempt(), delay)
}

func (s *Supervisor) onInbound(in inbound) {
	if in.gen != s.gen {
		return
	}
	if in.err != nil {
		s.logger.Warn().Err(in.err).Msg("connection lost")
		s.closeConn()
		s.state = StateDisconnected
		s.notify.Disconnected()
		s.scheduleRetry()
		return
	}

	env, err := protocol.Parse(in.data)
	if errors.Is(err, protocol.ErrUnknownType) {
		s.logger.Debug().Str("type", string(env.Type)).Msg("unknown message ignored")
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("malformed message dropped")
		return
	}
	if env.Type == protocol.TypeHeartbeat {
		s.onHeartbeat()
		return
	}
	if err := s.machine.HandleMessage(env); err != nil {
		s.logger.Warn().Err(err).Str("type", string(env.Type)).Msg("message dropped")
	}
}

func (s *Supervisor) sendHeartbeat() {
	if s.conn == nil {
		return
	}
	s.lastHeartbeat = s.clock.Now()
	if err := s.Send(protocol.TypeHeartbeat, protocol.HeartbeatData{Timestamp: s.lastHeartbeat.UnixMilli()}); err != nil {
		s.logger.Debug().Err(err).Msg("heartbeat not sent")
	}
}

func (s *Supervisor) onHeartbeat() {
	if s.lastHeartbeat.IsZero() {
		return
	}
	d := s.clock.Since(s.lastHeartbeat)
	tier := s.machine.ObserveDelay(d)
	s.notify.Latency(d, tier)
}

func (s *Supervisor) closeConn() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("close connection")
	}
	s.conn = nil
}
