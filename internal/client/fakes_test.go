package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/CoWatch/internal/domain"
	"github.com/dkeye/CoWatch/internal/protocol"
)

type playerCall struct {
	op    string
	pos   float64
	cause Cause
	video domain.VideoID
}

// fakePlayer queues its events instead of delivering them; tests feed them
// back with flush.
type fakePlayer struct {
	calls   []playerCall
	queue   []PlayerEvent
	video   domain.VideoID
	pos     float64
	playing bool
}

func (p *fakePlayer) Load(v domain.Video) {
	p.calls = append(p.calls, playerCall{op: "load", video: v.ID})
	p.video = v.ID
	p.pos = 0
	p.playing = false
}

func (p *fakePlayer) Unload() {
	p.calls = append(p.calls, playerCall{op: "unload"})
	p.video = ""
	p.playing = false
}

func (p *fakePlayer) Play(c Cause) {
	p.calls = append(p.calls, playerCall{op: "play", cause: c})
	if !p.playing {
		p.playing = true
		p.queue = append(p.queue, PlayerEvent{Kind: EventPlay, Position: p.pos, Cause: c})
	}
}

func (p *fakePlayer) Pause(c Cause) {
	p.calls = append(p.calls, playerCall{op: "pause", cause: c})
	if p.playing {
		p.playing = false
		p.queue = append(p.queue, PlayerEvent{Kind: EventPause, Position: p.pos, Cause: c})
	}
}

func (p *fakePlayer) Seek(pos float64, c Cause) {
	p.calls = append(p.calls, playerCall{op: "seek", pos: pos, cause: c})
	p.pos = pos
	p.queue = append(p.queue, PlayerEvent{Kind: EventSeeked, Position: pos, Cause: c})
}

func (p *fakePlayer) Position() float64 { return p.pos }
func (p *fakePlayer) Playing() bool { return p.playing }

func (p *fakePlayer) ops(op string) []playerCall {
	var out []playerCall
	for _, c := range p.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func (p *fakePlayer) reset() { p.calls = nil }

func flush(m *Machine, p *fakePlayer) {
	for len(p.queue) > 0 {
		ev := p.queue[0]
		p.queue = p.queue[1:]
		m.HandlePlayerEvent(ev)
	}
}

type recordSender struct {
	sent []protocol.Envelope
	err  error
}

func (s *recordSender) Send(t protocol.Type, payload any) error {
	if s.err != nil {
		return s.err
	}
	frame, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}
	env, err := protocol.Parse(frame)
	if err != nil {
		return err
	}
	s.sent = append(s.sent, env)
	return nil
}

func (s *recordSender) ofType(t protocol.Type) []protocol.Envelope {
	var out []protocol.Envelope
	for _, e := range s.sent {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (s *recordSender) reset() { s.sent = nil }

func decode[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var v T
	if err := env.Decode(&v); err != nil {
		t.Fatalf("decode %s: %v", env.Type, err)
	}
	return v
}

func message(t *testing.T, typ protocol.Type, payload any) protocol.Envelope {
	t.Helper()
	env, err := protocol.Parse(protocol.MustEncode(typ, payload))
	if err != nil {
		t.Fatalf("parse %s: %v", typ, err)
	}
	return env
}

func deliver(t *testing.T, m *Machine, typ protocol.Type, payload any) {
	t.Helper()
	if err := m.HandleMessage(message(t, typ, payload)); err != nil {
		t.Fatalf("handle %s: %v", typ, err)
	}
}

type reconnectEvent struct {
	attempt int
	delay   time.Duration
}

type latencyEvent struct {
	delay time.Duration
	tier  Tier
}

type recordNotifier struct {
	connected    chan struct{}
	disconnected chan struct{}
	reconnecting chan reconnectEvent
	failed       chan error
	latency      chan latencyEvent
	notices      chan string
}

func newRecordNotifier() *recordNotifier {
	return &recordNotifier{
		connected:    make(chan struct{}, 64),
		disconnected: make(chan struct{}, 64),
		reconnecting: make(chan reconnectEvent, 64),
		failed:       make(chan error, 64),
		latency:      make(chan latencyEvent, 64),
		notices:      make(chan string, 64),
	}
}

func (n *recordNotifier) Connected() { n.connected <- struct{}{} }
func (n *recordNotifier) Disconnected() { n.disconnected <- struct{}{} }
func (n *recordNotifier) Reconnecting(attempt int, delay time.Duration) {
	n.reconnecting <- reconnectEvent{attempt, delay}
}
func (n *recordNotifier) Failed(err error) { n.failed <- err }
func (n *recordNotifier) Latency(delay time.Duration, tier Tier) { n.latency <- latencyEvent{delay, tier} }
func (n *recordNotifier) Notice(msg string) {
	select {
	case n.notices <- msg:
	default:
	}
}

func recv[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

var errRefused = errors.New("connection refused")

// fakeConn delivers frames pushed into in; Read fails once it is closed.
type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes []protocol.Envelope
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) Read() ([]byte, error) {
	select {
	case b := <-c.in:
		return b, nil
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) Write(frame []byte) error {
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	env, err := protocol.Parse(frame)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.writes = append(c.writes, env)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) written(typ protocol.Type) []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.Envelope
	for _, e := range c.writes {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// scriptDialer hands out the scripted connections in order; a nil entry or
// an exhausted script is a refused dial.
type scriptDialer struct {
	mu     sync.Mutex
	script []Conn
	calls  int
}

func (d *scriptDialer) Dial(context.Context, string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.script) == 0 {
		return nil, errRefused
	}
	c := d.script[0]
	d.script = d.script[1:]
	if c == nil {
		return nil, errRefused
	}
	return c, nil
}

func (d *scriptDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func protocolState(id domain.VideoID, position float64, playing bool) domain.PlaybackState {
	return domain.PlaybackState{VideoID: id, Position: position, Playing: playing}
}
