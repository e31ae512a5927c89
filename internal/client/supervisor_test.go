package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/CoWatch/internal/protocol"
	"github.com/jonboulle/clockwork"
)

type supervisorFixture struct {
	s      *Supervisor
	dialer *scriptDialer
	clock  *clockwork.FakeClock
	notify *recordNotifier
	player *fakePlayer
	events chan PlayerEvent
	cancel context.CancelFunc

	finished chan struct{}
	err      error
}

func startSupervisor(t *testing.T, script ...Conn) *supervisorFixture {
	t.Helper()
	f := &supervisorFixture{
		dialer: &scriptDialer{script: script},
		clock:  clockwork.NewFakeClock(),
		notify: newRecordNotifier(),
		player: &fakePlayer{},
		events: make(chan PlayerEvent, 8),

		finished: make(chan struct{}),
	}
	f.s = NewSupervisor(f.dialer, f.player, f.events, SupervisorOptions{
		URL:         "ws://test/ws",
		Clock:       f.clock,
		MaxAttempts: 5,
		Notifier:    f.notify,
	})
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() {
		f.err = f.s.Run(ctx)
		close(f.finished)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-f.finished:
		case <-time.After(2 * time.Second):
		}
	})
	return f
}

func (f *supervisorFixture) result(t *testing.T) error {
	t.Helper()
	recv(t, f.finished, "run result")
	return f.err
}

// view reads the machine's view on the loop goroutine.
func (f *supervisorFixture) view(t *testing.T) ClientView {
	t.Helper()
	ch := make(chan ClientView, 1)
	if err := f.s.Do(context.Background(), func(m *Machine) { ch <- m.View() }); err != nil {
		t.Fatal(err)
	}
	return recv(t, ch, "view")
}

func (f *supervisorFixture) waitView(t *testing.T, cond func(ClientView) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond(f.view(t)) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("view never reached the expected state")
}

func TestSupervisorGivesUpAfterFiveAttempts(t *testing.T) {
	f := startSupervisor(t)

	for i, ms := range []time.Duration{1000, 2000, 4000, 8000, 16000} {
		ev := recv(t, f.notify.reconnecting, "reconnecting")
		if ev.attempt != i+1 || ev.delay != ms*time.Millisecond {
			t.Fatalf("reconnect %d = %+v", i, ev)
		}
		f.clock.Advance(ev.delay)
	}

	if err := f.result(t); !errors.Is(err, ErrReconnectExhausted) {
		t.Fatalf("run returned %v", err)
	}
	if err := recv(t, f.notify.failed, "failed"); !errors.Is(err, ErrReconnectExhausted) {
		t.Fatalf("failed with %v", err)
	}
	if n := f.dialer.dials(); n != 6 {
		t.Fatalf("dials = %d, want initial + 5", n)
	}
	select {
	case ev := <-f.notify.reconnecting:
		t.Fatalf("unexpected reconnect %+v", ev)
	default:
	}
}

func TestSupervisorResetsAttemptsAfterSuccess(t *testing.T) {
	first, second := newFakeConn(), newFakeConn()
	f := startSupervisor(t, first, nil, second)

	recv(t, f.notify.connected, "first connect")
	first.Close()
	recv(t, f.notify.disconnected, "disconnect")

	ev := recv(t, f.notify.reconnecting, "reconnecting")
	if ev.attempt != 1 || ev.delay != time.Second {
		t.Fatalf("first retry = %+v", ev)
	}
	f.clock.Advance(time.Second)
	ev = recv(t, f.notify.reconnecting, "reconnecting")
	if ev.attempt != 2 || ev.delay != 2*time.Second {
		t.Fatalf("second retry = %+v", ev)
	}
	f.clock.Advance(2 * time.Second)
	recv(t, f.notify.connected, "reconnect")

	second.Close()
	recv(t, f.notify.disconnected, "second disconnect")
	ev = recv(t, f.notify.reconnecting, "reconnecting")
	if ev.attempt != 1 || ev.delay != time.Second {
		t.Fatalf("retry after success = %+v, want attempt reset", ev)
	}

	f.cancel()
	if err := f.result(t); err != nil {
		t.Fatalf("run returned %v", err)
	}
}

func TestSupervisorHeartbeatMeasuresDelay(t *testing.T) {
	conn := newFakeConn()
	f := startSupervisor(t, conn)
	recv(t, f.notify.connected, "connect")

	f.clock.Advance(5 * time.Second)
	deadline := time.Now().Add(2 * time.Second)
	for len(conn.written(protocol.TypeHeartbeat)) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("heartbeat never sent")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.clock.Advance(80 * time.Millisecond)
	conn.in <- protocol.MustEncode(protocol.TypeHeartbeat, protocol.HeartbeatData{Timestamp: 1})
	lat := recv(t, f.notify.latency, "latency")
	if lat.delay != 80*time.Millisecond || lat.tier != TierGood {
		t.Fatalf("latency = %+v", lat)
	}
	if v := f.view(t); v.NetworkDelay != 80*time.Millisecond {
		t.Fatalf("view delay = %v", v.NetworkDelay)
	}
}

func TestSupervisorAppliesServerStateAndLeaves(t *testing.T) {
	conn := newFakeConn()
	f := startSupervisor(t, conn)
	recv(t, f.notify.connected, "connect")

	conn.in <- protocol.MustEncode(protocol.TypeInit, protocol.InitData{
		Videos:       testVideos,
		CurrentVideo: protocolState("x", 5, false),
		IsFirstUser:  true,
	})
	f.waitView(t, func(v ClientView) bool { return v.Current == "x" })

	f.events <- PlayerEvent{Kind: EventReady}
	f.waitView(t, func(v ClientView) bool { return v.State == PausedLocal })
	if len(conn.written(protocol.TypePlayerReady)) != 1 {
		t.Fatal("playerReady not sent")
	}

	f.cancel()
	if err := f.result(t); err != nil {
		t.Fatalf("run returned %v", err)
	}
	leaves := conn.written(protocol.TypeUserLeave)
	if len(leaves) != 1 {
		t.Fatalf("userLeave sent %d times", len(leaves))
	}
	if p := decode[protocol.PositionData](t, leaves[0]); p.Position != 5 {
		t.Fatalf("userLeave position = %v", p.Position)
	}
}

func TestSupervisorDropsMalformedFrames(t *testing.T) {
	conn := newFakeConn()
	f := startSupervisor(t, conn)
	recv(t, f.notify.connected, "connect")

	conn.in <- []byte(`garbage`)
	conn.in <- []byte(`{"type":"warp","data":{}}`)
	conn.in <- []byte(`{"type":"notification","data":{"users":"many"}}`)
	conn.in <- protocol.MustEncode(protocol.TypeNotification, protocol.NotificationData{Message: "hello", Users: 3})

	if msg := recv(t, f.notify.notices, "notice"); msg != "hello" {
		t.Fatalf("notice = %q", msg)
	}
	if v := f.view(t); v.Users != 3 {
		t.Fatalf("users = %d", v.Users)
	}
}
