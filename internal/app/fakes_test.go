package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/CoWatch/internal/core"
	"github.com/dkeye/CoWatch/internal/domain"
	"github.com/dkeye/CoWatch/internal/protocol"
	"github.com/jonboulle/clockwork"
)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, append([]byte(nil), f...))
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) messages(t *testing.T) []protocol.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		env, err := protocol.Parse(f)
		if err != nil {
			t.Fatalf("server sent unparsable frame %s: %v", f, err)
		}
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) types(t *testing.T) []protocol.Type {
	t.Helper()
	var out []protocol.Type
	for _, env := range c.messages(t) {
		out = append(out, env.Type)
	}
	return out
}

func (c *fakeConn) ofType(t *testing.T, typ protocol.Type) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	for _, env := range c.messages(t) {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func decode[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var v T
	if err := env.Decode(&v); err != nil {
		t.Fatalf("decode %s: %v", env.Type, err)
	}
	return v
}

type fakeCatalog struct {
	mu     sync.Mutex
	videos []domain.Video
	// afterLookup, when set, runs once after the next Lookup returns its result.
	afterLookup func()
}

func (c *fakeCatalog) List(context.Context) ([]domain.Video, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Video(nil), c.videos...), nil
}

func (c *fakeCatalog) Lookup(_ context.Context, id domain.VideoID) (domain.Video, bool, error) {
	c.mu.Lock()
	hook := c.afterLookup
	c.afterLookup = nil
	var (
		found domain.Video
		ok    bool
	)
	for _, v := range c.videos {
		if v.ID == id {
			found, ok = v, true
			break
		}
	}
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return found, ok, nil
}

func (c *fakeCatalog) Add(_ context.Context, v domain.Video) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.videos = append(c.videos, v)
	return nil
}

func (c *fakeCatalog) Delete(_ context.Context, id domain.VideoID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, v := range c.videos {
		if v.ID == id {
			c.videos = append(c.videos[:i], c.videos[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type memStore struct {
	mu     sync.Mutex
	state  domain.PlaybackState
	saves  int
	loaded domain.PlaybackState
}

func (s *memStore) LoadState(context.Context) (domain.PlaybackState, error) {
	return s.loaded, nil
}

func (s *memStore) SaveState(_ context.Context, st domain.PlaybackState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	s.saves++
	return nil
}

func (s *memStore) snapshot() (domain.PlaybackState, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.saves
}

type roomFixture struct {
	room    *Room
	catalog *fakeCatalog
	store   *memStore
	clock   *clockwork.FakeClock
}

func newRoomFixture(t *testing.T, opts Options) *roomFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	opts.Clock = clock
	if opts.FlushPeriod == 0 {
		opts.FlushPeriod = 10 * time.Minute
	}
	catalog := &fakeCatalog{videos: []domain.Video{
		{ID: "x", Name: "Video X", URL: "https://example.com/x.mp4"},
		{ID: "y", Name: "Video Y", URL: "https://example.com/y.mp4"},
	}}
	store := &memStore{}
	room, err := NewRoom(context.Background(), catalog, store, opts)
	if err != nil {
		t.Fatalf("NewRoom() error = %v", err)
	}
	t.Cleanup(func() { room.flusher.Stop() })
	return &roomFixture{room: room, catalog: catalog, store: store, clock: clock}
}

func (f *roomFixture) connect(t *testing.T, addr string) (*Session, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	s := f.room.Connect(context.Background(), conn, ConnInfo{RemoteAddr: addr})
	f.clock.Advance(time.Millisecond)
	return s, conn
}
