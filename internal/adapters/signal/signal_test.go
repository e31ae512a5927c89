package signal

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/CoWatch/internal/app"
	"github.com/dkeye/CoWatch/internal/domain"
	"github.com/dkeye/CoWatch/internal/protocol"
	"github.com/dkeye/CoWatch/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

type testServer struct {
	room *app.Room
	srv  *httptest.Server
	url  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	backend, err := store.OpenFile(filepath.Join(t.TempDir(), "state.yaml"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	for _, v := range []domain.Video{
		{ID: "x", Name: "X", URL: "/videos/x.mp4"},
		{ID: "y", Name: "Y", URL: "/videos/y.mp4"},
	} {
		if err := backend.Add(ctx, v); err != nil {
			t.Fatalf("seed catalog: %v", err)
		}
	}
	room, err := app.NewRoom(ctx, backend, backend, app.Options{RejectUnknownVideo: true})
	if err != nil {
		t.Fatalf("new room: %v", err)
	}
	ctl := NewSignalWSController(room, clockwork.NewRealClock(), Options{PingPeriod: time.Second, ChangeVideoLimit: 3, ChangeVideoWindow: time.Minute})

	serverCtx, cancel := context.WithCancel(ctx)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(serverCtx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
		ctl.Wait()
	})
	return &testServer{room: room, srv: srv, url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"}
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(ts.url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func read(t *testing.T, ws *websocket.Conn) protocol.Envelope {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	env, err := protocol.Parse(data)
	if err != nil {
		t.Fatalf("parse %s: %v", data, err)
	}
	return env
}

func expect(t *testing.T, ws *websocket.Conn, want protocol.Type) protocol.Envelope {
	t.Helper()
	env := read(t, ws)
	if env.Type != want {
		t.Fatalf("got %q (%s), want %q", env.Type, env.Data, want)
	}
	return env
}

func send(t *testing.T, ws *websocket.Conn, typ protocol.Type, payload any) {
	t.Helper()
	if err := ws.WriteMessage(websocket.TextMessage, protocol.MustEncode(typ, payload)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestRelayOverWebsocket(t *testing.T) {
	ts := newTestServer(t)

	a := ts.dial(t)
	var initA protocol.InitData
	if err := expect(t, a, protocol.TypeInit).Decode(&initA); err != nil {
		t.Fatal(err)
	}
	if !initA.IsFirstUser || len(initA.Videos) != 2 {
		t.Fatalf("unexpected init for a: %+v", initA)
	}

	b := ts.dial(t)
	var initB protocol.InitData
	if err := expect(t, b, protocol.TypeInit).Decode(&initB); err != nil {
		t.Fatal(err)
	}
	if initB.IsFirstUser || initB.ConnectedUsers != 2 {
		t.Fatalf("unexpected init for b: %+v", initB)
	}

	send(t, a, protocol.TypeChangeVideo, protocol.ChangeVideoRequest{VideoID: "x"})
	for _, ws := range []*websocket.Conn{a, b} {
		var cv protocol.ChangeVideoData
		if err := expect(t, ws, protocol.TypeChangeVideo).Decode(&cv); err != nil {
			t.Fatal(err)
		}
		if cv != (protocol.ChangeVideoData{VideoID: "x", Position: 0, Playing: true}) {
			t.Fatalf("unexpected changeVideo: %+v", cv)
		}
	}

	send(t, a, protocol.TypeSeek, protocol.PositionData{Position: 42.5})
	var seek protocol.PositionData
	if err := expect(t, b, protocol.TypeSeek).Decode(&seek); err != nil {
		t.Fatal(err)
	}
	if seek.Position != 42.5 {
		t.Fatalf("seek position = %v", seek.Position)
	}

	// a's next frame is the heartbeat reply, not its own seek.
	send(t, a, protocol.TypeHeartbeat, protocol.HeartbeatData{Timestamp: time.Now().UnixMilli()})
	expect(t, a, protocol.TypeHeartbeat)

	if got := ts.room.Snapshot(); got != (domain.PlaybackState{VideoID: "x", Position: 42.5, Playing: true}) {
		t.Fatalf("room state = %+v", got)
	}
}

func TestMalformedKeepsConnectionOpen(t *testing.T) {
	ts := newTestServer(t)
	a := ts.dial(t)
	expect(t, a, protocol.TypeInit)

	for _, raw := range []string{
		`not json`,
		`{"data":{}}`,
		`{"type":"teleport","data":{}}`,
		`{"type":"seek","data":{"position":-1}}`,
		`{"type":"changeVideo","data":{}}`,
		`{"type":"init","data":{}}`,
	} {
		if err := a.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("write %s: %v", raw, err)
		}
	}

	send(t, a, protocol.TypeHeartbeat, protocol.HeartbeatData{Timestamp: 1})
	expect(t, a, protocol.TypeHeartbeat)
	if ts.room.Snapshot().HasVideo() {
		t.Fatal("malformed input changed state")
	}
}

func TestUnknownVideoGetsError(t *testing.T) {
	ts := newTestServer(t)
	a := ts.dial(t)
	expect(t, a, protocol.TypeInit)

	send(t, a, protocol.TypeChangeVideo, protocol.ChangeVideoRequest{VideoID: "nope"})
	var e protocol.ErrorData
	if err := expect(t, a, protocol.TypeError).Decode(&e); err != nil {
		t.Fatal(err)
	}
	if e.Error != protocol.ErrCodeVideoNotFound {
		t.Fatalf("error code = %q", e.Error)
	}
}

func TestChangeVideoRateLimited(t *testing.T) {
	ts := newTestServer(t)
	a := ts.dial(t)
	expect(t, a, protocol.TypeInit)

	for i := 0; i < 4; i++ {
		send(t, a, protocol.TypeChangeVideo, protocol.ChangeVideoRequest{VideoID: "y"})
	}
	send(t, a, protocol.TypeHeartbeat, protocol.HeartbeatData{Timestamp: 1})

	changes := 0
	for {
		env := read(t, a)
		if env.Type == protocol.TypeHeartbeat {
			break
		}
		if env.Type == protocol.TypeChangeVideo {
			changes++
		}
	}
	if changes != 3 {
		t.Fatalf("changeVideo broadcasts = %d, want 3", changes)
	}
}

func TestLeaderHandOffOnClose(t *testing.T) {
	ts := newTestServer(t)
	a := ts.dial(t)
	expect(t, a, protocol.TypeInit)
	b := ts.dial(t)
	expect(t, b, protocol.TypeInit)

	a.Close()

	var role protocol.RoleData
	if err := expect(t, b, protocol.TypeRole).Decode(&role); err != nil {
		t.Fatal(err)
	}
	if !role.IsLeader {
		t.Fatal("b was not promoted")
	}
	var n protocol.NotificationData
	if err := expect(t, b, protocol.TypeNotification).Decode(&n); err != nil {
		t.Fatal(err)
	}
	if n.Users != 1 {
		t.Fatalf("users = %d", n.Users)
	}
}

func TestSessionRateLimiter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewSessionRateLimiter(clock, 2, 10*time.Second)

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two attempts refused")
	}
	if rl.Allow("a") {
		t.Fatal("third attempt inside window allowed")
	}
	if !rl.Allow("b") {
		t.Fatal("limit leaked across sessions")
	}

	clock.Advance(11 * time.Second)
	if !rl.Allow("a") {
		t.Fatal("attempt after window refused")
	}

	rl.Forget("a")
	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("forget did not reset history")
	}
}
