package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/CoWatch/internal/app"
	"github.com/dkeye/CoWatch/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	WriteTimeout time.Duration
	SendBuffer   int

	// changeVideo commands allowed per session within ChangeVideoWindow.
	ChangeVideoLimit  int
	ChangeVideoWindow time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.ChangeVideoLimit <= 0 {
		o.ChangeVideoLimit = 5
	}
	if o.ChangeVideoWindow <= 0 {
		o.ChangeVideoWindow = 10 * time.Second
	}
	return o
}

// pongWait is how long a silent peer survives; pings go out a bit sooner.
func (o Options) pongWait() time.Duration { return o.PingPeriod * 10 / 9 }

type SignalWSController struct {
	Room    *app.Room
	opts    Options
	limiter *SessionRateLimiter
	pumps   conc.WaitGroup
}

func NewSignalWSController(room *app.Room, clock clockwork.Clock, opts Options) *SignalWSController {
	opts = opts.withDefaults()
	return &SignalWSController{
		Room:    room,
		opts:    opts,
		limiter: NewSessionRateLimiter(clock, opts.ChangeVideoLimit, opts.ChangeVideoWindow),
	}
}

// Wait blocks until every pump goroutine has returned.
func (ctl *SignalWSController) Wait() { ctl.pumps.Wait() }

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	ip := c.ClientIP()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("ip", ip).Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}

	sess := ctl.Room.Connect(ctx, conn, app.ConnInfo{ClientToken: token, RemoteAddr: ip})
	log.Info().Str("module", "signal").Str("sid", string(sess.ID)).Str("ct", token).Str("ip", ip).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	ctl.pumps.Go(func() { ctl.writePump(ctx, sess.ID, conn) })
	ctl.pumps.Go(func() {
		defer cancel()
		ctl.readPump(ctx, sess.ID, conn)
	})
}
