package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/CoWatch/internal/app"
	"github.com/dkeye/CoWatch/internal/core"
	"github.com/dkeye/CoWatch/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump set deadline")
				return
			}
			if !ok {
				log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("writePump channel closed")
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("ping failed")
				return
			}
		}
	}
}

// readPump owns the session: when it returns the session leaves the room.
func (ctl *SignalWSController) readPump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Room.Disconnect(context.WithoutCancel(ctx), sid)
		ctl.limiter.Forget(sid)
		c.Close()
	}()

	pongWait := ctl.opts.pongWait()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		ctl.handleSignal(ctx, sid, data)
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sid core.SessionID, data []byte) {
	env, err := protocol.Parse(data)
	if errors.Is(err, protocol.ErrUnknownType) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("type", string(env.Type)).Msg("unknown signal")
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("malformed signal dropped")
		return
	}

	switch env.Type {
	case protocol.TypePlay:
		err = ctl.handlePosition(sid, env, ctl.Room.Play)
	case protocol.TypePause:
		err = ctl.handlePosition(sid, env, ctl.Room.Pause)
	case protocol.TypeSeek:
		err = ctl.handlePosition(sid, env, ctl.Room.Seek)
	case protocol.TypeUserLeave:
		err = ctl.handlePosition(sid, env, ctl.Room.UserLeave)
	case protocol.TypeChangeVideo:
		err = ctl.handleChangeVideo(ctx, sid, env)
	case protocol.TypeUpdateState:
		err = ctl.handleUpdateState(sid, env)
	case protocol.TypePlayerReady:
		err = ctl.Room.PlayerReady(sid)
	case protocol.TypeHeartbeat:
		err = ctl.handleHeartbeat(sid, env)
	default:
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("type", string(env.Type)).Msg("server-side message from client ignored")
		return
	}

	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrMalformed):
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("malformed signal dropped")
	case errors.Is(err, app.ErrVideoNotFound), errors.Is(err, errRateLimited):
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("type", string(env.Type)).Msg("command dropped")
	case errors.Is(err, app.ErrNoSession):
		log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("command after disconnect")
	default:
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("type", string(env.Type)).Msg("command failed")
	}
}
