package signal

import (
	"context"
	"errors"

	"github.com/dkeye/CoWatch/internal/core"
	"github.com/dkeye/CoWatch/internal/protocol"
)

var errRateLimited = errors.New("rate limited")

func (ctl *SignalWSController) handlePosition(
	sid core.SessionID,
	env protocol.Envelope,
	apply func(core.SessionID, float64) error,
) error {
	var p protocol.PositionData
	if err := env.Decode(&p); err != nil {
		return err
	}
	return apply(sid, p.Position)
}

func (ctl *SignalWSController) handleChangeVideo(
	ctx context.Context,
	sid core.SessionID,
	env protocol.Envelope,
) error {
	var req protocol.ChangeVideoRequest
	if err := env.Decode(&req); err != nil {
		return err
	}
	if !ctl.limiter.Allow(sid) {
		return errRateLimited
	}
	return ctl.Room.ChangeVideo(ctx, sid, req)
}

func (ctl *SignalWSController) handleUpdateState(
	sid core.SessionID,
	env protocol.Envelope,
) error {
	var p protocol.UpdateStateData
	if err := env.Decode(&p); err != nil {
		return err
	}
	return ctl.Room.UpdateState(sid, p)
}

// handleHeartbeat answers the latency probe. The client timestamp is only
// validated; the reply carries the server clock.
func (ctl *SignalWSController) handleHeartbeat(
	sid core.SessionID,
	env protocol.Envelope,
) error {
	var p protocol.HeartbeatData
	if err := env.Decode(&p); err != nil {
		return err
	}
	return ctl.Room.Heartbeat(sid)
}
