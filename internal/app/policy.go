package app

import (
	"errors"

	"github.com/dkeye/CoWatch/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a session whose send failed.
type Policy interface {
	OnBackPressure(s *Session, err error) BackpressureAction
}

// DropPolicy loses the frame and keeps the session.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(_ *Session, err error) BackpressureAction {
	if errors.Is(err, core.ErrConnClosed) {
		return NoAction
	}
	return DropFrame
}

// KickPolicy closes sessions that cannot keep up.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(_ *Session, err error) BackpressureAction {
	if errors.Is(err, core.ErrBackpressure) {
		return KickMember
	}
	return NoAction
}

// PolicyByName maps the backpressure_policy config value.
func PolicyByName(name string) Policy {
	switch name {
	case "kick":
		return KickPolicy{}
	default:
		return DropPolicy{}
	}
}
