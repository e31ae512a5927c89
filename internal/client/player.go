package client

import "github.com/dkeye/CoWatch/internal/domain"

// Cause tags a player call so its event can be told apart from a user
// action. Zero means the user did it.
type Cause uint64

type EventKind int

const (
	EventReady EventKind = iota
	EventPlay
	EventPause
	EventSeeked
	EventProgress
	EventEnded
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventSeeked:
		return "seeked"
	case EventProgress:
		return "progress"
	case EventEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// PlayerEvent is what the player reports back. Cause is the value passed to
// the call that produced it, or zero.
type PlayerEvent struct {
	Kind     EventKind
	Position float64
	Cause    Cause
}

// Player is the local video widget. Calls return at once; the outcome
// arrives later as a PlayerEvent.
type Player interface {
	Load(v domain.Video)
	Unload()
	Play(cause Cause)
	Pause(cause Cause)
	Seek(position float64, cause Cause)
	Position() float64
	Playing() bool
}
