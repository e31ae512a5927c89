package client

// EchoKind groups player events that share one suppression queue.
type EchoKind int

const (
	EchoSeek EchoKind = iota
	EchoPlayPause
)

// maxPendingCauses bounds each queue. A call whose event never fires (pause
// on a paused player) would otherwise sit there forever.
const maxPendingCauses = 16

// EchoGuard hands out a Cause for every call made on behalf of a remote
// command and suppresses exactly the event that carries it back.
type EchoGuard struct {
	last    Cause
	pending map[EchoKind][]Cause
}

func NewEchoGuard() *EchoGuard {
	return &EchoGuard{pending: make(map[EchoKind][]Cause)}
}

// Issue returns a fresh non-zero Cause and marks it pending for kind.
func (g *EchoGuard) Issue(kind EchoKind) Cause {
	g.last++
	q := append(g.pending[kind], g.last)
	if len(q) > maxPendingCauses {
		q = q[len(q)-maxPendingCauses:]
	}
	g.pending[kind] = q
	return g.last
}

// Consume reports whether an event with cause is an echo. A matching cause
// is removed, so each one suppresses at most one event.
func (g *EchoGuard) Consume(kind EchoKind, cause Cause) bool {
	if cause == 0 {
		return false
	}
	q := g.pending[kind]
	for i, c := range q {
		if c == cause {
			g.pending[kind] = append(q[:i], q[i+1:]...)
			return true
		}
	}
	return false
}

func (g *EchoGuard) Pending(kind EchoKind) int { return len(g.pending[kind]) }
