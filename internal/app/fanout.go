package app

import (
	"github.com/dkeye/CoWatch/internal/core"
	"github.com/rs/zerolog/log"
)

type sendFailure struct {
	session *Session
	err     error
}

// fanout offers frame to every session except exclude. A failed send is
// recorded and never stops delivery to the rest.
func fanout(sessions []*Session, frame core.Frame, exclude core.SessionID) (core.PublishResult, []sendFailure) {
	res := core.PublishResult{}
	var failed []sendFailure
	for _, s := range sessions {
		if s.ID == exclude {
			continue
		}
		if err := s.Conn.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, s.ID)
			failed = append(failed, sendFailure{session: s, err: err})
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "app.fanout").Str("exclude", string(exclude)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res, failed
}
