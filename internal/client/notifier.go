package client

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Notifier surfaces connection status and room notices to the user.
type Notifier interface {
	Connected()
	Disconnected()
	Reconnecting(attempt int, delay time.Duration)
	// Failed is terminal: no further automatic attempt follows.
	Failed(err error)
	Latency(delay time.Duration, tier Tier)
	Notice(msg string)
}

// LogNotifier writes everything to the global logger.
type LogNotifier struct{}

func (LogNotifier) Connected() {
	log.Info().Str("module", "client.status").Msg("connected")
}

func (LogNotifier) Disconnected() {
	log.Warn().Str("module", "client.status").Msg("disconnected")
}

func (LogNotifier) Reconnecting(attempt int, delay time.Duration) {
	log.Info().Str("module", "client.status").Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting")
}

func (LogNotifier) Failed(err error) {
	log.Error().Str("module", "client.status").Err(err).Msg("server unreachable, restart the viewer to retry")
}

func (LogNotifier) Latency(delay time.Duration, tier Tier) {
	log.Debug().Str("module", "client.status").Dur("delay", delay).Stringer("tier", tier).Msg("latency")
}

func (LogNotifier) Notice(msg string) {
	log.Info().Str("module", "client.status").Msg(msg)
}
