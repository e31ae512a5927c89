package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

// ViewerConfig drives the headless viewer.
type ViewerConfig struct {
	ServerURL            string        `mapstructure:"server_url"`
	Name                 string        `mapstructure:"name"`
	LogLevel             string        `mapstructure:"log_level"`
	HeartbeatPeriod      time.Duration `mapstructure:"heartbeat_period"`
	ReportPeriod         time.Duration `mapstructure:"report_period"`
	SettleDelay          time.Duration `mapstructure:"settle_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
}

// LoadViewer parses args as flags; flags win over env and file values.
func LoadViewer(args []string) (*ViewerConfig, error) {
	v, fileName := newViper()
	v.SetDefault("server_url", "ws://localhost:8833/ws")
	v.SetDefault("name", "viewer")
	v.SetDefault("log_level", "info")
	v.SetDefault("heartbeat_period", "5s")
	v.SetDefault("report_period", "1s")
	v.SetDefault("settle_delay", "500ms")
	v.SetDefault("max_reconnect_attempts", 5)

	fs := pflag.NewFlagSet("viewer", pflag.ContinueOnError)
	fs.String("server_url", "ws://localhost:8833/ws", "websocket endpoint of the server")
	fs.String("name", "viewer", "name shown in logs")
	fs.String("log_level", "info", "log level")
	fs.Duration("heartbeat_period", 5*time.Second, "latency probe interval")
	fs.Duration("report_period", time.Second, "minimum interval between state reports")
	fs.Duration("settle_delay", 500*time.Millisecond, "wait after loading a different video before seeking")
	fs.Int("max_reconnect_attempts", 5, "reconnect attempts before giving up")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if err := v.ReadInConfig(); err == nil {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg ViewerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
