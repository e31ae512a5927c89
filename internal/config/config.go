package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "COWATCH"

type StateConfig struct {
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
	FilePath   string `mapstructure:"file_path"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	SendBuffer   int           `mapstructure:"send_buffer"`

	EnableNotifications   bool          `mapstructure:"enable_notifications"`
	AutoPlayNext          bool          `mapstructure:"auto_play_next"`
	NetworkDelayThreshold time.Duration `mapstructure:"network_delay_threshold"`
	FlushPeriod           time.Duration `mapstructure:"flush_period"`
	BackpressurePolicy    string        `mapstructure:"backpressure_policy"`
	RejectUnknownVideo    bool          `mapstructure:"reject_unknown_video"`
	ChangeVideoLimit      int           `mapstructure:"change_video_limit"`
	ChangeVideoWindow     time.Duration `mapstructure:"change_video_window"`
	CORSOrigins           []string      `mapstructure:"cors_origins"`

	State StateConfig `mapstructure:"state"`

	v *viper.Viper
}

func newViper() (*viper.Viper, string) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, fileName
}

func setServerDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8833)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_timeout", "10s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "cowatch-dev-secret")
	v.SetDefault("log_level", "info")

	v.SetDefault("enable_notifications", true)
	v.SetDefault("auto_play_next", true)
	v.SetDefault("network_delay_threshold", "600ms")
	v.SetDefault("flush_period", "10m")
	v.SetDefault("backpressure_policy", "drop")
	v.SetDefault("reject_unknown_video", true)
	v.SetDefault("change_video_limit", 5)
	v.SetDefault("change_video_window", "10s")
	v.SetDefault("cors_origins", []string{"*"})

	v.SetDefault("state.backend", "sqlite")
	v.SetDefault("state.sqlite_path", "./data/cowatch.db")
	v.SetDefault("state.file_path", "./data/state.yaml")
}

// Load reads the server configuration. A missing file is not an error.
func Load() (*Config, error) {
	v, fileName := newViper()
	setServerDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Str("state", cfg.State.Backend).
		Msg("config ready")
	return cfg, nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.v = v
	return &cfg, nil
}

// Watch re-reads the file on change and hands the new values to apply.
// Only the settings that are safe to swap at runtime should be used by apply.
func (c *Config) Watch(apply func(*Config)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	if _, err := os.Stat(c.v.ConfigFileUsed()); err != nil {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		next, err := unmarshal(c.v)
		if err != nil {
			log.Error().Str("module", "config").Err(err).Str("file", e.Name).Msg("reload failed")
			return
		}
		log.Info().Str("module", "config").Str("file", e.Name).Str("op", e.Op.String()).Msg("config changed")
		apply(next)
	})
	c.v.WatchConfig()
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() zerolog.Level {
	return ParseLevel(c.LogLevel)
}

func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
