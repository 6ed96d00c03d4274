// Package config loads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	MaxPlayers      int `env:"MAX_PLAYERS" envDefault:"4"`
	DefaultDuration int `env:"DEFAULT_DURATION_MINUTES" envDefault:"30"`
	MinDuration     int `env:"MIN_DURATION_MINUTES" envDefault:"15"`
	MaxDuration     int `env:"MAX_DURATION_MINUTES" envDefault:"120"`

	WaitingTimeout    time.Duration `env:"WAITING_TIMEOUT" envDefault:"1m"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30s"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"10s"`
	EmptyGrace        time.Duration `env:"EMPTY_GRACE" envDefault:"30s"`
	FinishGrace       time.Duration `env:"FINISH_GRACE" envDefault:"5s"`
	TickInterval      time.Duration `env:"TICK_INTERVAL" envDefault:"1s"`

	SendTimeout  time.Duration `env:"SEND_TIMEOUT" envDefault:"5s"`
	SendAttempts int           `env:"SEND_ATTEMPTS" envDefault:"3"`
	RetryBackoff time.Duration `env:"RETRY_BACKOFF" envDefault:"500ms"`
	OutboxSize   int           `env:"OUTBOX_SIZE" envDefault:"64"`

	OriginPatterns []string `env:"ORIGIN_PATTERNS" envSeparator:","`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	DatabaseURL string `env:"DATABASE_URL"`
}

// Load reads files (default ".env") into the environment without
// overriding variables already set, then parses and validates.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.MaxPlayers < 2 || c.MaxPlayers > 4 {
		errs = append(errs, fmt.Errorf("MAX_PLAYERS must be 2..4, got %d", c.MaxPlayers))
	}
	if c.MinDuration <= 0 || c.MinDuration > c.MaxDuration {
		errs = append(errs, fmt.Errorf("duration bounds %d..%d are inverted or empty", c.MinDuration, c.MaxDuration))
	}
	if c.DefaultDuration < c.MinDuration || c.DefaultDuration > c.MaxDuration {
		errs = append(errs, fmt.Errorf("DEFAULT_DURATION_MINUTES %d outside %d..%d", c.DefaultDuration, c.MinDuration, c.MaxDuration))
	}
	for name, d := range map[string]time.Duration{
		"WAITING_TIMEOUT":    c.WaitingTimeout,
		"HEARTBEAT_INTERVAL": c.HeartbeatInterval,
		"SWEEP_INTERVAL":     c.SweepInterval,
		"TICK_INTERVAL":      c.TickInterval,
		"SEND_TIMEOUT":       c.SendTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.SendAttempts < 1 {
		errs = append(errs, fmt.Errorf("SEND_ATTEMPTS must be at least 1"))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
