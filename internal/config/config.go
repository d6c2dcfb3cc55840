package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration decodes TOML duration strings like "500ms" or "30s".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Playback  PlaybackConfig  `toml:"playback"`
	Transport TransportConfig `toml:"transport"`
	Database  DatabaseConfig  `toml:"database"`
	Worlds    WorldsConfig    `toml:"worlds"`
	Scripts   ScriptsConfig   `toml:"scripts"`
	Logging   LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Name string `toml:"name"`
}

type PlaybackConfig struct {
	// HighWatermark caps how many commands may sit in the queue before the
	// overflow controller flushes the batch and suspends the producer.
	HighWatermark int `toml:"high_watermark"`
	// LowWatermarkPct is the fraction of the flushed batch that may remain
	// undrained before the consumer is considered ready again.
	LowWatermarkPct float64  `toml:"low_watermark_pct"`
	ReadyTimeout    Duration `toml:"ready_timeout"`
	SettleDelay     Duration `toml:"settle_delay"`
	// StepDuration paces the built-in animation component: how long one
	// move/turn takes during live playback.
	StepDuration Duration `toml:"step_duration"`
}

// LowWatermark returns the absolute remaining-command threshold derived from
// the high watermark.
func (p PlaybackConfig) LowWatermark() int {
	lw := int(float64(p.HighWatermark) * p.LowWatermarkPct)
	if lw < 1 {
		lw = 1
	}
	return lw
}

type TransportConfig struct {
	Enabled      bool     `toml:"enabled"`
	BindAddress  string   `toml:"bind_address"`
	OutQueueSize int      `toml:"out_queue_size"`
	WriteTimeout Duration `toml:"write_timeout"`
	PongTimeout  Duration `toml:"pong_timeout"`
}

type DatabaseConfig struct {
	Enabled         bool     `toml:"enabled"`
	DSN             string   `toml:"dsn"`
	MaxOpenConns    int      `toml:"max_open_conns"`
	MaxIdleConns    int      `toml:"max_idle_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
}

type WorldsConfig struct {
	Dir string `toml:"dir"`
}

type ScriptsConfig struct {
	Dir string `toml:"dir"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every knob at its documented default.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Name: "playgrid"},
		Playback: PlaybackConfig{
			HighWatermark:   500,
			LowWatermarkPct: 0.10,
			ReadyTimeout:    Duration(30 * time.Second),
			SettleDelay:     Duration(500 * time.Millisecond),
			StepDuration:    Duration(350 * time.Millisecond),
		},
		Transport: TransportConfig{
			BindAddress:  "127.0.0.1:8310",
			OutQueueSize: 256,
			WriteTimeout: Duration(10 * time.Second),
			PongTimeout:  Duration(60 * time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    4,
			MaxIdleConns:    1,
			ConnMaxLifetime: Duration(30 * time.Minute),
		},
		Worlds:  WorldsConfig{Dir: "worlds"},
		Scripts: ScriptsConfig{Dir: "scripts"},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

func (c *Config) Validate() error {
	if c.Playback.HighWatermark < 2 {
		return fmt.Errorf("playback.high_watermark must be at least 2, got %d", c.Playback.HighWatermark)
	}
	if c.Playback.LowWatermarkPct <= 0 || c.Playback.LowWatermarkPct >= 1 {
		return fmt.Errorf("playback.low_watermark_pct must be in (0,1), got %g", c.Playback.LowWatermarkPct)
	}
	if c.Playback.ReadyTimeout <= 0 {
		return fmt.Errorf("playback.ready_timeout must be positive")
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required when database.enabled is true")
	}
	if c.Transport.Enabled && c.Transport.BindAddress == "" {
		return fmt.Errorf("transport.bind_address is required when transport.enabled is true")
	}
	return nil
}
