package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Nat1anWasTaken/fortis/internal/domain"
)

// Config stores runtime configuration for the transcription pipeline.
type Config struct {
	Transcriber TranscriberConfig `mapstructure:"transcriber"`
	Audio       AudioConfig       `mapstructure:"audio"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Reconnect   ReconnectConfig   `mapstructure:"reconnect"`
	UI          UIConfig          `mapstructure:"ui"`
	Log         LogConfig         `mapstructure:"log"`
	// MetricsListen exposes prometheus metrics when non-empty,
	// e.g. "127.0.0.1:9130".
	MetricsListen string `mapstructure:"metrics_listen"`
}

type TranscriberConfig struct {
	APIKey      string `mapstructure:"api_key"`
	Language    string `mapstructure:"language"`
	Model       string `mapstructure:"model"`
	APIBaseURL  string `mapstructure:"api_base_url"`
	SmartFormat bool   `mapstructure:"smart_format"`
}

type AudioConfig struct {
	SampleRate      int           `mapstructure:"sample_rate"`
	Channels        int           `mapstructure:"channels"`
	ChunkIntervalMS int           `mapstructure:"chunk_interval_ms"`
	Device          string        `mapstructure:"device"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
}

// ChunkInterval returns the chunk cadence as a duration.
func (a AudioConfig) ChunkInterval() time.Duration {
	return time.Duration(a.ChunkIntervalMS) * time.Millisecond
}

type QueueConfig struct {
	// Capacity in chunks. With 100ms chunks the default 40 bounds queued
	// audio to about 4 seconds.
	Capacity int `mapstructure:"capacity"`
}

type ReconnectConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Jitter      float64       `mapstructure:"jitter"`
}

type UIConfig struct {
	Theme     string `mapstructure:"theme"`
	RefreshMS int    `mapstructure:"refresh_ms"`
}

// Refresh returns the display refresh interval.
func (u UIConfig) Refresh() time.Duration {
	return time.Duration(u.RefreshMS) * time.Millisecond
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load resolves configuration from an optional yaml file, FORTIS_* env
// variables and defaults. path may be empty to search the working
// directory and ~/.config/fortis.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fortis")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/fortis")
	}

	v.SetDefault("transcriber.api_base_url", "https://api.deepgram.com/v1")
	v.SetDefault("transcriber.language", "en-US")
	v.SetDefault("transcriber.model", "nova-2")
	v.SetDefault("transcriber.smart_format", true)
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.chunk_interval_ms", 100)
	v.SetDefault("audio.poll_interval", 2*time.Second)
	v.SetDefault("queue.capacity", 40)
	v.SetDefault("reconnect.max_attempts", 10)
	v.SetDefault("reconnect.base_delay", time.Second)
	v.SetDefault("reconnect.max_delay", 30*time.Second)
	v.SetDefault("reconnect.jitter", 0.2)
	v.SetDefault("ui.theme", "dark")
	v.SetDefault("ui.refresh_ms", 100)
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("FORTIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// DEEPGRAM_API_KEY is honored for parity with the env files users
	// already have.
	_ = v.BindEnv("transcriber.api_key", "FORTIS_TRANSCRIBER_API_KEY", "DEEPGRAM_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkIntervalMS <= 0 {
		cfg.Audio.ChunkIntervalMS = 100
	}
	if cfg.Queue.Capacity <= 0 {
		cfg.Queue.Capacity = 40
	}
	if cfg.UI.RefreshMS <= 0 {
		cfg.UI.RefreshMS = 100
	}

	return cfg, nil
}

// ValidateSettings checks that the fields required to open a transcription
// session are present.
func (c Config) ValidateSettings() error {
	if strings.TrimSpace(c.Transcriber.APIKey) == "" ||
		strings.TrimSpace(c.Transcriber.Language) == "" ||
		strings.TrimSpace(c.Transcriber.Model) == "" {
		return domain.ErrConfigIncomplete
	}
	return nil
}
