// Package config loads tuner settings from defaults, a YAML file, TUNER_
// environment variables and command line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/metalblueberry/tuner/pkg/audio"
	"github.com/metalblueberry/tuner/pkg/note"
	"github.com/metalblueberry/tuner/pkg/pitch"
	"github.com/metalblueberry/tuner/pkg/tone"
)

const (
	APP_NAME   = "tuner"
	ENV_PREFIX = "TUNER"

	OUTPUT_TEXT = "text"
	OUTPUT_JSON = "json"
	OUTPUT_YAML = "yaml"
)

// Config represents the application configuration
type Config struct {
	Verbose  bool   `mapstructure:"verbose"`
	LogLevel string `mapstructure:"log_level"`
	Output   string `mapstructure:"output"`

	// Strict turns API misuse into panics.
	Strict bool `mapstructure:"strict"`

	Reference note.Reference `mapstructure:"reference"`
	Pitch     pitch.Config   `mapstructure:"pitch"`
	Audio     audio.Config   `mapstructure:"audio"`
	Tone      tone.Config    `mapstructure:"tone"`
	Listen    ListenConfig   `mapstructure:"listen"`
}

// ListenConfig contains settings of the listen command
type ListenConfig struct {
	// All prints every detection instead of note changes only.
	All      bool          `mapstructure:"all"`
	Duration time.Duration `mapstructure:"duration"`
	Realtime bool          `mapstructure:"realtime"`
}

// New returns a viper instance with defaults, environment binding and the
// config file search path set up. An explicit file overrides the search.
func New(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", APP_NAME))
		}

		v.AddConfigPath(filepath.Join("/etc", APP_NAME))
		v.AddConfigPath("./configs")
		v.SetConfigName(APP_NAME)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Read loads the config file. A missing file is not an error unless it was
// named explicitly.
func Read(v *viper.Viper) error {
	err := v.ReadInConfig()

	var notFound viper.ConfigFileNotFoundError

	if err == nil || errors.As(err, &notFound) {
		return nil
	}

	return fmt.Errorf("read config %s: %w", v.ConfigFileUsed(), err)
}

// SetDefaults sets default configuration values for all components
func SetDefaults(v *viper.Viper) {
	v.SetDefault("verbose", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("output", OUTPUT_TEXT)
	v.SetDefault("strict", false)

	ref := note.DefaultReference()
	v.SetDefault("reference.frequency", ref.Frequency)
	v.SetDefault("reference.semitone", ref.Semitone)

	p := pitch.DefaultConfig()
	v.SetDefault("pitch.method", p.Method)
	v.SetDefault("pitch.buffer_size", p.BufferSize)
	v.SetDefault("pitch.channels", p.Channels)
	v.SetDefault("pitch.sample_rate", p.SampleRate)
	v.SetDefault("pitch.min_frequency", p.MinFrequency)
	v.SetDefault("pitch.max_frequency", p.MaxFrequency)
	v.SetDefault("pitch.silence_threshold", p.SilenceThreshold)
	v.SetDefault("pitch.window", p.Window)
	v.SetDefault("pitch.history", p.History)

	a := audio.DefaultConfig()
	v.SetDefault("audio.backend", a.Backend)
	v.SetDefault("audio.device", a.Device)
	v.SetDefault("audio.sample_rate", a.SampleRate)
	v.SetDefault("audio.buffer_size", a.BufferSize)
	v.SetDefault("audio.queue_depth", a.QueueDepth)
	v.SetDefault("audio.client_name", a.ClientName)

	t := tone.DefaultConfig()
	v.SetDefault("tone.sample_rate", t.SampleRate)
	v.SetDefault("tone.amplitude", t.Amplitude)

	v.SetDefault("listen.all", false)
	v.SetDefault("listen.duration", time.Duration(0))
	v.SetDefault("listen.realtime", false)
}

// Load decodes the settings held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}

	/*
	 * The block size is one setting shared by capture and analysis, and the
	 * capture side decides the sample rate.
	 */
	cfg.Pitch.BufferSize = cfg.Audio.BufferSize
	cfg.Pitch.SampleRate = cfg.Audio.SampleRate
	cfg.Pitch.Channels = 1
	cfg.Tone.Strict = cfg.Strict

	if nyquist := float64(cfg.Pitch.SampleRate) / 2; cfg.Pitch.MaxFrequency > nyquist {
		cfg.Pitch.MaxFrequency = nyquist
	}

	return cfg, nil
}

// Validate reports the first invalid section.
func (c *Config) Validate() error {
	switch c.Output {
	case OUTPUT_TEXT, OUTPUT_JSON, OUTPUT_YAML:
	default:
		return fmt.Errorf("unknown output format %q", c.Output)
	}

	if _, err := note.New(c.Reference); err != nil {
		return fmt.Errorf("reference: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}

	if err := c.Pitch.Validate(); err != nil {
		return fmt.Errorf("pitch: %w", err)
	}

	if c.Tone.SampleRate <= 0 {
		return fmt.Errorf("tone: sample rate %d must be positive", c.Tone.SampleRate)
	}

	if c.Tone.Amplitude <= 0 || c.Tone.Amplitude > 1 {
		return fmt.Errorf("tone: amplitude %v must be in (0, 1]", c.Tone.Amplitude)
	}

	if c.Listen.Duration < 0 {
		return fmt.Errorf("listen: duration %v must not be negative", c.Listen.Duration)
	}

	return nil
}

// Mapper builds the note mapper for the configured reference.
func (c *Config) Mapper() (*note.Mapper, error) {
	return note.New(c.Reference)
}
