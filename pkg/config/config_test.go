package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalblueberry/tuner/pkg/audio"
	"github.com/metalblueberry/tuner/pkg/pitch"
)

func TestDefaults(t *testing.T) {
	v := New(filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load(v)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, OUTPUT_TEXT, cfg.Output)
	assert.Equal(t, 440.0, cfg.Reference.Frequency)
	assert.Equal(t, 69, cfg.Reference.Semitone)
	assert.Equal(t, audio.BACKEND_AUTO, cfg.Audio.Backend)
	assert.Equal(t, uint32(44100), cfg.Audio.SampleRate)
	assert.Equal(t, 4096, cfg.Pitch.BufferSize)
	assert.Equal(t, pitch.WINDOW_HANN, cfg.Pitch.Window)
	assert.Equal(t, 0.5, cfg.Tone.Amplitude)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuner.yaml")
	content := `
output: json
strict: true
reference:
  frequency: 432
audio:
  backend: jack
  sample_rate: 8000
  buffer_size: 2048
pitch:
  method: guitar
  history: 8192
listen:
  duration: 1m30s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := New(path)
	require.NoError(t, Read(v))

	cfg, err := Load(v)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, OUTPUT_JSON, cfg.Output)
	assert.True(t, cfg.Strict)
	assert.True(t, cfg.Tone.Strict)
	assert.Equal(t, 432.0, cfg.Reference.Frequency)
	assert.Equal(t, 69, cfg.Reference.Semitone)
	assert.Equal(t, audio.BACKEND_JACK, cfg.Audio.Backend)
	assert.Equal(t, pitch.METHOD_GUITAR, cfg.Pitch.Method)
	assert.Equal(t, 2048, cfg.Pitch.BufferSize)
	assert.Equal(t, 8192, cfg.Pitch.AnalysisLength())
	assert.Equal(t, uint32(8000), cfg.Pitch.SampleRate)
	assert.Equal(t, 4000.0, cfg.Pitch.MaxFrequency)
	assert.Equal(t, 90*time.Second, cfg.Listen.Duration)

	m, err := cfg.Mapper()
	require.NoError(t, err)
	assert.Equal(t, 432.0, m.Reference().Frequency)
}

func TestReadMissingExplicitFile(t *testing.T) {
	v := New(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, Read(v))
}

func TestReadSearchPathMissingIsFine(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	assert.NoError(t, Read(New("")))
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("TUNER_OUTPUT", "yaml")
	t.Setenv("TUNER_REFERENCE_FREQUENCY", "415")

	cfg, err := Load(New(filepath.Join(t.TempDir(), "absent.yaml")))
	require.NoError(t, err)

	assert.Equal(t, OUTPUT_YAML, cfg.Output)
	assert.Equal(t, 415.0, cfg.Reference.Frequency)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"output", func(c *Config) { c.Output = "xml" }},
		{"reference", func(c *Config) { c.Reference.Frequency = 0 }},
		{"audio backend", func(c *Config) { c.Audio.Backend = "alsa" }},
		{"pitch window", func(c *Config) { c.Pitch.Window = "blackman" }},
		{"pitch method", func(c *Config) { c.Pitch.Method = "yin" }},
		{"pitch history", func(c *Config) { c.Pitch.History = 100 }},
		{"tone amplitude", func(c *Config) { c.Tone.Amplitude = 2 }},
		{"tone rate", func(c *Config) { c.Tone.SampleRate = 0 }},
		{"duration", func(c *Config) { c.Listen.Duration = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(New(filepath.Join(t.TempDir(), "absent.yaml")))
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
