// Package pitch adapts fundamental frequency estimators to fixed-size blocks
// of PCM samples.
//
// The default method is the in-repo autocorrelation estimator, which sees only
// the blocks it is given plus an optional history. The guitar method delegates
// to the chromatic tuner of go-dsp-guitar, which keeps its own analysis
// history and reports its own notion of absent pitch.
package pitch

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"
)

const (
	METHOD_DEFAULT         = "default"
	METHOD_AUTOCORRELATION = "autocorrelation"
	METHOD_GUITAR          = "guitar"

	WINDOW_HANN = "hann"
	WINDOW_NONE = "none"
)

// ErrUnknownMethod is returned by Create for unregistered estimator names.
var ErrUnknownMethod = errors.New("unknown pitch detection method")

// Detector turns one block of samples into a frequency estimate. The boolean
// is false when the block holds no pitch (silence, noise, wrong size).
type Detector interface {
	Process(samples []float64) (float64, bool)
}

// Config describes a detector. Samples handed to Process are interleaved, so a
// block holds BufferSize*Channels values.
type Config struct {
	Method           string  `mapstructure:"method"`
	BufferSize       int     `mapstructure:"buffer_size"`
	Channels         int     `mapstructure:"channels"`
	SampleRate       uint32  `mapstructure:"sample_rate"`
	MinFrequency     float64 `mapstructure:"min_frequency"`
	MaxFrequency     float64 `mapstructure:"max_frequency"`
	SilenceThreshold float64 `mapstructure:"silence_threshold"`
	Window           string  `mapstructure:"window"`
	History          int     `mapstructure:"history"`
}

// DefaultConfig matches a 4096 sample mono block at 44.1 kHz.
func DefaultConfig() Config {
	return Config{
		Method:           METHOD_DEFAULT,
		BufferSize:       4096,
		Channels:         1,
		SampleRate:       44100,
		MinFrequency:     30.0,
		MaxFrequency:     4200.0,
		SilenceThreshold: 0.01,
		Window:           WINDOW_HANN,
	}
}

// AnalysisLength is the number of most recent mono samples the autocorrelation
// estimator looks at. Zero History means one block.
func (c Config) AnalysisLength() int {
	if c.History == 0 {
		return c.BufferSize
	}

	return c.History
}

// Validate reports the first inconsistent field.
func (c Config) Validate() error {
	switch {
	case c.BufferSize < 2:
		return fmt.Errorf("buffer size %d too small", c.BufferSize)
	case c.Channels < 1:
		return fmt.Errorf("channel count %d must be positive", c.Channels)
	case c.SampleRate == 0:
		return errors.New("sample rate must be positive")
	case c.MinFrequency <= 0 || c.MaxFrequency <= c.MinFrequency:
		return fmt.Errorf("frequency range [%v, %v] is empty", c.MinFrequency, c.MaxFrequency)
	case c.MaxFrequency > float64(c.SampleRate)/2:
		return fmt.Errorf("max frequency %v above nyquist of %d Hz", c.MaxFrequency, c.SampleRate)
	case c.SilenceThreshold < 0:
		return fmt.Errorf("silence threshold %v must not be negative", c.SilenceThreshold)
	case c.Window != WINDOW_HANN && c.Window != WINDOW_NONE:
		return fmt.Errorf("unknown window %q", c.Window)
	case c.History < 0 || (c.History > 0 && c.History < c.BufferSize):
		return fmt.Errorf("history %d shorter than a block of %d samples", c.History, c.BufferSize)
	case c.Method != "" && !slices.Contains(Methods(), c.Method):
		return fmt.Errorf("%q: %w, expected one of %s", c.Method, ErrUnknownMethod, strings.Join(Methods(), ", "))
	}

	return nil
}

// estimator is the raw library call behind a Detector. It receives a mono
// block of exactly BufferSize samples. reset drops any history kept between
// blocks.
type estimator interface {
	estimate(mono []float64) (float64, error)
	reset()
}

// Create builds a detector with default limits, mirroring the
// create(id, bufferSize, channels, sampleRate) contract of pitch libraries.
func Create(method string, bufferSize, channels int, sampleRate uint32) (Detector, error) {
	cfg := DefaultConfig()
	cfg.Method = method
	cfg.BufferSize = bufferSize
	cfg.Channels = channels
	cfg.SampleRate = sampleRate

	if nyquist := float64(sampleRate) / 2; cfg.MaxFrequency > nyquist {
		cfg.MaxFrequency = nyquist
	}

	return CreateWithConfig(cfg)
}

// CreateWithConfig builds a detector from a full configuration.
func CreateWithConfig(cfg Config) (Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pitch config: %w", err)
	}

	var est estimator

	switch cfg.Method {
	case METHOD_DEFAULT, METHOD_AUTOCORRELATION, "":
		ac, err := newAutocorrelation(cfg)
		if err != nil {
			return nil, err
		}
		est = ac
	case METHOD_GUITAR:
		est = newGuitar(cfg)
	}

	g := &gate{
		cfg:       cfg,
		estimator: est,
		mono:      make([]float64, cfg.BufferSize),
	}

	return g, nil
}

// Methods lists the accepted estimator names.
func Methods() []string {
	return []string{METHOD_DEFAULT, METHOD_AUTOCORRELATION, METHOD_GUITAR}
}

// gate guards an estimator against blocks that cannot hold a pitch and against
// estimates outside the configured range.
type gate struct {
	cfg       Config
	estimator estimator
	mono      []float64
	silent    bool
}

func (g *gate) Process(samples []float64) (float64, bool) {
	if len(samples) != g.cfg.BufferSize*g.cfg.Channels {
		return 0, false
	}

	mono := Downmix(samples, g.cfg.Channels, g.mono)

	// A pause ends the note, older samples must not leak into the next one.
	if RMS(mono) < g.cfg.SilenceThreshold {
		if !g.silent {
			g.estimator.reset()
			g.silent = true
		}
		return 0, false
	}

	g.silent = false

	frequency, err := g.estimator.estimate(mono)

	if err != nil || math.IsNaN(frequency) || math.IsInf(frequency, 0) {
		return 0, false
	}

	if frequency < g.cfg.MinFrequency || frequency > g.cfg.MaxFrequency {
		return 0, false
	}

	return frequency, true
}

// Downmix averages interleaved channels into out, which must hold
// len(samples)/channels values. With one channel it copies.
func Downmix(samples []float64, channels int, out []float64) []float64 {
	frames := len(samples) / channels
	out = out[:frames]

	if channels == 1 {
		copy(out, samples)
		return out
	}

	scale := 1.0 / float64(channels)

	for i := 0; i < frames; i++ {
		frame := samples[i*channels : (i+1)*channels]
		out[i] = floats.Sum(frame) * scale
	}

	return out
}

// RMS returns the root mean square level of a block.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	return math.Sqrt(floats.Dot(samples, samples) / float64(len(samples)))
}
