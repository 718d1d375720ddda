// Package tone plays a continuous reference tone at a settable frequency.
package tone

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/metalblueberry/tuner/pkg/guard"
)

// ErrNotPlaying is returned (wrapped in guard.ErrMisuse) by Stop when no tone
// is playing.
var ErrNotPlaying = errors.New("tone is not playing")

// ErrInvalidFrequency is returned for frequencies that cannot be rendered.
var ErrInvalidFrequency = errors.New("tone frequency must be positive, finite and below nyquist")

// Voice is a sound being played.
type Voice interface {
	Close() error
}

// Output starts pulling signed 16-bit little-endian mono PCM from r.
type Output interface {
	Start(r io.Reader) (Voice, error)
}

// Config controls the tone generator.
type Config struct {
	SampleRate int     `mapstructure:"sample_rate"`
	Amplitude  float64 `mapstructure:"amplitude"`
	Strict     bool    `mapstructure:"strict"`
}

// DefaultConfig plays at half volume at 44.1 kHz.
func DefaultConfig() Config {
	return Config{
		SampleRate: 44100,
		Amplitude:  0.5,
	}
}

// Player owns at most one tone generator at a time.
type Player struct {
	mu     sync.Mutex
	output Output
	cfg    Config
	log    *zap.Logger
	osc    *Oscillator
	voice  Voice
}

// NewPlayer creates a player writing to output.
func NewPlayer(output Output, cfg Config, log *zap.Logger) *Player {
	if log == nil {
		log = zap.NewNop()
	}

	return &Player{
		output: output,
		cfg:    cfg,
		log:    log,
	}
}

func (p *Player) validFrequency(frequency float64) bool {
	if math.IsNaN(frequency) || math.IsInf(frequency, 0) {
		return false
	}
	return frequency > 0 && frequency < float64(p.cfg.SampleRate)/2
}

// Play starts the tone, or retunes it when it is already playing.
func (p *Player) Play(frequency float64) error {
	if !p.validFrequency(frequency) {
		return fmt.Errorf("%v Hz: %w", frequency, ErrInvalidFrequency)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.osc != nil {
		p.osc.SetFrequency(frequency)
		p.log.Debug("tone retuned", zap.Float64("frequency", frequency))
		return nil
	}

	osc := NewOscillator(frequency, p.cfg.SampleRate, p.cfg.Amplitude)
	voice, err := p.output.Start(osc)

	if err != nil {
		return fmt.Errorf("start tone: %w", err)
	}

	p.osc = osc
	p.voice = voice
	p.log.Info("tone started", zap.Float64("frequency", frequency))
	return nil
}

// Stop tears the generator down.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.osc == nil {
		return guard.Misuse(p.cfg.Strict, ErrNotPlaying)
	}

	err := p.voice.Close()
	p.osc = nil
	p.voice = nil
	p.log.Info("tone stopped")

	if err != nil {
		return fmt.Errorf("stop tone: %w", err)
	}

	return nil
}

// Playing reports whether a tone is playing.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.osc != nil
}

// Frequency returns the frequency of the playing tone, or zero.
func (p *Player) Frequency() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.osc == nil {
		return 0
	}

	return p.osc.Frequency()
}
