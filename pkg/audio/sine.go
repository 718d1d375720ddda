package audio

import (
	"context"
	"fmt"
	"math"
	"time"
)

// SineConfig describes a synthetic input.
type SineConfig struct {
	Frequency  float64
	Amplitude  float64
	SampleRate uint32
	BufferSize int
	// Blocks limits the number of blocks; zero means endless.
	Blocks     int
	QueueDepth int
	Realtime   bool
}

// Validate reports the first field the generator cannot work with.
func (c SineConfig) Validate() error {
	switch {
	case c.SampleRate == 0:
		return fmt.Errorf("sine sample rate %d must be positive", c.SampleRate)
	case c.BufferSize < 1:
		return fmt.Errorf("sine buffer size %d must be positive", c.BufferSize)
	case c.Blocks < 0:
		return fmt.Errorf("sine block count %d must not be negative", c.Blocks)
	case math.IsNaN(c.Frequency) || math.IsInf(c.Frequency, 0) || c.Frequency < 0:
		return fmt.Errorf("sine frequency %v out of range", c.Frequency)
	case math.IsNaN(c.Amplitude) || math.IsInf(c.Amplitude, 0):
		return fmt.Errorf("sine amplitude %v out of range", c.Amplitude)
	}

	return nil
}

// NewSine starts a synthetic source producing a pure tone. It stands in for a
// microphone in tests and demos.
func NewSine(ctx context.Context, cfg SineConfig) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = 1
	}

	step := 2 * math.Pi * cfg.Frequency / float64(cfg.SampleRate)
	period := time.Duration(cfg.BufferSize) * time.Second / time.Duration(cfg.SampleRate)

	produce := func(ctx context.Context, s *stream) error {
		block := make([]float64, cfg.BufferSize)
		phase := 0.0
		var ticker *time.Ticker

		if cfg.Realtime {
			ticker = time.NewTicker(period)
			defer ticker.Stop()
		}

		for count := 0; cfg.Blocks == 0 || count < cfg.Blocks; count++ {
			for i := range block {
				block[i] = cfg.Amplitude * math.Sin(phase)
				phase = math.Mod(phase+step, 2*math.Pi)
			}

			if ticker != nil {
				select {
				case <-ticker.C:
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			if err := s.send(ctx, block); err != nil {
				return err
			}
		}

		return nil
	}

	return startStream(ctx, cfg.SampleRate, cfg.QueueDepth, produce, nil), nil
}
