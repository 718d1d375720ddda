// Package audio delivers sample blocks from capture devices and files as an
// ordered, bounded stream.
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	BACKEND_AUTO      = "auto"
	BACKEND_PORTAUDIO = "portaudio"
	BACKEND_JACK      = "jack"
)

// ErrUnsupported means no capture backend works on this machine. Retrying
// will not help.
var ErrUnsupported = errors.New("audio capture not supported in this environment")

// CaptureError reports a failure to acquire or read an input device. Reason
// is the step that failed and is meant for the user.
type CaptureError struct {
	Backend string
	Reason  string
	Cause   error
}

func (e *CaptureError) Error() string {
	if e.Cause != nil {
		return e.Backend + ": " + e.Reason + ": " + e.Cause.Error()
	}
	return e.Backend + ": " + e.Reason
}

func (e *CaptureError) Unwrap() error {
	return e.Cause
}

// Block is one fixed-size chunk of mono samples.
type Block struct {
	Samples    []float64
	SampleRate uint32
	Sequence   uint64
}

// Duration is the playing time of the block.
func (b Block) Duration() time.Duration {
	if b.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// Source is a running input. Blocks is closed when the input ends, fails or
// is closed; Err then reports why it ended (nil for a clean end).
type Source interface {
	Blocks() <-chan Block
	SampleRate() uint32
	Err() error
	Close() error
}

// Opener acquires a source. It may block, e.g. while the device is busy.
type Opener func(ctx context.Context) (Source, error)

// Config selects and sizes a capture device.
type Config struct {
	Backend    string `mapstructure:"backend"`
	Device     string `mapstructure:"device"`
	SampleRate uint32 `mapstructure:"sample_rate"`
	BufferSize int    `mapstructure:"buffer_size"`
	QueueDepth int    `mapstructure:"queue_depth"`
	ClientName string `mapstructure:"client_name"`
}

// DefaultConfig captures 4096 sample blocks at 44.1 kHz from the default device.
func DefaultConfig() Config {
	return Config{
		Backend:    BACKEND_AUTO,
		SampleRate: 44100,
		BufferSize: 4096,
		QueueDepth: 8,
		ClientName: "tuner",
	}
}

// Validate reports the first inconsistent field.
func (c Config) Validate() error {
	switch {
	case c.Backend != BACKEND_AUTO && c.Backend != BACKEND_PORTAUDIO && c.Backend != BACKEND_JACK:
		return fmt.Errorf("unknown audio backend %q", c.Backend)
	case c.BufferSize < 2:
		return fmt.Errorf("buffer size %d too small", c.BufferSize)
	case c.QueueDepth < 1:
		return fmt.Errorf("queue depth %d must be positive", c.QueueDepth)
	}

	return nil
}

// stream is the plumbing shared by all sources: a producer goroutine filling
// a bounded channel, and a release step run once on Close.
type stream struct {
	blocks     chan Block
	sampleRate uint32
	cancel     context.CancelFunc
	group      *errgroup.Group
	release    func() error

	mu       sync.Mutex
	sequence uint64
	closed   bool

	once     sync.Once
	closeErr error
}

type producer func(ctx context.Context, s *stream) error

func startStream(parent context.Context, sampleRate uint32, depth int, produce producer, release func() error) *stream {
	ctx, cancel := context.WithCancel(parent)
	group, ctx := errgroup.WithContext(ctx)

	if release == nil {
		release = func() error { return nil }
	}

	s := &stream{
		blocks:     make(chan Block, depth),
		sampleRate: sampleRate,
		cancel:     cancel,
		group:      group,
		release:    release,
	}

	group.Go(func() error {
		defer s.finish()
		err := produce(ctx, s)

		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	})

	return s
}

func (s *stream) finish() {
	s.mu.Lock()
	s.closed = true
	close(s.blocks)
	s.mu.Unlock()
}

func (s *stream) next(samples []float64) Block {
	b := Block{
		Samples:    make([]float64, len(samples)),
		SampleRate: s.sampleRate,
		Sequence:   s.sequence,
	}

	copy(b.Samples, samples)
	s.sequence++
	return b
}

// send blocks until the consumer accepts the block or ctx is done.
func (s *stream) send(ctx context.Context, samples []float64) error {
	b := s.next(samples)

	select {
	case s.blocks <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// offer never blocks. It is used from real-time callbacks and reports false
// when the block was dropped.
func (s *stream) offer(samples []float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	b := s.next(samples)

	select {
	case s.blocks <- b:
		return true
	default:
		return false
	}
}

func (s *stream) Blocks() <-chan Block {
	return s.blocks
}

func (s *stream) SampleRate() uint32 {
	return s.sampleRate
}

func (s *stream) Err() error {
	return s.group.Wait()
}

func (s *stream) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.group.Wait()
		s.closeErr = s.release()
	})

	return s.closeErr
}
