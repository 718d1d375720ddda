// Package tuner runs capture sessions: it pulls blocks from an audio source,
// records them on request and reports the note heard in each block.
package tuner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/metalblueberry/tuner/pkg/audio"
	"github.com/metalblueberry/tuner/pkg/guard"
	"github.com/metalblueberry/tuner/pkg/note"
	"github.com/metalblueberry/tuner/pkg/pitch"
	"github.com/metalblueberry/tuner/pkg/record"
)

// State is the lifecycle position of a Controller.
type State int

const (
	StateInactive State = iota
	StatePending
	StateCapturing
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StatePending:
		return "pending"
	case StateCapturing:
		return "capturing"
	case StateStopping:
		return "stopping"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	ErrAlreadyActive = errors.New("capture already active")
	ErrNotActive     = errors.New("capture not active")
)

// DetectorFactory creates a detector once the sample rate of the source is
// known.
type DetectorFactory func(sampleRate uint32) (pitch.Detector, error)

// MethodFactory returns a factory for a pitch method with the library defaults.
func MethodFactory(method string, bufferSize int) DetectorFactory {
	return func(sampleRate uint32) (pitch.Detector, error) {
		return pitch.Create(method, bufferSize, 1, sampleRate)
	}
}

// ConfigFactory returns a factory which overrides the sample rate of cfg.
func ConfigFactory(cfg pitch.Config) DetectorFactory {
	return func(sampleRate uint32) (pitch.Detector, error) {
		c := cfg
		c.SampleRate = sampleRate

		if nyquist := float64(sampleRate) / 2; c.MaxFrequency > nyquist {
			c.MaxFrequency = nyquist
		}

		return pitch.CreateWithConfig(c)
	}
}

// Options configure a single session.
type Options struct {
	// RecordPath, when set, records the session into a WAV file written on
	// Stop.
	RecordPath string
}

// Stats summarises a session.
type Stats struct {
	Blocks     uint64
	Detections uint64
}

// session is one Start. It stays uncollected until Stop returns its
// recording, even when its input ended on its own.
type session struct {
	opts       Options
	cancel     context.CancelFunc
	done       chan struct{}
	recorder   *record.Recorder
	stats      Stats
	err        error
	inCallback bool
	collected  bool
}

// Controller owns one capture session at a time.
type Controller struct {
	mapper      *note.Mapper
	newDetector DetectorFactory
	onNote      func(note.Detection)
	log         *zap.Logger
	strict      bool

	mu      sync.Mutex
	state   State
	current *session
}

// Config wires a Controller.
type Config struct {
	Mapper   *note.Mapper
	Detector DetectorFactory
	// OnNote is called from the session goroutine for every block that
	// holds a note. It may call Stop.
	OnNote func(note.Detection)
	Logger *zap.Logger
	// Strict turns misuse errors into panics.
	Strict bool
}

// New creates an inactive controller.
func New(cfg Config) *Controller {
	if cfg.Mapper == nil {
		cfg.Mapper = note.Default()
	}

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Controller{
		mapper:      cfg.Mapper,
		newDetector: cfg.Detector,
		onNote:      cfg.OnNote,
		log:         cfg.Logger,
		strict:      cfg.Strict,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Recording reports whether a running session records its input.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return false
	}

	running := c.state == StatePending || c.state == StateCapturing
	return running && c.current.opts.RecordPath != ""
}

// Stats returns the counters of the current or last session.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return Stats{}
	}

	return c.current.stats
}

// Start opens a source asynchronously. The controller is pending until the
// opener returns, then capturing until Stop or until the input ends. A
// failed open or a finished input returns the controller to inactive, so
// Start may be called again. A recording left behind by a session that ended
// on its own and was never stopped is written before the new session begins.
func (c *Controller) Start(ctx context.Context, open audio.Opener, opts Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInactive {
		return guard.Misuse(c.strict, fmt.Errorf("%w (%s)", ErrAlreadyActive, c.state))
	}

	if c.newDetector == nil {
		return errors.New("controller has no detector factory")
	}

	if previous := c.current; previous != nil && !previous.collected {
		previous.cancel()
		recorder, path := c.collect(previous)

		if _, err := c.finalize(recorder, path); err != nil && !errors.Is(err, record.ErrEmpty) {
			c.log.Warn("previous recording lost", zap.String("path", path), zap.Error(err))
		}
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	s := &session{
		opts:   opts,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	c.state = StatePending
	c.current = s

	go c.run(sessionCtx, open, s)
	return nil
}

// run is the session goroutine. It releases the source on every path.
func (c *Controller) run(ctx context.Context, open audio.Opener, s *session) {
	defer close(s.done)
	log := c.log

	source, err := open(ctx)

	if err != nil {
		c.end(s, fmt.Errorf("open source: %w", err))
		return
	}

	closeSource := func() {
		if err := source.Close(); err != nil {
			log.Warn("closing source failed", zap.Error(err))
		}
	}

	detector, err := c.newDetector(source.SampleRate())

	if err != nil {
		closeSource()
		c.end(s, fmt.Errorf("create detector: %w", err))
		return
	}

	analyzer := NewAnalyzer(detector, c.mapper)
	c.mu.Lock()

	/*
	 * Stop may have been called while the source was opening.
	 */
	if c.current != s || c.state != StatePending || ctx.Err() != nil {
		c.mu.Unlock()
		closeSource()
		log.Debug("session stopped before capture began")
		return
	}

	var recorder *record.Recorder

	if s.opts.RecordPath != "" {
		recorder = record.New(source.SampleRate())
		s.recorder = recorder
	}

	c.state = StateCapturing
	c.mu.Unlock()
	log.Info("session capturing", zap.Uint32("sample_rate", source.SampleRate()), zap.Bool("recording", recorder != nil))

	for block := range source.Blocks() {

		/*
		 * A Stop from inside the callback does not wait for this loop,
		 * so nothing may reach the recorder after it.
		 */
		if ctx.Err() != nil {
			break
		}

		if recorder != nil {
			recorder.Append(block.Samples)
		}

		d, ok := analyzer.Analyze(block)
		notify := ok && c.onNote != nil

		c.mu.Lock()
		s.stats.Blocks++
		if ok {
			s.stats.Detections++
		}
		s.inCallback = notify
		c.mu.Unlock()

		if notify {
			c.onNote(d)

			c.mu.Lock()
			s.inCallback = false
			c.mu.Unlock()
		}
	}

	err = source.Err()
	closeSource()

	if err != nil {
		c.end(s, fmt.Errorf("capture: %w", err))
		return
	}

	c.end(s, nil)
}

// end records how a session finished. Unless Stop is already taking the
// session down, the controller becomes inactive.
func (c *Controller) end(s *session, err error) {
	c.mu.Lock()
	s.err = err
	stats := s.stats

	if c.current == s && (c.state == StatePending || c.state == StateCapturing) {
		c.state = StateInactive
	}

	c.mu.Unlock()

	if err != nil {
		c.log.Error("session failed", zap.Error(err))
		return
	}

	c.log.Info("session input ended", zap.Uint64("blocks", stats.Blocks), zap.Uint64("detections", stats.Detections))
}

// Wait blocks until the session input ends (or the session is stopped) and
// returns the error that ended it, if any.
func (c *Controller) Wait() error {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()

	if s == nil {
		return nil
	}

	<-s.done

	c.mu.Lock()
	defer c.mu.Unlock()
	return s.err
}

// Done is closed when the session input ends. It is nil before the first
// Start.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return nil
	}

	return c.current.done
}

// Stop cancels the session, waits until the source is released and writes
// the recording when one was requested. It also collects a session whose
// input already ended. When recording was requested but no block arrived
// the error wraps record.ErrEmpty.
//
// While the detection callback runs, including a call from the callback
// itself, Stop returns without waiting; the source is released as soon as
// the callback returns.
func (c *Controller) Stop() (*record.Recording, error) {
	c.mu.Lock()
	s := c.current

	if s == nil || s.collected || c.state == StateStopping {
		state := c.state
		c.mu.Unlock()
		return nil, guard.Misuse(c.strict, fmt.Errorf("%w (%s)", ErrNotActive, state))
	}

	c.state = StateStopping
	reentrant := s.inCallback
	c.mu.Unlock()

	s.cancel()

	if !reentrant {
		<-s.done
	}

	c.mu.Lock()
	recorder, path := c.collect(s)
	c.state = StateInactive
	c.mu.Unlock()

	return c.finalize(recorder, path)
}

// collect takes the recorder out of a session. The caller holds mu.
func (c *Controller) collect(s *session) (*record.Recorder, string) {
	recorder := s.recorder
	s.recorder = nil
	s.collected = true
	return recorder, s.opts.RecordPath
}

func (c *Controller) finalize(recorder *record.Recorder, path string) (*record.Recording, error) {
	if path == "" {
		return nil, nil
	}

	if recorder == nil {
		return nil, fmt.Errorf("recording %s: %w", path, record.ErrEmpty)
	}

	rec, err := recorder.FinalizeFile(path)

	if err != nil {
		return nil, fmt.Errorf("finalize recording: %w", err)
	}

	c.log.Info("recording saved", zap.String("path", rec.Path), zap.Duration("duration", rec.Duration), zap.Int("chunks", rec.Chunks))
	return rec, nil
}
