package tuner

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalblueberry/tuner/pkg/audio"
	"github.com/metalblueberry/tuner/pkg/guard"
	"github.com/metalblueberry/tuner/pkg/note"
	"github.com/metalblueberry/tuner/pkg/pitch"
	"github.com/metalblueberry/tuner/pkg/record"
)

const (
	TEST_RATE  = 8000
	TEST_BLOCK = 256
	TEST_WAIT  = 5 * time.Second
	TEST_POLL  = 5 * time.Millisecond
)

// constDetector reports the same frequency for every block.
type constDetector struct {
	frequency float64
	ok        bool
}

func (d constDetector) Process(samples []float64) (float64, bool) {
	return d.frequency, d.ok
}

func constFactory(frequency float64, ok bool) DetectorFactory {
	return func(uint32) (pitch.Detector, error) {
		return constDetector{frequency: frequency, ok: ok}, nil
	}
}

// trackedSource wraps a source and counts Close calls.
type trackedSource struct {
	audio.Source
	closed atomic.Int32
}

func (s *trackedSource) Close() error {
	s.closed.Add(1)
	return s.Source.Close()
}

func sineOpener(blocks int, realtime bool) (audio.Opener, *trackedSource) {
	tracked := &trackedSource{}
	var mu sync.Mutex

	open := func(ctx context.Context) (audio.Source, error) {
		mu.Lock()
		defer mu.Unlock()

		source, err := audio.NewSine(ctx, audio.SineConfig{
			Frequency:  440,
			Amplitude:  0.5,
			SampleRate: TEST_RATE,
			BufferSize: TEST_BLOCK,
			Blocks:     blocks,
			QueueDepth: 2,
			Realtime:   realtime,
		})

		if err != nil {
			return nil, err
		}

		tracked.Source = source
		return tracked, nil
	}

	return open, tracked
}

func waitState(t *testing.T, c *Controller, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, TEST_WAIT, TEST_POLL, "state %s", want)
}

func TestStartReportsNotes(t *testing.T) {
	var mu sync.Mutex
	var seen []note.Detection

	c := New(Config{
		Detector: constFactory(440, true),
		OnNote: func(d note.Detection) {
			mu.Lock()
			seen = append(seen, d)
			mu.Unlock()
		},
	})

	open, source := sineOpener(5, false)
	require.NoError(t, c.Start(context.Background(), open, Options{}))
	require.NoError(t, c.Wait())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 5)
	assert.Equal(t, "A", seen[0].Name)
	assert.Equal(t, 69, seen[0].Value)
	assert.Equal(t, 0, seen[0].Cents)
	assert.Equal(t, Stats{Blocks: 5, Detections: 5}, c.Stats())
	assert.Equal(t, int32(1), source.closed.Load())

	// The input ended, Stop still collects the session once.
	assert.Equal(t, StateInactive, c.State())
	rec, err := c.Stop()
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, StateInactive, c.State())

	_, err = c.Stop()
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestAbsentBlocksAreSkipped(t *testing.T) {
	calls := 0
	c := New(Config{
		Detector: constFactory(0, false),
		OnNote:   func(note.Detection) { calls++ },
	})

	open, _ := sineOpener(3, false)
	require.NoError(t, c.Start(context.Background(), open, Options{}))
	require.NoError(t, c.Wait())

	assert.Zero(t, calls)
	assert.Equal(t, Stats{Blocks: 3}, c.Stats())
	_, err := c.Stop()
	require.NoError(t, err)
}

func TestStartTwiceIsMisuse(t *testing.T) {
	c := New(Config{Detector: constFactory(440, true)})
	open, _ := sineOpener(0, true)

	require.NoError(t, c.Start(context.Background(), open, Options{}))
	err := c.Start(context.Background(), open, Options{})
	assert.ErrorIs(t, err, ErrAlreadyActive)
	assert.ErrorIs(t, err, guard.ErrMisuse)

	_, err = c.Stop()
	require.NoError(t, err)
}

func TestStopInactiveIsMisuse(t *testing.T) {
	c := New(Config{Detector: constFactory(440, true)})

	_, err := c.Stop()
	assert.ErrorIs(t, err, ErrNotActive)
	assert.ErrorIs(t, err, guard.ErrMisuse)
	assert.Equal(t, StateInactive, c.State())
}

func TestStrictMisusePanics(t *testing.T) {
	c := New(Config{Detector: constFactory(440, true), Strict: true})

	assert.Panics(t, func() { c.Stop() })
}

func TestStopWhilePendingReleasesSource(t *testing.T) {
	c := New(Config{Detector: constFactory(440, true)})

	release := make(chan struct{})
	entered := make(chan struct{})
	inner, source := sineOpener(0, true)

	open := func(ctx context.Context) (audio.Source, error) {
		close(entered)
		<-release
		return inner(ctx)
	}

	require.NoError(t, c.Start(context.Background(), open, Options{}))
	<-entered
	assert.Equal(t, StatePending, c.State())

	stopped := make(chan error, 1)
	go func() {
		_, err := c.Stop()
		stopped <- err
	}()

	waitState(t, c, StateStopping)
	close(release)

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(TEST_WAIT):
		t.Fatal("stop did not return")
	}

	assert.Equal(t, int32(1), source.closed.Load())
	assert.Equal(t, StateInactive, c.State())
	assert.Zero(t, c.Stats().Blocks)
}

func TestStopWhileCapturing(t *testing.T) {
	c := New(Config{Detector: constFactory(440, true)})
	open, source := sineOpener(0, true)

	require.NoError(t, c.Start(context.Background(), open, Options{}))
	waitState(t, c, StateCapturing)

	_, err := c.Stop()
	require.NoError(t, err)
	assert.Equal(t, int32(1), source.closed.Load())
	assert.Equal(t, StateInactive, c.State())

	// The controller can be reused.
	open, _ = sineOpener(2, false)
	require.NoError(t, c.Start(context.Background(), open, Options{}))
	require.NoError(t, c.Wait())
	_, err = c.Stop()
	require.NoError(t, err)
}

func TestRecordingKeepsEveryBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.wav")
	c := New(Config{Detector: constFactory(440, true)})
	inner, _ := sineOpener(4, false)
	release := make(chan struct{})

	open := func(ctx context.Context) (audio.Source, error) {
		<-release
		return inner(ctx)
	}

	require.NoError(t, c.Start(context.Background(), open, Options{RecordPath: path}))
	assert.True(t, c.Recording())
	close(release)
	require.NoError(t, c.Wait())
	assert.False(t, c.Recording())

	rec, err := c.Stop()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, path, rec.Path)
	assert.Equal(t, 4, rec.Chunks)
	assert.Equal(t, 4*TEST_BLOCK, rec.Samples)
	assert.Equal(t, uint32(TEST_RATE), rec.SampleRate)
	assert.FileExists(t, path)
	assert.False(t, c.Recording())
}

func TestOpenErrorSurfaces(t *testing.T) {
	c := New(Config{Detector: constFactory(440, true)})
	boom := errors.New("no microphone")

	open := func(context.Context) (audio.Source, error) {
		return nil, boom
	}

	require.NoError(t, c.Start(context.Background(), open, Options{}))
	assert.ErrorIs(t, c.Wait(), boom)
	assert.Equal(t, StateInactive, c.State())

	_, err := c.Stop()
	require.NoError(t, err)
}

func TestStartAgainAfterDeniedOpen(t *testing.T) {
	for _, strict := range []bool{false, true} {
		c := New(Config{Detector: constFactory(440, true), Strict: strict})
		denied := func(context.Context) (audio.Source, error) {
			return nil, errors.New("permission denied")
		}

		require.NoError(t, c.Start(context.Background(), denied, Options{}))
		require.Error(t, c.Wait())

		open, source := sineOpener(3, false)
		var err error
		require.NotPanics(t, func() { err = c.Start(context.Background(), open, Options{}) }, "strict %v", strict)
		require.NoError(t, err)
		require.NoError(t, c.Wait())
		assert.Equal(t, Stats{Blocks: 3, Detections: 3}, c.Stats())
		assert.Equal(t, int32(1), source.closed.Load())
	}
}

func TestStopAfterFailedOpenReportsEmptyRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.wav")
	c := New(Config{Detector: constFactory(440, true)})
	open := func(context.Context) (audio.Source, error) {
		return nil, errors.New("no microphone")
	}

	require.NoError(t, c.Start(context.Background(), open, Options{RecordPath: path}))
	require.Error(t, c.Wait())

	rec, err := c.Stop()
	assert.ErrorIs(t, err, record.ErrEmpty)
	assert.Nil(t, rec)
	assert.NoFileExists(t, path)
}

func TestStartWritesRecordingOfEndedSession(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.wav")
	c := New(Config{Detector: constFactory(440, true)})

	open, _ := sineOpener(2, false)
	require.NoError(t, c.Start(context.Background(), open, Options{RecordPath: first}))
	require.NoError(t, c.Wait())

	open, _ = sineOpener(2, false)
	require.NoError(t, c.Start(context.Background(), open, Options{}))
	assert.FileExists(t, first)

	require.NoError(t, c.Wait())
	rec, err := c.Stop()
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStopFromCallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.wav")
	type result struct {
		rec *record.Recording
		err error
	}
	stopped := make(chan result, 1)

	var c *Controller
	var once sync.Once
	c = New(Config{
		Detector: constFactory(440, true),
		OnNote: func(note.Detection) {
			once.Do(func() {
				rec, err := c.Stop()
				stopped <- result{rec, err}
			})
		},
	})

	open, source := sineOpener(0, true)
	require.NoError(t, c.Start(context.Background(), open, Options{RecordPath: path}))

	select {
	case r := <-stopped:
		require.NoError(t, r.err)
		require.NotNil(t, r.rec)
		assert.Equal(t, 1, r.rec.Chunks)
	case <-time.After(TEST_WAIT):
		t.Fatal("stop from the callback did not return")
	}

	require.NoError(t, c.Wait())
	assert.Equal(t, StateInactive, c.State())
	assert.Equal(t, int32(1), source.closed.Load())
	assert.FileExists(t, path)
}

func TestDetectorErrorReleasesSource(t *testing.T) {
	boom := errors.New("bad detector")
	c := New(Config{Detector: func(uint32) (pitch.Detector, error) { return nil, boom }})
	open, source := sineOpener(0, true)

	require.NoError(t, c.Start(context.Background(), open, Options{}))
	assert.ErrorIs(t, c.Wait(), boom)
	assert.Equal(t, int32(1), source.closed.Load())
	assert.Equal(t, StateInactive, c.State())

	_, err := c.Stop()
	require.NoError(t, err)
}

func TestAnalyzerWithRealDetector(t *testing.T) {
	detector, err := pitch.Create(pitch.METHOD_AUTOCORRELATION, TEST_BLOCK*8, 1, TEST_RATE)
	require.NoError(t, err)

	source, err := audio.NewSine(context.Background(), audio.SineConfig{
		Frequency:  440,
		Amplitude:  0.5,
		SampleRate: TEST_RATE,
		BufferSize: TEST_BLOCK * 8,
		Blocks:     1,
		QueueDepth: 1,
	})
	require.NoError(t, err)
	defer source.Close()

	a := NewAnalyzer(detector, note.Default())
	block := <-source.Blocks()

	d, ok := a.Analyze(block)
	require.True(t, ok)
	assert.Equal(t, "A", d.Name)
	assert.Equal(t, 4, d.Octave)
}

func TestState(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "State(9)", State(9).String())
}
