package tone

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalblueberry/tuner/pkg/guard"
)

type fakeVoice struct {
	closed int
}

func (v *fakeVoice) Close() error {
	v.closed++
	return nil
}

type fakeOutput struct {
	started []io.Reader
	voices  []*fakeVoice
	err     error
}

func (o *fakeOutput) Start(r io.Reader) (Voice, error) {
	if o.err != nil {
		return nil, o.err
	}

	v := &fakeVoice{}
	o.started = append(o.started, r)
	o.voices = append(o.voices, v)
	return v, nil
}

func TestPlayCreatesOneGenerator(t *testing.T) {
	out := &fakeOutput{}
	p := NewPlayer(out, DefaultConfig(), nil)

	require.NoError(t, p.Play(440))
	require.NoError(t, p.Play(466.16))

	assert.Len(t, out.started, 1)
	assert.True(t, p.Playing())
	assert.Equal(t, 466.16, p.Frequency())
}

func TestStopTearsDown(t *testing.T) {
	out := &fakeOutput{}
	p := NewPlayer(out, DefaultConfig(), nil)

	require.NoError(t, p.Play(440))
	require.NoError(t, p.Stop())

	assert.False(t, p.Playing())
	assert.Equal(t, 0.0, p.Frequency())
	assert.Equal(t, 1, out.voices[0].closed)

	// A new Play after Stop starts a fresh generator.
	require.NoError(t, p.Play(220))
	assert.Len(t, out.started, 2)
}

func TestStopMisuse(t *testing.T) {
	out := &fakeOutput{}
	p := NewPlayer(out, DefaultConfig(), nil)

	err := p.Stop()
	assert.ErrorIs(t, err, ErrNotPlaying)
	assert.ErrorIs(t, err, guard.ErrMisuse)

	require.NoError(t, p.Play(440))
	require.NoError(t, p.Stop())
	assert.ErrorIs(t, p.Stop(), ErrNotPlaying)
	assert.Equal(t, 1, out.voices[0].closed)
}

func TestStrictStopPanics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strict = true
	p := NewPlayer(&fakeOutput{}, cfg, nil)

	assert.Panics(t, func() { p.Stop() })
}

func TestPlayRejectsInvalidFrequency(t *testing.T) {
	out := &fakeOutput{}
	p := NewPlayer(out, DefaultConfig(), nil)

	for _, f := range []float64{0, -5, math.NaN(), math.Inf(1), 30000} {
		assert.ErrorIs(t, p.Play(f), ErrInvalidFrequency, "frequency %v", f)
	}

	assert.Empty(t, out.started)
	assert.False(t, p.Playing())
}

func TestPlayOutputFailure(t *testing.T) {
	p := NewPlayer(&fakeOutput{err: errors.New("no speaker")}, DefaultConfig(), nil)

	assert.Error(t, p.Play(440))
	assert.False(t, p.Playing())
}

func TestOscillatorRendersSine(t *testing.T) {
	o := NewOscillator(1000, 8000, 1)
	buf := make([]byte, 17)

	n, err := o.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 16, n)

	expected := []float64{0, math.Sqrt2 / 2, 1, math.Sqrt2 / 2, 0, -math.Sqrt2 / 2, -1, -math.Sqrt2 / 2}
	for i, e := range expected {
		v := int16(binary.LittleEndian.Uint16(buf[2*i:]))
		assert.InDelta(t, e, float64(v)/math.MaxInt16, 1e-3, "sample %d", i)
	}
}

func TestOscillatorRetunePreservesPhase(t *testing.T) {
	o := NewOscillator(1000, 8000, 1)

	o.Next()
	o.Next()
	o.SetFrequency(2000)

	assert.InDelta(t, 1.0, o.Next(), 1e-9)
	assert.InDelta(t, 0.0, o.Next(), 1e-9)
	assert.Equal(t, 2000.0, o.Frequency())
}
