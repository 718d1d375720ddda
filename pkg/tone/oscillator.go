package tone

import (
	"encoding/binary"
	"math"
	"sync/atomic"
)

// Oscillator is an endless sine wave rendered as signed 16-bit little-endian
// mono PCM. Its frequency can change while it plays; the phase carries over
// so the change does not click.
type Oscillator struct {
	sampleRate float64
	amplitude  float64
	frequency  atomic.Uint64
	phase      float64
}

// NewOscillator creates an oscillator. Amplitude is clamped to [0, 1].
func NewOscillator(frequency float64, sampleRate int, amplitude float64) *Oscillator {
	o := &Oscillator{
		sampleRate: float64(sampleRate),
		amplitude:  math.Max(0, math.Min(1, amplitude)),
	}

	o.SetFrequency(frequency)
	return o
}

// SetFrequency changes the pitch. It is safe to call while Read runs.
func (o *Oscillator) SetFrequency(frequency float64) {
	o.frequency.Store(math.Float64bits(frequency))
}

// Frequency returns the current pitch.
func (o *Oscillator) Frequency() float64 {
	return math.Float64frombits(o.frequency.Load())
}

// Next returns the next sample in [-amplitude, amplitude].
func (o *Oscillator) Next() float64 {
	sample := o.amplitude * math.Sin(2*math.Pi*o.phase)
	_, o.phase = math.Modf(o.phase + o.Frequency()/o.sampleRate)
	return sample
}

// Read fills p with whole samples. It never returns an error.
func (o *Oscillator) Read(p []byte) (int, error) {
	n := len(p) / 2 * 2

	for i := 0; i < n; i += 2 {
		v := int16(o.Next() * math.MaxInt16)
		binary.LittleEndian.PutUint16(p[i:], uint16(v))
	}

	return n, nil
}
