// Package record keeps the audio captured during a session and exports it as
// a WAV file when the session ends.
package record

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
)

// ErrEmpty is returned when finalizing a recorder that holds no samples.
var ErrEmpty = errors.New("nothing recorded")

// Recording describes a finalized export.
type Recording struct {
	Path       string        `json:"path,omitempty" yaml:"path,omitempty"`
	SampleRate uint32        `json:"sample_rate" yaml:"sample_rate"`
	Samples    int           `json:"samples" yaml:"samples"`
	Chunks     int           `json:"chunks" yaml:"chunks"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
}

// Recorder accumulates mono chunks. Every appended chunk is kept.
type Recorder struct {
	mu         sync.Mutex
	sampleRate uint32
	chunks     [][]float64
	samples    int
}

// New creates a recorder for mono audio at the given rate.
func New(sampleRate uint32) *Recorder {
	return &Recorder{sampleRate: sampleRate}
}

// Append copies a chunk into the recording.
func (r *Recorder) Append(samples []float64) {
	if len(samples) == 0 {
		return
	}

	chunk := make([]float64, len(samples))
	copy(chunk, samples)

	r.mu.Lock()
	r.chunks = append(r.chunks, chunk)
	r.samples += len(chunk)
	r.mu.Unlock()
}

// Len returns the number of recorded samples.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples
}

// Finalize encodes all chunks as 16-bit PCM WAV. The recorder keeps its
// chunks, so Finalize can be repeated.
func (r *Recorder) Finalize(w io.WriteSeeker) (*Recording, error) {
	r.mu.Lock()
	chunks := r.chunks
	samples := r.samples
	r.mu.Unlock()

	if samples == 0 {
		return nil, ErrEmpty
	}

	if r.sampleRate == 0 {
		return nil, errors.New("recorder has no sample rate")
	}

	format := beep.Format{
		SampleRate:  beep.SampleRate(r.sampleRate),
		NumChannels: 1,
		Precision:   2,
	}

	if err := wav.Encode(w, &chunkStreamer{chunks: chunks}, format); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}

	rec := &Recording{
		SampleRate: r.sampleRate,
		Samples:    samples,
		Chunks:     len(chunks),
		Duration:   format.SampleRate.D(samples),
	}

	return rec, nil
}

// FinalizeFile writes the recording to path, replacing any existing file.
func (r *Recorder) FinalizeFile(path string) (*Recording, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	rec, err := r.Finalize(f)
	closeErr := f.Close()

	if err != nil {
		os.Remove(path)
		return nil, err
	}

	if closeErr != nil {
		return nil, fmt.Errorf("close %s: %w", path, closeErr)
	}

	rec.Path = path
	return rec, nil
}

// chunkStreamer plays recorded chunks back in order.
type chunkStreamer struct {
	chunks [][]float64
	chunk  int
	pos    int
}

func (c *chunkStreamer) Stream(samples [][2]float64) (int, bool) {
	n := 0

	for n < len(samples) && c.chunk < len(c.chunks) {
		current := c.chunks[c.chunk]

		for c.pos < len(current) && n < len(samples) {
			v := current[c.pos]
			samples[n] = [2]float64{v, v}
			c.pos++
			n++
		}

		if c.pos == len(current) {
			c.chunk++
			c.pos = 0
		}
	}

	return n, n > 0
}

func (c *chunkStreamer) Err() error {
	return nil
}
