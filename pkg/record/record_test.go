package record

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep/v2/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalizeKeepsEveryChunk(t *testing.T) {
	r := New(1000)
	r.Append([]float64{0.1, 0.2, 0.3})
	r.Append(nil)
	r.Append([]float64{-0.1, -0.2})
	r.Append([]float64{0.5})

	assert.Equal(t, 6, r.Len())
	assert.Len(t, r.chunks, 3)

	path := filepath.Join(t.TempDir(), "take.wav")
	rec, err := r.FinalizeFile(path)
	require.NoError(t, err)

	assert.Equal(t, path, rec.Path)
	assert.Equal(t, 6, rec.Samples)
	assert.Equal(t, 3, rec.Chunks)
	assert.Equal(t, 6*time.Millisecond, rec.Duration)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	streamer, format, err := wav.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 1000, int(format.SampleRate))
	assert.Equal(t, 1, format.NumChannels)

	frames := make([][2]float64, 16)
	n, _ := streamer.Stream(frames)
	require.Equal(t, 6, n)

	expected := []float64{0.1, 0.2, 0.3, -0.1, -0.2, 0.5}
	for i, v := range expected {
		assert.InDelta(t, v, frames[i][0], 1e-3)
	}
}

func TestAppendCopies(t *testing.T) {
	r := New(8000)
	chunk := []float64{1, 2}
	r.Append(chunk)
	chunk[0] = 9

	s := &chunkStreamer{chunks: r.chunks}
	frames := make([][2]float64, 2)
	n, ok := s.Stream(frames)
	require.True(t, ok)
	require.Equal(t, 2, n)
	assert.Equal(t, 1.0, frames[0][0])
}

func TestFinalizeEmpty(t *testing.T) {
	r := New(8000)
	path := filepath.Join(t.TempDir(), "empty.wav")
	_, err := r.FinalizeFile(path)
	assert.ErrorIs(t, err, ErrEmpty)
	assert.NoFileExists(t, path)
}

func TestChunkStreamerSpansChunks(t *testing.T) {
	s := &chunkStreamer{chunks: [][]float64{{1, 2, 3}, {4}, {5, 6}}}
	frames := make([][2]float64, 4)

	n, ok := s.Stream(frames)
	assert.True(t, ok)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4.0, frames[3][1])

	n, ok = s.Stream(frames)
	assert.True(t, ok)
	assert.Equal(t, 2, n)
	assert.Equal(t, 6.0, frames[1][0])

	n, ok = s.Stream(frames)
	assert.False(t, ok)
	assert.Equal(t, 0, n)
}
