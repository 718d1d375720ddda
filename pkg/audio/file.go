package audio

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"

	"github.com/metalblueberry/tuner/pkg/circular"
)

// FileConfig controls playback-analysis of a recorded file.
type FileConfig struct {
	Path       string
	BufferSize int
	QueueDepth int
	// Realtime paces blocks at the speed they would be heard.
	Realtime bool
}

// OpenFile decodes a WAV file and delivers it as blocks. The last block is
// padded with silence.
func OpenFile(ctx context.Context, cfg FileConfig) (Source, error) {
	if cfg.BufferSize < 2 {
		return nil, fmt.Errorf("buffer size %d too small", cfg.BufferSize)
	}

	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = 1
	}

	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Path, err)
	}

	streamer, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode %s: %w", cfg.Path, err)
	}

	return StreamSource(ctx, streamer, format, cfg.BufferSize, cfg.QueueDepth, cfg.Realtime, streamer.Close), nil
}

// StreamSource delivers any beep streamer as blocks, down-mixed to mono.
// release runs on Close and may be nil.
func StreamSource(ctx context.Context, streamer beep.Streamer, format beep.Format, bufferSize, depth int, realtime bool, release func() error) Source {
	sampleRate := uint32(format.SampleRate)
	period := format.SampleRate.D(bufferSize)

	produce := func(ctx context.Context, s *stream) error {
		framer := circular.CreateFramer[float64](bufferSize)
		frames := make([][2]float64, bufferSize)
		mono := make([]float64, bufferSize)
		var sendErr error
		var ticker *time.Ticker

		if realtime {
			ticker = time.NewTicker(period)
			defer ticker.Stop()
		}

		emit := func(block []float64) {
			if sendErr != nil {
				return
			}

			if ticker != nil {
				select {
				case <-ticker.C:
				case <-ctx.Done():
					sendErr = ctx.Err()
					return
				}
			}

			sendErr = s.send(ctx, block)
		}

		for sendErr == nil {
			n, ok := streamer.Stream(frames)

			for i := 0; i < n; i++ {
				mono[i] = (frames[i][0] + frames[i][1]) / 2
			}

			framer.Write(mono[:n], emit)

			if !ok {
				break
			}
		}

		if sendErr != nil {
			return sendErr
		}

		framer.Flush(emit)

		if sendErr != nil {
			return sendErr
		}

		return streamer.Err()
	}

	return startStream(ctx, sampleRate, depth, produce, release)
}
