package audio

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/xthexder/go-jack"
	"go.uber.org/zap"

	"github.com/metalblueberry/tuner/pkg/circular"
)

type jackCapture struct {
	log *zap.Logger
}

func (j *jackCapture) Backend() string {
	return BACKEND_JACK
}

func jackError(reason string, code int) error {
	return &CaptureError{Backend: BACKEND_JACK, Reason: reason, Cause: jack.StrError(code)}
}

// probeJack checks that a JACK server is running. It never starts one.
func probeJack(name string) error {
	client, status := jack.ClientOpen(name, jack.NoStartServer)

	if status != 0 || client == nil {
		return jack.StrError(status)
	}

	client.Close()
	return nil
}

// Open registers an input port and connects it to the first physical capture
// port, or to the port named by cfg.Device. Samples arrive at the server's
// rate and period; they are re-framed into cfg.BufferSize blocks. The process
// callback never blocks, so blocks are dropped (and counted) when the consumer
// falls behind.
func (j *jackCapture) Open(ctx context.Context, cfg Config) (Source, error) {
	client, status := jack.ClientOpen(cfg.ClientName, jack.NoStartServer)

	if status != 0 || client == nil {
		return nil, jackError("open client", status)
	}

	port := client.PortRegister("input", jack.DEFAULT_AUDIO_TYPE, jack.PortIsInput, 0)

	if port == nil {
		client.Close()
		return nil, &CaptureError{Backend: BACKEND_JACK, Reason: "register port", Cause: errors.New("port registration refused")}
	}

	sampleRate := client.GetSampleRate()
	framer := circular.CreateFramer[float64](cfg.BufferSize)
	converted := make([]float64, 0, cfg.BufferSize)
	var dropped atomic.Uint64
	var s *stream
	ready := make(chan struct{})

	process := func(nframes uint32) int {
		select {
		case <-ready:
		default:
			return 0
		}

		converted = converted[:0]

		for _, v := range port.GetBuffer(nframes) {
			converted = append(converted, float64(v))
		}

		framer.Write(converted, func(block []float64) {
			if !s.offer(block) {
				dropped.Add(1)
			}
		})

		return 0
	}

	if code := client.SetProcessCallback(process); code != 0 {
		client.Close()
		return nil, jackError("set process callback", code)
	}

	if code := client.Activate(); code != 0 {
		client.Close()
		return nil, jackError("activate", code)
	}

	source := cfg.Device

	if source == "" {
		ports := client.GetPorts("", "", jack.PortIsPhysical|jack.PortIsOutput)

		if len(ports) == 0 {
			client.Close()
			return nil, &CaptureError{Backend: BACKEND_JACK, Reason: "find capture port", Cause: errors.New("no physical capture ports")}
		}

		source = ports[0]
	}

	if code := client.Connect(source, port.GetName()); code != 0 {
		client.Close()
		return nil, &CaptureError{Backend: BACKEND_JACK, Reason: fmt.Sprintf("connect %s", source), Cause: jack.StrError(code)}
	}

	log := j.log.With(zap.String("port", source), zap.Uint32("sample_rate", sampleRate))
	log.Info("capture started", zap.Int("buffer_size", cfg.BufferSize))

	produce := func(ctx context.Context, s *stream) error {
		<-ctx.Done()
		client.Deactivate()
		return ctx.Err()
	}

	release := func() error {
		code := client.Close()

		if n := dropped.Load(); n > 0 {
			log.Warn("blocks dropped by slow consumer", zap.Uint64("dropped", n))
		}

		log.Info("capture stopped")

		if code != 0 {
			return jackError("close client", code)
		}

		return nil
	}

	s = startStream(ctx, sampleRate, cfg.QueueDepth, produce, release)
	close(ready)
	return s, nil
}
