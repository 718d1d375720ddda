package audio

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/metalblueberry/tuner/pkg/logging"
)

// Capture is a negotiated capture backend.
type Capture interface {
	Backend() string
	Open(ctx context.Context, cfg Config) (Source, error)
}

// Negotiate probes the requested backend once and returns a handle to it. With
// BACKEND_AUTO, portaudio is tried first and JACK second. When nothing works
// the error wraps ErrUnsupported.
func Negotiate(cfg Config, log *zap.Logger) (Capture, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	type candidate struct {
		name    string
		probe   func() error
		capture Capture
	}

	portaudioCandidate := candidate{
		name:    BACKEND_PORTAUDIO,
		probe:   probePortaudio,
		capture: &portaudioCapture{log: logging.Named(log, "portaudio")},
	}

	jackCandidate := candidate{
		name:    BACKEND_JACK,
		probe:   func() error { return probeJack(cfg.ClientName) },
		capture: &jackCapture{log: logging.Named(log, "jack")},
	}

	var candidates []candidate

	switch cfg.Backend {
	case BACKEND_PORTAUDIO:
		candidates = []candidate{portaudioCandidate}
	case BACKEND_JACK:
		candidates = []candidate{jackCandidate}
	default:
		candidates = []candidate{portaudioCandidate, jackCandidate}
	}

	for _, c := range candidates {
		err := c.probe()

		if err == nil {
			log.Debug("capture backend selected", zap.String("backend", c.name))
			return c.capture, nil
		}

		log.Debug("capture backend unavailable", zap.String("backend", c.name), zap.Error(err))
	}

	return nil, fmt.Errorf("backend %q: %w", cfg.Backend, ErrUnsupported)
}

// CaptureOpener binds a capture handle and its configuration into an Opener.
func CaptureOpener(c Capture, cfg Config) Opener {
	return func(ctx context.Context) (Source, error) {
		return c.Open(ctx, cfg)
	}
}
