package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"
)

// Device describes an input or output device known to portaudio.
type Device struct {
	Name              string  `json:"name" yaml:"name"`
	HostAPI           string  `json:"host_api" yaml:"host_api"`
	MaxInputChannels  int     `json:"max_input_channels" yaml:"max_input_channels"`
	MaxOutputChannels int     `json:"max_output_channels" yaml:"max_output_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate" yaml:"default_sample_rate"`
	DefaultInput      bool    `json:"default_input" yaml:"default_input"`
}

// ListDevices returns every portaudio device.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, &CaptureError{Backend: BACKEND_PORTAUDIO, Reason: "initialize", Cause: err}
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, &CaptureError{Backend: BACKEND_PORTAUDIO, Reason: "list devices", Cause: err}
	}

	defaultName := ""
	if in, err := portaudio.DefaultInputDevice(); err == nil && in != nil {
		defaultName = in.Name
	}

	result := make([]Device, 0, len(devices))

	for _, d := range devices {
		host := ""
		if d.HostApi != nil {
			host = d.HostApi.Name
		}

		result = append(result, Device{
			Name:              d.Name,
			HostAPI:           host,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			DefaultInput:      d.Name == defaultName,
		})
	}

	return result, nil
}

type portaudioCapture struct {
	log *zap.Logger
}

func (p *portaudioCapture) Backend() string {
	return BACKEND_PORTAUDIO
}

// probePortaudio checks that portaudio starts and has an input device.
func probePortaudio() error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	defer portaudio.Terminate()

	in, err := portaudio.DefaultInputDevice()
	if err != nil {
		return err
	}

	if in == nil || in.MaxInputChannels < 1 {
		return errors.New("no input device")
	}

	return nil
}

// findInput picks the first input device whose name contains the given
// fragment, or the default input device when the fragment is empty.
func findInput(fragment string) (*portaudio.DeviceInfo, error) {
	if fragment == "" {
		return portaudio.DefaultInputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	for _, device := range devices {
		if device.MaxInputChannels > 0 && strings.Contains(device.Name, fragment) {
			return device, nil
		}
	}

	return nil, fmt.Errorf("no input device matching %q", fragment)
}

func (p *portaudioCapture) Open(ctx context.Context, cfg Config) (Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, &CaptureError{Backend: BACKEND_PORTAUDIO, Reason: "initialize", Cause: err}
	}

	fail := func(reason string, err error) (Source, error) {
		portaudio.Terminate()
		return nil, &CaptureError{Backend: BACKEND_PORTAUDIO, Reason: reason, Cause: err}
	}

	input, err := findInput(cfg.Device)
	if err != nil {
		return fail("find input device", err)
	}

	params := portaudio.HighLatencyParameters(input, nil)
	params.Input.Channels = 1
	params.FramesPerBuffer = cfg.BufferSize

	if cfg.SampleRate != 0 {
		params.SampleRate = float64(cfg.SampleRate)
	}

	buffer := make([]float32, cfg.BufferSize)
	paStream, err := portaudio.OpenStream(params, buffer)
	if err != nil {
		return fail("open stream", err)
	}

	if err := ctx.Err(); err != nil {
		paStream.Close()
		return fail("open stream", err)
	}

	if err := paStream.Start(); err != nil {
		paStream.Close()
		return fail("start stream", err)
	}

	log := p.log.With(zap.String("device", input.Name), zap.Float64("sample_rate", params.SampleRate))
	log.Info("capture started", zap.Int("buffer_size", cfg.BufferSize))
	samples := make([]float64, cfg.BufferSize)

	produce := func(ctx context.Context, s *stream) error {
		for ctx.Err() == nil {
			err := paStream.Read()

			if errors.Is(err, portaudio.InputOverflowed) {
				log.Warn("input overflowed")
			} else if err != nil {
				return &CaptureError{Backend: BACKEND_PORTAUDIO, Reason: "read", Cause: err}
			}

			for i, v := range buffer {
				samples[i] = float64(v)
			}

			if err := s.send(ctx, samples); err != nil {
				return err
			}
		}

		return ctx.Err()
	}

	release := func() error {
		stopErr := paStream.Stop()
		closeErr := paStream.Close()
		termErr := portaudio.Terminate()
		log.Info("capture stopped")
		return errors.Join(stopErr, closeErr, termErr)
	}

	return startStream(ctx, uint32(params.SampleRate), cfg.QueueDepth, produce, release), nil
}
