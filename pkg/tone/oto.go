package tone

import (
	"fmt"
	"io"
	"sync"

	"github.com/hajimehoshi/oto/v2"
)

var (
	otoOnce    sync.Once
	otoContext *oto.Context
	otoRate    int
	otoErr     error
)

// otoOutput plays through the default output device. oto allows a single
// context per process, so the first sample rate used wins.
type otoOutput struct {
	sampleRate int
}

// NewOtoOutput returns the speaker output.
func NewOtoOutput(sampleRate int) Output {
	return &otoOutput{sampleRate: sampleRate}
}

func (o *otoOutput) Start(r io.Reader) (Voice, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(o.sampleRate, 1, oto.FormatSignedInt16LE)

		if err != nil {
			otoErr = err
			return
		}

		<-ready
		otoContext = ctx
		otoRate = o.sampleRate
	})

	if otoErr != nil {
		return nil, fmt.Errorf("open audio output: %w", otoErr)
	}

	if otoRate != o.sampleRate {
		return nil, fmt.Errorf("audio output already runs at %d Hz, cannot switch to %d Hz", otoRate, o.sampleRate)
	}

	player := otoContext.NewPlayer(r)
	player.Play()
	return player, nil
}
