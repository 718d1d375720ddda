package pitch

import (
	"fmt"

	dsptuner "github.com/andrepxx/go-dsp-guitar/tuner"
)

// guitar delegates to the chromatic tuner of go-dsp-guitar. The library keeps
// its own analysis history, so consecutive blocks refine the estimate.
type guitar struct {
	tuner      dsptuner.Tuner
	sampleRate uint32
}

func newGuitar(cfg Config) *guitar {
	return &guitar{
		tuner:      dsptuner.Create(),
		sampleRate: cfg.SampleRate,
	}
}

func (g *guitar) estimate(mono []float64) (float64, error) {
	g.tuner.Process(mono, g.sampleRate)
	result, err := g.tuner.Analyze()

	if err != nil {
		return 0, fmt.Errorf("go-dsp-guitar analysis: %w", err)
	}

	return result.Frequency(), nil
}

func (g *guitar) reset() {
	g.tuner = dsptuner.Create()
}
