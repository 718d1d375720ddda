package tuner

import (
	"github.com/metalblueberry/tuner/pkg/audio"
	"github.com/metalblueberry/tuner/pkg/note"
	"github.com/metalblueberry/tuner/pkg/pitch"
)

/*
 * Turns sample blocks into note detections.
 *
 * An analyzer holds no session state besides what the detector keeps, so
 * it can be driven by any transport, including plain slices in tests.
 */
type Analyzer struct {
	detector pitch.Detector
	mapper   *note.Mapper
}

/*
 * Creates an analyzer.
 */
func NewAnalyzer(detector pitch.Detector, mapper *note.Mapper) *Analyzer {
	a := Analyzer{
		detector: detector,
		mapper:   mapper,
	}

	return &a
}

/*
 * Analyzes a block. The boolean is false when the block holds no note.
 */
func (a *Analyzer) Analyze(block audio.Block) (note.Detection, bool) {
	frequency, ok := a.detector.Process(block.Samples)

	/*
	 * Silence, noise and out-of-range estimates.
	 */
	if !ok {
		return note.Detection{}, false
	}

	/*
	 * Estimators may still hand out zero or non-finite values. Those are
	 * treated like silence rather than errors.
	 */
	d, err := a.mapper.Detect(frequency)

	if err != nil {
		return note.Detection{}, false
	}

	return d, true
}
