package pitch

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/andrepxx/go-dsp-guitar/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/metalblueberry/tuner/pkg/circular"
)

/*
 * Global constants.
 */
const (
	PEAK_THRESHOLD = 0.9
)

var errWarmingUp = errors.New("analysis history not filled yet")

/*
 * Autocorrelation pitch estimator.
 *
 * The autocorrelation is computed through the FFT of the zero-padded
 * block and divided by the autocorrelation of the analysis window. The
 * first peak reaching PEAK_THRESHOLD of the strongest peak inside the lag
 * range of the configured frequency limits is the period of the
 * fundamental.
 *
 * The analysis runs over the most recent history samples, which may span
 * several blocks. Nothing is reported until the history has filled up.
 */
type autocorrelation struct {
	blockSize        int
	buffer           *circular.Buffer[float64]
	window           []float64
	normalization    []float64
	sampleRate       float64
	minFrequency     float64
	maxFrequency     float64
	fourierTransform fft.FourierTransform
	bufCorrelation   []float64
	bufFFT           []complex128
}

/*
 * Creates an autocorrelation estimator for blocks of cfg.BufferSize samples.
 */
func newAutocorrelation(cfg Config) (*autocorrelation, error) {
	n := cfg.AnalysisLength()
	twoN := uint64(2 * n)
	fftSize, _ := fft.NextPowerOfTwo(twoN)

	a := autocorrelation{
		blockSize:        cfg.BufferSize,
		buffer:           circular.CreateBuffer[float64](n),
		normalization:    make([]float64, n),
		sampleRate:       float64(cfg.SampleRate),
		minFrequency:     cfg.MinFrequency,
		maxFrequency:     cfg.MaxFrequency,
		fourierTransform: fft.CreateFourierTransform(),
		bufCorrelation:   make([]float64, fftSize),
		bufFFT:           make([]complex128, fftSize),
	}

	/*
	 * The window is computed once and applied by multiplication. Without
	 * a window the block is implicitly rectangular.
	 */
	shape := make([]float64, n)

	if cfg.Window == WINDOW_HANN {
		a.window = window.Hann(n)
		copy(shape, a.window)
	} else {

		for i := range shape {
			shape[i] = 1.0
		}

	}

	/*
	 * The autocorrelation of the window itself is the envelope every
	 * block correlation is scaled by.
	 */
	copy(a.bufCorrelation, shape)
	err := a.correlate(n)

	if err != nil {
		return nil, err
	}

	zeroLag := a.bufCorrelation[0]

	if zeroLag <= 0 {
		return nil, fmt.Errorf("degenerate analysis window")
	}

	for i := range a.normalization {
		a.normalization[i] = a.bufCorrelation[i] / zeroLag
	}

	return &a, nil
}

/*
 * Replaces the first n values of the correlation buffer with their
 * autocorrelation.
 */
func (a *autocorrelation) correlate(n int) error {
	bufCorrelation := a.bufCorrelation
	bufFFT := a.bufFFT
	fft.ZeroFloat(bufCorrelation[n:])
	ft := a.fourierTransform
	err := ft.RealFourier(bufCorrelation, bufFFT, fft.SCALING_DEFAULT)

	if err != nil {
		return fmt.Errorf("failed to calculate forward FFT: %w", err)
	}

	/*
	 * Multiply each element of the spectrum with its complex conjugate.
	 */
	for i, elem := range bufFFT {
		bufFFT[i] = elem * cmplx.Conj(elem)
	}

	err = ft.RealInverseFourier(bufFFT, bufCorrelation, fft.SCALING_DEFAULT)

	if err != nil {
		return fmt.Errorf("failed to calculate inverse FFT: %w", err)
	}

	return nil
}

/*
 * Find the maximum value in a buffer.
 */
func findMaximum(buf []float64) (float64, int) {
	maxVal := math.Inf(-1)
	maxIdx := int(-1)

	for idx, value := range buf {

		if value > maxVal {
			maxVal = value
			maxIdx = idx
		}

	}

	return maxVal, maxIdx
}

/*
 * Forgets the analysis history.
 */
func (a *autocorrelation) reset() {
	a.buffer.Reset()
}

/*
 * Estimates the fundamental frequency from the history ending with a mono
 * block.
 */
func (a *autocorrelation) estimate(mono []float64) (float64, error) {

	if len(mono) != a.blockSize {
		return 0, fmt.Errorf("block holds %d samples, estimator expects %d", len(mono), a.blockSize)
	}

	a.buffer.Enqueue(mono...)

	if !a.buffer.Full() {
		return 0, errWarmingUp
	}

	n := a.buffer.Length()
	bufCorrelation := a.bufCorrelation
	signalBuffer := bufCorrelation[0:n]
	err := a.buffer.Retrieve(signalBuffer)

	if err != nil {
		return 0, fmt.Errorf("failed to retrieve contents of circular buffer: %w", err)
	}

	for i, w := range a.window {
		signalBuffer[i] *= w
	}

	err = a.correlate(n)

	if err != nil {
		return 0, err
	}

	zeroLag := bufCorrelation[0]

	if zeroLag <= 0 {
		return 0, fmt.Errorf("block carries no energy")
	}

	/*
	 * Short periods belong to high frequencies.
	 */
	lowIdx := int((a.sampleRate / a.maxFrequency) + 0.5)
	highIdx := int((a.sampleRate / a.minFrequency) + 0.5)

	if lowIdx < 1 {
		lowIdx = 1
	}

	if highIdx > n-1 {
		highIdx = n - 1
	}

	/*
	 * Undo the window envelope, including the neighbour needed for
	 * interpolation at the upper end.
	 */
	for i := 0; i <= highIdx; i++ {
		norm := a.normalization[i]

		if norm > 0 {
			bufCorrelation[i] /= norm * zeroLag
		} else {
			bufCorrelation[i] = 0
		}

	}

	/*
	 * Skip the lobe around lag zero. It ends where the correlation
	 * first turns negative.
	 */
	start := 1

	for start < highIdx && bufCorrelation[start] > 0 {
		start++
	}

	if start > lowIdx {
		lowIdx = start
	}

	if lowIdx >= highIdx {
		return 0, fmt.Errorf("empty lag range [%d, %d)", lowIdx, highIdx)
	}

	maxVal, _ := findMaximum(bufCorrelation[lowIdx:highIdx])

	/*
	 * A non-positive peak means the block is not periodic in range.
	 */
	if maxVal <= 0 {
		return 0, fmt.Errorf("no periodicity between %v and %v Hz", a.minFrequency, a.maxFrequency)
	}

	/*
	 * Multiples of the period correlate about as well as the period
	 * itself. Take the first peak which is close to the strongest one.
	 */
	threshold := PEAK_THRESHOLD * maxVal
	idx := -1

	for i := lowIdx; i < highIdx; i++ {
		value := bufCorrelation[i]

		if value >= threshold && value >= bufCorrelation[i-1] && value >= bufCorrelation[i+1] {
			idx = i
			break
		}

	}

	if idx < 0 {
		return 0, fmt.Errorf("no correlation peak between %v and %v Hz", a.minFrequency, a.maxFrequency)
	}

	peak := bufCorrelation[idx]
	valueLeft := bufCorrelation[idx-1]
	valueRight := bufCorrelation[idx+1]
	valueDiff := valueRight - valueLeft
	valueSum := valueRight + valueLeft
	denominatorDiff := (2.0 * peak) - valueSum
	shiftEstimation := 0.0

	/*
	 * Parabolic interpolation, limited to plus/minus half a sample.
	 */
	if denominatorDiff != 0 {
		shiftEstimation = 0.5 * valueDiff / denominatorDiff
	}

	if shiftEstimation < -0.5 {
		shiftEstimation = -0.5
	} else if shiftEstimation > 0.5 {
		shiftEstimation = 0.5
	}

	period := float64(idx) + shiftEstimation
	return a.sampleRate / period, nil
}
