package note

import (
	"errors"
	"fmt"
	"math"
)

/*
 * Global constants.
 */
const (
	DEFAULT_REFERENCE_FREQUENCY = 440.0
	DEFAULT_REFERENCE_SEMITONE  = 69
	NOTES_PER_OCTAVE            = 12
	CENTS_PER_OCTAVE            = 1200
)

// ErrInvalidFrequency is returned for zero, negative or non-finite frequencies.
var ErrInvalidFrequency = errors.New("frequency must be positive and finite")

/*
 * Names of the notes on the chromatic scale, starting at C.
 */
var names = [NOTES_PER_OCTAVE]string{
	"C",
	"C♯",
	"D",
	"D♯",
	"E",
	"F",
	"F♯",
	"G",
	"G♯",
	"A",
	"A♯",
	"B",
}

/*
 * Reference pitch a mapper is tuned to.
 */
type Reference struct {
	Frequency float64 `mapstructure:"frequency" json:"frequency" yaml:"frequency"`
	Semitone  int     `mapstructure:"semitone" json:"semitone" yaml:"semitone"`
}

/*
 * Data structure representing a detected note.
 */
type Detection struct {
	Name      string  `json:"name" yaml:"name"`
	Value     int     `json:"value" yaml:"value"`
	Cents     int     `json:"cents" yaml:"cents"`
	Octave    int     `json:"octave" yaml:"octave"`
	Frequency float64 `json:"frequency" yaml:"frequency"`
}

/*
 * Maps frequencies onto the equal-tempered chromatic scale.
 */
type Mapper struct {
	ref Reference
}

/*
 * Returns the standard A4 = 440 Hz reference.
 */
func DefaultReference() Reference {
	ref := Reference{
		Frequency: DEFAULT_REFERENCE_FREQUENCY,
		Semitone:  DEFAULT_REFERENCE_SEMITONE,
	}

	return ref
}

/*
 * Checks whether a frequency can be mapped.
 */
func ValidFrequency(frequency float64) bool {
	return frequency > 0.0 && !math.IsInf(frequency, 0) && !math.IsNaN(frequency)
}

/*
 * Creates a note mapper for a reference pitch.
 */
func New(ref Reference) (*Mapper, error) {

	/*
	 * The reference frequency is a divisor in every mapping.
	 */
	if !ValidFrequency(ref.Frequency) {
		return nil, fmt.Errorf("invalid reference frequency %v: %w", ref.Frequency, ErrInvalidFrequency)
	}

	m := Mapper{
		ref: ref,
	}

	return &m, nil
}

/*
 * Creates a note mapper for the default reference.
 */
func Default() *Mapper {
	m := Mapper{
		ref: DefaultReference(),
	}

	return &m
}

/*
 * Returns the reference the mapper is tuned to.
 */
func (m *Mapper) Reference() Reference {
	return m.ref
}

/*
 * Returns the index of the note closest to a frequency.
 *
 * n = round(12 * log2(f / fRef)) + nRef
 *
 * Rounding is half-up.
 */
func (m *Mapper) NoteFromFrequency(frequency float64) (int, error) {

	/*
	 * Reject anything that would turn into NaN further down.
	 */
	if !ValidFrequency(frequency) {
		return 0, fmt.Errorf("map %v Hz: %w", frequency, ErrInvalidFrequency)
	}

	ratio := frequency / m.ref.Frequency
	semitones := NOTES_PER_OCTAVE * math.Log2(ratio)
	rounded := math.Floor(semitones + 0.5)
	return int(rounded) + m.ref.Semitone, nil
}

/*
 * Returns the equal-tempered frequency of a note.
 *
 * f(n) = fRef * 2^((n - nRef) / 12)
 */
func (m *Mapper) StandardFrequency(noteIndex int) float64 {
	steps := float64(noteIndex - m.ref.Semitone)
	return m.ref.Frequency * math.Pow(2.0, steps/NOTES_PER_OCTAVE)
}

/*
 * Returns the deviation of a frequency from a note in cents, rounded down.
 */
func (m *Mapper) Cents(frequency float64, noteIndex int) (int, error) {

	if !ValidFrequency(frequency) {
		return 0, fmt.Errorf("cents of %v Hz: %w", frequency, ErrInvalidFrequency)
	}

	/*
	 * Far away notes overflow or underflow the standard frequency.
	 */
	standard := m.StandardFrequency(noteIndex)

	if !ValidFrequency(standard) {
		return 0, fmt.Errorf("cents of note %d: %w", noteIndex, ErrInvalidFrequency)
	}

	cents := math.Floor(CENTS_PER_OCTAVE * math.Log2(frequency/standard))

	if math.IsInf(cents, 0) || math.IsNaN(cents) || math.Abs(cents) > math.MaxInt32 {
		return 0, fmt.Errorf("cents of %v Hz from note %d: %w", frequency, noteIndex, ErrInvalidFrequency)
	}

	return int(cents), nil
}

/*
 * Maps a frequency onto the closest note.
 */
func (m *Mapper) Detect(frequency float64) (Detection, error) {
	noteIndex, err := m.NoteFromFrequency(frequency)

	if err != nil {
		return Detection{}, err
	}

	cents, err := m.Cents(frequency, noteIndex)

	if err != nil {
		return Detection{}, err
	}

	d := Detection{
		Name:      Name(noteIndex),
		Value:     noteIndex,
		Cents:     cents,
		Octave:    Octave(noteIndex),
		Frequency: frequency,
	}

	return d, nil
}

/*
 * Returns the name of a note, without octave.
 */
func Name(noteIndex int) string {
	idx := ((noteIndex % NOTES_PER_OCTAVE) + NOTES_PER_OCTAVE) % NOTES_PER_OCTAVE
	return names[idx]
}

/*
 * Returns the octave of a note. Index 12 is C0, index 0 is C-1.
 */
func Octave(noteIndex int) int {
	octave := noteIndex / NOTES_PER_OCTAVE

	/*
	 * Integer division truncates towards zero.
	 */
	if noteIndex < 0 && noteIndex%NOTES_PER_OCTAVE != 0 {
		octave--
	}

	return octave - 1
}

/*
 * Returns the scientific pitch notation of a note, e.g. "A♯4".
 */
func Label(noteIndex int) string {
	return fmt.Sprintf("%s%d", Name(noteIndex), Octave(noteIndex))
}

/*
 * Returns all note names in chromatic order.
 */
func Names() []string {
	result := make([]string, NOTES_PER_OCTAVE)
	copy(result, names[:])
	return result
}
