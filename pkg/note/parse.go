package note

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrInvalidNotation is returned when a note label cannot be parsed.
var ErrInvalidNotation = errors.New("invalid note notation")

var pitchClasses = map[byte]int{
	'C': 0,
	'D': 2,
	'E': 4,
	'F': 5,
	'G': 7,
	'A': 9,
	'B': 11,
	'H': 11,
}

// Parse converts scientific pitch notation ("A4", "C♯3", "Bb2", "F#-1") into a
// note index. "H" is accepted as the german name for B.
func Parse(label string) (int, error) {
	s := strings.TrimSpace(label)

	if s == "" {
		return 0, fmt.Errorf("%q: %w", label, ErrInvalidNotation)
	}

	class, ok := pitchClasses[strings.ToUpper(s[:1])[0]]

	if !ok {
		return 0, fmt.Errorf("%q: unknown note letter: %w", label, ErrInvalidNotation)
	}

	s = s[1:]
	offset := 0

	for s != "" {
		r, size := utf8.DecodeRuneInString(s)

		switch r {
		case '#', '♯':
			offset++
		case 'b', '♭':
			offset--
		default:
			size = 0
		}

		if size == 0 {
			break
		}

		s = s[size:]
	}

	octave, err := strconv.Atoi(s)

	if err != nil {
		return 0, fmt.Errorf("%q: bad octave: %w", label, ErrInvalidNotation)
	}

	return (octave+1)*NOTES_PER_OCTAVE + class + offset, nil
}
