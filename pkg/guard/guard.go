// Package guard reports programming errors such as stopping something that was
// never started.
package guard

import (
	"errors"
	"fmt"
)

// ErrMisuse is wrapped by every misuse error.
var ErrMisuse = errors.New("misuse")

// Misuse wraps err as a misuse error. In strict mode it panics instead, so
// development builds fail at the offending call.
func Misuse(strict bool, err error) error {
	wrapped := fmt.Errorf("%w: %w", ErrMisuse, err)

	if strict {
		panic(wrapped)
	}

	return wrapped
}
