package poly

import (
	"errors"
	"fmt"
)

var (
	// ErrDegenerateInput: two equal evaluation points carry different values.
	ErrDegenerateInput = errors.New("degenerate interpolation input")
	ErrLengthMismatch  = errors.New("points and values length mismatch")
	ErrZeroDivisor     = errors.New("division by zero polynomial")
)

// DegenerateInputError names the two input positions that share an evaluation point.
type DegenerateInputError struct {
	First  int
	Second int
}

func (e *DegenerateInputError) Error() string {
	return fmt.Sprintf("%v: positions %d and %d share a point", ErrDegenerateInput, e.First, e.Second)
}

func (e *DegenerateInputError) Is(target error) bool { return target == ErrDegenerateInput }
