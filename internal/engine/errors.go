package engine

import (
	"errors"
	"fmt"
)

// ErrValidation marks requests rejected at admission. Nothing is persisted
// for a rejected request.
var ErrValidation = errors.New("invalid request")

// ErrStopped is returned when the engine is not accepting work.
var ErrStopped = errors.New("engine stopped")

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
