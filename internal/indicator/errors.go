package indicator

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidParameter covers wrong arity, periods that are not positive
	// integers up to MaxPeriod, and repeated periods. It is raised before
	// any pass begins.
	ErrInvalidParameter = errors.New("invalid indicator parameter")

	// ErrInvalidParameterCount is an ErrInvalidParameter for a parameter list
	// of the wrong length.
	ErrInvalidParameterCount = fmt.Errorf("%w: wrong parameter count", ErrInvalidParameter)

	ErrUnknownIndicator   = errors.New("unknown indicator")
	ErrDuplicateIndicator = errors.New("indicator already registered")
)

func paramCountError(name string, got, want int) error {
	return errors.Wrapf(ErrInvalidParameterCount, "%s: got %d params, want %d", name, got, want)
}

func paramError(name string, index int, value float64, reason string) error {
	return errors.Wrapf(ErrInvalidParameter, "%s: param[%d]=%v %s", name, index, value, reason)
}
