package indicator

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MaxPeriod is the largest accepted period.
const MaxPeriod = 100_000

// Params is a positional parameter list, e.g. [short, long, signal] for MACD.
type Params []float64

// Clone returns a copy so callers can never mutate a computation's inputs.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	cp := make(Params, len(p))
	copy(cp, p)
	return cp
}

// Period returns param i as an int. Params are validated before use.
func (p Params) Period(i int) int {
	return int(p[i])
}

// String renders the list as "12/26/9".
func (p Params) String() string {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, "/")
}

// Equal reports whether two lists hold the same values.
func (p Params) Equal(o Params) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

func (p Params) checkPeriods(name string) error {
	for i, v := range p {
		switch {
		case math.IsNaN(v) || math.IsInf(v, 0):
			return paramError(name, i, v, "is not a number")
		case v <= 0:
			return paramError(name, i, v, "must be positive")
		case v != math.Trunc(v):
			return paramError(name, i, v, "must be an integer period")
		case v > MaxPeriod:
			return paramError(name, i, v, "exceeds maximum period "+strconv.Itoa(MaxPeriod))
		}
	}
	return nil
}

// distinctPeriods rejects a repeated period, which would give two plots the
// same key.
func distinctPeriods(name string) func(Params) error {
	return func(p Params) error {
		seen := make(map[float64]int, len(p))
		for i, v := range p {
			if j, ok := seen[v]; ok {
				return paramError(name, i, v, "repeats param["+strconv.Itoa(j)+"]")
			}
			seen[v] = i
		}
		return nil
	}
}

// ParseParams parses "12/26/9" or "12,26,9".
func ParseParams(s string) (Params, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == ',' })
	out := make(Params, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidParameter, "parse %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}
