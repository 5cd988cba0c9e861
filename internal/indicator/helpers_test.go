package indicator

import (
	"math"
	"math/rand"
	"testing"

	"charting-engine/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

const minuteMs = int64(60_000)

func bar(i int, open, high, low, close, volume float64) model.Bar {
	return model.Bar{
		Timestamp: int64(i) * minuteMs,
		Open:      open, High: high, Low: low, Close: close,
		Volume: volume,
	}
}

// closeSeries builds bars whose OHLC all equal the given closes.
func closeSeries(closes ...float64) model.Series {
	s := make(model.Series, len(closes))
	for i, c := range closes {
		s[i] = bar(i, c, c, c, c, 100)
	}
	return s
}

func flatSeries(n int, price float64) model.Series {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = price
	}
	return closeSeries(closes...)
}

func risingSeries(n int) model.Series {
	s := make(model.Series, n)
	for i := range s {
		c := 100 + float64(i)
		s[i] = bar(i, c-0.5, c+1, c-1, c, 1000+float64(i))
	}
	return s
}

// randomSeries is a seeded random walk with occasional flat closes so every
// branch of the up/down/flat classifiers is exercised.
func randomSeries(seed int64, n int) model.Series {
	rng := rand.New(rand.NewSource(seed))
	s := make(model.Series, n)
	price := 100.0
	for i := range s {
		open := price
		if rng.Intn(8) != 0 {
			price += rng.NormFloat64()
		}
		high := math.Max(open, price) + rng.Float64()
		low := math.Min(open, price) - rng.Float64()
		s[i] = bar(i, open, high, low, price, float64(100+rng.Intn(900)))
	}
	return s
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// firstDefined returns the first index whose record carries key, or -1.
func firstDefined(records []Record, key string) int {
	for i, r := range records {
		if _, ok := r[key]; ok {
			return i
		}
	}
	return -1
}

func mustCompute(t *testing.T, d *Descriptor, series model.Series, params Params) Result {
	t.Helper()
	res, err := d.Compute(series, params)
	if err != nil {
		t.Fatalf("%s compute: %v", d.Name, err)
	}
	return res
}
