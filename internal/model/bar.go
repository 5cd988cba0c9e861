package model

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// ErrInvalidSeries is returned when a bar series violates the input contract.
var ErrInvalidSeries = errors.New("invalid bar series")

// Bar is one time-bucketed OHLCV observation.
// Bars are immutable once produced; indicators only ever read them.
type Bar struct {
	Timestamp int64   `json:"timestamp" parquet:"timestamp"` // unix milliseconds, bucket start
	Open      float64 `json:"open" parquet:"open"`
	High      float64 `json:"high" parquet:"high"`
	Low       float64 `json:"low" parquet:"low"`
	Close     float64 `json:"close" parquet:"close"`
	Volume    float64 `json:"volume" parquet:"volume"`
}

// Time returns the bar timestamp as UTC time.
func (b *Bar) Time() time.Time {
	return time.UnixMilli(b.Timestamp).UTC()
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

// Series is a chronological sequence of bars, index 0..n-1.
// Gaps are allowed; timestamps must not decrease.
type Series []Bar

// Validate checks the input contract: finite fields and non-decreasing timestamps.
func (s Series) Validate() error {
	for i := range s {
		b := &s[i]
		for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Wrapf(ErrInvalidSeries, "bar %d has a non-finite field", i)
			}
		}
		if i > 0 && b.Timestamp < s[i-1].Timestamp {
			return errors.Wrapf(ErrInvalidSeries, "bar %d timestamp %d precedes bar %d timestamp %d",
				i, b.Timestamp, i-1, s[i-1].Timestamp)
		}
	}
	return nil
}

// Closes extracts the close prices.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i := range s {
		out[i] = s[i].Close
	}
	return out
}

// Last returns the final bar, or false for an empty series.
func (s Series) Last() (Bar, bool) {
	if len(s) == 0 {
		return Bar{}, false
	}
	return s[len(s)-1], true
}

// Fingerprint hashes every field of every bar. Two series with the same
// fingerprint produce identical indicator output, which makes it usable as a
// cache key component.
func (s Series) Fingerprint() string {
	h := xxhash.New()
	var buf [48]byte
	for i := range s {
		b := &s[i]
		binary.LittleEndian.PutUint64(buf[0:], uint64(b.Timestamp))
		binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(b.Open))
		binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(b.High))
		binary.LittleEndian.PutUint64(buf[24:], math.Float64bits(b.Low))
		binary.LittleEndian.PutUint64(buf[32:], math.Float64bits(b.Close))
		binary.LittleEndian.PutUint64(buf[40:], math.Float64bits(b.Volume))
		h.Write(buf[:])
	}
	return fmt.Sprintf("%d-%016x", len(s), h.Sum64())
}
