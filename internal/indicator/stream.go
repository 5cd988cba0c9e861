package indicator

import (
	"github.com/pkg/errors"

	"charting-engine/internal/model"
)

// Stream is the incremental form of a computation: it keeps one live
// Calculator plus the bars and records materialized so far, so that each
// appended bar costs a single Next call instead of a full recompute.
//
// A Stream is designed for single-goroutine usage; no locks are taken.
type Stream struct {
	desc   *Descriptor
	params Params
	plots  []Plot

	calc    Calculator
	bars    model.Series
	records []Record
}

// NewStream validates params (nil selects the descriptor defaults) and
// returns an empty stream.
func NewStream(desc *Descriptor, params Params) (*Stream, error) {
	s := &Stream{desc: desc}
	if err := s.SetParams(params); err != nil {
		return nil, err
	}
	return s, nil
}

// Append computes the record for bar and commits both. Bars must arrive in
// non-decreasing timestamp order.
func (s *Stream) Append(bar model.Bar) (Record, error) {
	if err := s.checkNext(bar); err != nil {
		return nil, err
	}
	s.bars = append(s.bars, bar)
	rec := s.calc.Next(s.bars, len(s.bars)-1, s.records)
	s.records = append(s.records, rec)
	return rec, nil
}

// Peek computes what the record for a forming bar would be without
// mutating the stream.
func (s *Stream) Peek(bar model.Bar) (Record, error) {
	if err := s.checkNext(bar); err != nil {
		return nil, err
	}
	n := len(s.bars)
	bars := make(model.Series, n+1)
	copy(bars, s.bars)
	bars[n] = bar
	return s.calc.Clone().Next(bars, n, s.records), nil
}

// SetParams switches the stream to new parameters and recomputes every
// record from scratch; accumulated state never survives a parameter change.
func (s *Stream) SetParams(params Params) error {
	if params == nil {
		params = s.desc.DefaultParams
	}
	plots, err := s.desc.RegeneratePlots(params)
	if err != nil {
		return err
	}
	s.params = params.Clone()
	s.plots = plots
	s.recompute()
	return nil
}

// Reset replaces the bar history and recomputes.
func (s *Stream) Reset(series model.Series) error {
	if err := series.Validate(); err != nil {
		return err
	}
	s.bars = append(model.Series(nil), series...)
	s.recompute()
	return nil
}

func (s *Stream) recompute() {
	s.calc = s.desc.NewCalculator(s.params, s.plots)
	s.records = make([]Record, 0, len(s.bars))
	for i := range s.bars {
		s.records = append(s.records, s.calc.Next(s.bars, i, s.records))
	}
}

func (s *Stream) checkNext(bar model.Bar) error {
	if err := (model.Series{bar}).Validate(); err != nil {
		return err
	}
	if last, ok := s.bars.Last(); ok && bar.Timestamp < last.Timestamp {
		return errors.Wrapf(model.ErrInvalidSeries, "bar at %d precedes last bar at %d", bar.Timestamp, last.Timestamp)
	}
	return nil
}

// Name returns the indicator name.
func (s *Stream) Name() string { return s.desc.Name }

// Params returns a copy of the active parameters.
func (s *Stream) Params() Params { return s.params.Clone() }

// Plots returns the active plot set.
func (s *Stream) Plots() []Plot { return s.plots }

// Len is the number of committed bars.
func (s *Stream) Len() int { return len(s.bars) }

// Bars returns the committed bars. The slice must not be modified.
func (s *Stream) Bars() model.Series { return s.bars }

// Records returns the committed records. The slice must not be modified.
func (s *Stream) Records() []Record { return s.records }

// Result packages the current state like a full computation would.
func (s *Stream) Result() Result {
	return Result{
		Name:      s.desc.Name,
		Params:    s.params.Clone(),
		Plots:     s.plots,
		Precision: s.desc.Precision,
		Records:   s.records,
	}
}
