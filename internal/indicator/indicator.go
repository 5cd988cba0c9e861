// Package indicator derives secondary time series from OHLCV bars.
//
// Every indicator is a Descriptor: identity, default parameters, plot
// channels and a Calculator factory. A computation is one forward pass over
// the bar series producing exactly one Record per bar. Records are sparse:
// a plot key is absent until the indicator has seen enough bars for it
// (the warm-up state), and it never disappears once present.
package indicator

import (
	"charting-engine/internal/model"
)

// SeriesKind tells rendering collaborators which pane an indicator belongs to.
type SeriesKind string

const (
	SeriesPrice  SeriesKind = "price"  // overlays the candle pane
	SeriesVolume SeriesKind = "volume" // overlays the volume pane
	SeriesNormal SeriesKind = "normal" // own pane
)

// Calculator carries the accumulator state of one computation pass.
//
// Next returns the record for bars[i]. out holds the records already produced
// for 0..i-1 and may be indexed freely; bars beyond i are never read.
// A Calculator is owned by a single pass and must not be shared.
type Calculator interface {
	Next(bars model.Series, i int, out []Record) Record

	// Clone returns an independent copy of the accumulator state.
	Clone() Calculator
}

// CalcFactory builds a fresh Calculator for validated params and the plot
// set regenerated from them.
type CalcFactory func(params Params, plots []Plot) Calculator

// Descriptor describes one indicator family.
type Descriptor struct {
	Name      string
	ShortName string
	Series    SeriesKind
	Precision int

	DefaultParams Params

	// ParamCount is the required arity when CheckParamCount is set.
	ParamCount      int
	CheckParamCount bool

	// Plots is the plot set for DefaultParams.
	Plots []Plot

	// Regenerate rebuilds the plot set for a new parameter list.
	// Nil means the plot set is static.
	Regenerate func(params Params) []Plot

	// Validate runs indicator specific checks after the generic period checks.
	Validate func(params Params) error

	NewCalculator CalcFactory
}

// CheckParams validates arity and periods before any pass begins.
func (d *Descriptor) CheckParams(params Params) error {
	if d.CheckParamCount && len(params) != d.ParamCount {
		return paramCountError(d.Name, len(params), d.ParamCount)
	}
	if len(params) == 0 {
		return paramCountError(d.Name, 0, max(d.ParamCount, 1))
	}
	if err := params.checkPeriods(d.Name); err != nil {
		return err
	}
	if d.Validate != nil {
		return d.Validate(params)
	}
	return nil
}

// RegeneratePlots returns the plot set implied by params.
func (d *Descriptor) RegeneratePlots(params Params) ([]Plot, error) {
	if err := d.CheckParams(params); err != nil {
		return nil, err
	}
	if d.Regenerate == nil {
		return d.Plots, nil
	}
	return d.Regenerate(params), nil
}

// Calc runs one full pass. params and plots must come from CheckParams and
// RegeneratePlots; Calc itself never fails.
func (d *Descriptor) Calc(series model.Series, params Params, plots []Plot) []Record {
	return run(d.NewCalculator(params.Clone(), plots), series)
}

// Compute validates params (nil selects the defaults), regenerates the plot
// set and runs a full pass.
func (d *Descriptor) Compute(series model.Series, params Params) (Result, error) {
	if params == nil {
		params = d.DefaultParams
	}
	plots, err := d.RegeneratePlots(params)
	if err != nil {
		return Result{}, err
	}
	params = params.Clone()
	return Result{
		Name:      d.Name,
		Params:    params,
		Plots:     plots,
		Precision: d.Precision,
		Records:   d.Calc(series, params, plots),
	}, nil
}

// WithDefaults returns a copy of d whose default parameters (and plots) are
// replaced. The original descriptor is left untouched.
func (d *Descriptor) WithDefaults(params Params) (*Descriptor, error) {
	plots, err := d.RegeneratePlots(params)
	if err != nil {
		return nil, err
	}
	cp := *d
	cp.DefaultParams = params.Clone()
	cp.Plots = plots
	return &cp, nil
}

// Result is the output of one computation together with the plot set its
// records are keyed by.
type Result struct {
	Name      string
	Params    Params
	Plots     []Plot
	Precision int
	Records   []Record
}

func run(calc Calculator, series model.Series) []Record {
	out := make([]Record, 0, len(series))
	for i := range series {
		out = append(out, calc.Next(series, i, out))
	}
	return out
}
