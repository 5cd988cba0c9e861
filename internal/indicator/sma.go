package indicator

import "charting-engine/internal/model"

// NewMA describes simple moving averages of the close over several periods.
// Each period keeps a circular window so the hot path never rescans history.
func NewMA() *Descriptor {
	params := Params{5, 10, 30, 60}
	regen := func(params Params) []Plot { return periodPlots("ma", "MA", params) }
	return &Descriptor{
		Name:          "MA",
		ShortName:     "MA",
		Series:        SeriesPrice,
		Precision:     2,
		DefaultParams: params,
		Plots:         regen(params),
		Regenerate:    regen,
		Validate:      distinctPeriods("MA"),
		NewCalculator: func(params Params, plots []Plot) Calculator {
			c := &smaCalc{keys: plotKeys(plots)}
			for _, p := range periods(params) {
				c.windows = append(c.windows, smaWindow{period: p, buf: make([]float64, p)})
			}
			return c
		},
	}
}

type smaWindow struct {
	period int
	buf    []float64 // preallocated circular buffer
	idx    int       // current write position
	sum    float64
}

type smaCalc struct {
	keys    []string
	windows []smaWindow
}

func (c *smaCalc) Next(bars model.Series, i int, _ []Record) Record {
	rec := Record{}
	price := bars[i].Close
	for j := range c.windows {
		w := &c.windows[j]
		if i >= w.period {
			// Subtract the oldest value being overwritten
			w.sum -= w.buf[w.idx]
		}
		w.buf[w.idx] = price
		w.sum += price
		w.idx = (w.idx + 1) % w.period
		if i >= w.period-1 {
			rec[c.keys[j]] = w.sum / float64(w.period)
		}
	}
	return rec
}

func (c *smaCalc) Clone() Calculator {
	cp := &smaCalc{keys: c.keys, windows: make([]smaWindow, len(c.windows))}
	for j, w := range c.windows {
		w.buf = append([]float64(nil), w.buf...)
		cp.windows[j] = w
	}
	return cp
}
