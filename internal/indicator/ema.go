package indicator

import "charting-engine/internal/model"

// NewEMA describes the exponential moving average over one or more periods.
//
// Each period p is seeded at index p-1 with the mean of the first p closes,
// then ema[i] = (2*close[i] + (p-1)*ema[i-1]) / (p+1).
func NewEMA() *Descriptor {
	params := Params{6, 12, 20}
	regen := func(params Params) []Plot { return periodPlots("ema", "EMA", params) }
	return &Descriptor{
		Name:          "EMA",
		ShortName:     "EMA",
		Series:        SeriesPrice,
		Precision:     2,
		DefaultParams: params,
		Plots:         regen(params),
		Regenerate:    regen,
		Validate:      distinctPeriods("EMA"),
		NewCalculator: func(params Params, plots []Plot) Calculator {
			return &emaCalc{
				periods: periods(params),
				keys:    plotKeys(plots),
				values:  make([]float64, len(params)),
			}
		},
	}
}

type emaCalc struct {
	periods []int
	keys    []string

	// closeSum is shared by every period's seed.
	closeSum float64
	values   []float64
}

func (c *emaCalc) Next(bars model.Series, i int, _ []Record) Record {
	rec := Record{}
	price := bars[i].Close
	c.closeSum += price
	for j, p := range c.periods {
		if i < p-1 {
			continue
		}
		if i > p-1 {
			c.values[j] = (2*price + float64(p-1)*c.values[j]) / float64(p+1)
		} else {
			c.values[j] = c.closeSum / float64(p)
		}
		rec[c.keys[j]] = c.values[j]
	}
	return rec
}

func (c *emaCalc) Clone() Calculator {
	cp := *c
	cp.values = append([]float64(nil), c.values...)
	return &cp
}

func periods(params Params) []int {
	out := make([]int, len(params))
	for i := range params {
		out[i] = params.Period(i)
	}
	return out
}

func plotKeys(plots []Plot) []string {
	out := make([]string, len(plots))
	for i, p := range plots {
		out[i] = p.Key
	}
	return out
}
