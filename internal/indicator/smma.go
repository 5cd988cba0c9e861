package indicator

import "charting-engine/internal/model"

// NewSMMA describes the smoothed moving average (Wilder-style smoothing).
// The first value is SMA(period), then SMMA = (prev*(period-1) + close) / period.
func NewSMMA() *Descriptor {
	params := Params{7}
	regen := func(params Params) []Plot { return periodPlots("smma", "SMMA", params) }
	return &Descriptor{
		Name:          "SMMA",
		ShortName:     "SMMA",
		Series:        SeriesPrice,
		Precision:     2,
		DefaultParams: params,
		Plots:         regen(params),
		Regenerate:    regen,
		Validate:      distinctPeriods("SMMA"),
		NewCalculator: func(params Params, plots []Plot) Calculator {
			return &smmaCalc{
				periods: periods(params),
				keys:    plotKeys(plots),
				values:  make([]float64, len(params)),
			}
		},
	}
}

type smmaCalc struct {
	periods  []int
	keys     []string
	closeSum float64
	values   []float64
}

func (c *smmaCalc) Next(bars model.Series, i int, _ []Record) Record {
	rec := Record{}
	price := bars[i].Close
	c.closeSum += price
	for j, p := range c.periods {
		switch {
		case i < p-1:
			continue
		case i == p-1:
			// Seed with the plain average
			c.values[j] = c.closeSum / float64(p)
		default:
			c.values[j] = (c.values[j]*float64(p-1) + price) / float64(p)
		}
		rec[c.keys[j]] = c.values[j]
	}
	return rec
}

func (c *smmaCalc) Clone() Calculator {
	cp := *c
	cp.values = append([]float64(nil), c.values...)
	return &cp
}
