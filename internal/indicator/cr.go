package indicator

import (
	"math"

	"charting-engine/internal/model"
)

// NewCR describes the energy (CR) indicator with params [n, m1, m2, m3, m4].
//
//	MID = (H+C+L+O)/4 of the previous bar
//	CR  = SUM(max(0, H-MID), n) / SUM(max(0, MID-L), n) * 100, 0 when the
//	      denominator is 0
//	MAk = REF(MA(CR, mk), ceil(mk/2.5 + 1))
//
// Both sums slide over exactly n bars. Each MAk is a moving average of the
// indicator's own CR output, shifted back by its lag.
func NewCR() *Descriptor {
	return &Descriptor{
		Name:            "CR",
		ShortName:       "CR",
		Series:          SeriesNormal,
		Precision:       4,
		DefaultParams:   Params{26, 10, 20, 40, 60},
		ParamCount:      5,
		CheckParamCount: true,
		Plots: []Plot{
			{Key: "cr", Title: "CR: ", Type: PlotLine},
			{Key: "ma1", Title: "MA1: ", Type: PlotLine},
			{Key: "ma2", Title: "MA2: ", Type: PlotLine},
			{Key: "ma3", Title: "MA3: ", Type: PlotLine},
			{Key: "ma4", Title: "MA4: ", Type: PlotLine},
		},
		NewCalculator: func(params Params, plots []Plot) Calculator {
			c := &crCalc{n: params.Period(0)}
			for k := 1; k < len(params); k++ {
				p := params.Period(k)
				lag := forwardLag(p)
				c.mas = append(c.mas, crAverage{
					key:     plots[k].Key,
					period:  p,
					history: newLagBuffer(lag),
				})
			}
			return c
		},
	}
}

type crAverage struct {
	key    string
	period int
	sum    float64
	// history holds the last lag+1 unshifted averages
	history *lagBuffer
}

type crCalc struct {
	n            int
	upSum, dnSum float64
	mas          []crAverage
}

// crTerms returns max(0, H-MID) and max(0, MID-L) for bar j.
func crTerms(bars model.Series, j int) (float64, float64) {
	prev := &bars[j]
	if j > 0 {
		prev = &bars[j-1]
	}
	mid := (prev.High + prev.Close + prev.Low + prev.Open) / 4
	return math.Max(0, bars[j].High-mid), math.Max(0, mid-bars[j].Low)
}

func (c *crCalc) Next(bars model.Series, i int, out []Record) Record {
	rec := Record{}
	up, dn := crTerms(bars, i)
	c.upSum += up
	c.dnSum += dn
	if i < c.n-1 {
		return rec
	}

	cr := 0.0
	if c.dnSum != 0 {
		cr = c.upSum / c.dnSum * 100
	}
	rec["cr"] = cr

	exitUp, exitDn := crTerms(bars, i-(c.n-1))
	c.upSum -= exitUp
	c.dnSum -= exitDn

	for k := range c.mas {
		ma := &c.mas[k]
		ma.sum += cr
		if i < c.n+ma.period-2 {
			continue
		}
		ma.history.push(ma.sum / float64(ma.period))
		if v, ok := ma.history.lagged(); ok {
			rec[ma.key] = v
		}
		ma.sum -= ownValue(out, rec, i, i-(ma.period-1), "cr")
	}
	return rec
}

func (c *crCalc) Clone() Calculator {
	cp := *c
	cp.mas = make([]crAverage, len(c.mas))
	for k, ma := range c.mas {
		ma.history = ma.history.clone()
		cp.mas[k] = ma
	}
	return &cp
}
