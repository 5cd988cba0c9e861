package indicator

import (
	"math"

	"charting-engine/internal/model"
)

// NewDMI describes the directional movement index with params [n, m].
//
//	TR   = max(high-low, |high-prevClose|, |prevClose-low|)
//	+DM  = up-move if up-move > 0 and up-move > down-move, else 0 (-DM symmetric)
//	MTR, DMP, DMM: Wilder sums, seeded with the plain sum of the first n bars,
//	               then x = x - x/n + new
//	PDI  = DMP*100/MTR, MDI = DMM*100/MTR (0 when MTR is 0)
//	DX   = |MDI-PDI| / (MDI+PDI) * 100 (0 when PDI+MDI is 0)
//	ADX  = mean of the first n DX values, then (adx*(n-1) + dx) / n
//	ADXR = (ADX + ADX[m-1 bars ago]) / 2
//
// The first bar uses itself as the previous bar.
func NewDMI() *Descriptor {
	return &Descriptor{
		Name:            "DMI",
		ShortName:       "DMI",
		Series:          SeriesNormal,
		Precision:       4,
		DefaultParams:   Params{14, 6},
		ParamCount:      2,
		CheckParamCount: true,
		Plots: []Plot{
			{Key: "pdi", Title: "PDI: ", Type: PlotLine},
			{Key: "mdi", Title: "MDI: ", Type: PlotLine},
			{Key: "adx", Title: "ADX: ", Type: PlotLine},
			{Key: "adxr", Title: "ADXR: ", Type: PlotLine},
		},
		NewCalculator: func(params Params, _ []Plot) Calculator {
			return &dmiCalc{n: params.Period(0), m: params.Period(1)}
		},
	}
}

type dmiCalc struct {
	n, m int

	trSum, hSum, lSum float64
	mtr, dmp, dmm     float64
	dxSum             float64
	adx               float64
}

func (c *dmiCalc) Next(bars model.Series, i int, out []Record) Record {
	rec := Record{}
	cur := &bars[i]
	prev := cur
	if i > 0 {
		prev = &bars[i-1]
	}

	tr := math.Max(math.Max(cur.High-cur.Low, math.Abs(cur.High-prev.Close)), math.Abs(prev.Close-cur.Low))
	up := cur.High - prev.High
	down := prev.Low - cur.Low
	h, l := 0.0, 0.0
	if up > 0 && up > down {
		h = up
	}
	if down > 0 && down > up {
		l = down
	}
	c.trSum += tr
	c.hSum += h
	c.lSum += l

	n := float64(c.n)
	if i < c.n-1 {
		return rec
	}
	if i > c.n-1 {
		c.mtr = c.mtr - c.mtr/n + tr
		c.dmp = c.dmp - c.dmp/n + h
		c.dmm = c.dmm - c.dmm/n + l
	} else {
		c.mtr, c.dmp, c.dmm = c.trSum, c.hSum, c.lSum
	}

	pdi, mdi := 0.0, 0.0
	if c.mtr != 0 {
		pdi = c.dmp * 100 / c.mtr
		mdi = c.dmm * 100 / c.mtr
	}
	rec["pdi"] = pdi
	rec["mdi"] = mdi

	dx := 0.0
	if pdi+mdi != 0 {
		dx = math.Abs(mdi-pdi) / (mdi + pdi) * 100
	}
	c.dxSum += dx

	adxStart := 2*c.n - 2
	if i < adxStart {
		return rec
	}
	if i > adxStart {
		c.adx = (c.adx*(n-1) + dx) / n
	} else {
		c.adx = c.dxSum / n
	}
	rec["adx"] = c.adx

	// the lagged adx must itself be past warm-up
	lag := c.m - 1
	if i >= adxStart+lag {
		past := c.adx
		if lag > 0 {
			past = out[i-lag]["adx"]
		}
		rec["adxr"] = (past + c.adx) / 2
	}
	return rec
}

func (c *dmiCalc) Clone() Calculator {
	cp := *c
	return &cp
}
