package indicator

import "charting-engine/internal/model"

// NewMACD describes moving average convergence/divergence with params
// [short, long, signal].
//
//	DIF  = EMA(close, short) - EMA(close, long)
//	DEA  = EMA(DIF, signal)
//	MACD = (DIF - DEA) * 2
//
// DIF starts once both EMAs are seeded (max(short,long)-1); DEA is seeded
// with the mean of the first `signal` DIF values.
func NewMACD() *Descriptor {
	return &Descriptor{
		Name:            "MACD",
		ShortName:       "MACD",
		Series:          SeriesNormal,
		Precision:       4,
		DefaultParams:   Params{12, 26, 9},
		ParamCount:      3,
		CheckParamCount: true,
		Plots: []Plot{
			{Key: "dif", Title: "DIF: ", Type: PlotLine},
			{Key: "dea", Title: "DEA: ", Type: PlotLine},
			{Key: "macd", Title: "MACD: ", Type: PlotBar, Color: macdColor, IsStroke: macdRising},
		},
		NewCalculator: func(params Params, _ []Plot) Calculator {
			return &macdCalc{
				short:  params.Period(0),
				long:   params.Period(1),
				signal: params.Period(2),
			}
		},
	}
}

type macdCalc struct {
	short, long, signal int

	closeSum float64
	emaShort float64
	emaLong  float64
	difSum   float64
	dea      float64
}

func (c *macdCalc) Next(bars model.Series, i int, _ []Record) Record {
	rec := Record{}
	price := bars[i].Close
	c.closeSum += price

	if i >= c.short-1 {
		if i > c.short-1 {
			c.emaShort = (2*price + float64(c.short-1)*c.emaShort) / float64(c.short+1)
		} else {
			c.emaShort = c.closeSum / float64(c.short)
		}
	}
	if i >= c.long-1 {
		if i > c.long-1 {
			c.emaLong = (2*price + float64(c.long-1)*c.emaLong) / float64(c.long+1)
		} else {
			c.emaLong = c.closeSum / float64(c.long)
		}
	}

	maxPeriod := max(c.short, c.long)
	if i < maxPeriod-1 {
		return rec
	}
	dif := c.emaShort - c.emaLong
	rec["dif"] = dif
	c.difSum += dif

	seed := maxPeriod + c.signal - 2
	if i < seed {
		return rec
	}
	if i > seed {
		c.dea = (2*dif + float64(c.signal-1)*c.dea) / float64(c.signal+1)
	} else {
		c.dea = c.difSum / float64(c.signal)
	}
	rec["dea"] = c.dea
	rec["macd"] = (dif - c.dea) * 2
	return rec
}

func (c *macdCalc) Clone() Calculator {
	cp := *c
	return &cp
}

func macdColor(ctx PlotContext, style Style) string {
	macd, ok := ctx.Current.Record.Get("macd")
	switch {
	case !ok || macd == 0:
		return style.NoChangeColor
	case macd > 0:
		return style.UpColor
	default:
		return style.DownColor
	}
}

// macdRising draws the histogram bar hollow while it grows.
func macdRising(ctx PlotContext, _ Style) bool {
	cur, ok := ctx.Current.Record.Get("macd")
	if !ok {
		return false
	}
	prev, ok := ctx.Prev.Record.Get("macd")
	return ok && prev < cur
}
