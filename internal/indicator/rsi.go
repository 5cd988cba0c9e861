package indicator

import "charting-engine/internal/model"

// NewRSI describes the Relative Strength Index using Wilder's smoothing.
// Each period p is first defined at index p; an average loss of 0 reads 100.
func NewRSI() *Descriptor {
	params := Params{6, 12, 24}
	regen := func(params Params) []Plot { return periodPlots("rsi", "RSI", params) }
	return &Descriptor{
		Name:          "RSI",
		ShortName:     "RSI",
		Series:        SeriesNormal,
		Precision:     2,
		DefaultParams: params,
		Plots:         regen(params),
		Regenerate:    regen,
		Validate:      distinctPeriods("RSI"),
		NewCalculator: func(params Params, plots []Plot) Calculator {
			c := &rsiCalc{keys: plotKeys(plots)}
			for _, p := range periods(params) {
				c.states = append(c.states, rsiState{period: p})
			}
			return c
		},
	}
}

type rsiState struct {
	period  int
	avgGain float64
	avgLoss float64
}

type rsiCalc struct {
	keys   []string
	states []rsiState
}

func (c *rsiCalc) Next(bars model.Series, i int, _ []Record) Record {
	rec := Record{}
	if i == 0 {
		// First bar, no delta yet
		return rec
	}
	delta := bars[i].Close - bars[i-1].Close
	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	for j := range c.states {
		s := &c.states[j]
		p := float64(s.period)
		if i <= s.period {
			// Accumulation phase: build initial averages
			s.avgGain += gain
			s.avgLoss += loss
			if i < s.period {
				continue
			}
			s.avgGain /= p
			s.avgLoss /= p
		} else {
			s.avgGain = (s.avgGain*(p-1) + gain) / p
			s.avgLoss = (s.avgLoss*(p-1) + loss) / p
		}
		rec[c.keys[j]] = rsiValue(s.avgGain, s.avgLoss)
	}
	return rec
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

func (c *rsiCalc) Clone() Calculator {
	cp := *c
	cp.states = append([]rsiState(nil), c.states...)
	return &cp
}
