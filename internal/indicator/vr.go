package indicator

import "charting-engine/internal/model"

// NewVR describes the volume ratio with params [n, m].
//
// Over the last n bars, volume is split into up (close rose), down (close
// fell) and flat buckets:
//
//	VR   = (UVS + PVS/2) / (DVS + PVS/2) * 100, 0 when the denominator is 0
//	MAVR = MA(VR, m)
func NewVR() *Descriptor {
	return &Descriptor{
		Name:            "VR",
		ShortName:       "VR",
		Series:          SeriesNormal,
		Precision:       4,
		DefaultParams:   Params{26, 6},
		ParamCount:      2,
		CheckParamCount: true,
		Plots: []Plot{
			{Key: "vr", Title: "VR: ", Type: PlotLine},
			{Key: "maVr", Title: "MAVR: ", Type: PlotLine},
		},
		NewCalculator: func(params Params, _ []Plot) Calculator {
			return &vrCalc{n: params.Period(0), m: params.Period(1)}
		},
	}
}

type vrCalc struct {
	n, m          int
	uvs, dvs, pvs float64
	vrSum         float64
}

// vrBucket classifies bar j against the bar before it; bar 0 is flat.
func vrBucket(bars model.Series, j int) int {
	prevClose := bars[j].Close
	if j > 0 {
		prevClose = bars[j-1].Close
	}
	switch {
	case bars[j].Close > prevClose:
		return 1
	case bars[j].Close < prevClose:
		return -1
	}
	return 0
}

func (c *vrCalc) add(bucket int, volume float64) {
	switch bucket {
	case 1:
		c.uvs += volume
	case -1:
		c.dvs += volume
	default:
		c.pvs += volume
	}
}

func (c *vrCalc) Next(bars model.Series, i int, out []Record) Record {
	rec := Record{}
	c.add(vrBucket(bars, i), bars[i].Volume)
	if i < c.n-1 {
		return rec
	}

	halfPvs := c.pvs / 2
	vr := 0.0
	if c.dvs+halfPvs != 0 {
		vr = (c.uvs + halfPvs) / (c.dvs + halfPvs) * 100
	}
	rec["vr"] = vr

	c.vrSum += vr
	if i >= c.n+c.m-2 {
		rec["maVr"] = c.vrSum / float64(c.m)
		c.vrSum -= ownValue(out, rec, i, i-(c.m-1), "vr")
	}

	exit := i - (c.n - 1)
	c.add(vrBucket(bars, exit), -bars[exit].Volume)
	return rec
}

func (c *vrCalc) Clone() Calculator {
	cp := *c
	return &cp
}
