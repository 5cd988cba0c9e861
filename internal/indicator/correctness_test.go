package indicator

import (
	"fmt"
	"math"
	"strconv"
	"testing"

	"github.com/markcheno/go-talib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charting-engine/internal/model"
)

// ────────────────────────────────────────────────────────────
// EMA Correctness
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// EMA(3): (2*close + 2*prev) / 4
	// Prices: 100, 102, 104, 103, 105
	//
	// Bar 2: seed = (100+102+104)/3 = 102.0
	// Bar 3: (2*103 + 2*102.0)/4 = 102.5
	// Bar 4: (2*105 + 2*102.5)/4 = 103.75
	res := mustCompute(t, NewEMA(), closeSeries(100, 102, 104, 103, 105), Params{3})
	expected := []float64{0, 0, 102.0, 102.5, 103.75}

	for i, r := range res.Records {
		v, ok := r.Get("ema3")
		if i < 2 {
			assert.False(t, ok, "bar %d must be in warm-up", i)
			continue
		}
		require.True(t, ok, "bar %d", i)
		assertClose(t, fmt.Sprintf("EMA(3) bar %d", i), v, expected[i], 1e-9)
	}
}

func TestEMA_FlatSeries(t *testing.T) {
	res := mustCompute(t, NewEMA(), flatSeries(20, 100), nil)
	require.Len(t, res.Records, 20)

	for i, r := range res.Records {
		for _, p := range []int{6, 12, 20} {
			key := "ema" + strconv.Itoa(p)
			v, ok := r[key]
			if i < p-1 {
				assert.False(t, ok, "bar %d %s must be absent", i, key)
				continue
			}
			require.True(t, ok, "bar %d %s", i, key)
			assertClose(t, key, v, 100, 1e-9)
		}
	}
}

func TestEMA_MatchesTalib(t *testing.T) {
	series := randomSeries(7, 300)
	closes := series.Closes()
	res := mustCompute(t, NewEMA(), series, Params{6, 12, 20})

	for _, p := range []int{6, 12, 20} {
		want := talib.Ema(closes, p)
		key := "ema" + strconv.Itoa(p)
		for i := p - 1; i < len(series); i++ {
			assertClose(t, fmt.Sprintf("%s bar %d", key, i), res.Records[i][key], want[i], 1e-6)
		}
	}
}

// ────────────────────────────────────────────────────────────
// MA / SMMA / RSI Correctness
// ────────────────────────────────────────────────────────────

func TestMA_Correctness_Period3(t *testing.T) {
	// (100+102+104)/3 = 102, (102+104+103)/3 = 103, (104+103+105)/3 = 104
	res := mustCompute(t, NewMA(), closeSeries(100, 102, 104, 103, 105), Params{3})
	assert.Equal(t, 2, firstDefined(res.Records, "ma3"))
	assertClose(t, "MA(3) bar 2", res.Records[2]["ma3"], 102, 1e-9)
	assertClose(t, "MA(3) bar 3", res.Records[3]["ma3"], 103, 1e-9)
	assertClose(t, "MA(3) bar 4", res.Records[4]["ma3"], 104, 1e-9)
}

func TestMA_MatchesTalib(t *testing.T) {
	series := randomSeries(11, 250)
	closes := series.Closes()
	res := mustCompute(t, NewMA(), series, nil)

	for _, p := range []int{5, 10, 30, 60} {
		want := talib.Sma(closes, p)
		key := "ma" + strconv.Itoa(p)
		for i := p - 1; i < len(series); i++ {
			assertClose(t, fmt.Sprintf("%s bar %d", key, i), res.Records[i][key], want[i], 1e-6)
		}
	}
}

func TestSMMA_Correctness_Period3(t *testing.T) {
	// Seed: (100+102+104)/3 = 102
	// Bar 3: (102*2 + 103)/3 = 102.333333
	// Bar 4: (102.333333*2 + 105)/3 = 103.222222
	res := mustCompute(t, NewSMMA(), closeSeries(100, 102, 104, 103, 105), Params{3})
	assert.Equal(t, 2, firstDefined(res.Records, "smma3"))
	assertClose(t, "SMMA bar 2", res.Records[2]["smma3"], 102, 1e-9)
	assertClose(t, "SMMA bar 3", res.Records[3]["smma3"], 307.0/3, 1e-9)
	assertClose(t, "SMMA bar 4", res.Records[4]["smma3"], (2*307.0/3+105)/3, 1e-9)
}

func TestRSI_Correctness_Period3(t *testing.T) {
	// Deltas: +2, +2, -1, +2
	// Bar 3: avgGain = 4/3, avgLoss = 1/3 → RS = 4 → RSI = 80
	// Bar 4: avgGain = (4/3*2 + 2)/3 = 14/9, avgLoss = (1/3*2)/3 = 2/9 → RS = 7 → RSI = 87.5
	res := mustCompute(t, NewRSI(), closeSeries(100, 102, 104, 103, 105), Params{3})
	assert.Equal(t, 3, firstDefined(res.Records, "rsi3"))
	assertClose(t, "RSI bar 3", res.Records[3]["rsi3"], 80, 1e-9)
	assertClose(t, "RSI bar 4", res.Records[4]["rsi3"], 87.5, 1e-9)
}

func TestRSI_NoLossesReads100(t *testing.T) {
	res := mustCompute(t, NewRSI(), risingSeries(30), Params{6})
	for i := 6; i < 30; i++ {
		assertClose(t, "RSI rising", res.Records[i]["rsi6"], 100, 1e-9)
	}
}

func TestRSI_MatchesTalib(t *testing.T) {
	series := randomSeries(13, 200)
	closes := series.Closes()
	res := mustCompute(t, NewRSI(), series, Params{14})

	want := talib.Rsi(closes, 14)
	for i := 14; i < len(series); i++ {
		assertClose(t, fmt.Sprintf("rsi14 bar %d", i), res.Records[i]["rsi14"], want[i], 1e-6)
	}
}

// ────────────────────────────────────────────────────────────
// MACD
// ────────────────────────────────────────────────────────────

func TestMACD_WarmUpBoundaries(t *testing.T) {
	res := mustCompute(t, NewMACD(), risingSeries(50), nil)
	require.Len(t, res.Records, 50)

	assert.Equal(t, 25, firstDefined(res.Records, "dif"))
	assert.Equal(t, 33, firstDefined(res.Records, "dea"))
	assert.Equal(t, 33, firstDefined(res.Records, "macd"))

	// a steady rise keeps the short EMA above the long one
	for i := 25; i < 50; i++ {
		assert.Greater(t, res.Records[i]["dif"], 0.0, "bar %d", i)
	}
	for i := 33; i < 50; i++ {
		r := res.Records[i]
		assertClose(t, "macd", r["macd"], (r["dif"]-r["dea"])*2, 1e-12)
	}
}

func TestMACD_DifMatchesEMADifference(t *testing.T) {
	series := randomSeries(3, 120)
	macd := mustCompute(t, NewMACD(), series, nil)
	ema := mustCompute(t, NewEMA(), series, Params{12, 26})

	for i := 25; i < len(series); i++ {
		want := ema.Records[i]["ema12"] - ema.Records[i]["ema26"]
		assertClose(t, fmt.Sprintf("dif bar %d", i), macd.Records[i]["dif"], want, 1e-9)
	}
}

func TestMACD_DeaSeedIsMeanOfFirstSignalDifs(t *testing.T) {
	series := randomSeries(5, 80)
	res := mustCompute(t, NewMACD(), series, Params{4, 8, 3})
	// dif from 7, dea seed at 7+3-1 = 9
	assert.Equal(t, 7, firstDefined(res.Records, "dif"))
	assert.Equal(t, 9, firstDefined(res.Records, "dea"))

	seed := (res.Records[7]["dif"] + res.Records[8]["dif"] + res.Records[9]["dif"]) / 3
	assertClose(t, "dea seed", res.Records[9]["dea"], seed, 1e-12)

	next := (2*res.Records[10]["dif"] + 2*seed) / 4
	assertClose(t, "dea recursion", res.Records[10]["dea"], next, 1e-12)
}

func TestMACD_EqualPeriodsGiveZeroDif(t *testing.T) {
	res := mustCompute(t, NewMACD(), randomSeries(9, 40), Params{12, 12, 9})
	assert.Equal(t, 11, firstDefined(res.Records, "dif"))
	assert.Equal(t, 19, firstDefined(res.Records, "dea"))
	for i := 11; i < 40; i++ {
		assertClose(t, fmt.Sprintf("dif bar %d", i), res.Records[i]["dif"], 0, 1e-12)
		assertClose(t, fmt.Sprintf("macd bar %d", i), res.Records[i]["macd"], 0, 1e-12)
	}
}

// ────────────────────────────────────────────────────────────
// DMI
// ────────────────────────────────────────────────────────────

func TestDMI_FlatSeries(t *testing.T) {
	res := mustCompute(t, NewDMI(), flatSeries(40, 50), nil)

	assert.Equal(t, 13, firstDefined(res.Records, "pdi"))
	assert.Equal(t, 26, firstDefined(res.Records, "adx"))
	assert.Equal(t, 31, firstDefined(res.Records, "adxr"))
	for i := 13; i < 40; i++ {
		assert.Equal(t, 0.0, res.Records[i]["pdi"], "bar %d", i)
		assert.Equal(t, 0.0, res.Records[i]["mdi"], "bar %d", i)
	}
	for i := 26; i < 40; i++ {
		assert.Equal(t, 0.0, res.Records[i]["adx"], "bar %d", i)
	}
}

func TestDMI_AdxrAveragesLaggedAdx(t *testing.T) {
	res := mustCompute(t, NewDMI(), randomSeries(17, 150), Params{10, 4})
	for i := 18 + 3; i < 150; i++ {
		r := res.Records[i]
		want := (r["adx"] + res.Records[i-3]["adx"]) / 2
		assertClose(t, fmt.Sprintf("adxr bar %d", i), r["adxr"], want, 1e-12)
	}
}

func TestDMI_AdxrWithUnitLag(t *testing.T) {
	res := mustCompute(t, NewDMI(), randomSeries(19, 60), Params{5, 1})
	assert.Equal(t, 8, firstDefined(res.Records, "adxr"))
	for i := 8; i < 60; i++ {
		assertClose(t, "adxr", res.Records[i]["adxr"], res.Records[i]["adx"], 1e-12)
	}
}

func TestDMI_RisingSeriesFavoursPlusDI(t *testing.T) {
	res := mustCompute(t, NewDMI(), risingSeries(60), nil)
	for i := 13; i < 60; i++ {
		r := res.Records[i]
		assert.Greater(t, r["pdi"], r["mdi"], "bar %d", i)
	}
}

// ────────────────────────────────────────────────────────────
// CR
// ────────────────────────────────────────────────────────────

// bruteCR recomputes CR with full window scans.
func bruteCR(series model.Series, params Params) []Record {
	n := params.Period(0)
	out := make([]Record, len(series))
	cr := make([]float64, len(series))
	for i := range series {
		out[i] = Record{}
		if i < n-1 {
			continue
		}
		up, dn := 0.0, 0.0
		for j := i - n + 1; j <= i; j++ {
			u, d := crTerms(series, j)
			up += u
			dn += d
		}
		if dn != 0 {
			cr[i] = up / dn * 100
		}
		out[i]["cr"] = cr[i]
	}
	for k := 1; k < len(params); k++ {
		m := params.Period(k)
		lag := forwardLag(m)
		key := "ma" + strconv.Itoa(k)
		for i := range series {
			src := i - lag
			if src < n+m-2 {
				continue
			}
			sum := 0.0
			for j := src - m + 1; j <= src; j++ {
				sum += cr[j]
			}
			out[i][key] = sum / float64(m)
		}
	}
	return out
}

func TestCR_MatchesBruteForce(t *testing.T) {
	cases := []Params{
		{26, 10, 20, 40, 60},
		{5, 1, 2, 3, 60},
		{1, 1, 1, 1, 1},
	}
	for seed, params := range cases {
		series := randomSeries(int64(100+seed), 240)
		res := mustCompute(t, NewCR(), series, params)
		want := bruteCR(series, params)
		for i := range series {
			require.Len(t, res.Records[i], len(want[i]), "params %v bar %d keys", params, i)
			for key, v := range want[i] {
				assertClose(t, fmt.Sprintf("%v %s bar %d", params, key, i), res.Records[i][key], v, 1e-6)
			}
		}
	}
}

func TestCR_WarmUp(t *testing.T) {
	res := mustCompute(t, NewCR(), randomSeries(23, 200), nil)
	assert.Equal(t, 25, firstDefined(res.Records, "cr"))
	// ma1: N+M-2 + ceil(10/2.5+1) = 34 + 5
	assert.Equal(t, 39, firstDefined(res.Records, "ma1"))
	assert.Equal(t, 44+9, firstDefined(res.Records, "ma2"))
	assert.Equal(t, 64+17, firstDefined(res.Records, "ma3"))
	assert.Equal(t, 84+25, firstDefined(res.Records, "ma4"))
}

func TestCR_ZeroDenominator(t *testing.T) {
	res := mustCompute(t, NewCR(), flatSeries(40, 10), Params{5, 2, 2, 2, 2})
	for i := 4; i < 40; i++ {
		assert.Equal(t, 0.0, res.Records[i]["cr"], "bar %d", i)
	}
}

// ────────────────────────────────────────────────────────────
// VR
// ────────────────────────────────────────────────────────────

func bruteVR(series model.Series, n, m int) []Record {
	out := make([]Record, len(series))
	vr := make([]float64, len(series))
	for i := range series {
		out[i] = Record{}
		if i < n-1 {
			continue
		}
		uvs, dvs, pvs := 0.0, 0.0, 0.0
		for j := i - n + 1; j <= i; j++ {
			switch vrBucket(series, j) {
			case 1:
				uvs += series[j].Volume
			case -1:
				dvs += series[j].Volume
			default:
				pvs += series[j].Volume
			}
		}
		if dvs+pvs/2 != 0 {
			vr[i] = (uvs + pvs/2) / (dvs + pvs/2) * 100
		}
		out[i]["vr"] = vr[i]
		if i >= n+m-2 {
			sum := 0.0
			for j := i - m + 1; j <= i; j++ {
				sum += vr[j]
			}
			out[i]["maVr"] = sum / float64(m)
		}
	}
	return out
}

func TestVR_MatchesBruteForce(t *testing.T) {
	for _, p := range [][2]int{{26, 6}, {3, 1}, {60, 60}, {1, 1}} {
		series := randomSeries(int64(p[0]*31+p[1]), 220)
		res := mustCompute(t, NewVR(), series, Params{float64(p[0]), float64(p[1])})
		want := bruteVR(series, p[0], p[1])
		for i := range series {
			require.Len(t, res.Records[i], len(want[i]), "%v bar %d keys", p, i)
			for key, v := range want[i] {
				assertClose(t, fmt.Sprintf("%v %s bar %d", p, key, i), res.Records[i][key], v, 1e-6)
			}
		}
	}
}

func TestVR_ZeroDenominator(t *testing.T) {
	// Strictly rising closes put all volume in the up bucket.
	res := mustCompute(t, NewVR(), risingSeries(40), Params{5, 3})
	// the window covering the flat first bar still has flat volume
	for i := 5; i < 40; i++ {
		assert.Equal(t, 0.0, res.Records[i]["vr"], "bar %d", i)
	}
	assert.Equal(t, 6, firstDefined(res.Records, "maVr"))
}

func TestVR_FlatSeriesIsHundred(t *testing.T) {
	res := mustCompute(t, NewVR(), flatSeries(30, 10), nil)
	for i := 25; i < 30; i++ {
		assertClose(t, "vr", res.Records[i]["vr"], 100, 1e-9)
	}
}

// ────────────────────────────────────────────────────────────
// Properties shared by every built-in
// ────────────────────────────────────────────────────────────

func TestBuiltins_RecordPerBarAndMonotonicWarmUp(t *testing.T) {
	series := randomSeries(42, 260)
	for _, d := range Builtins() {
		t.Run(d.Name, func(t *testing.T) {
			res := mustCompute(t, d, series, nil)
			require.Len(t, res.Records, len(series))
			for _, p := range res.Plots {
				first := firstDefined(res.Records, p.Key)
				require.GreaterOrEqual(t, first, 0, "%s never defined", p.Key)
				for i := first; i < len(series); i++ {
					v, ok := res.Records[i][p.Key]
					require.True(t, ok, "%s disappeared at bar %d", p.Key, i)
					require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s bar %d = %v", p.Key, i, v)
				}
			}
			for i, r := range res.Records {
				require.NotNil(t, r, "bar %d", i)
				for key := range r {
					assert.Contains(t, plotKeys(res.Plots), key, "bar %d stray key", i)
				}
			}
		})
	}
}

func TestBuiltins_EmptyAndShortSeries(t *testing.T) {
	for _, d := range Builtins() {
		res := mustCompute(t, d, nil, nil)
		assert.Empty(t, res.Records, d.Name)

		res = mustCompute(t, d, risingSeries(3), nil)
		require.Len(t, res.Records, 3, d.Name)
	}
}

func TestBuiltins_InputNotMutated(t *testing.T) {
	series := randomSeries(1, 120)
	before := series.Fingerprint()
	for _, d := range Builtins() {
		params := d.DefaultParams.Clone()
		mustCompute(t, d, series, params)
		assert.Equal(t, d.DefaultParams, params, d.Name)
	}
	assert.Equal(t, before, series.Fingerprint())
}
