package indicator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_DefaultRegistryListsBuiltins(t *testing.T) {
	r := NewDefaultRegistry(PolicyReject)
	assert.Equal(t, []string{"CR", "DMI", "EMA", "MA", "MACD", "RSI", "SMMA", "VR"}, r.List())
}

func TestRegistry_UnknownIndicator(t *testing.T) {
	r := NewDefaultRegistry(PolicyOverwrite)
	_, err := r.Get("KDJ")
	assert.ErrorIs(t, err, ErrUnknownIndicator)

	_, err = r.Compute("KDJ", risingSeries(10), nil)
	assert.ErrorIs(t, err, ErrUnknownIndicator)
	assert.ErrorIs(t, r.Remove("KDJ"), ErrUnknownIndicator)
}

func TestRegistry_OverwritePolicy(t *testing.T) {
	r := NewRegistry(PolicyOverwrite)
	require.NoError(t, r.Register(NewEMA()))

	custom := NewEMA()
	custom.ShortName = "XEMA"
	require.NoError(t, r.Register(custom))

	d, err := r.Get("EMA")
	require.NoError(t, err)
	assert.Equal(t, "XEMA", d.ShortName)
}

func TestRegistry_RejectPolicy(t *testing.T) {
	r := NewRegistry(PolicyReject)
	require.NoError(t, r.Register(NewEMA()))
	err := r.Register(NewEMA())
	assert.ErrorIs(t, err, ErrDuplicateIndicator)
}

func TestRegistry_RegisterValidatesDescriptor(t *testing.T) {
	r := NewRegistry(PolicyOverwrite)
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&Descriptor{Name: "X"}))

	bad := NewMACD()
	bad.DefaultParams = Params{12, 26}
	assert.ErrorIs(t, r.Register(bad), ErrInvalidParameter)
}

func TestRegistry_SetDefaultsRegeneratesPlots(t *testing.T) {
	r := NewDefaultRegistry(PolicyReject)
	series := flatSeries(30, 100)

	require.NoError(t, r.SetDefaults("EMA", Params{5}))
	res, err := r.Compute("EMA", series, nil)
	require.NoError(t, err)
	require.Len(t, res.Plots, 1)
	assert.Equal(t, "ema5", res.Plots[0].Key)
	assert.Equal(t, "EMA5: ", res.Plots[0].Title)

	require.NoError(t, r.SetDefaults("EMA", Params{10}))
	res, err = r.Compute("EMA", series, nil)
	require.NoError(t, err)
	require.Len(t, res.Plots, 1)
	assert.Equal(t, "ema10", res.Plots[0].Key)
	for i, rec := range res.Records {
		_, leaked := rec["ema5"]
		assert.False(t, leaked, "bar %d", i)
	}
	assert.Equal(t, 9, firstDefined(res.Records, "ema10"))

	// the built-in factory itself is untouched
	assert.Equal(t, Params{6, 12, 20}, NewEMA().DefaultParams)
}

func TestRegistry_SetDefaultsRejectsInvalid(t *testing.T) {
	r := NewDefaultRegistry(PolicyOverwrite)
	assert.ErrorIs(t, r.SetDefaults("DMI", Params{14}), ErrInvalidParameterCount)
	assert.ErrorIs(t, r.SetDefaults("EMA", Params{0}), ErrInvalidParameter)
	assert.ErrorIs(t, r.SetDefaults("EMA", Params{2.5}), ErrInvalidParameter)
	assert.ErrorIs(t, r.SetDefaults("nope", Params{1}), ErrUnknownIndicator)

	d, err := r.Get("DMI")
	require.NoError(t, err)
	assert.Equal(t, Params{14, 6}, d.DefaultParams)
}

func TestRegistry_ParamValidation(t *testing.T) {
	r := NewDefaultRegistry(PolicyOverwrite)
	series := risingSeries(10)

	cases := []struct {
		name   string
		params Params
		count  bool
	}{
		{"MACD", Params{12, 26}, true},
		{"CR", Params{26, 10, 20, 40}, true},
		{"VR", Params{26, 6, 1}, true},
		{"EMA", Params{}, true},
		{"EMA", Params{-3}, false},
		{"RSI", Params{6, 0}, false},
	}
	for _, tc := range cases {
		_, err := r.Compute(tc.name, series, tc.params)
		require.Error(t, err, "%s %v", tc.name, tc.params)
		assert.ErrorIs(t, err, ErrInvalidParameter, "%s %v", tc.name, tc.params)
		if tc.count {
			assert.ErrorIs(t, err, ErrInvalidParameterCount, "%s %v", tc.name, tc.params)
		}
	}

	// duplicate periods would collide on one plot key
	for _, name := range []string{"EMA", "MA", "SMMA", "RSI"} {
		_, err := r.Compute(name, series, Params{6, 12, 6})
		assert.ErrorIs(t, err, ErrInvalidParameter, name)
		assert.Contains(t, err.Error(), "repeats param[0]", name)
	}

	// EMA does not check arity
	res, err := r.Compute("EMA", series, Params{2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Len(t, res.Plots, 5)
}

func TestRegistry_RejectsOversizedPeriods(t *testing.T) {
	r := NewDefaultRegistry(PolicyOverwrite)
	series := risingSeries(10)

	cases := []struct {
		name   string
		params Params
	}{
		{"MA", Params{5, 10, 30, 1e19}},
		{"MA", Params{5, 10, 30, 1e9}},
		{"CR", Params{26, 10, 20, 40, 1e19}},
		{"CR", Params{26, 10, 20, 40, 1e9}},
		{"EMA", Params{1e19}},
		{"EMA", Params{1e9}},
		{"VR", Params{26, MaxPeriod + 1}},
	}
	for _, tc := range cases {
		_, err := r.Compute(tc.name, series, tc.params)
		require.Error(t, err, "%s %v", tc.name, tc.params)
		assert.ErrorIs(t, err, ErrInvalidParameter, "%s %v", tc.name, tc.params)
		assert.Contains(t, err.Error(), "exceeds maximum period")

		desc, err := r.Get(tc.name)
		require.NoError(t, err)
		_, err = NewStream(desc, tc.params)
		assert.ErrorIs(t, err, ErrInvalidParameter, "stream %s %v", tc.name, tc.params)
	}

	res, err := r.Compute("EMA", series, Params{MaxPeriod})
	require.NoError(t, err)
	assert.Equal(t, "ema100000", res.Plots[0].Key)
	assert.Empty(t, res.Records[9])
}

func TestRegistry_ComputeAllKeepsOrder(t *testing.T) {
	r := NewDefaultRegistry(PolicyOverwrite)
	series := randomSeries(4, 150)
	reqs := []Request{
		{Name: "VR"},
		{Name: "EMA", Params: Params{9}},
		{Name: "MACD"},
		{Name: "DMI"},
	}
	results, err := r.ComputeAll(context.Background(), series, reqs)
	require.NoError(t, err)
	require.Len(t, results, len(reqs))
	for i, req := range reqs {
		assert.Equal(t, req.Name, results[i].Name)
		want, err := r.Compute(req.Name, series, req.Params)
		require.NoError(t, err)
		requireSameRecords(t, want.Records, results[i].Records)
	}
}

func TestRegistry_ComputeAllFailsFast(t *testing.T) {
	r := NewDefaultRegistry(PolicyOverwrite)
	_, err := r.ComputeAll(context.Background(), risingSeries(20), []Request{{Name: "EMA"}, {Name: "BOLL"}})
	assert.ErrorIs(t, err, ErrUnknownIndicator)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.ComputeAll(ctx, risingSeries(20), []Request{{Name: "EMA"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewDefaultRegistry(PolicyOverwrite)
	series := randomSeries(6, 80)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if i%2 == 0 {
					_ = r.SetDefaults("EMA", Params{float64(2 + j%5)})
					continue
				}
				_, err := r.Compute("EMA", series, nil)
				assert.NoError(t, err)
				_ = r.List()
			}
		}(i)
	}
	wg.Wait()
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("reject")
	require.NoError(t, err)
	assert.Equal(t, PolicyReject, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyOverwrite, p)

	_, err = ParsePolicy("merge")
	assert.Error(t, err)
}

func TestParseParams(t *testing.T) {
	p, err := ParseParams("12/26/9")
	require.NoError(t, err)
	assert.Equal(t, Params{12, 26, 9}, p)

	p, err = ParseParams(" 6, 12 ,20")
	require.NoError(t, err)
	assert.Equal(t, Params{6, 12, 20}, p)
	assert.Equal(t, "6/12/20", p.String())

	p, err = ParseParams("")
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = ParseParams("12/x")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
