package indicator

import (
	"strconv"

	"charting-engine/internal/model"
)

// Record is the output for one bar: plot key → value.
// A missing key means "not yet defined" (warm-up), never an error.
type Record map[string]float64

// Get returns the value for key and whether it is defined.
func (r Record) Get(key string) (float64, bool) {
	v, ok := r[key]
	return v, ok
}

// PlotType is a render hint for a plot channel.
type PlotType string

const (
	PlotLine   PlotType = "line"
	PlotBar    PlotType = "bar"
	PlotCircle PlotType = "circle"
)

// Style is the subset of chart styling that color decisions read.
type Style struct {
	UpColor       string   `json:"upColor"`
	DownColor     string   `json:"downColor"`
	NoChangeColor string   `json:"noChangeColor"`
	LineColors    []string `json:"lineColors"`
}

// DefaultStyle mirrors the stock chart theme.
func DefaultStyle() Style {
	return Style{
		UpColor:       "#26A69A",
		DownColor:     "#EF5350",
		NoChangeColor: "#888888",
		LineColors:    []string{"#FF9600", "#9D65C9", "#2196F3", "#E11D74", "#01C5C4"},
	}
}

// PlotPoint is one bar and its computed record. Both are nil outside the series.
type PlotPoint struct {
	Bar    *model.Bar
	Record Record
}

// PlotContext is the previous/current/next window a color decision sees.
type PlotContext struct {
	Prev    PlotPoint
	Current PlotPoint
	Next    PlotPoint
}

// ColorFunc picks a color for one bar of a plot.
type ColorFunc func(ctx PlotContext, style Style) string

// StrokeFunc decides whether a bar plot is drawn hollow.
type StrokeFunc func(ctx PlotContext, style Style) bool

// Plot describes one output channel.
type Plot struct {
	Key      string
	Title    string
	Type     PlotType
	Color    ColorFunc
	IsStroke StrokeFunc
}

// PlotMeta is the data-only part of a Plot, safe to serialize.
type PlotMeta struct {
	Key   string   `json:"key"`
	Title string   `json:"title"`
	Type  PlotType `json:"type"`
}

// Meta strips the decision functions.
func (p Plot) Meta() PlotMeta {
	return PlotMeta{Key: p.Key, Title: p.Title, Type: p.Type}
}

// PlotMetas converts a plot set.
func PlotMetas(plots []Plot) []PlotMeta {
	out := make([]PlotMeta, len(plots))
	for i, p := range plots {
		out[i] = p.Meta()
	}
	return out
}

// periodPlots builds one line plot per period using the prefix + period key
// convention, e.g. "ema6" / "EMA6: ".
func periodPlots(keyPrefix, titlePrefix string, params Params) []Plot {
	plots := make([]Plot, len(params))
	for i := range params {
		p := strconv.Itoa(params.Period(i))
		plots[i] = Plot{Key: keyPrefix + p, Title: titlePrefix + p + ": ", Type: PlotLine}
	}
	return plots
}

// ContextAt assembles the three-bar context around index i.
func ContextAt(series model.Series, records []Record, i int) PlotContext {
	point := func(j int) PlotPoint {
		if j < 0 || j >= len(series) || j >= len(records) {
			return PlotPoint{}
		}
		return PlotPoint{Bar: &series[j], Record: records[j]}
	}
	return PlotContext{Prev: point(i - 1), Current: point(i), Next: point(i + 1)}
}
