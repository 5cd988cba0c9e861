package indicator

import "charting-engine/internal/model"

// DefaultPlaceholder is shown for a plot whose value is not yet defined.
const DefaultPlaceholder = "--"

// TooltipItem is one formatted plot value for the bar under the cursor.
type TooltipItem struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Color string `json:"color"`
}

// TooltipOptions controls formatting. Zero values select the defaults:
// DefaultPlaceholder, the indicator precision and DefaultStyle.
type TooltipOptions struct {
	Placeholder string
	// Precision overrides the indicator precision when non-nil.
	Precision *int
	Style     *Style
}

// ExtractTooltip formats the current record of ctx for every plot, in plot
// order. Missing values render as the placeholder; colors come from the
// plot's ColorFunc, or cycle through the style's line palette.
func ExtractTooltip(plots []Plot, precision int, ctx PlotContext, opts TooltipOptions) []TooltipItem {
	placeholder := opts.Placeholder
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	if opts.Precision != nil {
		precision = *opts.Precision
	}
	style := DefaultStyle()
	if opts.Style != nil {
		style = *opts.Style
	}

	items := make([]TooltipItem, 0, len(plots))
	lineIdx := 0
	for _, p := range plots {
		item := TooltipItem{Title: p.Title, Value: placeholder}
		if v, ok := ctx.Current.Record.Get(p.Key); ok {
			item.Value = model.FormatNumber(v, precision)
		}
		switch {
		case p.Color != nil:
			item.Color = p.Color(ctx, style)
		case len(style.LineColors) > 0:
			item.Color = style.LineColors[lineIdx%len(style.LineColors)]
		}
		if p.Color == nil {
			lineIdx++
		}
		items = append(items, item)
	}
	return items
}

// TooltipAt is ExtractTooltip for index i of a computed result.
func TooltipAt(series model.Series, res Result, i int, opts TooltipOptions) []TooltipItem {
	return ExtractTooltip(res.Plots, res.Precision, ContextAt(series, res.Records, i), opts)
}
