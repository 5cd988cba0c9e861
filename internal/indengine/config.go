package indengine

import (
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"charting-engine/internal/indicator"
)

// IndicatorSpec overrides the default params of one registered indicator.
type IndicatorSpec struct {
	Name   string
	Params indicator.Params
}

// ParseIndicatorSpecs parses "NAME:p1/p2/...,NAME:..." as used by
// INDICATOR_PARAMS, e.g. "EMA:6/12/20,MACD:12/26/9". Names are upper-cased.
// An empty string yields no specs.
func ParseIndicatorSpecs(s string) ([]IndicatorSpec, error) {
	var specs []IndicatorSpec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, raw, ok := strings.Cut(part, ":")
		name = strings.ToUpper(strings.TrimSpace(name))
		if !ok || name == "" {
			return nil, errors.Errorf("indicator spec %q: want NAME:p1/p2/...", part)
		}
		params, err := indicator.ParseParams(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "indicator spec %q", part)
		}
		if len(params) == 0 {
			return nil, errors.Errorf("indicator spec %q: no params", part)
		}
		specs = append(specs, IndicatorSpec{Name: name, Params: params})
	}
	return specs, nil
}

// ApplyIndicatorSpecs installs each spec as the new defaults of its
// indicator. It stops at the first invalid spec; earlier ones stay applied.
func ApplyIndicatorSpecs(reg *indicator.Registry, specs []IndicatorSpec) error {
	for _, spec := range specs {
		if err := reg.SetDefaults(spec.Name, spec.Params); err != nil {
			return errors.Wrapf(err, "apply %s defaults", spec.Name)
		}
		slog.Info("[indengine] default params overridden", "indicator", spec.Name, "params", spec.Params.String())
	}
	return nil
}
