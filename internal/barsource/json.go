package barsource

import (
	"encoding/json"
	"os"

	"charting-engine/internal/model"
)

// JSON stores bars as an indented array of model.Bar objects.
type JSON struct{}

func (JSON) Extension() string { return "json" }

func (JSON) Load(path string) (model.Series, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var bars model.Series
	if err := json.Unmarshal(data, &bars); err != nil {
		return nil, err
	}
	return bars, nil
}

func (JSON) Save(path string, bars model.Series) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(bars); err != nil {
		return err
	}
	return f.Close()
}
