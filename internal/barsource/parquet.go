package barsource

import (
	"github.com/parquet-go/parquet-go"

	"charting-engine/internal/model"
)

// Parquet stores bars using the model.Bar struct tags as the schema.
type Parquet struct{}

func (Parquet) Extension() string { return "parquet" }

func (Parquet) Load(path string) (model.Series, error) {
	rows, err := parquet.ReadFile[model.Bar](path)
	if err != nil {
		return nil, err
	}
	return model.Series(rows), nil
}

func (Parquet) Save(path string, bars model.Series) error {
	return parquet.WriteFile(path, []model.Bar(bars))
}
