// Package barsource reads and writes bar series files for import, export and
// offline computation. The format follows the file extension: csv, parquet
// or json.
package barsource

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"charting-engine/internal/model"
)

// ErrUnsupportedFormat is returned for an unknown file extension.
var ErrUnsupportedFormat = errors.New("unsupported bar file format")

// Codec loads and saves one file format.
type Codec interface {
	Load(path string) (model.Series, error)
	Save(path string, bars model.Series) error
	Extension() string
}

// ForFormat returns the codec for a format name (csv, parquet, json).
func ForFormat(format string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSV{}, nil
	case "parquet":
		return Parquet{}, nil
	case "json":
		return JSON{}, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedFormat, "%q (use csv, parquet, json)", format)
}

// ForPath picks the codec from the file extension.
func ForPath(path string) (Codec, error) {
	return ForFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Load reads path with the codec implied by its extension and validates the
// result against the series contract.
func Load(path string) (model.Series, error) {
	codec, err := ForPath(path)
	if err != nil {
		return nil, err
	}
	bars, err := codec.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	if err := bars.Validate(); err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return bars, nil
}

// Save writes bars to path with the codec implied by its extension.
func Save(path string, bars model.Series) error {
	codec, err := ForPath(path)
	if err != nil {
		return err
	}
	return errors.Wrapf(codec.Save(path, bars), "save %s", path)
}
