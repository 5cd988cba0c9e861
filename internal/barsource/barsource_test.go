package barsource

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charting-engine/internal/model"
)

func sample() model.Series {
	return model.Series{
		{Timestamp: 1_700_000_000_000, Open: 10, High: 11.5, Low: 9.25, Close: 11, Volume: 1200},
		{Timestamp: 1_700_000_060_000, Open: 11, High: 12, Low: 10.5, Close: 10.75, Volume: 800},
	}
}

func TestLoadSave_AllFormats(t *testing.T) {
	dir := t.TempDir()
	for _, ext := range []string{"csv", "parquet", "json"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(dir, "bars."+ext)
			require.NoError(t, Save(path, sample()))

			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, sample(), got)
		})
	}
}

func TestReadCSV_HeaderAndRFC3339(t *testing.T) {
	in := "timestamp,open,high,low,close,volume\n" +
		"2023-11-14T22:13:20Z, 10, 11.5, 9.25, 11, 1200\n" +
		"1700000060000,11,12,10.5,10.75,800\n"
	got, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, sample(), got)
}

func TestReadCSV_BadRows(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("yesterday,1,2,3,4,5\n"))
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("1,1,2,x,4,5\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column low")

	_, err = ReadCSV(strings.NewReader("1,1,2,3\n"))
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidSeries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("2,1,1,1,1,1\n1,1,1,1,1,1\n"), 0o644))
	_, err := Load(path)
	assert.ErrorIs(t, err, model.ErrInvalidSeries)
}

func TestForPath_Unsupported(t *testing.T) {
	_, err := ForPath("bars.xlsx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	c, err := ForFormat(" Parquet ")
	require.NoError(t, err)
	assert.Equal(t, "parquet", c.Extension())
}
