package barsource

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"charting-engine/internal/model"
)

var csvHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// CSV reads "timestamp,open,high,low,close,volume" rows. The timestamp is
// unix milliseconds or RFC 3339; a leading header row is skipped.
type CSV struct{}

func (CSV) Extension() string { return "csv" }

func (CSV) Load(path string) (model.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses CSV bars from r.
func ReadCSV(r io.Reader) (model.Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)
	cr.TrimLeadingSpace = true

	var bars model.Series
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return bars, nil
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && strings.EqualFold(rec[0], csvHeader[0]) {
			continue
		}
		b, err := parseRow(rec)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		bars = append(bars, b)
	}
}

func parseRow(rec []string) (model.Bar, error) {
	var b model.Bar
	ts, err := parseTimestamp(rec[0])
	if err != nil {
		return b, err
	}
	b.Timestamp = ts
	for i, dst := range []*float64{&b.Open, &b.High, &b.Low, &b.Close, &b.Volume} {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
		if err != nil {
			return b, errors.Wrapf(err, "column %s", csvHeader[i+1])
		}
		*dst = v
	}
	return b, nil
}

func parseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, errors.Errorf("timestamp %q is neither unix ms nor RFC 3339", s)
	}
	return t.UnixMilli(), nil
}

func (CSV) Save(path string, bars model.Series) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := WriteCSV(f, bars); err != nil {
		return err
	}
	return f.Close()
}

// WriteCSV writes bars with a header row.
func WriteCSV(w io.Writer, bars model.Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	format := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, b := range bars {
		row := []string{
			strconv.FormatInt(b.Timestamp, 10),
			format(b.Open), format(b.High), format(b.Low), format(b.Close), format(b.Volume),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
