package sqlite

import (
	"context"
	"database/sql"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"charting-engine/internal/indicator"
	"charting-engine/internal/model"
)

// Reader provides read-only access to stored bars and snapshots.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnOptions)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite open reader")
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	slog.Info("[sqlite-reader] opened", "path", dbPath)
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// ReadBars returns the bars for symbol with ts > afterTS, ascending, so they
// can be fed straight into a computation.
func (r *Reader) ReadBars(ctx context.Context, symbol string, afterTS int64) (model.Series, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, afterTS)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite query bars")
	}
	return scanBars(rows)
}

// ReadTail returns the latest n bars for symbol in ascending order. n <= 0
// returns every bar.
func (r *Reader) ReadTail(ctx context.Context, symbol string, n int) (model.Series, error) {
	if n <= 0 {
		return r.ReadBars(ctx, symbol, -1<<63)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume FROM (
			SELECT ts, open, high, low, close, volume
			FROM bars
			WHERE symbol = ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, symbol, n)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite query bar tail")
	}
	return scanBars(rows)
}

func scanBars(rows *sql.Rows) (model.Series, error) {
	defer rows.Close()
	var bars model.Series
	for rows.Next() {
		var b model.Bar
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, errors.Wrap(err, "sqlite scan bars")
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Symbols lists every symbol with stored bars.
func (r *Reader) Symbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM bars ORDER BY symbol`)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite query symbols")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReadSnapshot returns the stored result for (symbol, name, params), or nil.
func (r *Reader) ReadSnapshot(ctx context.Context, symbol, name string, params indicator.Params) (*indicator.Snapshot, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `
		SELECT data FROM result_snapshots WHERE symbol = ? AND name = ? AND params = ?
	`, symbol, name, params.String()).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlite read snapshot")
	}
	return indicator.UnmarshalSnapshot([]byte(data))
}

// Close closes the database connection.
func (r *Reader) Close() error {
	return r.db.Close()
}
