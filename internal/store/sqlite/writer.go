package sqlite

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"charting-engine/internal/indicator"
	"charting-engine/internal/model"
)

const dsnOptions = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/bars.db"
}

// Writer is the single writer for bar series and result snapshots.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+dsnOptions)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite open")
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqlite schema")
	}

	slog.Info("[sqlite] opened database", "path", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume REAL    NOT NULL,
			PRIMARY KEY (symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS result_snapshots (
			symbol      TEXT    NOT NULL,
			name        TEXT    NOT NULL,
			params      TEXT    NOT NULL,
			fingerprint TEXT    NOT NULL,
			data        TEXT    NOT NULL,
			created_at  INTEGER NOT NULL,
			PRIMARY KEY (symbol, name, params)
		);
	`)
	return err
}

// InsertBars upserts bars for symbol in one transaction. A bar with an
// existing timestamp replaces the stored one (a corrected close).
func (w *Writer) InsertBars(ctx context.Context, symbol string, bars model.Series) error {
	if len(bars) == 0 {
		return nil
	}
	start := time.Now()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "prepare")
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "insert bar %s@%d", symbol, b.Timestamp)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	slog.Debug("[sqlite] committed bars", "symbol", symbol, "count", len(bars), "took", time.Since(start))
	return nil
}

// GetLastTimestamp returns the latest bar timestamp for symbol, 0 if none.
func (w *Writer) GetLastTimestamp(ctx context.Context, symbol string) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM bars WHERE symbol = ?`, symbol,
	).Scan(&ts)
	if err != nil {
		return 0, errors.Wrap(err, "last timestamp")
	}
	return ts.Int64, nil
}

// SaveSnapshot stores the latest computed result for (symbol, name, params).
func (w *Writer) SaveSnapshot(ctx context.Context, symbol string, snap *indicator.Snapshot) error {
	data, err := indicator.MarshalSnapshot(snap)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	_, err = w.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO result_snapshots (symbol, name, params, fingerprint, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, symbol, snap.Name, snap.Params.String(), snap.Fingerprint, string(data), time.Now().Unix())
	if err != nil {
		return errors.Wrap(err, "save snapshot")
	}
	return nil
}

// Close closes the database connection.
func (w *Writer) Close() error {
	return w.db.Close()
}
