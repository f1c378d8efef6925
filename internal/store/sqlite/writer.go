package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"hyperfireworks/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const dsnOptions = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"

// Writer stores a prepared event log in SQLite.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens (creating if needed) the database at path in WAL mode and
// ensures the schema exists.
func New(path string) (*Writer, error) {
	db, err := sql.Open("sqlite3", path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", path)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			seq        INTEGER PRIMARY KEY,
			ts_ms      INTEGER NOT NULL,
			type       TEXT    NOT NULL,
			amount     REAL    NOT NULL,
			pnl        REAL    NOT NULL DEFAULT 0,
			ticker     TEXT    NOT NULL DEFAULT '',
			user       TEXT    NOT NULL DEFAULT '',
			direction  TEXT    NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_events_ts ON events (ts_ms, seq);
	`)
	return err
}

// WriteEvents replaces the stored log with events in a single transaction.
// seq preserves the given order so equal timestamps read back stably.
func (w *Writer) WriteEvents(ctx context.Context, events []model.Event) error {
	start := time.Now()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM events`); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite clear events: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (seq, ts_ms, type, amount, pnl, ticker, user, direction)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for i, e := range events {
		_, err := stmt.ExecContext(ctx, i, e.Timestamp.UnixMilli(), string(e.Type), e.Amount, e.PnL, e.Ticker, e.User, e.Direction)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert event %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	log.Printf("[sqlite] committed %d events in %v", len(events), time.Since(start))
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
