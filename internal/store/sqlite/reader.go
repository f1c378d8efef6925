package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"hyperfireworks/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader is an EventSource backed by a prepared SQLite database.
type Reader struct {
	db *sql.DB
}

// NewReader opens path for reading.
func NewReader(path string) (*Reader, error) {
	db, err := sql.Open("sqlite3", path+dsnOptions+"&mode=ro")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", path)
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// ReadEvents returns every stored event ordered by timestamp then insertion
// order. Rows come back as raw records so they go through the same load-time
// validation as JSON input.
func (r *Reader) ReadEvents(ctx context.Context) ([]model.RawEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts_ms, type, amount, pnl, ticker, user, direction
		FROM events
		ORDER BY ts_ms ASC, seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query events: %w", err)
	}
	defer rows.Close()

	var out []model.RawEvent
	for rows.Next() {
		var (
			tsMs        int64
			amount, pnl float64
			raw         model.RawEvent
		)
		if err := rows.Scan(&tsMs, &raw.Type, &amount, &pnl, &raw.Ticker, &raw.User, &raw.Direction); err != nil {
			return nil, fmt.Errorf("sqlite scan events: %w", err)
		}
		raw.Timestamp = json.RawMessage(strconv.FormatInt(tsMs, 10))
		raw.Amount = json.Number(strconv.FormatFloat(amount, 'f', -1, 64))
		raw.PnL = json.Number(strconv.FormatFloat(pnl, 'f', -1, 64))
		out = append(out, raw)
	}
	return out, rows.Err()
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}
