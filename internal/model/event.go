package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// EventType distinguishes the two kinds of forced-close records in the log.
type EventType string

const (
	EventLiquidation EventType = "liquidation"
	EventADL         EventType = "adl"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	return t == EventLiquidation || t == EventADL
}

// Label returns the short display label used in the event-info overlay.
func (t EventType) Label() string {
	if t == EventADL {
		return "ADL"
	}
	return "LIQUIDATED"
}

// Event is a single liquidation or auto-deleveraging record.
// Amount is the absolute notional in USD; PnL is the signed closed PnL.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Amount    float64   `json:"amount"`
	PnL       float64   `json:"pnl"`
	Ticker    string    `json:"ticker"`
	User      string    `json:"user"`
	Direction string    `json:"direction,omitempty"`
}

// Favorable reports whether an ADL closed with non-negative PnL.
func (e *Event) Favorable() bool {
	return e.PnL >= 0
}

// JSON returns the JSON-encoded event (ignoring errors for hot-path usage).
func (e *Event) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

var (
	ErrMissingTimestamp = errors.New("missing timestamp")
	ErrUnknownType      = errors.New("unknown event type")
	ErrInvalidAmount    = errors.New("invalid amount")
)

// RawEvent mirrors the loosely typed JSON record produced by the data
// preparation step. Timestamps arrive either as strings or epoch millis.
type RawEvent struct {
	Timestamp json.RawMessage `json:"timestamp"`
	Type      string          `json:"type"`
	Amount    json.Number     `json:"amount"`
	PnL       json.Number     `json:"pnl"`
	Ticker    string          `json:"ticker"`
	User      string          `json:"user"`
	Direction string          `json:"direction"`
}

// Validate converts a raw record into an Event. A record with no usable
// timestamp, an unknown type, or a negative / non-finite amount is rejected.
func (r *RawEvent) Validate() (Event, error) {
	ts, err := parseTimestamp(r.Timestamp)
	if err != nil {
		return Event{}, err
	}
	typ := EventType(strings.ToLower(strings.TrimSpace(r.Type)))
	if !typ.Valid() {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownType, r.Type)
	}
	amount, err := parseNumber(r.Amount)
	if err != nil || amount < 0 {
		return Event{}, fmt.Errorf("%w: %q", ErrInvalidAmount, r.Amount.String())
	}
	pnl, err := parseNumber(r.PnL)
	if err != nil {
		pnl = 0
	}
	return Event{
		Timestamp: ts,
		Type:      typ,
		Amount:    amount,
		PnL:       pnl,
		Ticker:    r.Ticker,
		User:      r.User,
		Direction: r.Direction,
	}, nil
}

// timestampLayouts covers the block_time formats seen in exported fills.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses a block time string in any of the supported layouts.
// Layouts without a zone are interpreted as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrMissingTimestamp
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: unparseable %q", ErrMissingTimestamp, s)
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, ErrMissingTimestamp
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseTimestamp(s)
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 && !math.IsInf(ms, 0) {
		return time.UnixMilli(int64(ms)).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: unparseable %s", ErrMissingTimestamp, string(raw))
}

func parseNumber(n json.Number) (float64, error) {
	if n == "" {
		return 0, errors.New("empty number")
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("non-finite number")
	}
	return f, nil
}
