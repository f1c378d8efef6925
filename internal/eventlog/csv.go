package eventlog

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"hyperfireworks/internal/model"
)

// CSVColumns are the fill-export columns read by ReadCSV.
var CSVColumns = []string{"block_time", "user", "coin", "notional", "closed_pnl", "direction"}

// ReadCSV reads a fills export (header row required) and tags every row with
// typ. Notional is stored as an absolute amount. Rows are returned raw so
// they go through the same validation as any other source.
func ReadCSV(r io.Reader, typ model.EventType) ([]model.RawEvent, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range []string{"block_time", "notional"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("csv missing column %q", name)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []model.RawEvent
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		ts, _ := json.Marshal(field(rec, "block_time"))
		raw := model.RawEvent{
			Timestamp: ts,
			Type:      string(typ),
			Amount:    json.Number(absNumber(field(rec, "notional"))),
			PnL:       json.Number(field(rec, "closed_pnl")),
			Ticker:    field(rec, "coin"),
			User:      field(rec, "user"),
			Direction: field(rec, "direction"),
		}
		out = append(out, raw)
	}
	return out, nil
}

// absNumber strips the sign from a numeric string. Unparseable input is
// returned unchanged and rejected later by validation.
func absNumber(s string) string {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return strconv.FormatFloat(math.Abs(f), 'f', -1, 64)
}
