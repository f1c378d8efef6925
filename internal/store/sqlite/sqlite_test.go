package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"hyperfireworks/internal/model"
)

func TestWriteThenReadEvents(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.db")

	w, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	t0 := time.Date(2025, 10, 10, 21, 15, 0, 0, time.UTC)
	events := []model.Event{
		{Timestamp: t0, Type: model.EventLiquidation, Amount: 1500.25, Ticker: "BTC", User: "0xaaa"},
		{Timestamp: t0, Type: model.EventADL, Amount: 2_000_000, PnL: -12.5, Ticker: "ETH", User: "0xbbb", Direction: "Close Long"},
		{Timestamp: t0.Add(-time.Second), Type: model.EventLiquidation, Amount: 10, Ticker: "SOL", User: "0xccc"},
	}
	if err := w.WriteEvents(ctx, events); err != nil {
		t.Fatal(err)
	}
	// A second import replaces the first.
	if err := w.WriteEvents(ctx, events); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	raw, err := r.ReadEvents(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(raw))
	}

	// Ordered by timestamp; equal timestamps keep insertion order.
	wantTickers := []string{"SOL", "BTC", "ETH"}
	for i, rec := range raw {
		ev, err := rec.Validate()
		if err != nil {
			t.Fatalf("row %d does not validate: %v", i, err)
		}
		if ev.Ticker != wantTickers[i] {
			t.Errorf("row %d: ticker %s, want %s", i, ev.Ticker, wantTickers[i])
		}
	}

	adl, _ := raw[2].Validate()
	if adl.Amount != 2_000_000 || adl.PnL != -12.5 || adl.Direction != "Close Long" || !adl.Timestamp.Equal(t0) {
		t.Errorf("ADL round-trip: %+v", adl)
	}
	liq, _ := raw[1].Validate()
	if liq.Amount != 1500.25 {
		t.Errorf("amount precision: %v", liq.Amount)
	}
}

func TestWriteEvents_Empty(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "empty.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.WriteEvents(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if err := w.DB().Ping(); err != nil {
		t.Fatal(err)
	}
}
