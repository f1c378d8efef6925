// cmd/prepare merges the liquidation and ADL fill exports into the event log
// the player loads, plus a summary file and an optional SQLite copy.
//
// Usage:
//
//	go run ./cmd/prepare --liq=data/liquidations.csv --adl=data/adl_fills.csv --out=public
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"hyperfireworks/config"
	"hyperfireworks/internal/eventlog"
	"hyperfireworks/internal/logger"
	"hyperfireworks/internal/model"
	sqlitestore "hyperfireworks/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	cfg := config.Load()

	liqPath := flag.String("liq", "data/liquidations.csv", "Liquidation fills CSV")
	adlPath := flag.String("adl", "data/adl_fills.csv", "ADL fills CSV")
	outDir := flag.String("out", "public", "Output directory for events.json and summary.json")
	dbPath := flag.String("db", cfg.SQLitePath, "Also write the log to this SQLite database (empty to skip)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: prepare [flags]\n\nCSV columns: %s\n\n", strings.Join(eventlog.CSVColumns, ","))
		flag.PrintDefaults()
	}
	flag.Parse()

	slogger := logger.Init("prepare", logger.ParseLevel(cfg.LogLevel))
	ctx := context.Background()

	liq, err := readCSV(*liqPath, model.EventLiquidation)
	if err != nil {
		log.Fatalf("[prepare] %v", err)
	}
	adl, err := readCSV(*adlPath, model.EventADL)
	if err != nil {
		log.Fatalf("[prepare] %v", err)
	}
	log.Printf("[prepare] loaded %d liquidations and %d ADL fills", len(liq), len(adl))

	l := eventlog.New(append(liq, adl...), slogger)
	if l.Empty() {
		log.Fatal("[prepare] no valid events")
	}
	summary := l.Summary()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("[prepare] %v", err)
	}
	eventsOut := filepath.Join(*outDir, "events.json")
	if err := writeJSON(eventsOut, l.Events(), false); err != nil {
		log.Fatalf("[prepare] %v", err)
	}
	if err := writeJSON(filepath.Join(*outDir, "summary.json"), summary, true); err != nil {
		log.Fatalf("[prepare] %v", err)
	}
	log.Printf("[prepare] saved %s events to %s", model.FormatNumber(float64(l.Len())), eventsOut)

	if *dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
			log.Fatalf("[prepare] %v", err)
		}
		w, err := sqlitestore.New(*dbPath)
		if err != nil {
			log.Fatalf("[prepare] %v", err)
		}
		if err := w.WriteEvents(ctx, l.Events()); err != nil {
			w.Close()
			log.Fatalf("[prepare] %v", err)
		}
		w.Close()
		log.Printf("[prepare] wrote %d events to %s", l.Len(), *dbPath)
	}

	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  Time range:    %s to %s\n", summary.StartTime.Format("2006-01-02 15:04:05.000"), summary.EndTime.Format("2006-01-02 15:04:05.000"))
	fmt.Printf("  Liquidations:  %s (%s)\n", model.FormatNumber(float64(summary.Liquidations)), model.FormatMoney(summary.TotalLiquidationAmount))
	fmt.Printf("  ADL:           %s (%s)\n", model.FormatNumber(float64(summary.ADLs)), model.FormatMoney(summary.TotalADLAmount))
	if l.Skipped() > 0 {
		fmt.Printf("  Skipped:       %d malformed rows\n", l.Skipped())
	}
}

func readCSV(path string, typ model.EventType) ([]model.RawEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	raw, err := eventlog.ReadCSV(f, typ)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return raw, nil
}

func writeJSON(path string, v interface{}, indent bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	enc := json.NewEncoder(f)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
