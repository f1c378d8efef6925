// Package eventlog holds the immutable, time-ordered liquidation / ADL log
// that playback is driven from. Records are validated once at load time;
// malformed entries are dropped with a warning and never reach dispatch.
package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"hyperfireworks/internal/model"
)

// Majors identifies the largest events of each type. -1 means none.
type Majors struct {
	Liquidation int `json:"liquidation"`
	ADL         int `json:"adl"`
	Climax      int `json:"climax"`
}

// Log is an immutable ordered sequence of events. Safe for concurrent reads.
type Log struct {
	events  []model.Event
	skipped int
	majors  Majors
}

// New validates raw records and builds a Log. Invalid records are skipped
// and logged; out-of-order input is stable-sorted by timestamp so equal
// timestamps keep their input order.
func New(raw []model.RawEvent, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	events := make([]model.Event, 0, len(raw))
	skipped := 0
	for i := range raw {
		ev, err := raw[i].Validate()
		if err != nil {
			skipped++
			logger.Warn("skipping malformed event", slog.Int("index", i), slog.String("error", err.Error()))
			continue
		}
		events = append(events, ev)
	}
	if !sort.SliceIsSorted(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) }) {
		logger.Warn("event log not ordered by timestamp, sorting", slog.Int("events", len(events)))
		sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
	}
	l := FromEvents(events)
	l.skipped = skipped
	return l
}

// FromEvents wraps already-validated events, which must be ordered.
func FromEvents(events []model.Event) *Log {
	l := &Log{events: events}
	l.majors = findMajors(events)
	return l
}

// Load reads every record from src and builds the log. A source failure is
// returned wrapped; there is no partial log.
func Load(ctx context.Context, src model.EventSource, logger *slog.Logger) (*Log, error) {
	raw, err := src.ReadEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	l := New(raw, logger)
	if logger != nil {
		logger.Info("event log loaded",
			slog.Int("events", l.Len()),
			slog.Int("skipped", l.skipped),
			slog.Int("climax_index", l.majors.Climax),
		)
	}
	return l, nil
}

// findMajors scans once tracking the running maximum per type.
// Strictly-greater comparison keeps the earliest index on ties.
func findMajors(events []model.Event) Majors {
	m := Majors{Liquidation: -1, ADL: -1, Climax: -1}
	for i := range events {
		switch events[i].Type {
		case model.EventLiquidation:
			if m.Liquidation < 0 || events[i].Amount > events[m.Liquidation].Amount {
				m.Liquidation = i
			}
		case model.EventADL:
			if m.ADL < 0 || events[i].Amount > events[m.ADL].Amount {
				m.ADL = i
			}
		}
	}
	switch {
	case m.Liquidation < 0:
		m.Climax = m.ADL
	case m.ADL < 0:
		m.Climax = m.Liquidation
	case events[m.ADL].Amount > events[m.Liquidation].Amount:
		m.Climax = m.ADL
	case events[m.ADL].Amount == events[m.Liquidation].Amount && m.ADL < m.Liquidation:
		m.Climax = m.ADL
	default:
		m.Climax = m.Liquidation
	}
	return m
}

// Len returns the number of valid events.
func (l *Log) Len() int { return len(l.events) }

// Empty reports whether the log has no events.
func (l *Log) Empty() bool { return len(l.events) == 0 }

// Skipped returns how many raw records were rejected at load.
func (l *Log) Skipped() int { return l.skipped }

// At returns the event at index i.
func (l *Log) At(i int) model.Event { return l.events[i] }

// Events exposes the backing slice. Callers must not modify it.
func (l *Log) Events() []model.Event { return l.events }

// Majors returns the largest-event indices.
func (l *Log) Majors() Majors { return l.majors }

// IsMajor reports whether index i is the largest liquidation or largest ADL.
func (l *Log) IsMajor(i int) bool {
	return i >= 0 && (i == l.majors.Liquidation || i == l.majors.ADL)
}

// IsClimax reports whether index i is the single largest event.
func (l *Log) IsClimax(i int) bool {
	return i >= 0 && i == l.majors.Climax
}

// First returns the earliest timestamp, or the zero time for an empty log.
func (l *Log) First() time.Time {
	if len(l.events) == 0 {
		return time.Time{}
	}
	return l.events[0].Timestamp
}

// Last returns the latest timestamp, or the zero time for an empty log.
func (l *Log) Last() time.Time {
	if len(l.events) == 0 {
		return time.Time{}
	}
	return l.events[len(l.events)-1].Timestamp
}

// Span is the duration between the first and last event.
func (l *Log) Span() time.Duration {
	return l.Last().Sub(l.First())
}

// Offset returns how far event i lies from the start of the log.
func (l *Log) Offset(i int) time.Duration {
	return l.events[i].Timestamp.Sub(l.First())
}

// SearchOffset returns the first index whose offset from the log start is
// >= off, or Len() if none.
func (l *Log) SearchOffset(off time.Duration) int {
	first := l.First()
	return sort.Search(len(l.events), func(i int) bool {
		return l.events[i].Timestamp.Sub(first) >= off
	})
}
