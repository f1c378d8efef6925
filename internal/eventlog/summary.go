package eventlog

import (
	"time"

	"hyperfireworks/internal/model"
)

// Summary mirrors the summary.json written next to the prepared event log.
type Summary struct {
	TotalEvents            int       `json:"total_events"`
	Liquidations           int       `json:"liquidations"`
	ADLs                   int       `json:"adls"`
	TotalLiquidationAmount float64   `json:"total_liquidation_amount"`
	TotalADLAmount         float64   `json:"total_adl_amount"`
	StartTime              time.Time `json:"start_time"`
	EndTime                time.Time `json:"end_time"`
}

// Summarize computes whole-log totals.
func Summarize(events []model.Event) Summary {
	s := Summary{TotalEvents: len(events)}
	for i := range events {
		switch events[i].Type {
		case model.EventLiquidation:
			s.Liquidations++
			s.TotalLiquidationAmount += events[i].Amount
		case model.EventADL:
			s.ADLs++
			s.TotalADLAmount += events[i].Amount
		}
	}
	if len(events) > 0 {
		s.StartTime = events[0].Timestamp
		s.EndTime = events[len(events)-1].Timestamp
	}
	return s
}

// Summary computes totals for this log.
func (l *Log) Summary() Summary {
	return Summarize(l.events)
}
