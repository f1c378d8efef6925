package playback

import "hyperfireworks/internal/model"

// Aggregator keeps running totals over dispatched events.
type Aggregator struct {
	stats model.Stats
}

// ApplyOne folds a single event into the running totals.
func (a *Aggregator) ApplyOne(ev model.Event) {
	a.stats.EventsFired++
	a.stats.TotalVolume += ev.Amount
	switch ev.Type {
	case model.EventLiquidation:
		a.stats.LiquidationCount++
		a.stats.LiquidationVolume += ev.Amount
	case model.EventADL:
		a.stats.ADLCount++
		a.stats.ADLVolume += ev.Amount
	}
}

// RecomputeFromPrefix replaces the totals with a fold over events[:idx].
func (a *Aggregator) RecomputeFromPrefix(events []model.Event, idx int) {
	if idx > len(events) {
		idx = len(events)
	}
	a.stats = model.Stats{}
	for i := 0; i < idx; i++ {
		a.ApplyOne(events[i])
	}
}

// Reset zeroes every total.
func (a *Aggregator) Reset() {
	a.stats = model.Stats{}
}

// Snapshot returns a copy of the current totals.
func (a *Aggregator) Snapshot() model.Stats {
	return a.stats
}

// Fold computes totals over events from scratch.
func Fold(events []model.Event) model.Stats {
	var a Aggregator
	a.RecomputeFromPrefix(events, len(events))
	return a.stats
}
