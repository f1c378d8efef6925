package playback

import (
	"time"

	"hyperfireworks/internal/eventlog"
	"hyperfireworks/internal/model"
)

// DefaultMaxEventsPerTick bounds per-tick dispatch work.
const DefaultMaxEventsPerTick = 50

// TickResult reports what one dispatch pass did.
type TickResult struct {
	// Fired holds the indices dispatched this tick, in log order. The slice
	// is reused by the next call to Tick.
	Fired []int
	// Deferred counts events already due that were pushed to a later tick
	// by the per-tick cap.
	Deferred int
}

// Dispatcher walks the log cursor forward as simulated time advances,
// dispatching each index at most once per epoch.
type Dispatcher struct {
	log        *eventlog.Log
	maxPerTick int

	next  int
	fired bitset
	epoch int
	stats Aggregator
	buf   []int
}

// NewDispatcher creates a dispatcher over log. maxPerTick <= 0 selects
// DefaultMaxEventsPerTick.
func NewDispatcher(log *eventlog.Log, maxPerTick int) *Dispatcher {
	if maxPerTick <= 0 {
		maxPerTick = DefaultMaxEventsPerTick
	}
	return &Dispatcher{
		log:        log,
		maxPerTick: maxPerTick,
		fired:      newBitset(log.Len()),
	}
}

// Tick dispatches every event with offset <= now, up to the per-tick cap.
// Statistics are updated for each newly fired index; an index already in the
// fired set is skipped without counting.
func (d *Dispatcher) Tick(now time.Duration) TickResult {
	d.buf = d.buf[:0]
	n := d.log.Len()
	for d.next < n && d.log.Offset(d.next) <= now {
		if len(d.buf) >= d.maxPerTick {
			break
		}
		i := d.next
		d.next++
		if d.fired.has(i) {
			continue
		}
		d.fired.set(i)
		d.stats.ApplyOne(d.log.At(i))
		d.buf = append(d.buf, i)
	}
	res := TickResult{Fired: d.buf}
	if d.next < n && d.log.Offset(d.next) <= now {
		res.Deferred = d.log.SearchOffset(now+1) - d.next
	}
	return res
}

// Rebuild positions the cursor for a seek to target: every index strictly
// before target is marked fired and statistics are recomputed from that
// prefix. Nothing is reported as newly fired.
func (d *Dispatcher) Rebuild(target time.Duration) int {
	idx := d.log.SearchOffset(target)
	d.fired.clear()
	for i := 0; i < idx; i++ {
		d.fired.set(i)
	}
	d.next = idx
	d.stats.RecomputeFromPrefix(d.log.Events(), idx)
	return idx
}

// Reset starts a new epoch: cursor at 0, nothing fired, zero statistics.
func (d *Dispatcher) Reset() {
	d.next = 0
	d.fired.clear()
	d.stats.Reset()
	d.epoch++
}

// Exhausted reports whether every index has been passed.
func (d *Dispatcher) Exhausted() bool { return d.next >= d.log.Len() }

// Next is the index of the next event to dispatch.
func (d *Dispatcher) Next() int { return d.next }

// Epoch counts resets since construction.
func (d *Dispatcher) Epoch() int { return d.epoch }

// Fired reports whether index i has been dispatched in this epoch.
func (d *Dispatcher) Fired(i int) bool { return d.fired.has(i) }

// Stats returns the current statistics snapshot.
func (d *Dispatcher) Stats() model.Stats { return d.stats.Snapshot() }

type bitset []uint64

func newBitset(n int) bitset { return make(bitset, (n+63)/64) }

func (b bitset) has(i int) bool {
	if i < 0 || i/64 >= len(b) {
		return false
	}
	return b[i/64]&(1<<(uint(i)%64)) != 0
}

func (b bitset) set(i int) { b[i/64] |= 1 << (uint(i) % 64) }

func (b bitset) clear() {
	for i := range b {
		b[i] = 0
	}
}
