package gateway

import (
	"sort"
	"sync"
)

// replayEntry is one sent envelope, keyed by its channel sequence.
type replayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer keeps the last N envelopes of a channel so a client that
// noticed a gap in channel_seq can fetch what it missed. Sequences are
// pushed in increasing order. Safe for concurrent use.
type ReplayBuffer struct {
	mu      sync.RWMutex
	entries []replayEntry
	limit   int
}

// NewReplayBuffer keeps up to limit envelopes (500 when limit <= 0).
func NewReplayBuffer(limit int) *ReplayBuffer {
	if limit <= 0 {
		limit = 500
	}
	return &ReplayBuffer{entries: make([]replayEntry, 0, limit), limit: limit}
}

// Push stores a copy of data under seq, evicting the oldest entry at the limit.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	e := replayEntry{Seq: seq, Data: append([]byte(nil), data...)}

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if len(rb.entries) == rb.limit {
		copy(rb.entries, rb.entries[1:])
		rb.entries[len(rb.entries)-1] = e
		return
	}
	rb.entries = append(rb.entries, e)
}

// Range returns the entries with fromSeq <= seq <= toSeq, oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	lo := sort.Search(len(rb.entries), func(i int) bool { return rb.entries[i].Seq >= fromSeq })
	hi := sort.Search(len(rb.entries), func(i int) bool { return rb.entries[i].Seq > toSeq })
	if lo >= hi {
		return nil
	}
	return append([]replayEntry(nil), rb.entries[lo:hi]...)
}

// Oldest returns the lowest retained sequence, or 0 when empty. A client
// asking for anything below it has lost messages for good.
func (rb *ReplayBuffer) Oldest() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if len(rb.entries) == 0 {
		return 0
	}
	return rb.entries[0].Seq
}

// Len returns the number of retained entries.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}
