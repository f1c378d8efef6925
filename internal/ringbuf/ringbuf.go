// Package ringbuf provides a lock-free, single-producer single-consumer (SPSC)
// ring buffer that hands rendered frames from the playback loop to the
// transport without blocking the tick.
package ringbuf

import (
	"sync/atomic"

	"hyperfireworks/internal/model"
)

// cacheLine is the typical x86-64 cache line size used for padding.
const cacheLine = 64

// Ring is a lock-free SPSC ring buffer of frames.
// Size must be a power of two for fast bitwise modulo.
type Ring struct {
	buf  []model.Frame
	mask uint64

	// Separate cache lines to prevent false sharing between producer and consumer.
	_pad0 [cacheLine]byte
	head  atomic.Uint64 // written by producer
	_pad1 [cacheLine]byte
	tail  atomic.Uint64 // written by consumer
	_pad2 [cacheLine]byte

	// Overflow counter (atomic, for metrics)
	overflow atomic.Uint64
}

// New creates a ring buffer. capacity is rounded up to the next power of two.
// Minimum capacity is 2.
func New(capacity int) *Ring {
	cap := nextPow2(capacity)
	if cap < 2 {
		cap = 2
	}
	return &Ring{
		buf:  make([]model.Frame, cap),
		mask: uint64(cap - 1),
	}
}

// Push appends a frame. Returns false if the buffer is full (the frame is
// NOT written in that case). Non-blocking.
func (r *Ring) Push(f model.Frame) bool {
	head := r.head.Load()
	tail := r.tail.Load()

	if head-tail >= uint64(len(r.buf)) {
		// Buffer full
		r.overflow.Add(1)
		return false
	}

	r.buf[head&r.mask] = f
	r.head.Store(head + 1)
	return true
}

// Pop retrieves the next frame. Returns false if the buffer is empty.
// Non-blocking.
func (r *Ring) Pop() (model.Frame, bool) {
	tail := r.tail.Load()
	head := r.head.Load()

	if tail >= head {
		return model.Frame{}, false
	}

	slot := tail & r.mask
	f := r.buf[slot]
	r.buf[slot] = model.Frame{} // release draw slices for GC
	r.tail.Store(tail + 1)
	return f, true
}

// DrainLatest pops everything queued and returns the newest frame, plus how
// many older frames were skipped. Fired notices of skipped frames are carried
// into the returned frame so none are lost. Consumer side only.
func (r *Ring) DrainLatest() (model.Frame, int, bool) {
	var (
		last    model.Frame
		fired   []model.Notice
		skipped int
		got     bool
	)
	for {
		f, ok := r.Pop()
		if !ok {
			break
		}
		if got {
			skipped++
		}
		fired = append(fired, f.Fired...)
		last, got = f, true
	}
	if skipped > 0 {
		last.Fired = fired
	}
	return last, skipped, got
}

// Len returns the current number of items in the buffer.
func (r *Ring) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Cap returns the buffer capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Overflow returns the total number of dropped pushes due to full buffer.
func (r *Ring) Overflow() uint64 {
	return r.overflow.Load()
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
