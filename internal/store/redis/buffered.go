package redis

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"hyperfireworks/internal/model"
)

// Sink is what BufferedPublisher writes through; *Publisher implements it.
type Sink interface {
	model.NoticePublisher
	model.StatsPublisher
}

// BufferedPublisher wraps a Sink with a circuit breaker. While the circuit
// is open, notices are buffered locally (oldest dropped past maxBuf) and
// only the newest state is kept; both are flushed when the circuit closes.
type BufferedPublisher struct {
	sink Sink
	cb   *CircuitBreaker
	ctx  context.Context

	mu           sync.Mutex
	buffer       []model.Notice
	pendingState *model.State
	maxBuf       int

	// Callbacks
	OnBuffer func()          // called when a write is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered writes
}

// NewBufferedPublisher creates a BufferedPublisher. ctx bounds background flushes.
func NewBufferedPublisher(ctx context.Context, sink Sink, cb *CircuitBreaker, maxBufferSize int) *BufferedPublisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bp := &BufferedPublisher{
		sink:   sink,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]model.Notice, 0, 256),
		maxBuf: maxBufferSize,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go bp.Flush()
		}
	}
	return bp
}

// PublishNotice writes n through the circuit breaker, buffering it if the
// circuit is open. A buffered notice is not an error.
func (bp *BufferedPublisher) PublishNotice(ctx context.Context, n model.Notice) error {
	err := bp.cb.Execute(func() error { return bp.sink.PublishNotice(ctx, n) })
	if errors.Is(err, ErrCircuitOpen) {
		bp.mu.Lock()
		if len(bp.buffer) >= bp.maxBuf {
			bp.buffer = bp.buffer[1:]
		}
		bp.buffer = append(bp.buffer, n)
		bp.mu.Unlock()
		if bp.OnBuffer != nil {
			bp.OnBuffer()
		}
		return nil
	}
	return err
}

// PublishStats writes st through the circuit breaker; while open, only the
// newest snapshot is retained.
func (bp *BufferedPublisher) PublishStats(ctx context.Context, st model.State) error {
	err := bp.cb.Execute(func() error { return bp.sink.PublishStats(ctx, st) })
	if errors.Is(err, ErrCircuitOpen) {
		bp.mu.Lock()
		bp.pendingState = &st
		bp.mu.Unlock()
		return nil
	}
	return err
}

// Flush replays buffered writes directly to the sink.
func (bp *BufferedPublisher) Flush() {
	bp.mu.Lock()
	toFlush := bp.buffer
	st := bp.pendingState
	bp.buffer = make([]model.Notice, 0, 256)
	bp.pendingState = nil
	bp.mu.Unlock()

	if len(toFlush) == 0 && st == nil {
		return
	}

	flushed := 0
	for _, n := range toFlush {
		if err := bp.sink.PublishNotice(bp.ctx, n); err != nil {
			log.Printf("[redis] flush notice #%d: %v", n.Index, err)
			continue
		}
		flushed++
	}
	if st != nil {
		if err := bp.sink.PublishStats(bp.ctx, *st); err != nil {
			log.Printf("[redis] flush state: %v", err)
		}
	}

	log.Printf("[redis] flushed %d buffered notices", flushed)
	if bp.OnFlush != nil {
		bp.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered notices waiting to be flushed.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.buffer)
}

// Run publishes notices from ch until ctx is cancelled or ch is closed.
func (bp *BufferedPublisher) Run(ctx context.Context, ch <-chan model.Notice) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			if err := bp.PublishNotice(ctx, n); err != nil {
				log.Printf("[redis] publish notice #%d: %v", n.Index, err)
			}
		}
	}
}

// RunStats publishes latest() every interval until ctx is cancelled.
func (bp *BufferedPublisher) RunStats(ctx context.Context, interval time.Duration, latest func() model.State) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := bp.PublishStats(ctx, latest()); err != nil {
				log.Printf("[redis] publish state: %v", err)
			}
		}
	}
}
