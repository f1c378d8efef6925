// Package bus fans fired-event notices out to independent consumers
// (WebSocket hub, Redis publisher, alerting) without letting a slow consumer
// stall playback.
package bus

import (
	"context"
	"log"
	"sync"

	"hyperfireworks/internal/model"
)

// FanOut broadcasts notices from a single input channel to N output channels.
// If an output channel is full, the notice is dropped for that consumer.
type FanOut struct {
	mu      sync.RWMutex
	outputs []chan model.Notice
	names   []string
	bufSize int

	// OnDrop is called when a notice is dropped for a subscriber.
	OnDrop func(subscriber string)
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	return &FanOut{
		bufSize: outputBufferSize,
	}
}

// Subscribe creates and returns a new named output channel.
func (f *FanOut) Subscribe(name string) <-chan model.Notice {
	ch := make(chan model.Notice, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.names = append(f.names, name)
	f.mu.Unlock()
	return ch
}

// Run reads from the input channel and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed; outputs are closed on return.
func (f *FanOut) Run(ctx context.Context, input <-chan model.Notice) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for i, ch := range f.outputs {
				select {
				case ch <- n:
				default:
					if f.OnDrop != nil {
						f.OnDrop(f.names[i])
					} else {
						log.Printf("[bus] subscriber %s full, dropping notice #%d", f.names[i], n.Index)
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat is the (length, capacity) of one subscriber channel.
type ChannelStat struct {
	Name string
	Len  int
	Cap  int
}

// ChannelStats reports saturation per subscriber.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Name: f.names[i], Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
