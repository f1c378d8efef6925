package notification

import (
	"context"
	"log"
	"sync"
	"time"

	"hyperfireworks/internal/model"
)

// Sink is a named Notifier.
type Sink struct {
	Name     string
	Notifier Notifier
}

// Alerter turns major-event notices into alerts and sends each one to every
// sink. Minor events are ignored unless MinAmount is set and exceeded.
type Alerter struct {
	sinks     []Sink
	timeout   time.Duration
	MinAmount float64

	// OnResult is called once per sink delivery with result "ok" or "error".
	OnResult func(sink, result string)
}

// NewAlerter creates an Alerter over sinks.
func NewAlerter(sinks ...Sink) *Alerter {
	return &Alerter{sinks: sinks, timeout: 10 * time.Second}
}

// Wants reports whether n should raise an alert.
func (a *Alerter) Wants(n model.Notice) bool {
	if n.Major || n.Climax {
		return true
	}
	return a.MinAmount > 0 && n.Event.Amount >= a.MinAmount
}

// Notify sends the alert for n to all sinks concurrently and waits for them.
func (a *Alerter) Notify(ctx context.Context, n model.Notice) {
	alert := AlertFromNotice(n)
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, s := range a.sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			result := "ok"
			if err := s.Notifier.Send(ctx, alert); err != nil {
				result = "error"
				log.Printf("[alerts] %s failed for alert %s: %v", s.Name, alert.ID, err)
			}
			if a.OnResult != nil {
				a.OnResult(s.Name, result)
			}
		}(s)
	}
	wg.Wait()
}

// Run consumes notices until ctx is cancelled or ch is closed.
func (a *Alerter) Run(ctx context.Context, ch <-chan model.Notice) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			if a.Wants(n) {
				a.Notify(ctx, n)
			}
		}
	}
}
