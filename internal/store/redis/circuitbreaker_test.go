package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hyperfireworks/internal/model"
)

var errFail = errors.New("fail")

// manualBreaker returns a breaker whose clock only moves when advance is called.
func manualBreaker(maxFailures int, reset time.Duration) (*CircuitBreaker, func(time.Duration)) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(maxFailures, reset)
	cb.now = func() time.Time { return now }
	return cb, func(d time.Duration) { now = now.Add(d) }
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb, _ := manualBreaker(3, time.Second)
	if cb.CurrentState() != StateClosed {
		t.Fatalf("expected Closed, got %v", cb.CurrentState())
	}

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errFail }); err != errFail {
			t.Fatalf("expected errFail, got %v", err)
		}
	}
	if cb.CurrentState() != StateOpen || cb.Trips() != 1 {
		t.Errorf("expected Open after 3 failures, got %v (trips %d)", cb.CurrentState(), cb.Trips())
	}

	called := false
	if err := cb.Execute(func() error { called = true; return nil }); err != ErrCircuitOpen {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("open breaker must not call through")
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	tests := []struct {
		name  string
		probe error
		want  State
	}{
		{"success closes", nil, StateClosed},
		{"failure reopens", errFail, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, advance := manualBreaker(2, time.Second)
			cb.Execute(func() error { return errFail })
			cb.Execute(func() error { return errFail })

			advance(500 * time.Millisecond)
			if err := cb.Execute(func() error { return nil }); err != ErrCircuitOpen {
				t.Fatalf("before timeout: expected ErrCircuitOpen, got %v", err)
			}

			advance(time.Second)
			cb.Execute(func() error { return tt.probe })
			if cb.CurrentState() != tt.want {
				t.Errorf("got %v, want %v", cb.CurrentState(), tt.want)
			}
		})
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := manualBreaker(3, time.Second)
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })

	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed (counter should have reset), got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_OnStateChangeCallback(t *testing.T) {
	var transitions []State
	cb, advance := manualBreaker(1, time.Second)
	cb.OnStateChange = func(from, to State) {
		transitions = append(transitions, to)
	}

	cb.Execute(func() error { return errFail })
	advance(2 * time.Second)
	cb.Execute(func() error { return nil })

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("expected %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: got %v, want %v", i, transitions[i], want[i])
		}
	}
}

// fakeSink records writes and fails while down is set.
type fakeSink struct {
	mu      sync.Mutex
	down    bool
	notices []int
	states  []float64
}

func (f *fakeSink) PublishNotice(_ context.Context, n model.Notice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errFail
	}
	f.notices = append(f.notices, n.Index)
	return nil
}

func (f *fakeSink) PublishStats(_ context.Context, st model.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errFail
	}
	f.states = append(f.states, st.Progress)
	return nil
}

func TestBufferedPublisher_BuffersWhileOpenAndFlushes(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{down: true}
	cb, advance := manualBreaker(1, time.Second)
	bp := NewBufferedPublisher(ctx, sink, cb, 3)
	buffered := 0
	bp.OnBuffer = func() { buffered++ }

	if err := bp.PublishNotice(ctx, model.Notice{Index: 0}); err != errFail {
		t.Fatalf("first failure should surface, got %v", err)
	}
	for i := 1; i <= 4; i++ {
		if err := bp.PublishNotice(ctx, model.Notice{Index: i}); err != nil {
			t.Fatalf("open circuit should buffer, got %v", err)
		}
	}
	bp.PublishStats(ctx, model.State{Progress: 0.1})
	bp.PublishStats(ctx, model.State{Progress: 0.2})

	if bp.PendingCount() != 3 || buffered != 4 {
		t.Fatalf("pending=%d buffered=%d", bp.PendingCount(), buffered)
	}

	sink.mu.Lock()
	sink.down = false
	sink.mu.Unlock()
	advance(2 * time.Second)

	flushed := make(chan int, 1)
	bp.OnFlush = func(n int) { flushed <- n }
	if err := bp.PublishNotice(ctx, model.Notice{Index: 5}); err != nil {
		t.Fatal(err)
	}

	select {
	case n := <-flushed:
		if n != 3 {
			t.Errorf("flushed %d, want 3", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("flush never ran")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	// Oldest buffered notice (1) was dropped at the cap; 5 went straight through.
	got := map[int]bool{}
	for _, i := range sink.notices {
		got[i] = true
	}
	for _, i := range []int{2, 3, 4, 5} {
		if !got[i] {
			t.Errorf("notice %d missing from sink: %v", i, sink.notices)
		}
	}
	if got[1] {
		t.Error("notice 1 should have been dropped")
	}
	if len(sink.states) != 1 || sink.states[0] != 0.2 {
		t.Errorf("only the newest state should be flushed: %v", sink.states)
	}
}
