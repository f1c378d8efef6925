package ringbuf

import (
	"sync"
	"testing"
	"time"

	"hyperfireworks/internal/model"
)

func TestRing_BasicPushPop(t *testing.T) {
	r := New(4) // rounds to 4

	if !r.Push(model.Frame{Seq: 1}) {
		t.Fatal("push 1 should succeed")
	}
	if !r.Push(model.Frame{Seq: 2}) {
		t.Fatal("push 2 should succeed")
	}

	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}

	got, ok := r.Pop()
	if !ok || got.Seq != 1 {
		t.Fatalf("expected seq 1, got %d ok=%v", got.Seq, ok)
	}

	got, ok = r.Pop()
	if !ok || got.Seq != 2 {
		t.Fatalf("expected seq 2, got %d ok=%v", got.Seq, ok)
	}

	if _, ok = r.Pop(); ok {
		t.Fatal("pop from empty should return false")
	}
}

func TestRing_Overflow(t *testing.T) {
	r := New(2) // capacity = 2

	r.Push(model.Frame{Seq: 1})
	r.Push(model.Frame{Seq: 2})

	// Buffer is full
	if r.Push(model.Frame{Seq: 3}) {
		t.Fatal("push to full buffer should return false")
	}
	if r.Overflow() != 1 {
		t.Fatalf("expected overflow=1, got %d", r.Overflow())
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New(4)

	// Fill and drain multiple times to test wraparound
	for round := 0; round < 5; round++ {
		for i := 0; i < 4; i++ {
			if !r.Push(model.Frame{Seq: int64(round*10 + i)}) {
				t.Fatalf("round %d push %d failed", round, i)
			}
		}
		for i := 0; i < 4; i++ {
			f, ok := r.Pop()
			if !ok {
				t.Fatalf("round %d pop %d failed", round, i)
			}
			if f.Seq != int64(round*10+i) {
				t.Fatalf("round %d pop %d: expected seq=%d, got %d", round, i, round*10+i, f.Seq)
			}
		}
	}
}

func TestRing_DrainLatestKeepsNotices(t *testing.T) {
	r := New(8)
	r.Push(model.Frame{Seq: 1, Fired: []model.Notice{{Index: 0}}})
	r.Push(model.Frame{Seq: 2})
	r.Push(model.Frame{Seq: 3, Fired: []model.Notice{{Index: 1}, {Index: 2}}})

	f, skipped, ok := r.DrainLatest()
	if !ok || f.Seq != 3 || skipped != 2 {
		t.Fatalf("expected seq 3 with 2 skipped, got seq=%d skipped=%d ok=%v", f.Seq, skipped, ok)
	}
	if len(f.Fired) != 3 || f.Fired[0].Index != 0 || f.Fired[2].Index != 2 {
		t.Errorf("notices from skipped frames lost: %+v", f.Fired)
	}
	if _, _, ok := r.DrainLatest(); ok {
		t.Error("drained ring should be empty")
	}
}

func TestRing_SPSC_Concurrent(t *testing.T) {
	const count = 100_000
	r := New(1024)

	var wg sync.WaitGroup
	wg.Add(2)

	// Producer
	go func() {
		defer wg.Done()
		for i := 0; i < count; i++ {
			for !r.Push(model.Frame{Seq: int64(i)}) {
				// spin-wait (busy loop for test only)
			}
		}
	}()

	// Consumer
	received := make([]int64, 0, count)
	go func() {
		defer wg.Done()
		for len(received) < count {
			f, ok := r.Pop()
			if ok {
				received = append(received, f.Seq)
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("SPSC test timed out")
	}

	// Verify ordering
	for i, v := range received {
		if v != int64(i) {
			t.Fatalf("at index %d: expected %d, got %d", i, i, v)
		}
	}
}

func TestRing_NextPow2(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {7, 8}, {8, 8}, {9, 16}, {1023, 1024},
	}
	for _, tc := range cases {
		got := nextPow2(tc.in)
		if got != tc.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
