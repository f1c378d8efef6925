package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"testing"
	"time"

	"hyperfireworks/internal/audiosync"
	"hyperfireworks/internal/eventlog"
	"hyperfireworks/internal/logger"
	"hyperfireworks/internal/model"
	"hyperfireworks/internal/playback"
	"hyperfireworks/internal/render"
)

var (
	quiet = slog.New(slog.NewTextHandler(io.Discard, nil))
	t0    = time.Date(2025, 10, 10, 21, 0, 0, 0, time.UTC)
)

func at(d time.Duration, typ model.EventType, amount, pnl float64) model.Event {
	return model.Event{Timestamp: t0.Add(d), Type: typ, Amount: amount, PnL: pnl, Ticker: "BTC", User: "0xabc"}
}

func scenarioLog() *eventlog.Log {
	return eventlog.FromEvents([]model.Event{
		at(0, model.EventLiquidation, 50000, 0),
		at(10*time.Second, model.EventADL, 2_000_000, -500),
	})
}

func newSession(log *eventlog.Log, speed float64) *Session {
	return New(log, Options{
		Speed:  speed,
		Rand:   rand.New(rand.NewSource(1)),
		Logger: quiet,
	})
}

func TestSession_TwoEventScenario(t *testing.T) {
	s := newSession(scenarioLog(), 1)

	if st := s.State(); st.Stats != (model.Stats{}) || st.Playing {
		t.Fatalf("fresh session should be idle with zero stats: %+v", st)
	}

	s.Start()
	s.Advance(0)
	st := s.State()
	if st.Stats.EventsFired != 1 || st.Stats.LiquidationCount != 1 || st.Stats.TotalVolume != 50000 {
		t.Errorf("after first tick: %+v", st.Stats)
	}

	s.Advance(5 * time.Second)
	if got := s.State().Stats.EventsFired; got != 1 {
		t.Errorf("at 5s: expected 1 fired, got %d", got)
	}

	s.Advance(15 * time.Second) // simulated 20s, clamped at the 10s end
	st = s.State()
	if st.Stats.EventsFired != 2 || st.Stats.ADLCount != 1 || st.Stats.TotalVolume != 2_050_000 || st.Stats.ADLVolume != 2_000_000 {
		t.Errorf("at 20s: %+v", st.Stats)
	}
	if !st.Complete || st.Playing || st.Progress != 1 {
		t.Errorf("expected completion: %+v", st)
	}
}

func TestSession_SeekRecomputesStrictPrefix(t *testing.T) {
	s := newSession(scenarioLog(), 1)
	if err := s.Seek(1.0); err != nil {
		t.Fatal(err)
	}
	st := s.State()
	if st.Stats.EventsFired != 1 || st.Stats.TotalVolume != 50000 {
		t.Errorf("seek to 10s: %+v", st.Stats)
	}
	if !st.CurrentTime.Equal(t0.Add(10 * time.Second)) {
		t.Errorf("current time: %v", st.CurrentTime)
	}
	if err := s.Seek(math.NaN()); !errors.Is(err, playback.ErrInvalidFraction) {
		t.Errorf("expected ErrInvalidFraction, got %v", err)
	}
}

func TestSession_SeekBackDoesNotRefire(t *testing.T) {
	s := newSession(scenarioLog(), 1)
	s.Start()
	s.Advance(0)
	particles := s.State().Particles

	s.Seek(0.5)
	s.Advance(0)
	if got := s.TakeFired(); len(got) != 1 {
		t.Fatalf("only the first tick should have fired, got %d notices", len(got))
	}
	if s.State().Particles > particles {
		t.Error("seek back re-spawned particles")
	}
	if s.State().Stats.EventsFired != 1 {
		t.Errorf("stats after seek back: %+v", s.State().Stats)
	}
}

func TestSession_PauseResumeContinuity(t *testing.T) {
	log := eventlog.FromEvents([]model.Event{
		at(0, model.EventLiquidation, 1, 0),
		at(time.Minute, model.EventLiquidation, 1, 0),
	})
	s := newSession(log, 1)
	s.Start()
	s.Advance(7 * time.Second)
	s.Pause()
	s.Advance(3 * time.Second)
	s.Resume()

	if got := s.State().CurrentTime; !got.Equal(t0.Add(7 * time.Second)) {
		t.Errorf("expected 7s after resume, got %v", got.Sub(t0))
	}
	s.TogglePause()
	if !s.State().Paused {
		t.Error("toggle should pause a running session")
	}
}

func TestSession_IdempotentTicks(t *testing.T) {
	s := newSession(scenarioLog(), 1)
	s.Start()
	s.Advance(0)
	first := s.State()
	for i := 0; i < 10; i++ {
		s.Advance(0)
	}
	st := s.State()
	if st.Stats != first.Stats {
		t.Errorf("stats changed without elapsed time: %+v → %+v", first.Stats, st.Stats)
	}
	if st.Particles > first.Particles {
		t.Error("particles re-spawned without elapsed time")
	}
}

func TestSession_ReplayAfterCompletion(t *testing.T) {
	s := newSession(scenarioLog(), 100)
	s.Start()
	s.Advance(time.Second)
	if !s.State().Complete {
		t.Fatal("expected completion")
	}
	s.TakeFired()

	s.Start()
	st := s.State()
	if st.Complete || !st.Playing || st.Stats.EventsFired != 0 || st.Particles != 0 {
		t.Fatalf("replay should start a fresh epoch: %+v", st)
	}
	s.Advance(time.Second)
	if len(s.TakeFired()) != 2 {
		t.Error("replay should fire every event again")
	}
}

func TestSession_Reset(t *testing.T) {
	s := newSession(scenarioLog(), 1)
	s.Start()
	s.Advance(time.Second)
	s.Reset()
	st := s.State()
	if st.Playing || st.Particles != 0 || st.Stats != (model.Stats{}) || st.NextIndex != 0 || st.LastNotice != nil {
		t.Errorf("reset left state behind: %+v", st)
	}
}

func TestSession_CycleSpeed(t *testing.T) {
	s := newSession(scenarioLog(), 100)
	want := []float64{200, 500, 1000, 10, 50, 100}
	for _, w := range want {
		if got := s.CycleSpeed(); got != w {
			t.Fatalf("CycleSpeed: got %v, want %v", got, w)
		}
	}

	s2 := newSession(scenarioLog(), 3)
	if got := s2.CycleSpeed(); got != 10 {
		t.Errorf("off-cycle speed should jump to first step, got %v", got)
	}
	if err := s2.SetSpeed(-1); !errors.Is(err, playback.ErrInvalidSpeed) {
		t.Errorf("expected ErrInvalidSpeed, got %v", err)
	}
}

func TestSession_TickPanicIsRecovered(t *testing.T) {
	s := newSession(scenarioLog(), 1)
	calls := 0
	s.OnFire(func(model.Notice) {
		calls++
		if calls == 1 {
			panic("bad listener")
		}
	})
	s.Start()
	if err := s.Advance(0); !errors.Is(err, ErrTickPanic) {
		t.Fatalf("expected ErrTickPanic, got %v", err)
	}
	if err := s.Advance(10 * time.Second); err != nil {
		t.Fatalf("next tick should run normally: %v", err)
	}
	if s.State().Stats.EventsFired != 2 || calls != 2 {
		t.Errorf("loop did not continue: fired=%d calls=%d", s.State().Stats.EventsFired, calls)
	}
	if s.Counters().Panics != 1 {
		t.Errorf("panics: %d", s.Counters().Panics)
	}
}

func TestSession_InvalidElapsedReanchors(t *testing.T) {
	s := newSession(scenarioLog(), 1)
	s.Start()
	s.Advance(2 * time.Second)
	for _, bad := range []float64{math.NaN(), math.Inf(1), -3} {
		if err := s.AdvanceSeconds(bad); !errors.Is(err, playback.ErrClockSkew) {
			t.Errorf("AdvanceSeconds(%v): expected ErrClockSkew, got %v", bad, err)
		}
	}
	if err := s.Advance(-time.Second); !errors.Is(err, playback.ErrClockSkew) {
		t.Errorf("negative delta: expected ErrClockSkew, got %v", err)
	}
	if got := s.State().CurrentTime.Sub(t0); got != 2*time.Second {
		t.Errorf("skew moved the clock to %v", got)
	}
	s.AdvanceSeconds(1.5)
	if got := s.State().CurrentTime.Sub(t0); got != 3500*time.Millisecond {
		t.Errorf("clock should keep running, got %v", got)
	}
}

type rejectingTrack struct {
	*audiosync.ClockTrack
	reject int
}

func (r *rejectingTrack) Play() error {
	if r.reject > 0 {
		r.reject--
		return audiosync.ErrPlaybackRejected
	}
	return r.ClockTrack.Play()
}

func TestSession_AudioDeferredUntilInteraction(t *testing.T) {
	track := &rejectingTrack{ClockTrack: audiosync.NewClockTrack(210 * time.Second), reject: 1}
	log := eventlog.FromEvents([]model.Event{
		at(0, model.EventLiquidation, 1, 0),
		at(30*time.Second, model.EventLiquidation, 193_000_000, 0),
		at(60*time.Second, model.EventADL, 10, 1),
	})
	s := New(log, Options{
		Speed:  100,
		Track:  track,
		Audio:  audiosync.Params{ReferenceDataTime: -1, ReferenceAudioTime: 62},
		Logger: quiet,
	})

	s.Start()
	if s.State().AudioPlaying {
		t.Fatal("audio should be blocked")
	}
	// Any control counts as a user interaction.
	if err := s.SetSpeed(100); err != nil {
		t.Fatal(err)
	}
	st := s.State()
	if !st.AudioPlaying || !track.Playing() {
		t.Fatal("audio should start on the next interaction")
	}
	// Climax at 30s, speed 100: start offset = 62 - 0.3.
	if math.Abs(st.AudioPosition-61.7) > 1e-9 {
		t.Errorf("audio position: got %v, want 61.7", st.AudioPosition)
	}
}

func TestSession_AudioFollowsSeekAndSpeed(t *testing.T) {
	track := audiosync.NewClockTrack(300 * time.Second)
	log := eventlog.FromEvents([]model.Event{
		at(0, model.EventLiquidation, 1, 0),
		at(1000*time.Second, model.EventLiquidation, 5, 0),
	})
	s := New(log, Options{
		Speed:  10,
		Track:  track,
		Audio:  audiosync.Params{ReferenceDataTime: 0, ReferenceAudioTime: 0},
		Logger: quiet,
	})
	s.Start()
	s.Seek(0.5) // 500s of data at 10x → 50s of audio
	if math.Abs(track.Position()-50) > 1e-9 {
		t.Errorf("after seek: %v", track.Position())
	}
	s.SetSpeed(100) // 500s at 100x → 5s
	if math.Abs(track.Position()-5) > 1e-9 {
		t.Errorf("after speed change: %v", track.Position())
	}
}

func TestSession_NoticeFlagsAndExpiry(t *testing.T) {
	log := eventlog.FromEvents([]model.Event{
		at(0, model.EventLiquidation, 1000, 0),
		at(time.Second, model.EventLiquidation, 193_000_000, 0),
		at(time.Minute, model.EventADL, 10, 1),
	})
	s := newSession(log, 1)
	s.Start()
	s.Advance(time.Second)
	fired := s.TakeFired()
	if len(fired) != 2 {
		t.Fatalf("expected 2 notices, got %d", len(fired))
	}
	if fired[0].Major || !fired[1].Major || !fired[1].Climax {
		t.Errorf("major flags wrong: %+v", fired)
	}
	if fired[1].Amount != "$193.00M" || fired[1].Label != "LIQUIDATED" {
		t.Errorf("display fields: %+v", fired[1])
	}
	if ln := s.State().LastNotice; ln == nil || ln.Index != 1 {
		t.Fatalf("last notice: %+v", ln)
	}
	s.Advance(2 * time.Second)
	if s.State().LastNotice != nil {
		t.Error("notice should expire after its display time")
	}
}

func TestSession_EmptyLog(t *testing.T) {
	s := newSession(eventlog.FromEvents(nil), 100)
	s.Start()
	if err := s.Advance(time.Second); err != nil {
		t.Fatal(err)
	}
	if err := s.Seek(0.5); err != nil {
		t.Fatal(err)
	}
	st := s.State()
	if st.Playing || st.TotalEvents != 0 || st.Progress != 0 {
		t.Errorf("empty log should stay idle: %+v", st)
	}
}

func TestSession_PaintAndContext(t *testing.T) {
	s := newSession(scenarioLog(), 1)
	s.Start()
	s.Advance(0)
	var c render.Counter
	s.Paint(&c)
	if c.Fades != 1 || c.Circles != 2*s.State().Particles {
		t.Errorf("paint: %+v", c)
	}
	if got := logger.SessionID(s.Context(context.Background())); got != s.ID() {
		t.Errorf("context session id: %q, want %q", got, s.ID())
	}
}
