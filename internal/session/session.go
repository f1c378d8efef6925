// Package session owns all playback state for one run: the clock, the
// dispatch cursor, the particle set and the audio sync. Every operation is a
// synchronous state transition; a single goroutine (see Runner) drives it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"hyperfireworks/internal/audiosync"
	"hyperfireworks/internal/eventlog"
	"hyperfireworks/internal/logger"
	"hyperfireworks/internal/model"
	"hyperfireworks/internal/particle"
	"hyperfireworks/internal/playback"
	"hyperfireworks/internal/render"
)

// ErrTickPanic is returned by Advance when the tick's work panicked. The
// session stays usable; the next Advance runs normally.
var ErrTickPanic = errors.New("tick panicked")

// DefaultSpeedSteps is the speed button cycle.
var DefaultSpeedSteps = []float64{10, 50, 100, 200, 500, 1000}

// Options configures a Session. Zero values select defaults.
type Options struct {
	Speed            float64
	SpeedSteps       []float64
	MaxEventsPerTick int
	Particles        particle.Config
	ViewportWidth    float64
	ViewportHeight   float64

	// Audio.ReferenceDataTime < 0 anchors the track on the climax event.
	Audio audiosync.Params
	Track audiosync.Track

	// NoticeTTL is how long the last fired event stays on the info overlay.
	NoticeTTL time.Duration

	Rand   *rand.Rand
	Logger *slog.Logger
	Now    func() time.Time
}

// Session is the owned playback state. Not safe for concurrent use.
type Session struct {
	id     string
	log    *eventlog.Log
	clock  *playback.Clock
	disp   *playback.Dispatcher
	sim    *particle.Simulation
	audio  *audiosync.Sync
	logger *slog.Logger
	now    func() time.Time

	steps     []float64
	width     float64
	height    float64
	noticeTTL time.Duration

	complete  bool
	deferred  int
	last      *model.Notice
	lastAt    time.Duration
	fired     []model.Notice
	listeners []func(model.Notice)

	panics int64
	skews  int64
}

// New creates a stopped session positioned at the start of log.
func New(log *eventlog.Log, opts Options) *Session {
	if opts.Speed <= 0 {
		opts.Speed = 100
	}
	if len(opts.SpeedSteps) == 0 {
		opts.SpeedSteps = DefaultSpeedSteps
	}
	if opts.ViewportWidth <= 0 || opts.ViewportHeight <= 0 {
		opts.ViewportWidth, opts.ViewportHeight = 1920, 1080
	}
	if opts.NoticeTTL <= 0 {
		opts.NoticeTTL = 1500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Audio.ReferenceDataTime < 0 {
		opts.Audio.ReferenceDataTime = 0
		if c := log.Majors().Climax; c >= 0 {
			opts.Audio.ReferenceDataTime = log.Offset(c).Seconds()
		}
	}

	id := logger.NewSessionID()
	s := &Session{
		id:        id,
		log:       log,
		clock:     playback.NewClock(log.Span(), log.Empty(), opts.Speed),
		disp:      playback.NewDispatcher(log, opts.MaxEventsPerTick),
		sim:       particle.New(opts.Particles, opts.Rand),
		audio:     audiosync.New(opts.Track, opts.Audio),
		logger:    opts.Logger.With(slog.String("session_id", id)),
		now:       opts.Now,
		steps:     opts.SpeedSteps,
		width:     opts.ViewportWidth,
		height:    opts.ViewportHeight,
		noticeTTL: opts.NoticeTTL,
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Context returns ctx tagged with the session ID.
func (s *Session) Context(ctx context.Context) context.Context {
	return logger.WithSessionID(ctx, s.id)
}

// OnFire registers a listener called for every dispatched event.
func (s *Session) OnFire(fn func(model.Notice)) {
	s.listeners = append(s.listeners, fn)
}

// ── Controls ──

// Start begins playback. After completion it replays from the start in a
// new epoch.
func (s *Session) Start() {
	s.interaction()
	if s.log.Empty() {
		return
	}
	if s.complete {
		s.newEpoch()
		s.logger.Info("replay started")
	}
	s.clock.Start()
	s.playAudio()
	s.logger.Info("playback started",
		slog.Float64("speed", s.clock.Speed()),
		slog.Duration("position", s.clock.Current()),
	)
}

// Pause freezes playback; live particles keep decaying.
func (s *Session) Pause() {
	s.interaction()
	if !s.clock.Running() {
		return
	}
	s.clock.Pause()
	s.stopAudio()
	s.logger.Info("playback paused", slog.Duration("position", s.clock.Current()))
}

// Resume continues from the paused position.
func (s *Session) Resume() {
	s.interaction()
	if !s.clock.Paused() {
		return
	}
	s.clock.Resume()
	s.playAudio()
	s.logger.Info("playback resumed", slog.Duration("position", s.clock.Current()))
}

// TogglePause pauses a running session or resumes a paused one.
func (s *Session) TogglePause() {
	if s.clock.Paused() {
		s.Resume()
	} else {
		s.Pause()
	}
}

// SetSpeed changes the multiplier without moving the playback position.
func (s *Session) SetSpeed(m float64) error {
	s.interaction()
	if err := s.clock.SetSpeed(m); err != nil {
		return fmt.Errorf("set speed %v: %w", m, err)
	}
	if s.clock.Running() {
		s.applyAudio()
	}
	s.logger.Info("speed changed", slog.Float64("speed", m))
	return nil
}

// CycleSpeed advances to the next speed step and returns it. A speed that
// is not one of the steps moves to the first step.
func (s *Session) CycleSpeed() float64 {
	idx := -1
	for i, v := range s.steps {
		if v == s.clock.Speed() {
			idx = i
			break
		}
	}
	next := s.steps[(idx+1)%len(s.steps)]
	if err := s.SetSpeed(next); err != nil {
		s.logger.Warn("cycle speed failed", slog.String("error", err.Error()))
	}
	return s.clock.Speed()
}

// Seek jumps to fraction f of the log range. Statistics are recomputed from
// the events strictly before the target; none of them fire again.
func (s *Session) Seek(f float64) error {
	s.interaction()
	target, err := s.clock.Seek(f)
	if err != nil {
		return fmt.Errorf("seek %v: %w", f, err)
	}
	if s.log.Empty() {
		return nil
	}
	idx := s.disp.Rebuild(target)
	s.complete = false
	s.deferred = 0
	if s.clock.Running() {
		s.applyAudio()
	}
	s.logger.Info("seek",
		slog.Float64("fraction", f),
		slog.Duration("target", target),
		slog.Int("next_index", idx),
	)
	return nil
}

// Reset stops playback, discards particles and starts a new epoch at the
// beginning of the log.
func (s *Session) Reset() {
	s.interaction()
	s.newEpoch()
	s.stopAudio()
	s.logger.Info("playback reset")
}

func (s *Session) newEpoch() {
	s.clock.Rewind()
	s.disp.Reset()
	s.sim.Clear()
	s.complete = false
	s.deferred = 0
	s.last = nil
}

// SetViewport sets the burst placement area.
func (s *Session) SetViewport(w, h float64) {
	if w > 0 && h > 0 {
		s.width, s.height = w, h
	}
}

// ── Tick ──

// AdvanceSeconds is Advance for hosts that measure time in float seconds.
// Negative or non-finite input re-anchors the clock and returns
// playback.ErrClockSkew.
func (s *Session) AdvanceSeconds(sec float64) error {
	if math.IsNaN(sec) || math.IsInf(sec, 0) || sec < 0 {
		s.clock.Reanchor()
		s.skews++
		s.logger.Warn("invalid elapsed time, re-anchored", slog.Float64("delta_sec", sec))
		return playback.ErrClockSkew
	}
	return s.Advance(time.Duration(sec * float64(time.Second)))
}

// Advance runs one tick covering delta of host wall time: due events fire,
// audio drift is corrected and particles step once. A panic inside the tick
// is recovered and reported as ErrTickPanic.
func (s *Session) Advance(delta time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.panics++
			s.logger.Error("tick panicked", slog.Any("panic", r))
			err = ErrTickPanic
		}
	}()

	if skew := s.clock.Advance(delta); skew != nil {
		s.skews++
		s.logger.Warn("clock skew, re-anchored", slog.Duration("delta", delta))
		err = skew
		delta = 0
	}
	if aerr := s.audio.Advance(delta); aerr != nil {
		s.logger.Warn("audio loop failed", slog.String("error", aerr.Error()))
	}

	if s.clock.Running() {
		s.dispatch()
	}

	s.sim.Step()

	if s.last != nil && s.clock.WallTime()-s.lastAt > s.noticeTTL {
		s.last = nil
	}
	return err
}

func (s *Session) dispatch() {
	now := s.clock.Current()
	res := s.disp.Tick(now)
	s.deferred = res.Deferred
	for _, idx := range res.Fired {
		s.fire(idx)
	}

	if s.disp.Exhausted() {
		s.complete = true
		s.clock.Stop()
		s.stopAudio()
		st := s.disp.Stats()
		s.logger.Info("playback complete",
			slog.Int("events_fired", st.EventsFired),
			slog.Float64("total_volume", st.TotalVolume),
		)
		return
	}

	if _, err := s.audio.Correct(now.Seconds(), s.clock.Speed()); err != nil {
		s.logger.Warn("audio resync failed", slog.String("error", err.Error()))
	}
}

func (s *Session) fire(idx int) {
	ev := s.log.At(idx)
	x, y := s.sim.RandomPosition(s.width, s.height)
	climax := s.log.IsClimax(idx)
	s.sim.SpawnBurst(x, y, ev, climax)

	n := model.NewNotice(idx, ev, particle.Classify(ev).Hex(), s.now())
	n.Major = s.log.IsMajor(idx)
	n.Climax = climax
	s.last = &n
	s.lastAt = s.clock.WallTime()
	s.fired = append(s.fired, n)

	if n.Major {
		s.logger.Info("major event fired",
			slog.Int("index", idx),
			slog.String("type", string(ev.Type)),
			slog.String("amount", n.Amount),
			slog.Bool("climax", climax),
		)
	}
	for _, fn := range s.listeners {
		fn(n)
	}
}

// ── Audio ──

func (s *Session) interaction() {
	if err := s.audio.Retry(s.clock.Current().Seconds(), s.clock.Speed()); err != nil {
		s.logger.Debug("deferred audio still blocked", slog.String("error", err.Error()))
	}
}

func (s *Session) playAudio() {
	err := s.audio.Play(s.clock.Current().Seconds(), s.clock.Speed())
	switch {
	case errors.Is(err, audiosync.ErrPlaybackRejected):
		s.logger.Warn("audio playback blocked, waiting for user interaction")
	case err != nil:
		s.logger.Warn("audio play failed", slog.String("error", err.Error()))
	}
}

func (s *Session) applyAudio() {
	if _, err := s.audio.Apply(s.clock.Current().Seconds(), s.clock.Speed()); err != nil {
		s.logger.Warn("audio seek failed", slog.String("error", err.Error()))
	}
}

func (s *Session) stopAudio() {
	if err := s.audio.Stop(); err != nil {
		s.logger.Warn("audio pause failed", slog.String("error", err.Error()))
	}
}

// ── Queries ──

// Paint draws the current particle set onto surface.
func (s *Session) Paint(surface render.Surface) {
	render.Paint(surface, s.sim)
}

// TakeFired returns notices fired since the previous call.
func (s *Session) TakeFired() []model.Notice {
	if len(s.fired) == 0 {
		return nil
	}
	out := s.fired
	s.fired = nil
	return out
}

// State returns the queryable playback state.
func (s *Session) State() model.State {
	progress := s.clock.Progress()
	if s.complete {
		progress = 1
	}
	st := model.State{
		SessionID:     s.id,
		Playing:       s.clock.Playing(),
		Paused:        s.clock.Paused(),
		Complete:      s.complete,
		Speed:         s.clock.Speed(),
		Progress:      progress,
		StartTime:     s.log.First(),
		EndTime:       s.log.Last(),
		Stats:         s.disp.Stats(),
		Particles:     s.sim.Len(),
		Deferred:      s.deferred,
		NextIndex:     s.disp.Next(),
		TotalEvents:   s.log.Len(),
		AudioPosition: s.audio.Position(),
		AudioPlaying:  s.audio.State() == audiosync.Playing && !s.audio.Pending(),
	}
	if !s.log.Empty() {
		st.CurrentTime = s.log.First().Add(s.clock.Current())
	}
	if s.last != nil {
		n := *s.last
		st.LastNotice = &n
	}
	return st
}

// Stats returns the statistics snapshot.
func (s *Session) Stats() model.Stats { return s.disp.Stats() }

// Log returns the event log the session plays.
func (s *Session) Log() *eventlog.Log { return s.log }

// Counters exposes health counters for metrics.
type Counters struct {
	Panics    int64
	Skews     int64
	Evicted   int64
	Resyncs   int64
	Loops     int64
	Deferred  int
	Particles int
}

// Counters returns the current health counters.
func (s *Session) Counters() Counters {
	return Counters{
		Panics:    s.panics,
		Skews:     s.skews,
		Evicted:   s.sim.Evicted(),
		Resyncs:   s.audio.Resyncs(),
		Loops:     s.audio.Loops(),
		Deferred:  s.deferred,
		Particles: s.sim.Len(),
	}
}
