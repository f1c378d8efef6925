package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"hyperfireworks/internal/eventlog"
	"hyperfireworks/internal/model"
	"hyperfireworks/internal/render"
	"hyperfireworks/internal/ringbuf"
)

// ErrRunnerStopped is returned by Do once the runner has exited.
var ErrRunnerStopped = errors.New("runner stopped")

// TickReport summarizes one frame for observers (metrics, latency tracking).
type TickReport struct {
	Duration time.Duration
	Fired    []model.Notice
	State    model.State
	Counters Counters
	Err      error
	Dropped  bool // frame ring was full
}

// RunnerOptions configures a Runner. FrameRate defaults to 60 ticks per
// second and FrameBuffer to a 64-frame ring.
type RunnerOptions struct {
	FrameRate   int
	FrameBuffer int
	Notices     chan<- model.Notice
	OnTick      func(TickReport)
	Now         func() time.Time
}

type command struct {
	fn    func(*Session) error
	reply chan error
}

// Runner is the single goroutine that owns a Session. Controls are sent as
// commands and run between ticks, so the session never sees concurrent
// access.
type Runner struct {
	s      *Session
	opts   RunnerOptions
	cmds   chan command
	frames *ringbuf.Ring
	latest atomic.Pointer[model.State]
	seq    int64
	done   chan struct{}
}

// NewRunner wraps s. The session must not be touched directly afterwards.
func NewRunner(s *Session, opts RunnerOptions) *Runner {
	if opts.FrameRate <= 0 {
		opts.FrameRate = 60
	}
	if opts.FrameBuffer <= 0 {
		opts.FrameBuffer = 64
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Runner{
		s:      s,
		opts:   opts,
		cmds:   make(chan command),
		frames: ringbuf.New(opts.FrameBuffer),
		done:   make(chan struct{}),
	}
	st := s.State()
	r.latest.Store(&st)
	return r
}

// Run drives the session until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.done)

	interval := time.Second / time.Duration(r.opts.FrameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rec := render.NewRecorder(1024)
	last := r.opts.Now()
	log.Printf("[runner] started session=%s fps=%d", r.s.ID(), r.opts.FrameRate)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[runner] stopped session=%s", r.s.ID())
			return
		case cmd := <-r.cmds:
			cmd.reply <- r.exec(cmd.fn)
			r.publishState()
		case <-ticker.C:
			now := r.opts.Now()
			r.tick(rec, now.Sub(last))
			last = now
		}
	}
}

func (r *Runner) exec(fn func(*Session) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("command panicked: %v", p)
		}
	}()
	return fn(r.s)
}

func (r *Runner) tick(rec *render.Recorder, delta time.Duration) {
	start := time.Now()
	err := r.s.Advance(delta)
	r.s.Paint(rec)
	fired := r.s.TakeFired()
	st := r.s.State()
	r.latest.Store(&st)

	r.seq++
	frame := model.Frame{Seq: r.seq, State: st, Draw: rec.Take(), Fired: fired}
	dropped := !r.frames.Push(frame)

	if r.opts.Notices != nil {
		for _, n := range fired {
			select {
			case r.opts.Notices <- n:
			default:
				log.Printf("[runner] notice channel full, dropping #%d", n.Index)
			}
		}
	}

	if r.opts.OnTick != nil {
		r.opts.OnTick(TickReport{
			Duration: time.Since(start),
			Fired:    fired,
			State:    st,
			Counters: r.s.Counters(),
			Err:      err,
			Dropped:  dropped,
		})
	}
}

func (r *Runner) publishState() {
	st := r.s.State()
	r.latest.Store(&st)
}

// Do runs fn on the runner goroutine and waits for its result.
func (r *Runner) Do(ctx context.Context, fn func(*Session) error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case r.cmds <- cmd:
	case <-r.done:
		return ErrRunnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Latest returns the state published after the last tick or command.
func (r *Runner) Latest() model.State { return *r.latest.Load() }

// Frames is the consumer side of the frame ring. Exactly one goroutine may
// pop from it.
func (r *Runner) Frames() *ringbuf.Ring { return r.frames }

// DroppedFrames counts frames lost to a full ring.
func (r *Runner) DroppedFrames() uint64 { return r.frames.Overflow() }

// Done is closed when Run returns.
func (r *Runner) Done() <-chan struct{} { return r.done }

// EventLog exposes the immutable event log, safe to read from any goroutine.
func (r *Runner) EventLog() *eventlog.Log { return r.s.log }
