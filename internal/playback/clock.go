// Package playback maps wall-clock progress onto positions inside an event
// log and decides which events are due. It holds no goroutines and no locks;
// the owning session drives it from a single loop.
package playback

import (
	"errors"
	"math"
	"time"
)

var (
	ErrInvalidSpeed    = errors.New("speed multiplier must be finite and > 0")
	ErrInvalidFraction = errors.New("seek fraction must be finite")
	ErrClockSkew       = errors.New("negative or non-finite elapsed time")
)

// Clock converts accumulated wall time into simulated data time.
//
// All positions are offsets from the first event in the log. While running,
//
//	current = dataAnchor + (now - wallAnchor) * speed
//
// and every transition (pause, resume, speed change, seek) re-anchors so the
// formula stays continuous except across an explicit seek.
type Clock struct {
	span  time.Duration
	empty bool

	speed      float64
	now        time.Duration
	wallAnchor time.Duration
	dataAnchor time.Duration
	playing    bool
	paused     bool
}

// NewClock creates a clock over a log spanning span. An empty clock ignores
// every operation.
func NewClock(span time.Duration, empty bool, speed float64) *Clock {
	if !validSpeed(speed) {
		speed = 1
	}
	if span < 0 {
		span = 0
	}
	return &Clock{span: span, empty: empty, speed: speed}
}

func validSpeed(m float64) bool {
	return m > 0 && !math.IsInf(m, 0) && !math.IsNaN(m)
}

// Advance moves wall time forward by delta. A negative delta re-anchors at
// the current data position and returns ErrClockSkew; the clock keeps going.
func (c *Clock) Advance(delta time.Duration) error {
	if c.empty {
		return nil
	}
	if delta < 0 {
		c.reanchor()
		return ErrClockSkew
	}
	c.now += delta
	return nil
}

// Reanchor pins the anchors to the current position without moving it.
func (c *Clock) Reanchor() {
	if c.empty {
		return
	}
	c.reanchor()
}

func (c *Clock) reanchor() {
	c.dataAnchor = c.Current()
	c.wallAnchor = c.now
}

// Start begins playback from the current position.
func (c *Clock) Start() {
	if c.empty {
		return
	}
	c.dataAnchor = c.Current()
	c.wallAnchor = c.now
	c.playing = true
	c.paused = false
}

// Stop halts playback, keeping the current position.
func (c *Clock) Stop() {
	if c.empty {
		return
	}
	c.reanchor()
	c.playing = false
	c.paused = false
}

// Pause freezes data time. No-op unless running.
func (c *Clock) Pause() {
	if c.empty || !c.playing || c.paused {
		return
	}
	c.reanchor()
	c.paused = true
}

// Resume continues from the paused position; the paused wall interval is
// not counted.
func (c *Clock) Resume() {
	if c.empty || !c.playing || !c.paused {
		return
	}
	c.wallAnchor = c.now
	c.paused = false
}

// TogglePause flips between paused and running.
func (c *Clock) TogglePause() {
	if c.paused {
		c.Resume()
	} else {
		c.Pause()
	}
}

// SetSpeed changes the multiplier. Data time is unchanged at the moment of
// the call.
func (c *Clock) SetSpeed(m float64) error {
	if !validSpeed(m) {
		return ErrInvalidSpeed
	}
	if c.empty {
		c.speed = m
		return nil
	}
	c.reanchor()
	c.speed = m
	return nil
}

// Seek jumps to fraction f of the log range, clamped to [0,1], and returns
// the resulting offset.
func (c *Clock) Seek(f float64) (time.Duration, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return c.Current(), ErrInvalidFraction
	}
	if c.empty {
		return 0, nil
	}
	f = math.Max(0, math.Min(1, f))
	c.dataAnchor = time.Duration(f * float64(c.span))
	c.wallAnchor = c.now
	return c.dataAnchor, nil
}

// Rewind returns to the start of the log and stops.
func (c *Clock) Rewind() {
	c.dataAnchor = 0
	c.wallAnchor = c.now
	c.playing = false
	c.paused = false
}

// Current returns simulated data time as an offset from the log start,
// clamped to [0, span].
func (c *Clock) Current() time.Duration {
	if c.empty {
		return 0
	}
	if !c.playing || c.paused {
		return c.clamp(float64(c.dataAnchor))
	}
	return c.clamp(float64(c.dataAnchor) + float64(c.now-c.wallAnchor)*c.speed)
}

func (c *Clock) clamp(off float64) time.Duration {
	if off <= 0 {
		return 0
	}
	if off >= float64(c.span) {
		return c.span
	}
	return time.Duration(off)
}

// Progress is the current position as a fraction of the log range.
func (c *Clock) Progress() float64 {
	if c.span <= 0 {
		return 0
	}
	return float64(c.Current()) / float64(c.span)
}

// AtEnd reports whether the position has reached the end of the range.
func (c *Clock) AtEnd() bool {
	return !c.empty && c.Current() >= c.span
}

func (c *Clock) Speed() float64          { return c.speed }
func (c *Clock) Playing() bool           { return c.playing }
func (c *Clock) Paused() bool            { return c.paused }
func (c *Clock) Running() bool           { return c.playing && !c.paused }
func (c *Clock) Span() time.Duration     { return c.span }
func (c *Clock) WallTime() time.Duration { return c.now }
func (c *Clock) Empty() bool             { return c.empty }
