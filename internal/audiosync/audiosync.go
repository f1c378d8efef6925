// Package audiosync keeps a music track phase-locked to simulated data time
// so the climax event lands on a fixed point of the track.
package audiosync

import (
	"errors"
	"math"
	"time"
)

// ErrPlaybackRejected is returned by a Track that refused to start, e.g. a
// browser blocking autoplay until the user interacts with the page.
var ErrPlaybackRejected = errors.New("audio playback rejected")

// Track is the external audio transport. Positions are in seconds.
type Track interface {
	Play() error
	Pause() error
	Position() float64
	SetPosition(sec float64) error
	Duration() float64
}

// Advancer is implemented by tracks that are driven by session wall time
// instead of a real audio device. Advance reports whether the track ended.
type Advancer interface {
	Advance(d time.Duration) (ended bool)
}

// State of the audio state machine.
type State int

const (
	Stopped State = iota
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "playing"
	}
	return "stopped"
}

// Params fixes the linear map between data time and track time.
type Params struct {
	ReferenceDataTime  float64 // seconds from log start of the anchor event
	ReferenceAudioTime float64 // seconds into the track where it should land
	DriftTolerance     float64 // seconds of drift tolerated before a resync
}

// Target maps simulated data time to a track position:
//
//	max(0, refAudio - refData/speed) + simulated/speed
func Target(p Params, simulated, speed float64) float64 {
	if !(speed > 0) || math.IsInf(speed, 0) {
		return 0
	}
	return math.Max(0, p.ReferenceAudioTime-p.ReferenceDataTime/speed) + simulated/speed
}

// Sync drives a Track from playback events. Not safe for concurrent use.
type Sync struct {
	track   Track
	params  Params
	state   State
	pending bool
	resyncs int64
	loops   int64
}

// New creates a Sync in the stopped state.
func New(track Track, p Params) *Sync {
	if track == nil {
		track = NopTrack{}
	}
	if p.DriftTolerance <= 0 {
		p.DriftTolerance = 0.3
	}
	return &Sync{track: track, params: p}
}

// Apply seeks the track to the position for simulated/speed, clamped to the
// track duration, and returns the position it set.
func (s *Sync) Apply(simulated, speed float64) (float64, error) {
	pos := s.clamp(Target(s.params, simulated, speed))
	if err := s.track.SetPosition(pos); err != nil {
		return pos, err
	}
	return pos, nil
}

func (s *Sync) clamp(pos float64) float64 {
	if pos < 0 {
		return 0
	}
	if d := s.track.Duration(); d > 0 && pos > d {
		return d
	}
	return pos
}

// Play aligns the track and starts it. A rejected start is remembered and
// retried by Retry; the error is still returned so the caller can log it.
func (s *Sync) Play(simulated, speed float64) error {
	s.state = Playing
	if _, err := s.Apply(simulated, speed); err != nil {
		return err
	}
	return s.start()
}

func (s *Sync) start() error {
	if err := s.track.Play(); err != nil {
		if errors.Is(err, ErrPlaybackRejected) {
			s.pending = true
		}
		return err
	}
	s.pending = false
	return nil
}

// Retry reattempts a deferred start. Call it on every user interaction.
func (s *Sync) Retry(simulated, speed float64) error {
	if !s.pending || s.state != Playing {
		return nil
	}
	if _, err := s.Apply(simulated, speed); err != nil {
		return err
	}
	return s.start()
}

// Stop pauses the track and leaves the playing state.
func (s *Sync) Stop() error {
	s.state = Stopped
	s.pending = false
	return s.track.Pause()
}

// Correct resyncs the track when it has drifted further than the tolerance.
// Targets at or past the end of the track are left to the loop.
func (s *Sync) Correct(simulated, speed float64) (bool, error) {
	if s.state != Playing || s.pending {
		return false, nil
	}
	target := Target(s.params, simulated, speed)
	if d := s.track.Duration(); d > 0 && target >= d {
		return false, nil
	}
	if math.Abs(s.track.Position()-target) <= s.params.DriftTolerance {
		return false, nil
	}
	if err := s.track.SetPosition(target); err != nil {
		return false, err
	}
	s.resyncs++
	return true, nil
}

// OnEnded loops the track back to zero while playing.
func (s *Sync) OnEnded() error {
	if s.state != Playing {
		return nil
	}
	s.loops++
	if err := s.track.SetPosition(0); err != nil {
		return err
	}
	return s.start()
}

// Advance moves a wall-time driven track forward and handles its end.
func (s *Sync) Advance(d time.Duration) error {
	a, ok := s.track.(Advancer)
	if !ok {
		return nil
	}
	if a.Advance(d) {
		return s.OnEnded()
	}
	return nil
}

// SetReference moves the anchor pair, e.g. once the climax offset is known.
func (s *Sync) SetReference(dataSec, audioSec float64) {
	s.params.ReferenceDataTime = dataSec
	s.params.ReferenceAudioTime = audioSec
}

func (s *Sync) State() State      { return s.state }
func (s *Sync) Pending() bool     { return s.pending }
func (s *Sync) Position() float64 { return s.track.Position() }
func (s *Sync) Resyncs() int64    { return s.resyncs }
func (s *Sync) Loops() int64      { return s.loops }
func (s *Sync) Params() Params    { return s.params }
