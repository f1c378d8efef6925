package audiosync

import "time"

// NopTrack is a silent track for headless runs.
type NopTrack struct{}

func (NopTrack) Play() error               { return nil }
func (NopTrack) Pause() error              { return nil }
func (NopTrack) Position() float64         { return 0 }
func (NopTrack) SetPosition(float64) error { return nil }
func (NopTrack) Duration() float64         { return 0 }

// ClockTrack is a virtual track advanced by session wall time. The server
// uses it as the authoritative position that browser audio elements follow.
type ClockTrack struct {
	duration float64
	pos      float64
	playing  bool
}

// NewClockTrack creates a stopped virtual track of the given length.
func NewClockTrack(duration time.Duration) *ClockTrack {
	return &ClockTrack{duration: duration.Seconds()}
}

func (t *ClockTrack) Play() error {
	t.playing = true
	return nil
}

func (t *ClockTrack) Pause() error {
	t.playing = false
	return nil
}

func (t *ClockTrack) Position() float64 { return t.pos }

func (t *ClockTrack) SetPosition(sec float64) error {
	switch {
	case sec < 0:
		sec = 0
	case sec > t.duration:
		sec = t.duration
	}
	t.pos = sec
	return nil
}

func (t *ClockTrack) Duration() float64 { return t.duration }

// Playing reports whether the virtual track is running.
func (t *ClockTrack) Playing() bool { return t.playing }

// Advance moves the position forward while playing. Reaching the end stops
// the track and reports ended.
func (t *ClockTrack) Advance(d time.Duration) bool {
	if !t.playing || d <= 0 {
		return false
	}
	t.pos += d.Seconds()
	if t.pos >= t.duration {
		t.pos = t.duration
		t.playing = false
		return true
	}
	return false
}
