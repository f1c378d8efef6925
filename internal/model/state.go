package model

import (
	"encoding/json"
	"time"
)

// Stats is the aggregate snapshot over dispatched events.
// It is derived state and can always be rebuilt from a log prefix.
type Stats struct {
	EventsFired       int     `json:"events_fired"`
	LiquidationCount  int     `json:"liquidations"`
	ADLCount          int     `json:"adls"`
	TotalVolume       float64 `json:"total_volume"`
	LiquidationVolume float64 `json:"liquidation_volume"`
	ADLVolume         float64 `json:"adl_volume"`
}

// Notice describes one fired event for the event-info overlay and for
// downstream sinks (pubsub, alerts).
type Notice struct {
	Index   int       `json:"index"`
	Event   Event     `json:"event"`
	Label   string    `json:"label"`
	Amount  string    `json:"amount_fmt"`
	PnL     string    `json:"pnl_fmt"`
	User    string    `json:"user_short"`
	Color   string    `json:"color"`
	Major   bool      `json:"major,omitempty"`
	Climax  bool      `json:"climax,omitempty"`
	FiredAt time.Time `json:"fired_at"`
}

// NewNotice builds the display fields for an event.
func NewNotice(idx int, ev Event, color string, firedAt time.Time) Notice {
	return Notice{
		Index:   idx,
		Event:   ev,
		Label:   ev.Type.Label(),
		Amount:  FormatMoney(ev.Amount),
		PnL:     FormatPnL(ev.PnL),
		User:    ShortAddress(ev.User),
		Color:   color,
		FiredAt: firedAt,
	}
}

// JSON returns the JSON-encoded notice.
func (n *Notice) JSON() []byte {
	b, _ := json.Marshal(n)
	return b
}

// State is the queryable playback state exposed to UI surfaces.
type State struct {
	SessionID     string    `json:"session_id"`
	Playing       bool      `json:"playing"`
	Paused        bool      `json:"paused"`
	Complete      bool      `json:"complete"`
	Speed         float64   `json:"speed"`
	Progress      float64   `json:"progress"`
	CurrentTime   time.Time `json:"current_time"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Stats         Stats     `json:"stats"`
	Particles     int       `json:"particles"`
	Deferred      int       `json:"deferred"`
	NextIndex     int       `json:"next_index"`
	TotalEvents   int       `json:"total_events"`
	AudioPosition float64   `json:"audio_position"`
	AudioPlaying  bool      `json:"audio_playing"`
	LastNotice    *Notice   `json:"last_notice,omitempty"`
}

// DrawCall is one primitive issued to a rendering surface.
// Op is "fade" (full-surface translucent fill) or "circle".
type DrawCall struct {
	Op     string  `json:"op"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Radius float64 `json:"r,omitempty"`
	Color  string  `json:"c"`
	Alpha  float64 `json:"a"`
}

// Frame is everything a remote renderer needs for one tick.
type Frame struct {
	Seq   int64      `json:"seq"`
	State State      `json:"state"`
	Draw  []DrawCall `json:"draw"`
	Fired []Notice   `json:"fired,omitempty"`
}

// JSON returns the JSON-encoded frame.
func (f *Frame) JSON() []byte {
	b, _ := json.Marshal(f)
	return b
}
