package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hyperfireworks/internal/eventlog"
	"hyperfireworks/internal/model"
	"hyperfireworks/internal/ringbuf"
	"hyperfireworks/internal/session"
)

// ErrUnknownCommand is returned for a control message with an unrecognized type.
var ErrUnknownCommand = errors.New("unknown control command")

// Controller is the gateway's view of the playback runner.
type Controller interface {
	Do(ctx context.Context, fn func(*session.Session) error) error
	Latest() model.State
	Frames() *ringbuf.Ring
	EventLog() *eventlog.Log
}

// ControlMsg is a user action arriving over WebSocket, REST or Redis PubSub.
type ControlMsg struct {
	Type     string  `json:"type"`
	Speed    float64 `json:"speed,omitempty"`
	Fraction float64 `json:"fraction,omitempty"`
	Width    float64 `json:"width,omitempty"`
	Height   float64 `json:"height,omitempty"`
	Code     string  `json:"code,omitempty"` // TOTP, when the control plane is gated
	ReqID    string  `json:"req_id,omitempty"`
}

// ControlResult is the reply to a control message.
type ControlResult struct {
	Type  string      `json:"type"`
	ReqID string      `json:"req_id,omitempty"`
	OK    bool        `json:"ok"`
	Error string      `json:"error,omitempty"`
	State model.State `json:"state"`
}

// Control command types.
const (
	CmdStart       = "START"
	CmdPause       = "PAUSE"
	CmdResume      = "RESUME"
	CmdTogglePause = "TOGGLE_PAUSE"
	CmdReset       = "RESET"
	CmdSpeed       = "SPEED"
	CmdCycleSpeed  = "CYCLE_SPEED"
	CmdSeek        = "SEEK"
	CmdViewport    = "VIEWPORT"
)

// IsControl reports whether t names a control command.
func IsControl(t string) bool {
	switch strings.ToUpper(t) {
	case CmdStart, CmdPause, CmdResume, CmdTogglePause, CmdReset,
		CmdSpeed, CmdCycleSpeed, CmdSeek, CmdViewport:
		return true
	}
	return false
}

// command maps a message to the session operation it triggers.
func command(msg ControlMsg) (func(*session.Session) error, error) {
	switch strings.ToUpper(msg.Type) {
	case CmdStart:
		return func(s *session.Session) error { s.Start(); return nil }, nil
	case CmdPause:
		return func(s *session.Session) error { s.Pause(); return nil }, nil
	case CmdResume:
		return func(s *session.Session) error { s.Resume(); return nil }, nil
	case CmdTogglePause:
		return func(s *session.Session) error { s.TogglePause(); return nil }, nil
	case CmdReset:
		return func(s *session.Session) error { s.Reset(); return nil }, nil
	case CmdSpeed:
		return func(s *session.Session) error { return s.SetSpeed(msg.Speed) }, nil
	case CmdCycleSpeed:
		return func(s *session.Session) error { s.CycleSpeed(); return nil }, nil
	case CmdSeek:
		return func(s *session.Session) error { return s.Seek(msg.Fraction) }, nil
	case CmdViewport:
		return func(s *session.Session) error { s.SetViewport(msg.Width, msg.Height); return nil }, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, msg.Type)
}

// ApplyControl runs msg on the controller and returns the resulting state.
func ApplyControl(ctx context.Context, ctl Controller, msg ControlMsg) ControlResult {
	res := ControlResult{Type: "control_result", ReqID: msg.ReqID}
	fn, err := command(msg)
	if err == nil {
		err = ctl.Do(ctx, fn)
	}
	if err != nil {
		res.Error = err.Error()
	} else {
		res.OK = true
	}
	res.State = ctl.Latest()
	return res
}
