package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"hyperfireworks/internal/eventlog"
	"hyperfireworks/internal/model"
	"hyperfireworks/internal/ringbuf"
	"hyperfireworks/internal/session"
)

// fakeController runs commands synchronously on an unshared session.
type fakeController struct {
	s      *session.Session
	frames *ringbuf.Ring
}

func (f *fakeController) Do(_ context.Context, fn func(*session.Session) error) error {
	return fn(f.s)
}
func (f *fakeController) Latest() model.State     { return f.s.State() }
func (f *fakeController) Frames() *ringbuf.Ring   { return f.frames }
func (f *fakeController) EventLog() *eventlog.Log { return f.s.Log() }

var base = time.Date(2025, 10, 10, 21, 0, 0, 0, time.UTC)

func newFakeController() *fakeController {
	log := eventlog.FromEvents([]model.Event{
		{Timestamp: base, Type: model.EventLiquidation, Amount: 50000, Ticker: "BTC", User: "0x1111222233334444"},
		{Timestamp: base.Add(10 * time.Second), Type: model.EventADL, Amount: 2_000_000, PnL: -500, Ticker: "ETH", User: "0xaaaabbbbccccdddd"},
	})
	s := session.New(log, session.Options{
		Speed:  1,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &fakeController{s: s, frames: ringbuf.New(8)}
}

func addClient(h *Hub, channels ...string) *Client {
	c := &Client{id: "test", send: make(chan []byte, 16), hub: h}
	if len(channels) > 0 {
		c.channels = make(map[string]bool)
		for _, ch := range channels {
			c.channels[ch] = true
		}
	}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	return c
}

// envelope is the parsed WS message structure.
type envelope struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	TS         string          `json:"ts"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
}

func TestBuildEnvelope_Format(t *testing.T) {
	data := []byte(`{"index":3,"amount_fmt":"$1.50M"}`)
	now := time.Date(2026, 2, 25, 10, 0, 1, 0, time.UTC)

	buf := buildEnvelope(ChannelNotice, data, now, 42, 7)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}
	if env.Channel != ChannelNotice || env.Seq != 42 || env.ChannelSeq != 7 {
		t.Errorf("envelope header: %+v", env)
	}
	var n map[string]interface{}
	if err := json.Unmarshal(env.Data, &n); err != nil {
		t.Fatalf("data is not valid JSON: %v", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, env.TS)
	if err != nil || !parsed.Equal(now) {
		t.Errorf("ts: got %q (%v)", env.TS, err)
	}
}

func TestBroadcaster_PerChannelSeq(t *testing.T) {
	h := NewHub(newFakeController(), nil, nil)
	c := addClient(h)

	h.Broadcaster.Broadcast(ChannelNotice, []byte(`{"index":0}`))
	h.Broadcaster.Broadcast(ChannelFrame, []byte(`{"seq":1}`))
	h.Broadcaster.Broadcast(ChannelNotice, []byte(`{"index":1}`))

	if got := h.GetChannelSeq(ChannelNotice); got != 2 {
		t.Errorf("notice seq: got %d, want 2", got)
	}
	if got := h.GetChannelSeq(ChannelFrame); got != 1 {
		t.Errorf("frame seq: got %d, want 1", got)
	}

	var last envelope
	for i := 0; i < 3; i++ {
		var env envelope
		if err := json.Unmarshal(<-c.send, &env); err != nil {
			t.Fatal(err)
		}
		if env.Seq <= last.Seq {
			t.Errorf("global seq not monotonic: %d after %d", env.Seq, last.Seq)
		}
		last = env
	}
	if last.Channel != ChannelNotice || last.ChannelSeq != 2 {
		t.Errorf("last envelope: %+v", last)
	}
}

func TestBroadcaster_ReplayKeepsNoticesNotFrames(t *testing.T) {
	h := NewHub(newFakeController(), nil, nil)
	for i := 0; i < 3; i++ {
		h.Broadcaster.Broadcast(ChannelNotice, []byte(`{}`))
		h.Broadcaster.Broadcast(ChannelFrame, []byte(`{}`))
	}
	if got := h.GetReplayRange(ChannelNotice, 2, 3); len(got) != 2 {
		t.Errorf("notice replay: got %d, want 2", len(got))
	}
	if got := h.GetReplayRange(ChannelFrame, 1, 3); got != nil {
		t.Errorf("frames should not be buffered, got %d", len(got))
	}
}

func TestBroadcaster_ChannelFilterAndFullQueue(t *testing.T) {
	h := NewHub(newFakeController(), nil, nil)
	notices := addClient(h, ChannelNotice)

	h.Broadcaster.Broadcast(ChannelFrame, []byte(`{}`))
	if len(notices.send) != 0 {
		t.Error("client subscribed to notices received a frame")
	}

	for i := 0; i < cap(notices.send)+3; i++ {
		h.Broadcaster.Broadcast(ChannelNotice, []byte(`{}`))
	}
	if h.Dropped() != 3 {
		t.Errorf("dropped: got %d, want 3", h.Dropped())
	}
}
