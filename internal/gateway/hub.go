package gateway

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"hyperfireworks/internal/model"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Hub manages WebSocket clients for one playback runner.
// It acts as a compositor, delegating to focused components:
//   - Broadcaster: envelope construction + channel-filtered fan-out
//   - PubSubRouter: remote control commands from Redis PubSub
//   - PrefStore: persisted playback preferences
type Hub struct {
	ctl  Controller
	auth *ControlAuth

	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64

	// Per-channel replay buffers for gap backfill
	replayBufs map[string]*ReplayBuffer

	dropped atomic.Uint64

	// Tick duration samples, pushed to clients with the metrics envelope
	TickTimes *TickTimes

	// OnClientCount, if set, is called whenever a client connects or leaves.
	OnClientCount func(n int)

	Broadcaster *Broadcaster
	Router      *PubSubRouter
	Prefs       *PrefStore
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates a Hub in front of ctl. rdb may be nil, which disables the
// PubSub router and preference persistence.
func NewHub(ctl Controller, rdb *goredis.Client, auth *ControlAuth) *Hub {
	h := &Hub{
		ctl:         ctl,
		auth:        auth,
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		TickTimes:   NewTickTimes(10000),
	}
	h.Broadcaster = NewBroadcaster(h)
	h.Prefs = NewPrefStore(rdb)
	if rdb != nil {
		h.Router = NewPubSubRouter(h, rdb)
	}
	return h
}

// Run pumps frames from the runner's ring to clients at fps, and forwards
// fired-event notices. Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, notices <-chan model.Notice, fps int) {
	if fps <= 0 {
		fps = 60
	}
	if h.Router != nil {
		go h.Router.Run(ctx)
	}

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	frames := h.ctl.Frames()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notices:
			if !ok {
				notices = nil
				continue
			}
			h.Broadcaster.Broadcast(ChannelNotice, n.JSON())
		case <-ticker.C:
			f, skipped, ok := frames.DrainLatest()
			if !ok {
				continue
			}
			if skipped > 0 {
				h.dropped.Add(uint64(skipped))
			}
			if h.ClientCount() == 0 {
				continue
			}
			h.Broadcaster.Broadcast(ChannelFrame, f.JSON())
		}
	}
}

// Control authenticates and applies msg, persists speed preferences and
// pushes the resulting state to every client.
func (h *Hub) Control(ctx context.Context, msg ControlMsg) ControlResult {
	if err := h.auth.Check(msg.Code); err != nil {
		return ControlResult{Type: "control_result", ReqID: msg.ReqID, Error: err.Error(), State: h.ctl.Latest()}
	}
	res := ApplyControl(ctx, h.ctl, msg)
	if !res.OK {
		log.Printf("[gateway] control %s failed: %s", msg.Type, res.Error)
		return res
	}

	switch strings.ToUpper(msg.Type) {
	case CmdSpeed, CmdCycleSpeed:
		h.Prefs.Save(ctx, Preferences{Speed: res.State.Speed})
	}

	data, _ := json.Marshal(res.State)
	h.Broadcaster.Broadcast(ChannelState, data)
	return res
}

// RestorePreferences applies persisted preferences to the runner.
func (h *Hub) RestorePreferences(ctx context.Context) {
	p, ok := h.Prefs.Load(ctx)
	if !ok || p.Speed <= 0 {
		return
	}
	res := ApplyControl(ctx, h.ctl, ControlMsg{Type: CmdSpeed, Speed: p.Speed})
	if !res.OK {
		log.Printf("[gateway] WARNING: stored speed %v rejected: %s", p.Speed, res.Error)
	}
}

// HandleWSRequest registers an upgraded connection as a client.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, lastTS string) {
	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.clientCountChanged(count)

	log.Printf("[gateway] ws client %s connected (%d total)", client.id, count)

	client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	close(c.send)
	h.clientCountChanged(count)
}

func (h *Hub) clientCountChanged(n int) {
	if h.OnClientCount != nil {
		h.OnClientCount(n)
	}
}

// GetReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
// Used by the /api/missed REST endpoint for client gap backfill.
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// GetOldestSeq returns the lowest sequence still replayable for a channel.
func (h *Hub) GetOldestSeq(channel string) int64 {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return 0
	}
	return rb.Oldest()
}

// GetChannelSeq returns the current sequence number for a channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped counts envelopes not delivered because a client queue was full,
// plus frames superseded before they were sent.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// StartMetricsBroadcast sends process and tick metrics to all WS clients every 2s.
func (h *Hub) StartMetricsBroadcast(ctx context.Context, start time.Time) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := h.CollectMetrics(start)
			envelope, _ := json.Marshal(map[string]interface{}{
				"type":    "metrics",
				"metrics": m,
			})
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- envelope:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}
