package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single WebSocket peer.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Channels the client opted into; empty means all.
	subMu    sync.RWMutex
	channels map[string]bool
}

// subscribeMsg narrows the channels a client receives.
type subscribeMsg struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
}

func (c *Client) wants(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.channels) == 0 || c.channels[channel]
}

func (c *Client) sendInitialState(lastTS string) {
	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	// Always start with the current playback state.
	st, _ := json.Marshal(c.hub.ctl.Latest())
	c.enqueue(initialEnvelope(ChannelState, st, time.Now().UTC(), 0))

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	for channel, entry := range c.hub.latest {
		if channel == ChannelFrame || channel == ChannelState {
			continue
		}
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}
		c.enqueue(initialEnvelope(channel, entry.Data, entry.TS, entry.Seq))
	}
}

func initialEnvelope(channel string, data []byte, ts time.Time, seq int64) []byte {
	envelope, _ := json.Marshal(map[string]interface{}{
		"channel":     channel,
		"data":        json.RawMessage(data),
		"ts":          ts.Format(time.RFC3339Nano),
		"channel_seq": seq,
		"initial":     true,
	})
	return envelope
}

func (c *Client) enqueue(msg []byte) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Coalesce queued messages into one WebSocket frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Printf("[gateway] ws client %s disconnected", c.id)
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg []byte) {
	var base struct {
		Type string `json:"type"`
		Ping int64  `json:"ping"`
	}
	if json.Unmarshal(msg, &base) != nil {
		return
	}

	switch {
	case base.Type == "SUBSCRIBE":
		var sub subscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			SendError(c, "", "invalid SUBSCRIBE: "+err.Error())
			return
		}
		c.subMu.Lock()
		c.channels = make(map[string]bool, len(sub.Channels))
		for _, ch := range sub.Channels {
			c.channels[ch] = true
		}
		c.subMu.Unlock()
		log.Printf("[gateway] client %s subscribed: %v", c.id, sub.Channels)

	case IsControl(base.Type):
		var cm ControlMsg
		if err := json.Unmarshal(msg, &cm); err != nil {
			SendError(c, "", "invalid control message: "+err.Error())
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		res := c.hub.Control(ctx, cm)
		cancel()
		SendJSON(c, res)

	case base.Ping > 0:
		SendJSON(c, map[string]interface{}{
			"type":      "pong",
			"ping":      base.Ping,
			"server_ts": time.Now().UnixMilli(),
		})

	default:
		SendError(c, "", "unknown message type: "+base.Type)
	}
}

// SendJSON marshals v and queues it for the client without blocking.
func SendJSON(c *Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[gateway] marshal reply: %v", err)
		return
	}
	c.enqueue(data)
}

// SendError queues an error reply.
func SendError(c *Client, reqID, msg string) {
	SendJSON(c, map[string]string{"type": "error", "req_id": reqID, "error": msg})
}
