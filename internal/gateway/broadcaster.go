package gateway

import (
	"strconv"
	"time"
)

// Broadcast channels.
const (
	ChannelFrame  = "frame"
	ChannelNotice = "notice"
	ChannelState  = "state"
)

// Broadcaster constructs envelope JSON and sends it to subscribed clients.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Broadcast sends data on a channel to all subscribed clients.
// The envelope is hand-built since frames go out at the tick rate; each one
// carries a global seq and a per-channel seq for client gap detection.
func (b *Broadcaster) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	b.hub.mu.Lock()
	b.hub.channelSeqs[channel]++
	channelSeq := b.hub.channelSeqs[channel]
	b.hub.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	b.hub.seq++
	seq := b.hub.seq
	rb, exists := b.hub.replayBufs[channel]
	if !exists && channel != ChannelFrame {
		rb = NewReplayBuffer(500)
		b.hub.replayBufs[channel] = rb
	}
	b.hub.mu.Unlock()

	buf := buildEnvelope(channel, data, now, seq, channelSeq)

	// Frames are superseded by the next one; only discrete messages are
	// kept for /api/missed.
	if rb != nil {
		rb.Push(channelSeq, buf)
	}

	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()
	for client := range b.hub.clients {
		if !client.wants(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
			b.hub.dropped.Add(1)
		}
	}
}

func buildEnvelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}
