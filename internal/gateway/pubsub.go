package gateway

import (
	"context"
	"encoding/json"
	"log"

	goredis "github.com/go-redis/redis/v8"
)

// ControlChannel is the Redis PubSub channel for remote control commands.
const ControlChannel = "fireworks:control"

// PubSubRouter subscribes to the Redis control channel and routes each
// command through the hub, so operators can drive playback without a browser.
type PubSubRouter struct {
	hub *Hub
	rdb *goredis.Client
}

// NewPubSubRouter creates a PubSubRouter backed by the given Hub.
func NewPubSubRouter(hub *Hub, rdb *goredis.Client) *PubSubRouter {
	return &PubSubRouter{hub: hub, rdb: rdb}
}

// Run blocks until ctx is cancelled.
func (r *PubSubRouter) Run(ctx context.Context) {
	pubsub := r.rdb.Subscribe(ctx, ControlChannel)
	defer pubsub.Close()

	log.Printf("[gateway] listening for control commands on %s", ControlChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.route(ctx, []byte(msg.Payload))
		}
	}
}

func (r *PubSubRouter) route(ctx context.Context, payload []byte) {
	var cm ControlMsg
	if err := json.Unmarshal(payload, &cm); err != nil {
		log.Printf("[gateway] WARNING: bad control payload: %v", err)
		return
	}
	res := r.hub.Control(ctx, cm)
	if res.OK {
		log.Printf("[gateway] remote control %s applied", cm.Type)
	}
}
