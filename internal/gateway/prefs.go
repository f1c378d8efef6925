package gateway

import (
	"context"
	"encoding/json"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const prefsRedisKey = "fireworks:prefs"

// Preferences are playback settings that survive a restart.
type Preferences struct {
	Speed float64 `json:"speed"`
}

// PrefStore persists Preferences in Redis. A nil client makes it a no-op.
type PrefStore struct {
	rdb *goredis.Client
}

// NewPrefStore creates a PrefStore backed by rdb.
func NewPrefStore(rdb *goredis.Client) *PrefStore {
	return &PrefStore{rdb: rdb}
}

// Load restores preferences from Redis. Returns false if none were stored.
func (ps *PrefStore) Load(ctx context.Context) (Preferences, bool) {
	var p Preferences
	if ps.rdb == nil {
		return p, false
	}
	data, err := ps.rdb.Get(ctx, prefsRedisKey).Result()
	if err != nil {
		if err != goredis.Nil {
			log.Printf("[prefs] WARNING: load failed: %v", err)
		}
		return p, false
	}
	if json.Unmarshal([]byte(data), &p) != nil {
		return p, false
	}
	log.Printf("[prefs] restored preferences from Redis: speed=%v", p.Speed)
	return p, true
}

// Save persists p (fire-and-forget; the session stays the source of truth).
func (ps *PrefStore) Save(ctx context.Context, p Preferences) {
	if ps.rdb == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := ps.rdb.Set(cctx, prefsRedisKey, data, 0).Err(); err != nil {
		log.Printf("[prefs] WARNING: failed to persist preferences to Redis: %v", err)
	}
}
