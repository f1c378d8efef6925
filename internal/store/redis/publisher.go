// Package redis publishes playback output (fired-event notices and state
// snapshots) to Redis for external dashboards and consumers.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"hyperfireworks/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// Keys and channels written by the publisher.
const (
	NoticeStream   = "fireworks:notices"
	MajorList      = "fireworks:majors"
	StateKey       = "fireworks:state:latest"
	NoticeChannel  = "pub:fireworks:notice"
	StateChannel   = "pub:fireworks:state"
	noticeMaxLen   = 5000
	majorListLen   = 100
	stateLatestTTL = 30 * time.Minute
)

// Config configures the Redis publisher.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes notices and state snapshots to Redis.
type Publisher struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks and the
// gateway's control router.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a Publisher and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client}, nil
}

// PublishNotice appends the notice to the notice stream and publishes it.
// Major events are also kept in a short list for dashboards.
func (p *Publisher) PublishNotice(ctx context.Context, n model.Notice) error {
	data := string(n.JSON())

	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: NoticeStream,
		MaxLen: noticeMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"index": strconv.Itoa(n.Index),
			"data":  data,
		},
	})
	if n.Major {
		pipe.LPush(ctx, MajorList, data)
		pipe.LTrim(ctx, MajorList, 0, majorListLen-1)
	}
	pipe.Publish(ctx, NoticeChannel, data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("notice #%d pipeline: %w", n.Index, err)
	}
	return nil
}

// PublishStats stores the state snapshot under the latest key and publishes it.
func (p *Publisher) PublishStats(ctx context.Context, st model.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	pipe := p.client.Pipeline()
	pipe.Set(ctx, StateKey, data, stateLatestTTL)
	pipe.Publish(ctx, StateChannel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("state pipeline: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
