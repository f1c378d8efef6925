package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple playback from concrete storage and transport
// implementations (JSON files, SQLite, Redis, NATS).

// EventSource delivers the whole raw event log once at startup.
type EventSource interface {
	// ReadEvents returns every raw record in storage order.
	ReadEvents(ctx context.Context) ([]RawEvent, error)
}

// EventWriter persists a prepared, validated event log.
type EventWriter interface {
	// WriteEvents stores events in a single batch, replacing previous content.
	WriteEvents(ctx context.Context, events []Event) error

	// Close releases underlying resources.
	Close() error
}

// NoticePublisher forwards fired-event notices to an external channel.
type NoticePublisher interface {
	// PublishNotice delivers a notice. Implementations must not block for long.
	PublishNotice(ctx context.Context, n Notice) error
}

// StatsPublisher stores the latest statistics snapshot for external readers.
type StatsPublisher interface {
	PublishStats(ctx context.Context, s State) error
}
