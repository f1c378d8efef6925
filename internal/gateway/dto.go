package gateway

import (
	"encoding/json"

	"hyperfireworks/internal/model"
)

// MajorEventsOut is the REST response type for /api/events/major.
type MajorEventsOut struct {
	Liquidation *model.Notice `json:"largest_liquidation,omitempty"`
	ADL         *model.Notice `json:"largest_adl,omitempty"`
	ClimaxIndex int           `json:"climax_index"`
}

// MissedOut is the REST response type for /api/missed.
type MissedOut struct {
	Channel    string            `json:"channel"`
	CurrentSeq int64             `json:"current_seq"`
	OldestSeq  int64             `json:"oldest_seq"`
	Messages   []json.RawMessage `json:"messages"`
}

// HealthOut is the REST response type for /health.
type HealthOut struct {
	Status      string `json:"status"`
	Redis       bool   `json:"redis"`
	WSClients   int    `json:"ws_clients"`
	Events      int    `json:"events"`
	Playing     bool   `json:"playing"`
	Complete    bool   `json:"complete"`
	UptimeSec   int64  `json:"uptime_sec"`
	ControlAuth bool   `json:"control_auth"`
	TS          string `json:"ts"`
}
