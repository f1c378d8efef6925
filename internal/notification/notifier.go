// Package notification delivers major-event alerts to external channels
// (webhooks, Telegram, NATS) while a playback runs.
package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"hyperfireworks/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	ID      string        `json:"id"`
	Level   AlertLevel    `json:"level"`
	Title   string        `json:"title"`
	Message string        `json:"message"`
	Notice  *model.Notice `json:"notice,omitempty"`
	TS      time.Time     `json:"ts"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the process log.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// AlertFromNotice builds the alert for a fired event. The climax is
// critical, the other major event a warning.
func AlertFromNotice(n model.Notice) Alert {
	level := AlertInfo
	title := fmt.Sprintf("%s %s", n.Label, n.Event.Ticker)
	switch {
	case n.Climax:
		level = AlertCritical
		title = "Climax: " + title
	case n.Major:
		level = AlertWarning
		title = "Major: " + title
	}

	msg := fmt.Sprintf("%s by %s at %s", n.Amount, n.User, n.Event.Timestamp.UTC().Format(time.RFC3339))
	if n.Event.Type == model.EventADL {
		msg += fmt.Sprintf(" (pnl %s)", n.PnL)
	}

	nn := n
	return Alert{
		ID:      uuid.NewString(),
		Level:   level,
		Title:   title,
		Message: msg,
		Notice:  &nn,
		TS:      time.Now().UTC(),
	}
}
