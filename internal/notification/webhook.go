package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// webhookPayload flattens an alert for receivers that do not want to parse
// the nested notice.
type webhookPayload struct {
	ID        string     `json:"id"`
	Level     AlertLevel `json:"level"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Index     int        `json:"index"`
	Type      string     `json:"type,omitempty"`
	Ticker    string     `json:"ticker,omitempty"`
	Amount    float64    `json:"amount"`
	AmountFmt string     `json:"amount_fmt,omitempty"`
	Climax    bool       `json:"climax"`
	EventTime string     `json:"event_time,omitempty"`
	TS        time.Time  `json:"ts"`
}

func newWebhookPayload(a Alert) webhookPayload {
	p := webhookPayload{
		ID:      a.ID,
		Level:   a.Level,
		Title:   a.Title,
		Message: a.Message,
		Index:   -1,
		TS:      a.TS,
	}
	if n := a.Notice; n != nil {
		p.Index = n.Index
		p.Type = string(n.Event.Type)
		p.Ticker = n.Event.Ticker
		p.Amount = n.Event.Amount
		p.AmountFmt = n.Amount
		p.Climax = n.Climax
		p.EventTime = n.Event.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return p
}

// WebhookNotifier posts fired-event alerts as JSON to an HTTP endpoint.
// A 5xx reply or transport error is retried once after RetryDelay.
type WebhookNotifier struct {
	url        string
	client     *http.Client
	RetryDelay time.Duration
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:        url,
		client:     &http.Client{Timeout: 5 * time.Second},
		RetryDelay: 500 * time.Millisecond,
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(newWebhookPayload(alert))
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	retry, err := w.post(ctx, alert.ID, body)
	if err != nil && retry {
		select {
		case <-ctx.Done():
			return fmt.Errorf("webhook: %w (retry cancelled)", err)
		case <-time.After(w.RetryDelay):
		}
		_, err = w.post(ctx, alert.ID, body)
	}
	if err != nil {
		return err
	}

	log.Printf("[webhook] delivered alert %s (%s)", alert.ID, alert.Level)
	return nil
}

// post sends body once. The bool reports whether the failure is worth a retry.
func (w *WebhookNotifier) post(ctx context.Context, id string, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Alert-Id", id)

	resp, err := w.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode >= 500, fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return false, nil
}
