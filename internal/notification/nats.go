package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix is prepended to the lower-cased alert level.
const SubjectPrefix = "fireworks.alerts."

// NATSNotifier publishes alerts to fireworks.alerts.<level>.
type NATSNotifier struct {
	nc *nats.Conn
}

// NewNATSNotifier connects to url. The connection reconnects on its own.
func NewNATSNotifier(url string) (*NATSNotifier, error) {
	nc, err := nats.Connect(url,
		nats.Name("hyperfireworks"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Printf("[nats] reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	log.Printf("[nats] connected to %s", nc.ConnectedUrl())
	return &NATSNotifier{nc: nc}, nil
}

// Subject returns the subject an alert of the given level is published on.
func Subject(level AlertLevel) string {
	return SubjectPrefix + strings.ToLower(string(level))
}

func (n *NATSNotifier) Send(ctx context.Context, alert Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("nats: marshal: %w", err)
	}
	msg := nats.NewMsg(Subject(alert.Level))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, alert.ID)
	if err := n.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats: publish: %w", err)
	}
	return nil
}

// Conn exposes the connection for health checks.
func (n *NATSNotifier) Conn() *nats.Conn { return n.nc }

// Close drains pending publishes and closes the connection.
func (n *NATSNotifier) Close() error {
	return n.nc.Drain()
}
