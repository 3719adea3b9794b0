// SPDX-License-Identifier: MPL-2.0

package comms

import (
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// EventBus publishes session events on <prefix>sessions.<session>.<type>.
type EventBus struct {
	conn   *nats.Conn
	prefix string
}

func NewEventBus(conn *nats.Conn, subjectPrefix string) *EventBus {
	return &EventBus{conn: conn, prefix: subjectPrefix}
}

func (b *EventBus) subject(sessionID, eventType string) string {
	return b.prefix + "sessions." + sessionID + "." + eventType
}

func (b *EventBus) Publish(sessionID, eventType string, payload []byte) error {
	if err := b.conn.Publish(b.subject(sessionID, eventType), payload); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	return nil
}

// Subscribe delivers every event of one session. The callback runs on the
// subscription's goroutine.
func (b *EventBus) Subscribe(sessionID string, fn func(eventType string, payload []byte)) (*nats.Subscription, error) {
	sub, err := b.conn.Subscribe(b.subject(sessionID, "*"), func(msg *nats.Msg) {
		fn(msg.Subject[strings.LastIndex(msg.Subject, ".")+1:], msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to session %s: %w", sessionID, err)
	}
	return sub, nil
}
