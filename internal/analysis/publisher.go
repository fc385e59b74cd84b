// Package analysis hands completed raw events to the downstream
// analysis collaborator over NATS. The hand-off is at-least-once and
// advisory: the canonical event already exists when a message is
// published, and a publish failure is reported to the caller for
// logging, never for rollback.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// ProcessRequest is the message published per raw event.
type ProcessRequest struct {
	EventID     string    `json:"event_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// Publisher publishes process requests to a NATS subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// Connect dials the NATS server and returns a Publisher on the given
// subject.
func Connect(url, subject string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("devsignal"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Publisher{conn: conn, subject: subject}, nil
}

// NewPublisher wraps an existing connection. Used by tests.
func NewPublisher(conn *nats.Conn, subject string) *Publisher {
	return &Publisher{conn: conn, subject: subject}
}

// ProcessRawEvent publishes a process request for the event.
func (p *Publisher) ProcessRawEvent(ctx context.Context, eventID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(ProcessRequest{EventID: eventID, RequestedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal process request: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish process request: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// Noop is the hand-off used when analysis is disabled. It accepts every
// event and does nothing.
type Noop struct{}

// ProcessRawEvent implements the hand-off without side effects.
func (Noop) ProcessRawEvent(ctx context.Context, eventID string) error {
	return nil
}
