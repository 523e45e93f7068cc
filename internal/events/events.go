// Package events publishes project lifecycle events to JetStream so
// downstream consumers (billing, search indexing, webhook fan-out) can
// react without polling the directory.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const StreamName = "ECHOBOARD_PROJECTS"

// Event types.
const (
	TypeProjectCreated = "created"
	TypeProjectUpdated = "updated"
	TypeProjectDeleted = "deleted"
)

// Event is a project lifecycle notification.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ProjectID string    `json:"project_id"`
	AccountID string    `json:"account_id,omitempty"`
	At        time.Time `json:"at"`
}

// NewEvent builds an event with a fresh id and timestamp.
func NewEvent(eventType, projectID, accountID string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		ProjectID: projectID,
		AccountID: accountID,
		At:        time.Now().UTC(),
	}
}

// Client wraps the NATS connection and JetStream.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// Connect establishes a connection to NATS and initializes JetStream.
func Connect(url string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return &Client{conn: nc, js: js}, nil
}

// EnsureStream creates or updates the project events stream.
func (c *Client) EnsureStream(ctx context.Context) error {
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "echoboard project lifecycle events",
		Subjects:    []string{"projects.>"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Replicas:    1,
		Discard:     jetstream.DiscardOld,
	})
	if err != nil {
		return fmt.Errorf("create projects stream: %w", err)
	}
	slog.Info("JetStream stream ready", "name", StreamName)
	return nil
}

// IsConnected reports whether the NATS connection is up.
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

// JetStream returns the JetStream context.
func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Close closes the NATS connection.
func (c *Client) Close() {
	c.conn.Close()
}

// Publisher publishes lifecycle events to JetStream.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// Publish sends an event. Publishing is best effort from the caller's point
// of view; the directory write it describes has already committed.
func (p *Publisher) Publish(ctx context.Context, event *Event) error {
	subject := "projects." + event.Type

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ack, err := p.js.Publish(ctx, subject, data,
		jetstream.WithMsgID(event.ID),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	slog.Debug("event published",
		"event_id", event.ID,
		"type", event.Type,
		"project_id", event.ProjectID,
		"stream", ack.Stream,
		"seq", ack.Sequence,
	)
	return nil
}
