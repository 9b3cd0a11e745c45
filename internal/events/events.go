// Package events publishes run lifecycle notifications for external
// consumers (dashboards, chat bridges). Publishing is best-effort: a
// failed publish never fails a run.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/docsdeploy/internal/config"
	"git.home.luguber.info/inful/docsdeploy/internal/logfields"
)

// EventType enumerates run lifecycle events.
type EventType string

const (
	EventRunStarted  EventType = "run.started"
	EventRunFinished EventType = "run.finished"
	EventRunIgnored  EventType = "run.ignored"
)

// RunEvent is the JSON payload published per lifecycle transition.
type RunEvent struct {
	Type       EventType `json:"type"`
	RunID      string    `json:"run_id,omitempty"`
	Branch     string    `json:"branch,omitempty"`
	Commit     string    `json:"commit,omitempty"`
	Status     string    `json:"status,omitempty"`
	FailedStep string    `json:"failed_step,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher emits run events.
type Publisher interface {
	Publish(ctx context.Context, ev RunEvent) error
	Close()
}

// NoopPublisher drops all events (default when events are not configured).
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, RunEvent) error { return nil }
func (NoopPublisher) Close()                                  {}

// NATSPublisher publishes run events as JSON on a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to NATS using the events configuration.
func NewNATSPublisher(cfg config.EventsConfig) (*NATSPublisher, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("events are disabled")
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name("docsdeploy"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS %s: %w", cfg.URL, err)
	}
	slog.Info("NATS publisher initialized", logfields.URL(cfg.URL), slog.String("subject", cfg.Subject))
	return &NATSPublisher{conn: conn, subject: cfg.Subject}, nil
}

// Publish sends one event. The context is honored for encoding only;
// NATS publishes are fire-and-forget.
func (p *NATSPublisher) Publish(ctx context.Context, ev RunEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish run event: %w", err)
	}
	return nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}
