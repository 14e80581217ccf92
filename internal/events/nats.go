// Package events publishes broken link events to NATS JetStream for
// downstream processing (for example filing issues against the tutorial
// repository). Publishing is optional: when no NATS URL is configured the
// harness runs without a publisher.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/siteqa/internal/linkcheck"
)

const defaultSubject = "siteqa.links.broken"

var _ linkcheck.EventPublisher = (*NATSPublisher)(nil)

// NATSPublisher forwards BrokenLinkEvents over JetStream.
type NATSPublisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewNATSPublisher connects to the given NATS URL. subject may be empty, in
// which case the default subject is used.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	if url == "" {
		return nil, fmt.Errorf("NATS URL is required")
	}
	if subject == "" {
		subject = defaultSubject
	}

	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	slog.Info("NATS publisher initialized", "url", url, "subject", subject)

	return &NATSPublisher{conn: conn, js: js, subject: subject}, nil
}

// PublishBrokenLink publishes one event. Safe for concurrent use.
func (p *NATSPublisher) PublishBrokenLink(ctx context.Context, ev *linkcheck.BrokenLinkEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal broken link event: %w", err)
	}
	if _, err := p.js.Publish(ctx, p.subject, data); err != nil {
		return fmt.Errorf("publish broken link event: %w", err)
	}
	slog.Debug("Published broken link event", "url", ev.URL, "status", ev.Status, "run_id", ev.RunID)
	return nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}
