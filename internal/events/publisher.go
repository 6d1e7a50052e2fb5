package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subjects published by the bot.
const (
	SubjectListingPublished       = "rentbot.listing.published"
	SubjectPaymentCompleted       = "rentbot.payment.completed"
	SubjectModerationTicketOpened = "rentbot.moderation.ticket_opened"
)

// Publisher emits domain events. Publishing is best effort; callers log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close()
}

// NATSPublisher publishes JSON-encoded events to NATS.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("rentbot"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event for %s: %w", subject, err)
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}

// LogPublisher writes events to the log. Used when NATS_URL is not configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, subject string, data interface{}) error {
	p.logger.Info("event", zap.String("subject", subject), zap.Any("data", data))
	return nil
}

func (p *LogPublisher) Close() {}

// New returns a NATS publisher when url is set, falling back to logging on connect failure.
func New(url string, logger *zap.Logger) Publisher {
	if url == "" {
		return NewLogPublisher(logger)
	}
	p, err := NewNATSPublisher(url)
	if err != nil {
		logger.Warn("NATS unavailable, events will only be logged", zap.Error(err))
		return NewLogPublisher(logger)
	}
	logger.Info("Connected to NATS", zap.String("url", url))
	return p
}
