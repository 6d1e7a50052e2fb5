// Package messaging delivers outbound WhatsApp messages.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Roland735/rentbot/internal/observability"
)

// MaxMedia is the number of media attachments one message may carry.
const MaxMedia = 3

// Message is one outbound message. To is a bare phone number.
type Message struct {
	To   string
	Body string
	// MediaURLs beyond MaxMedia are dropped.
	MediaURLs []string
	// ContentSID sends a provider template instead of Body.
	ContentSID       string
	ContentVariables map[string]string
}

// Receipt identifies an accepted message at the provider.
type Receipt struct {
	Provider string
	ID       string
}

// Sender delivers messages. A nil error means the provider accepted the message.
type Sender interface {
	Send(ctx context.Context, msg Message) (*Receipt, error)
}

var ErrNoRecipient = errors.New("message has no recipient")

func capMedia(urls []string) []string {
	if len(urls) > MaxMedia {
		return urls[:MaxMedia]
	}
	return urls
}

// LoggingSender logs messages instead of sending them. Used when no provider is configured.
type LoggingSender struct {
	logger *zap.Logger
}

func NewLoggingSender(logger *zap.Logger) *LoggingSender {
	return &LoggingSender{logger: logger}
}

func (s *LoggingSender) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if msg.To == "" {
		return nil, ErrNoRecipient
	}
	s.logger.Info("outbound message (logged)",
		observability.Phone(msg.To),
		zap.String("body", msg.Body),
		zap.Strings("media", capMedia(msg.MediaURLs)),
		zap.String("content_sid", msg.ContentSID))
	return &Receipt{Provider: "log"}, nil
}

// CompositeSender sends through every sender. The first receipt is returned;
// any failure fails the send.
type CompositeSender struct {
	senders []Sender
}

func NewCompositeSender(senders ...Sender) *CompositeSender {
	cs := &CompositeSender{}
	for _, s := range senders {
		cs.AddSender(s)
	}
	return cs
}

func (cs *CompositeSender) AddSender(sender Sender) {
	if sender != nil {
		cs.senders = append(cs.senders, sender)
	}
}

func (cs *CompositeSender) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if len(cs.senders) == 0 {
		return nil, fmt.Errorf("no senders configured in CompositeSender")
	}
	var first *Receipt
	var errs []string
	for _, s := range cs.senders {
		r, err := s.Send(ctx, msg)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if first == nil {
			first = r
		}
	}
	if len(errs) > 0 {
		return first, fmt.Errorf("composite send failed: [ %s ]", strings.Join(errs, "; "))
	}
	return first, nil
}

// InstrumentedSender counts sends by result.
type InstrumentedSender struct {
	next    Sender
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewInstrumentedSender(next Sender, metrics *observability.Metrics, logger *zap.Logger) *InstrumentedSender {
	return &InstrumentedSender{next: next, metrics: metrics, logger: logger}
}

func (s *InstrumentedSender) Send(ctx context.Context, msg Message) (*Receipt, error) {
	r, err := s.next.Send(ctx, msg)
	if err != nil {
		s.metrics.MessagesSent.WithLabelValues("failed").Inc()
		s.logger.Warn("outbound message failed", observability.Phone(msg.To), zap.Error(err))
		return r, err
	}
	s.metrics.MessagesSent.WithLabelValues("sent").Inc()
	return r, nil
}
