package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Roland735/rentbot/internal/observability"
)

const (
	mockMessageTTL  = 5 * time.Minute
	mockMessageKeep = 20
)

// StoredMessage is what RedisSender records.
type StoredMessage struct {
	ID         string            `json:"id"`
	To         string            `json:"to"`
	Body       string            `json:"body"`
	MediaURLs  []string          `json:"media_urls,omitempty"`
	ContentSID string            `json:"content_sid,omitempty"`
	Variables  map[string]string `json:"content_variables,omitempty"`
	SentAt     time.Time         `json:"sent_at"`
}

// RedisSender stores messages in Redis instead of sending them, so tests and
// the service API can read back what the bot said.
type RedisSender struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisSender(client *redis.Client, logger *zap.Logger) *RedisSender {
	return &RedisSender{client: client, logger: logger}
}

func mockKey(phone string) string {
	return fmt.Sprintf("mockmsg:%s", phone)
}

func (s *RedisSender) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if msg.To == "" {
		return nil, ErrNoRecipient
	}
	stored := StoredMessage{
		ID:         uuid.NewString(),
		To:         msg.To,
		Body:       msg.Body,
		MediaURLs:  capMedia(msg.MediaURLs),
		ContentSID: msg.ContentSID,
		Variables:  msg.ContentVariables,
		SentAt:     time.Now().UTC(),
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mock message: %w", err)
	}
	key := mockKey(msg.To)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, mockMessageKeep-1)
	pipe.Expire(ctx, key, mockMessageTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to store mock message in Redis key '%s': %w", key, err)
	}
	s.logger.Debug("mock message stored", zap.String("key", key), observability.Phone(msg.To))
	return &Receipt{Provider: "redis", ID: stored.ID}, nil
}

// RecentMessages returns up to n messages sent to phone, newest first.
func RecentMessages(ctx context.Context, client *redis.Client, phone string, n int) ([]StoredMessage, error) {
	if n <= 0 {
		n = 1
	}
	raw, err := client.LRange(ctx, mockKey(phone), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read mock messages for %s: %w", phone, err)
	}
	out := make([]StoredMessage, 0, len(raw))
	for _, r := range raw {
		var m StoredMessage
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("corrupt mock message: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}
