package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"smartspray.io/notifier/internal/notification"
	"smartspray.io/notifier/internal/pkg/logger"
)

// DefaultRedisChannel is the shared Pub/Sub channel for cross-instance pushes.
const DefaultRedisChannel = "smartspray:notifications:live"

const redisPublishTimeout = 2 * time.Second

// envelope is the payload stored on the Redis channel.
type envelope struct {
	UserID       string                     `json:"user_id"`
	Type         string                     `json:"type"`
	Notification *notification.Notification `json:"notification,omitempty"`
	SentAt       time.Time                  `json:"sent_at"`
}

func encodeEnvelope(userID string, msg Message) ([]byte, error) {
	return json.Marshal(envelope{
		UserID:       userID,
		Type:         msg.Type,
		Notification: msg.Notification,
		SentAt:       msg.SentAt,
	})
}

func decodeEnvelope(payload string) (string, Message, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return "", Message{}, err
	}
	if env.UserID == "" || env.Type == "" {
		return "", Message{}, errors.New("envelope missing user_id or type")
	}
	return env.UserID, Message{Type: env.Type, Notification: env.Notification, SentAt: env.SentAt}, nil
}

// RedisBridge relays pushes through Redis Pub/Sub so sessions connected to
// any instance receive them.
type RedisBridge struct {
	client  *redis.Client
	channel string
	hub     *Hub
}

// NewRedisBridge wires hub to channel on client.
func NewRedisBridge(client *redis.Client, channel string, hub *Hub) *RedisBridge {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisBridge{client: client, channel: channel, hub: hub}
}

// Publish implements Relay.
func (b *RedisBridge) Publish(userID string, msg Message) error {
	body, err := encodeEnvelope(userID, msg)
	if err != nil {
		return fmt.Errorf("encode live envelope: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisPublishTimeout)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel, body).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", b.channel, err)
	}
	return nil
}

// Run subscribes to the channel and replays messages into the local hub
// until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}
	logger.Info("live redis bridge subscribed", zap.String("channel", b.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			userID, m, err := decodeEnvelope(msg.Payload)
			if err != nil {
				logger.Warn("live redis message discarded",
					zap.String("channel", b.channel), zap.Error(err))
				continue
			}
			b.hub.Publish(userID, m)
		}
	}
}
