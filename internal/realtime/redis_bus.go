package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel every instance subscribes to.
const DefaultChannel = "campusconnect:events"

type envelope struct {
	TargetUserID uuid.UUID `json:"target_user_id"`
	Event        Event     `json:"event"`
}

// RedisBus fans events out to every instance. Publish writes to a Redis
// channel; Run receives from it and hands each event to the local Hub, so a
// user connected anywhere gets it.
type RedisBus struct {
	client  *redis.Client
	channel string
	local   *Hub
	logger  *zap.Logger
}

var _ Publisher = (*RedisBus)(nil)

// NewRedisClient parses url and pings the server before returning.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

func NewRedisBus(client *redis.Client, local *Hub, logger *zap.Logger) *RedisBus {
	return &RedisBus{
		client:  client,
		channel: DefaultChannel,
		local:   local,
		logger:  logger.Named("redis_bus"),
	}
}

func (b *RedisBus) Publish(ctx context.Context, userID uuid.UUID, event Event) error {
	data, err := encodeEnvelope(userID, event)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run subscribes and forwards until ctx is cancelled. It returns nil on
// cancellation and an error if the subscription cannot be established.
func (b *RedisBus) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return fmt.Errorf("redis subscribe: %w", err)
	}
	b.logger.Info("subscribed", zap.String("channel", b.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.dispatch(ctx, msg.Payload)
		}
	}
}

func (b *RedisBus) dispatch(ctx context.Context, payload string) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		b.logger.Warn("discarding malformed envelope", zap.Error(err))
		return
	}
	if err := b.local.Publish(ctx, env.TargetUserID, env.Event); err != nil {
		b.logger.Warn("local delivery failed",
			zap.String("user_id", env.TargetUserID.String()),
			zap.Error(err),
		)
	}
}

func encodeEnvelope(userID uuid.UUID, event Event) ([]byte, error) {
	data, err := json.Marshal(envelope{TargetUserID: userID, Event: event})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

func decodeEnvelope(payload string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.TargetUserID == uuid.Nil {
		return envelope{}, errors.New("decode envelope: missing target user")
	}
	return env, nil
}
