package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/johndosdos/tradechat/internal/logging"
	"github.com/johndosdos/tradechat/internal/model"
)

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// RedisBus fans room events out through Redis pub/sub.
type RedisBus struct {
	client *redis.Client

	mu     sync.Mutex
	pubsub *redis.PubSub
}

func NewRedisBus(ctx context.Context, cfg RedisConfig) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisBus{client: client}, nil
}

func (b *RedisBus) Publish(ctx context.Context, ev model.RoomEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("could not encode payload to JSON: %w", err)
	}

	channel := RedisChannel(ev.RoomID)
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel [%s]: %w", channel, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, handle func(model.RoomEvent)) error {
	ps := b.client.PSubscribe(ctx, RedisPattern)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("failed to subscribe to [%s]: %w", RedisPattern, err)
	}

	b.mu.Lock()
	b.pubsub = ps
	b.mu.Unlock()

	logger := logging.L().With().Str("bus", "redis").Logger()

	go func() {
		ch := ps.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev model.RoomEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Warn().Err(err).Str("channel", msg.Channel).Msg("could not decode payload")
					continue
				}
				handle(ev)
			case <-ctx.Done():
				_ = ps.Close()
				return
			}
		}
	}()

	return nil
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.pubsub != nil {
		_ = b.pubsub.Close()
		b.pubsub = nil
	}
	b.mu.Unlock()
	return b.client.Close()
}
