package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/johndosdos/tradechat/internal/logging"
	"github.com/johndosdos/tradechat/internal/model"
)

// JetStreamBus fans room events out through a JetStream stream. Each
// process reads with its own ephemeral consumer starting at new messages.
type JetStreamBus struct {
	js     jetstream.JetStream
	stream jetstream.Stream

	mu      sync.Mutex
	consume jetstream.ConsumeContext
}

func NewJetStreamBus(ctx context.Context, conn *nats.Conn) (*JetStreamBus, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream instance: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectAllRooms},
		MaxAge:   24 * time.Hour,
		MaxBytes: 1 << 30, // 1GB max storage
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}

	return &JetStreamBus{js: js, stream: stream}, nil
}

func (b *JetStreamBus) Publish(ctx context.Context, ev model.RoomEvent) error {
	p, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("could not encode payload to JSON: %w", err)
	}

	subject := RoomSubject(ev.RoomID)
	if _, err := b.js.Publish(ctx, subject, p, jetstream.WithMsgID(uuid.NewString())); err != nil {
		return fmt.Errorf("failed to publish to stream [%s]: %w", subject, err)
	}
	return nil
}

func (b *JetStreamBus) Subscribe(ctx context.Context, handle func(model.RoomEvent)) error {
	consumer, err := b.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		AckPolicy:         jetstream.AckExplicitPolicy,
		InactiveThreshold: time.Minute,
	})
	if err != nil {
		return fmt.Errorf("failed to create or update consumer: %w", err)
	}

	logger := logging.L().With().Str("bus", "jetstream").Logger()

	consumeHandler := func(msg jetstream.Msg) {
		var ev model.RoomEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			_ = msg.Term()
			logger.Warn().Err(err).Msg("could not decode payload")
			return
		}

		_ = msg.Ack()
		handle(ev)
	}

	optErrHandler := jetstream.ConsumeErrHandler(func(cc jetstream.ConsumeContext, err error) {
		if errors.Is(err, jetstream.ErrNoHeartbeat) {
			logger.Warn().Err(err).Msg("consumer heartbeat missed")
			return
		}
		logger.Error().Err(err).Msg("consumer error")
	})

	consumeCtx, err := consumer.Consume(consumeHandler, optErrHandler)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	b.mu.Lock()
	b.consume = consumeCtx
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		consumeCtx.Drain()
	}()

	return nil
}

// Close stops consuming. The NATS connection belongs to the caller.
func (b *JetStreamBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consume != nil {
		b.consume.Stop()
		b.consume = nil
	}
	return nil
}
