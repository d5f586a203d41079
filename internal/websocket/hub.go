package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/johndosdos/tradechat/internal/broker"
	"github.com/johndosdos/tradechat/internal/chat"
	"github.com/johndosdos/tradechat/internal/logging"
	"github.com/johndosdos/tradechat/internal/model"
)

// Hub routes stored messages to the sessions subscribed to their room.
// Delivery is best-effort: a session whose queue is full misses the
// message and catches up through history.
type Hub struct {
	mu     sync.RWMutex
	topics map[int64]map[*Session]struct{}

	bus    broker.Bus
	origin uuid.UUID
	logger zerolog.Logger
}

// NewHub returns a Hub. With a nil bus every publish is delivered locally.
func NewHub(bus broker.Bus) *Hub {
	return &Hub{
		topics: make(map[int64]map[*Session]struct{}),
		bus:    bus,
		origin: uuid.New(),
		logger: logging.L().With().Str("component", "hub").Logger(),
	}
}

// Run feeds bus events into local delivery until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	if h.bus != nil {
		if err := h.bus.Subscribe(ctx, h.deliver); err != nil {
			return err
		}
	}

	<-ctx.Done()
	h.logger.Info().Msg("hub stopped")
	return nil
}

// Publish implements chat.Publisher. Callers publish only after the
// message is stored.
func (h *Hub) Publish(ctx context.Context, roomID int64, m chat.Message) {
	ev := model.RoomEvent{
		RoomID:    roomID,
		MessageID: m.ID,
		Origin:    h.origin,
		Message:   model.NewChatMessage(m),
	}

	if h.bus != nil {
		err := h.bus.Publish(ctx, ev)
		if err == nil {
			return
		}
		l := logging.Ctx(ctx)
		l.Warn().Err(err).Int64(logging.FieldRoomID, roomID).Msg("bus publish failed; delivering locally")
	}

	h.deliver(ev)
}

func (h *Hub) deliver(ev model.RoomEvent) {
	body, err := json.Marshal(ev.Message)
	if err != nil {
		h.logger.Error().Err(err).Msg("could not encode message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.topics[ev.RoomID] {
		s.deliverMessage(ev.RoomID, ev.MessageID, body)
	}
}

func (h *Hub) subscribe(s *Session, roomID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions, ok := h.topics[roomID]
	if !ok {
		sessions = make(map[*Session]struct{})
		h.topics[roomID] = sessions
	}
	sessions[s] = struct{}{}
}

func (h *Hub) unsubscribe(s *Session, roomID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s, roomID)
}

// remove drops s from every topic. Once it returns no delivery to s is in
// flight.
func (h *Hub) remove(s *Session, roomIDs []int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range roomIDs {
		h.removeLocked(s, id)
	}
}

func (h *Hub) removeLocked(s *Session, roomID int64) {
	sessions := h.topics[roomID]
	delete(sessions, s)
	if len(sessions) == 0 {
		delete(h.topics, roomID)
	}
}

// Subscribers reports how many sessions receive roomID's broadcasts.
func (h *Hub) Subscribers(roomID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[roomID])
}
