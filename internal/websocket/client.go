package websocket

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/johndosdos/tradechat/internal/auth"
)

const (
	sendQueueSize = 64
	writeTimeout  = 10 * time.Second
)

// Session is one authenticated STOMP connection. Its principal is fixed at
// CONNECT for the life of the connection.
type Session struct {
	ID        uuid.UUID
	Principal auth.Principal

	conn   *websocket.Conn
	hub    *Hub
	send   chan []byte
	done   chan struct{} // closed when the writer stops
	logger zerolog.Logger

	mu   sync.Mutex
	subs map[string]int64 // subscription id -> room id

	messageLim *rate.Limiter
}

func newSession(conn *websocket.Conn, hub *Hub, p auth.Principal, logger zerolog.Logger) *Session {
	return &Session{
		ID:        uuid.New(),
		Principal: p,
		conn:      conn,
		hub:       hub,
		send:      make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
		logger:    logger,
		subs:      make(map[string]int64),
	}
}

func (s *Session) SetMessageLimiter(requests int, window time.Duration) {
	if requests <= 0 || window <= 0 {
		s.messageLim = nil
		return
	}
	s.messageLim = rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests)
}

func (s *Session) allowMessage() bool {
	return s.messageLim == nil || s.messageLim.Allow()
}

// subscribe registers subID for roomID. Reusing an id moves it.
func (s *Session) subscribe(subID string, roomID int64) {
	s.mu.Lock()
	prev, had := s.subs[subID]
	s.subs[subID] = roomID
	stillOnPrev := had && prev != roomID && s.watchingLocked(prev)
	s.mu.Unlock()

	if had && prev != roomID && !stillOnPrev {
		s.hub.unsubscribe(s, prev)
	}
	s.hub.subscribe(s, roomID)
}

func (s *Session) unsubscribe(subID string) bool {
	s.mu.Lock()
	roomID, ok := s.subs[subID]
	delete(s.subs, subID)
	watching := ok && s.watchingLocked(roomID)
	s.mu.Unlock()

	if ok && !watching {
		s.hub.unsubscribe(s, roomID)
	}
	return ok
}

func (s *Session) watchingLocked(roomID int64) bool {
	for _, id := range s.subs {
		if id == roomID {
			return true
		}
	}
	return false
}

func (s *Session) roomIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.subs))
	for _, id := range s.subs {
		ids = append(ids, id)
	}
	return ids
}

// deliverMessage queues one MESSAGE frame per subscription on roomID.
// It never blocks: a full queue drops the frame.
func (s *Session) deliverMessage(roomID, messageID int64, body []byte) {
	s.mu.Lock()
	var subIDs []string
	for subID, id := range s.subs {
		if id == roomID {
			subIDs = append(subIDs, subID)
		}
	}
	s.mu.Unlock()

	for _, subID := range subIDs {
		f := frame.New(frame.MESSAGE,
			frame.Destination, TopicFor(roomID),
			frame.Subscription, subID,
			frame.MessageId, strconv.FormatInt(messageID, 10),
		)
		p, err := encodeFrame(withBody(f, "application/json", body))
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to encode MESSAGE frame")
			continue
		}

		select {
		case s.send <- p:
		default:
			s.logger.Warn().Int64("message_id", messageID).Msg("skipping message payload - channel full or client slow")
		}
	}
}

// enqueue queues a control frame from the session's own reader. It waits
// for room in the queue instead of dropping.
func (s *Session) enqueue(ctx context.Context, f *frame.Frame) {
	if f == nil {
		return
	}
	p, err := encodeFrame(f)
	if err != nil {
		s.logger.Error().Err(err).Str("command", f.Command).Msg("failed to encode frame")
		return
	}

	select {
	case s.send <- p:
	case <-s.done:
	case <-ctx.Done():
	}
}

// WriteMessage writes queued frames to the socket in order until the queue
// is closed or ctx ends.
func (s *Session) WriteMessage(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case p, ok := <-s.send:
			// We don't want to continue processing when the channel has
			// already been closed.
			if !ok {
				s.conn.Close(websocket.StatusNormalClosure, "")
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := s.conn.Write(writeCtx, websocket.MessageText, p)
			cancel()
			if err != nil {
				s.logger.Warn().Err(err).Msg("failed to write frame")
				s.conn.CloseNow()
				return
			}

		case <-ctx.Done():
			s.conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
	}
}
