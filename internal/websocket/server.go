// Package websocket serves STOMP 1.2 over WebSocket for trade chat rooms.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3/frame"

	"github.com/johndosdos/tradechat/internal/apperror"
	"github.com/johndosdos/tradechat/internal/auth"
	"github.com/johndosdos/tradechat/internal/chat"
	"github.com/johndosdos/tradechat/internal/logging"
	"github.com/johndosdos/tradechat/internal/model"
)

var errHandshakeRead = errors.New("no CONNECT frame received")

const (
	defaultHandshakeTimeout = 10 * time.Second
	readLimit               = 64 << 10
)

// RoomAuthorizer guards subscriptions.
type RoomAuthorizer interface {
	AssertParticipant(ctx context.Context, roomID, memberID int64) (chat.Room, error)
}

// MessageSender stores a message and then publishes it.
type MessageSender interface {
	Send(ctx context.Context, p auth.Principal, roomID int64, content string, pub chat.Publisher) (chat.Message, error)
}

type Options struct {
	// OriginPatterns limits browser origins. Empty accepts any origin; the
	// socket is authenticated by the CONNECT frame, never by cookies.
	OriginPatterns   []string
	HandshakeTimeout time.Duration
	MessageRequests  int
	MessageWindow    time.Duration
}

// Server upgrades /ws and runs one STOMP session per connection.
//
// The principal is bound once at CONNECT. A token that expires or a member
// that is removed afterwards does not end an open session; the client
// keeps it until it disconnects.
type Server struct {
	hub         *Hub
	interceptor *Interceptor
	rooms       RoomAuthorizer
	messages    MessageSender
	opts        Options
}

func NewServer(hub *Hub, interceptor *Interceptor, rooms RoomAuthorizer, messages MessageSender, opts Options) *Server {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &Server{
		hub:         hub,
		interceptor: interceptor,
		rooms:       rooms,
		messages:    messages,
		opts:        opts,
	}
}

// ServeHTTP handles the client's websocket connection upgrade.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.Ctx(ctx)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       subprotocols,
		OriginPatterns:     s.opts.OriginPatterns,
		InsecureSkipVerify: len(s.opts.OriginPatterns) == 0,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(readLimit)

	connect, principal, err := s.handshake(ctx, conn)
	if err != nil {
		s.refuse(ctx, conn, err, connect)
		return
	}

	logger = logger.With().Int64(logging.FieldMemberID, principal.MemberID).Logger()
	session := newSession(conn, s.hub, principal, logger)
	session.logger = logger.With().Str(logging.FieldSessionID, session.ID.String()).Logger()
	session.SetMessageLimiter(s.opts.MessageRequests, s.opts.MessageWindow)

	if err := s.writeNow(ctx, conn, connectedFrame(session.ID.String(), connect.Header.Get(frame.AcceptVersion))); err != nil {
		session.logger.Warn().Err(err).Msg("failed to send CONNECTED")
		conn.CloseNow()
		return
	}
	session.logger.Info().Msg("stomp session connected")

	// Run the writer in its own goroutine and block on the reader; the
	// request context is cancelled as soon as ServeHTTP returns.
	go session.WriteMessage(ctx)
	s.readLoop(ctx, session)

	s.hub.remove(session, session.roomIDs())
	close(session.send)
	<-session.done

	session.logger.Info().Msg("stomp session closed")
}

// handshake waits for the first real frame and authenticates it.
func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (*frame.Frame, auth.Principal, error) {
	hctx, cancel := context.WithTimeout(ctx, s.opts.HandshakeTimeout)
	defer cancel()

	for {
		msgType, p, err := conn.Read(hctx)
		if err != nil {
			return nil, auth.Principal{}, fmt.Errorf("%w: %w", errHandshakeRead, err)
		}
		if msgType != websocket.MessageText && msgType != websocket.MessageBinary {
			continue
		}

		f, err := decodeFrame(p)
		if err != nil {
			return nil, auth.Principal{}, fmt.Errorf("%w: %v", apperror.ErrBadRequest, err)
		}
		if f == nil {
			continue
		}

		principal, err := s.interceptor.Authenticate(ctx, f)
		return f, principal, err
	}
}

// refuse rejects the connection. No session exists at this point.
func (s *Server) refuse(ctx context.Context, conn *websocket.Conn, err error, cause *frame.Frame) {
	logger := logging.Ctx(ctx)

	if errors.Is(err, errHandshakeRead) {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Info().Msg("stomp handshake timed out")
			conn.Close(websocket.StatusPolicyViolation, "CONNECT timeout")
			return
		}
		conn.CloseNow()
		return
	}

	c := apperror.Classify(err)
	if c.Internal() {
		logger.Error().Err(err).Msg("stomp handshake failed")
	} else {
		logger.Info().Err(err).Str(logging.FieldCode, c.Code).Msg("stomp handshake refused")
	}

	_ = s.writeNow(ctx, conn, errorFrame(c.Code, c.Message, cause))
	conn.Close(websocket.StatusPolicyViolation, c.Code)
}

func (s *Server) writeNow(ctx context.Context, conn *websocket.Conn, f *frame.Frame) error {
	p, err := encodeFrame(f)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, p)
}

// readLoop reads the incoming frames until the client disconnects.
func (s *Server) readLoop(ctx context.Context, sess *Session) {
	for {
		msgType, p, err := sess.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != -1 {
				sess.logger.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		if msgType != websocket.MessageText && msgType != websocket.MessageBinary {
			continue
		}

		f, err := decodeFrame(p)
		if err != nil {
			sess.enqueue(ctx, s.errorFor(sess, apperror.ErrBadRequest, nil))
			continue
		}
		if f == nil {
			continue
		}

		if done := s.handleFrame(ctx, sess, f); done {
			return
		}
	}
}

// handleFrame reports true when the session should end.
func (s *Server) handleFrame(ctx context.Context, sess *Session, f *frame.Frame) bool {
	var err error
	switch f.Command {
	case frame.SUBSCRIBE:
		err = s.handleSubscribe(ctx, sess, f)
	case frame.UNSUBSCRIBE:
		err = s.handleUnsubscribe(sess, f)
	case frame.SEND:
		err = s.handleSend(ctx, sess, f)
	case frame.DISCONNECT:
		sess.enqueue(ctx, receiptFrame(f))
		return true
	case frame.CONNECT, frame.STOMP:
		err = fmt.Errorf("%w: session is already connected", apperror.ErrBadRequest)
	default:
		err = fmt.Errorf("%w: unsupported command %s", apperror.ErrBadRequest, f.Command)
	}

	if err != nil {
		sess.enqueue(ctx, s.errorFor(sess, err, f))
		return false
	}
	sess.enqueue(ctx, receiptFrame(f))
	return false
}

func (s *Server) handleSubscribe(ctx context.Context, sess *Session, f *frame.Frame) error {
	subID := f.Header.Get(frame.Id)
	if subID == "" {
		return fmt.Errorf("%w: SUBSCRIBE requires an id header", apperror.ErrBadRequest)
	}
	roomID, err := roomFromDestination(f.Header.Get(frame.Destination), TopicPrefix)
	if err != nil {
		return fmt.Errorf("%w: %v", apperror.ErrBadRequest, err)
	}

	if _, err := s.rooms.AssertParticipant(ctx, roomID, sess.Principal.MemberID); err != nil {
		return err
	}

	sess.subscribe(subID, roomID)
	sess.logger.Debug().Int64(logging.FieldRoomID, roomID).Str("subscription", subID).Msg("subscribed")
	return nil
}

func (s *Server) handleUnsubscribe(sess *Session, f *frame.Frame) error {
	subID := f.Header.Get(frame.Id)
	if subID == "" {
		return fmt.Errorf("%w: UNSUBSCRIBE requires an id header", apperror.ErrBadRequest)
	}
	sess.unsubscribe(subID)
	return nil
}

func (s *Server) handleSend(ctx context.Context, sess *Session, f *frame.Frame) error {
	roomID, err := roomFromDestination(f.Header.Get(frame.Destination), SendPrefix)
	if err != nil {
		return fmt.Errorf("%w: %v", apperror.ErrBadRequest, err)
	}

	if !sess.allowMessage() {
		return apperror.ErrRateLimited
	}

	// Only content is taken from the client; senderId and sendDate are
	// overwritten by the log.
	var body model.ChatMessage
	if err := json.Unmarshal(f.Body, &body); err != nil {
		return fmt.Errorf("%w: body must be JSON: %v", apperror.ErrBadRequest, err)
	}

	_, err = s.messages.Send(ctx, sess.Principal, roomID, body.Content, s.hub)
	return err
}

func (s *Server) errorFor(sess *Session, err error, cause *frame.Frame) *frame.Frame {
	c := apperror.Classify(err)
	if c.Internal() {
		sess.logger.Error().Err(err).Msg("stomp frame failed")
	} else {
		sess.logger.Debug().Err(err).Str(logging.FieldCode, c.Code).Msg("stomp frame rejected")
	}
	return errorFrame(c.Code, c.Message, cause)
}
