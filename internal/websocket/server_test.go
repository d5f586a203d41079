package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/tradechat/internal/auth"
	"github.com/johndosdos/tradechat/internal/chat"
	"github.com/johndosdos/tradechat/internal/member"
	"github.com/johndosdos/tradechat/internal/model"
	"github.com/johndosdos/tradechat/internal/testutil"
	"github.com/johndosdos/tradechat/internal/trade"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var (
	seller   = auth.Identity{MemberID: 7, Email: "seller@test.com", Nickname: "seller"}
	buyer    = auth.Identity{MemberID: 9, Email: "buyer@test.com", Nickname: "buyer"}
	outsider = auth.Identity{MemberID: 11, Email: "outsider@test.com", Nickname: "outsider"}
)

type fixture struct {
	store *testutil.MemStore
	codec *auth.Codec
	dir   *chat.Directory
	log   *chat.MessageLog
	hub   *Hub
	srv   *httptest.Server
	room  chat.Room
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	store := testutil.NewMemStore()
	for _, id := range []auth.Identity{seller, buyer, outsider} {
		store.AddMember(member.Member{ID: id.MemberID, Email: id.Email, Nickname: id.Nickname})
	}
	store.AddTrade(trade.Trade{ID: 42, SellerID: seller.MemberID, Title: "Neon tetra x10"})

	codec := auth.NewCodec(testSecret, "tradechat-test")
	authn := auth.NewAuthenticator(codec, auth.NewResolver(store))

	dir := chat.NewDirectory(store)
	log := chat.NewMessageLog(store, dir)
	hub := NewHub(nil)

	room, err := dir.GetOrCreate(context.Background(), auth.Principal{MemberID: buyer.MemberID}, 42)
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(hub, NewInterceptor(authn), dir, log, opts))
	t.Cleanup(srv.Close)

	return &fixture{store: store, codec: codec, dir: dir, log: log, hub: hub, srv: srv, room: room}
}

func (fx *fixture) token(t *testing.T, id auth.Identity) string {
	t.Helper()
	tok, err := fx.codec.Sign(id, time.Hour)
	require.NoError(t, err)
	return tok
}

type stompClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (fx *fixture) dial(t *testing.T) *stompClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(fx.srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{Subprotocols: []string{"v12.stomp"}})
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })

	return &stompClient{t: t, conn: conn}
}

// connect dials and completes the handshake as id.
func (fx *fixture) connect(t *testing.T, id auth.Identity) *stompClient {
	t.Helper()
	c := fx.dial(t)
	c.write(frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.2",
		frame.Host, "localhost",
		"Authorization", "Bearer "+fx.token(t, id),
	))
	f := c.read()
	require.Equal(t, frame.CONNECTED, f.Command, "body: %s", f.Body)
	assert.Equal(t, "1.2", f.Header.Get(frame.Version))
	return c
}

func (c *stompClient) write(f *frame.Frame) {
	c.t.Helper()
	p, err := encodeFrame(f)
	require.NoError(c.t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(c.t, c.conn.Write(ctx, websocket.MessageText, p))
}

func (c *stompClient) readErr() (*frame.Frame, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		_, p, err := c.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		f, err := decodeFrame(p)
		if err != nil {
			return nil, err
		}
		if f != nil {
			return f, nil
		}
	}
}

func (c *stompClient) read() *frame.Frame {
	c.t.Helper()
	f, err := c.readErr()
	require.NoError(c.t, err)
	return f
}

func (c *stompClient) subscribe(subID string, roomID int64, receipt string) {
	c.t.Helper()
	c.write(frame.New(frame.SUBSCRIBE,
		frame.Id, subID,
		frame.Destination, TopicFor(roomID),
		headerReceipt, receipt,
	))
}

func (c *stompClient) send(roomID int64, content, receipt string) {
	c.t.Helper()
	body, err := json.Marshal(model.ChatMessage{Content: content})
	require.NoError(c.t, err)
	c.write(withBody(frame.New(frame.SEND,
		frame.Destination, SendDestination(roomID),
		headerReceipt, receipt,
	), "application/json", body))
}

func requireReceipt(t *testing.T, f *frame.Frame, receipt string) {
	t.Helper()
	require.Equal(t, frame.RECEIPT, f.Command, "%s: %s", f.Header.Get(frame.Message), f.Body)
	assert.Equal(t, receipt, f.Header.Get(headerReceiptID))
}

func requireError(t *testing.T, f *frame.Frame, code string) {
	t.Helper()
	require.Equal(t, frame.ERROR, f.Command)
	assert.Equal(t, code, f.Header.Get(frame.Message))
}

func TestHandshakeRefused(t *testing.T) {
	fx := newFixture(t, Options{})

	expired, err := fx.codec.Sign(buyer, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name    string
		headers []string
		code    string
	}{
		{"missing_token", nil, "MISSING_TOKEN"},
		{"malformed_bearer", []string{"Authorization", "Token abc"}, "MALFORMED_BEARER"},
		{"garbage_token", []string{"Authorization", "Bearer not.a.jwt"}, "INVALID_TOKEN"},
		{"expired_token", []string{"Authorization", "Bearer " + expired}, "INVALID_TOKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := fx.dial(t)
			c.write(frame.New(frame.CONNECT, append([]string{frame.AcceptVersion, "1.2"}, tt.headers...)...))

			requireError(t, c.read(), tt.code)

			_, err := c.readErr()
			require.Error(t, err)
			assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
		})
	}

	t.Run("deleted_member", func(t *testing.T) {
		gone := auth.Identity{MemberID: 99, Email: "gone@test.com", Nickname: "gone"}
		fx.store.AddMember(member.Member{ID: gone.MemberID, Email: gone.Email, Nickname: gone.Nickname})
		tok := fx.token(t, gone)
		fx.store.DeleteMember(gone.MemberID)

		c := fx.dial(t)
		c.write(frame.New(frame.CONNECT, frame.AcceptVersion, "1.2", "Authorization", "Bearer "+tok))
		requireError(t, c.read(), "MEMBER_NOT_FOUND")
	})

	t.Run("first_frame_not_connect", func(t *testing.T) {
		c := fx.dial(t)
		c.subscribe("sub-0", fx.room.ID, "r")
		requireError(t, c.read(), "BAD_REQUEST")
	})
}

func TestHandshakeTimeout(t *testing.T) {
	fx := newFixture(t, Options{HandshakeTimeout: 100 * time.Millisecond})
	c := fx.dial(t)

	_, err := c.readErr()
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestSubscribeAuthorization(t *testing.T) {
	fx := newFixture(t, Options{})

	t.Run("outsider_is_forbidden_and_stays_connected", func(t *testing.T) {
		c := fx.connect(t, outsider)

		c.subscribe("sub-0", fx.room.ID, "r-1")
		f := c.read()
		requireError(t, f, "FORBIDDEN")
		assert.Equal(t, "r-1", f.Header.Get(headerReceiptID))
		assert.Equal(t, 0, fx.hub.Subscribers(fx.room.ID))

		c.write(frame.New(frame.UNSUBSCRIBE, frame.Id, "sub-0", headerReceipt, "r-2"))
		requireReceipt(t, c.read(), "r-2")
	})

	t.Run("unknown_room", func(t *testing.T) {
		c := fx.connect(t, buyer)
		c.subscribe("sub-0", 999999, "r-1")
		requireError(t, c.read(), "ROOM_NOT_FOUND")
	})

	t.Run("bad_destination", func(t *testing.T) {
		c := fx.connect(t, buyer)
		c.write(frame.New(frame.SUBSCRIBE, frame.Id, "sub-0", frame.Destination, "/topic/other"))
		requireError(t, c.read(), "BAD_REQUEST")
	})

	t.Run("missing_id", func(t *testing.T) {
		c := fx.connect(t, buyer)
		c.write(frame.New(frame.SUBSCRIBE, frame.Destination, TopicFor(fx.room.ID)))
		requireError(t, c.read(), "BAD_REQUEST")
	})
}

func TestSendBroadcastsToParticipants(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()

	b := fx.connect(t, buyer)
	s := fx.connect(t, seller)

	b.subscribe("sub-0", fx.room.ID, "b-sub")
	requireReceipt(t, b.read(), "b-sub")
	s.subscribe("sub-0", fx.room.ID, "s-sub")
	requireReceipt(t, s.read(), "s-sub")
	require.Equal(t, 2, fx.hub.Subscribers(fx.room.ID))

	// senderId in the body is ignored.
	body := []byte(`{"senderId":7,"content":"Is it still available?"}`)
	b.write(withBody(frame.New(frame.SEND,
		frame.Destination, SendDestination(fx.room.ID),
		headerReceipt, "b-send",
	), "application/json", body))

	for _, c := range []*stompClient{b, s} {
		f := c.read()
		require.Equal(t, frame.MESSAGE, f.Command)
		assert.Equal(t, TopicFor(fx.room.ID), f.Header.Get(frame.Destination))
		assert.Equal(t, "sub-0", f.Header.Get(frame.Subscription))

		var msg model.ChatMessage
		require.NoError(t, json.Unmarshal(f.Body, &msg))
		assert.Equal(t, buyer.MemberID, msg.SenderID)
		assert.Equal(t, "Is it still available?", msg.Content)
		assert.False(t, msg.SendDate.IsZero())
	}
	requireReceipt(t, b.read(), "b-send")

	history, err := fx.log.History(ctx, auth.Principal{MemberID: seller.MemberID}, fx.room.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, buyer.MemberID, history[0].SenderID)
}

func TestSendBroadcastsTextAsTyped(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()

	s := fx.connect(t, seller)
	s.subscribe("sub-0", fx.room.ID, "s-sub")
	requireReceipt(t, s.read(), "s-sub")

	b := fx.connect(t, buyer)

	for i, content := range []string{"Tom & Jerry", "I <3 tetras", "don't", `he said "ok"`} {
		receipt := fmt.Sprintf("r-%d", i)
		b.send(fx.room.ID, content, receipt)
		requireReceipt(t, b.read(), receipt)

		f := s.read()
		require.Equal(t, frame.MESSAGE, f.Command)
		var msg model.ChatMessage
		require.NoError(t, json.Unmarshal(f.Body, &msg))
		assert.Equal(t, content, msg.Content)

		history, err := fx.log.History(ctx, auth.Principal{MemberID: seller.MemberID}, fx.room.ID)
		require.NoError(t, err)
		require.Len(t, history, i+1)
		assert.Equal(t, content, history[i].Content)
	}
}

func TestSendRejects(t *testing.T) {
	fx := newFixture(t, Options{MessageRequests: 2, MessageWindow: time.Hour})
	ctx := context.Background()

	t.Run("outsider", func(t *testing.T) {
		c := fx.connect(t, outsider)
		c.send(fx.room.ID, "let me in", "r")
		requireError(t, c.read(), "FORBIDDEN")
	})

	t.Run("empty_content", func(t *testing.T) {
		c := fx.connect(t, buyer)
		c.send(fx.room.ID, "   ", "r")
		requireError(t, c.read(), "BAD_REQUEST")
	})

	t.Run("not_json", func(t *testing.T) {
		c := fx.connect(t, buyer)
		c.write(withBody(frame.New(frame.SEND, frame.Destination, SendDestination(fx.room.ID)), "text/plain", []byte("hi")))
		requireError(t, c.read(), "BAD_REQUEST")
	})

	t.Run("rate_limited", func(t *testing.T) {
		c := fx.connect(t, seller)
		c.send(fx.room.ID, "one", "r-1")
		requireReceipt(t, c.read(), "r-1")
		c.send(fx.room.ID, "two", "r-2")
		requireReceipt(t, c.read(), "r-2")
		c.send(fx.room.ID, "three", "r-3")
		requireError(t, c.read(), "RATE_LIMITED")
	})

	t.Run("closed_room", func(t *testing.T) {
		_, err := fx.dir.CloseRoom(ctx, auth.Principal{MemberID: seller.MemberID}, fx.room.ID)
		require.NoError(t, err)

		c := fx.connect(t, buyer)
		c.send(fx.room.ID, "hello?", "r")
		requireError(t, c.read(), "ROOM_CLOSED")
	})
}

func TestDisconnect(t *testing.T) {
	fx := newFixture(t, Options{})

	c := fx.connect(t, buyer)
	c.subscribe("sub-0", fx.room.ID, "r-1")
	requireReceipt(t, c.read(), "r-1")
	require.Equal(t, 1, fx.hub.Subscribers(fx.room.ID))

	c.write(frame.New(frame.DISCONNECT, headerReceipt, "bye"))
	requireReceipt(t, c.read(), "bye")

	_, err := c.readErr()
	require.Error(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))

	assert.Eventually(t, func() bool { return fx.hub.Subscribers(fx.room.ID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestDroppedConnectionLeavesRoom(t *testing.T) {
	fx := newFixture(t, Options{})

	c := fx.connect(t, buyer)
	c.subscribe("sub-0", fx.room.ID, "r-1")
	requireReceipt(t, c.read(), "r-1")

	c.conn.CloseNow()
	assert.Eventually(t, func() bool { return fx.hub.Subscribers(fx.room.ID) == 0 }, 2*time.Second, 10*time.Millisecond)
}
