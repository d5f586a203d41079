package websocket

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/tradechat/internal/auth"
	"github.com/johndosdos/tradechat/internal/chat"
	"github.com/johndosdos/tradechat/internal/model"
)

// testSession has no socket; frames are read straight off its queue.
func testSession(h *Hub, memberID int64) *Session {
	return newSession(nil, h, auth.Principal{MemberID: memberID}, zerolog.Nop())
}

func nextFrame(t *testing.T, s *Session) *frame.Frame {
	t.Helper()
	select {
	case p := <-s.send:
		f, err := decodeFrame(p)
		require.NoError(t, err)
		require.NotNil(t, f)
		return f
	default:
		t.Fatal("no frame queued")
		return nil
	}
}

func message(id, roomID, sender int64, content string) chat.Message {
	return chat.Message{ID: id, RoomID: roomID, SenderID: sender, Content: content, SentAt: time.Unix(1700000000+id, 0).UTC()}
}

func TestHubDeliversToRoomSubscribers(t *testing.T) {
	ctx := context.Background()
	h := NewHub(nil)

	seller := testSession(h, 7)
	buyer := testSession(h, 9)
	other := testSession(h, 11)

	seller.subscribe("sub-0", 1)
	buyer.subscribe("sub-0", 1)
	other.subscribe("sub-0", 2)
	assert.Equal(t, 2, h.Subscribers(1))

	h.Publish(ctx, 1, message(100, 1, 9, "hello"))

	for _, s := range []*Session{seller, buyer} {
		f := nextFrame(t, s)
		assert.Equal(t, frame.MESSAGE, f.Command)
		assert.Equal(t, TopicFor(1), f.Header.Get(frame.Destination))
		assert.Equal(t, "sub-0", f.Header.Get(frame.Subscription))
		assert.Equal(t, "100", f.Header.Get(frame.MessageId))

		var body model.ChatMessage
		require.NoError(t, json.Unmarshal(f.Body, &body))
		assert.Equal(t, int64(9), body.SenderID)
		assert.Equal(t, "hello", body.Content)
	}
	assert.Empty(t, other.send)
}

func TestHubKeepsPublishOrder(t *testing.T) {
	ctx := context.Background()
	h := NewHub(nil)
	s := testSession(h, 7)
	s.subscribe("a", 1)

	for i := int64(1); i <= 10; i++ {
		h.Publish(ctx, 1, message(i, 1, 7, "m"))
	}
	for i := 1; i <= 10; i++ {
		f := nextFrame(t, s)
		assert.Equal(t, strconv.Itoa(i), f.Header.Get(frame.MessageId))
	}
}

func TestHubDropsWhenQueueFull(t *testing.T) {
	ctx := context.Background()
	h := NewHub(nil)
	slow := testSession(h, 7)
	fast := testSession(h, 9)
	slow.subscribe("a", 1)
	fast.subscribe("a", 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(1); i <= sendQueueSize+10; i++ {
			h.Publish(ctx, 1, message(i, 1, 7, "m"))
			// fast keeps up
			<-fast.send
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a full session")
	}
	assert.Len(t, slow.send, sendQueueSize)
}

func TestSessionSubscriptions(t *testing.T) {
	ctx := context.Background()
	h := NewHub(nil)
	s := testSession(h, 7)

	s.subscribe("a", 1)
	s.subscribe("b", 1)
	h.Publish(ctx, 1, message(1, 1, 7, "twice"))
	assert.Len(t, s.send, 2)
	<-s.send
	<-s.send

	assert.True(t, s.unsubscribe("a"))
	assert.Equal(t, 1, h.Subscribers(1), "still watching through b")

	// Reusing an id moves the subscription.
	s.subscribe("b", 2)
	assert.Equal(t, 0, h.Subscribers(1))
	assert.Equal(t, 1, h.Subscribers(2))

	assert.False(t, s.unsubscribe("missing"))

	h.remove(s, s.roomIDs())
	assert.Equal(t, 0, h.Subscribers(2))
	h.Publish(ctx, 2, message(2, 2, 7, "gone"))
	assert.Empty(t, s.send)
}

func TestSessionMessageLimiter(t *testing.T) {
	s := testSession(NewHub(nil), 7)
	assert.True(t, s.allowMessage())

	s.SetMessageLimiter(2, time.Minute)
	assert.True(t, s.allowMessage())
	assert.True(t, s.allowMessage())
	assert.False(t, s.allowMessage())

	s.SetMessageLimiter(0, 0)
	assert.True(t, s.allowMessage())
}
