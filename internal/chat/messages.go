package chat

import (
	"context"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/johndosdos/tradechat/internal/auth"
)

const MaxContentLength = 2000

type sanitizer interface {
	Sanitize(s string) string
}

// Publisher fans a stored message out to live subscribers of its room.
type Publisher interface {
	Publish(ctx context.Context, roomID int64, m Message)
}

// MessageLog is the append-only, per-room ordered message store.
type MessageLog struct {
	store     Store
	dir       *Directory
	sanitizer sanitizer
	now       func() time.Time
}

func NewMessageLog(store Store, dir *Directory) *MessageLog {
	return &MessageLog{
		store:     store,
		dir:       dir,
		sanitizer: bluemonday.StrictPolicy(),
		now:       time.Now,
	}
}

// Append stores content from p in roomID. The sender is always p and the
// timestamp is always the server clock.
func (l *MessageLog) Append(ctx context.Context, p auth.Principal, roomID int64, content string) (Message, error) {
	if _, err := l.dir.AssertParticipant(ctx, roomID, p.MemberID); err != nil {
		return Message{}, err
	}

	content, err := l.clean(content)
	if err != nil {
		return Message{}, err
	}

	// The store re-checks under the room lock so a concurrent close wins.
	guard := func(r Room) error {
		if !r.IsParticipant(p.MemberID) {
			return ErrForbidden
		}
		return r.acceptsMessages()
	}

	return l.store.AppendMessage(ctx, NewMessage{
		RoomID:   roomID,
		SenderID: p.MemberID,
		Content:  content,
		SentAt:   l.now().UTC(),
	}, guard)
}

// Send appends and only then publishes, so every broadcast message is
// already in History.
func (l *MessageLog) Send(ctx context.Context, p auth.Principal, roomID int64, content string, pub Publisher) (Message, error) {
	m, err := l.Append(ctx, p, roomID, content)
	if err != nil {
		return Message{}, err
	}
	pub.Publish(ctx, roomID, m)
	return m, nil
}

// History returns every message of roomID ordered by (sentAt, id).
func (l *MessageLog) History(ctx context.Context, p auth.Principal, roomID int64) ([]Message, error) {
	if _, err := l.dir.AssertParticipant(ctx, roomID, p.MemberID); err != nil {
		return nil, err
	}

	msgs, err := l.store.ListMessages(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

// clean strips markup tags and stores the remaining text as typed. The
// sanitizer entity-encodes what it keeps; that is undone here because
// content leaves the server as JSON, never as HTML.
func (l *MessageLog) clean(content string) (string, error) {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", ErrContentTooLong
	}

	content = strings.TrimSpace(html.UnescapeString(l.sanitizer.Sanitize(content)))
	if content == "" {
		return "", ErrEmptyContent
	}
	return content, nil
}
