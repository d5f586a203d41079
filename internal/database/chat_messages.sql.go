package database

import (
	"context"
	"time"
)

// insertChatMessage never stamps a message earlier than the newest one in
// the room. Callers hold the room row lock so the max is stable.
const insertChatMessage = `
INSERT INTO chat_messages (room_id, sender_id, content, sent_at)
VALUES ($1, $2, $3, GREATEST(
    $4::timestamptz,
    COALESCE((SELECT max(sent_at) FROM chat_messages WHERE room_id = $1), $4::timestamptz)
))
RETURNING id, room_id, sender_id, content, sent_at
`

type InsertChatMessageParams struct {
	RoomID   int64
	SenderID int64
	Content  string
	SentAt   time.Time
}

func (q *Queries) InsertChatMessage(ctx context.Context, arg InsertChatMessageParams) (ChatMessage, error) {
	row := q.db.QueryRow(ctx, insertChatMessage, arg.RoomID, arg.SenderID, arg.Content, arg.SentAt)
	var i ChatMessage
	err := row.Scan(&i.ID, &i.RoomID, &i.SenderID, &i.Content, &i.SentAt)
	return i, err
}

const listChatMessages = `
SELECT id, room_id, sender_id, content, sent_at
FROM chat_messages
WHERE room_id = $1
ORDER BY sent_at ASC, id ASC
`

func (q *Queries) ListChatMessages(ctx context.Context, roomID int64) ([]ChatMessage, error) {
	rows, err := q.db.Query(ctx, listChatMessages, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ChatMessage
	for rows.Next() {
		var i ChatMessage
		if err := rows.Scan(&i.ID, &i.RoomID, &i.SenderID, &i.Content, &i.SentAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
