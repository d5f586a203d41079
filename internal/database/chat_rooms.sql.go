package database

import (
	"context"
	"time"
)

const chatRoomColumns = `id, trade_id, seller_id, buyer_id, status, created_at`

func scanChatRoom(row interface{ Scan(...any) error }) (ChatRoom, error) {
	var i ChatRoom
	err := row.Scan(&i.ID, &i.TradeID, &i.SellerID, &i.BuyerID, &i.Status, &i.CreatedAt)
	return i, err
}

type ChatRoomPartiesParams struct {
	TradeID  int64
	SellerID int64
	BuyerID  int64
}

const getChatRoomByParties = `
SELECT ` + chatRoomColumns + `
FROM chat_rooms
WHERE trade_id = $1 AND seller_id = $2 AND buyer_id = $3
`

func (q *Queries) GetChatRoomByParties(ctx context.Context, arg ChatRoomPartiesParams) (ChatRoom, error) {
	return scanChatRoom(q.db.QueryRow(ctx, getChatRoomByParties, arg.TradeID, arg.SellerID, arg.BuyerID))
}

// insertChatRoom returns no row when another transaction already holds
// the same parties; callers read the winner back.
const insertChatRoom = `
INSERT INTO chat_rooms (trade_id, seller_id, buyer_id, status)
VALUES ($1, $2, $3, 'ONGOING')
ON CONFLICT ON CONSTRAINT chat_rooms_parties_key DO NOTHING
RETURNING ` + chatRoomColumns

func (q *Queries) InsertChatRoom(ctx context.Context, arg ChatRoomPartiesParams) (ChatRoom, error) {
	return scanChatRoom(q.db.QueryRow(ctx, insertChatRoom, arg.TradeID, arg.SellerID, arg.BuyerID))
}

const getChatRoom = `
SELECT ` + chatRoomColumns + `
FROM chat_rooms
WHERE id = $1
`

func (q *Queries) GetChatRoom(ctx context.Context, id int64) (ChatRoom, error) {
	return scanChatRoom(q.db.QueryRow(ctx, getChatRoom, id))
}

const getChatRoomForUpdate = getChatRoom + `FOR UPDATE`

func (q *Queries) GetChatRoomForUpdate(ctx context.Context, id int64) (ChatRoom, error) {
	return scanChatRoom(q.db.QueryRow(ctx, getChatRoomForUpdate, id))
}

const updateChatRoomStatus = `
UPDATE chat_rooms
SET status = $2
WHERE id = $1
RETURNING ` + chatRoomColumns

func (q *Queries) UpdateChatRoomStatus(ctx context.Context, id int64, status string) (ChatRoom, error) {
	return scanChatRoom(q.db.QueryRow(ctx, updateChatRoomStatus, id, status))
}

const listActiveChatRoomsForMember = `
SELECT r.id, r.trade_id, t.title, r.seller_id, s.nickname, r.buyer_id, b.nickname,
       r.status, r.created_at,
       COALESCE(m.last_sent_at, r.created_at) AS last_activity
FROM chat_rooms r
JOIN trades t ON t.id = r.trade_id
JOIN members s ON s.id = r.seller_id
JOIN members b ON b.id = r.buyer_id
LEFT JOIN LATERAL (
    SELECT max(sent_at) AS last_sent_at FROM chat_messages WHERE room_id = r.id
) m ON true
WHERE r.status = 'ONGOING' AND (r.seller_id = $1 OR r.buyer_id = $1)
ORDER BY last_activity DESC, r.id DESC
`

type ListActiveChatRoomsRow struct {
	ID             int64
	TradeID        int64
	TradeTitle     string
	SellerID       int64
	SellerNickname string
	BuyerID        int64
	BuyerNickname  string
	Status         string
	CreatedAt      time.Time
	LastActivity   time.Time
}

func (q *Queries) ListActiveChatRoomsForMember(ctx context.Context, memberID int64) ([]ListActiveChatRoomsRow, error) {
	rows, err := q.db.Query(ctx, listActiveChatRoomsForMember, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ListActiveChatRoomsRow
	for rows.Next() {
		var i ListActiveChatRoomsRow
		if err := rows.Scan(
			&i.ID, &i.TradeID, &i.TradeTitle,
			&i.SellerID, &i.SellerNickname,
			&i.BuyerID, &i.BuyerNickname,
			&i.Status, &i.CreatedAt, &i.LastActivity,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
