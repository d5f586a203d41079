package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/johndosdos/tradechat/internal/database"
)

const checkViolation = "23514"

// TxDB is a pool that can also open transactions; *pgxpool.Pool is one.
type TxDB interface {
	database.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db TxDB
	q  *database.Queries
}

func NewPostgresStore(db TxDB) *PostgresStore {
	return &PostgresStore{db: db, q: database.New(db)}
}

func (s *PostgresStore) GetTrade(ctx context.Context, tradeID int64) (Trade, error) {
	t, err := s.q.GetTrade(ctx, tradeID)
	if err != nil {
		return Trade{}, notFound(err, ErrTradeNotFound, "trade")
	}
	return Trade{ID: t.ID, SellerID: t.SellerID, Title: t.Title}, nil
}

func (s *PostgresStore) FindRoom(ctx context.Context, p Parties) (Room, error) {
	r, err := s.q.GetChatRoomByParties(ctx, partiesParams(p))
	if err != nil {
		return Room{}, notFound(err, ErrRoomNotFound, "chat room")
	}
	return roomFromRow(r), nil
}

func (s *PostgresStore) InsertRoom(ctx context.Context, p Parties) (Room, bool, error) {
	r, err := s.q.InsertChatRoom(ctx, partiesParams(p))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Room{}, false, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == checkViolation {
			return Room{}, false, ErrSelfChat
		}
		return Room{}, false, fmt.Errorf("internal/chat: failed to insert chat room: %w", err)
	}
	return roomFromRow(r), true, nil
}

func (s *PostgresStore) GetRoom(ctx context.Context, roomID int64) (Room, error) {
	r, err := s.q.GetChatRoom(ctx, roomID)
	if err != nil {
		return Room{}, notFound(err, ErrRoomNotFound, "chat room")
	}
	return roomFromRow(r), nil
}

func (s *PostgresStore) UpdateRoom(ctx context.Context, roomID int64, fn func(Room) (Room, error)) (Room, error) {
	var updated Room
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		q := s.q.WithTx(tx)

		row, err := q.GetChatRoomForUpdate(ctx, roomID)
		if err != nil {
			return notFound(err, ErrRoomNotFound, "chat room")
		}

		current := roomFromRow(row)
		next, err := fn(current)
		if err != nil {
			return err
		}
		if next.Status == current.Status {
			updated = current
			return nil
		}

		row, err = q.UpdateChatRoomStatus(ctx, roomID, string(next.Status))
		if err != nil {
			return fmt.Errorf("internal/chat: failed to update chat room: %w", err)
		}
		updated = roomFromRow(row)
		return nil
	})
	if err != nil {
		return Room{}, err
	}
	return updated, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, m NewMessage, guard func(Room) error) (Message, error) {
	var stored Message
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		q := s.q.WithTx(tx)

		// Locking the room serializes appends per room and keeps sent_at
		// monotonic.
		row, err := q.GetChatRoomForUpdate(ctx, m.RoomID)
		if err != nil {
			return notFound(err, ErrRoomNotFound, "chat room")
		}
		if err := guard(roomFromRow(row)); err != nil {
			return err
		}

		msg, err := q.InsertChatMessage(ctx, database.InsertChatMessageParams{
			RoomID:   m.RoomID,
			SenderID: m.SenderID,
			Content:  m.Content,
			SentAt:   m.SentAt,
		})
		if err != nil {
			return fmt.Errorf("internal/chat: failed to store message: %w", err)
		}
		stored = messageFromRow(msg)
		return nil
	})
	if err != nil {
		return Message{}, err
	}
	return stored, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, roomID int64) ([]Message, error) {
	rows, err := s.q.ListChatMessages(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("internal/chat: failed to load messages: %w", err)
	}

	msgs := make([]Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, messageFromRow(r))
	}
	return msgs, nil
}

func (s *PostgresStore) ListActiveRooms(ctx context.Context, memberID int64) ([]RoomSummary, error) {
	rows, err := s.q.ListActiveChatRoomsForMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("internal/chat: failed to list chat rooms: %w", err)
	}

	out := make([]RoomSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, RoomSummary{
			RoomID:         r.ID,
			TradeID:        r.TradeID,
			TradeTitle:     r.TradeTitle,
			SellerID:       r.SellerID,
			SellerNickname: r.SellerNickname,
			BuyerID:        r.BuyerID,
			BuyerNickname:  r.BuyerNickname,
			CreatedAt:      r.CreatedAt,
			Status:         Status(r.Status),
			LastActivity:   r.LastActivity,
		})
	}
	return out, nil
}

func notFound(err, sentinel error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return fmt.Errorf("internal/chat: failed to load %s: %w", what, err)
}

func partiesParams(p Parties) database.ChatRoomPartiesParams {
	return database.ChatRoomPartiesParams{TradeID: p.TradeID, SellerID: p.SellerID, BuyerID: p.BuyerID}
}

func roomFromRow(r database.ChatRoom) Room {
	return Room{
		ID:        r.ID,
		TradeID:   r.TradeID,
		SellerID:  r.SellerID,
		BuyerID:   r.BuyerID,
		Status:    Status(r.Status),
		CreatedAt: r.CreatedAt,
	}
}

func messageFromRow(r database.ChatMessage) Message {
	return Message{
		ID:       r.ID,
		RoomID:   r.RoomID,
		SenderID: r.SenderID,
		Content:  r.Content,
		SentAt:   r.SentAt,
	}
}
