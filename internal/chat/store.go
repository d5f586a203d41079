package chat

import "context"

// Store is the durable side of chat. Implementations return the package's
// sentinel errors for misses.
type Store interface {
	GetTrade(ctx context.Context, tradeID int64) (Trade, error)

	FindRoom(ctx context.Context, p Parties) (Room, error)
	// InsertRoom reports created=false when a room with the same parties
	// already exists; the returned Room is then zero.
	InsertRoom(ctx context.Context, p Parties) (room Room, created bool, err error)
	GetRoom(ctx context.Context, roomID int64) (Room, error)
	// UpdateRoom applies fn to the room while holding its lock.
	UpdateRoom(ctx context.Context, roomID int64, fn func(Room) (Room, error)) (Room, error)

	// AppendMessage runs guard against the locked room, then inserts m with
	// a sentAt no earlier than the room's newest message.
	AppendMessage(ctx context.Context, m NewMessage, guard func(Room) error) (Message, error)
	ListMessages(ctx context.Context, roomID int64) ([]Message, error)

	ListActiveRooms(ctx context.Context, memberID int64) ([]RoomSummary, error)
}
