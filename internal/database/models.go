package database

import "time"

type Member struct {
	ID             int64
	Email          string
	Nickname       string
	HashedPassword string
	CreatedAt      time.Time
}

type Trade struct {
	ID        int64
	SellerID  int64
	Title     string
	CreatedAt time.Time
}

type ChatRoom struct {
	ID        int64
	TradeID   int64
	SellerID  int64
	BuyerID   int64
	Status    string
	CreatedAt time.Time
}

type ChatMessage struct {
	ID       int64
	RoomID   int64
	SenderID int64
	Content  string
	SentAt   time.Time
}
