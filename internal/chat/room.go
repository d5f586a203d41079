// Package chat owns trade chat rooms and their message logs.
package chat

import (
	"time"
)

type Status string

const (
	StatusOngoing Status = "ONGOING"
	StatusClosed  Status = "CLOSED"
)

// Parties identifies a room: one trade, its seller and one buyer.
type Parties struct {
	TradeID  int64
	SellerID int64
	BuyerID  int64
}

type Room struct {
	ID        int64
	TradeID   int64
	SellerID  int64
	BuyerID   int64
	Status    Status
	CreatedAt time.Time
}

func (r Room) Parties() Parties {
	return Parties{TradeID: r.TradeID, SellerID: r.SellerID, BuyerID: r.BuyerID}
}

// IsParticipant reports whether memberID is the seller or the buyer.
func (r Room) IsParticipant(memberID int64) bool {
	return memberID == r.SellerID || memberID == r.BuyerID
}

// Close moves the room to CLOSED. Closing a closed room is a no-op.
func (r Room) Close() Room {
	r.Status = StatusClosed
	return r
}

func (r Room) acceptsMessages() error {
	if r.Status != StatusOngoing {
		return ErrRoomClosed
	}
	return nil
}

// Trade is the part of a trade listing chat needs.
type Trade struct {
	ID       int64
	SellerID int64
	Title    string
}

type Message struct {
	ID       int64
	RoomID   int64
	SenderID int64
	Content  string
	SentAt   time.Time
}

// NewMessage is a message before the log assigns its id and final sentAt.
type NewMessage struct {
	RoomID   int64
	SenderID int64
	Content  string
	SentAt   time.Time
}

// RoomSummary is a room as listed for one of its participants.
type RoomSummary struct {
	RoomID         int64
	TradeID        int64
	TradeTitle     string
	SellerID       int64
	SellerNickname string
	BuyerID        int64
	BuyerNickname  string
	CreatedAt      time.Time
	Status         Status
	LastActivity   time.Time
}
