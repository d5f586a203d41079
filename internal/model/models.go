// Package model defines the JSON shapes that cross the wire: HTTP bodies,
// STOMP frame bodies and fan-out bus events.
package model

import (
	"time"

	"github.com/johndosdos/tradechat/internal/chat"
)

// ChatMessage is the STOMP body for a room message, both as sent by a
// client and as broadcast to subscribers. On SEND only Content is read;
// the sender and date always come from the server.
type ChatMessage struct {
	SenderID int64     `json:"senderId"`
	Content  string    `json:"content"`
	SendDate time.Time `json:"sendDate"`
}

func NewChatMessage(m chat.Message) ChatMessage {
	return ChatMessage{SenderID: m.SenderID, Content: m.Content, SendDate: m.SentAt}
}

// HistoryMessage is one entry of GET /chat/rooms/{roomId}/messages.
type HistoryMessage struct {
	SenderID int64     `json:"senderId"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sentAt"`
}

func NewHistory(msgs []chat.Message) []HistoryMessage {
	out := make([]HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, HistoryMessage{SenderID: m.SenderID, Content: m.Content, SentAt: m.SentAt})
	}
	return out
}

type RoomID struct {
	RoomID int64 `json:"roomId"`
}

type RoomSummary struct {
	RoomID         int64     `json:"roomId"`
	TradeID        int64     `json:"tradeId"`
	TradeTitle     string    `json:"tradeTitle"`
	SellerID       int64     `json:"sellerId"`
	SellerNickname string    `json:"sellerNickname"`
	BuyerID        int64     `json:"buyerId"`
	BuyerNickname  string    `json:"buyerNickname"`
	CreatedAt      time.Time `json:"createdAt"`
	Status         string    `json:"status"`
}

func NewRoomSummaries(rooms []chat.RoomSummary) []RoomSummary {
	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomSummary{
			RoomID:         r.RoomID,
			TradeID:        r.TradeID,
			TradeTitle:     r.TradeTitle,
			SellerID:       r.SellerID,
			SellerNickname: r.SellerNickname,
			BuyerID:        r.BuyerID,
			BuyerNickname:  r.BuyerNickname,
			CreatedAt:      r.CreatedAt,
			Status:         string(r.Status),
		})
	}
	return out
}

type Room struct {
	RoomID    int64     `json:"roomId"`
	TradeID   int64     `json:"tradeId"`
	SellerID  int64     `json:"sellerId"`
	BuyerID   int64     `json:"buyerId"`
	CreatedAt time.Time `json:"createdAt"`
	Status    string    `json:"status"`
}

func NewRoom(r chat.Room) Room {
	return Room{
		RoomID:    r.ID,
		TradeID:   r.TradeID,
		SellerID:  r.SellerID,
		BuyerID:   r.BuyerID,
		CreatedAt: r.CreatedAt,
		Status:    string(r.Status),
	}
}
