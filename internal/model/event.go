package model

import "github.com/google/uuid"

// RoomEvent carries a stored message over the fan-out bus.
type RoomEvent struct {
	RoomID    int64       `json:"roomId"`
	MessageID int64       `json:"messageId"`
	Origin    uuid.UUID   `json:"origin"`
	Message   ChatMessage `json:"message"`
}
