package chat

import "errors"

var (
	ErrTradeNotFound  = errors.New("trade not found")
	ErrRoomNotFound   = errors.New("chat room not found")
	ErrForbidden      = errors.New("not a participant of this chat room")
	ErrRoomClosed     = errors.New("chat room is closed")
	ErrSelfChat       = errors.New("cannot open a chat room on your own trade")
	ErrEmptyContent   = errors.New("message content is empty")
	ErrContentTooLong = errors.New("message content is too long")
)
