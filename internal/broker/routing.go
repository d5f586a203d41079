// Package broker carries room events between server processes. It is only
// used when a fan-out bus is configured.
package broker

import (
	"context"
	"strconv"

	"github.com/johndosdos/tradechat/internal/model"
)

// NATS is simpler than RabbitMQ for the project's requirements.
const (
	StreamName      = "CHAT"
	SubjectAllRooms = StreamName + ".room.*"

	RedisChannelPrefix = "chat.room."
	RedisPattern       = RedisChannelPrefix + "*"
)

func RoomSubject(roomID int64) string {
	return StreamName + ".room." + strconv.FormatInt(roomID, 10)
}

func RedisChannel(roomID int64) string {
	return RedisChannelPrefix + strconv.FormatInt(roomID, 10)
}

// Bus publishes room events and delivers every event, including this
// process's own, to the subscribed handler.
type Bus interface {
	Publish(ctx context.Context, ev model.RoomEvent) error
	Subscribe(ctx context.Context, handle func(model.RoomEvent)) error
	Close() error
}
