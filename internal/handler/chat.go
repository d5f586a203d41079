package handler

import (
	"context"
	"net/http"

	"github.com/johndosdos/tradechat/internal/auth"
	"github.com/johndosdos/tradechat/internal/chat"
	"github.com/johndosdos/tradechat/internal/logging"
	"github.com/johndosdos/tradechat/internal/model"
	"github.com/johndosdos/tradechat/internal/response"
)

type RoomService interface {
	GetOrCreate(ctx context.Context, p auth.Principal, tradeID int64) (chat.Room, error)
	CloseRoom(ctx context.Context, p auth.Principal, roomID int64) (chat.Room, error)
	ListActiveRoomsFor(ctx context.Context, p auth.Principal) ([]chat.RoomSummary, error)
}

type HistoryReader interface {
	History(ctx context.Context, p auth.Principal, roomID int64) ([]chat.Message, error)
}

// CreateRoom handles POST /chat/rooms/{tradeId}. The caller is the buyer;
// repeating the call returns the same room.
func CreateRoom(rooms RoomService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		p, err := auth.PrincipalFromContext(ctx)
		if err != nil {
			writeError(w, r, err)
			return
		}

		tradeID, err := pathID(r, "tradeId")
		if err != nil {
			writeError(w, r, err)
			return
		}

		room, err := rooms.GetOrCreate(ctx, p, tradeID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		l := logging.Ctx(ctx)
		l.Info().
			Int64(logging.FieldTradeID, tradeID).
			Int64(logging.FieldRoomID, room.ID).
			Msg("chat room resolved")

		response.OK(w, r, model.RoomID{RoomID: room.ID})
	}
}

// ListMessages handles GET /chat/rooms/{roomId}/messages.
func ListMessages(messages HistoryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		p, err := auth.PrincipalFromContext(ctx)
		if err != nil {
			writeError(w, r, err)
			return
		}

		roomID, err := pathID(r, "roomId")
		if err != nil {
			writeError(w, r, err)
			return
		}

		msgs, err := messages.History(ctx, p, roomID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		response.OK(w, r, model.NewHistory(msgs))
	}
}

// ListMyRooms handles GET /chat/rooms/mine.
func ListMyRooms(rooms RoomService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		p, err := auth.PrincipalFromContext(ctx)
		if err != nil {
			writeError(w, r, err)
			return
		}

		summaries, err := rooms.ListActiveRoomsFor(ctx, p)
		if err != nil {
			writeError(w, r, err)
			return
		}

		response.OK(w, r, model.NewRoomSummaries(summaries))
	}
}

// CloseRoom handles PATCH /chat/rooms/{roomId}/close.
func CloseRoom(rooms RoomService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		p, err := auth.PrincipalFromContext(ctx)
		if err != nil {
			writeError(w, r, err)
			return
		}

		roomID, err := pathID(r, "roomId")
		if err != nil {
			writeError(w, r, err)
			return
		}

		room, err := rooms.CloseRoom(ctx, p, roomID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		response.OK(w, r, model.NewRoom(room))
	}
}
