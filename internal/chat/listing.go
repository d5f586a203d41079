package chat

import (
	"context"

	"github.com/johndosdos/tradechat/internal/auth"
)

// ListActiveRoomsFor returns p's ONGOING rooms, most recently active first.
// Activity is the newest message, or room creation when there is none.
func (d *Directory) ListActiveRoomsFor(ctx context.Context, p auth.Principal) ([]RoomSummary, error) {
	rooms, err := d.store.ListActiveRooms(ctx, p.MemberID)
	if err != nil {
		return nil, err
	}
	if rooms == nil {
		rooms = []RoomSummary{}
	}
	return rooms, nil
}
