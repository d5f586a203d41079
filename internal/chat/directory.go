package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/johndosdos/tradechat/internal/auth"
	"github.com/johndosdos/tradechat/internal/logging"
)

// Directory owns room lifecycle and is the only access-control check for
// room contents.
type Directory struct {
	store Store
	group singleflight.Group
}

func NewDirectory(store Store) *Directory {
	return &Directory{store: store}
}

// GetOrCreate returns the room for tradeID with p as buyer, creating it on
// first use. Concurrent calls for the same parties share one lookup in this
// process; across processes the unique constraint decides and the loser
// reads the winner's row.
func (d *Directory) GetOrCreate(ctx context.Context, p auth.Principal, tradeID int64) (Room, error) {
	trade, err := d.store.GetTrade(ctx, tradeID)
	if err != nil {
		return Room{}, err
	}
	if trade.SellerID == p.MemberID {
		return Room{}, ErrSelfChat
	}

	parties := Parties{TradeID: trade.ID, SellerID: trade.SellerID, BuyerID: p.MemberID}
	key := partiesKey(parties)

	// The shared call must outlive any single caller's cancellation.
	ch := d.group.DoChan(key, func() (any, error) {
		return d.findOrCreate(context.WithoutCancel(ctx), parties)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Room{}, res.Err
		}
		return res.Val.(Room), nil
	case <-ctx.Done():
		return Room{}, ctx.Err()
	}
}

func (d *Directory) findOrCreate(ctx context.Context, parties Parties) (Room, error) {
	room, err := d.store.FindRoom(ctx, parties)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, ErrRoomNotFound) {
		return Room{}, err
	}

	room, created, err := d.store.InsertRoom(ctx, parties)
	if err != nil {
		return Room{}, err
	}
	if created {
		l := logging.Ctx(ctx)
		l.Info().
			Int64(logging.FieldRoomID, room.ID).
			Int64(logging.FieldTradeID, parties.TradeID).
			Msg("chat room created")
		return room, nil
	}

	// Lost the insert race; the winner's row is committed.
	room, err = d.store.FindRoom(ctx, parties)
	if err != nil {
		return Room{}, fmt.Errorf("internal/chat: room vanished after conflict: %w", err)
	}
	return room, nil
}

// AssertParticipant loads the room and fails with ErrForbidden unless
// memberID is its seller or buyer.
func (d *Directory) AssertParticipant(ctx context.Context, roomID, memberID int64) (Room, error) {
	room, err := d.store.GetRoom(ctx, roomID)
	if err != nil {
		return Room{}, err
	}
	if !room.IsParticipant(memberID) {
		return Room{}, ErrForbidden
	}
	return room, nil
}

// CloseRoom marks the room CLOSED. Either participant may close it.
func (d *Directory) CloseRoom(ctx context.Context, p auth.Principal, roomID int64) (Room, error) {
	return d.store.UpdateRoom(ctx, roomID, func(r Room) (Room, error) {
		if !r.IsParticipant(p.MemberID) {
			return Room{}, ErrForbidden
		}
		return r.Close(), nil
	})
}

func partiesKey(p Parties) string {
	return strconv.FormatInt(p.TradeID, 10) + ":" +
		strconv.FormatInt(p.SellerID, 10) + ":" +
		strconv.FormatInt(p.BuyerID, 10)
}
