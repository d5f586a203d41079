package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/johndosdos/tradechat/internal/chat"
	"github.com/johndosdos/tradechat/internal/member"
	"github.com/johndosdos/tradechat/internal/trade"
)

// MemStore is an in-memory chat.Store, member.Store and trade.Store with
// the same conflict and ordering rules as the Postgres schema.
type MemStore struct {
	mu       sync.Mutex
	members  map[int64]member.Member
	trades   map[int64]trade.Trade
	rooms    map[int64]chat.Room
	messages map[int64][]chat.Message
	nextID   int64
	err      error
}

func NewMemStore() *MemStore {
	return &MemStore{
		members:  make(map[int64]member.Member),
		trades:   make(map[int64]trade.Trade),
		rooms:    make(map[int64]chat.Room),
		messages: make(map[int64][]chat.Message),
		nextID:   1000,
	}
}

// Fail makes every subsequent call return err; nil restores normal use.
func (s *MemStore) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *MemStore) id() int64 {
	s.nextID++
	return s.nextID
}

// AddMember inserts m with its own id.
func (s *MemStore) AddMember(m member.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.members[m.ID] = m
}

func (s *MemStore) DeleteMember(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, id)
}

// AddTrade inserts t with its own id.
func (s *MemStore) AddTrade(t trade.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[t.ID] = t
}

func (s *MemStore) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// member.Store

func (s *MemStore) CreateMember(_ context.Context, m member.NewMember) (member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return member.Member{}, s.err
	}

	email := member.NormalizeEmail(m.Email)
	for _, existing := range s.members {
		if existing.Email == email {
			return member.Member{}, member.ErrEmailTaken
		}
	}

	created := member.Member{
		ID:             s.id(),
		Email:          email,
		Nickname:       m.Nickname,
		HashedPassword: m.HashedPassword,
		CreatedAt:      time.Now().UTC(),
	}
	s.members[created.ID] = created
	return created, nil
}

func (s *MemStore) GetMemberByEmail(_ context.Context, email string) (member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return member.Member{}, s.err
	}

	email = member.NormalizeEmail(email)
	for _, m := range s.members {
		if m.Email == email {
			return m, nil
		}
	}
	return member.Member{}, member.ErrNotFound
}

func (s *MemStore) GetMember(_ context.Context, id int64) (member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return member.Member{}, s.err
	}

	m, ok := s.members[id]
	if !ok {
		return member.Member{}, member.ErrNotFound
	}
	return m, nil
}

func (s *MemStore) MemberExists(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	_, ok := s.members[id]
	return ok, nil
}

// trade.Store

func (s *MemStore) CreateTrade(_ context.Context, sellerID int64, title string) (trade.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return trade.Trade{}, s.err
	}

	t := trade.Trade{ID: s.id(), SellerID: sellerID, Title: title, CreatedAt: time.Now().UTC()}
	s.trades[t.ID] = t
	return t, nil
}

func (s *MemStore) GetTradeByID(_ context.Context, id int64) (trade.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return trade.Trade{}, s.err
	}

	t, ok := s.trades[id]
	if !ok {
		return trade.Trade{}, trade.ErrNotFound
	}
	return t, nil
}

// chat.Store

func (s *MemStore) GetTrade(_ context.Context, tradeID int64) (chat.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return chat.Trade{}, s.err
	}

	t, ok := s.trades[tradeID]
	if !ok {
		return chat.Trade{}, chat.ErrTradeNotFound
	}
	return chat.Trade{ID: t.ID, SellerID: t.SellerID, Title: t.Title}, nil
}

func (s *MemStore) FindRoom(_ context.Context, p chat.Parties) (chat.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return chat.Room{}, s.err
	}

	if r, ok := s.findRoomLocked(p); ok {
		return r, nil
	}
	return chat.Room{}, chat.ErrRoomNotFound
}

func (s *MemStore) findRoomLocked(p chat.Parties) (chat.Room, bool) {
	for _, r := range s.rooms {
		if r.Parties() == p {
			return r, true
		}
	}
	return chat.Room{}, false
}

func (s *MemStore) InsertRoom(_ context.Context, p chat.Parties) (chat.Room, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return chat.Room{}, false, s.err
	}

	if p.SellerID == p.BuyerID {
		return chat.Room{}, false, chat.ErrSelfChat
	}
	if _, ok := s.findRoomLocked(p); ok {
		return chat.Room{}, false, nil
	}

	r := chat.Room{
		ID:        s.id(),
		TradeID:   p.TradeID,
		SellerID:  p.SellerID,
		BuyerID:   p.BuyerID,
		Status:    chat.StatusOngoing,
		CreatedAt: time.Now().UTC(),
	}
	s.rooms[r.ID] = r
	return r, true, nil
}

func (s *MemStore) GetRoom(_ context.Context, roomID int64) (chat.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return chat.Room{}, s.err
	}

	r, ok := s.rooms[roomID]
	if !ok {
		return chat.Room{}, chat.ErrRoomNotFound
	}
	return r, nil
}

func (s *MemStore) UpdateRoom(_ context.Context, roomID int64, fn func(chat.Room) (chat.Room, error)) (chat.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return chat.Room{}, s.err
	}

	r, ok := s.rooms[roomID]
	if !ok {
		return chat.Room{}, chat.ErrRoomNotFound
	}
	next, err := fn(r)
	if err != nil {
		return chat.Room{}, err
	}
	r.Status = next.Status
	s.rooms[roomID] = r
	return r, nil
}

func (s *MemStore) AppendMessage(_ context.Context, m chat.NewMessage, guard func(chat.Room) error) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return chat.Message{}, s.err
	}

	r, ok := s.rooms[m.RoomID]
	if !ok {
		return chat.Message{}, chat.ErrRoomNotFound
	}
	if err := guard(r); err != nil {
		return chat.Message{}, err
	}

	sentAt := m.SentAt
	if log := s.messages[m.RoomID]; len(log) > 0 {
		if last := log[len(log)-1].SentAt; last.After(sentAt) {
			sentAt = last
		}
	}

	stored := chat.Message{
		ID:       s.id(),
		RoomID:   m.RoomID,
		SenderID: m.SenderID,
		Content:  m.Content,
		SentAt:   sentAt,
	}
	s.messages[m.RoomID] = append(s.messages[m.RoomID], stored)
	return stored, nil
}

func (s *MemStore) ListMessages(_ context.Context, roomID int64) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	out := make([]chat.Message, len(s.messages[roomID]))
	copy(out, s.messages[roomID])
	return out, nil
}

func (s *MemStore) ListActiveRooms(_ context.Context, memberID int64) ([]chat.RoomSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	out := []chat.RoomSummary{}
	for _, r := range s.rooms {
		if r.Status != chat.StatusOngoing || !r.IsParticipant(memberID) {
			continue
		}

		last := r.CreatedAt
		if log := s.messages[r.ID]; len(log) > 0 {
			last = log[len(log)-1].SentAt
		}

		out = append(out, chat.RoomSummary{
			RoomID:         r.ID,
			TradeID:        r.TradeID,
			TradeTitle:     s.trades[r.TradeID].Title,
			SellerID:       r.SellerID,
			SellerNickname: s.members[r.SellerID].Nickname,
			BuyerID:        r.BuyerID,
			BuyerNickname:  s.members[r.BuyerID].Nickname,
			CreatedAt:      r.CreatedAt,
			Status:         r.Status,
			LastActivity:   last,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].RoomID > out[j].RoomID
	})
	return out, nil
}
