// Package trade is the minimal trade listing surface chat rooms hang off.
package trade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/johndosdos/tradechat/internal/database"
)

var ErrNotFound = errors.New("trade not found")

type Trade struct {
	ID        int64
	SellerID  int64
	Title     string
	CreatedAt time.Time
}

type Store interface {
	CreateTrade(ctx context.Context, sellerID int64, title string) (Trade, error)
	GetTradeByID(ctx context.Context, id int64) (Trade, error)
}

type PostgresStore struct {
	q *database.Queries
}

func NewPostgresStore(db database.DBTX) *PostgresStore {
	return &PostgresStore{q: database.New(db)}
}

func (s *PostgresStore) CreateTrade(ctx context.Context, sellerID int64, title string) (Trade, error) {
	row, err := s.q.CreateTrade(ctx, database.CreateTradeParams{SellerID: sellerID, Title: title})
	if err != nil {
		return Trade{}, fmt.Errorf("internal/trade: failed to create trade: %w", err)
	}
	return fromRow(row), nil
}

func (s *PostgresStore) GetTradeByID(ctx context.Context, id int64) (Trade, error) {
	row, err := s.q.GetTrade(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Trade{}, ErrNotFound
		}
		return Trade{}, fmt.Errorf("internal/trade: failed to load trade: %w", err)
	}
	return fromRow(row), nil
}

func fromRow(r database.Trade) Trade {
	return Trade{ID: r.ID, SellerID: r.SellerID, Title: r.Title, CreatedAt: r.CreatedAt}
}
