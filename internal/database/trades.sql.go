package database

import "context"

const createTrade = `
INSERT INTO trades (seller_id, title)
VALUES ($1, $2)
RETURNING id, seller_id, title, created_at
`

type CreateTradeParams struct {
	SellerID int64
	Title    string
}

func (q *Queries) CreateTrade(ctx context.Context, arg CreateTradeParams) (Trade, error) {
	row := q.db.QueryRow(ctx, createTrade, arg.SellerID, arg.Title)
	var i Trade
	err := row.Scan(&i.ID, &i.SellerID, &i.Title, &i.CreatedAt)
	return i, err
}

const getTrade = `
SELECT id, seller_id, title, created_at
FROM trades
WHERE id = $1
`

func (q *Queries) GetTrade(ctx context.Context, id int64) (Trade, error) {
	row := q.db.QueryRow(ctx, getTrade, id)
	var i Trade
	err := row.Scan(&i.ID, &i.SellerID, &i.Title, &i.CreatedAt)
	return i, err
}
