package database

import "context"

const createMember = `
INSERT INTO members (email, nickname, hashed_password)
VALUES ($1, $2, $3)
RETURNING id, email, nickname, hashed_password, created_at
`

type CreateMemberParams struct {
	Email          string
	Nickname       string
	HashedPassword string
}

func (q *Queries) CreateMember(ctx context.Context, arg CreateMemberParams) (Member, error) {
	row := q.db.QueryRow(ctx, createMember, arg.Email, arg.Nickname, arg.HashedPassword)
	var i Member
	err := row.Scan(&i.ID, &i.Email, &i.Nickname, &i.HashedPassword, &i.CreatedAt)
	return i, err
}

const getMember = `
SELECT id, email, nickname, hashed_password, created_at
FROM members
WHERE id = $1
`

func (q *Queries) GetMember(ctx context.Context, id int64) (Member, error) {
	row := q.db.QueryRow(ctx, getMember, id)
	var i Member
	err := row.Scan(&i.ID, &i.Email, &i.Nickname, &i.HashedPassword, &i.CreatedAt)
	return i, err
}

const getMemberByEmail = `
SELECT id, email, nickname, hashed_password, created_at
FROM members
WHERE email = $1
`

func (q *Queries) GetMemberByEmail(ctx context.Context, email string) (Member, error) {
	row := q.db.QueryRow(ctx, getMemberByEmail, email)
	var i Member
	err := row.Scan(&i.ID, &i.Email, &i.Nickname, &i.HashedPassword, &i.CreatedAt)
	return i, err
}

const memberExists = `
SELECT EXISTS (SELECT 1 FROM members WHERE id = $1)
`

func (q *Queries) MemberExists(ctx context.Context, id int64) (bool, error) {
	row := q.db.QueryRow(ctx, memberExists, id)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}
