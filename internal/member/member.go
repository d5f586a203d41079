// Package member stores accounts. Chat and auth only ever need a member's
// id, nickname and whether it still exists.
package member

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/johndosdos/tradechat/internal/database"
)

var (
	ErrNotFound   = errors.New("member not found")
	ErrEmailTaken = errors.New("email already registered")
)

const uniqueViolation = "23505"

type Member struct {
	ID             int64
	Email          string
	Nickname       string
	HashedPassword string
	CreatedAt      time.Time
}

type NewMember struct {
	Email          string
	Nickname       string
	HashedPassword string
}

// Store is the member collaborator used by signup, login and the token
// resolver.
type Store interface {
	CreateMember(ctx context.Context, m NewMember) (Member, error)
	GetMemberByEmail(ctx context.Context, email string) (Member, error)
	GetMember(ctx context.Context, id int64) (Member, error)
	MemberExists(ctx context.Context, id int64) (bool, error)
}

// PostgresStore implements Store over database.Queries.
type PostgresStore struct {
	q *database.Queries
}

func NewPostgresStore(db database.DBTX) *PostgresStore {
	return &PostgresStore{q: database.New(db)}
}

func (s *PostgresStore) CreateMember(ctx context.Context, m NewMember) (Member, error) {
	row, err := s.q.CreateMember(ctx, database.CreateMemberParams{
		Email:          NormalizeEmail(m.Email),
		Nickname:       m.Nickname,
		HashedPassword: m.HashedPassword,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Member{}, ErrEmailTaken
		}
		return Member{}, fmt.Errorf("internal/member: failed to create member: %w", err)
	}
	return fromRow(row), nil
}

func (s *PostgresStore) GetMemberByEmail(ctx context.Context, email string) (Member, error) {
	row, err := s.q.GetMemberByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return Member{}, wrapLookup(err)
	}
	return fromRow(row), nil
}

func (s *PostgresStore) GetMember(ctx context.Context, id int64) (Member, error) {
	row, err := s.q.GetMember(ctx, id)
	if err != nil {
		return Member{}, wrapLookup(err)
	}
	return fromRow(row), nil
}

func (s *PostgresStore) MemberExists(ctx context.Context, id int64) (bool, error) {
	ok, err := s.q.MemberExists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("internal/member: failed to check member: %w", err)
	}
	return ok, nil
}

// NormalizeEmail lowercases and trims so lookups match signup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func wrapLookup(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("internal/member: failed to load member: %w", err)
}

func fromRow(row database.Member) Member {
	return Member{
		ID:             row.ID,
		Email:          row.Email,
		Nickname:       row.Nickname,
		HashedPassword: row.HashedPassword,
		CreatedAt:      row.CreatedAt,
	}
}
