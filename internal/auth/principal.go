package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrMemberNotFound = errors.New("member not found")
	ErrNoPrincipal    = errors.New("no principal in context")
)

// Principal is the authenticated caller of a request or STOMP session.
type Principal struct {
	MemberID  int64
	Email     string
	Nickname  string
	ExpiresAt time.Time
}

// MemberChecker reports whether a member id still exists.
type MemberChecker interface {
	MemberExists(ctx context.Context, memberID int64) (bool, error)
}

// Resolver re-checks the member id of verified claims. Display fields are
// trusted as of issuance.
type Resolver struct {
	members MemberChecker
}

func NewResolver(members MemberChecker) *Resolver {
	return &Resolver{members: members}
}

func (r *Resolver) Resolve(ctx context.Context, c Claims) (Principal, error) {
	ok, err := r.members.MemberExists(ctx, c.MemberID)
	if err != nil {
		return Principal{}, fmt.Errorf("internal/auth: member lookup failed: %w", err)
	}
	if !ok {
		return Principal{}, fmt.Errorf("internal/auth: member %d: %w", c.MemberID, ErrMemberNotFound)
	}

	p := Principal{
		MemberID: c.MemberID,
		Email:    c.Email,
		Nickname: c.Nickname,
	}
	if c.ExpiresAt != nil {
		p.ExpiresAt = c.ExpiresAt.Time
	}
	return p, nil
}

// Authenticator verifies a raw token and resolves it in one step. Both the
// HTTP gate and the STOMP handshake go through it.
type Authenticator struct {
	codec    *Codec
	resolver *Resolver
}

func NewAuthenticator(codec *Codec, resolver *Resolver) *Authenticator {
	return &Authenticator{codec: codec, resolver: resolver}
}

func (a *Authenticator) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := a.codec.Verify(token)
	if err != nil {
		return Principal{}, err
	}
	return a.resolver.Resolve(ctx, claims)
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal hands the gate's principal to the next handler.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok || p.MemberID <= 0 {
		return Principal{}, ErrNoPrincipal
	}
	return p, nil
}
