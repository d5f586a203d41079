package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/johndosdos/tradechat/internal/apperror"
	"github.com/johndosdos/tradechat/internal/auth"
	"github.com/johndosdos/tradechat/internal/logging"
	"github.com/johndosdos/tradechat/internal/member"
	"github.com/johndosdos/tradechat/internal/model"
	"github.com/johndosdos/tradechat/internal/response"
)

const (
	minPasswordLen = 8
	maxNicknameLen = 30
)

// TokenSigner issues access tokens.
type TokenSigner interface {
	Sign(id auth.Identity, ttl time.Duration) (string, error)
}

type TokenOptions struct {
	AccessTTL    time.Duration
	WsTTL        time.Duration
	CookieSecure bool
}

// Signup handles POST /members/signup.
func Signup(members member.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req model.SignupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := validateSignup(&req); err != nil {
			writeError(w, r, err)
			return
		}

		// Hash password before storing to database.
		hashed, err := auth.HashPassword(req.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}

		m, err := members.CreateMember(ctx, member.NewMember{
			Email:          req.Email,
			Nickname:       req.Nickname,
			HashedPassword: hashed,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		l := logging.Ctx(ctx)
		l.Info().Int64(logging.FieldMemberID, m.ID).Msg("member signed up")

		response.Created(w, r, model.SignupResponse{MemberID: m.ID})
	}
}

func validateSignup(req *model.SignupRequest) error {
	req.Email = member.NormalizeEmail(req.Email)
	req.Nickname = strings.TrimSpace(req.Nickname)

	if _, err := mail.ParseAddress(req.Email); err != nil {
		return fmt.Errorf("%w: invalid email", apperror.ErrBadRequest)
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", apperror.ErrBadRequest, minPasswordLen)
	}
	if n := utf8.RuneCountInString(req.Nickname); n == 0 || n > maxNicknameLen {
		return fmt.Errorf("%w: nickname must be 1 to %d characters", apperror.ErrBadRequest, maxNicknameLen)
	}
	return nil
}

// Login handles POST /members/login. The token is returned in the body and
// set as the jwt cookie.
func Login(members member.Store, signer TokenSigner, opts TokenOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req model.LoginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		m, err := authenticate(ctx, members, req)
		if err != nil {
			writeError(w, r, err)
			return
		}

		token, err := signer.Sign(auth.Identity{MemberID: m.ID, Email: m.Email, Nickname: m.Nickname}, opts.AccessTTL)
		if err != nil {
			writeError(w, r, err)
			return
		}

		auth.SetTokenCookie(w, token, opts.AccessTTL, opts.CookieSecure)

		l := logging.Ctx(ctx)
		l.Info().Int64(logging.FieldMemberID, m.ID).Msg("member logged in")

		response.OK(w, r, model.TokenResponse{AccessToken: token})
	}
}

func authenticate(ctx context.Context, members member.Store, req model.LoginRequest) (member.Member, error) {
	m, err := members.GetMemberByEmail(ctx, member.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return member.Member{}, apperror.ErrInvalidCredentials
		}
		return member.Member{}, err
	}

	ok, err := auth.CheckPasswordHash(req.Password, m.HashedPassword)
	if err != nil {
		return member.Member{}, fmt.Errorf("cannot verify password, hash may be corrupted: %w", err)
	}
	if !ok {
		return member.Member{}, apperror.ErrInvalidCredentials
	}
	return m, nil
}

// Logout handles POST /members/logout. Tokens are stateless, so this only
// clears the browser cookie.
func Logout(opts TokenOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth.ClearTokenCookie(w, opts.CookieSecure)
		w.WriteHeader(http.StatusNoContent)
	}
}

// WsToken handles GET /members/ws-token: a short-lived token for the STOMP
// CONNECT frame, for clients that can't read the HttpOnly cookie.
func WsToken(signer TokenSigner, opts TokenOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := auth.PrincipalFromContext(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}

		token, err := signer.Sign(auth.Identity{MemberID: p.MemberID, Email: p.Email, Nickname: p.Nickname}, opts.WsTTL)
		if err != nil {
			writeError(w, r, err)
			return
		}

		response.OK(w, r, model.TokenResponse{AccessToken: token})
	}
}
