package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memberSet map[int64]bool

func (m memberSet) MemberExists(_ context.Context, id int64) (bool, error) {
	return m[id], nil
}

type failingMembers struct{}

func (failingMembers) MemberExists(context.Context, int64) (bool, error) {
	return false, errors.New("connection refused")
}

func TestResolver(t *testing.T) {
	codec := NewCodec(testSecret, "tradechat")
	token, err := codec.Sign(seller, time.Hour)
	require.NoError(t, err)
	claims, err := codec.Verify(token)
	require.NoError(t, err)

	t.Run("existing_member", func(t *testing.T) {
		p, err := NewResolver(memberSet{7: true}).Resolve(context.Background(), claims)
		require.NoError(t, err)
		assert.Equal(t, int64(7), p.MemberID)
		assert.Equal(t, "seller", p.Nickname)
		assert.Equal(t, claims.ExpiresAt.Time, p.ExpiresAt)
	})

	t.Run("deleted_member", func(t *testing.T) {
		_, err := NewResolver(memberSet{}).Resolve(context.Background(), claims)
		assert.ErrorIs(t, err, ErrMemberNotFound)
	})

	t.Run("store_failure", func(t *testing.T) {
		_, err := NewResolver(failingMembers{}).Resolve(context.Background(), claims)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrMemberNotFound)
	})
}

func TestAuthenticator(t *testing.T) {
	codec := NewCodec(testSecret, "tradechat")
	a := NewAuthenticator(codec, NewResolver(memberSet{7: true}))

	token, err := codec.Sign(seller, time.Hour)
	require.NoError(t, err)

	p, err := a.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.MemberID)

	_, err = a.Authenticate(context.Background(), token+"x")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPrincipalFromContext(t *testing.T) {
	t.Run("is_valid_principal", func(t *testing.T) {
		want := Principal{MemberID: 9, Nickname: "buyer"}
		got, err := PrincipalFromContext(WithPrincipal(context.Background(), want))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("wrong_type", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), principalKey, "not-a-principal")
		_, err := PrincipalFromContext(ctx)
		assert.ErrorIs(t, err, ErrNoPrincipal)
	})

	t.Run("no_context", func(t *testing.T) {
		_, err := PrincipalFromContext(context.Background())
		assert.ErrorIs(t, err, ErrNoPrincipal)
	})
}

func TestParseBearer(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi", nil},
		{"lowercase_scheme", "bearer abc", "abc", nil},
		{"empty", "", "", ErrMissingToken},
		{"basic_scheme", "Basic dXNlcjpwYXNz", "", ErrMalformedBearer},
		{"no_token", "Bearer ", "", ErrMalformedBearer},
		{"no_space", "Bearerabc", "", ErrMalformedBearer},
		{"two_tokens", "Bearer a b", "", ErrMalformedBearer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBearer(tt.header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	t.Run("header_wins_over_cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer from-header")
		r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})

		got, err := TokenFromRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "from-header", got)
	})

	t.Run("cookie_fallback", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})

		got, err := TokenFromRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "from-cookie", got)
	})

	t.Run("malformed_header_does_not_fall_back", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Token abc")
		r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})

		_, err := TokenFromRequest(r)
		assert.ErrorIs(t, err, ErrMalformedBearer)
	})

	t.Run("nothing", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		_, err := TokenFromRequest(r)
		assert.ErrorIs(t, err, ErrMissingToken)
	})
}

func TestTokenCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	SetTokenCookie(rec, "tok", time.Hour, true)
	ClearTokenCookie(rec, true)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, "tok", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, 3600, cookies[0].MaxAge)
	assert.Equal(t, -1, cookies[1].MaxAge)
}
