package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/tradechat/internal/auth"
	"github.com/johndosdos/tradechat/internal/member"
	"github.com/johndosdos/tradechat/internal/response"
	"github.com/johndosdos/tradechat/internal/testutil"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestAuthGate(t *testing.T) {
	store := testutil.NewMemStore()
	store.AddMember(member.Member{ID: 9, Email: "buyer@test.com", Nickname: "buyer"})
	store.AddMember(member.Member{ID: 13, Email: "gone@test.com", Nickname: "gone"})

	codec := auth.NewCodec(testSecret, "tradechat-test")
	gate := AuthGate(auth.NewAuthenticator(codec, auth.NewResolver(store)),
		"/members/signup", "/members/login", "/members/logout")

	sign := func(id int64, ttl time.Duration) string {
		tok, err := codec.Sign(auth.Identity{MemberID: id, Email: "x@test.com", Nickname: "x"}, ttl)
		require.NoError(t, err)
		return tok
	}
	valid := sign(9, time.Hour)
	expired := sign(9, -time.Minute)
	orphan := sign(13, time.Hour)
	store.DeleteMember(13)

	var seen auth.Principal
	h := gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		path       string
		header     string
		cookie     string
		wantStatus int
		wantCode   string
		wantMember int64
	}{
		{name: "bearer", path: "/chat/rooms", header: "Bearer " + valid, wantStatus: http.StatusNoContent, wantMember: 9},
		{name: "cookie", path: "/chat/rooms", cookie: valid, wantStatus: http.StatusNoContent, wantMember: 9},
		{name: "public_signup", path: "/members/signup", wantStatus: http.StatusNoContent},
		{name: "public_login", path: "/members/login", wantStatus: http.StatusNoContent},
		{name: "public_logout", path: "/members/logout", wantStatus: http.StatusNoContent},
		{name: "prefix_is_not_public", path: "/members/signup/extra", wantStatus: http.StatusUnauthorized, wantCode: "MISSING_TOKEN"},
		{name: "missing", path: "/chat/rooms", wantStatus: http.StatusUnauthorized, wantCode: "MISSING_TOKEN"},
		{name: "malformed", path: "/chat/rooms", header: "Token " + valid, wantStatus: http.StatusUnauthorized, wantCode: "MALFORMED_BEARER"},
		{name: "malformed_header_ignores_cookie", path: "/chat/rooms", header: "Bearer", cookie: valid, wantStatus: http.StatusUnauthorized, wantCode: "MALFORMED_BEARER"},
		{name: "expired", path: "/chat/rooms", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized, wantCode: "INVALID_TOKEN"},
		{name: "tampered", path: "/chat/rooms", header: "Bearer " + valid + "x", wantStatus: http.StatusUnauthorized, wantCode: "INVALID_TOKEN"},
		{name: "deleted_member", path: "/chat/rooms", header: "Bearer " + orphan, wantStatus: http.StatusUnauthorized, wantCode: "MEMBER_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = auth.Principal{}
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantMember, seen.MemberID)
			if tt.wantCode == "" {
				return
			}

			var body response.Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.wantCode, body.Error.Code)
		})
	}

	t.Run("store_failure_is_internal", func(t *testing.T) {
		store.Fail(errors.New("connection refused"))
		defer store.Fail(nil)

		req := httptest.NewRequest(http.MethodGet, "/chat/rooms", nil)
		req.Header.Set("Authorization", "Bearer "+valid)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
