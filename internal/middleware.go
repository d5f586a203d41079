// Package internal holds the HTTP middleware shared by every route.
package internal

import (
	"context"
	"net/http"

	"github.com/johndosdos/tradechat/internal/apperror"
	"github.com/johndosdos/tradechat/internal/auth"
	"github.com/johndosdos/tradechat/internal/logging"
	"github.com/johndosdos/tradechat/internal/response"
)

// TokenAuthenticator verifies a raw bearer token and resolves its member.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
}

// AuthGate rejects every request that doesn't carry a valid token, except
// the exact paths in publicPaths. On success the principal is put in the
// request context for the next handler.
func AuthGate(authn TokenAuthenticator, publicPaths ...string) func(http.Handler) http.Handler {
	public := make(map[string]struct{}, len(publicPaths))
	for _, p := range publicPaths {
		public[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := public[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			token, err := auth.TokenFromRequest(r)
			if err == nil {
				var p auth.Principal
				p, err = authn.Authenticate(r.Context(), token)
				if err == nil {
					l := logging.Ctx(r.Context()).With().Int64(logging.FieldMemberID, p.MemberID).Logger()
					ctx := logging.WithLogger(auth.WithPrincipal(r.Context(), p), l)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			c := apperror.Classify(err)
			if c.Internal() {
				response.InternalError(w, r, err)
				return
			}

			l := logging.Ctx(r.Context())
			l.Debug().Err(err).Str(logging.FieldCode, c.Code).Msg("request not authenticated")
			response.Unauthorized(w, r, c.Code, c.Message)
		})
	}
}
