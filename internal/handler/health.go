package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/johndosdos/tradechat/internal/logging"
	"github.com/johndosdos/tradechat/internal/response"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Healthz reports whether the database answers.
func Healthz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			l := logging.Ctx(ctx)
			l.Warn().Err(err).Msg("health check failed")
			response.Error(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", "Database is unreachable.")
			return
		}

		response.OK(w, r, map[string]string{"status": "ok"})
	}
}
