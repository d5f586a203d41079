// Package handler holds the HTTP endpoints. Every handler behind the auth
// gate takes its caller from the request context and passes it on
// explicitly.
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/johndosdos/tradechat/internal/apperror"
	"github.com/johndosdos/tradechat/internal/logging"
	"github.com/johndosdos/tradechat/internal/response"
)

const maxBodyBytes = 1 << 20

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	c := apperror.Classify(err)
	if c.Internal() {
		response.InternalError(w, r, err)
		return
	}

	l := logging.Ctx(r.Context())
	l.Debug().Err(err).Str(logging.FieldCode, c.Code).Msg("request rejected")
	response.Error(w, r, c.Status, c.Code, c.Message)
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", apperror.ErrBadRequest, name, raw)
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", apperror.ErrBadRequest, err)
	}
	return nil
}
