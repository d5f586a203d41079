package handler

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/johndosdos/tradechat/internal/apperror"
	"github.com/johndosdos/tradechat/internal/auth"
	"github.com/johndosdos/tradechat/internal/logging"
	"github.com/johndosdos/tradechat/internal/model"
	"github.com/johndosdos/tradechat/internal/response"
	"github.com/johndosdos/tradechat/internal/trade"
)

const maxTitleLen = 200

// CreateTrade handles POST /trades with the caller as seller.
func CreateTrade(trades trade.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		p, err := auth.PrincipalFromContext(ctx)
		if err != nil {
			writeError(w, r, err)
			return
		}

		var req model.CreateTradeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		title := strings.TrimSpace(req.Title)
		if n := utf8.RuneCountInString(title); n == 0 || n > maxTitleLen {
			writeError(w, r, fmt.Errorf("%w: title must be 1 to %d characters", apperror.ErrBadRequest, maxTitleLen))
			return
		}

		t, err := trades.CreateTrade(ctx, p.MemberID, title)
		if err != nil {
			writeError(w, r, err)
			return
		}

		l := logging.Ctx(ctx)
		l.Info().Int64(logging.FieldTradeID, t.ID).Msg("trade created")

		response.Created(w, r, newTrade(t))
	}
}

// GetTrade handles GET /trades/{tradeId}.
func GetTrade(trades trade.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tradeID, err := pathID(r, "tradeId")
		if err != nil {
			writeError(w, r, err)
			return
		}

		t, err := trades.GetTradeByID(r.Context(), tradeID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		response.OK(w, r, newTrade(t))
	}
}

func newTrade(t trade.Trade) model.Trade {
	return model.Trade{TradeID: t.ID, SellerID: t.SellerID, Title: t.Title}
}
