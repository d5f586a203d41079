package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/johndosdos/tradechat/internal/member"
	"github.com/johndosdos/tradechat/internal/trade"
)

// PublicPaths are the only routes the auth gate lets through without a
// token.
var PublicPaths = []string{
	"/members/signup",
	"/members/login",
	"/members/logout",
}

type Services struct {
	Members  member.Store
	Trades   trade.Store
	Rooms    RoomService
	Messages HistoryReader
	Signer   TokenSigner
	Tokens   TokenOptions

	// AuthLimit throttles signup and login. Nil disables it.
	AuthLimit func(http.Handler) http.Handler
}

// Mount registers the API on r, which must already be behind the auth
// gate.
func Mount(r chi.Router, s Services) {
	limited := r
	if s.AuthLimit != nil {
		limited = r.With(s.AuthLimit)
	}

	limited.Post("/members/signup", Signup(s.Members))
	limited.Post("/members/login", Login(s.Members, s.Signer, s.Tokens))
	r.Post("/members/logout", Logout(s.Tokens))
	r.Get("/members/ws-token", WsToken(s.Signer, s.Tokens))

	r.Post("/trades", CreateTrade(s.Trades))
	r.Get("/trades/{tradeId}", GetTrade(s.Trades))

	r.Route("/chat/rooms", func(r chi.Router) {
		r.Get("/mine", ListMyRooms(s.Rooms))
		r.Post("/{tradeId}", CreateRoom(s.Rooms))
		r.Get("/{roomId}/messages", ListMessages(s.Messages))
		r.Patch("/{roomId}/close", CloseRoom(s.Rooms))
	})
}
