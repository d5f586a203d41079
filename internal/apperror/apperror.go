// Package apperror maps domain errors to the stable codes clients see,
// for both HTTP responses and STOMP ERROR frames.
package apperror

import (
	"errors"
	"net/http"

	"github.com/johndosdos/tradechat/internal/auth"
	"github.com/johndosdos/tradechat/internal/chat"
	"github.com/johndosdos/tradechat/internal/member"
	"github.com/johndosdos/tradechat/internal/trade"
)

const (
	CodeMissingToken       = "MISSING_TOKEN"
	CodeMalformedBearer    = "MALFORMED_BEARER"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeMemberNotFound     = "MEMBER_NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeRoomNotFound       = "ROOM_NOT_FOUND"
	CodeTradeNotFound      = "TRADE_NOT_FOUND"
	CodeRoomClosed         = "ROOM_CLOSED"
	CodeEmailTaken         = "EMAIL_TAKEN"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeBadRequest         = "BAD_REQUEST"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
)

var (
	ErrBadRequest         = errors.New("bad request")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Classified is the client-facing view of an error.
type Classified struct {
	Status  int
	Code    string
	Message string
}

func (c Classified) Internal() bool {
	return c.Status >= http.StatusInternalServerError
}

var table = []struct {
	err error
	out Classified
}{
	{auth.ErrMissingToken, Classified{http.StatusUnauthorized, CodeMissingToken, "Authentication token is missing."}},
	{auth.ErrMalformedBearer, Classified{http.StatusUnauthorized, CodeMalformedBearer, "Authorization header must be 'Bearer <token>'."}},
	{auth.ErrExpiredToken, Classified{http.StatusUnauthorized, CodeInvalidToken, "Token has expired."}},
	{auth.ErrInvalidToken, Classified{http.StatusUnauthorized, CodeInvalidToken, "Token is invalid."}},
	{auth.ErrMemberNotFound, Classified{http.StatusUnauthorized, CodeMemberNotFound, "Member no longer exists."}},
	{ErrInvalidCredentials, Classified{http.StatusUnauthorized, CodeInvalidCredentials, "Invalid email or password."}},
	{chat.ErrForbidden, Classified{http.StatusForbidden, CodeForbidden, "Not a participant of this chat room."}},
	{chat.ErrRoomNotFound, Classified{http.StatusNotFound, CodeRoomNotFound, "Chat room not found."}},
	{chat.ErrTradeNotFound, Classified{http.StatusNotFound, CodeTradeNotFound, "Trade not found."}},
	{trade.ErrNotFound, Classified{http.StatusNotFound, CodeTradeNotFound, "Trade not found."}},
	{member.ErrNotFound, Classified{http.StatusNotFound, CodeMemberNotFound, "Member not found."}},
	{chat.ErrRoomClosed, Classified{http.StatusConflict, CodeRoomClosed, "Chat room is closed."}},
	{member.ErrEmailTaken, Classified{http.StatusConflict, CodeEmailTaken, "Email is already registered."}},
	{chat.ErrSelfChat, Classified{http.StatusBadRequest, CodeBadRequest, "Cannot open a chat room on your own trade."}},
	{chat.ErrEmptyContent, Classified{http.StatusBadRequest, CodeBadRequest, "Message content is empty."}},
	{chat.ErrContentTooLong, Classified{http.StatusBadRequest, CodeBadRequest, "Message content is too long."}},
	{ErrBadRequest, Classified{http.StatusBadRequest, CodeBadRequest, "Bad request."}},
	{ErrRateLimited, Classified{http.StatusTooManyRequests, CodeRateLimited, "Too many requests. Try again later."}},
}

// Classify returns the code for err. Anything unrecognised is an internal
// error and its text is not exposed.
func Classify(err error) Classified {
	for _, e := range table {
		if errors.Is(err, e.err) {
			return e.out
		}
	}
	return Classified{http.StatusInternalServerError, CodeInternal, "Server error."}
}
