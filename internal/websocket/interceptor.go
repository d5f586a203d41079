package websocket

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-stomp/stomp/v3/frame"

	"github.com/johndosdos/tradechat/internal/apperror"
	"github.com/johndosdos/tradechat/internal/auth"
)

var errNotConnectFrame = fmt.Errorf("%w: first frame must be CONNECT", apperror.ErrBadRequest)

// TokenAuthenticator verifies a raw bearer token and resolves its member.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
}

// Interceptor authenticates the CONNECT frame. It is the only place a
// session pays for authentication; later frames reuse the principal.
type Interceptor struct {
	auth TokenAuthenticator
}

func NewInterceptor(a TokenAuthenticator) *Interceptor {
	return &Interceptor{auth: a}
}

func (i *Interceptor) Authenticate(ctx context.Context, f *frame.Frame) (auth.Principal, error) {
	if f == nil || (f.Command != frame.CONNECT && f.Command != frame.STOMP) {
		return auth.Principal{}, errNotConnectFrame
	}

	value, ok := f.Header.Contains(headerAuthorization)
	if !ok {
		// Some clients lowercase every header name.
		value, ok = f.Header.Contains("authorization")
	}
	if !ok {
		return auth.Principal{}, auth.ErrMissingToken
	}

	token, err := auth.ParseBearer(value)
	if err != nil {
		if errors.Is(err, auth.ErrMissingToken) {
			return auth.Principal{}, auth.ErrMalformedBearer
		}
		return auth.Principal{}, err
	}

	return i.auth.Authenticate(ctx, token)
}
