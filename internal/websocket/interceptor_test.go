package websocket

import (
	"context"
	"testing"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/tradechat/internal/apperror"
	"github.com/johndosdos/tradechat/internal/auth"
)

type tokenTable map[string]auth.Principal

func (tt tokenTable) Authenticate(_ context.Context, token string) (auth.Principal, error) {
	p, ok := tt[token]
	if !ok {
		return auth.Principal{}, auth.ErrInvalidToken
	}
	return p, nil
}

func TestInterceptor(t *testing.T) {
	ctx := context.Background()
	i := NewInterceptor(tokenTable{"good": {MemberID: 9, Nickname: "buyer"}})

	connect := func(headers ...string) *frame.Frame {
		return frame.New(frame.CONNECT, append([]string{frame.AcceptVersion, "1.2"}, headers...)...)
	}

	tests := []struct {
		name    string
		frame   *frame.Frame
		wantErr error
	}{
		{"valid", connect("Authorization", "Bearer good"), nil},
		{"lowercase_header", connect("authorization", "Bearer good"), nil},
		{"stomp_command", frame.New(frame.STOMP, "Authorization", "Bearer good"), nil},
		{"missing", connect(), auth.ErrMissingToken},
		{"empty_value", connect("Authorization", ""), auth.ErrMalformedBearer},
		{"no_scheme", connect("Authorization", "good"), auth.ErrMalformedBearer},
		{"wrong_scheme", connect("Authorization", "Basic good"), auth.ErrMalformedBearer},
		{"unknown_token", connect("Authorization", "Bearer bad"), auth.ErrInvalidToken},
		{"not_connect", frame.New(frame.SEND, "Authorization", "Bearer good"), apperror.ErrBadRequest},
		{"nil_frame", nil, apperror.ErrBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := i.Authenticate(ctx, tt.frame)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(9), p.MemberID)
		})
	}
}
