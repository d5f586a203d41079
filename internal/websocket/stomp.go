package websocket

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-stomp/stomp/v3/frame"
)

const (
	// TopicPrefix is where clients SUBSCRIBE to a room's broadcasts.
	TopicPrefix = "/sub/chat/room/"
	// SendPrefix is where clients SEND messages for a room.
	SendPrefix = "/pub/chat/room/"

	headerAuthorization = "Authorization"
	headerReceipt       = "receipt"
	headerReceiptID     = "receipt-id"
	serverName          = "tradechat/1.0"
)

var subprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

var errBadDestination = errors.New("unknown destination")

// TopicFor returns the subscribe destination of roomID.
func TopicFor(roomID int64) string {
	return TopicPrefix + strconv.FormatInt(roomID, 10)
}

// SendDestination returns the send destination of roomID.
func SendDestination(roomID int64) string {
	return SendPrefix + strconv.FormatInt(roomID, 10)
}

func roomFromDestination(dest, prefix string) (int64, error) {
	rest, ok := strings.CutPrefix(dest, prefix)
	if !ok {
		return 0, fmt.Errorf("%w: %q", errBadDestination, dest)
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", errBadDestination, dest)
	}
	return id, nil
}

// decodeFrame parses one websocket message. A heart-beat yields a nil frame.
func decodeFrame(p []byte) (*frame.Frame, error) {
	f, err := frame.NewReader(bytes.NewReader(p)).Read()
	if err != nil {
		return nil, fmt.Errorf("malformed STOMP frame: %w", err)
	}
	return f, nil
}

func encodeFrame(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, fmt.Errorf("failed to encode STOMP frame: %w", err)
	}
	return buf.Bytes(), nil
}

func withBody(f *frame.Frame, contentType string, body []byte) *frame.Frame {
	f.Header.Set(frame.ContentType, contentType)
	f.Header.Set(frame.ContentLength, strconv.Itoa(len(body)))
	f.Body = body
	return f
}

func errorFrame(code, detail string, cause *frame.Frame) *frame.Frame {
	f := frame.New(frame.ERROR, frame.Message, code)
	if cause != nil {
		if receipt := cause.Header.Get(headerReceipt); receipt != "" {
			f.Header.Set(headerReceiptID, receipt)
		}
	}
	return withBody(f, "text/plain", []byte(detail))
}

func receiptFrame(cause *frame.Frame) *frame.Frame {
	receipt := cause.Header.Get(headerReceipt)
	if receipt == "" {
		return nil
	}
	return frame.New(frame.RECEIPT, headerReceiptID, receipt)
}

func connectedFrame(sessionID string, acceptVersion string) *frame.Frame {
	return frame.New(frame.CONNECTED,
		frame.Version, negotiateVersion(acceptVersion),
		frame.Session, sessionID,
		frame.Server, serverName,
		frame.HeartBeat, "0,0",
	)
}

func negotiateVersion(accept string) string {
	versions := strings.Split(accept, ",")
	for _, want := range []string{"1.2", "1.1"} {
		for _, v := range versions {
			if strings.TrimSpace(v) == want {
				return want
			}
		}
	}
	return "1.0"
}
