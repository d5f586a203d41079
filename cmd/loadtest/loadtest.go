// Command loadtest drives a running server end to end: it signs up a
// seller and a buyer, opens a room on a fresh trade, connects both over
// STOMP and times N messages from buyer to seller.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/johndosdos/tradechat/internal/logging"
	"github.com/johndosdos/tradechat/internal/model"
	"github.com/johndosdos/tradechat/internal/response"
)

type client struct {
	base  string
	http  *http.Client
	token string
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	count := flag.Int("n", 20, "messages to send")
	interval := flag.Duration("interval", 2100*time.Millisecond, "pause between messages; keep under the per-session limit")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall timeout")
	flag.Parse()

	logger := logging.New(logging.Config{Level: "info", Pretty: true, ServiceName: "loadtest"}, os.Stdout)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, logger, strings.TrimRight(*baseURL, "/"), *count, *interval); err != nil {
		logger.Fatal().Err(err).Msg("loadtest failed")
	}
}

func run(ctx context.Context, logger zerolog.Logger, base string, n int, interval time.Duration) error {
	seller, err := newMember(ctx, base, "seller")
	if err != nil {
		return err
	}
	buyer, err := newMember(ctx, base, "buyer")
	if err != nil {
		return err
	}

	var t model.Trade
	if err := seller.call(ctx, http.MethodPost, "/trades", model.CreateTradeRequest{Title: "loadtest trade"}, &t); err != nil {
		return fmt.Errorf("create trade: %w", err)
	}

	var room model.RoomID
	if err := buyer.call(ctx, http.MethodPost, "/chat/rooms/"+strconv.FormatInt(t.TradeID, 10), nil, &room); err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	logger.Info().Int64("trade_id", t.TradeID).Int64("room_id", room.RoomID).Msg("room ready")

	sub, err := seller.connect(ctx)
	if err != nil {
		return err
	}
	defer sub.CloseNow()

	pub, err := buyer.connect(ctx)
	if err != nil {
		return err
	}
	defer pub.CloseNow()

	topic := "/sub/chat/room/" + strconv.FormatInt(room.RoomID, 10)
	if err := roundTrip(ctx, sub, frame.New(frame.SUBSCRIBE, frame.Id, "sub-0", frame.Destination, topic, "receipt", "sub"), frame.RECEIPT); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	var (
		mu   sync.Mutex
		sent = make(map[string]time.Time, n)
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		dest := "/pub/chat/room/" + strconv.FormatInt(room.RoomID, 10)
		for i := 0; i < n; i++ {
			content := fmt.Sprintf("msg-%d-%s", i, uuid.NewString()[:8])
			body, _ := json.Marshal(model.ChatMessage{Content: content})
			f := frame.New(frame.SEND, frame.Destination, dest, frame.ContentType, "application/json")
			f.Body = body

			mu.Lock()
			sent[content] = time.Now()
			mu.Unlock()

			if err := writeFrame(gctx, pub, f); err != nil {
				return fmt.Errorf("send: %w", err)
			}

			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-time.After(interval):
			}
		}
		return nil
	})

	var latencies []time.Duration
	g.Go(func() error {
		for len(latencies) < n {
			f, err := readFrame(gctx, sub)
			if err != nil {
				return fmt.Errorf("receive: %w", err)
			}
			if f.Command == frame.ERROR {
				return fmt.Errorf("server error %s: %s", f.Header.Get(frame.Message), f.Body)
			}
			if f.Command != frame.MESSAGE {
				continue
			}

			var msg model.ChatMessage
			if err := json.Unmarshal(f.Body, &msg); err != nil {
				return fmt.Errorf("decode message: %w", err)
			}
			mu.Lock()
			at, ok := sent[msg.Content]
			mu.Unlock()
			if !ok {
				return fmt.Errorf("received unknown message %q", msg.Content)
			}
			latencies = append(latencies, time.Since(at))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	report(logger, latencies)
	return nil
}

func report(logger zerolog.Logger, latencies []time.Duration) {
	if len(latencies) == 0 {
		return
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	pct := func(p float64) time.Duration {
		return latencies[int(p*float64(len(latencies)-1))]
	}

	logger.Info().
		Int("messages", len(latencies)).
		Dur("avg", total/time.Duration(len(latencies))).
		Dur("p50", pct(0.50)).
		Dur("p95", pct(0.95)).
		Dur("max", latencies[len(latencies)-1]).
		Msg("broadcast latency")
}

func newMember(ctx context.Context, base, role string) (*client, error) {
	c := &client{base: base, http: &http.Client{Timeout: 10 * time.Second}}

	email := fmt.Sprintf("%s-%s@loadtest.local", role, uuid.NewString())
	password := uuid.NewString()

	signup := model.SignupRequest{Email: email, Password: password, Nickname: role}
	if err := c.call(ctx, http.MethodPost, "/members/signup", signup, nil); err != nil {
		return nil, fmt.Errorf("signup %s: %w", role, err)
	}

	var tok model.TokenResponse
	if err := c.call(ctx, http.MethodPost, "/members/login", model.LoginRequest{Email: email, Password: password}, &tok); err != nil {
		return nil, fmt.Errorf("login %s: %w", role, err)
	}
	c.token = tok.AccessToken
	return c, nil
}

// call sends a JSON request and decodes the envelope's data into out.
func (c *client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		p, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(p)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	env := response.Response{Data: out}
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: status %d: %w", method, path, res.StatusCode, err)
	}
	if !env.Success {
		if env.Error != nil {
			return fmt.Errorf("%s %s: %s: %s", method, path, env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("%s %s: status %d", method, path, res.StatusCode)
	}
	return nil
}

func (c *client) connect(ctx context.Context) (*websocket.Conn, error) {
	var tok model.TokenResponse
	if err := c.call(ctx, http.MethodGet, "/members/ws-token", nil, &tok); err != nil {
		return nil, fmt.Errorf("ws token: %w", err)
	}

	url := "ws" + strings.TrimPrefix(c.base, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{Subprotocols: []string{"v12.stomp"}})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	connect := frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.2",
		frame.Host, "localhost",
		"Authorization", "Bearer "+tok.AccessToken,
	)
	if err := roundTrip(ctx, conn, connect, frame.CONNECTED); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("stomp connect: %w", err)
	}
	return conn, nil
}

func roundTrip(ctx context.Context, conn *websocket.Conn, f *frame.Frame, want string) error {
	if err := writeFrame(ctx, conn, f); err != nil {
		return err
	}
	got, err := readFrame(ctx, conn)
	if err != nil {
		return err
	}
	if got.Command != want {
		return fmt.Errorf("got %s (%s: %s), want %s", got.Command, got.Header.Get(frame.Message), got.Body, want)
	}
	return nil
}

func writeFrame(ctx context.Context, conn *websocket.Conn, f *frame.Frame) error {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, buf.Bytes())
}

func readFrame(ctx context.Context, conn *websocket.Conn) (*frame.Frame, error) {
	for {
		_, p, err := conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		f, err := frame.NewReader(bytes.NewReader(p)).Read()
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		return f, nil
	}
}
