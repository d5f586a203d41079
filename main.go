// Package main our entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/johndosdos/tradechat/internal"
	"github.com/johndosdos/tradechat/internal/auth"
	"github.com/johndosdos/tradechat/internal/broker"
	"github.com/johndosdos/tradechat/internal/chat"
	"github.com/johndosdos/tradechat/internal/config"
	"github.com/johndosdos/tradechat/internal/handler"
	"github.com/johndosdos/tradechat/internal/logging"
	"github.com/johndosdos/tradechat/internal/member"
	ratelimiter "github.com/johndosdos/tradechat/internal/rate_limiter"
	"github.com/johndosdos/tradechat/internal/trade"
	ws "github.com/johndosdos/tradechat/internal/websocket"
	"github.com/johndosdos/tradechat/sql/schema"
)

func main() {
	logger := logging.L()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logging.Init(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "tradechat"})
	logger = logging.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Msg("server stopped with error")
	}
	logger.Info().Msg("Server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.L()
	logger.Info().Msg("Starting application...")

	// Init DB
	logger.Info().Msg("Initializing Database connection...")
	pool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("could not connect to the postgresql database: %w", err)
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		db := stdlib.OpenDBFromPool(pool)
		err := schema.Up(ctx, db)
		_ = db.Close()
		if err != nil {
			return err
		}
	}

	bus, closeBus, err := openBus(ctx, cfg.Broker)
	if err != nil {
		return err
	}
	defer closeBus()

	members := member.NewPostgresStore(pool)
	trades := trade.NewPostgresStore(pool)
	chatStore := chat.NewPostgresStore(pool)

	codec := auth.NewCodec(cfg.JWTSecret, cfg.JWTIssuer)
	authn := auth.NewAuthenticator(codec, auth.NewResolver(members))

	rooms := chat.NewDirectory(chatStore)
	messages := chat.NewMessageLog(chatStore, rooms)

	// hub.Run is our central hub that is always listening for bus events.
	hub := ws.NewHub(bus)
	stompServer := ws.NewServer(hub, ws.NewInterceptor(authn), rooms, messages, ws.Options{
		OriginPatterns:  cfg.AllowedOrigins,
		MessageRequests: cfg.RateLimit.MessageRequests,
		MessageWindow:   cfg.RateLimit.MessageWindow,
	})

	authLimiter := ratelimiter.NewIPRateLimiter(cfg.RateLimit.AuthRequests, cfg.RateLimit.AuthWindow,
		ratelimiter.CleanupOpts{TTL: 10 * time.Minute, Interval: time.Minute})

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(logging.HTTPMiddleware(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handler.Healthz(pool))
	// The STOMP CONNECT frame authenticates the socket, not the upgrade.
	r.Handle("/ws", stompServer)

	r.Group(func(r chi.Router) {
		r.Use(internal.AuthGate(authn, handler.PublicPaths...))
		handler.Mount(r, handler.Services{
			Members:  members,
			Trades:   trades,
			Rooms:    rooms,
			Messages: messages,
			Signer:   codec,
			Tokens: handler.TokenOptions{
				AccessTTL:    cfg.AccessTokenTTL,
				WsTTL:        cfg.WsTokenTTL,
				CookieSecure: cfg.CookieSecure,
			},
			AuthLimit: authLimiter.Middleware,
		})
	})

	// Read and write timeouts are left unset: websocket sessions outlive
	// any single request deadline.
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return authLimiter.Run(gctx) })

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutdown signal received; shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openBus connects the optional fan-out bus. Without one, broadcasts stay
// in this process.
func openBus(ctx context.Context, cfg config.BrokerConfig) (broker.Bus, func(), error) {
	logger := logging.L()
	noop := func() {}

	switch cfg.Driver {
	case "":
		return nil, noop, nil

	case config.DriverNATS:
		logger.Info().Msg("Initializing NATS connection...")

		opts := []nats.Option{
			nats.Name("tradechat"),
			nats.Timeout(5 * time.Second),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2 * time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn().Err(err).Msg("nats disconnected")
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
			}),
		}
		if cfg.NATSCred != "" {
			opts = append(opts, nats.UserCredentials(cfg.NATSCred))
		} else if cfg.NATSUser != "" && cfg.NATSPassword != "" {
			opts = append(opts, nats.UserInfo(cfg.NATSUser, cfg.NATSPassword))
		}

		conn, err := nats.Connect(cfg.NATSURL, opts...)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to connect to nats: %w", err)
		}

		bus, err := broker.NewJetStreamBus(ctx, conn)
		if err != nil {
			conn.Close()
			return nil, noop, err
		}
		return bus, func() {
			_ = bus.Close()
			// Drain NATS connection.
			if err := conn.Drain(); err != nil {
				logger.Warn().Err(err).Msg("couldn't drain NATS conn")
			}
		}, nil

	case config.DriverRedis:
		logger.Info().Msg("Initializing Redis connection...")
		bus, err := broker.NewRedisBus(ctx, broker.RedisConfig{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, noop, err
		}
		return bus, func() {
			if err := bus.Close(); err != nil {
				logger.Warn().Err(err).Msg("couldn't close redis bus")
			}
		}, nil

	default:
		return nil, noop, fmt.Errorf("unknown broker driver %q", cfg.Driver)
	}
}
