// Package config loads runtime settings from the environment, an optional
// .env file and an optional config.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/johndosdos/tradechat/internal/logging"
)

const minSecretLen = 32

// Fan-out bus drivers.
const (
	DriverNATS  = "nats"
	DriverRedis = "redis"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Port           string
	DBURL          string
	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration
	WsTokenTTL     time.Duration
	CookieSecure   bool
	AllowedOrigins []string
	MigrateOnStart bool

	Broker    BrokerConfig
	Log       LogConfig
	RateLimit RateLimitConfig
}

// BrokerConfig selects the optional fan-out bus. An empty Driver keeps
// broadcasts in-process.
type BrokerConfig struct {
	Driver        string
	NATSURL       string
	NATSCred      string
	NATSUser      string
	NATSPassword  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type LogConfig struct {
	Level  string
	Pretty bool
}

type RateLimitConfig struct {
	AuthRequests    int
	AuthWindow      time.Duration
	MessageRequests int
	MessageWindow   time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("jwt.issuer", "tradechat")
	v.SetDefault("jwt.access_ttl", 24*time.Hour)
	v.SetDefault("jwt.ws_ttl", 10*time.Minute)
	v.SetDefault("cookie.secure", true)
	v.SetDefault("allowed.origins", "")
	v.SetDefault("migrate.on_start", true)

	v.SetDefault("broker.driver", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// 30 messages/min mirrors the chat client limiter.
	v.SetDefault("ratelimit.auth_requests", 10)
	v.SetDefault("ratelimit.auth_window", time.Minute)
	v.SetDefault("ratelimit.message_requests", 30)
	v.SetDefault("ratelimit.message_window", time.Minute)
}

// Load reads configuration. A missing .env or config.yaml is not an error.
func Load() (*Config, error) {
	loadDotEnv(logging.L(), ".env")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// Keys that don't follow the dotted naming get explicit bindings.
	_ = v.BindEnv("db.url", "DB_URL")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("jwt.issuer", "JWT_ISS")
	_ = v.BindEnv("nats.url", "NATS_URL")
	_ = v.BindEnv("nats.cred", "NATS_CRED")
	_ = v.BindEnv("nats.user", "NATS_USER")
	_ = v.BindEnv("nats.password", "NATS_PASSWORD")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("internal/config: failed to read config: %w", err)
		}
	}

	return fromViper(v), nil
}

// loadDotEnv loads files into the environment. A missing file is normal
// outside local development and is not logged.
func loadDotEnv(logger zerolog.Logger, files ...string) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Debug().Err(err).Msg("failed to load .env file")
	}
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Port:           v.GetString("port"),
		DBURL:          v.GetString("db.url"),
		JWTSecret:      v.GetString("jwt.secret"),
		JWTIssuer:      v.GetString("jwt.issuer"),
		AccessTokenTTL: v.GetDuration("jwt.access_ttl"),
		WsTokenTTL:     v.GetDuration("jwt.ws_ttl"),
		CookieSecure:   v.GetBool("cookie.secure"),
		AllowedOrigins: splitList(v.GetString("allowed.origins")),
		MigrateOnStart: v.GetBool("migrate.on_start"),
		Broker: BrokerConfig{
			Driver:        strings.ToLower(v.GetString("broker.driver")),
			NATSURL:       v.GetString("nats.url"),
			NATSCred:      v.GetString("nats.cred"),
			NATSUser:      v.GetString("nats.user"),
			NATSPassword:  v.GetString("nats.password"),
			RedisAddr:     v.GetString("redis.addr"),
			RedisPassword: v.GetString("redis.password"),
			RedisDB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Pretty: v.GetBool("log.pretty"),
		},
		RateLimit: RateLimitConfig{
			AuthRequests:    v.GetInt("ratelimit.auth_requests"),
			AuthWindow:      v.GetDuration("ratelimit.auth_window"),
			MessageRequests: v.GetInt("ratelimit.message_requests"),
			MessageWindow:   v.GetDuration("ratelimit.message_window"),
		},
	}

	return cfg
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	if c.DBURL == "" {
		return errors.New("DB_URL environment variable is not set")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is not set")
	}
	if len(c.JWTSecret) < minSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLen)
	}
	switch c.Broker.Driver {
	case "":
	case DriverNATS:
		if c.Broker.NATSURL == "" {
			return errors.New("NATS_URL environment variable is not set")
		}
	case DriverRedis:
		if c.Broker.RedisAddr == "" {
			return errors.New("REDIS_ADDR environment variable is not set")
		}
	default:
		return fmt.Errorf("unknown broker driver %q", c.Broker.Driver)
	}
	if c.AccessTokenTTL <= 0 || c.WsTokenTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
