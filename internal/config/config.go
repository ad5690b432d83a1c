package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Drivers soportados para el store de mensajes.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverBadger   = "badger"
	StoreDriverMemory   = "memory"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"group-chat"`

	StoreDriver   string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL"`
	DBAutoMigrate bool   `env:"DB_AUTO_MIGRATE" envDefault:"true"`
	DBMaxConns    int    `env:"DB_MAX_CONNS" envDefault:"20"`
	BadgerPath    string `env:"BADGER_PATH" envDefault:"./data/chat"`

	RedisAddr        string        `env:"REDIS_ADDR"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`
	RedisChannel     string        `env:"REDIS_CHANNEL" envDefault:"chat:events"`
	IdentityCacheTTL time.Duration `env:"IDENTITY_CACHE_TTL" envDefault:"5m"`

	JWTSecret           string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`

	ChatRoom        string        `env:"CHAT_ROOM" envDefault:"group_chat"`
	MemberQueueSize int           `env:"CHAT_MEMBER_QUEUE" envDefault:"64"`
	SendLimit       int           `env:"CHAT_SEND_LIMIT" envDefault:"30"`
	SendWindow      time.Duration `env:"CHAT_SEND_WINDOW" envDefault:"1m"`
	ClockTZ         string        `env:"CHAT_CLOCK_TZ"`
	SeedUsers       []string      `env:"CHAT_SEED_USERS" envSeparator:","`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate revisa combinaciones que env no puede expresar con tags.
func (c *Config) Validate() error {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("DATABASE_URL is required for postgres store")
		}
	case StoreDriverBadger:
		if strings.TrimSpace(c.BadgerPath) == "" {
			return errors.New("BADGER_PATH is required for badger store")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.DBMaxConns <= 0 || c.DBMaxConns > math.MaxInt32 {
		return fmt.Errorf("DB_MAX_CONNS out of range: %d", c.DBMaxConns)
	}
	if strings.TrimSpace(c.ChatRoom) == "" {
		return errors.New("CHAT_ROOM must not be empty")
	}
	if c.MemberQueueSize <= 0 {
		return errors.New("CHAT_MEMBER_QUEUE must be positive")
	}
	if _, err := c.ClockLocation(); err != nil {
		return err
	}
	return nil
}

// ClockLocation devuelve la zona usada para renderizar HH:MM.
func (c *Config) ClockLocation() (*time.Location, error) {
	if strings.TrimSpace(c.ClockTZ) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.ClockTZ)
	if err != nil {
		return nil, fmt.Errorf("invalid CHAT_CLOCK_TZ %q: %w", c.ClockTZ, err)
	}
	return loc, nil
}

// AuthEnabled indica si el upgrade del websocket exige JWT.
func (c *Config) AuthEnabled() bool {
	return strings.TrimSpace(c.JWTSecret) != ""
}
