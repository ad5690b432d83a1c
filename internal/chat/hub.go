package chat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"group-chat/internal/domain"
)

// MessageStore persiste un mensaje y devuelve su id y timestamp definitivos.
type MessageStore interface {
	Append(ctx context.Context, sender domain.User, body string) (domain.Message, error)
}

// IdentityResolver traduce el username del evento a una identidad.
type IdentityResolver interface {
	Resolve(ctx context.Context, username string) (domain.User, error)
}

// RateLimiter limita envíos por username.
type RateLimiter interface {
	Allow(key string) bool
}

type HubConfig struct {
	Room          string
	QueueSize     int
	ClockLocation *time.Location
	// HandleTimeout acota append+publish de un evento, que corre desacoplado de la conexión.
	HandleTimeout time.Duration
}

// Hub agrupa las dependencias compartidas y crea una Session por conexión.
type Hub struct {
	cfg        HubConfig
	registry   *Registry
	publisher  Publisher
	store      MessageStore
	identities IdentityResolver
	limiter    RateLimiter
	logger     *zap.Logger
}

// NewHub arma el hub. Si publisher es nil se publica directo en el registry local.
func NewHub(
	logger *zap.Logger,
	registry *Registry,
	publisher Publisher,
	store MessageStore,
	identities IdentityResolver,
	limiter RateLimiter,
	cfg HubConfig,
) *Hub {
	if cfg.Room == "" {
		cfg.Room = domain.DefaultRoom
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.ClockLocation == nil {
		cfg.ClockLocation = time.Local
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = 10 * time.Second
	}
	if publisher == nil {
		publisher = registry
	}
	return &Hub{
		cfg:        cfg,
		registry:   registry,
		publisher:  publisher,
		store:      store,
		identities: identities,
		limiter:    limiter,
		logger:     logger,
	}
}

// NewSession crea una sesión en estado Connecting.
// boundUsername, si no es vacío, es el username autenticado de la conexión.
func (h *Hub) NewSession(boundUsername string) *Session {
	member := NewMember(h.cfg.QueueSize)
	return &Session{
		hub:      h,
		member:   member,
		username: boundUsername,
		logger:   h.logger.With(zap.String("session_id", member.ID)),
	}
}

// Room devuelve el grupo al que se unen las sesiones.
func (h *Hub) Room() string { return h.cfg.Room }

// Registry expone el registry local.
func (h *Hub) Registry() *Registry { return h.registry }
