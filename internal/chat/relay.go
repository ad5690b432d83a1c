package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"group-chat/internal/domain"
)

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// relaySubscription es el subconjunto de *redis.PubSub que usa el relay.
type relaySubscription interface {
	Receive(ctx context.Context) (interface{}, error)
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

type relayEnvelope struct {
	Group string               `json:"group"`
	Event domain.OutboundEvent `json:"event"`
}

// RedisRelay publica eventos en un canal de Redis pub/sub y los reentrega al
// Registry local de cada proceso suscripto. Mientras no hay suscripción activa
// los eventos se entregan solo localmente.
type RedisRelay struct {
	pub       redisPublisher
	subscribe func(ctx context.Context, channel string) relaySubscription
	channel   string
	local     *Registry
	logger    *zap.Logger

	minBackoff time.Duration
	maxBackoff time.Duration

	subscribed atomic.Bool
	ready      chan struct{}
	readyOnce  sync.Once
}

func NewRedisRelay(client *redis.Client, channel string, local *Registry, logger *zap.Logger) *RedisRelay {
	return newRedisRelay(client, func(ctx context.Context, ch string) relaySubscription {
		return client.Subscribe(ctx, ch)
	}, channel, local, logger)
}

func newRedisRelay(
	pub redisPublisher,
	subscribe func(ctx context.Context, channel string) relaySubscription,
	channel string,
	local *Registry,
	logger *zap.Logger,
) *RedisRelay {
	return &RedisRelay{
		pub:        pub,
		subscribe:  subscribe,
		channel:    channel,
		local:      local,
		logger:     logger,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
		ready:      make(chan struct{}),
	}
}

// Subscribed indica si el relay recibe actualmente el canal de Redis.
func (r *RedisRelay) Subscribed() bool { return r.subscribed.Load() }

// Ready se cierra la primera vez que la suscripción queda confirmada.
func (r *RedisRelay) Ready() <-chan struct{} { return r.ready }

// Publish envía el evento a Redis. Sin suscripción activa, o si Redis falla,
// se entrega solo localmente: el evento nunca volvería a este proceso.
func (r *RedisRelay) Publish(ctx context.Context, group string, event domain.OutboundEvent) error {
	if !r.subscribed.Load() {
		return r.local.Publish(ctx, group, event)
	}
	payload, err := json.Marshal(relayEnvelope{Group: group, Event: event})
	if err != nil {
		return fmt.Errorf("encode relay envelope: %w", err)
	}
	if err := r.pub.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Warn("redis relay publish failed, delivering locally", zap.Error(err))
		return r.local.Publish(ctx, group, event)
	}
	return nil
}

// Run mantiene la suscripción hasta que ctx se cancele, reintentando con backoff
// exponencial cuando Redis no responde o la suscripción se cae.
func (r *RedisRelay) Run(ctx context.Context) error {
	backoff := r.minBackoff
	for {
		err := r.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			// hubo suscripción y se cortó: se reintenta desde el mínimo
			backoff = r.minBackoff
		}
		r.logger.Warn("redis relay unsubscribed, retrying",
			zap.String("channel", r.channel),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}
}

// consume hace una suscripción completa. Devuelve error si no se pudo suscribir
// y nil si la suscripción terminó después de estar activa.
func (r *RedisRelay) consume(ctx context.Context) error {
	ps := r.subscribe(ctx, r.channel)
	defer ps.Close()

	// espera la confirmación para no perder eventos publicados justo después
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	ch := ps.Channel()
	r.subscribed.Store(true)
	defer r.subscribed.Store(false)
	r.readyOnce.Do(func() { close(r.ready) })
	r.logger.Info("redis relay subscribed", zap.String("channel", r.channel))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(ctx, []byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) deliver(ctx context.Context, payload []byte) {
	var env relayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.logger.Warn("redis relay dropped malformed payload", zap.Error(err))
		return
	}
	if err := r.local.Publish(ctx, env.Group, env.Event); err != nil {
		r.logger.Error("redis relay local publish failed", zap.Error(err))
	}
}
