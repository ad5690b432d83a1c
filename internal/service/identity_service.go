package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"group-chat/internal/domain"
	"group-chat/internal/repository"
)

// IdentityResolver traduce un username a una identidad existente.
type IdentityResolver interface {
	Resolve(ctx context.Context, username string) (domain.User, error)
}

// UserDirectory resuelve identidades contra el repositorio de usuarios.
type UserDirectory struct {
	users repository.UserRepository
}

func NewUserDirectory(users repository.UserRepository) *UserDirectory {
	return &UserDirectory{users: users}
}

func (d *UserDirectory) Resolve(ctx context.Context, username string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, fmt.Errorf("%w: empty username", domain.ErrIdentityNotFound)
	}
	user, err := d.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, fmt.Errorf("%w: %q", domain.ErrIdentityNotFound, username)
		}
		return domain.User{}, fmt.Errorf("%w: resolve %q: %v", domain.ErrStorage, username, err)
	}
	return user, nil
}

type redisKVClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedIdentityResolver guarda en Redis las identidades resueltas.
// Solo cachea aciertos: un usuario recién creado se resuelve en el siguiente intento.
type CachedIdentityResolver struct {
	next   IdentityResolver
	client redisKVClient
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

func NewCachedIdentityResolver(next IdentityResolver, client *redis.Client, ttl time.Duration, logger *zap.Logger) IdentityResolver {
	if client == nil {
		return next
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedIdentityResolver{
		next:   next,
		client: client,
		ttl:    ttl,
		prefix: "chat:identity:",
		logger: logger,
	}
}

func (r *CachedIdentityResolver) Resolve(ctx context.Context, username string) (domain.User, error) {
	username = strings.TrimSpace(username)
	key := r.prefix + username

	if username != "" {
		cacheCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		raw, err := r.client.Get(cacheCtx, key).Bytes()
		cancel()
		switch {
		case err == nil:
			var user domain.User
			if jsonErr := json.Unmarshal(raw, &user); jsonErr == nil && user.ID != "" {
				return user, nil
			}
		case !errors.Is(err, redis.Nil):
			r.logger.Warn("identity cache get failed", zap.Error(err))
		}
	}

	user, err := r.next.Resolve(ctx, username)
	if err != nil {
		return domain.User{}, err
	}

	if payload, err := json.Marshal(user); err == nil {
		cacheCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		if err := r.client.Set(cacheCtx, key, payload, r.ttl).Err(); err != nil {
			r.logger.Warn("identity cache set failed", zap.Error(err))
		}
		cancel()
	}
	return user, nil
}
