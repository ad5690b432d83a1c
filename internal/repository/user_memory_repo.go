package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"group-chat/internal/domain"
)

// MemoryUserRepository es un directorio de usuarios en memoria para los drivers sin Postgres.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewMemoryUserRepository(users ...domain.User) *MemoryUserRepository {
	r := &MemoryUserRepository{users: make(map[string]domain.User, len(users))}
	for _, u := range users {
		r.users[u.Username] = u
	}
	return r
}

// NewSeededUserRepository crea un usuario por cada username no vacío.
func NewSeededUserRepository(usernames []string) *MemoryUserRepository {
	now := time.Now().UTC()
	names := lo.Uniq(lo.FilterMap(usernames, func(name string, _ int) (string, bool) {
		name = strings.TrimSpace(name)
		return name, name != ""
	}))
	users := lo.Map(names, func(name string, _ int) domain.User {
		return domain.User{ID: uuid.NewString(), Username: name, CreatedAt: now}
	})
	return NewMemoryUserRepository(users...)
}

func (r *MemoryUserRepository) GetByUsername(_ context.Context, username string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[username]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return u, nil
}

// Len devuelve la cantidad de usuarios cargados.
func (r *MemoryUserRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
