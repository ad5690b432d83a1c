package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"group-chat/internal/domain"
	"group-chat/internal/repository"
)

type failingUserRepo struct{ err error }

func (f failingUserRepo) GetByUsername(context.Context, string) (domain.User, error) {
	return domain.User{}, f.err
}

func TestUserDirectoryResolve(t *testing.T) {
	repo := repository.NewMemoryUserRepository(domain.User{ID: "u1", Username: "alice"})
	dir := NewUserDirectory(repo)

	t.Run("known user", func(t *testing.T) {
		u, err := dir.Resolve(context.Background(), " alice ")
		if err != nil || u.ID != "u1" {
			t.Fatalf("expected alice, got %+v (%v)", u, err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		if _, err := dir.Resolve(context.Background(), "mallory"); !errors.Is(err, domain.ErrIdentityNotFound) {
			t.Fatalf("expected ErrIdentityNotFound, got %v", err)
		}
	})

	t.Run("empty username", func(t *testing.T) {
		if _, err := dir.Resolve(context.Background(), "  "); !errors.Is(err, domain.ErrIdentityNotFound) {
			t.Fatalf("expected ErrIdentityNotFound, got %v", err)
		}
	})

	t.Run("repository failure", func(t *testing.T) {
		d := NewUserDirectory(failingUserRepo{err: errors.New("db down")})
		if _, err := d.Resolve(context.Background(), "alice"); !errors.Is(err, domain.ErrStorage) {
			t.Fatalf("expected ErrStorage, got %v", err)
		}
	})
}

type mockRedisKV struct {
	data   map[string][]byte
	getErr error
	sets   int
}

func (m *mockRedisKV) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if m.getErr != nil {
		cmd.SetErr(m.getErr)
		return cmd
	}
	v, ok := m.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(string(v))
	return cmd
}

func (m *mockRedisKV) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	m.sets++
	m.data[key] = value.([]byte)
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

type countingResolver struct {
	calls int
	inner IdentityResolver
}

func (c *countingResolver) Resolve(ctx context.Context, username string) (domain.User, error) {
	c.calls++
	return c.inner.Resolve(ctx, username)
}

func TestCachedIdentityResolver(t *testing.T) {
	repo := repository.NewMemoryUserRepository(domain.User{ID: "u1", Username: "alice"})
	next := &countingResolver{inner: NewUserDirectory(repo)}
	kv := &mockRedisKV{data: map[string][]byte{}}
	r := &CachedIdentityResolver{next: next, client: kv, ttl: time.Minute, prefix: "chat:identity:", logger: zap.NewNop()}

	for i := 0; i < 3; i++ {
		u, err := r.Resolve(context.Background(), "alice")
		if err != nil || u.ID != "u1" {
			t.Fatalf("resolve %d: %+v (%v)", i, u, err)
		}
	}
	if next.calls != 1 {
		t.Fatalf("expected one backend lookup, got %d", next.calls)
	}
	if kv.sets != 1 {
		t.Fatalf("expected one cache set, got %d", kv.sets)
	}

	var cached domain.User
	if err := json.Unmarshal(kv.data["chat:identity:alice"], &cached); err != nil || cached.Username != "alice" {
		t.Fatalf("unexpected cached payload: %s", kv.data["chat:identity:alice"])
	}

	if _, err := r.Resolve(context.Background(), "mallory"); !errors.Is(err, domain.ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
	if kv.sets != 1 {
		t.Fatalf("expected misses not to be cached")
	}
}

func TestCachedIdentityResolver_CacheErrorFallsThrough(t *testing.T) {
	repo := repository.NewMemoryUserRepository(domain.User{ID: "u1", Username: "alice"})
	kv := &mockRedisKV{data: map[string][]byte{}, getErr: errors.New("redis down")}
	r := &CachedIdentityResolver{next: NewUserDirectory(repo), client: kv, ttl: time.Minute, prefix: "p:", logger: zap.NewNop()}

	u, err := r.Resolve(context.Background(), "alice")
	if err != nil || u.ID != "u1" {
		t.Fatalf("expected fallback to directory, got %+v (%v)", u, err)
	}
}

func TestNewCachedIdentityResolver_NilClientReturnsNext(t *testing.T) {
	next := NewUserDirectory(repository.NewMemoryUserRepository())
	if got := NewCachedIdentityResolver(next, nil, time.Minute, zap.NewNop()); got != IdentityResolver(next) {
		t.Fatalf("expected resolver without cache when client is nil")
	}
}
