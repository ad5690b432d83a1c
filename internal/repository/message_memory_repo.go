package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"group-chat/internal/domain"
)

// MemoryMessageRepository guarda mensajes en memoria. Util para desarrollo y tests.
type MemoryMessageRepository struct {
	mu       sync.RWMutex
	messages []domain.Message
	nextID   int64
	now      func() time.Time
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		nextID: 1,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryMessageRepository) Append(_ context.Context, sender domain.User, body string) (domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	createdAt := r.now()
	if n := len(r.messages); n > 0 && createdAt.Before(r.messages[n-1].CreatedAt) {
		createdAt = r.messages[n-1].CreatedAt
	}
	msg := domain.Message{
		ID:         r.nextID,
		SenderID:   sender.ID,
		SenderName: sender.Name(),
		Body:       body,
		CreatedAt:  createdAt,
	}
	r.nextID++
	r.messages = append(r.messages, msg)
	return msg, nil
}

func (r *MemoryMessageRepository) ListAfter(_ context.Context, lastID int64, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	start := sort.Search(len(r.messages), func(i int) bool {
		return r.messages[i].ID > lastID
	})
	end := start + limit
	if end > len(r.messages) {
		end = len(r.messages)
	}
	out := make([]domain.Message, end-start)
	copy(out, r.messages[start:end])
	return out, nil
}
