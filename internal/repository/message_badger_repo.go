package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"group-chat/internal/domain"
)

const (
	badgerMessagePrefix = "msg:"
	badgerSequenceKey   = "seq:chat_messages"
	badgerSequenceLease = 128
)

// BadgerMessageRepository persiste mensajes en BadgerDB.
// La clave es "msg:{id con padding de 20 dígitos}" para que el orden lexicográfico
// coincida con el orden de los ids.
type BadgerMessageRepository struct {
	db  *badger.DB
	seq *badger.Sequence
	now func() time.Time

	mu          sync.Mutex
	lastCreated time.Time
}

type badgerMessage struct {
	ID         int64     `json:"id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewBadgerMessageRepository(db *badger.DB) (*BadgerMessageRepository, error) {
	seq, err := db.GetSequence([]byte(badgerSequenceKey), badgerSequenceLease)
	if err != nil {
		return nil, fmt.Errorf("badger sequence: %w", err)
	}
	r := &BadgerMessageRepository{
		db:  db,
		seq: seq,
		now: func() time.Time { return time.Now().UTC() },
	}
	last, err := r.lastMessage()
	if err != nil {
		_ = seq.Release()
		return nil, err
	}
	r.lastCreated = last.CreatedAt
	return r, nil
}

// Close libera el lease de la secuencia. No cierra la DB.
func (r *BadgerMessageRepository) Close() error {
	return r.seq.Release()
}

func badgerMessageKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", badgerMessagePrefix, id))
}

func (r *BadgerMessageRepository) Append(_ context.Context, sender domain.User, body string) (domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.seq.Next()
	if err != nil {
		return domain.Message{}, fmt.Errorf("next id: %w", err)
	}
	createdAt := r.now()
	if createdAt.Before(r.lastCreated) {
		createdAt = r.lastCreated
	}
	rec := badgerMessage{
		ID:         int64(n) + 1,
		SenderID:   sender.ID,
		SenderName: sender.Name(),
		Body:       body,
		CreatedAt:  createdAt,
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return domain.Message{}, err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerMessageKey(rec.ID), value)
	})
	if err != nil {
		return domain.Message{}, err
	}
	r.lastCreated = createdAt
	return rec.toDomain(), nil
}

func (r *BadgerMessageRepository) ListAfter(_ context.Context, lastID int64, limit int) ([]domain.Message, error) {
	messages := make([]domain.Message, 0)
	// no existe id mayor que MaxInt64; lastID+1 desbordaría a un valor negativo
	if limit <= 0 || lastID == math.MaxInt64 {
		return messages, nil
	}
	prefix := []byte(badgerMessagePrefix)
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(badgerMessageKey(lastID + 1)); it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				break
			}
			var rec badgerMessage
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			messages = append(messages, rec.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *BadgerMessageRepository) lastMessage() (badgerMessage, error) {
	var rec badgerMessage
	prefix := []byte(badgerMessagePrefix)
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// 0xFF queda después de cualquier dígito.
		it.Seek(append(append([]byte{}, prefix...), 0xFF))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		return it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	return rec, err
}

func (m badgerMessage) toDomain() domain.Message {
	return domain.Message{
		ID:         m.ID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt.UTC(),
	}
}
