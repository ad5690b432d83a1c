package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"group-chat/internal/domain"
)

// ErrNotFound se devuelve cuando el registro pedido no existe.
var ErrNotFound = errors.New("not found")

// MessageRepository persiste mensajes del chat. Append asigna ID y CreatedAt.
type MessageRepository interface {
	Append(ctx context.Context, sender domain.User, body string) (domain.Message, error)
	ListAfter(ctx context.Context, lastID int64, limit int) ([]domain.Message, error)
}

// PgMessageRepository implementa MessageRepository usando pgxpool.
type PgMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

// appendLockKey serializa los INSERT para que el orden de commit coincida con el de los ids.
const appendLockKey = `SELECT pg_advisory_xact_lock(hashtext('chat_messages'))`

func (r *PgMessageRepository) Append(ctx context.Context, sender domain.User, body string) (domain.Message, error) {
	const query = `
		INSERT INTO chat_messages (sender_id, body)
		VALUES ($1, $2)
		RETURNING id, created_at
	`

	msg := domain.Message{
		SenderID:   sender.ID,
		SenderName: sender.Name(),
		Body:       body,
	}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, appendLockKey); err != nil {
			return err
		}
		return tx.QueryRow(ctx, query, sender.ID, body).Scan(&msg.ID, &msg.CreatedAt)
	})
	if err != nil {
		return domain.Message{}, err
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return msg, nil
}

func (r *PgMessageRepository) ListAfter(ctx context.Context, lastID int64, limit int) ([]domain.Message, error) {
	const query = `
		SELECT m.id, m.sender_id, u.username, m.body, m.created_at
		FROM chat_messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id > $1
		ORDER BY m.id ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, lastID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]domain.Message, 0, limit)
	for rows.Next() {
		var msg domain.Message
		err = rows.Scan(
			&msg.ID,
			&msg.SenderID,
			&msg.SenderName,
			&msg.Body,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}
