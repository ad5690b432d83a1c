package domain

import "time"

const (
	// MaxMessageLength es el largo máximo del cuerpo de un mensaje, en caracteres.
	MaxMessageLength = 1000
	// DefaultPageSize es la cantidad máxima de mensajes devuelta por página.
	DefaultPageSize = 50
	// DefaultRoom es el nombre del grupo compartido por todas las conexiones.
	DefaultRoom = "group_chat"
)

// Message es un mensaje persistido. ID y CreatedAt los asigna el store.
type Message struct {
	ID         int64     `json:"id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender"`
	Body       string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}
