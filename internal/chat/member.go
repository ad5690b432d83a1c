package chat

import (
	"sync"

	"github.com/google/uuid"
)

// Member es el handle de una conexión dentro del Registry.
// Cada miembro tiene su propia cola acotada: un consumidor lento solo se afecta a sí mismo.
type Member struct {
	ID string

	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewMember(queueSize int) *Member {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Member{
		ID:    uuid.NewString(),
		queue: make(chan []byte, queueSize),
		done:  make(chan struct{}),
	}
}

// Enqueue encola un frame sin bloquear. Devuelve false si la cola está llena o el miembro cerrado.
func (m *Member) Enqueue(frame []byte) bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.queue <- frame:
		return true
	default:
		return false
	}
}

// Frames es el canal que drena el writer de la conexión.
func (m *Member) Frames() <-chan []byte { return m.queue }

// Done se cierra cuando el miembro deja de aceptar frames.
func (m *Member) Done() <-chan struct{} { return m.done }

// Close es idempotente.
func (m *Member) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}
