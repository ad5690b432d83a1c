package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"group-chat/internal/domain"
	"group-chat/internal/telemetry"
)

var ErrRegistryClosed = errors.New("registry closed")

// Publisher entrega un evento a todos los miembros de un grupo.
type Publisher interface {
	Publish(ctx context.Context, group string, event domain.OutboundEvent) error
}

// Registry mantiene la membresía de cada grupo y hace el fan-out local.
// Es seguro para uso concurrente.
type Registry struct {
	logger *zap.Logger

	mu     sync.RWMutex
	groups map[string]map[*Member]struct{}
	closed bool
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger,
		groups: make(map[string]map[*Member]struct{}),
	}
}

// Join agrega m al grupo. Unirse dos veces no duplica entregas.
func (r *Registry) Join(group string, m *Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	members := r.groups[group]
	if members == nil {
		members = make(map[*Member]struct{})
		r.groups[group] = members
	}
	members[m] = struct{}{}
	return nil
}

// Leave saca a m del grupo; no hace nada si no estaba.
func (r *Registry) Leave(group string, m *Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.groups[group]
	if members == nil {
		return
	}
	delete(members, m)
	if len(members) == 0 {
		delete(r.groups, group)
	}
}

// Publish codifica el evento una vez y lo encola para cada miembro actual.
// Una entrega fallida se registra y no corta la entrega al resto.
func (r *Registry) Publish(ctx context.Context, group string, event domain.OutboundEvent) error {
	_, span := telemetry.StartSpan(ctx, "registry.publish", attribute.String("group", group))
	defer span.End()

	frame, err := json.Marshal(event)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("encode event: %w", err)
	}

	r.mu.RLock()
	targets := make([]*Member, 0, len(r.groups[group]))
	for m := range r.groups[group] {
		targets = append(targets, m)
	}
	r.mu.RUnlock()

	dropped := 0
	for _, m := range targets {
		if m.Enqueue(frame) {
			telemetry.Inc(telemetry.DeliveriesQueued)
			continue
		}
		dropped++
		telemetry.Inc(telemetry.DeliveriesDropped)
		r.logger.Warn("chat delivery dropped",
			zap.String("group", group),
			zap.String("member_id", m.ID),
			zap.Error(domain.ErrDelivery),
		)
	}
	telemetry.Inc(telemetry.EventsPublished)
	span.SetAttributes(attribute.Int("members", len(targets)), attribute.Int("dropped", dropped))
	return nil
}

// Members devuelve la cantidad de miembros del grupo.
func (r *Registry) Members(group string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[group])
}

// Close cierra todos los miembros y rechaza nuevos Join.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for group, members := range r.groups {
		for m := range members {
			m.Close()
		}
		delete(r.groups, group)
	}
}
