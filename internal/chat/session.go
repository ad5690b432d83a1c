package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"group-chat/internal/domain"
	"group-chat/internal/telemetry"
)

// State es el estado de una Session.
type State int32

const (
	StateConnecting State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var ErrSessionClosed = errors.New("session closed")

// Transport es una conexión de un cliente. Close debe ser idempotente.
type Transport interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, frame []byte) error
	Close() error
}

// Session es la máquina de estados de una conexión: Connecting -> Joined -> Closed.
type Session struct {
	hub      *Hub
	member   *Member
	username string
	logger   *zap.Logger
	state    atomic.Int32
}

func (s *Session) ID() string { return s.member.ID }

func (s *Session) State() State { return State(s.state.Load()) }

// Member devuelve el handle registrado en el grupo.
func (s *Session) Member() *Member { return s.member }

// Open une la sesión al grupo.
func (s *Session) Open() error {
	if s.State() != StateConnecting {
		return ErrSessionClosed
	}
	if err := s.hub.registry.Join(s.hub.cfg.Room, s.member); err != nil {
		s.state.Store(int32(StateClosed))
		s.member.Close()
		return err
	}
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateJoined)) {
		s.hub.registry.Leave(s.hub.cfg.Room, s.member)
		return ErrSessionClosed
	}
	telemetry.SessionOpened()
	s.logger.Info("chat session joined", zap.String("room", s.hub.cfg.Room))
	return nil
}

// Close deja el grupo y cierra el miembro. Es terminal e idempotente.
func (s *Session) Close() {
	prev := State(s.state.Swap(int32(StateClosed)))
	if prev == StateClosed {
		return
	}
	if prev == StateJoined {
		s.hub.registry.Leave(s.hub.cfg.Room, s.member)
		telemetry.SessionClosed()
		s.logger.Info("chat session closed")
	}
	s.member.Close()
}

// Handle procesa un evento entrante. Cualquier error se devuelve y además se
// envía como ErrorEvent solo a esta conexión; la sesión sigue Joined.
func (s *Session) Handle(ctx context.Context, raw []byte) error {
	if s.State() != StateJoined {
		return ErrSessionClosed
	}
	err := s.relay(ctx, raw)
	if err != nil {
		code := domain.ErrorCode(err)
		telemetry.IncRejected(code)
		if code == domain.CodeStorage || code == domain.CodeInternal || code == domain.CodeDelivery {
			s.logger.Error("chat event failed", zap.String("code", code), zap.Error(err))
		} else {
			s.logger.Info("chat event rejected", zap.String("code", code), zap.Error(err))
		}
		s.sendError(err)
	}
	return err
}

// relay: resolver identidad -> limitar -> persistir -> publicar. La publicación nunca ocurre
// si la persistencia falló.
func (s *Session) relay(ctx context.Context, raw []byte) error {
	var in domain.InboundEvent
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("%w: malformed event", domain.ErrValidation)
	}
	username := strings.TrimSpace(in.Username)
	if s.username != "" {
		if username == "" {
			username = s.username
		} else if username != s.username {
			return fmt.Errorf("%w: username does not match authenticated identity", domain.ErrValidation)
		}
	}

	if username == "" {
		return fmt.Errorf("%w: empty username", domain.ErrIdentityNotFound)
	}

	ctx, span := telemetry.StartSpan(ctx, "session.relay", attribute.String("session_id", s.ID()))
	defer span.End()

	sender, err := s.hub.identities.Resolve(ctx, username)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	// el límite se cuenta por identidad resuelta: usernames inventados no ocupan claves
	if s.hub.limiter != nil && !s.hub.limiter.Allow(sender.Username) {
		return domain.ErrRateLimited
	}

	msg, err := s.hub.store.Append(ctx, sender, in.Message)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	event := domain.NewOutboundEvent(msg, s.hub.cfg.ClockLocation)
	telemetry.TimeFunc(telemetry.PublishDuration, func() {
		err = s.hub.publisher.Publish(ctx, s.hub.cfg.Room, event)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("%w: message %d persisted but not published: %v", domain.ErrDelivery, msg.ID, err)
	}
	return nil
}

func (s *Session) sendError(err error) {
	frame, mErr := json.Marshal(domain.NewErrorEvent(err))
	if mErr != nil {
		return
	}
	if !s.member.Enqueue(frame) {
		s.logger.Warn("error event dropped", zap.Error(err))
	}
}

// Run atiende la conexión hasta que el transporte falle. Siempre deja el grupo al salir.
// Cada evento se procesa con un contexto desacoplado de la conexión: un mensaje
// aceptado se persiste y publica aunque el cliente se desconecte a mitad de camino.
func (s *Session) Run(ctx context.Context, t Transport) error {
	if err := s.Open(); err != nil {
		_ = t.Close()
		return err
	}
	defer s.Close()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, t)
	}()

	for {
		raw, err := t.ReadMessage(ctx)
		if err != nil {
			s.logger.Debug("chat transport read ended", zap.Error(err))
			break
		}
		handleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.hub.cfg.HandleTimeout)
		_ = s.Handle(handleCtx, raw)
		cancel()
	}

	s.Close()
	<-writerDone
	return nil
}

// writeLoop es el único escritor de la conexión. Al salir cierra el transporte
// para que el reader también termine.
func (s *Session) writeLoop(ctx context.Context, t Transport) {
	defer func() { _ = t.Close() }()
	for {
		select {
		case frame := <-s.member.Frames():
			if err := t.WriteMessage(ctx, frame); err != nil {
				s.logger.Debug("chat transport write failed", zap.Error(err))
				s.Close()
				return
			}
		case <-s.member.Done():
			return
		}
	}
}
