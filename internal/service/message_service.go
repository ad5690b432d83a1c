package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"

	"group-chat/internal/domain"
	"group-chat/internal/repository"
	"group-chat/internal/telemetry"
)

// MessageService es el store de mensajes: valida, persiste y pagina.
type MessageService struct {
	repo     repository.MessageRepository
	validate *validator.Validate
}

var ErrMessageServiceNotConfigured = errors.New("message service not configured")

type appendInput struct {
	SenderID string `validate:"required"`
	Body     string `validate:"required,max=1000"`
}

func NewMessageService(repo repository.MessageRepository) *MessageService {
	return &MessageService{
		repo:     repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Append valida y persiste un mensaje. Devuelve domain.ErrValidation o domain.ErrStorage.
// No reintenta: la política de reintentos es del llamador.
func (s *MessageService) Append(ctx context.Context, sender domain.User, body string) (domain.Message, error) {
	if s == nil || s.repo == nil {
		return domain.Message{}, ErrMessageServiceNotConfigured
	}

	in := appendInput{SenderID: strings.TrimSpace(sender.ID), Body: strings.TrimSpace(body)}
	if err := s.validate.Struct(in); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %s", domain.ErrValidation, describeValidation(err))
	}

	ctx, span := telemetry.StartSpan(ctx, "message.append", attribute.String("sender_id", in.SenderID))
	defer span.End()

	var (
		msg domain.Message
		err error
	)
	telemetry.TimeFunc(telemetry.AppendDuration, func() {
		msg, err = s.repo.Append(ctx, sender, in.Body)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return domain.Message{}, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	span.SetAttributes(attribute.Int64("message_id", msg.ID))
	telemetry.Inc(telemetry.MessagesPersisted)
	return msg, nil
}

// ListAfter devuelve hasta limit mensajes con id > lastID, ascendente.
// limit fuera de (0, DefaultPageSize] se normaliza a DefaultPageSize.
func (s *MessageService) ListAfter(ctx context.Context, lastID int64, limit int) ([]domain.Message, error) {
	if s == nil || s.repo == nil {
		return nil, ErrMessageServiceNotConfigured
	}
	if lastID < 0 {
		lastID = 0
	}
	if limit <= 0 || limit > domain.DefaultPageSize {
		limit = domain.DefaultPageSize
	}
	messages, err := s.repo.ListAfter(ctx, lastID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return messages, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch {
	case fe.Field() == "Body" && fe.Tag() == "required":
		return "message must not be empty"
	case fe.Field() == "Body" && fe.Tag() == "max":
		return fmt.Sprintf("message exceeds %d characters", domain.MaxMessageLength)
	case fe.Field() == "SenderID":
		return "sender identity is required"
	default:
		return fe.Error()
	}
}
