package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"group-chat/internal/domain"
)

type messageLister interface {
	ListAfter(ctx context.Context, lastID int64, limit int) ([]domain.Message, error)
}

// ChatHandler expone la paginación del historial del chat.
type ChatHandler struct {
	logger   *zap.Logger
	messages messageLister
}

func NewChatHandler(logger *zap.Logger, messages messageLister) *ChatHandler {
	return &ChatHandler{logger: logger, messages: messages}
}

type messageView struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ListMessages maneja GET /api/messages?last_id=N.
// Devuelve hasta 50 mensajes con id > last_id en orden ascendente.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	lastID := int64(0)
	if raw := c.Query("last_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "last_id must be an integer"})
			return
		}
		lastID = v
	}

	messages, err := h.messages.ListAfter(c.Request.Context(), lastID, domain.DefaultPageSize)
	if err != nil {
		h.logger.Error("list messages failed", zap.Int64("last_id", lastID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": lo.Map(messages, func(m domain.Message, _ int) messageView {
		return messageView{
			ID:        m.ID,
			Sender:    m.SenderName,
			Message:   m.Body,
			Timestamp: m.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	})})
}
