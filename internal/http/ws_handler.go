package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"group-chat/internal/chat"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	writeWait      = 10 * time.Second
	maxInboundSize = 4096
)

// WSHandler hace el upgrade a websocket y entrega la conexión a una chat.Session.
type WSHandler struct {
	logger   *zap.Logger
	hub      *chat.Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(logger *zap.Logger, hub *chat.Hub) *WSHandler {
	return &WSHandler{
		logger: logger,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// el chat no usa cookies; la identidad llega por token o por el evento
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeChat maneja GET /ws/chat.
func (h *WSHandler) ServeChat(c *gin.Context) {
	bound := ""
	if claims, ok := GetAuthClaims(c); ok {
		bound = claims.Username
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade ya respondió con el error HTTP
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx := c.Request.Context()
	t := newWSTransport(conn)
	stop := context.AfterFunc(ctx, func() { _ = t.Close() })
	defer stop()

	session := h.hub.NewSession(bound)
	h.logger.Debug("websocket connected",
		zap.String("session_id", session.ID()),
		zap.String("remote", conn.RemoteAddr().String()),
	)
	if err := session.Run(ctx, t); err != nil {
		h.logger.Warn("chat session ended with error", zap.String("session_id", session.ID()), zap.Error(err))
	}
}

// wsTransport adapta una *websocket.Conn a chat.Transport.
// Un solo goroutine llama WriteMessage; los pings van por WriteControl, que es concurrente.
type wsTransport struct {
	conn      *websocket.Conn
	stop      chan struct{}
	closeOnce sync.Once
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	t := &wsTransport{conn: conn, stop: make(chan struct{})}
	conn.SetReadLimit(maxInboundSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go t.keepalive()
	return t
}

func (t *wsTransport) keepalive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = t.Close()
				return
			}
		case <-t.stop:
			return
		}
	}
}

func (t *wsTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (t *wsTransport) WriteMessage(_ context.Context, frame []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stop)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = t.conn.Close()
	})
	return err
}
