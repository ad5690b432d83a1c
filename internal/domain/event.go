package domain

import "time"

// ClockLayout es el formato HH:MM (24h) usado en los eventos salientes.
const ClockLayout = "15:04"

// InboundEvent es lo que un cliente envía por el websocket.
type InboundEvent struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

// OutboundEvent es lo que el grupo recibe por cada mensaje persistido.
type OutboundEvent struct {
	Message  string `json:"message"`
	Username string `json:"username"`
	Time     string `json:"time"`
}

// ErrorEvent se envía solo a la conexión que originó el error.
type ErrorEvent struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// NewOutboundEvent arma el evento de broadcast para un mensaje ya persistido.
func NewOutboundEvent(msg Message, loc *time.Location) OutboundEvent {
	return OutboundEvent{
		Message:  msg.Body,
		Username: msg.SenderName,
		Time:     FormatClock(msg.CreatedAt, loc),
	}
}

// FormatClock renderiza t como HH:MM en loc (zona local si loc es nil).
func FormatClock(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(ClockLayout)
}
