// Package telemetry expone métricas Prometheus y tracing OpenTelemetry del chat.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesPersisted prometheus.Counter
	MessagesRejected  *prometheus.CounterVec
	EventsPublished   prometheus.Counter
	DeliveriesQueued  prometheus.Counter
	DeliveriesDropped prometheus.Counter

	// Histograms (seconds)
	AppendDuration  prometheus.Observer
	PublishDuration prometheus.Observer

	// Gauges
	ActiveSessions prometheus.Gauge
)

// Init registra las métricas (idempotente).
func Init() {
	once.Do(func() {
		MessagesPersisted = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_persisted_total", Help: "Messages appended to the store"})
		MessagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_messages_rejected_total", Help: "Inbound events rejected, by error code"}, []string{"code"})
		EventsPublished = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_events_published_total", Help: "Events published to a group"})
		DeliveriesQueued = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_deliveries_queued_total", Help: "Frames enqueued for a member"})
		DeliveriesDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_deliveries_dropped_total", Help: "Frames dropped because a member queue was full or closed"})
		AppendDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_append_duration_seconds", Help: "Store append duration seconds", Buckets: prometheus.DefBuckets})
		PublishDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_publish_duration_seconds", Help: "Group publish duration seconds", Buckets: prometheus.DefBuckets})
		ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_active_sessions", Help: "Currently joined chat sessions"})
	})
}

// Inc incrementa c si las métricas fueron inicializadas.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// IncRejected cuenta un evento rechazado con su código.
func IncRejected(code string) {
	if MessagesRejected != nil {
		MessagesRejected.WithLabelValues(code).Inc()
	}
}

// SessionOpened / SessionClosed mueven el gauge de sesiones activas.
func SessionOpened() {
	if ActiveSessions != nil {
		ActiveSessions.Inc()
	}
}

func SessionClosed() {
	if ActiveSessions != nil {
		ActiveSessions.Dec()
	}
}

// TimeFunc mide fn y registra la duración en obs si no es nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}
