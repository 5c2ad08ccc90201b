package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mikan-dev/multibox/internal/events"
	"github.com/mikan-dev/multibox/internal/infrastructure/logging"
	"github.com/mikan-dev/multibox/internal/infrastructure/monitoring"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	eventBuf   = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // UI is served from the desktop shell, any origin is fine
	},
}

// Handler pushes hub events (instance changes, guard transitions, status
// lines) to WebSocket clients so the UI can re-render without polling.
type Handler struct {
	hub     *events.Hub
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// NewHandler creates a WebSocket handler
func NewHandler(hub *events.Hub, logger *logging.Logger) *Handler {
	return &Handler{hub: hub, logger: logger}
}

// WithMetrics adds metrics tracking
func (h *Handler) WithMetrics(metrics *monitoring.Metrics) *Handler {
	h.metrics = metrics
	return h
}

// HandleConnection upgrades the request and streams events until the client
// goes away.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
		defer h.metrics.WSConnections.Dec()
	}

	subID, ch := h.hub.Subscribe(eventBuf)
	defer h.hub.Unsubscribe(subID)

	// Reader only notices the peer closing; events are push-only
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(evt); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
