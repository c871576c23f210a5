package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aescanero/dafo/internal/application/observers"
	"github.com/aescanero/dafo/pkg/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	sendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Source fans out indexed notifications.
type Source interface {
	Listen(l observers.Listener) (stop func())
}

// Handler handles WebSocket connections
type Handler struct {
	source Source
	logger *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(source Source, logger *zap.Logger) *Handler {
	return &Handler{
		source: source,
		logger: logger,
	}
}

// HandleNotificationStream streams notifications, filtered by ?caller= when
// present. A client that cannot keep up loses notifications rather than
// slowing the observers.
func (h *Handler) HandleNotificationStream(c *gin.Context) {
	var filter common.Address
	if q := c.Query("caller"); q != "" {
		addr, err := domain.ParseAddress(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_REQUEST", "message": err.Error()}})
			return
		}
		filter = addr
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket connection established",
		zap.String("caller_filter", filter.Hex()),
		zap.String("client", c.ClientIP()))

	send := make(chan *domain.Notification, sendBufferSize)
	stop := h.source.Listen(func(n *domain.Notification) {
		if !domain.IsZeroAddress(filter) && n.Caller != filter {
			return
		}
		select {
		case send <- n:
		default:
			h.logger.Warn("notification channel full, dropping notification",
				zap.String("notification_id", n.ID),
				zap.String("client", c.ClientIP()))
		}
	})
	defer stop()

	closed := make(chan struct{})
	go h.readPump(conn, closed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case n := <-send:
			data, err := json.Marshal(n)
			if err != nil {
				h.logger.Error("failed to marshal notification", zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("failed to write message", zap.Error(err))
				return
			}
		}
	}
}

// readPump drains client frames so control messages are processed, and
// closes done when the peer goes away.
func (h *Handler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
