package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"garagechat/backend/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Clients are native apps and the bearer token is checked before the
	// upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket streams the caller's inbound-message events. The stream is
// one-way; anything the client sends other than control frames is ignored.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	userID := participantID(c)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := h.Storage.SubscribeInbound(ctx, userID)
	if err != nil {
		cancel()
		h.logger.Error().Err(err).Str("participant", userID).Msg("failed to subscribe inbox")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Inbox unavailable"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		cancel()
		h.logger.Warn().Err(err).Str("participant", userID).Msg("websocket upgrade failed")
		return
	}

	h.logger.Info().Str("participant", userID).Msg("inbox stream opened")
	go h.writePump(conn, events, cancel)
	go h.readPump(conn, cancel)
}

// readPump only watches the connection so a closed client cancels the
// subscription.
func (h *Handler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer func() {
		cancel()
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("error reading from inbox stream")
			}
			return
		}
	}
}

// writePump forwards events to the connection and keeps it alive with pings.
func (h *Handler) writePump(conn *websocket.Conn, events <-chan models.InboundEvent, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		conn.Close()
	}()

	for {
		select {
		case ev, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
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
