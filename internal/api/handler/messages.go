package handler

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"garagechat/backend/internal/config"
	"garagechat/backend/internal/models"
	"garagechat/backend/internal/roomkey"
	"garagechat/backend/internal/storage"
)

type appendRequest struct {
	RoomKey    string `json:"roomKey"`
	ReceiverID string `json:"receiverId" binding:"required"`
	Text       string `json:"text"`
}

// roomForCaller resolves the :roomKey parameter and aborts unless the caller
// is one of its participants.
func (h *Handler) roomForCaller(c *gin.Context) (string, bool) {
	key := c.Param("roomKey")
	if _, _, err := roomkey.Participants(key); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room key"})
		return "", false
	}
	if !roomkey.Contains(key, participantID(c)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant of this room"})
		return "", false
	}
	return key, true
}

// GetHistory handles GET /messages/:roomKey.
func (h *Handler) GetHistory(c *gin.Context) {
	key, ok := h.roomForCaller(c)
	if !ok {
		return
	}

	msgs, err := h.Storage.GetHistory(key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": msgs})
}

// AppendMessage handles POST /messages. The stored message is returned and
// pushed to the receiver's inbox.
func (h *Handler) AppendMessage(c *gin.Context) {
	var req appendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "receiverId is required"})
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Message text is empty"})
		return
	}
	if utf8.RuneCountInString(text) > config.MaxMessageLength {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Message text is too long"})
		return
	}

	sender := participantID(c)
	key, err := roomkey.Derive(sender, req.ReceiverID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid receiver"})
		return
	}
	if req.RoomKey != "" && req.RoomKey != key {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Room key does not match participants"})
		return
	}

	if _, err := h.Storage.EnsureRoom(key); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to open room"})
		return
	}

	rec := &models.MessageRecord{
		RoomKey:    key,
		SenderID:   sender,
		ReceiverID: req.ReceiverID,
		Text:       text,
	}
	if err := h.Storage.SaveMessage(rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to save message"})
		return
	}

	profile, err := h.Storage.GetParticipant(sender)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.logger.Warn().Err(err).Str("participant", sender).Msg("sender profile unavailable")
	}
	msg := rec.ToMessage(profile)

	ev := models.InboundEvent{
		SenderID:   sender,
		ReceiverID: req.ReceiverID,
		Text:       msg.Text,
		Message:    &msg,
	}
	if profile != nil {
		ev.SenderName = profile.Name
	}
	// Delivery is best-effort; the receiver still sees the message on its
	// next fetch.
	if err := h.Storage.PublishInbound(req.ReceiverID, ev); err != nil {
		h.logger.Warn().Err(err).Str("room", key).Msg("failed to publish inbound event")
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": msg})
}

// MarkRead handles PATCH /messages/:roomKey/read.
func (h *Handler) MarkRead(c *gin.Context) {
	key, ok := h.roomForCaller(c)
	if !ok {
		return
	}

	n, err := h.Storage.MarkRoomRead(key, participantID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark room read"})
		return
	}
	h.logger.Debug().Str("room", key).Int64("updated", n).Msg("room marked read")
	c.Status(http.StatusNoContent)
}

// ListRooms handles GET /messages.
func (h *Handler) ListRooms(c *gin.Context) {
	rooms, err := h.Storage.ListRooms(participantID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list rooms"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rooms})
}

// UnreadCount handles GET /messages/unread/count.
func (h *Handler) UnreadCount(c *gin.Context) {
	n, err := h.Storage.CountUnread(participantID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count unread messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": n})
}
