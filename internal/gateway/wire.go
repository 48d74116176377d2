package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"garagechat/backend/internal/models"
)

// wireMessage is a message as the service sends it. Older endpoints embed the
// sender object in senderId instead of a plain id; both shapes are accepted
// here and nowhere else.
type wireMessage struct {
	ID         json.RawMessage    `json:"id"`
	RoomKey    string             `json:"roomKey"`
	SenderID   json.RawMessage    `json:"senderId"`
	ReceiverID string             `json:"receiverId"`
	Text       string             `json:"text"`
	CreatedAt  time.Time          `json:"createdAt"`
	IsRead     bool               `json:"isRead"`
	SenderInfo *models.SenderInfo `json:"senderInfo,omitempty"`
}

type wireSender struct {
	ID    string `json:"id"`
	OldID string `json:"_id"`
	Name  string `json:"name"`
}

type historyResponse struct {
	Data []wireMessage `json:"data"`
}

type appendRequest struct {
	RoomKey    string `json:"roomKey"`
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
}

type appendResponse struct {
	Success bool         `json:"success"`
	Data    *wireMessage `json:"data"`
	Error   string       `json:"error,omitempty"`
}

type countResponse struct {
	Data int `json:"data"`
}

type roomListResponse struct {
	Data []models.RoomSummary `json:"data"`
}

var errMissingID = errors.New("message without id")

// normalize resolves the wire shape into a models.Message.
func (w *wireMessage) normalize() (models.Message, error) {
	id, err := decodeID(w.ID)
	if err != nil {
		return models.Message{}, err
	}
	if id == "" {
		return models.Message{}, errMissingID
	}

	msg := models.Message{
		ID:         id,
		RoomKey:    w.RoomKey,
		ReceiverID: w.ReceiverID,
		Text:       w.Text,
		CreatedAt:  w.CreatedAt,
		IsRead:     w.IsRead,
		SenderInfo: w.SenderInfo,
	}

	raw := bytes.TrimSpace(w.SenderID)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		return models.Message{}, fmt.Errorf("message %s: missing senderId", id)
	case raw[0] == '"':
		if err := json.Unmarshal(raw, &msg.SenderID); err != nil {
			return models.Message{}, fmt.Errorf("message %s: senderId: %w", id, err)
		}
	case raw[0] == '{':
		var s wireSender
		if err := json.Unmarshal(raw, &s); err != nil {
			return models.Message{}, fmt.Errorf("message %s: senderId: %w", id, err)
		}
		msg.SenderID = s.ID
		if msg.SenderID == "" {
			msg.SenderID = s.OldID
		}
		if msg.SenderInfo == nil && msg.SenderID != "" {
			msg.SenderInfo = &models.SenderInfo{ID: msg.SenderID, Name: s.Name}
		}
	default:
		return models.Message{}, fmt.Errorf("message %s: unsupported senderId %s", id, raw)
	}
	if msg.SenderID == "" {
		return models.Message{}, fmt.Errorf("message %s: empty senderId", id)
	}
	return msg, nil
}

// decodeID accepts string and numeric ids.
func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("id: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return "", fmt.Errorf("id %s: %w", n, err)
	}
	return n.String(), nil
}
