package models

import "time"

// SenderInfo is display metadata about a message author, resolved once when
// the message enters the client.
type SenderInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is a single direct message. ID and CreatedAt are always assigned by
// the remote store; a Message is never fabricated locally.
type Message struct {
	ID         string      `json:"id"`
	RoomKey    string      `json:"roomKey"`
	SenderID   string      `json:"senderId"`
	ReceiverID string      `json:"receiverId"`
	Text       string      `json:"text"`
	CreatedAt  time.Time   `json:"createdAt"`
	IsRead     bool        `json:"isRead"`
	SenderInfo *SenderInfo `json:"senderInfo,omitempty"`
}

// Clone returns a copy that shares no pointers with m.
func (m Message) Clone() Message {
	if m.SenderInfo != nil {
		info := *m.SenderInfo
		m.SenderInfo = &info
	}
	return m
}

// InboundEvent is delivered by the transport whenever a message arrives for
// any room of the current user, whether or not the room is open.
type InboundEvent struct {
	SenderID   string   `json:"senderId"`
	ReceiverID string   `json:"receiverId"`
	SenderName string   `json:"senderName"`
	Text       string   `json:"text"`
	Message    *Message `json:"message,omitempty"`
}

// NotificationState is the single pending "new message" alert.
type NotificationState struct {
	Visible     bool   `json:"visible"`
	MessageText string `json:"messageText"`
	SenderName  string `json:"senderName"`
	SenderID    string `json:"senderId,omitempty"`
	RoomKey     string `json:"roomKey,omitempty"`
}
