package models

import (
	"strconv"

	"gorm.io/gorm"
)

// MessageRecord represents a stored direct message in PostgreSQL.
// The embedded gorm.Model provides ID and CreatedAt, which are the
// authoritative message id and ordering field.
type MessageRecord struct {
	gorm.Model

	// RoomKey is the canonical key of the conversation.
	RoomKey string `gorm:"type:text;not null;index:idx_room_msg"`
	// SenderID is the participant who wrote the message.
	SenderID string `gorm:"type:text;not null;index:idx_room_msg"`
	// ReceiverID is the other participant of the room.
	ReceiverID string `gorm:"type:text;not null;index:idx_receiver_read"`
	// Text is the message body.
	Text string `gorm:"type:text;not null"`
	// IsRead flips once the receiver marks the room read.
	IsRead bool `gorm:"not null;default:false;index:idx_receiver_read"`
}

// ToMessage converts the record into the wire/cache representation.
// sender may be nil when the author's profile is unknown.
func (r *MessageRecord) ToMessage(sender *Participant) Message {
	msg := Message{
		ID:         strconv.FormatUint(uint64(r.ID), 10),
		RoomKey:    r.RoomKey,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Text:       r.Text,
		CreatedAt:  r.CreatedAt,
		IsRead:     r.IsRead,
	}
	if sender != nil {
		msg.SenderInfo = &SenderInfo{ID: sender.ID, Name: sender.Name}
	}
	return msg
}
