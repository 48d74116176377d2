package models

import "time"

// RoomSummary is the client-side view of one two-party conversation.
//
// UnreadCount equals the number of unread messages from the other party
// whenever Messages holds the full history. After a counter-only sync the
// counter is authoritative and may not reconcile with a partial log.
type RoomSummary struct {
	RoomKey              string    `json:"roomKey"`
	OtherParticipantID   string    `json:"otherParticipantId"`
	OtherParticipantName string    `json:"otherParticipantName"`
	LastMessageText      string    `json:"lastMessageText"`
	LastMessageTime      time.Time `json:"lastMessageTime"`
	UnreadCount          int       `json:"unreadCount"`
	Messages             []Message `json:"messages,omitempty"`
}

// Clone returns a deep copy of the summary.
func (r *RoomSummary) Clone() *RoomSummary {
	if r == nil {
		return nil
	}
	out := *r
	if r.Messages != nil {
		out.Messages = make([]Message, len(r.Messages))
		for i, m := range r.Messages {
			out.Messages[i] = m.Clone()
		}
	}
	return &out
}

// ChatRoom is the persisted record of a two-party conversation on the
// message service. RoomKey is derived from the participants, never generated.
type ChatRoom struct {
	// RoomKey is the canonical key of the participant pair.
	RoomKey string `gorm:"primaryKey"`
	// User1ID is the lexicographically smaller participant.
	User1ID string `gorm:"index;not null"`
	// User2ID is the lexicographically greater participant.
	User2ID string `gorm:"index;not null"`
	// CreatedAt is set when the first message is stored.
	CreatedAt time.Time
	// LastMessageAt moves forward with every stored message.
	LastMessageAt time.Time
}

// Other returns the participant of the room that is not userID.
func (r *ChatRoom) Other(userID string) string {
	if r.User1ID == userID {
		return r.User2ID
	}
	return r.User1ID
}
