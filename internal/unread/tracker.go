// Package unread keeps the per-room unread counter consistent across the
// three paths that change it: inbound messages, reads and server resyncs.
//
// Each room is in state Synced(n):
//
//	Synced(n) --inbound--------> Synced(n+1)
//	Synced(n) --read-----------> Synced(0)
//	Synced(n) --serverSync(m)--> Synced(m)
//
// An inbound message for the active room never increments; it asks for an
// immediate markRead instead.
package unread

import (
	"errors"
	"fmt"

	"garagechat/backend/internal/metrics"
	"garagechat/backend/internal/models"
)

// ErrInvalidTransition is returned for event kinds outside the state machine.
var ErrInvalidTransition = errors.New("invalid unread transition")

// Kind identifies an unread counter transition.
type Kind int

const (
	Inbound Kind = iota + 1
	Read
	ServerSync
)

func (k Kind) String() string {
	switch k {
	case Inbound:
		return "inbound"
	case Read:
		return "read"
	case ServerSync:
		return "server_sync"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is one input to a room's counter.
type Event struct {
	Kind Kind
	// SenderID is set for Inbound.
	SenderID string
	// Active reports whether the room is the one open in the UI.
	Active bool
	// Server is the server-reported count for ServerSync.
	Server int
}

// Outcome is the result of applying an Event.
type Outcome struct {
	Count int
	// MarkRead asks the caller to mark the room read locally and on the server.
	MarkRead bool
}

// Tracker applies counter transitions on behalf of the current user.
// It holds no per-room state; the store owns the counters.
type Tracker struct {
	self string
}

// NewTracker creates a Tracker for the signed-in participant.
func NewTracker(self string) *Tracker {
	return &Tracker{self: self}
}

// Self returns the participant the tracker counts for.
func (t *Tracker) Self() string { return t.self }

// Apply computes the next counter value for a room currently at count.
func (t *Tracker) Apply(count int, ev Event) (Outcome, error) {
	if count < 0 {
		count = 0
	}

	var out Outcome
	switch ev.Kind {
	case Inbound:
		switch {
		case ev.SenderID == t.self:
			out.Count = count
		case ev.Active:
			out.Count = 0
			out.MarkRead = true
		default:
			out.Count = count + 1
		}
	case Read:
		out.Count = 0
	case ServerSync:
		switch {
		case ev.Active:
			out.Count = 0
			out.MarkRead = ev.Server > 0
		case ev.Server < 0:
			out.Count = 0
		default:
			out.Count = ev.Server
		}
	default:
		return Outcome{Count: count}, fmt.Errorf("%w: %s", ErrInvalidTransition, ev.Kind)
	}

	metrics.UnreadTransitions.WithLabelValues(ev.Kind.String()).Inc()
	return out, nil
}

// Recount derives the counter from a fully known message log.
func (t *Tracker) Recount(messages []models.Message) int {
	n := 0
	for _, m := range messages {
		if !m.IsRead && m.SenderID != t.self {
			n++
		}
	}
	return n
}
