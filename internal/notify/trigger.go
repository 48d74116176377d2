// Package notify decides when to surface a "new message" alert.
//
// The trigger has two states, Idle and Showing. A new inbound message for a
// room that is not open replaces whatever alert is showing; there is no
// queue. Dismissing the alert or opening its room returns to Idle.
package notify

import (
	"sync"

	"github.com/rs/zerolog"

	"garagechat/backend/internal/metrics"
	"garagechat/backend/internal/models"
)

// Listener is told about every state change of the trigger.
type Listener interface {
	NotificationChanged(state models.NotificationState)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(state models.NotificationState)

// NotificationChanged calls f(state).
func (f ListenerFunc) NotificationChanged(state models.NotificationState) { f(state) }

// Trigger is the process-wide notification state machine.
type Trigger struct {
	mu        sync.Mutex
	state     models.NotificationState
	listeners []Listener
	logger    zerolog.Logger
}

// NewTrigger creates an Idle trigger.
func NewTrigger(logger zerolog.Logger, listeners ...Listener) *Trigger {
	return &Trigger{
		listeners: listeners,
		logger:    logger.With().Str("component", "notify").Logger(),
	}
}

// AddListener registers l for subsequent state changes.
func (t *Trigger) AddListener(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

// State returns the current notification state.
func (t *Trigger) State() models.NotificationState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Inbound handles a message arriving for roomKey. It reports whether an alert
// is now showing for it. Messages for the active room and the user's own
// messages never fire.
func (t *Trigger) Inbound(roomKey string, ev models.InboundEvent, self string, active bool) bool {
	if active || ev.SenderID == self {
		return false
	}

	next := models.NotificationState{
		Visible:     true,
		MessageText: ev.Text,
		SenderName:  ev.SenderName,
		SenderID:    ev.SenderID,
		RoomKey:     roomKey,
	}
	if next.SenderName == "" {
		next.SenderName = ev.SenderID
	}

	t.mu.Lock()
	replaced := t.state.Visible
	t.state = next
	t.mu.Unlock()

	metrics.NotificationsShown.Inc()
	t.logger.Debug().
		Str("room", roomKey).
		Bool("replaced", replaced).
		Msg("notification showing")
	t.notify(next)
	return true
}

// Dismiss hides the alert.
func (t *Trigger) Dismiss() {
	t.reset(func(models.NotificationState) bool { return true })
}

// RoomOpened clears the alert if it belongs to roomKey.
func (t *Trigger) RoomOpened(roomKey string) {
	t.reset(func(s models.NotificationState) bool { return s.RoomKey == roomKey })
}

// Accept returns the participant whose chat the user wants to open from the
// alert. The alert itself clears once that room is opened.
func (t *Trigger) Accept() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.Visible {
		return "", false
	}
	return t.state.SenderID, true
}

func (t *Trigger) reset(match func(models.NotificationState) bool) {
	t.mu.Lock()
	if !t.state.Visible || !match(t.state) {
		t.mu.Unlock()
		return
	}
	t.state = models.NotificationState{}
	t.mu.Unlock()

	t.notify(models.NotificationState{})
}

func (t *Trigger) notify(state models.NotificationState) {
	t.mu.Lock()
	listeners := make([]Listener, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()

	for _, l := range listeners {
		l.NotificationChanged(state)
	}
}
