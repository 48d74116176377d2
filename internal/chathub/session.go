package chathub

import (
	"errors"
	"strings"
	"sync"

	"garagechat/backend/internal/gateway"
	"garagechat/backend/internal/models"
)

// ErrSessionClosed is returned by Send after Close or after another room
// was opened.
var ErrSessionClosed = errors.New("chat session closed")

const updatesBuffer = 16

// SessionUpdate is pushed to an open session whenever its room changes or an
// operation fails.
type SessionUpdate struct {
	Room *models.RoomSummary
	// Loaded is set once the history fetch has been applied.
	Loaded bool
	// Err is gateway.ErrHistoryUnavailable, gateway.ErrSendFailed, or
	// ErrSessionClosed once another room was opened in this session's place.
	Err error
	// Draft is the text to put back in the input after a failed send.
	Draft string
}

// ChatSession is one open conversation. It renders from the store and never
// mutates it directly; all changes go through the manager loop.
type ChatSession struct {
	RoomKey   string
	Self      string
	OtherID   string
	OtherName string

	// Updates receives a notification per change. Slow readers lose
	// intermediate updates but Messages always reflects the latest state.
	Updates chan SessionUpdate

	hub *ManagerService

	mu     sync.Mutex
	closed bool
	loaded bool
	draft  string
	err    error
}

func newChatSession(hub *ManagerService, key, other, otherName string) *ChatSession {
	return &ChatSession{
		RoomKey:   key,
		Self:      hub.Self,
		OtherID:   other,
		OtherName: otherName,
		Updates:   make(chan SessionUpdate, updatesBuffer),
		hub:       hub,
	}
}

// Send queues text for delivery. The call returns as soon as the request is
// queued; the outcome arrives on Updates.
func (s *ChatSession) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return gateway.ErrEmptyText
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.draft = ""
	s.err = nil
	s.mu.Unlock()

	select {
	case s.hub.SendCh <- SendRequest{Session: s, Text: text}:
		return nil
	case <-s.hub.done:
		return ErrStopped
	}
}

// Messages returns the room's log as currently cached.
func (s *ChatSession) Messages() []models.Message {
	room, ok := s.hub.Store.GetRoom(s.RoomKey)
	if !ok {
		return nil
	}
	return room.Messages
}

// Loaded reports whether the history fetch has completed successfully.
func (s *ChatSession) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Draft returns the text restored after a failed send.
func (s *ChatSession) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Err returns the last surfaced error, cleared by the next Send.
func (s *ChatSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close unmounts the session. Operations still in flight update the store
// but no longer reach this session.
func (s *ChatSession) Close() {
	if !s.detach() {
		return
	}
	select {
	case s.hub.CloseCh <- s:
	case <-s.hub.done:
	}
}

// detach marks the session closed. It reports whether it was open.
func (s *ChatSession) detach() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

func (s *ChatSession) deliver(u SessionUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if u.Loaded {
		s.loaded = true
	}
	if u.Err != nil {
		s.err = u.Err
	}
	if u.Draft != "" {
		s.draft = u.Draft
	}

	select {
	case s.Updates <- u:
	default:
	}
}

func (s *ChatSession) failSend(text string, err error) {
	if !errors.Is(err, gateway.ErrSendFailed) {
		err = errors.Join(gateway.ErrSendFailed, err)
	}
	s.deliver(SessionUpdate{Err: err, Draft: text})
}
