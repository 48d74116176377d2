// Package msgcache holds the session-scoped cache of direct-message rooms the
// UI renders from. A Store is created when the user signs in and closed on
// logout; every operation is atomic, so no reader ever observes a partially
// applied mutation.
package msgcache

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"garagechat/backend/internal/models"
	"garagechat/backend/internal/roomkey"
	"garagechat/backend/internal/unread"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("message store closed")
	// ErrUnconfirmed rejects messages that did not come from the remote store.
	ErrUnconfirmed = errors.New("message has no server-assigned id")
	// ErrRoomMismatch rejects a message appended to a room it does not belong to.
	ErrRoomMismatch = errors.New("message belongs to another room")
)

// Result reports the unread state of a room after a mutation.
type Result struct {
	UnreadCount int
	// MarkRead is set when the room was read on arrival and the server
	// should be told.
	MarkRead bool
}

// Store is the per-session room cache.
type Store struct {
	mu      sync.RWMutex
	self    string
	tracker *unread.Tracker
	rooms   map[string]*models.RoomSummary
	active  string
	closed  bool
	logger  zerolog.Logger

	// readThrough is the per-room time up to which every message was read
	// locally. It outlives the room entry so a history reply that lands
	// after the view closed cannot resurrect read messages as unread.
	readThrough map[string]time.Time
	now         func() time.Time
}

// New creates an empty store for the participant the tracker counts for.
func New(tracker *unread.Tracker, logger zerolog.Logger) *Store {
	return &Store{
		self:    tracker.Self(),
		tracker: tracker,
		rooms:   make(map[string]*models.RoomSummary),
		logger:  logger.With().Str("component", "msgcache").Logger(),

		readThrough: make(map[string]time.Time),
		now:         time.Now,
	}
}

// Self returns the signed-in participant.
func (s *Store) Self() string { return s.self }

// GetRoom returns a copy of the room summary for key.
func (s *Store) GetRoom(key string) (*models.RoomSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[key]
	if !ok {
		return nil, false
	}
	return room.Clone(), true
}

// Rooms returns copies of all rooms, most recent activity first.
func (s *Store) Rooms() []*models.RoomSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.RoomSummary, 0, len(s.rooms))
	for _, r := range s.rooms {
		list = append(list, r.Clone())
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].LastMessageTime.Equal(list[j].LastMessageTime) {
			return list[i].RoomKey < list[j].RoomKey
		}
		return list[i].LastMessageTime.After(list[j].LastMessageTime)
	})
	return list
}

// TotalUnread sums the unread counters of all rooms.
func (s *Store) TotalUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, r := range s.rooms {
		total += r.UnreadCount
	}
	return total
}

// ReadThrough returns the time up to which the room was read locally, or the
// zero time if it never was.
func (s *Store) ReadThrough(key string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readThrough[key]
}

// SetActiveRoom records the room currently open in the UI. An empty key means
// no room is open.
func (s *Store) SetActiveRoom(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = key
}

// ActiveRoom returns the key of the open room, or "".
func (s *Store) ActiveRoom() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// UpsertRoom replaces or inserts a room summary wholesale.
func (s *Store) UpsertRoom(summary *models.RoomSummary) error {
	if summary == nil {
		return errors.New("nil room summary")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	other, err := roomkey.Other(summary.RoomKey, s.self)
	if err != nil {
		return err
	}

	room := summary.Clone()
	if room.OtherParticipantID == "" {
		room.OtherParticipantID = other
	}
	if room.UnreadCount < 0 {
		room.UnreadCount = 0
	}
	for i := range room.Messages {
		room.Messages[i].RoomKey = room.RoomKey
	}
	s.rooms[room.RoomKey] = room
	return nil
}

// AppendMessage appends a server-confirmed message at the tail of the room's
// log and updates the last-message fields. The unread counter moves only for
// messages from the other participant while the room is not open; a message
// arriving for the open room is stored read and Result.MarkRead is set.
//
// No reordering is attempted: the caller is responsible for append order.
func (s *Store) AppendMessage(key string, msg models.Message) (Result, error) {
	if msg.ID == "" {
		return Result{}, ErrUnconfirmed
	}
	if msg.RoomKey != "" && msg.RoomKey != key {
		return Result{}, fmt.Errorf("%w: %q appended to %q", ErrRoomMismatch, msg.RoomKey, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.lookupLocked(key)
	if err != nil {
		return Result{}, err
	}

	out, err := s.tracker.Apply(room.UnreadCount, unread.Event{
		Kind:     unread.Inbound,
		SenderID: msg.SenderID,
		Active:   s.active == key,
	})
	if err != nil {
		return Result{}, err
	}

	msg = msg.Clone()
	msg.RoomKey = key
	if out.MarkRead {
		markAllRead(room)
		msg.IsRead = true
	}
	room.Messages = append(room.Messages, msg)
	room.LastMessageText = msg.Text
	room.LastMessageTime = msg.CreatedAt
	room.UnreadCount = out.Count
	s.rooms[key] = room
	if out.MarkRead {
		s.noteReadLocked(key, msg.CreatedAt)
	}

	s.logger.Debug().
		Str("room", key).
		Str("message_id", msg.ID).
		Int("unread", room.UnreadCount).
		Msg("message appended")
	return Result{UnreadCount: out.Count, MarkRead: out.MarkRead}, nil
}

// RecordInbound applies an inbound event that carries no stored message:
// the last-message fields and the unread counter move, the log does not.
func (s *Store) RecordInbound(key string, ev models.InboundEvent, at time.Time) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.lookupLocked(key)
	if err != nil {
		return Result{}, err
	}

	out, err := s.tracker.Apply(room.UnreadCount, unread.Event{
		Kind:     unread.Inbound,
		SenderID: ev.SenderID,
		Active:   s.active == key,
	})
	if err != nil {
		return Result{}, err
	}

	if out.MarkRead {
		markAllRead(room)
		s.noteReadLocked(key, at)
	}
	room.LastMessageText = ev.Text
	room.LastMessageTime = at
	if ev.SenderID != s.self && ev.SenderName != "" {
		room.OtherParticipantName = ev.SenderName
	}
	room.UnreadCount = out.Count
	s.rooms[key] = room
	return Result{UnreadCount: out.Count, MarkRead: out.MarkRead}, nil
}

// MarkRoomRead marks every message in the room read and zeroes the counter.
// The read watermark moves to now even for a room not cached yet, so that its
// history, once fetched, arrives read.
func (s *Store) MarkRoomRead(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	room, ok := s.rooms[key]
	if !ok {
		s.noteReadLocked(key, time.Time{})
		return nil
	}
	s.noteReadLocked(key, room.LastMessageTime)

	out, err := s.tracker.Apply(room.UnreadCount, unread.Event{Kind: unread.Read})
	if err != nil {
		return err
	}
	markAllRead(room)
	room.UnreadCount = out.Count
	return nil
}

// SetUnreadCount overwrites the counter with the server's value. The server
// wins over locally accumulated increments, except for the open room, which
// stays at zero and reports MarkRead when the server still counts unread.
func (s *Store) SetUnreadCount(key string, n int) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.lookupLocked(key)
	if err != nil {
		return Result{}, err
	}
	out, err := s.applySyncLocked(room, n)
	if err != nil {
		return Result{}, err
	}
	s.rooms[key] = room
	return out, nil
}

// ApplyOverview merges a room-list entry from the server: names and the last
// message are refreshed when newer, the counter is synced, the log is kept.
func (s *Store) ApplyOverview(summary models.RoomSummary) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.lookupLocked(summary.RoomKey)
	if err != nil {
		return Result{}, err
	}
	out, err := s.applySyncLocked(room, summary.UnreadCount)
	if err != nil {
		return Result{}, err
	}

	if summary.OtherParticipantName != "" {
		room.OtherParticipantName = summary.OtherParticipantName
	}
	if summary.LastMessageTime.After(room.LastMessageTime) {
		room.LastMessageText = summary.LastMessageText
		room.LastMessageTime = summary.LastMessageTime
	}
	s.rooms[summary.RoomKey] = room
	return out, nil
}

// Close tears the store down. Later operations fail with ErrClosed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.active = ""
	s.rooms = make(map[string]*models.RoomSummary)
	s.readThrough = make(map[string]time.Time)
	s.logger.Debug().Msg("message store closed")
}

// lookupLocked returns the room for key, or a new unattached room that the
// caller stores only after every check passed.
func (s *Store) lookupLocked(key string) (*models.RoomSummary, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if room, ok := s.rooms[key]; ok {
		return room, nil
	}
	other, err := roomkey.Other(key, s.self)
	if err != nil {
		return nil, err
	}
	return &models.RoomSummary{RoomKey: key, OtherParticipantID: other}, nil
}

func (s *Store) applySyncLocked(room *models.RoomSummary, n int) (Result, error) {
	out, err := s.tracker.Apply(room.UnreadCount, unread.Event{
		Kind:   unread.ServerSync,
		Server: n,
		Active: s.active == room.RoomKey,
	})
	if err != nil {
		return Result{}, err
	}
	if out.MarkRead {
		markAllRead(room)
		s.noteReadLocked(room.RoomKey, room.LastMessageTime)
	}
	room.UnreadCount = out.Count
	return Result{UnreadCount: out.Count, MarkRead: out.MarkRead}, nil
}

// noteReadLocked moves the room's read watermark forward to the later of
// through and now. It never moves back.
func (s *Store) noteReadLocked(key string, through time.Time) {
	if now := s.now(); now.After(through) {
		through = now
	}
	if through.After(s.readThrough[key]) {
		s.readThrough[key] = through
	}
}

func markAllRead(room *models.RoomSummary) {
	for i := range room.Messages {
		room.Messages[i].IsRead = true
	}
}
