package chathub

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"garagechat/backend/internal/gateway"
	"garagechat/backend/internal/models"
	"garagechat/backend/internal/msgcache"
	"garagechat/backend/internal/notify"
	"garagechat/backend/internal/roomkey"
	"garagechat/backend/internal/unread"
)

// ErrStopped is returned when the manager loop is no longer running.
var ErrStopped = errors.New("chat manager stopped")

// SendRequest asks the loop to send Text in Session's room.
type SendRequest struct {
	Session *ChatSession
	Text    string
}

type historyResult struct {
	roomKey  string
	messages []models.Message
	err      error
}

type sendResult struct {
	session *ChatSession
	text    string
	msg     models.Message
	err     error
}

type syncResult struct {
	rooms []models.RoomSummary
	total int
	err   error
}

// ManagerService is the single event loop of a signed-in client. Every
// cache mutation, whether it comes from the UI or from a network completion,
// is applied inside Run; gateway calls run in goroutines and post their
// results back on the loop's channels.
type ManagerService struct {
	Self       string
	Tracker    *unread.Tracker
	Store      *msgcache.Store
	Gateway    gateway.Gateway
	Outbox     *gateway.Outbox
	Reconciler *gateway.ReadReconciler
	Trigger    *notify.Trigger

	// ResyncInterval is how often the room list and unread total are pulled
	// from the service. Zero disables periodic resync.
	ResyncInterval time.Duration

	// Channels
	InboundCh chan models.InboundEvent
	OpenCh    chan *ChatSession
	CloseCh   chan *ChatSession
	SendCh    chan SendRequest
	DismissCh chan struct{}
	AcceptCh  chan struct{}
	ResyncCh  chan struct{}

	// OpenChatCh carries the participant the user chose to chat with from a
	// notification. The application mounts a session for it.
	OpenChatCh chan string

	historyCh chan historyResult
	sentCh    chan sendResult
	syncCh    chan syncResult
	done      chan struct{}

	sessions    map[string]*ChatSession
	resyncing   bool
	serverTotal int
	logger      zerolog.Logger
}

// NewManagerService wires the cache, tracker, trigger and gateway helpers for
// the participant self.
func NewManagerService(self string, gw gateway.Gateway, policy gateway.RetryPolicy, logger zerolog.Logger) *ManagerService {
	logger = logger.With().Str("component", "chathub").Str("self", self).Logger()
	tracker := unread.NewTracker(self)

	return &ManagerService{
		Self:       self,
		Tracker:    tracker,
		Store:      msgcache.New(tracker, logger),
		Gateway:    gw,
		Outbox:     gateway.NewOutbox(gw),
		Reconciler: gateway.NewReadReconciler(gw, policy, logger),
		Trigger:    notify.NewTrigger(logger),

		InboundCh:  make(chan models.InboundEvent, 64),
		OpenCh:     make(chan *ChatSession),
		CloseCh:    make(chan *ChatSession),
		SendCh:     make(chan SendRequest, 16),
		DismissCh:  make(chan struct{}),
		AcceptCh:   make(chan struct{}),
		ResyncCh:   make(chan struct{}, 1),
		OpenChatCh: make(chan string, 1),

		historyCh: make(chan historyResult),
		sentCh:    make(chan sendResult),
		syncCh:    make(chan syncResult),
		done:      make(chan struct{}),

		sessions: make(map[string]*ChatSession),
		logger:   logger,
	}
}

// Open mounts a view of the conversation with other. It fails only when the
// room key cannot be derived.
func (m *ManagerService) Open(other, otherName string) (*ChatSession, error) {
	key, err := roomkey.Derive(m.Self, other)
	if err != nil {
		return nil, err
	}
	s := newChatSession(m, key, other, otherName)
	select {
	case m.OpenCh <- s:
		return s, nil
	case <-m.done:
		return nil, ErrStopped
	}
}

// Dismiss hides the pending notification.
func (m *ManagerService) Dismiss() {
	select {
	case m.DismissCh <- struct{}{}:
	case <-m.done:
	}
}

// Accept acts on the pending notification: the sender's id is published on
// OpenChatCh.
func (m *ManagerService) Accept() {
	select {
	case m.AcceptCh <- struct{}{}:
	case <-m.done:
	}
}

// Resync asks for a room list and unread count refresh.
func (m *ManagerService) Resync() {
	select {
	case m.ResyncCh <- struct{}{}:
	default:
	}
}

// ServerUnreadTotal returns the unread total last reported by the service.
// Only valid inside the loop or after Run returned.
func (m *ManagerService) ServerUnreadTotal() int {
	return m.serverTotal
}

// Done is closed when Run returns.
func (m *ManagerService) Done() <-chan struct{} {
	return m.done
}

// Run processes events until ctx is cancelled, then tears the session down.
func (m *ManagerService) Run(ctx context.Context) {
	defer close(m.done)

	var tick <-chan time.Time
	if m.ResyncInterval > 0 {
		ticker := time.NewTicker(m.ResyncInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	m.logger.Info().Msg("chat manager started")
	for {
		select {
		case <-ctx.Done():
			m.teardown()
			return

		case s := <-m.OpenCh:
			m.handleOpen(ctx, s)
		case s := <-m.CloseCh:
			m.handleClose(s)
		case req := <-m.SendCh:
			m.handleSend(ctx, req)
		case ev := <-m.InboundCh:
			m.handleInbound(ctx, ev)
		case <-m.DismissCh:
			m.Trigger.Dismiss()
		case <-m.AcceptCh:
			m.handleAccept()
		case <-m.ResyncCh:
			m.startResync(ctx)
		case <-tick:
			m.startResync(ctx)

		case res := <-m.historyCh:
			m.applyHistory(ctx, res)
		case res := <-m.sentCh:
			m.applySent(ctx, res)
		case res := <-m.syncCh:
			m.applySync(ctx, res)
		}
	}
}

func (m *ManagerService) handleOpen(ctx context.Context, s *ChatSession) {
	// One mounted view, matching the single active room.
	for key, prev := range m.sessions {
		if prev == s {
			continue
		}
		prev.deliver(SessionUpdate{Err: ErrSessionClosed})
		prev.detach()
		delete(m.sessions, key)
	}
	m.sessions[s.RoomKey] = s

	m.Store.SetActiveRoom(s.RoomKey)
	m.Trigger.RoomOpened(s.RoomKey)

	// Read state is applied locally first and reconciled in the background.
	if err := m.Store.MarkRoomRead(s.RoomKey); err != nil {
		m.logger.Error().Err(err).Str("room", s.RoomKey).Msg("mark room read")
	}
	m.Reconciler.Enqueue(ctx, s.RoomKey)

	if room, ok := m.Store.GetRoom(s.RoomKey); ok {
		s.deliver(SessionUpdate{Room: room})
	}

	m.logger.Debug().Str("room", s.RoomKey).Msg("session opened")
	go func(key string) {
		msgs, err := m.Gateway.FetchHistory(ctx, key)
		select {
		case m.historyCh <- historyResult{roomKey: key, messages: msgs, err: err}:
		case <-ctx.Done():
		}
	}(s.RoomKey)
}

func (m *ManagerService) handleClose(s *ChatSession) {
	if cur, ok := m.sessions[s.RoomKey]; ok && cur == s {
		delete(m.sessions, s.RoomKey)
		if m.Store.ActiveRoom() == s.RoomKey {
			m.Store.SetActiveRoom("")
		}
	}
	m.logger.Debug().Str("room", s.RoomKey).Msg("session closed")
}

func (m *ManagerService) applyHistory(ctx context.Context, res historyResult) {
	s := m.sessions[res.roomKey]

	if res.err != nil {
		m.logger.Warn().Err(res.err).Str("room", res.roomKey).Msg("history fetch failed")
		if s != nil {
			s.deliver(SessionUpdate{Err: res.err})
		}
		return
	}

	summary := &models.RoomSummary{RoomKey: res.roomKey, Messages: res.messages}
	cached, known := m.Store.GetRoom(res.roomKey)
	var cachedLog []models.Message
	if known {
		summary.OtherParticipantID = cached.OtherParticipantID
		summary.OtherParticipantName = cached.OtherParticipantName
		summary.Messages = mergeLate(res.messages, cached.Messages)
		cachedLog = cached.Messages
	}
	keepLocalReads(m.Self, summary.Messages, cachedLog, m.Store.ReadThrough(res.roomKey))
	if s != nil {
		summary.OtherParticipantID = s.OtherID
		if s.OtherName != "" {
			summary.OtherParticipantName = s.OtherName
		}
	}
	if n := len(summary.Messages); n > 0 {
		last := summary.Messages[n-1]
		summary.LastMessageText = last.Text
		summary.LastMessageTime = last.CreatedAt
	} else if known {
		summary.LastMessageText = cached.LastMessageText
		summary.LastMessageTime = cached.LastMessageTime
	}
	summary.UnreadCount = m.Tracker.Recount(summary.Messages)

	if err := m.Store.UpsertRoom(summary); err != nil {
		m.logger.Error().Err(err).Str("room", res.roomKey).Msg("upsert room")
		return
	}

	if m.Store.ActiveRoom() == res.roomKey && summary.UnreadCount > 0 {
		if err := m.Store.MarkRoomRead(res.roomKey); err != nil {
			m.logger.Error().Err(err).Str("room", res.roomKey).Msg("mark room read")
		}
		m.Reconciler.Enqueue(ctx, res.roomKey)
	}

	if s != nil {
		room, _ := m.Store.GetRoom(res.roomKey)
		s.deliver(SessionUpdate{Room: room, Loaded: true})
	}
}

// mergeLate keeps cached messages that arrived after the fetched snapshot
// was taken.
func mergeLate(fetched, cached []models.Message) []models.Message {
	seen := make(map[string]struct{}, len(fetched))
	for _, msg := range fetched {
		seen[msg.ID] = struct{}{}
	}

	var last time.Time
	if n := len(fetched); n > 0 {
		last = fetched[n-1].CreatedAt
	}

	out := fetched
	for _, msg := range cached {
		if _, ok := seen[msg.ID]; ok || msg.CreatedAt.Before(last) {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// keepLocalReads marks read every fetched message the cache already holds
// as read, and every message from the other participant created no later
// than through. The server may not have applied a pending markRead yet.
func keepLocalReads(self string, msgs, cached []models.Message, through time.Time) {
	read := make(map[string]struct{}, len(cached))
	for _, msg := range cached {
		if msg.IsRead {
			read[msg.ID] = struct{}{}
		}
	}

	for i := range msgs {
		msg := &msgs[i]
		if msg.IsRead {
			continue
		}
		if _, ok := read[msg.ID]; ok {
			msg.IsRead = true
			continue
		}
		if msg.SenderID != self && !through.IsZero() && !msg.CreatedAt.After(through) {
			msg.IsRead = true
		}
	}
}

func (m *ManagerService) handleSend(ctx context.Context, req SendRequest) {
	s := req.Session
	m.Outbox.Send(ctx, s.RoomKey, s.OtherID, req.Text, func(msg models.Message, err error) {
		select {
		case m.sentCh <- sendResult{session: s, text: req.Text, msg: msg, err: err}:
		case <-ctx.Done():
		}
	})
}

func (m *ManagerService) applySent(ctx context.Context, res sendResult) {
	s := res.session

	if res.err != nil {
		m.logger.Warn().Err(res.err).Str("room", s.RoomKey).Msg("send failed")
		s.failSend(res.text, res.err)
		return
	}

	if _, err := m.Store.AppendMessage(s.RoomKey, res.msg); err != nil {
		m.logger.Error().Err(err).Str("room", s.RoomKey).Str("message_id", res.msg.ID).Msg("append sent message")
		return
	}
	m.Reconciler.Enqueue(ctx, s.RoomKey)

	room, _ := m.Store.GetRoom(s.RoomKey)
	s.deliver(SessionUpdate{Room: room})
}

func (m *ManagerService) handleInbound(ctx context.Context, ev models.InboundEvent) {
	log := m.logger.With().Str("sender", ev.SenderID).Logger()

	if ev.SenderID == m.Self {
		log.Debug().Msg("ignoring own echo")
		return
	}
	if ev.ReceiverID != "" && ev.ReceiverID != m.Self {
		log.Warn().Str("receiver", ev.ReceiverID).Msg("inbound event for another participant")
		return
	}

	key, err := roomkey.Derive(m.Self, ev.SenderID)
	if err != nil {
		log.Warn().Err(err).Msg("inbound event without a valid sender")
		return
	}
	active := m.Store.ActiveRoom() == key

	var res msgcache.Result
	if ev.Message != nil && ev.Message.ID != "" {
		if m.hasMessage(key, ev.Message.ID) {
			return
		}
		msg := ev.Message.Clone()
		if msg.SenderInfo == nil && ev.SenderName != "" {
			msg.SenderInfo = &models.SenderInfo{ID: ev.SenderID, Name: ev.SenderName}
		}
		res, err = m.Store.AppendMessage(key, msg)
	} else {
		res, err = m.Store.RecordInbound(key, ev, time.Now())
	}
	if err != nil {
		log.Error().Err(err).Str("room", key).Msg("apply inbound event")
		return
	}
	if res.MarkRead {
		m.Reconciler.Enqueue(ctx, key)
	}

	m.Trigger.Inbound(key, ev, m.Self, active)

	if s := m.sessions[key]; s != nil {
		room, _ := m.Store.GetRoom(key)
		s.deliver(SessionUpdate{Room: room})
	}
}

func (m *ManagerService) hasMessage(key, id string) bool {
	room, ok := m.Store.GetRoom(key)
	if !ok {
		return false
	}
	for _, msg := range room.Messages {
		if msg.ID == id {
			return true
		}
	}
	return false
}

func (m *ManagerService) handleAccept() {
	id, ok := m.Trigger.Accept()
	if !ok {
		return
	}
	select {
	case m.OpenChatCh <- id:
	default:
		m.logger.Warn().Str("participant", id).Msg("open chat signal dropped")
	}
}

func (m *ManagerService) startResync(ctx context.Context) {
	if m.resyncing {
		return
	}
	m.resyncing = true

	go func() {
		var res syncResult
		res.rooms, res.err = m.Gateway.FetchRoomList(ctx)
		if res.err == nil {
			res.total, res.err = m.Gateway.FetchUnreadCount(ctx)
		}
		select {
		case m.syncCh <- res:
		case <-ctx.Done():
		}
	}()
}

func (m *ManagerService) applySync(ctx context.Context, res syncResult) {
	m.resyncing = false
	if res.err != nil {
		m.logger.Warn().Err(res.err).Msg("resync failed")
		return
	}

	for _, summary := range res.rooms {
		out, err := m.Store.ApplyOverview(summary)
		if err != nil {
			m.logger.Warn().Err(err).Str("room", summary.RoomKey).Msg("skipping room overview")
			continue
		}
		if out.MarkRead {
			m.Reconciler.Enqueue(ctx, summary.RoomKey)
		}
		if s := m.sessions[summary.RoomKey]; s != nil {
			room, _ := m.Store.GetRoom(summary.RoomKey)
			s.deliver(SessionUpdate{Room: room})
		}
	}

	m.serverTotal = res.total
	if local := m.Store.TotalUnread(); local != res.total {
		m.logger.Debug().Int("local", local).Int("server", res.total).Msg("unread totals differ")
	}
}

func (m *ManagerService) teardown() {
	for key, s := range m.sessions {
		s.detach()
		delete(m.sessions, key)
	}
	m.Trigger.Dismiss()
	m.Reconciler.Wait()
	m.Store.Close()
	m.logger.Info().Msg("chat manager stopped")
}
