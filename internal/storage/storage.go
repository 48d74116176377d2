package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"garagechat/backend/internal/metrics"
	"garagechat/backend/internal/models"
	"garagechat/backend/internal/roomkey"
)

// ErrNotFound is returned when a participant or room does not exist.
var ErrNotFound = errors.New("not found")

type Storage interface {
	SaveParticipant(p *models.Participant) error
	GetParticipant(id string) (*models.Participant, error)

	EnsureRoom(roomKey string) (*models.ChatRoom, error)
	SaveMessage(rec *models.MessageRecord) error
	GetHistory(roomKey string) ([]models.Message, error)
	MarkRoomRead(roomKey, readerID string) (int64, error)
	CountUnread(userID string) (int64, error)
	ListRooms(userID string) ([]models.RoomSummary, error)

	PublishInbound(receiverID string, ev models.InboundEvent) error
	SubscribeInbound(ctx context.Context, userID string) (<-chan models.InboundEvent, error)
}

type Service struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Ctx    context.Context
	logger zerolog.Logger
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client, logger zerolog.Logger) *Service {
	return &Service{
		DB:     db,
		Redis:  rdb,
		Ctx:    context.Background(),
		logger: logger.With().Str("component", "storage").Logger(),
	}
}

// AutoMigrate creates or updates the messaging tables.
func (s *Service) AutoMigrate() error {
	return s.DB.AutoMigrate(&models.Participant{}, &models.ChatRoom{}, &models.MessageRecord{})
}

// SaveParticipant inserts or updates a participant profile.
func (s *Service) SaveParticipant(p *models.Participant) error {
	return s.DB.Save(p).Error
}

// GetParticipant loads a participant by id.
func (s *Service) GetParticipant(id string) (*models.Participant, error) {
	var p models.Participant
	err := s.DB.Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("participant %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// EnsureRoom returns the room for roomKey, creating it on first use.
func (s *Service) EnsureRoom(roomKey string) (*models.ChatRoom, error) {
	a, b, err := roomkey.Participants(roomKey)
	if err != nil {
		return nil, err
	}

	room := models.ChatRoom{RoomKey: roomKey}
	defaults := models.ChatRoom{RoomKey: roomKey, User1ID: a, User2ID: b}
	result := s.DB.Where("room_key = ?", roomKey).FirstOrCreate(&room, defaults)
	if result.Error != nil {
		s.logger.Error().Err(result.Error).Str("room", roomKey).Msg("failed to ensure room")
		return nil, result.Error
	}
	if result.RowsAffected > 0 {
		s.logger.Info().Str("room", roomKey).Msg("room created")
	}
	return &room, nil
}

// SaveMessage stores the record and moves the room's activity timestamp.
// The record's ID and CreatedAt are filled by the database.
func (s *Service) SaveMessage(rec *models.MessageRecord) error {
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		return tx.Model(&models.ChatRoom{}).
			Where("room_key = ?", rec.RoomKey).
			Update("last_message_at", rec.CreatedAt).Error
	})
	if err != nil {
		s.logger.Error().Err(err).Str("room", rec.RoomKey).Msg("failed to save message")
		return err
	}
	metrics.MessagesStored.Inc()
	return nil
}

// GetHistory returns the room's messages in ascending time order with the
// sender's display info attached.
func (s *Service) GetHistory(roomKey string) ([]models.Message, error) {
	var records []models.MessageRecord
	if err := s.DB.Where("room_key = ?", roomKey).Order("created_at asc, id asc").Find(&records).Error; err != nil {
		s.logger.Error().Err(err).Str("room", roomKey).Msg("failed to get history")
		return nil, err
	}

	a, b, err := roomkey.Participants(roomKey)
	if err != nil {
		return nil, err
	}
	people, err := s.participantsByID(a, b)
	if err != nil {
		return nil, err
	}

	msgs := make([]models.Message, 0, len(records))
	for i := range records {
		msgs = append(msgs, records[i].ToMessage(people[records[i].SenderID]))
	}
	return msgs, nil
}

// MarkRoomRead flags every message readerID received in the room as read and
// returns how many changed.
func (s *Service) MarkRoomRead(roomKey, readerID string) (int64, error) {
	result := s.DB.Model(&models.MessageRecord{}).
		Where("room_key = ? AND receiver_id = ? AND is_read = ?", roomKey, readerID, false).
		Update("is_read", true)
	if result.Error != nil {
		s.logger.Error().Err(result.Error).Str("room", roomKey).Msg("failed to mark room read")
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CountUnread returns the number of unread messages addressed to userID.
func (s *Service) CountUnread(userID string) (int64, error) {
	var n int64
	err := s.DB.Model(&models.MessageRecord{}).
		Where("receiver_id = ? AND is_read = ?", userID, false).
		Count(&n).Error
	return n, err
}

type roomUnread struct {
	RoomKey string
	Count   int
}

type roomLast struct {
	RoomKey   string
	Text      string
	CreatedAt time.Time
}

// ListRooms returns a summary of every room userID takes part in, most
// recent activity first. Summaries carry no message log.
func (s *Service) ListRooms(userID string) ([]models.RoomSummary, error) {
	var rooms []models.ChatRoom
	if err := s.DB.Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("last_message_at desc").
		Find(&rooms).Error; err != nil {
		s.logger.Error().Err(err).Str("user", userID).Msg("failed to list rooms")
		return nil, err
	}
	if len(rooms) == 0 {
		return []models.RoomSummary{}, nil
	}

	keys := make([]string, 0, len(rooms))
	others := make([]string, 0, len(rooms))
	for i := range rooms {
		keys = append(keys, rooms[i].RoomKey)
		others = append(others, rooms[i].Other(userID))
	}

	var unread []roomUnread
	if err := s.DB.Model(&models.MessageRecord{}).
		Select("room_key, count(*) as count").
		Where("receiver_id = ? AND is_read = ? AND room_key IN ?", userID, false, keys).
		Group("room_key").
		Scan(&unread).Error; err != nil {
		return nil, err
	}
	unreadByRoom := make(map[string]int, len(unread))
	for _, u := range unread {
		unreadByRoom[u.RoomKey] = u.Count
	}

	// Latest message per room.
	var last []roomLast
	if err := s.DB.Raw(`
		SELECT DISTINCT ON (room_key) room_key, text, created_at
		FROM message_records
		WHERE room_key IN ? AND deleted_at IS NULL
		ORDER BY room_key, created_at DESC, id DESC`, keys).
		Scan(&last).Error; err != nil {
		return nil, err
	}
	lastByRoom := make(map[string]roomLast, len(last))
	for _, l := range last {
		lastByRoom[l.RoomKey] = l
	}

	people, err := s.participantsByID(others...)
	if err != nil {
		return nil, err
	}

	out := make([]models.RoomSummary, 0, len(rooms))
	for i := range rooms {
		other := others[i]
		summary := models.RoomSummary{
			RoomKey:            rooms[i].RoomKey,
			OtherParticipantID: other,
			UnreadCount:        unreadByRoom[rooms[i].RoomKey],
		}
		if p := people[other]; p != nil {
			summary.OtherParticipantName = p.Name
		}
		if l, ok := lastByRoom[rooms[i].RoomKey]; ok {
			summary.LastMessageText = l.Text
			summary.LastMessageTime = l.CreatedAt
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *Service) participantsByID(ids ...string) (map[string]*models.Participant, error) {
	var list []models.Participant
	if err := s.DB.Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	out := make(map[string]*models.Participant, len(list))
	for i := range list {
		out[list[i].ID] = &list[i]
	}
	return out, nil
}
