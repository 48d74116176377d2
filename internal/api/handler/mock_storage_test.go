package handler_test

import (
	"context"
	"garagechat/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockStorage is a testify mock of storage.Storage.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) SaveParticipant(p *models.Participant) error {
	args := m.Called(p)
	return args.Error(0)
}

func (m *MockStorage) GetParticipant(id string) (*models.Participant, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Participant), args.Error(1)
}

func (m *MockStorage) EnsureRoom(roomKey string) (*models.ChatRoom, error) {
	args := m.Called(roomKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatRoom), args.Error(1)
}

func (m *MockStorage) SaveMessage(rec *models.MessageRecord) error {
	args := m.Called(rec)
	return args.Error(0)
}

func (m *MockStorage) GetHistory(roomKey string) ([]models.Message, error) {
	args := m.Called(roomKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStorage) MarkRoomRead(roomKey, readerID string) (int64, error) {
	args := m.Called(roomKey, readerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) CountUnread(userID string) (int64, error) {
	args := m.Called(userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) ListRooms(userID string) ([]models.RoomSummary, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RoomSummary), args.Error(1)
}

func (m *MockStorage) PublishInbound(receiverID string, ev models.InboundEvent) error {
	args := m.Called(receiverID, ev)
	return args.Error(0)
}

func (m *MockStorage) SubscribeInbound(ctx context.Context, userID string) (<-chan models.InboundEvent, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan models.InboundEvent), args.Error(1)
}
