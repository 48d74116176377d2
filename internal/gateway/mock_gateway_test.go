package gateway_test

import (
	"context"
	"garagechat/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) FetchHistory(ctx context.Context, roomKey string) ([]models.Message, error) {
	args := m.Called(ctx, roomKey)
	if msgs := args.Get(0); msgs != nil {
		return msgs.([]models.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) AppendMessage(ctx context.Context, roomKey, receiverID, text string) (models.Message, error) {
	args := m.Called(ctx, roomKey, receiverID, text)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *MockGateway) MarkRead(ctx context.Context, roomKey string) error {
	args := m.Called(ctx, roomKey)
	return args.Error(0)
}

func (m *MockGateway) FetchUnreadCount(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockGateway) FetchRoomList(ctx context.Context) ([]models.RoomSummary, error) {
	args := m.Called(ctx)
	if rooms := args.Get(0); rooms != nil {
		return rooms.([]models.RoomSummary), args.Error(1)
	}
	return nil, args.Error(1)
}
