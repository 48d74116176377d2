// Package gateway is the only client component that talks to the remote
// message service. It fetches history, appends messages, and marks rooms
// read, normalizing every message it receives before the cache sees it.
package gateway

import (
	"context"
	"errors"

	"garagechat/backend/internal/models"
)

var (
	// ErrHistoryUnavailable reports a failed history fetch. The caller keeps
	// its cached room untouched.
	ErrHistoryUnavailable = errors.New("history unavailable")
	// ErrSendFailed reports a failed append. Nothing was committed locally.
	ErrSendFailed = errors.New("send failed")
	// ErrReadSyncFailed reports a failed markRead. It is logged, never shown.
	ErrReadSyncFailed = errors.New("read sync failed")
	// ErrEmptyText rejects a send whose text is blank after trimming.
	ErrEmptyText = errors.New("message text is empty")
	// ErrSyncFailed reports a failed unread-count or room-list fetch.
	ErrSyncFailed = errors.New("sync failed")
)

// Gateway is the remote message service contract.
type Gateway interface {
	// FetchHistory returns the room's messages in ascending time order.
	FetchHistory(ctx context.Context, roomKey string) ([]models.Message, error)
	// AppendMessage stores a message and returns the server's copy.
	AppendMessage(ctx context.Context, roomKey, receiverID, text string) (models.Message, error)
	// MarkRead marks the room read for the current user.
	MarkRead(ctx context.Context, roomKey string) error
	// FetchUnreadCount returns the user's total unread count.
	FetchUnreadCount(ctx context.Context) (int, error)
	// FetchRoomList returns summaries of all the user's rooms, without logs.
	FetchRoomList(ctx context.Context) ([]models.RoomSummary, error)
}
