package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"garagechat/backend/internal/api/handler"
	"garagechat/backend/internal/config"
	"garagechat/backend/internal/models"
	"garagechat/backend/internal/storage"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	store  *MockStorage
	auth   *handler.Authenticator
	router *gin.Engine
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	store := new(MockStorage)
	auth := handler.NewAuthenticator("test-secret", config.TokenIssuer, time.Hour)
	h := handler.NewHandler(store, auth, zerolog.Nop())
	return &testEnv{store: store, auth: auth, router: handler.NewRouter(h)}
}

func (e *testEnv) do(t *testing.T, method, path, as string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		token, err := e.auth.Issue(as)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestAuth_IssueAndParse(t *testing.T) {
	auth := handler.NewAuthenticator("secret", config.TokenIssuer, time.Hour)

	token, err := auth.Issue("u1")
	require.NoError(t, err)

	id, err := auth.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)

	other := handler.NewAuthenticator("another-secret", config.TokenIssuer, time.Hour)
	_, err = other.Parse(token)
	assert.Error(t, err)

	expired := handler.NewAuthenticator("secret", config.TokenIssuer, -time.Minute)
	stale, err := expired.Issue("u1")
	require.NoError(t, err)
	_, err = auth.Parse(stale)
	assert.Error(t, err)
}

func TestRoutes_RequireToken(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodGet, "/messages", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/messages", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIssueToken(t *testing.T) {
	env := newEnv(t)
	env.store.On("SaveParticipant", mock.AnythingOfType("*models.Participant")).
		Run(func(args mock.Arguments) {
			p := args.Get(0).(*models.Participant)
			assert.Equal(t, "Bob", p.Name)
			p.ID = "generated-id"
		}).
		Return(nil)

	w := env.do(t, http.MethodPost, "/auth/token", "", map[string]any{"name": " Bob ", "roles": []string{"mechanic"}})

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Token string `json:"token"`
		ID    string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "generated-id", resp.ID)
	id, err := env.auth.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "generated-id", id)
}

func TestIssueToken_RejectsSeparatorInID(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/auth/token", "", map[string]any{"id": "a_b", "name": "Bob"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	env.store.AssertNotCalled(t, "SaveParticipant", mock.Anything)
}

func TestGetHistory(t *testing.T) {
	env := newEnv(t)
	msgs := []models.Message{{ID: "1", RoomKey: "u1_u2", SenderID: "u2", ReceiverID: "u1", Text: "hi"}}
	env.store.On("GetHistory", "u1_u2").Return(msgs, nil)

	w := env.do(t, http.MethodGet, "/messages/u1_u2", "u1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []models.Message `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "hi", resp.Data[0].Text)
}

func TestGetHistory_Access(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodGet, "/messages/u2_u3", "u1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/messages/u2_u1", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "non-canonical key")

	env.store.AssertNotCalled(t, "GetHistory", mock.Anything)
}

func TestAppendMessage(t *testing.T) {
	env := newEnv(t)
	created := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	env.store.On("EnsureRoom", "u1_u2").Return(&models.ChatRoom{RoomKey: "u1_u2", User1ID: "u1", User2ID: "u2"}, nil)
	env.store.On("SaveMessage", mock.AnythingOfType("*models.MessageRecord")).
		Run(func(args mock.Arguments) {
			rec := args.Get(0).(*models.MessageRecord)
			assert.Equal(t, "u2", rec.SenderID)
			assert.Equal(t, "u1", rec.ReceiverID)
			assert.Equal(t, "your car is ready", rec.Text)
			rec.Model = gorm.Model{ID: 42, CreatedAt: created}
		}).
		Return(nil)
	env.store.On("GetParticipant", "u2").Return(&models.Participant{ID: "u2", Name: "Garage Bob"}, nil)
	env.store.On("PublishInbound", "u1", mock.MatchedBy(func(ev models.InboundEvent) bool {
		return ev.SenderName == "Garage Bob" && ev.Message != nil && ev.Message.ID == "42"
	})).Return(nil)

	w := env.do(t, http.MethodPost, "/messages", "u2", map[string]string{
		"roomKey":    "u1_u2",
		"receiverId": "u1",
		"text":       "  your car is ready ",
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Success bool           `json:"success"`
		Data    models.Message `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "42", resp.Data.ID)
	assert.Equal(t, created, resp.Data.CreatedAt)
	assert.Equal(t, "Garage Bob", resp.Data.SenderInfo.Name)
	env.store.AssertExpectations(t)
}

func TestAppendMessage_PublishFailureStillSucceeds(t *testing.T) {
	env := newEnv(t)
	env.store.On("EnsureRoom", "u1_u2").Return(&models.ChatRoom{RoomKey: "u1_u2"}, nil)
	env.store.On("SaveMessage", mock.Anything).
		Run(func(args mock.Arguments) { args.Get(0).(*models.MessageRecord).ID = 7 }).
		Return(nil)
	env.store.On("GetParticipant", "u1").Return(nil, storage.ErrNotFound)
	env.store.On("PublishInbound", "u2", mock.Anything).Return(errors.New("redis down"))

	w := env.do(t, http.MethodPost, "/messages", "u1", map[string]string{"receiverId": "u2", "text": "hello"})

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestAppendMessage_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body map[string]string
	}{
		{"empty text", map[string]string{"receiverId": "u2", "text": "  "}},
		{"missing receiver", map[string]string{"text": "hi"}},
		{"wrong room", map[string]string{"roomKey": "u2_u3", "receiverId": "u2", "text": "hi"}},
		{"bad receiver", map[string]string{"receiverId": "x_y", "text": "hi"}},
		{"too long", map[string]string{"receiverId": "u2", "text": strings.Repeat("a", config.MaxMessageLength+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t)

			w := env.do(t, http.MethodPost, "/messages", "u1", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"success":false`)
			env.store.AssertNotCalled(t, "SaveMessage", mock.Anything)
		})
	}
}

func TestAppendMessage_SaveFailure(t *testing.T) {
	env := newEnv(t)
	env.store.On("EnsureRoom", "u1_u2").Return(&models.ChatRoom{RoomKey: "u1_u2"}, nil)
	env.store.On("SaveMessage", mock.Anything).Return(errors.New("db down"))

	w := env.do(t, http.MethodPost, "/messages", "u1", map[string]string{"receiverId": "u2", "text": "hello"})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	env.store.AssertNotCalled(t, "PublishInbound", mock.Anything, mock.Anything)
}

func TestMarkRead(t *testing.T) {
	env := newEnv(t)
	env.store.On("MarkRoomRead", "u1_u2", "u1").Return(int64(3), nil)

	w := env.do(t, http.MethodPatch, "/messages/u1_u2/read", "u1", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	env.store.AssertExpectations(t)
}

func TestListRoomsAndUnreadCount(t *testing.T) {
	env := newEnv(t)
	env.store.On("ListRooms", "u1").Return([]models.RoomSummary{{RoomKey: "u1_u2", OtherParticipantID: "u2", UnreadCount: 2}}, nil)
	env.store.On("CountUnread", "u1").Return(int64(2), nil)

	w := env.do(t, http.MethodGet, "/messages", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"unreadCount":2`)

	w = env.do(t, http.MethodGet, "/messages/unread/count", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":2}`, w.Body.String())
}

func TestServeWebSocket_StreamsInbox(t *testing.T) {
	env := newEnv(t)
	events := make(chan models.InboundEvent, 1)
	events <- models.InboundEvent{SenderID: "u2", ReceiverID: "u1", Text: "hi"}
	env.store.On("SubscribeInbound", mock.Anything, "u1").Return((<-chan models.InboundEvent)(events), nil)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	token, err := env.auth.Issue("u1")
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer " + token}})
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev models.InboundEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "u2", ev.SenderID)
	assert.Equal(t, "hi", ev.Text)
}

func TestServeWebSocket_SubscribeFailure(t *testing.T) {
	env := newEnv(t)
	env.store.On("SubscribeInbound", mock.Anything, "u1").Return(nil, errors.New("redis down"))

	w := env.do(t, http.MethodGet, "/ws", "u1", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newEnv(t)
	env.do(t, http.MethodGet, "/health", "", nil)

	w := env.do(t, http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "garagechat_http_requests_total")
}
