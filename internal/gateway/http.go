package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"garagechat/backend/internal/metrics"
	"garagechat/backend/internal/models"
)

// HTTPClient implements Gateway over the message service REST API.
type HTTPClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPClient creates a client for the service at baseURL, authenticating
// with the bearer token.
func NewHTTPClient(baseURL, token string, timeout time.Duration, logger zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "gateway").Logger(),
	}
}

// statusError is a non-2xx answer from the service.
type statusError struct {
	Status  int
	Message string
}

func (e *statusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("message service returned %d", e.Status)
	}
	return fmt.Sprintf("message service returned %d: %s", e.Status, e.Message)
}

// doRequest performs an HTTP request and returns the body of a 2xx answer.
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		c.logger.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("message service error")
		return nil, &statusError{Status: resp.StatusCode, Message: errResp.Error}
	}
	return respBody, nil
}

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.GatewayCalls.WithLabelValues(op, result).Inc()
}

// FetchHistory implements Gateway.
func (c *HTTPClient) FetchHistory(ctx context.Context, roomKey string) (msgs []models.Message, err error) {
	defer func() { observe("fetch_history", err) }()

	body, err := c.doRequest(ctx, http.MethodGet, "/messages/"+url.PathEscape(roomKey), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHistoryUnavailable, err)
	}

	var resp historyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrHistoryUnavailable, err)
	}

	msgs = make([]models.Message, 0, len(resp.Data))
	for i := range resp.Data {
		m, err := resp.Data[i].normalize()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrHistoryUnavailable, err)
		}
		if m.RoomKey == "" {
			m.RoomKey = roomKey
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// AppendMessage implements Gateway. The returned message is the server's
// copy; its id and timestamp are authoritative.
func (c *HTTPClient) AppendMessage(ctx context.Context, roomKey, receiverID, text string) (msg models.Message, err error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, ErrEmptyText
	}
	defer func() { observe("append", err) }()

	body, err := c.doRequest(ctx, http.MethodPost, "/messages", appendRequest{
		RoomKey:    roomKey,
		ReceiverID: receiverID,
		Text:       text,
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	var resp appendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.Message{}, fmt.Errorf("%w: decode: %w", ErrSendFailed, err)
	}
	if !resp.Success || resp.Data == nil {
		return models.Message{}, fmt.Errorf("%w: rejected by service: %s", ErrSendFailed, resp.Error)
	}

	msg, err = resp.Data.normalize()
	if err != nil {
		return models.Message{}, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	if msg.RoomKey == "" {
		msg.RoomKey = roomKey
	}
	if msg.CreatedAt.IsZero() {
		return models.Message{}, fmt.Errorf("%w: message %s without createdAt", ErrSendFailed, msg.ID)
	}
	return msg, nil
}

// MarkRead implements Gateway.
func (c *HTTPClient) MarkRead(ctx context.Context, roomKey string) (err error) {
	defer func() { observe("mark_read", err) }()

	if _, err := c.doRequest(ctx, http.MethodPatch, "/messages/"+url.PathEscape(roomKey)+"/read", nil); err != nil {
		return fmt.Errorf("%w: %w", ErrReadSyncFailed, err)
	}
	return nil
}

// FetchUnreadCount implements Gateway.
func (c *HTTPClient) FetchUnreadCount(ctx context.Context) (n int, err error) {
	defer func() { observe("unread_count", err) }()

	body, err := c.doRequest(ctx, http.MethodGet, "/messages/unread/count", nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}
	var resp countResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("%w: decode: %w", ErrSyncFailed, err)
	}
	return resp.Data, nil
}

// FetchRoomList implements Gateway.
func (c *HTTPClient) FetchRoomList(ctx context.Context) (rooms []models.RoomSummary, err error) {
	defer func() { observe("room_list", err) }()

	body, err := c.doRequest(ctx, http.MethodGet, "/messages", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}
	var resp roomListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrSyncFailed, err)
	}
	return resp.Data, nil
}
