package chathub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"garagechat/backend/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 64 * 1024
	reconnectDelay = 2 * time.Second
)

// WSListener receives inbound-message events from the service's /ws stream
// and forwards them to Out, reconnecting until its context is cancelled.
type WSListener struct {
	URL    string
	Token  string
	Out    chan<- models.InboundEvent
	Dialer *websocket.Dialer

	// ReconnectDelay is the pause between connection attempts.
	ReconnectDelay time.Duration

	logger zerolog.Logger
}

// NewWSListener creates a listener for the service at serverURL (http or
// https); events go to out, typically ManagerService.InboundCh.
func NewWSListener(serverURL, token string, out chan<- models.InboundEvent, logger zerolog.Logger) (*WSListener, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"

	return &WSListener{
		URL:            u.String(),
		Token:          token,
		Out:            out,
		Dialer:         websocket.DefaultDialer,
		ReconnectDelay: reconnectDelay,
		logger:         logger.With().Str("component", "ws_listener").Logger(),
	}, nil
}

// Run blocks until ctx is cancelled.
func (l *WSListener) Run(ctx context.Context) {
	for {
		if err := l.listen(ctx); err != nil && ctx.Err() == nil {
			l.logger.Warn().Err(err).Dur("retry_in", l.ReconnectDelay).Msg("inbound stream lost")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.ReconnectDelay):
		}
	}
}

func (l *WSListener) listen(ctx context.Context) error {
	header := http.Header{}
	if l.Token != "" {
		header.Set("Authorization", "Bearer "+l.Token)
	}

	conn, _, err := l.Dialer.DialContext(ctx, l.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", l.URL, err)
	}
	defer conn.Close()

	// Unblock ReadMessage on cancellation.
	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		conn.Close()
	})
	defer stop()

	l.logger.Info().Str("url", l.URL).Msg("inbound stream connected")
	return l.readPump(ctx, conn)
}

func (l *WSListener) readPump(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read inbound event: %w", err)
		}

		var ev models.InboundEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			l.logger.Warn().Err(err).Msg("undecodable inbound event")
			continue
		}

		select {
		case l.Out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
