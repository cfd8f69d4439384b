// README: WebSocket subscription to the hub with room join and reconnect.
package client

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"kitchenline/internal/logging"
)

const (
	streamWriteWait = 10 * time.Second
	streamPongWait  = 70 * time.Second
	minBackoff      = 500 * time.Millisecond
	maxBackoff      = 30 * time.Second
)

// Stream keeps one hub connection alive, joining a room on every (re)connect.
type Stream struct {
	url    string
	join   string
	dialer *websocket.Dialer
	header http.Header

	// OnConnect runs after each successful join, before frames are read.
	OnConnect func()
}

// NewStream dials wsURL (ws://host/ws) and sends join (e.g. "join-kitchen") after connecting.
func NewStream(wsURL, join string) *Stream {
	return &Stream{url: wsURL, join: join, dialer: websocket.DefaultDialer, header: http.Header{}}
}

// Run delivers every frame to handle until ctx ends. Dropped connections are redialed with backoff.
func (s *Stream) Run(ctx context.Context, handle func(frame []byte)) error {
	backoff := minBackoff
	for {
		connected, err := s.session(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = minBackoff
		}
		logging.Warn().Err(err).Str("url", s.url).Dur("retry_in", backoff).Msg("hub stream disconnected")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *Stream) session(ctx context.Context, handle func([]byte)) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(s.join)); err != nil {
		return false, err
	}
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(streamWriteWait))
	})
	logging.Info().Str("url", s.url).Str("join", s.join).Msg("hub stream connected")
	if s.OnConnect != nil {
		s.OnConnect()
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return true, errors.New("server closed the stream")
			}
			return true, err
		}
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		handle(frame)
	}
}
