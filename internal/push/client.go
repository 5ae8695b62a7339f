// Package push subscribes to the optional realtime channel of an attempt.
// The channel only accelerates warnings; sessions work without it.
package push

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/filiup/quizsession/internal/model"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Client dials the attempt stream.
type Client struct {
	baseURL string
	token   string
	dialer  *websocket.Dialer
	log     zerolog.Logger
}

// NewClient creates a Client for a ws:// or wss:// base URL.
func NewClient(baseURL, token string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		log: log.With().Str("component", "push_client").Logger(),
	}
}

// StreamURL returns the stream endpoint of an attempt.
func (c *Client) StreamURL(attemptID string) string {
	q := url.Values{}
	if c.token != "" {
		q.Set("token", c.token)
	}
	u := c.baseURL + "/ws/v1/student/attempts/" + url.PathEscape(attemptID) + "/stream"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// Subscribe streams push messages until ctx is done or the server hangs up.
// A failed connection is logged and yields a closed channel.
func (c *Client) Subscribe(ctx context.Context, attemptID string) <-chan model.PushMessage {
	out := make(chan model.PushMessage, 8)

	conn, _, err := c.dialer.DialContext(ctx, c.StreamURL(attemptID), nil)
	if err != nil {
		c.log.Warn().Err(err).Str("attempt_id", attemptID).Msg("Push channel unavailable, continuing without it")
		close(out)
		return out
	}
	c.log.Info().Str("attempt_id", attemptID).Msg("Push channel connected")

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			var msg model.PushMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
					c.log.Warn().Err(err).Msg("Push channel closed unexpectedly")
				}
				return
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
