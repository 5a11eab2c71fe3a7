package remote

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Update is a push message from the server.
type Update struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// WebsocketURL turns the server's base URL into its push endpoint.
func (c *Client) WebsocketURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// Subscribe delivers push messages to fn until ctx is cancelled, redialing
// with backoff when the connection drops.
func (c *Client) Subscribe(ctx context.Context, fn func(Update)) {
	backoff := minBackoff
	for {
		err := c.subscribeOnce(ctx, fn, func() { backoff = minBackoff })
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).WithField("retryIn", backoff).Warn("push connection lost")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Client) subscribeOnce(ctx context.Context, fn func(Update), connected func()) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.WebsocketURL(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	connected()
	log.WithField("url", c.WebsocketURL()).Debug("push connection established")

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		var u Update
		if err := json.Unmarshal(msg, &u); err != nil || u.Type == "" {
			log.WithField("message", string(msg)).Debug("ignoring malformed push message")
			continue
		}
		fn(u)
	}
}
