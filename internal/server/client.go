package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 16
)

// Client is one websocket subscriber registered with the hub.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{hub: hub, conn: conn, send: make(chan []byte, sendBuffer)}
}

// close unregisters the client and closes its connection. Safe to call from
// both pumps.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		log.WithField("remoteAddr", c.conn.RemoteAddr()).Debug("closing client connection")
		c.hub.Unregister(c)
		if err := c.conn.Close(); err != nil {
			log.WithError(err).WithField("remoteAddr", c.conn.RemoteAddr()).Debug("error while closing client connection")
		}
	})
}

// readPump discards incoming frames and detects dead peers through the read
// deadline, which every pong extends.
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.WithError(err).Warn("failed to set initial read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			log.WithError(err).WithField("remoteAddr", c.conn.RemoteAddr()).Debug("client read error, triggering disconnect")
			return
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.WithError(err).Warn("failed to reset read deadline")
			return
		}
	}
}

// writePump forwards broadcasts to the peer and pings it every pingPeriod.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.WithError(err).Warn("failed to set write deadline")
				return
			}
			if !ok {
				log.WithField("remoteAddr", c.conn.RemoteAddr()).Debug("hub closed channel, closing connection")
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.WithError(err).WithField("remoteAddr", c.conn.RemoteAddr()).Warn("client write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
