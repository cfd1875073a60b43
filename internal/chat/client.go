package chat

import (
	"time"

	"agency-chat/internal/model"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 512                 // Peers only send control frames; anything larger is abuse.
)

// Client is a middleman between the websocket connection and the hub.
// A client with an empty ProjectID receives the unfiltered feed of every
// project its actor can see.
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	Actor     model.Actor
	ProjectID string
}

// Wants reports whether the event belongs on this client's feed.
func (c *Client) Wants(env Envelope) bool {
	if c.ProjectID != "" {
		return env.Event.Record.ProjectID == c.ProjectID
	}
	return c.Actor.IsAdmin() || env.OwnerID == c.Actor.ID
}

// ReadPump keeps the connection alive and notices when the peer goes away.
// The feed is one-way; inbound data frames are discarded.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Detach(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Debug("websocket read", "actor", c.Actor.ID, "error", err)
			}
			return
		}
	}
}

// WritePump pumps events from the hub to the websocket connection.
// Each event is its own text frame so the peer can decode frame by frame.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The Hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
