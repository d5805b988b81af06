package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/shiftregister-vg/deltapad/pkg/ot"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // documents are shared by link
	},
}

// Client is one websocket connection editing a document.
type Client struct {
	id      string
	conn    *websocket.Conn
	hub     *Hub
	send    chan []byte
	limiter *rate.Limiter
	log     *slog.Logger
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
		c.log.Info("client disconnected")
	}()
	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("websocket read error", "error", err)
			}
			return
		}
		if !c.limiter.Allow() {
			c.log.Warn("rate limit exceeded")
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "rate limit exceeded")
			c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(Message{Type: TypeError, Message: "malformed message: " + err.Error()})
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg Message) {
	switch msg.Type {
	case TypeSubmit:
		if msg.Delta == nil {
			c.reply(Message{Type: TypeError, ID: msg.ID, Message: "submit without delta"})
			return
		}
		c.hub.enqueue(request{
			client: c,
			id:     msg.ID,
			change: ot.Change{ID: msg.ID, ClientID: c.id, Revision: msg.Revision, Delta: msg.Delta},
		})
	case TypeUndo:
		if msg.ID == "" {
			c.reply(Message{Type: TypeError, Message: "undo without change id"})
			return
		}
		c.hub.enqueue(request{client: c, id: msg.ID, undo: msg.ID})
	case TypeCursor:
		msg.ClientID = c.id
		data, err := json.Marshal(msg)
		if err != nil {
			c.log.Error("failed to marshal cursor", "error", err)
			return
		}
		c.hub.post(BroadcastMessage{Sender: c, Message: data})
	default:
		c.reply(Message{Type: TypeError, ID: msg.ID, Message: "unknown message type " + msg.Type})
	}
}

// reply sends msg to this client only. It goes through the hub, which owns
// the send channel.
func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("failed to marshal reply", "error", err)
		return
	}
	c.hub.post(BroadcastMessage{Target: c, Message: data})
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		w, err := c.conn.NextWriter(websocket.TextMessage)
		if err != nil {
			c.log.Warn("websocket write error", "error", err)
			return
		}
		if _, err := w.Write(message); err != nil {
			c.log.Warn("websocket write error", "error", err)
			return
		}
		if err := w.Close(); err != nil {
			c.log.Warn("websocket write error", "error", err)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
