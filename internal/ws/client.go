package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 45 * time.Second
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ClientFrame is a client-to-server control frame.
type ClientFrame struct {
	Action   string `json:"action"` // join, leave, typing, take
	Instance string `json:"instance"`
	ChatID   string `json:"chatId"`
	Operator string `json:"operator"`
	Typing   bool   `json:"typing"`
}

// Client is one connected operator session.
type Client struct {
	id        string
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	instance  string
	closeOnce sync.Once
}

// Handler returns the gin handler that upgrades connections into the hub.
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client := &Client{
			id:   uuid.New().String(),
			hub:  h,
			conn: conn,
			send: make(chan []byte, sendBufferSize),
		}
		go client.writeLoop()
		go client.readLoop()
	}
}

func (c *Client) readLoop() {
	defer c.close()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame ClientFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			return
		}
		c.handleFrame(frame)
	}
}

// handleFrame processes join/leave room control and rebroadcasts
// operator-originated events (typing, take) to the joined room only.
func (c *Client) handleFrame(frame ClientFrame) {
	switch frame.Action {
	case "join":
		if frame.Instance != "" {
			c.hub.join(c, frame.Instance)
		}
	case "leave":
		c.hub.leave(c)
	case "typing":
		if room := c.hub.roomOf(c); room != "" {
			c.hub.Publish(room, EventChatTyping, gin.H{
				"chatId": frame.ChatID,
				"typing": frame.Typing,
			})
		}
	case "take":
		if room := c.hub.roomOf(c); room != "" {
			c.hub.Publish(room, EventConversationTaken, gin.H{
				"chatId":   frame.ChatID,
				"operator": frame.Operator,
			})
		}
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close leaves the room and closes the socket. The send channel is left
// open so a racing Publish never writes to a closed channel; the write
// loop exits on the next failed write or ping.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	})
}
