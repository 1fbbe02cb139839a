package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the envelope pushed to progress subscribers
type Message struct {
	Type    string      `json:"type"`
	Channel string      `json:"channel"`
	Payload interface{} `json:"payload"`
}

// Client is one subscriber of a progress channel
type Client struct {
	Channel string
	Conn    *websocket.Conn
	Send    chan []byte
	Hub     *Hub
}

// Hub fans out optimization progress to the clients subscribed to a channel
type Hub struct {
	channels   map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *logrus.Logger
	mutex      sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		channels:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run handles client registration until ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.register:
			h.mutex.Lock()
			if h.channels[client.Channel] == nil {
				h.channels[client.Channel] = make(map[*Client]bool)
			}
			h.channels[client.Channel][client] = true
			h.mutex.Unlock()

			h.logger.WithFields(logrus.Fields{
				"channel":       client.Channel,
				"total_clients": h.ConnectionCount(),
			}).Info("WebSocket client connected")

		case client := <-h.unregister:
			h.remove(client)
			h.logger.WithFields(logrus.Fields{
				"channel":       client.Channel,
				"total_clients": h.ConnectionCount(),
			}).Info("WebSocket client disconnected")
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	clients, ok := h.channels[client.Channel]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.channels, client.Channel)
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for channel, clients := range h.channels {
		for client := range clients {
			close(client.Send)
		}
		delete(h.channels, channel)
	}
}

// HandleWebSocket upgrades the request and subscribes it to :channel
func (h *Hub) HandleWebSocket(c *gin.Context) {
	channel := c.Param("channel")
	if channel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing channel"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		Channel: channel,
		Conn:    conn,
		Send:    make(chan []byte, sendBuffer),
		Hub:     h,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Publish sends a message to every client of channel. Slow clients whose
// buffer is full miss the message.
func (h *Hub) Publish(channel, msgType string, payload interface{}) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := h.channels[channel]
	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(Message{Type: msgType, Channel: channel, Payload: payload})
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal WebSocket message")
		return
	}

	for client := range clients {
		select {
		case client.Send <- data:
		default:
			h.logger.WithField("channel", channel).Warn("Dropping message for slow WebSocket client")
		}
	}
}

// Subscribers returns the number of clients on channel
func (h *Hub) Subscribers(channel string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.channels[channel])
}

// ConnectionCount returns the total number of active connections
func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	total := 0
	for _, clients := range h.channels {
		total += len(clients)
	}
	return total
}

// readPump drains client frames so pongs and close frames are processed
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.WithError(err).Error("WebSocket error")
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
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
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.logger.WithError(err).Error("Failed to write WebSocket message")
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
