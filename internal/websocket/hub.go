package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workaandrey/task-manager/pkg/logger"
)

const (
	EventTaskCreated = "task.created"
	EventTaskUpdated = "task.updated"
	EventTaskDeleted = "task.deleted"
)

// TaskEvent names the task that changed. Clients re-read the task through
// the permission-checked routes.
type TaskEvent struct {
	Type   string    `json:"type"`
	TaskID int64     `json:"task_id"`
	At     time.Time `json:"at"`
}

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one connected subscriber.
type Client struct {
	ID     string
	UserID int64
	conn   Conn
	mu     sync.Mutex
}

func (c *Client) write(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// Hub fans task events out to every connected client.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	count      int64
}

// NewHub creates a hub whose broadcast queue holds buffer events.
func NewHub(buffer int) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, buffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves register, unregister and broadcast until ctx is cancelled,
// then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			atomic.AddInt64(&h.count, 1)
		case client := <-h.unregister:
			h.drop(client)
		case message := <-h.broadcast:
			for client := range h.clients {
				if err := client.write(message); err != nil {
					logger.SystemLogger.Info("Dropping websocket client", zap.String("client_id", client.ID), zap.Error(err))
					h.drop(client)
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	atomic.AddInt64(&h.count, -1)
	_ = client.conn.Close()
}

// ClientCount reports the number of registered clients.
func (h *Hub) ClientCount() int {
	return int(atomic.LoadInt64(&h.count))
}

// Register adds conn to the hub. It returns nil once the hub has stopped.
func (h *Hub) Register(conn Conn, userID int64) *Client {
	client := &Client{ID: uuid.NewString(), UserID: userID, conn: conn}
	select {
	case h.register <- client:
		return client
	case <-h.done:
		_ = conn.Close()
		return nil
	}
}

func (h *Hub) Unregister(client *Client) {
	if client == nil {
		return
	}
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues evt for broadcast without blocking; when the queue is full
// the event is dropped.
func (h *Hub) Publish(evt TaskEvent) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	message, err := json.Marshal(evt)
	if err != nil {
		logger.ErrorLogger.Error("Error encoding task event", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- message:
	default:
		logger.SystemLogger.Warn("Task event dropped", zap.String("type", evt.Type), zap.Int64("task_id", evt.TaskID))
	}
}

// Handler upgrades the request and keeps the connection registered until
// the client goes away. Incoming messages are ignored.
func (h *Hub) Handler(userID int64) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		client := h.Register(c, userID)
		if client == nil {
			return
		}
		defer h.Unregister(client)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})
}

// IsUpgrade reports whether the request asks for a websocket upgrade.
func IsUpgrade(c *fiber.Ctx) bool {
	return websocket.IsWebSocketUpgrade(c)
}
