package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/AnshRaj112/marketbot-backend/internal/models"
)

// ConsoleConn is the minimal interface the websocket connection must satisfy.
type ConsoleConn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// consoleClient serializes writes to one connection; gorilla connections
// allow a single concurrent writer.
type consoleClient struct {
	mu   sync.Mutex
	conn ConsoleConn
}

func (c *consoleClient) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// ConsoleHub tracks chat console connections by user id. As a Sender it
// delivers to a connected console and hands every other recipient to next.
type ConsoleHub struct {
	mu      sync.RWMutex
	clients map[string]*consoleClient
	next    Sender
	log     *slog.Logger
}

func NewConsoleHub(next Sender, log *slog.Logger) *ConsoleHub {
	return &ConsoleHub{
		clients: make(map[string]*consoleClient),
		next:    next,
		log:     log,
	}
}

// Register binds conn to userID, closing any connection it replaces.
func (h *ConsoleHub) Register(userID string, conn ConsoleConn) {
	h.mu.Lock()
	old, ok := h.clients[userID]
	h.clients[userID] = &consoleClient{conn: conn}
	h.mu.Unlock()

	if ok && old.conn != conn {
		old.conn.Close()
	}
	h.log.Info("console connected", "user_id", userID)
}

// Unregister removes userID only while conn is still its registered connection.
func (h *ConsoleHub) Unregister(userID string, conn ConsoleConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[userID]; ok && c.conn == conn {
		delete(h.clients, userID)
		h.log.Info("console disconnected", "user_id", userID)
	}
}

func (h *ConsoleHub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

func (h *ConsoleHub) Send(ctx context.Context, msg models.Outbound) error {
	h.mu.RLock()
	c, ok := h.clients[msg.RecipientID]
	h.mu.RUnlock()

	if ok {
		return c.write(msg)
	}
	if h.next == nil {
		return nil
	}
	return h.next.Send(ctx, msg)
}
