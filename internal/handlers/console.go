package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AnshRaj112/marketbot-backend/internal/models"
	"github.com/AnshRaj112/marketbot-backend/internal/services"
)

const (
	consoleReadLimit    = 64 * 1024
	consoleReadDeadline = 90 * time.Second
)

var consoleUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ConsoleMessage is what the chat console sends over the socket.
type ConsoleMessage struct {
	Type        string              `json:"type"` // "message", "ping"
	Text        string              `json:"text,omitempty"`
	Payload     string              `json:"payload,omitempty"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

// ConsoleHandler lets a browser talk to the bot as user_id over a websocket,
// without a chat platform in between. Replies reach the socket through the hub.
type ConsoleHandler struct {
	dispatcher *services.Dispatcher
	hub        *services.ConsoleHub
	log        *slog.Logger
}

func NewConsoleHandler(dispatcher *services.Dispatcher, hub *services.ConsoleHub, log *slog.Logger) *ConsoleHandler {
	return &ConsoleHandler{dispatcher: dispatcher, hub: hub, log: log}
}

func (h *ConsoleHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	conn, err := consoleUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	h.hub.Register(userID, conn)
	defer h.hub.Unregister(userID, conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn.SetReadLimit(consoleReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(consoleReadDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(consoleReadDeadline))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(consoleReadDeadline))

		var msg ConsoleMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type != "message" {
			continue
		}

		ev := &models.Event{
			ID:          uuid.NewString(),
			SenderID:    userID,
			Text:        msg.Text,
			Payload:     msg.Payload,
			Attachments: msg.Attachments,
		}
		for _, out := range h.dispatcher.Handle(ctx, ev) {
			if err := h.hub.Send(ctx, out); err != nil {
				h.log.Warn("console delivery failed", "recipient_id", out.RecipientID, "error", err)
			}
		}
	}
}
