package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/AnshRaj112/marketbot-backend/internal/models"
	"github.com/AnshRaj112/marketbot-backend/internal/services"
)

const (
	maxWebhookBody = 1 << 20
	// eventTimeout bounds the processing of one sender's events in a batch.
	eventTimeout = 30 * time.Second
)

type webhookRequest struct {
	Events []models.Event `json:"events"`
}

// WebhookHandler receives chat platform callbacks. Events are acknowledged
// immediately and processed in the background; events from one sender in a
// batch run in order, different senders run concurrently.
type WebhookHandler struct {
	dispatcher  *services.Dispatcher
	sender      services.Sender
	verifyToken string
	log         *slog.Logger
	wg          sync.WaitGroup
}

func NewWebhookHandler(dispatcher *services.Dispatcher, sender services.Sender, verifyToken string, log *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		dispatcher:  dispatcher,
		sender:      sender,
		verifyToken: verifyToken,
		log:         log,
	}
}

// Verify answers the platform's subscription handshake.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if h.verifyToken == "" || q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.verifyToken {
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(q.Get("hub.challenge")))
}

// Receive accepts a batch of events.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	bySender := make(map[string][]models.Event)
	var order []string
	for _, ev := range req.Events {
		if ev.SenderID == "" {
			continue
		}
		if _, ok := bySender[ev.SenderID]; !ok {
			order = append(order, ev.SenderID)
		}
		bySender[ev.SenderID] = append(bySender[ev.SenderID], ev)
	}

	for _, sender := range order {
		events := bySender[sender]
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
			defer cancel()
			for i := range events {
				h.process(ctx, &events[i])
			}
		}()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"received": len(req.Events),
	})
}

func (h *WebhookHandler) process(ctx context.Context, ev *models.Event) {
	for _, out := range h.dispatcher.Handle(ctx, ev) {
		if err := h.sender.Send(ctx, out); err != nil {
			h.log.Error("failed to deliver reply", "recipient_id", out.RecipientID, "event_id", ev.ID, "error", err)
		}
	}
}

// Wait blocks until every accepted event has been processed.
func (h *WebhookHandler) Wait() {
	h.wg.Wait()
}
