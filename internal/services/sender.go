package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/AnshRaj112/marketbot-backend/internal/models"
)

// Sender delivers outbound replies to the chat platform.
type Sender interface {
	Send(ctx context.Context, msg models.Outbound) error
}

// permanentError marks a delivery failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// HTTPSender posts replies as JSON to the delivery API.
type HTTPSender struct {
	url    string
	token  string
	client *http.Client
}

func NewHTTPSender(url, token string, client *http.Client) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSender{url: url, token: token, client: client}
}

type deliveryRequest struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message models.Reply `json:"message"`
}

func (s *HTTPSender) Send(ctx context.Context, msg models.Outbound) error {
	var body deliveryRequest
	body.Recipient.ID = msg.RecipientID
	body.Message = msg.Reply

	payload, err := json.Marshal(body)
	if err != nil {
		return &permanentError{fmt.Errorf("encode reply: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return &permanentError{err}
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver reply: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("deliver reply: status %d", resp.StatusCode)
	default:
		return &permanentError{fmt.Errorf("deliver reply: status %d", resp.StatusCode)}
	}
}

// RetrySender throttles deliveries and retries transient failures with
// bounded exponential backoff.
type RetrySender struct {
	next     Sender
	limiter  *rate.Limiter
	attempts int
	base     time.Duration
	cap      time.Duration
	log      *slog.Logger
}

const (
	DefaultSendAttempts = 3
	DefaultSendBackoff  = 200 * time.Millisecond
	MaxSendBackoff      = 2 * time.Second
)

func NewRetrySender(next Sender, rps float64, log *slog.Logger) *RetrySender {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &RetrySender{
		next:     next,
		limiter:  rate.NewLimiter(limit, max(int(rps), 1)),
		attempts: DefaultSendAttempts,
		base:     DefaultSendBackoff,
		cap:      MaxSendBackoff,
		log:      log,
	}
}

func (s *RetrySender) Send(ctx context.Context, msg models.Outbound) error {
	var err error
	backoff := s.base
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if werr := s.limiter.Wait(ctx); werr != nil {
			return werr
		}
		if err = s.next.Send(ctx, msg); err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) || attempt == s.attempts {
			break
		}
		s.log.Warn("delivery failed, retrying", "recipient_id", msg.RecipientID, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.cap)
	}
	return err
}

// LogSender writes replies to the log. Used when no delivery URL is set.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg models.Outbound) error {
	s.log.Info("outbound reply", "recipient_id", msg.RecipientID, "text", msg.Reply.Text,
		"quick_replies", len(msg.Reply.QuickReplies), "elements", len(msg.Reply.Elements))
	return nil
}
