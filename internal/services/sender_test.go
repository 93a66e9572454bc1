package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/marketbot-backend/internal/logging"
	"github.com/AnshRaj112/marketbot-backend/internal/models"
)

func TestHTTPSender(t *testing.T) {
	var got struct {
		Recipient struct {
			ID string `json:"id"`
		} `json:"recipient"`
		Message models.Reply `json:"message"`
	}
	var auth string
	status := http.StatusOK

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(status)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, "secret", srv.Client())
	msg := models.Outbound{RecipientID: "u1", Reply: models.Reply{Text: "hi"}}

	require.NoError(t, s.Send(context.Background(), msg))
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "u1", got.Recipient.ID)
	assert.Equal(t, "hi", got.Message.Text)

	var perm *permanentError

	status = http.StatusBadRequest
	err := s.Send(context.Background(), msg)
	require.Error(t, err)
	assert.ErrorAs(t, err, &perm)

	status = http.StatusServiceUnavailable
	err = s.Send(context.Background(), msg)
	require.Error(t, err)
	assert.False(t, errors.As(err, &perm))
}

func newTestRetrySender(next Sender) *RetrySender {
	s := NewRetrySender(next, 0, logging.Discard())
	s.base = time.Millisecond
	s.cap = 2 * time.Millisecond
	return s
}

func TestRetrySenderRetriesTransientFailures(t *testing.T) {
	next := &recordingSender{failures: 2, err: errors.New("503")}
	s := newTestRetrySender(next)

	require.NoError(t, s.Send(context.Background(), models.Outbound{RecipientID: "u1"}))
	assert.Equal(t, 3, next.count())
}

func TestRetrySenderGivesUp(t *testing.T) {
	boom := errors.New("503")
	next := &recordingSender{failures: 10, err: boom}
	s := newTestRetrySender(next)

	assert.ErrorIs(t, s.Send(context.Background(), models.Outbound{RecipientID: "u1"}), boom)
	assert.Equal(t, DefaultSendAttempts, next.count())
}

func TestRetrySenderStopsOnPermanentError(t *testing.T) {
	next := &recordingSender{failures: 10, err: &permanentError{errors.New("400")}}
	s := newTestRetrySender(next)

	assert.Error(t, s.Send(context.Background(), models.Outbound{RecipientID: "u1"}))
	assert.Equal(t, 1, next.count())
}

type fakeConn struct {
	mu     sync.Mutex
	writes []any
	closed bool
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestConsoleHubRoutesToConnectedUsers(t *testing.T) {
	ctx := context.Background()
	fallback := &recordingSender{}
	hub := NewConsoleHub(fallback, logging.Discard())

	conn := &fakeConn{}
	hub.Register("u1", conn)
	assert.True(t, hub.Connected("u1"))

	require.NoError(t, hub.Send(ctx, models.Outbound{RecipientID: "u1", Reply: models.Reply{Text: "hi"}}))
	require.NoError(t, hub.Send(ctx, models.Outbound{RecipientID: "u2", Reply: models.Reply{Text: "hey"}}))

	assert.Len(t, conn.writes, 1)
	require.Equal(t, 1, fallback.count())
	assert.Equal(t, "u2", fallback.sent[0].RecipientID)

	replacement := &fakeConn{}
	hub.Register("u1", replacement)
	assert.True(t, conn.closed)

	// A stale unregister from the old connection keeps the new one.
	hub.Unregister("u1", conn)
	assert.True(t, hub.Connected("u1"))
	hub.Unregister("u1", replacement)
	assert.False(t, hub.Connected("u1"))
}

func TestRedisDeduper(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	d := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	first, err := d.FirstSeen(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, first)
	assert.True(t, mr.Exists("event:m1"))

	first, err = d.FirstSeen(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, first)

	mr.FastForward(2 * time.Minute)
	first, err = d.FirstSeen(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, first)
}
