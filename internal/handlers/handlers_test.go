package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/marketbot-backend/internal/clock"
	"github.com/AnshRaj112/marketbot-backend/internal/config"
	"github.com/AnshRaj112/marketbot-backend/internal/logging"
	"github.com/AnshRaj112/marketbot-backend/internal/models"
	"github.com/AnshRaj112/marketbot-backend/internal/services"
	"github.com/AnshRaj112/marketbot-backend/internal/store"
)

type stack struct {
	store      *store.Memory
	dispatcher *services.Dispatcher
	admin      *services.AdminService
}

func newStack(t *testing.T) *stack {
	t.Helper()
	log := logging.Discard()
	clk := clock.Real()
	st := store.NewMemory()
	logs := store.NewMemoryLog()
	perms := services.DefaultPermissionTable()

	caches := services.NewCaches(config.CacheConfig{
		Profile: config.CacheSpec{TTL: time.Minute, Size: 10},
		Listing: config.CacheSpec{TTL: time.Minute, Size: 10},
		Search:  config.CacheSpec{TTL: time.Minute, Size: 10},
		Stats:   config.CacheSpec{TTL: time.Minute, Size: 2},
	}, time.Minute, clk, log)

	quota := services.NewQuotaEngine(st, perms, clk, time.UTC, log)
	sessions := services.NewSessionManager(st, clk, log)
	classifier := services.NewClassifier(st, sessions, caches.Profiles, perms, nil, clk, log)
	search := services.NewSearcher(st, logs, caches.Search, caches.Listings, log)
	flows := services.NewDefaultFlowRegistry(
		services.NewRegistrationFlow(st, classifier, clk, 30),
		services.NewListingFlow(st, logs, quota, search, nil, clk, log),
		services.NewSearchFlow(quota, search),
		services.NewPaymentFlow(st, clk),
	)
	dispatcher := services.NewDispatcher(services.DispatcherDeps{
		Classifier: classifier,
		Perms:      perms,
		Quota:      quota,
		Sessions:   sessions,
		Flows:      flows,
		Search:     search,
		Logs:       logs,
		Dedup:      services.NewMemoryDeduper(caches.Events),
		Clock:      clk,
		Log:        log,
	})
	admin := services.NewAdminService(st, logs, classifier, quota, caches.Stats, caches.Manager, nil, clk, log)
	return &stack{store: st, dispatcher: dispatcher, admin: admin}
}

type recordingSender struct {
	mu   sync.Mutex
	sent []models.Outbound
}

func (s *recordingSender) Send(_ context.Context, msg models.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) recipients() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]int{}
	for _, m := range s.sent {
		out[m.RecipientID]++
	}
	return out
}

func TestWebhookVerify(t *testing.T) {
	h := NewWebhookHandler(nil, nil, "tok", logging.Discard())

	rec := httptest.NewRecorder()
	h.Verify(rec, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=tok&hub.challenge=42", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Body.String())

	rec = httptest.NewRecorder()
	h.Verify(rec, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookReceiveDispatchesEvents(t *testing.T) {
	s := newStack(t)
	sender := &recordingSender{}
	h := NewWebhookHandler(s.dispatcher, sender, "tok", logging.Discard())

	body := `{"events":[
		{"event_id":"e1","sender_id":"u1","text":"hi"},
		{"event_id":"e1","sender_id":"u1","text":"hi"},
		{"event_id":"e2","sender_id":"u2","text":"hello"},
		{"event_id":"e3","text":"orphan"}
	]}`
	rec := httptest.NewRecorder()
	h.Receive(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"received":4`)

	h.Wait()
	got := sender.recipients()
	assert.Equal(t, 1, got["u1"], "redelivered event is dropped")
	assert.Equal(t, 1, got["u2"])
	assert.Len(t, got, 2)
}

func TestWebhookReceiveRejectsBadBody(t *testing.T) {
	h := NewWebhookHandler(nil, nil, "tok", logging.Discard())
	rec := httptest.NewRecorder()
	h.Receive(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConsoleRoundTrip(t *testing.T) {
	s := newStack(t)
	hub := services.NewConsoleHub(nil, logging.Discard())
	h := NewConsoleHandler(s.dispatcher, hub, logging.Discard())

	srv := httptest.NewServer(http.HandlerFunc(h.Serve))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user_id=u1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ConsoleMessage{Type: "message", Text: "hi"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var out models.Outbound
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "u1", out.RecipientID)
	assert.NotEmpty(t, out.Reply.Text)
	assert.True(t, hub.Connected("u1"))
}

func TestConsoleRequiresUserID(t *testing.T) {
	h := NewConsoleHandler(nil, nil, logging.Discard())
	rec := httptest.NewRecorder()
	h.Serve(rec, httptest.NewRequest(http.MethodGet, "/ws/console", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeUnblocker struct {
	ips []string
	err error
}

func (u *fakeUnblocker) Unblock(_ context.Context, ip string) error {
	u.ips = append(u.ips, ip)
	return u.err
}

func newAdminRouter(h *AdminHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/stats", h.GetStats)
	r.Get("/users", h.GetUsers)
	r.Put("/users/{id}/status", h.UpdateUserStatus)
	r.Post("/payments/{id}/confirm", h.ConfirmPayment)
	r.Get("/abuse-flags", h.GetAbuseFlags)
	r.Get("/caches", h.GetCaches)
	r.Delete("/caches", h.FlushCaches)
	r.Put("/unblock-ip", h.UnblockIP)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

func TestAdminUserEndpoints(t *testing.T) {
	s := newStack(t)
	r := newAdminRouter(NewAdminHandler(s.admin, nil, logging.Discard()))
	require.NoError(t, s.store.UpsertUser(context.Background(), &models.UserProfile{
		ID: "u1", Name: "An", Status: models.StatusPending, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))

	code, body := do(t, r, http.MethodGet, "/users?status=pending", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	code, _ = do(t, r, http.MethodGet, "/users?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, r, http.MethodPut, "/users/u1/status", `{"status":"suspended"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])

	code, _ = do(t, r, http.MethodPut, "/users/ghost/status", `{"status":"trial"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, r, http.MethodPut, "/users/u1/status", `{`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, r, http.MethodGet, "/stats", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "stats")
}

func TestAdminPaymentAndCacheEndpoints(t *testing.T) {
	s := newStack(t)
	r := newAdminRouter(NewAdminHandler(s.admin, nil, logging.Discard()))

	code, _ := do(t, r, http.MethodPost, "/payments/missing/confirm", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body := do(t, r, http.MethodGet, "/caches", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["caches"], 5)

	code, _ = do(t, r, http.MethodDelete, "/caches", "")
	assert.Equal(t, http.StatusOK, code)

	code, body = do(t, r, http.MethodGet, "/abuse-flags", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])
}

func TestAdminUnblockIP(t *testing.T) {
	s := newStack(t)

	code, _ := do(t, newAdminRouter(NewAdminHandler(s.admin, nil, logging.Discard())), http.MethodPut, "/unblock-ip?ip=1.2.3.4", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	u := &fakeUnblocker{}
	r := newAdminRouter(NewAdminHandler(s.admin, u, logging.Discard()))

	code, _ = do(t, r, http.MethodPut, "/unblock-ip", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, r, http.MethodPut, "/unblock-ip?ip=1.2.3.4", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"1.2.3.4"}, u.ips)

	u.err = errors.New("redis down")
	code, _ = do(t, r, http.MethodPut, "/unblock-ip?ip=1.2.3.4", "")
	assert.Equal(t, http.StatusInternalServerError, code)
}
