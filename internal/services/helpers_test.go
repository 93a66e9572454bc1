package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/marketbot-backend/internal/clock"
	"github.com/AnshRaj112/marketbot-backend/internal/config"
	"github.com/AnshRaj112/marketbot-backend/internal/logging"
	"github.com/AnshRaj112/marketbot-backend/internal/models"
	"github.com/AnshRaj112/marketbot-backend/internal/store"
)

var (
	testLoc   = time.FixedZone("ICT", 7*60*60)
	testStart = time.Date(2026, 3, 10, 9, 0, 0, 0, testLoc)
)

type testEnv struct {
	store      *store.Memory
	logs       *store.MemoryLog
	clock      *clock.Fake
	caches     *Caches
	perms      *PermissionTable
	quota      *QuotaEngine
	sessions   *SessionManager
	classifier *Classifier
	search     *Searcher
	flows      *FlowRegistry
	uploader   *fakeUploader
	dispatcher *Dispatcher

	seq int
}

func newTestEnv(t *testing.T, adminIDs ...string) *testEnv {
	t.Helper()

	log := logging.Discard()
	env := &testEnv{
		store:    store.NewMemory(),
		logs:     store.NewMemoryLog(),
		clock:    clock.NewFake(testStart),
		perms:    DefaultPermissionTable(),
		uploader: &fakeUploader{},
	}
	env.caches = NewCaches(config.CacheConfig{
		Profile: config.CacheSpec{TTL: 5 * time.Minute, Size: 100},
		Listing: config.CacheSpec{TTL: 10 * time.Minute, Size: 100},
		Search:  config.CacheSpec{TTL: 2 * time.Minute, Size: 100},
		Stats:   config.CacheSpec{TTL: time.Minute, Size: 4},
	}, 10*time.Minute, env.clock, log)

	env.quota = NewQuotaEngine(env.store, env.perms, env.clock, testLoc, log)
	env.sessions = NewSessionManager(env.store, env.clock, log)
	env.classifier = NewClassifier(env.store, env.sessions, env.caches.Profiles, env.perms, adminIDs, env.clock, log)
	env.search = NewSearcher(env.store, env.logs, env.caches.Search, env.caches.Listings, log)
	env.flows = NewDefaultFlowRegistry(
		NewRegistrationFlow(env.store, env.classifier, env.clock, 30),
		NewListingFlow(env.store, env.logs, env.quota, env.search, env.uploader, env.clock, log),
		NewSearchFlow(env.quota, env.search),
		NewPaymentFlow(env.store, env.clock),
	)
	env.dispatcher = NewDispatcher(DispatcherDeps{
		Classifier: env.classifier,
		Perms:      env.perms,
		Quota:      env.quota,
		Sessions:   env.sessions,
		Flows:      env.flows,
		Search:     env.search,
		Logs:       env.logs,
		Clock:      env.clock,
		Log:        log,
	})
	return env
}

// addUser stores a profile with the given status. Trial and registered
// members get an expiry 30 days out.
func (e *testEnv) addUser(t *testing.T, id string, status models.UserStatus) *models.UserProfile {
	t.Helper()
	now := e.clock.Now()
	u := &models.UserProfile{
		ID:        id,
		Name:      "User " + id,
		Phone:     "0901234567",
		Location:  "HA NOI",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status == models.StatusTrial || status == models.StatusRegistered {
		exp := now.AddDate(0, 0, 30)
		u.MembershipExpiresAt = &exp
	}
	require.NoError(t, e.store.UpsertUser(context.Background(), u))
	return u
}

// send dispatches a text event with a fresh event id.
func (e *testEnv) send(userID, text string) []models.Outbound {
	e.seq++
	return e.dispatcher.Handle(context.Background(), &models.Event{
		ID:       fmt.Sprintf("evt-%d", e.seq),
		SenderID: userID,
		Text:     text,
	})
}

func (e *testEnv) session(t *testing.T, userID string) *models.Session {
	t.Helper()
	s, err := e.sessions.Get(context.Background(), userID)
	require.NoError(t, err)
	return s
}

type fakeUploader struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (u *fakeUploader) Upload(_ context.Context, sourceURL, userID string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return "", u.err
	}
	u.calls = append(u.calls, sourceURL)
	return fmt.Sprintf("https://cdn.example.com/%s/%d.jpg", userID, len(u.calls)), nil
}

// recordingSender keeps every outbound message and can fail the first
// failures calls.
type recordingSender struct {
	mu       sync.Mutex
	sent     []models.Outbound
	failures int
	err      error
}

func (s *recordingSender) Send(_ context.Context, msg models.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		s.sent = append(s.sent, msg)
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// flakyUsers fails every profile read with a transient store error.
type flakyUsers struct {
	*store.Memory
}

func (flakyUsers) GetUser(context.Context, string) (*models.UserProfile, error) {
	return nil, fmt.Errorf("get user: %w", store.ErrTransient)
}

func texts(out []models.Outbound) []string {
	s := make([]string, len(out))
	for i, o := range out {
		s[i] = o.Reply.Text
	}
	return s
}
