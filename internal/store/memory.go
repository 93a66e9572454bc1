package store

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AnshRaj112/marketbot-backend/internal/models"
)

// Memory is an in-process Store for development and tests.
type Memory struct {
	mu       sync.Mutex
	users    map[string]models.UserProfile
	sessions map[string]*models.Session
	counters map[counterKey]models.ActivityCounter
	listings []models.Listing
	payments map[string]models.PaymentRequest
}

type counterKey struct {
	userID string
	day    string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]models.UserProfile),
		sessions: make(map[string]*models.Session),
		counters: make(map[counterKey]models.ActivityCounter),
		payments: make(map[string]models.PaymentRequest),
	}
}

var _ Store = (*Memory)(nil)

// --- UserStore ---

func (m *Memory) GetUser(ctx context.Context, id string) (*models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *Memory) UpsertUser(ctx context.Context, u *models.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.users[u.ID]; ok && u.CreatedAt.IsZero() {
		u.CreatedAt = prev.CreatedAt
	}
	m.users[u.ID] = *u
	return nil
}

func (m *Memory) ListUsers(ctx context.Context, status models.UserStatus, limit, offset int) ([]models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.UserProfile
	for _, u := range m.users {
		if status == "" || u.Status == status {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, normalizeLimit(limit), offset), nil
}

// --- SessionStore ---

func (m *Memory) GetSession(ctx context.Context, userID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *Memory) UpsertSession(ctx context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.UserID] = s.Clone()
	return nil
}

func (m *Memory) DeleteSession(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, userID)
	return nil
}

// --- CounterStore ---

func (m *Memory) GetCounter(ctx context.Context, userID, day string) (*models.ActivityCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[counterKey{userID, day}]
	if !ok {
		return &models.ActivityCounter{UserID: userID, Day: day}, nil
	}
	return &c, nil
}

func (m *Memory) IncrementCounterIfBelow(ctx context.Context, userID, day string, action models.Action, ceiling int, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := counterKey{userID, day}
	c, ok := m.counters[key]
	if !ok {
		c = models.ActivityCounter{UserID: userID, Day: day}
	}
	if c.Count(action) >= ceiling {
		return false, nil
	}
	c.Increment(action)
	c.LastActivityAt = at
	m.counters[key] = c
	return true, nil
}

func (m *Memory) PruneCounters(ctx context.Context, before string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k := range m.counters {
		if k.day < before {
			delete(m.counters, k)
			n++
		}
	}
	return n, nil
}

// --- ListingStore ---

func (m *Memory) InsertListing(ctx context.Context, l *models.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *l
	c.Photos = slices.Clone(l.Photos)
	m.listings = append(m.listings, c)
	return nil
}

func (m *Memory) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range m.listings {
		if l.ID == id {
			l.Photos = slices.Clone(l.Photos)
			return &l, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) QueryListings(ctx context.Context, f models.ListingFilter) (models.ListingPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	text := strings.ToLower(strings.TrimSpace(f.Text))
	var matched []models.Listing
	for i := len(m.listings) - 1; i >= 0; i-- {
		l := m.listings[i]
		if f.Category != "" && l.Category != f.Category {
			continue
		}
		if f.Location != "" && l.Location != f.Location {
			continue
		}
		if text != "" &&
			!strings.Contains(strings.ToLower(l.Title), text) &&
			!strings.Contains(strings.ToLower(l.Description), text) {
			continue
		}
		matched = append(matched, l)
	}

	limit := normalizeLimit(f.Limit)
	p := page(matched, limit+1, f.Offset)
	hasMore := len(p) > limit
	if hasMore {
		p = p[:limit]
	}
	return models.ListingPage{Listings: p, HasMore: hasMore}, nil
}

// --- PaymentStore ---

func (m *Memory) InsertPaymentRequest(ctx context.Context, p *models.PaymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.payments[p.ID] = *p
	return nil
}

func (m *Memory) ConfirmPaymentRequest(ctx context.Context, id string, at time.Time) (*models.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok || p.Status != models.PaymentPending {
		return nil, ErrNotFound
	}
	p.Status = models.PaymentConfirmed
	p.ConfirmedAt = &at
	m.payments[id] = p
	return &p, nil
}

// --- StatsStore ---

func (m *Memory) Stats(ctx context.Context, day string) (*models.AdminStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &models.AdminStats{UsersByStatus: make(map[models.UserStatus]int)}
	for _, u := range m.users {
		s.UsersByStatus[u.Status]++
		s.TotalUsers++
	}
	s.ActiveSessions = len(m.sessions)
	s.TotalListings = len(m.listings)
	for _, l := range m.listings {
		if l.CreatedAt.Format(models.DayLayout) == day {
			s.ListingsToday++
		}
	}
	for _, p := range m.payments {
		if p.Status == models.PaymentPending {
			s.PendingPayments++
		}
	}
	return s, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return slices.Clone(items[offset:end])
}
