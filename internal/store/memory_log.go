package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AnshRaj112/marketbot-backend/internal/models"
)

// MemoryLog is the in-process counterpart of MongoLog.
type MemoryLog struct {
	mu       sync.Mutex
	searches []models.SearchLog
	flags    []models.AbuseFlag
}

var _ LogStore = (*MemoryLog)(nil)

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (m *MemoryLog) LogSearch(ctx context.Context, entry models.SearchLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.searches = append(m.searches, entry)
	m.mu.Unlock()
	return nil
}

func (m *MemoryLog) RecentSearches(ctx context.Context, userID string, limit int64) ([]models.SearchLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.SearchLog
	for i := len(m.searches) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		if m.searches[i].UserID == userID {
			out = append(out, m.searches[i])
		}
	}
	return out, nil
}

func (m *MemoryLog) RecordAbuse(ctx context.Context, flag models.AbuseFlag) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, f := range m.flags {
		if f.UserID == flag.UserID && f.Day == flag.Day && f.Kind == flag.Kind {
			m.flags[i].Reason = flag.Reason
			return nil
		}
	}
	if flag.CreatedAt.IsZero() {
		flag.CreatedAt = time.Now().UTC()
	}
	m.flags = append(m.flags, flag)
	return nil
}

func (m *MemoryLog) ListAbuseFlags(ctx context.Context, limit int64) ([]models.AbuseFlag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.AbuseFlag, len(m.flags))
	copy(out, m.flags)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}
