// Package store is the entity store behind the chat core: user profiles,
// flow sessions, daily activity counters, listings and payment requests.
// Implementations guarantee single-row atomicity and nothing stronger.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AnshRaj112/marketbot-backend/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks failures the caller may retry with backoff.
	ErrTransient = errors.New("transient store error")
)

// TransientError wraps a driver failure. errors.Is(err, ErrTransient) holds.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("db error: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Is(target error) bool { return target == ErrTransient }

func transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.UserProfile, error)
	UpsertUser(ctx context.Context, u *models.UserProfile) error
	ListUsers(ctx context.Context, status models.UserStatus, limit, offset int) ([]models.UserProfile, error)
}

type SessionStore interface {
	// GetSession returns ErrNotFound when the user is idle.
	GetSession(ctx context.Context, userID string) (*models.Session, error)
	UpsertSession(ctx context.Context, s *models.Session) error
	// DeleteSession is idempotent: deleting a missing session is not an error.
	DeleteSession(ctx context.Context, userID string) error
}

type CounterStore interface {
	// GetCounter returns the user's counter for day, zero-valued if no
	// activity was recorded yet.
	GetCounter(ctx context.Context, userID, day string) (*models.ActivityCounter, error)
	// IncrementCounterIfBelow atomically increments the action's counter for
	// (userID, day) only when its current value is below ceiling, creating
	// the row if needed. It reports whether the increment happened.
	IncrementCounterIfBelow(ctx context.Context, userID, day string, action models.Action, ceiling int, at time.Time) (bool, error)
	// PruneCounters deletes rows for days strictly before day.
	PruneCounters(ctx context.Context, before string) (int64, error)
}

type ListingStore interface {
	InsertListing(ctx context.Context, l *models.Listing) error
	GetListing(ctx context.Context, id string) (*models.Listing, error)
	QueryListings(ctx context.Context, f models.ListingFilter) (models.ListingPage, error)
}

type PaymentStore interface {
	InsertPaymentRequest(ctx context.Context, p *models.PaymentRequest) error
	// ConfirmPaymentRequest moves a pending request to confirmed. A request
	// that is missing or already confirmed yields ErrNotFound.
	ConfirmPaymentRequest(ctx context.Context, id string, at time.Time) (*models.PaymentRequest, error)
}

type StatsStore interface {
	Stats(ctx context.Context, day string) (*models.AdminStats, error)
}

// Store is the full entity store contract.
type Store interface {
	UserStore
	SessionStore
	CounterStore
	ListingStore
	PaymentStore
	StatsStore
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 50
)

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// LogStore holds append-only logs kept outside the entity store.
type LogStore interface {
	LogSearch(ctx context.Context, entry models.SearchLog) error
	RecentSearches(ctx context.Context, userID string, limit int64) ([]models.SearchLog, error)
	RecordAbuse(ctx context.Context, flag models.AbuseFlag) error
	ListAbuseFlags(ctx context.Context, limit int64) ([]models.AbuseFlag, error)
}
