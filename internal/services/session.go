package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AnshRaj112/marketbot-backend/internal/clock"
	"github.com/AnshRaj112/marketbot-backend/internal/models"
	"github.com/AnshRaj112/marketbot-backend/internal/store"
)

// SessionManager is the only writer of Session rows. Every read-modify-write
// runs under a per-user lock so that two events for the same user cannot
// both compute step+1 from the same snapshot.
type SessionManager struct {
	store store.SessionStore
	locks *userLocks
	clock clock.Clock
	log   *slog.Logger
}

func NewSessionManager(st store.SessionStore, clk clock.Clock, log *slog.Logger) *SessionManager {
	if clk == nil {
		clk = clock.Real()
	}
	return &SessionManager{store: st, locks: newUserLocks(), clock: clk, log: log}
}

// Get returns the user's session, or nil when the user is idle.
func (m *SessionManager) Get(ctx context.Context, userID string) (*models.Session, error) {
	s, err := m.store.GetSession(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !s.Active() {
		return nil, nil
	}
	return s, nil
}

// StartFlow creates a fresh session at the initial step, overwriting any
// flow already in progress. Replaying the event that started the current
// session returns it unchanged with ErrDuplicateEvent.
func (m *SessionManager) StartFlow(ctx context.Context, userID string, flow models.FlowName, eventID string) (*models.Session, error) {
	data, err := models.NewFlowData(flow)
	if err != nil {
		return nil, err
	}

	unlock := m.locks.Lock(userID)
	defer unlock()

	cur, err := m.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", flow, err)
	}
	if cur != nil && cur.Flow == flow && cur.SeenEvent(eventID) {
		return cur, ErrDuplicateEvent
	}
	if cur != nil {
		m.log.Debug("overwriting flow", "user_id", userID, "from", cur.Flow, "to", flow)
	}

	now := m.clock.Now()
	s := &models.Session{
		UserID:    userID,
		Flow:      flow,
		Step:      models.InitialStep,
		Data:      data,
		StartedAt: now,
		UpdatedAt: now,
	}
	s.RememberEvent(eventID)
	if err := m.store.UpsertSession(ctx, s); err != nil {
		return nil, fmt.Errorf("start %s: %w", flow, err)
	}
	return s, nil
}

// AdvanceStep merges patch into the session data and moves from fromStep to
// fromStep+1. An eventID the session has already applied is a no-op
// reported as ErrDuplicateEvent; a session no longer at fromStep yields
// ErrStaleStep.
func (m *SessionManager) AdvanceStep(ctx context.Context, userID, eventID string, fromStep int, patch models.FlowData) (*models.Session, error) {
	return m.mutate(ctx, userID, eventID, fromStep, func(s *models.Session) {
		s.Data = s.Data.Merge(patch)
		s.Step++
	})
}

// UpdateData merges patch without moving the step.
func (m *SessionManager) UpdateData(ctx context.Context, userID, eventID string, fromStep int, patch models.FlowData) (*models.Session, error) {
	return m.mutate(ctx, userID, eventID, fromStep, func(s *models.Session) {
		s.Data = s.Data.Merge(patch)
	})
}

func (m *SessionManager) mutate(ctx context.Context, userID, eventID string, fromStep int, apply func(*models.Session)) (*models.Session, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	s, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.SeenEvent(eventID) {
		return s, ErrDuplicateEvent
	}
	if s.Step != fromStep {
		return nil, ErrStaleStep
	}

	apply(s)
	s.RememberEvent(eventID)
	s.UpdatedAt = m.clock.Now()
	if err := m.store.UpsertSession(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return s, nil
}

// Effect is a flow's terminal side effect. It receives the session with the
// final patch merged in.
type Effect func(ctx context.Context, s *models.Session) error

// CompleteFlow runs effect and deletes the session. If effect fails the
// session is left exactly as it was so the user can retry the same step.
// The lock is held across the effect so a duplicate completion cannot run
// the effect twice.
func (m *SessionManager) CompleteFlow(ctx context.Context, userID, eventID string, fromStep int, patch models.FlowData, effect Effect) error {
	unlock := m.locks.Lock(userID)
	defer unlock()

	s, err := m.load(ctx, userID)
	if err != nil {
		return err
	}
	if s.SeenEvent(eventID) {
		return ErrDuplicateEvent
	}
	if s.Step != fromStep {
		return ErrStaleStep
	}

	final := s.Clone()
	if patch != nil {
		final.Data = final.Data.Merge(patch)
	}
	if err := effect(ctx, final); err != nil {
		return err
	}
	if err := m.store.DeleteSession(ctx, userID); err != nil {
		m.log.Error("session delete after completed flow failed", "user_id", userID, "flow", s.Flow, "error", err)
		return fmt.Errorf("finish %s: %w", s.Flow, err)
	}
	return nil
}

// CancelFlow deletes the session with no side effect. Cancelling while idle
// is not an error.
func (m *SessionManager) CancelFlow(ctx context.Context, userID string) error {
	unlock := m.locks.Lock(userID)
	defer unlock()

	if err := m.store.DeleteSession(ctx, userID); err != nil {
		return fmt.Errorf("cancel flow: %w", err)
	}
	return nil
}

func (m *SessionManager) load(ctx context.Context, userID string) (*models.Session, error) {
	s, err := m.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		return nil, ErrNoSession
	}
	return s, nil
}
