package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AnshRaj112/marketbot-backend/internal/clock"
	"github.com/AnshRaj112/marketbot-backend/internal/models"
	"github.com/AnshRaj112/marketbot-backend/internal/store"
)

// abuseThresholds are absolute per-day counts, independent of role, above
// which an account is flagged for manual review.
var abuseThresholds = map[models.Action]int{
	models.ActionMessage:   500,
	models.ActionSearch:    200,
	models.ActionListing:   50,
	models.ActionAdminChat: 30,
}

type QuotaStatus struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type AbuseReport struct {
	IsAbuse bool
	Reason  string
}

// QuotaEngine enforces per-role daily ceilings on top of the activity
// counters. Days are calendar days in loc.
type QuotaEngine struct {
	counters store.CounterStore
	perms    *PermissionTable
	clock    clock.Clock
	loc      *time.Location
	log      *slog.Logger
}

func NewQuotaEngine(counters store.CounterStore, perms *PermissionTable, clk clock.Clock, loc *time.Location, log *slog.Logger) *QuotaEngine {
	if loc == nil {
		loc = time.Local
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &QuotaEngine{counters: counters, perms: perms, clock: clk, loc: loc, log: log}
}

// Day returns the counter key for t.
func (q *QuotaEngine) Day(t time.Time) string {
	return t.In(q.loc).Format(models.DayLayout)
}

// ResetTime is the next local midnight after now.
func (q *QuotaEngine) ResetTime(now time.Time) time.Time {
	y, m, d := now.In(q.loc).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, q.loc)
}

// CheckQuota reports whether one more action fits under today's ceiling.
// It never mutates the counter.
func (q *QuotaEngine) CheckQuota(ctx context.Context, role models.Role, action models.Action, userID string) (QuotaStatus, error) {
	now := q.clock.Now()
	limit := q.perms.Ceiling(role, action)

	c, err := q.counters.GetCounter(ctx, userID, q.Day(now))
	if err != nil {
		return QuotaStatus{}, fmt.Errorf("check quota: %w", err)
	}
	used := c.Count(action)
	return QuotaStatus{
		Allowed:   used < limit,
		Limit:     limit,
		Remaining: max(limit-used, 0),
		ResetAt:   q.ResetTime(now),
	}, nil
}

// RequireQuota is CheckQuota turned into an error for the dispatcher.
func (q *QuotaEngine) RequireQuota(ctx context.Context, role models.Role, action models.Action, userID string) error {
	st, err := q.CheckQuota(ctx, role, action, userID)
	if err != nil {
		return err
	}
	if !st.Allowed {
		return &QuotaExceededError{Action: action, Limit: st.Limit, ResetAt: st.ResetAt}
	}
	return nil
}

// RecordActivity consumes one unit of today's quota with a single
// conditional increment. At the ceiling it returns *QuotaExceededError and
// the counter is left untouched.
func (q *QuotaEngine) RecordActivity(ctx context.Context, role models.Role, action models.Action, userID string) error {
	now := q.clock.Now()
	limit := q.perms.Ceiling(role, action)

	ok, err := q.counters.IncrementCounterIfBelow(ctx, userID, q.Day(now), action, limit, now)
	if err != nil {
		return fmt.Errorf("record %s: %w", action, err)
	}
	if !ok {
		return &QuotaExceededError{Action: action, Limit: limit, ResetAt: q.ResetTime(now)}
	}
	return nil
}

// DetectAbuse compares today's counters with the absolute thresholds.
func (q *QuotaEngine) DetectAbuse(ctx context.Context, userID string) (AbuseReport, error) {
	c, err := q.counters.GetCounter(ctx, userID, q.Day(q.clock.Now()))
	if err != nil {
		return AbuseReport{}, fmt.Errorf("detect abuse: %w", err)
	}

	var reasons []string
	for _, action := range models.Actions {
		if n, limit := c.Count(action), abuseThresholds[action]; n >= limit {
			reasons = append(reasons, fmt.Sprintf("%s=%d (threshold %d)", action, n, limit))
		}
	}
	if len(reasons) == 0 {
		return AbuseReport{}, nil
	}
	return AbuseReport{IsAbuse: true, Reason: strings.Join(reasons, ", ")}, nil
}

// PruneCounters deletes counters older than retentionDays.
func (q *QuotaEngine) PruneCounters(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := q.clock.Now().In(q.loc).AddDate(0, 0, -retentionDays)
	n, err := q.counters.PruneCounters(ctx, cutoff.Format(models.DayLayout))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.log.Info("pruned activity counters", "rows", n, "before", cutoff.Format(models.DayLayout))
	}
	return n, nil
}

// StartCounterPruning runs PruneCounters immediately and then every
// interval until ctx is done.
func (q *QuotaEngine) StartCounterPruning(ctx context.Context, interval time.Duration, retentionDays int) {
	if interval <= 0 {
		interval = time.Hour
	}
	if retentionDays <= 0 {
		retentionDays = 30
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if _, err := q.PruneCounters(ctx, retentionDays); err != nil {
				q.log.Error("counter pruning failed", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}
