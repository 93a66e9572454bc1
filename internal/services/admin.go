package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AnshRaj112/marketbot-backend/internal/cache"
	"github.com/AnshRaj112/marketbot-backend/internal/clock"
	"github.com/AnshRaj112/marketbot-backend/internal/models"
	"github.com/AnshRaj112/marketbot-backend/internal/store"
)

// AdminService is the read/write surface consumed by the admin dashboard.
type AdminService struct {
	store      store.Store
	logs       store.LogStore
	classifier *Classifier
	quota      *QuotaEngine
	stats      *cache.Cache[models.AdminStats]
	caches     *cache.Manager
	sender     Sender
	clock      clock.Clock
	log        *slog.Logger
}

func NewAdminService(st store.Store, logs store.LogStore, classifier *Classifier, quota *QuotaEngine,
	stats *cache.Cache[models.AdminStats], caches *cache.Manager, sender Sender, clk clock.Clock, log *slog.Logger) *AdminService {
	if clk == nil {
		clk = clock.Real()
	}
	return &AdminService{
		store:      st,
		logs:       logs,
		classifier: classifier,
		quota:      quota,
		stats:      stats,
		caches:     caches,
		sender:     sender,
		clock:      clk,
		log:        log,
	}
}

// Stats returns today's aggregate snapshot through the admin-stat cache.
func (a *AdminService) Stats(ctx context.Context) (models.AdminStats, error) {
	day := a.quota.Day(a.clock.Now())
	return a.stats.GetOrLoad(day, func() (models.AdminStats, error) {
		s, err := a.store.Stats(ctx, day)
		if err != nil {
			return models.AdminStats{}, err
		}
		s.GeneratedAt = a.clock.Now()
		return *s, nil
	})
}

func (a *AdminService) ListUsers(ctx context.Context, status models.UserStatus, limit, offset int) ([]models.UserProfile, error) {
	if status != "" && !status.Valid() {
		return nil, invalid("status", fmt.Sprintf("unknown status %q", status))
	}
	return a.store.ListUsers(ctx, status, limit, offset)
}

// SetUserStatus transitions a profile. Profiles are never deleted.
func (a *AdminService) SetUserStatus(ctx context.Context, userID string, status models.UserStatus) (*models.UserProfile, error) {
	if !status.Valid() {
		return nil, invalid("status", fmt.Sprintf("unknown status %q", status))
	}
	u, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.Status = status
	u.UpdatedAt = a.clock.Now()
	if err := a.store.UpsertUser(ctx, u); err != nil {
		return nil, err
	}
	a.classifier.InvalidateProfile(userID)
	a.stats.Clear()
	a.log.Info("user status changed", "user_id", userID, "status", status)
	return u, nil
}

// ConfirmPayment settles a pending request: the payer becomes registered
// and the membership is extended by the plan's months from the later of now
// and the current expiry.
func (a *AdminService) ConfirmPayment(ctx context.Context, paymentID string) (*models.PaymentRequest, error) {
	now := a.clock.Now()
	pr, err := a.store.ConfirmPaymentRequest(ctx, paymentID, now)
	if err != nil {
		return nil, err
	}

	u, err := a.store.GetUser(ctx, pr.UserID)
	if err != nil {
		return nil, fmt.Errorf("confirm payment %s: %w", paymentID, err)
	}
	from := now
	if u.MembershipExpiresAt != nil && u.MembershipExpiresAt.After(now) {
		from = *u.MembershipExpiresAt
	}
	expires := from.AddDate(0, pr.Months, 0)
	u.Status = models.StatusRegistered
	u.MembershipExpiresAt = &expires
	u.UpdatedAt = now
	if err := a.store.UpsertUser(ctx, u); err != nil {
		return nil, fmt.Errorf("confirm payment %s: %w", paymentID, err)
	}
	a.classifier.InvalidateProfile(u.ID)
	a.stats.Clear()
	a.log.Info("payment confirmed", "payment_id", pr.ID, "user_id", u.ID, "expires_at", expires)

	if a.sender != nil {
		msg := models.Outbound{
			RecipientID: u.ID,
			Reply:       textReply("🎉 Payment received! Your membership is active until %s.", expires.Format("02/01/2006")),
		}
		if err := a.sender.Send(ctx, msg); err != nil {
			a.log.Warn("payment confirmation notice not delivered", "user_id", u.ID, "error", err)
		}
	}
	return pr, nil
}

func (a *AdminService) ListAbuseFlags(ctx context.Context, limit int64) ([]models.AbuseFlag, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return a.logs.ListAbuseFlags(ctx, limit)
}

func (a *AdminService) CacheStats() []cache.Stats {
	return a.caches.Stats()
}

// FlushCaches drops every cached entry. The store stays authoritative.
func (a *AdminService) FlushCaches() {
	a.caches.Clear()
}
