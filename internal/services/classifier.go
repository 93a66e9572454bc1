package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AnshRaj112/marketbot-backend/internal/cache"
	"github.com/AnshRaj112/marketbot-backend/internal/clock"
	"github.com/AnshRaj112/marketbot-backend/internal/models"
	"github.com/AnshRaj112/marketbot-backend/internal/store"
)

// Classifier derives a UserContext for every inbound event.
type Classifier struct {
	users    store.UserStore
	sessions *SessionManager
	profiles *cache.Cache[models.UserProfile]
	perms    *PermissionTable
	admins   map[string]struct{}
	clock    clock.Clock
	log      *slog.Logger
}

func NewClassifier(users store.UserStore, sessions *SessionManager, profiles *cache.Cache[models.UserProfile],
	perms *PermissionTable, adminIDs []string, clk clock.Clock, log *slog.Logger) *Classifier {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Classifier{
		users:    users,
		sessions: sessions,
		profiles: profiles,
		perms:    perms,
		admins:   admins,
		clock:    clk,
		log:      log,
	}
}

// IsAllowListed reports whether userID is a configured admin.
func (c *Classifier) IsAllowListed(userID string) bool {
	_, ok := c.admins[userID]
	return ok
}

// AdminIDs returns the configured allow-list.
func (c *Classifier) AdminIDs() []string {
	out := make([]string, 0, len(c.admins))
	for id := range c.admins {
		out = append(out, id)
	}
	return out
}

// Classify never fails. A store error yields the low-privilege default
// (New, Idle) with Degraded set; mutation paths must not treat that as a
// successful classification.
func (c *Classifier) Classify(ctx context.Context, userID string) *models.UserContext {
	uc := &models.UserContext{UserID: userID, Role: models.RoleNew, State: models.StateIdle}

	var profile *models.UserProfile
	if c.IsAllowListed(userID) {
		// Admins skip the profile lookup, but their session state is still
		// derived below so they can run flows like any other user.
		uc.Role = models.RoleAdmin
	} else {
		p, err := c.Profile(ctx, userID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return c.failSafe(userID, err)
		default:
			profile = p
			uc.Role = RoleForProfile(p, c.clock.Now())
		}
	}
	uc.Profile = profile

	s, err := c.sessions.Get(ctx, userID)
	if err != nil {
		return c.failSafe(userID, err)
	}
	if s != nil {
		uc.State = models.StateInFlow
		uc.Flow = s.Flow
	}

	uc.Permissions = c.perms.Permissions(uc.Role)
	return uc
}

func (c *Classifier) failSafe(userID string, err error) *models.UserContext {
	c.log.Error("classification failed, using default role", "user_id", userID, "error", err)
	return &models.UserContext{
		UserID:      userID,
		Role:        models.RoleNew,
		State:       models.StateIdle,
		Permissions: c.perms.Permissions(models.RoleNew),
		Degraded:    true,
	}
}

// RoleForProfile maps a persisted profile to its role at now. The mapping is
// total: every profile yields exactly one role.
func RoleForProfile(p *models.UserProfile, now time.Time) models.Role {
	if p.IsAdmin {
		return models.RoleAdmin
	}
	switch p.Status {
	case models.StatusRegistered, models.StatusTrial:
		if p.MembershipExpired(now) {
			return models.RoleExpired
		}
		if p.Status == models.StatusRegistered {
			return models.RoleRegistered
		}
		return models.RoleTrial
	case models.StatusPending:
		return models.RolePending
	case models.StatusExpired, models.StatusSuspended:
		return models.RoleExpired
	default:
		return models.RoleNew
	}
}

// Profile reads through the profile cache. Missing profiles are not cached.
func (c *Classifier) Profile(ctx context.Context, userID string) (*models.UserProfile, error) {
	if p, ok := c.profiles.Get(userID); ok {
		return &p, nil
	}
	p, err := c.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.profiles.Set(userID, *p)
	return p, nil
}

// InvalidateProfile must be called by every path that writes a profile.
func (c *Classifier) InvalidateProfile(userID string) {
	c.profiles.Delete(userID)
}
