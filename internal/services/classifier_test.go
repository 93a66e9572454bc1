package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/marketbot-backend/internal/logging"
	"github.com/AnshRaj112/marketbot-backend/internal/models"
)

func TestRoleForProfile(t *testing.T) {
	now := testStart
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name    string
		profile models.UserProfile
		want    models.Role
	}{
		{"admin flag wins", models.UserProfile{Status: models.StatusExpired, IsAdmin: true}, models.RoleAdmin},
		{"registered", models.UserProfile{Status: models.StatusRegistered, MembershipExpiresAt: &future}, models.RoleRegistered},
		{"registered lapsed", models.UserProfile{Status: models.StatusRegistered, MembershipExpiresAt: &past}, models.RoleExpired},
		{"trial", models.UserProfile{Status: models.StatusTrial, MembershipExpiresAt: &future}, models.RoleTrial},
		{"trial lapsed", models.UserProfile{Status: models.StatusTrial, MembershipExpiresAt: &past}, models.RoleExpired},
		{"trial without expiry", models.UserProfile{Status: models.StatusTrial}, models.RoleTrial},
		{"pending", models.UserProfile{Status: models.StatusPending}, models.RolePending},
		{"expired", models.UserProfile{Status: models.StatusExpired}, models.RoleExpired},
		{"suspended", models.UserProfile{Status: models.StatusSuspended}, models.RoleExpired},
		{"new", models.UserProfile{Status: models.StatusNew}, models.RoleNew},
		{"unknown status", models.UserProfile{Status: "weird"}, models.RoleNew},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoleForProfile(&tt.profile, now))
		})
	}
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "boss")
	env.addUser(t, "trial-user", models.StatusTrial)

	uc := env.classifier.Classify(ctx, "stranger")
	assert.Equal(t, models.RoleNew, uc.Role)
	assert.Equal(t, models.StateIdle, uc.State)
	assert.Nil(t, uc.Profile)
	assert.False(t, uc.Degraded)

	uc = env.classifier.Classify(ctx, "trial-user")
	assert.Equal(t, models.RoleTrial, uc.Role)
	require.NotNil(t, uc.Profile)
	assert.True(t, uc.Permissions.Has(models.CapCreateListing))

	_, err := env.sessions.StartFlow(ctx, "boss", models.FlowSearch, "e1")
	require.NoError(t, err)
	uc = env.classifier.Classify(ctx, "boss")
	assert.Equal(t, models.RoleAdmin, uc.Role)
	assert.Equal(t, models.StateInFlow, uc.State)
	assert.Equal(t, models.FlowSearch, uc.Flow)
}

func TestClassifyExpiresMembership(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addUser(t, "u1", models.StatusTrial)

	assert.Equal(t, models.RoleTrial, env.classifier.Classify(ctx, "u1").Role)

	env.clock.Advance(31 * 24 * time.Hour)
	assert.Equal(t, models.RoleExpired, env.classifier.Classify(ctx, "u1").Role)
}

func TestClassifyUsesProfileCache(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.addUser(t, "u1", models.StatusPending)

	assert.Equal(t, models.RolePending, env.classifier.Classify(ctx, "u1").Role)

	u.Status = models.StatusRegistered
	exp := env.clock.Now().AddDate(0, 1, 0)
	u.MembershipExpiresAt = &exp
	require.NoError(t, env.store.UpsertUser(ctx, u))
	assert.Equal(t, models.RolePending, env.classifier.Classify(ctx, "u1").Role, "stale until invalidated")

	env.classifier.InvalidateProfile("u1")
	assert.Equal(t, models.RoleRegistered, env.classifier.Classify(ctx, "u1").Role)
}

func TestClassifyFailsSafeOnStoreError(t *testing.T) {
	env := newTestEnv(t)
	c := NewClassifier(flakyUsers{env.store}, env.sessions, env.caches.Profiles, env.perms, nil, env.clock, logging.Discard())

	uc := c.Classify(context.Background(), "u1")
	assert.True(t, uc.Degraded)
	assert.Equal(t, models.RoleNew, uc.Role)
	assert.Equal(t, models.StateIdle, uc.State)
	assert.False(t, uc.Permissions.Has(models.CapCreateListing))
}
