package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/marketbot-backend/internal/models"
)

func TestCheckPermissionMatchesTable(t *testing.T) {
	perms := DefaultPermissionTable()

	tests := []struct {
		role models.Role
		cap  models.Capability
		want bool
	}{
		{models.RoleAdmin, models.CapUsePoints, true},
		{models.RoleRegistered, models.CapAccessCommunity, true},
		{models.RoleTrial, models.CapCreateListing, true},
		{models.RoleTrial, models.CapUsePoints, false},
		{models.RolePending, models.CapCreateListing, false},
		{models.RolePending, models.CapMakePayment, true},
		{models.RoleExpired, models.CapContactSeller, false},
		{models.RoleNew, models.CapMakePayment, false},
		{models.RoleNew, models.CapSearch, true},
		{models.Role("ghost"), models.CapUseBot, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.cap), func(t *testing.T) {
			assert.Equal(t, tt.want, perms.CheckPermission(tt.role, tt.cap))
		})
	}
}

func TestCheckPermissionDeterministic(t *testing.T) {
	perms := DefaultPermissionTable()

	for _, role := range models.Roles {
		set := perms.Permissions(role)
		assert.Len(t, set, len(models.Capabilities), "role %s must define every capability", role)
		for _, c := range models.Capabilities {
			first := perms.CheckPermission(role, c)
			for _i := 0; _i < 3; _i++ {
				assert.Equal(t, first, perms.CheckPermission(role, c))
			}
			assert.Equal(t, first, set[c])
		}
	}
}

func TestPermissionsReturnsCopy(t *testing.T) {
	perms := DefaultPermissionTable()

	set := perms.Permissions(models.RoleNew)
	set[models.CapCreateListing] = true
	assert.False(t, perms.CheckPermission(models.RoleNew, models.CapCreateListing))
}

func TestRequireWrapsPermissionDenied(t *testing.T) {
	err := DefaultPermissionTable().Require(models.RolePending, models.CapCreateListing)

	var perr *PermissionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, models.CapCreateListing, perr.Capability)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestSearchQuotaExhaustion(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ceiling := env.perms.Ceiling(models.RoleTrial, models.ActionSearch)
	require.Equal(t, 20, ceiling)

	for i := 0; i < ceiling; i++ {
		require.NoError(t, env.quota.RecordActivity(ctx, models.RoleTrial, models.ActionSearch, "u1"), "search %d", i+1)
	}

	st, err := env.quota.CheckQuota(ctx, models.RoleTrial, models.ActionSearch, "u1")
	require.NoError(t, err)
	assert.False(t, st.Allowed)
	assert.Equal(t, 0, st.Remaining)
	assert.False(t, st.ResetAt.Before(env.clock.Now()))

	err = env.quota.RecordActivity(ctx, models.RoleTrial, models.ActionSearch, "u1")
	var qerr *QuotaExceededError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, models.ActionSearch, qerr.Action)
	assert.Equal(t, 20, qerr.Limit)

	c, err := env.store.GetCounter(ctx, "u1", env.quota.Day(env.clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, 20, c.SearchesRun)
}

func TestQuotaResetsNextDay(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	for _i := 0; _i < 5; _i++ {
		require.NoError(t, env.quota.RecordActivity(ctx, models.RoleNew, models.ActionSearch, "u1"))
	}
	require.Error(t, env.quota.RequireQuota(ctx, models.RoleNew, models.ActionSearch, "u1"))

	env.clock.Set(env.quota.ResetTime(env.clock.Now()))
	assert.NoError(t, env.quota.RequireQuota(ctx, models.RoleNew, models.ActionSearch, "u1"))
}

func TestZeroCeilingNeverAllows(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	st, err := env.quota.CheckQuota(ctx, models.RolePending, models.ActionListing, "u1")
	require.NoError(t, err)
	assert.False(t, st.Allowed)

	var qerr *QuotaExceededError
	assert.ErrorAs(t, env.quota.RecordActivity(ctx, models.RolePending, models.ActionListing, "u1"), &qerr)
}

func TestResetTimeIsNextLocalMidnight(t *testing.T) {
	env := newTestEnv(t)

	now := time.Date(2026, 3, 10, 23, 59, 0, 0, testLoc)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, testLoc), env.quota.ResetTime(now))

	// 18:30 UTC is already the next day in ICT.
	utc := time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-11", env.quota.Day(utc))
	assert.Equal(t, time.Date(2026, 3, 12, 0, 0, 0, 0, testLoc), env.quota.ResetTime(utc))
}

func TestDetectAbuse(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	report, err := env.quota.DetectAbuse(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, report.IsAbuse)

	for _i := 0; _i < abuseThresholds[models.ActionAdminChat]; _i++ {
		require.NoError(t, env.quota.RecordActivity(ctx, models.RoleAdmin, models.ActionAdminChat, "u1"))
	}
	report, err = env.quota.DetectAbuse(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, report.IsAbuse)
	assert.Contains(t, report.Reason, "admin_chats=30")
}

func TestPruneCounters(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	require.NoError(t, env.quota.RecordActivity(ctx, models.RoleNew, models.ActionMessage, "u1"))
	env.clock.Advance(40 * 24 * time.Hour)
	require.NoError(t, env.quota.RecordActivity(ctx, models.RoleNew, models.ActionMessage, "u1"))

	n, err := env.quota.PruneCounters(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	c, err := env.store.GetCounter(ctx, "u1", env.quota.Day(env.clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, 1, c.MessagesSent)
}
