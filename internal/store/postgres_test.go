package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/marketbot-backend/internal/models"
)

func newPostgresWithMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db), mock
}

var (
	now        = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	userCols   = []string{"id", "name", "phone", "location", "status", "is_admin", "membership_expires_at", "created_at", "updated_at"}
	listingCol = []string{"id", "seller_id", "title", "category", "price", "description", "location", "photos", "created_at"}
)

func TestPostgres_GetUser_Found(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	rows := sqlmock.NewRows(userCols).
		AddRow("u1", "Nguyen Van A", "0901234567", "HA NOI", "trial", false, now.Add(24*time.Hour), now, now)
	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).WithArgs("u1").WillReturnRows(rows)

	u, err := p.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusTrial, u.Status)
	require.NotNil(t, u.MembershipExpiresAt)
	assert.Equal(t, now.Add(24*time.Hour), *u.MembershipExpiresAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetUser_NotFound(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := p.GetUser(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_GetUser_DriverErrorIsTransient(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	mock.ExpectQuery(`SELECT .+ FROM users`).WithArgs("u1").WillReturnError(errors.New("conn reset"))

	_, err := p.GetUser(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrTransient)
	assert.Contains(t, err.Error(), "conn reset")
}

func TestPostgres_IncrementCounterIfBelow(t *testing.T) {
	tests := []struct {
		name    string
		rows    *sqlmock.Rows
		err     error
		want    bool
		wantErr error
	}{
		{name: "incremented", rows: sqlmock.NewRows([]string{"searches_run"}).AddRow(7), want: true},
		{name: "at ceiling", rows: sqlmock.NewRows([]string{"searches_run"}), want: false},
		{name: "driver error", err: errors.New("db down"), wantErr: ErrTransient},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, mock := newPostgresWithMock(t)
			exp := mock.ExpectQuery(`(?s)INSERT INTO activity_counters \(user_id, day, searches_run, last_activity_at\).*ON CONFLICT \(user_id, day\) DO UPDATE.*WHERE activity_counters.searches_run < \$3.*RETURNING searches_run`).
				WithArgs("u1", "2026-03-01", 20, now)
			if tc.err != nil {
				exp.WillReturnError(tc.err)
			} else {
				exp.WillReturnRows(tc.rows)
			}

			got, err := p.IncrementCounterIfBelow(context.Background(), "u1", "2026-03-01", models.ActionSearch, 20, now)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgres_IncrementCounterIfBelow_ZeroCeilingSkipsQuery(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	ok, err := p.IncrementCounterIfBelow(context.Background(), "u1", "2026-03-01", models.ActionListing, 0, now)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_IncrementCounterIfBelow_UnknownAction(t *testing.T) {
	p, _ := newPostgresWithMock(t)
	_, err := p.IncrementCounterIfBelow(context.Background(), "u1", "2026-03-01", "bogus", 5, now)
	assert.Error(t, err)
}

func TestPostgres_GetCounter_MissingRowIsZero(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	mock.ExpectQuery(`FROM activity_counters WHERE user_id = \$1 AND day = \$2`).
		WithArgs("u1", "2026-03-01").WillReturnError(sql.ErrNoRows)

	c, err := p.GetCounter(context.Background(), "u1", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 0, c.SearchesRun)
	assert.Equal(t, "2026-03-01", c.Day)
}

func TestPostgres_GetSession_DecodesFlowData(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	rows := sqlmock.NewRows([]string{"user_id", "flow", "step", "data", "recent_events", "started_at", "updated_at"}).
		AddRow("u1", "registration", 2, []byte(`{"full_name":"Nguyen Van A"}`), []byte(`["e1"]`), now, now)
	mock.ExpectQuery(`FROM sessions WHERE user_id = \$1`).WithArgs("u1").WillReturnRows(rows)

	s, err := p.GetSession(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.FlowRegistration, s.Flow)
	assert.Equal(t, 2, s.Step)
	assert.Equal(t, models.RegistrationData{FullName: "Nguyen Van A"}, s.Data)
	assert.Equal(t, []string{"e1"}, s.RecentEvents)
}

func TestPostgres_UpsertSession(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	mock.ExpectExec(`INSERT INTO sessions .+ ON CONFLICT \(user_id\) DO UPDATE`).
		WithArgs("u1", "search", 1, []byte(`{"query":"xe may"}`), []byte(`["e1"]`), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := p.UpsertSession(context.Background(), &models.Session{
		UserID: "u1", Flow: models.FlowSearch, Step: 1,
		Data:         models.SearchData{Query: "xe may"},
		RecentEvents: []string{"e1"},
		StartedAt:    now, UpdatedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteSession_Error(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	mock.ExpectExec(`DELETE FROM sessions WHERE user_id = \$1`).WithArgs("u1").WillReturnError(errors.New("timeout"))

	err := p.DeleteSession(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrTransient)
}

func TestPostgres_QueryListings_BuildsFilters(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	rows := sqlmock.NewRows(listingCol).
		AddRow("l1", "u1", "Honda Wave", "motorbikes", int64(12000000), "Xe dep", "HA NOI", []byte("{a.jpg}"), now).
		AddRow("l2", "u2", "Honda Vision", "motorbikes", int64(20000000), "Xe moi", "HA NOI", []byte("{}"), now)
	mock.ExpectQuery(`(?s)FROM listings WHERE category = \$1 AND location = \$2 AND \(title ILIKE \$3 OR description ILIKE \$3\) ORDER BY created_at DESC LIMIT \$4 OFFSET \$5`).
		WithArgs("motorbikes", "HA NOI", "%honda%", 2, 0).
		WillReturnRows(rows)

	page, err := p.QueryListings(context.Background(), models.ListingFilter{
		Category: "motorbikes", Location: "HA NOI", Text: "honda", Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, page.Listings, 1)
	assert.True(t, page.HasMore)
	assert.Equal(t, []string{"a.jpg"}, page.Listings[0].Photos)
}

func TestPostgres_ConfirmPaymentRequest_NotPending(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	mock.ExpectQuery(`UPDATE payment_requests SET status = 'confirmed'`).
		WithArgs("p1", now).WillReturnError(sql.ErrNoRows)

	_, err := p.ConfirmPaymentRequest(context.Background(), "p1", now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\%\_off\\`, escapeLike(`50%_off\`))
}
