package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/AnshRaj112/marketbot-backend/internal/models"
)

// DBTX is the subset of database/sql used by Postgres. Both *sql.DB and
// *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Postgres is the production Store backed by PostgreSQL through lib/pq.
type Postgres struct {
	db DBTX
}

func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

var _ Store = (*Postgres)(nil)

// counterColumns maps actions to their activity_counters column. Column
// names are never taken from input.
var counterColumns = map[models.Action]string{
	models.ActionListing:   "listings_created",
	models.ActionSearch:    "searches_run",
	models.ActionMessage:   "messages_sent",
	models.ActionAdminChat: "admin_chats_started",
}

// --- UserStore ---

const userColumns = `id, name, phone, location, status, is_admin, membership_expires_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.UserProfile, error) {
	var (
		u       models.UserProfile
		status  string
		expires sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Phone, &u.Location, &status, &u.IsAdmin, &expires, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Status = models.UserStatus(status)
	if expires.Valid {
		t := expires.Time
		u.MembershipExpiresAt = &t
	}
	return &u, nil
}

func (p *Postgres) GetUser(ctx context.Context, id string) (*models.UserProfile, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(p.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, transient("get user", err)
	}
	return u, nil
}

func (p *Postgres) UpsertUser(ctx context.Context, u *models.UserProfile) error {
	query :=
		`INSERT INTO users (id, name, phone, location, status, is_admin, membership_expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   phone = EXCLUDED.phone,
		   location = EXCLUDED.location,
		   status = EXCLUDED.status,
		   is_admin = EXCLUDED.is_admin,
		   membership_expires_at = EXCLUDED.membership_expires_at,
		   updated_at = EXCLUDED.updated_at`

	var expires sql.NullTime
	if u.MembershipExpiresAt != nil {
		expires = sql.NullTime{Time: *u.MembershipExpiresAt, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, query,
		u.ID, u.Name, u.Phone, u.Location, string(u.Status), u.IsAdmin, expires, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return transient("upsert user", err)
	}
	return nil
}

func (p *Postgres) ListUsers(ctx context.Context, status models.UserStatus, limit, offset int) ([]models.UserProfile, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE ($1 = '' OR status = $1)
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`

	rows, err := p.db.QueryContext(ctx, query, string(status), normalizeLimit(limit), max(offset, 0))
	if err != nil {
		return nil, transient("list users", err)
	}
	defer rows.Close()

	var out []models.UserProfile
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, transient("list users", err)
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, transient("list users", err)
	}
	return out, nil
}

// --- SessionStore ---

func (p *Postgres) GetSession(ctx context.Context, userID string) (*models.Session, error) {
	query :=
		`SELECT user_id, flow, step, data, recent_events, started_at, updated_at
		 FROM sessions WHERE user_id = $1`

	var (
		s      models.Session
		flow   string
		data   []byte
		recent []byte
	)
	err := p.db.QueryRowContext(ctx, query, userID).
		Scan(&s.UserID, &flow, &s.Step, &data, &recent, &s.StartedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, transient("get session", err)
	}

	s.Flow = models.FlowName(flow)
	if s.Flow != "" {
		if s.Data, err = models.DecodeFlowData(s.Flow, data); err != nil {
			return nil, fmt.Errorf("decode session data: %w", err)
		}
	}
	if len(recent) > 0 {
		if err := json.Unmarshal(recent, &s.RecentEvents); err != nil {
			return nil, fmt.Errorf("decode session events: %w", err)
		}
	}
	return &s, nil
}

func (p *Postgres) UpsertSession(ctx context.Context, s *models.Session) error {
	query :=
		`INSERT INTO sessions (user_id, flow, step, data, recent_events, started_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id) DO UPDATE SET
		   flow = EXCLUDED.flow,
		   step = EXCLUDED.step,
		   data = EXCLUDED.data,
		   recent_events = EXCLUDED.recent_events,
		   started_at = EXCLUDED.started_at,
		   updated_at = EXCLUDED.updated_at`

	data, err := models.EncodeFlowData(s.Data)
	if err != nil {
		return fmt.Errorf("encode session data: %w", err)
	}
	recent, err := json.Marshal(s.RecentEvents)
	if err != nil {
		return fmt.Errorf("encode session events: %w", err)
	}

	_, err = p.db.ExecContext(ctx, query, s.UserID, string(s.Flow), s.Step, data, recent, s.StartedAt, s.UpdatedAt)
	if err != nil {
		return transient("upsert session", err)
	}
	return nil
}

func (p *Postgres) DeleteSession(ctx context.Context, userID string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return transient("delete session", err)
	}
	return nil
}

// --- CounterStore ---

func (p *Postgres) GetCounter(ctx context.Context, userID, day string) (*models.ActivityCounter, error) {
	query :=
		`SELECT listings_created, searches_run, messages_sent, admin_chats_started, last_activity_at
		 FROM activity_counters WHERE user_id = $1 AND day = $2`

	c := &models.ActivityCounter{UserID: userID, Day: day}
	err := p.db.QueryRowContext(ctx, query, userID, day).
		Scan(&c.ListingsCreated, &c.SearchesRun, &c.MessagesSent, &c.AdminChatsStarted, &c.LastActivityAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, nil
		}
		return nil, transient("get counter", err)
	}
	return c, nil
}

// IncrementCounterIfBelow relies on the conditional ON CONFLICT update: when
// the existing value is already at the ceiling no row is returned.
func (p *Postgres) IncrementCounterIfBelow(ctx context.Context, userID, day string, action models.Action, ceiling int, at time.Time) (bool, error) {
	col, ok := counterColumns[action]
	if !ok {
		return false, fmt.Errorf("unknown action %q", action)
	}
	if ceiling <= 0 {
		return false, nil
	}

	query := fmt.Sprintf(
		`INSERT INTO activity_counters (user_id, day, %[1]s, last_activity_at)
		 VALUES ($1, $2, 1, $4)
		 ON CONFLICT (user_id, day) DO UPDATE SET
		   %[1]s = activity_counters.%[1]s + 1,
		   last_activity_at = EXCLUDED.last_activity_at
		 WHERE activity_counters.%[1]s < $3
		 RETURNING %[1]s`, col)

	var value int
	err := p.db.QueryRowContext(ctx, query, userID, day, ceiling, at).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, transient("increment counter", err)
	}
	return true, nil
}

func (p *Postgres) PruneCounters(ctx context.Context, before string) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM activity_counters WHERE day < $1`, before)
	if err != nil {
		return 0, transient("prune counters", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, transient("prune counters", err)
	}
	return n, nil
}

// --- ListingStore ---

const listingColumns = `id, seller_id, title, category, price, description, location, photos, created_at`

func scanListing(row rowScanner) (*models.Listing, error) {
	var l models.Listing
	if err := row.Scan(&l.ID, &l.SellerID, &l.Title, &l.Category, &l.Price, &l.Description, &l.Location,
		pq.Array(&l.Photos), &l.CreatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func (p *Postgres) InsertListing(ctx context.Context, l *models.Listing) error {
	query :=
		`INSERT INTO listings (` + listingColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	photos := l.Photos
	if photos == nil {
		photos = []string{}
	}
	_, err := p.db.ExecContext(ctx, query,
		l.ID, l.SellerID, l.Title, l.Category, l.Price, l.Description, l.Location, pq.Array(photos), l.CreatedAt)
	if err != nil {
		return transient("insert listing", err)
	}
	return nil
}

func (p *Postgres) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`

	l, err := scanListing(p.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, transient("get listing", err)
	}
	return l, nil
}

func (p *Postgres) QueryListings(ctx context.Context, f models.ListingFilter) (models.ListingPage, error) {
	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Location != "" {
		args = append(args, f.Location)
		where = append(where, fmt.Sprintf("location = $%d", len(args)))
	}
	if text := strings.TrimSpace(f.Text); text != "" {
		args = append(args, "%"+escapeLike(text)+"%")
		where = append(where, fmt.Sprintf("(title ILIKE $%[1]d OR description ILIKE $%[1]d)", len(args)))
	}

	query := `SELECT ` + listingColumns + ` FROM listings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := normalizeLimit(f.Limit)
	args = append(args, limit+1, max(f.Offset, 0))
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return models.ListingPage{}, transient("query listings", err)
	}
	defer rows.Close()

	var out []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return models.ListingPage{}, transient("query listings", err)
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return models.ListingPage{}, transient("query listings", err)
	}

	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return models.ListingPage{Listings: out, HasMore: hasMore}, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// --- PaymentStore ---

func (p *Postgres) InsertPaymentRequest(ctx context.Context, pr *models.PaymentRequest) error {
	query :=
		`INSERT INTO payment_requests (id, user_id, plan, months, amount, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := p.db.ExecContext(ctx, query, pr.ID, pr.UserID, pr.Plan, pr.Months, pr.Amount, string(pr.Status), pr.CreatedAt)
	if err != nil {
		return transient("insert payment request", err)
	}
	return nil
}

func (p *Postgres) ConfirmPaymentRequest(ctx context.Context, id string, at time.Time) (*models.PaymentRequest, error) {
	query :=
		`UPDATE payment_requests SET status = 'confirmed', confirmed_at = $2
		 WHERE id = $1 AND status = 'pending'
		 RETURNING id, user_id, plan, months, amount, status, created_at, confirmed_at`

	var (
		pr        models.PaymentRequest
		status    string
		confirmed sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, query, id, at).
		Scan(&pr.ID, &pr.UserID, &pr.Plan, &pr.Months, &pr.Amount, &status, &pr.CreatedAt, &confirmed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, transient("confirm payment request", err)
	}
	pr.Status = models.PaymentStatus(status)
	if confirmed.Valid {
		t := confirmed.Time
		pr.ConfirmedAt = &t
	}
	return &pr, nil
}

// --- StatsStore ---

func (p *Postgres) Stats(ctx context.Context, day string) (*models.AdminStats, error) {
	s := &models.AdminStats{UsersByStatus: make(map[models.UserStatus]int)}

	rows, err := p.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM users GROUP BY status`)
	if err != nil {
		return nil, transient("stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, transient("stats", err)
		}
		s.UsersByStatus[models.UserStatus(status)] = n
		s.TotalUsers += n
	}
	if err := rows.Err(); err != nil {
		return nil, transient("stats", err)
	}

	query :=
		`SELECT
		   (SELECT COUNT(*) FROM sessions),
		   (SELECT COUNT(*) FROM listings),
		   (SELECT COUNT(*) FROM listings WHERE created_at::date = $1),
		   (SELECT COUNT(*) FROM payment_requests WHERE status = 'pending')`
	err = p.db.QueryRowContext(ctx, query, day).
		Scan(&s.ActiveSessions, &s.TotalListings, &s.ListingsToday, &s.PendingPayments)
	if err != nil {
		return nil, transient("stats", err)
	}
	return s, nil
}
