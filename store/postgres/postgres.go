/*
Package postgres provides a PostgreSQL-backed implementation of ledger.TxStore.

PURPOSE:
  Same contract and schema as store/sqlite, on a pgx connection pool.
  Day amounts are NUMERIC columns; they cross the driver as text so no
  precision is lost on either side.

CONCURRENCY:
  Runs at READ COMMITTED. Ledger rows are protected by the version
  compare-and-swap in UpdateBalance, leave status changes by the status
  predicate in UpdateLeaveStatus. Unique keys are inserted with
  ON CONFLICT DO NOTHING so a lost insert race reports ErrDuplicate
  without aborting the surrounding transaction.

SEE ALSO:
  - store/sqlite/sqlite.go: SQLite implementation
  - ledger/store.go: Interface definitions
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/ledger"
)

type Store struct {
	repo
	pool *pgxpool.Pool
}

// Connect opens a pool for databaseURL and migrates the schema.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	s := &Store{repo: repo{q: pool}, pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_tenant_email ON users (tenant_id, lower(email))`,

		`CREATE TABLE IF NOT EXISTS leave_types (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			days_allowed NUMERIC,
			carry_forward BOOLEAN NOT NULL DEFAULT FALSE,
			max_carry_forward NUMERIC,
			is_comp_off BOOLEAN NOT NULL DEFAULT FALSE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`ALTER TABLE leave_types ADD COLUMN IF NOT EXISTS annual_allowance NUMERIC`,
		`UPDATE leave_types SET annual_allowance = COALESCE(days_allowed, 0) WHERE annual_allowance IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_leave_types_tenant ON leave_types (tenant_id)`,

		`CREATE TABLE IF NOT EXISTS leave_balances (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			leave_type_id TEXT NOT NULL,
			year INTEGER NOT NULL,
			allocated NUMERIC NOT NULL CHECK (allocated >= 0),
			carried_over NUMERIC NOT NULL CHECK (carried_over >= 0),
			used NUMERIC NOT NULL CHECK (used >= 0),
			pending NUMERIC NOT NULL CHECK (pending >= 0),
			remaining NUMERIC NOT NULL CHECK (remaining >= 0),
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (tenant_id, user_id, leave_type_id, year),
			CHECK (remaining = allocated + carried_over - used - pending)
		)`,

		`CREATE TABLE IF NOT EXISTS leaves (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			leave_type_id TEXT NOT NULL,
			start_date DATE NOT NULL,
			end_date DATE NOT NULL,
			total_days NUMERIC NOT NULL,
			duration TEXT NOT NULL DEFAULT 'full_day',
			status TEXT NOT NULL DEFAULT 'pending',
			approved_by TEXT NOT NULL DEFAULT '',
			rejection_reason TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leaves_user_status_dates
			ON leaves (tenant_id, user_id, status, start_date, end_date)`,

		`CREATE TABLE IF NOT EXISTS comp_off_credits (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			leave_type_id TEXT NOT NULL,
			credited_days NUMERIC NOT NULL,
			used_days NUMERIC NOT NULL,
			remaining_days NUMERIC NOT NULL,
			week_key TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (tenant_id, user_id, week_key)
		)`,

		`CREATE TABLE IF NOT EXISTS timesheets (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			user_email TEXT NOT NULL,
			date DATE NOT NULL,
			hours NUMERIC NOT NULL,
			minutes INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_timesheets_user_date ON timesheets (tenant_id, lower(user_email), date)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications (tenant_id, user_id, created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(repo{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repo struct {
	q querier
}

// parseDecimals fills each destination from its NUMERIC text form.
func parseDecimals(fields map[*decimal.Decimal]string) error {
	for dst, text := range fields {
		d, err := decimal.NewFromString(text)
		if err != nil {
			return fmt.Errorf("invalid numeric %q: %w", text, err)
		}
		*dst = d
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// =============================================================================
// USERS
// =============================================================================

func scanUser(row pgx.Row) (*ledger.User, error) {
	var u ledger.User
	if err := row.Scan(&u.ID, &u.TenantID, &u.Name, &u.Email); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r repo) GetUser(ctx context.Context, id string) (*ledger.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, `SELECT id, tenant_id, name, email FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.NotFound("user", id)
	}
	return u, err
}

func (r repo) GetUserByEmail(ctx context.Context, tenantID, email string) (*ledger.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, `
    SELECT id, tenant_id, name, email FROM users
    WHERE tenant_id = $1 AND lower(email) = lower($2)
    LIMIT 1
  `, tenantID, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.NotFound("user", email)
	}
	return u, err
}

func (r repo) ListUsers(ctx context.Context, tenantID string) ([]ledger.User, error) {
	rows, err := r.q.Query(ctx, `SELECT id, tenant_id, name, email FROM users WHERE tenant_id = $1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]ledger.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (r repo) SaveUser(ctx context.Context, u ledger.User) error {
	tag, err := r.q.Exec(ctx, `
    INSERT INTO users (id, tenant_id, name, email)
    VALUES ($1,$2,$3,$4)
    ON CONFLICT (id)
      DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email
      WHERE users.tenant_id = EXCLUDED.tenant_id
  `, u.ID, u.TenantID, u.Name, u.Email)
	return checkOwned(tag, err, "user", u.ID, u.TenantID)
}

// checkOwned turns an upsert that matched a row of another tenant into a
// TenantMismatchError.
func checkOwned(tag pgconn.CommandTag, err error, kind, id, tenantID string) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ledger.TenantMismatchError{Kind: kind, ID: id, TenantID: tenantID}
	}
	return nil
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

const leaveTypeColumns = `id, tenant_id, name, annual_allowance::text, carry_forward,
  max_carry_forward::text, is_comp_off, is_active`

func scanLeaveType(row pgx.Row) (*ledger.LeaveType, error) {
	var (
		lt        ledger.LeaveType
		allowance string
		maxCarry  *string
	)
	if err := row.Scan(&lt.ID, &lt.TenantID, &lt.Name, &allowance, &lt.CarryForward, &maxCarry, &lt.IsCompOff, &lt.IsActive); err != nil {
		return nil, err
	}
	if err := parseDecimals(map[*decimal.Decimal]string{&lt.AnnualAllowance: allowance}); err != nil {
		return nil, err
	}
	if maxCarry != nil {
		d, err := decimal.NewFromString(*maxCarry)
		if err != nil {
			return nil, err
		}
		lt.MaxCarryForward = &d
	}
	return &lt, nil
}

func (r repo) GetLeaveType(ctx context.Context, id string) (*ledger.LeaveType, error) {
	lt, err := scanLeaveType(r.q.QueryRow(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.NotFound("leave_type", id)
	}
	return lt, err
}

func (r repo) ListLeaveTypes(ctx context.Context, tenantID string) ([]ledger.LeaveType, error) {
	rows, err := r.q.Query(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types WHERE tenant_id = $1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := make([]ledger.LeaveType, 0)
	for rows.Next() {
		lt, err := scanLeaveType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, *lt)
	}
	return types, rows.Err()
}

func (r repo) FindCompOffType(ctx context.Context, tenantID string) (*ledger.LeaveType, error) {
	lt, err := scanLeaveType(r.q.QueryRow(ctx, `
    SELECT `+leaveTypeColumns+` FROM leave_types
    WHERE tenant_id = $1 AND is_comp_off AND is_active
    ORDER BY id
    LIMIT 1
  `, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.NotFound("comp_off_leave_type", tenantID)
	}
	return lt, err
}

func (r repo) SaveLeaveType(ctx context.Context, lt ledger.LeaveType) error {
	var maxCarry *string
	if lt.MaxCarryForward != nil {
		s := lt.MaxCarryForward.String()
		maxCarry = &s
	}
	tag, err := r.q.Exec(ctx, `
    INSERT INTO leave_types
      (id, tenant_id, name, annual_allowance, carry_forward, max_carry_forward, is_comp_off, is_active)
    VALUES ($1,$2,$3,$4::numeric,$5,$6::numeric,$7,$8)
    ON CONFLICT (id)
      DO UPDATE SET name = EXCLUDED.name,
                    annual_allowance = EXCLUDED.annual_allowance,
                    carry_forward = EXCLUDED.carry_forward,
                    max_carry_forward = EXCLUDED.max_carry_forward,
                    is_comp_off = EXCLUDED.is_comp_off,
                    is_active = EXCLUDED.is_active
      WHERE leave_types.tenant_id = EXCLUDED.tenant_id
  `, lt.ID, lt.TenantID, lt.Name, lt.AnnualAllowance.String(), lt.CarryForward, maxCarry, lt.IsCompOff, lt.IsActive)
	return checkOwned(tag, err, "leave_type", lt.ID, lt.TenantID)
}

// =============================================================================
// LEDGER ROWS
// =============================================================================

const balanceColumns = `id, tenant_id, user_id, leave_type_id, year,
  allocated::text, carried_over::text, used::text, pending::text, remaining::text,
  version, created_at, updated_at`

func scanBalance(row pgx.Row) (*ledger.LeaveBalance, error) {
	var (
		b                                            ledger.LeaveBalance
		allocated, carried, used, pending, remaining string
	)
	err := row.Scan(&b.ID, &b.TenantID, &b.UserID, &b.LeaveTypeID, &b.Year,
		&allocated, &carried, &used, &pending, &remaining,
		&b.Version, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	err = parseDecimals(map[*decimal.Decimal]string{
		&b.Allocated:   allocated,
		&b.CarriedOver: carried,
		&b.Used:        used,
		&b.Pending:     pending,
		&b.Remaining:   remaining,
	})
	if err != nil {
		return nil, err
	}
	b.CreatedAt, b.UpdatedAt = b.CreatedAt.UTC(), b.UpdatedAt.UTC()
	return &b, nil
}

func (r repo) GetBalance(ctx context.Context, key ledger.BalanceKey) (*ledger.LeaveBalance, error) {
	b, err := scanBalance(r.q.QueryRow(ctx, `
    SELECT `+balanceColumns+` FROM leave_balances
    WHERE tenant_id = $1 AND user_id = $2 AND leave_type_id = $3 AND year = $4
  `, key.TenantID, key.UserID, key.LeaveTypeID, key.Year))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.NotFound("balance", fmt.Sprintf("%s/%s/%d", key.UserID, key.LeaveTypeID, key.Year))
	}
	return b, err
}

func (r repo) ListBalances(ctx context.Context, tenantID, userID string, year int) ([]ledger.LeaveBalance, error) {
	rows, err := r.q.Query(ctx, `
    SELECT `+balanceColumns+` FROM leave_balances
    WHERE tenant_id = $1 AND user_id = $2 AND ($3 = 0 OR year = $3)
    ORDER BY year, leave_type_id
  `, tenantID, userID, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := make([]ledger.LeaveBalance, 0)
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		balances = append(balances, *b)
	}
	return balances, rows.Err()
}

func (r repo) CreateBalance(ctx context.Context, b *ledger.LeaveBalance) error {
	if err := b.Validate(); err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx, `
    INSERT INTO leave_balances
      (id, tenant_id, user_id, leave_type_id, year,
       allocated, carried_over, used, pending, remaining, version, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8::numeric,$9::numeric,$10::numeric,1,$11,$12)
    ON CONFLICT (tenant_id, user_id, leave_type_id, year) DO NOTHING
  `, b.ID, b.TenantID, b.UserID, b.LeaveTypeID, b.Year,
		b.Allocated.String(), b.CarriedOver.String(), b.Used.String(), b.Pending.String(), b.Remaining.String(),
		b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicate
		}
		return fmt.Errorf("failed to create balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrDuplicate
	}
	b.Version = 1
	return nil
}

func (r repo) UpdateBalance(ctx context.Context, b *ledger.LeaveBalance) error {
	if err := b.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	tag, err := r.q.Exec(ctx, `
    UPDATE leave_balances
    SET allocated = $1::numeric, carried_over = $2::numeric, used = $3::numeric,
        pending = $4::numeric, remaining = $5::numeric,
        version = version + 1, updated_at = $6
    WHERE tenant_id = $7 AND user_id = $8 AND leave_type_id = $9 AND year = $10 AND version = $11
  `, b.Allocated.String(), b.CarriedOver.String(), b.Used.String(), b.Pending.String(), b.Remaining.String(),
		now, b.TenantID, b.UserID, b.LeaveTypeID, b.Year, b.Version)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetBalance(ctx, b.BalanceKey); err != nil {
			return err
		}
		return ledger.ErrConcurrentModification
	}
	b.Version++
	b.UpdatedAt = now
	return nil
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

const leaveColumns = `id, tenant_id, user_id, leave_type_id, start_date, end_date, total_days::text,
  duration, status, approved_by, rejection_reason, reason, created_at, updated_at`

func scanLeave(row pgx.Row) (*ledger.Leave, error) {
	var (
		l                       ledger.Leave
		total, duration, status string
		start, end              time.Time
	)
	err := row.Scan(&l.ID, &l.TenantID, &l.UserID, &l.LeaveTypeID, &start, &end, &total,
		&duration, &status, &l.ApprovedBy, &l.RejectionReason, &l.Reason, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := parseDecimals(map[*decimal.Decimal]string{&l.TotalDays: total}); err != nil {
		return nil, err
	}
	l.StartDate, l.EndDate = ledger.Day(start), ledger.Day(end)
	l.Duration, l.Status = ledger.Duration(duration), ledger.LeaveStatus(status)
	l.CreatedAt, l.UpdatedAt = l.CreatedAt.UTC(), l.UpdatedAt.UTC()
	return &l, nil
}

func (r repo) GetLeave(ctx context.Context, id string) (*ledger.Leave, error) {
	l, err := scanLeave(r.q.QueryRow(ctx, `SELECT `+leaveColumns+` FROM leaves WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.NotFound("leave", id)
	}
	return l, err
}

func (r repo) CreateLeave(ctx context.Context, l *ledger.Leave) error {
	_, err := r.q.Exec(ctx, `
    INSERT INTO leaves
      (id, tenant_id, user_id, leave_type_id, start_date, end_date, total_days,
       duration, status, approved_by, rejection_reason, reason, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8,$9,$10,$11,$12,$13,$14)
  `, l.ID, l.TenantID, l.UserID, l.LeaveTypeID, l.StartDate, l.EndDate, l.TotalDays.String(),
		string(l.Duration), string(l.Status), l.ApprovedBy, l.RejectionReason, l.Reason, l.CreatedAt, l.UpdatedAt)
	if isUniqueViolation(err) {
		return ledger.ErrDuplicate
	}
	return err
}

func (r repo) UpdateLeaveStatus(ctx context.Context, l *ledger.Leave, from ledger.LeaveStatus) error {
	tag, err := r.q.Exec(ctx, `
    UPDATE leaves
    SET status = $1, approved_by = $2, rejection_reason = $3, updated_at = $4
    WHERE id = $5 AND status = $6
  `, string(l.Status), l.ApprovedBy, l.RejectionReason, l.UpdatedAt, l.ID, string(from))
	if err != nil {
		return fmt.Errorf("failed to update leave status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetLeave(ctx, l.ID); err != nil {
			return err
		}
		return ledger.ErrConcurrentModification
	}
	return nil
}

func (r repo) ListApprovedLeaves(ctx context.Context, tenantID, userID string, from, to time.Time) ([]ledger.Leave, error) {
	rows, err := r.q.Query(ctx, `
    SELECT `+leaveColumns+` FROM leaves
    WHERE tenant_id = $1 AND user_id = $2 AND status = 'approved'
      AND start_date <= $3::date AND end_date >= $4::date
    ORDER BY start_date
  `, tenantID, userID, ledger.Day(to), ledger.Day(from))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leaves := make([]ledger.Leave, 0)
	for rows.Next() {
		l, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, *l)
	}
	return leaves, rows.Err()
}

// =============================================================================
// COMP-OFF CREDITS
// =============================================================================

const creditColumns = `id, tenant_id, user_id, leave_type_id, credited_days::text, used_days::text,
  remaining_days::text, week_key, reason, expires_at, created_at`

func scanCredit(row pgx.Row) (*ledger.CompOffCredit, error) {
	var (
		c                         ledger.CompOffCredit
		credited, used, remaining string
	)
	err := row.Scan(&c.ID, &c.TenantID, &c.UserID, &c.LeaveTypeID, &credited, &used, &remaining,
		&c.WeekKey, &c.Reason, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := parseDecimals(map[*decimal.Decimal]string{
		&c.CreditedDays:  credited,
		&c.UsedDays:      used,
		&c.RemainingDays: remaining,
	}); err != nil {
		return nil, err
	}
	c.ExpiresAt, c.CreatedAt = c.ExpiresAt.UTC(), c.CreatedAt.UTC()
	return &c, nil
}

func (r repo) CreateCompOffCredit(ctx context.Context, c *ledger.CompOffCredit) error {
	tag, err := r.q.Exec(ctx, `
    INSERT INTO comp_off_credits
      (id, tenant_id, user_id, leave_type_id, credited_days, used_days, remaining_days,
       week_key, reason, expires_at, created_at)
    VALUES ($1,$2,$3,$4,$5::numeric,$6::numeric,$7::numeric,$8,$9,$10,$11)
    ON CONFLICT (tenant_id, user_id, week_key) DO NOTHING
  `, c.ID, c.TenantID, c.UserID, c.LeaveTypeID,
		c.CreditedDays.String(), c.UsedDays.String(), c.RemainingDays.String(),
		c.WeekKey, c.Reason, c.ExpiresAt, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrDuplicate
	}
	return nil
}

func (r repo) GetCompOffCreditForWeek(ctx context.Context, tenantID, userID, weekKey string) (*ledger.CompOffCredit, error) {
	c, err := scanCredit(r.q.QueryRow(ctx, `
    SELECT `+creditColumns+` FROM comp_off_credits
    WHERE tenant_id = $1 AND user_id = $2 AND week_key = $3
  `, tenantID, userID, weekKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.NotFound("comp_off_credit", weekKey)
	}
	return c, err
}

func (r repo) ListCompOffCredits(ctx context.Context, tenantID, userID string) ([]ledger.CompOffCredit, error) {
	rows, err := r.q.Query(ctx, `
    SELECT `+creditColumns+` FROM comp_off_credits
    WHERE tenant_id = $1 AND user_id = $2
    ORDER BY week_key
  `, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	credits := make([]ledger.CompOffCredit, 0)
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		credits = append(credits, *c)
	}
	return credits, rows.Err()
}

// =============================================================================
// TIMESHEETS
// =============================================================================

func (r repo) ListTimesheets(ctx context.Context, tenantID, userEmail string, from, to time.Time) ([]ledger.Timesheet, error) {
	rows, err := r.q.Query(ctx, `
    SELECT id, tenant_id, user_email, date, hours::text, minutes FROM timesheets
    WHERE tenant_id = $1 AND lower(user_email) = lower($2) AND date >= $3::date AND date <= $4::date
    ORDER BY date, id
  `, tenantID, userEmail, ledger.Day(from), ledger.Day(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sheets := make([]ledger.Timesheet, 0)
	for rows.Next() {
		var (
			ts    ledger.Timesheet
			hours string
		)
		if err := rows.Scan(&ts.ID, &ts.TenantID, &ts.UserEmail, &ts.Date, &hours, &ts.Minutes); err != nil {
			return nil, err
		}
		if err := parseDecimals(map[*decimal.Decimal]string{&ts.Hours: hours}); err != nil {
			return nil, err
		}
		ts.Date = ledger.Day(ts.Date)
		sheets = append(sheets, ts)
	}
	return sheets, rows.Err()
}

func (r repo) SaveTimesheet(ctx context.Context, ts ledger.Timesheet) error {
	tag, err := r.q.Exec(ctx, `
    INSERT INTO timesheets (id, tenant_id, user_email, date, hours, minutes)
    VALUES ($1,$2,$3,$4,$5::numeric,$6)
    ON CONFLICT (id)
      DO UPDATE SET user_email = EXCLUDED.user_email,
                    date = EXCLUDED.date,
                    hours = EXCLUDED.hours,
                    minutes = EXCLUDED.minutes
      WHERE timesheets.tenant_id = EXCLUDED.tenant_id
  `, ts.ID, ts.TenantID, ts.UserEmail, ledger.Day(ts.Date), ts.Hours.String(), ts.Minutes)
	return checkOwned(tag, err, "timesheet", ts.ID, ts.TenantID)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (r repo) CreateNotification(ctx context.Context, n ledger.Notification) error {
	_, err := r.q.Exec(ctx, `
    INSERT INTO notifications (id, tenant_id, user_id, type, title, message, is_read, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
  `, n.ID, n.TenantID, n.UserID, n.Type, n.Title, n.Message, n.IsRead, n.CreatedAt)
	if isUniqueViolation(err) {
		return ledger.ErrDuplicate
	}
	return err
}

func (r repo) ListNotifications(ctx context.Context, tenantID, userID string) ([]ledger.Notification, error) {
	rows, err := r.q.Query(ctx, `
    SELECT id, tenant_id, user_id, type, title, message, is_read, created_at FROM notifications
    WHERE tenant_id = $1 AND user_id = $2
    ORDER BY created_at
  `, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ledger.Notification, 0)
	for rows.Next() {
		var n ledger.Notification
		if err := rows.Scan(&n.ID, &n.TenantID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}

var (
	_ ledger.TxStore = (*Store)(nil)
	_ ledger.Store   = repo{}
)
