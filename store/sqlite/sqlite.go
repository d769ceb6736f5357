/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Persists the leave ledger and the records the engine reads (users, leave
  types, timesheets) in one SQLite file. The same schema runs on PostgreSQL
  with minor dialect differences; see store/postgres.

KEY TABLES:
  leave_balances:   One ledger row per (tenant, user, leave type, year)
  leaves:           Leave requests
  comp_off_credits: Append-only comp-off ledger, one row per ISO week
  leave_types:      Policy definitions, read-only to the engine
  users, timesheets, notifications

CONCURRENCY:
  Ledger rows carry a version column; UpdateBalance is a conditional UPDATE
  on it. Leave status changes are conditional on the current status. The
  pool is limited to a single connection, which serializes writers and
  keeps ":memory:" databases on one connection.

DECIMALS:
  Stored as TEXT through decimal.Decimal's Scanner/Valuer, never REAL.

MIGRATION:
  Schema is auto-migrated on New(). Legacy days_allowed values are copied
  into annual_allowance once; the engine never reads days_allowed.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/ledger"
)

const timestampLayout = time.RFC3339Nano

// Store implements ledger.TxStore using SQLite.
type Store struct {
	repo
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{repo: repo{q: db}, db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_users_tenant_email
		ON users(tenant_id, email COLLATE NOCASE);

	CREATE TABLE IF NOT EXISTS leave_types (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		annual_allowance TEXT,
		days_allowed TEXT,
		carry_forward BOOLEAN NOT NULL DEFAULT FALSE,
		max_carry_forward TEXT,
		is_comp_off BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE INDEX IF NOT EXISTS idx_leave_types_tenant
		ON leave_types(tenant_id);

	-- Ledger rows. Never deleted.
	CREATE TABLE IF NOT EXISTS leave_balances (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		allocated TEXT NOT NULL,
		carried_over TEXT NOT NULL,
		used TEXT NOT NULL,
		pending TEXT NOT NULL,
		remaining TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(tenant_id, user_id, leave_type_id, year)
	);

	CREATE TABLE IF NOT EXISTS leaves (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		total_days TEXT NOT NULL,
		duration TEXT NOT NULL DEFAULT 'full_day',
		status TEXT NOT NULL DEFAULT 'pending',
		approved_by TEXT NOT NULL DEFAULT '',
		rejection_reason TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Capacity lookups: approved leaves of a user in a date window
	CREATE INDEX IF NOT EXISTS idx_leaves_user_status_dates
		ON leaves(tenant_id, user_id, status, start_date, end_date);

	-- Append-only. One credit per user per ISO week.
	CREATE TABLE IF NOT EXISTS comp_off_credits (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		credited_days TEXT NOT NULL,
		used_days TEXT NOT NULL,
		remaining_days TEXT NOT NULL,
		week_key TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		expires_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(tenant_id, user_id, week_key)
	);

	CREATE TABLE IF NOT EXISTS timesheets (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_email TEXT NOT NULL,
		date TEXT NOT NULL,
		hours TEXT NOT NULL,
		minutes INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_timesheets_user_date
		ON timesheets(tenant_id, user_email COLLATE NOCASE, date);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_user
		ON notifications(tenant_id, user_id, created_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	// Databases created before annual_allowance existed only have days_allowed.
	if err := s.addColumnIfMissing(ctx, "leave_types", "annual_allowance", "TEXT"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE leave_types
		SET annual_allowance = COALESCE(days_allowed, '0')
		WHERE annual_allowance IS NULL
	`)
	return err
}

func (s *Store) addColumnIfMissing(ctx context.Context, table, column, decl string) error {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(repo{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// repo implements ledger.Store over a pool or a transaction.
type repo struct {
	q querier
}

// =============================================================================
// USERS
// =============================================================================

const userColumns = "id, tenant_id, name, email"

func scanUser(row scanner) (*ledger.User, error) {
	var u ledger.User
	if err := row.Scan(&u.ID, &u.TenantID, &u.Name, &u.Email); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r repo) GetUser(ctx context.Context, id string) (*ledger.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("user", id)
	}
	return u, err
}

func (r repo) GetUserByEmail(ctx context.Context, tenantID, email string) (*ledger.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE tenant_id = ? AND email = ? COLLATE NOCASE LIMIT 1",
		tenantID, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("user", email)
	}
	return u, err
}

func (r repo) ListUsers(ctx context.Context, tenantID string) ([]ledger.User, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE tenant_id = ? ORDER BY id", tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []ledger.User
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
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO users (id, tenant_id, name, email)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email
		WHERE users.tenant_id = excluded.tenant_id
	`, u.ID, u.TenantID, u.Name, u.Email)
	return checkOwned(res, err, "user", u.ID, u.TenantID)
}

// checkOwned turns an upsert that matched a row of another tenant into a
// TenantMismatchError.
func checkOwned(res sql.Result, err error, kind, id, tenantID string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ledger.TenantMismatchError{Kind: kind, ID: id, TenantID: tenantID}
	}
	return nil
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

const leaveTypeColumns = "id, tenant_id, name, annual_allowance, carry_forward, max_carry_forward, is_comp_off, is_active"

func scanLeaveType(row scanner) (*ledger.LeaveType, error) {
	var (
		lt       ledger.LeaveType
		maxCarry decimal.NullDecimal
	)
	err := row.Scan(&lt.ID, &lt.TenantID, &lt.Name, &lt.AnnualAllowance,
		&lt.CarryForward, &maxCarry, &lt.IsCompOff, &lt.IsActive)
	if err != nil {
		return nil, err
	}
	if maxCarry.Valid {
		lt.MaxCarryForward = &maxCarry.Decimal
	}
	return &lt, nil
}

func (r repo) GetLeaveType(ctx context.Context, id string) (*ledger.LeaveType, error) {
	lt, err := scanLeaveType(r.q.QueryRowContext(ctx,
		"SELECT "+leaveTypeColumns+" FROM leave_types WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("leave_type", id)
	}
	return lt, err
}

func (r repo) ListLeaveTypes(ctx context.Context, tenantID string) ([]ledger.LeaveType, error) {
	return r.queryLeaveTypes(ctx,
		"SELECT "+leaveTypeColumns+" FROM leave_types WHERE tenant_id = ? ORDER BY id", tenantID)
}

func (r repo) FindCompOffType(ctx context.Context, tenantID string) (*ledger.LeaveType, error) {
	lt, err := scanLeaveType(r.q.QueryRowContext(ctx,
		"SELECT "+leaveTypeColumns+" FROM leave_types WHERE tenant_id = ? AND is_comp_off AND is_active ORDER BY id LIMIT 1",
		tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("comp_off_leave_type", tenantID)
	}
	return lt, err
}

func (r repo) queryLeaveTypes(ctx context.Context, query string, args ...any) ([]ledger.LeaveType, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []ledger.LeaveType
	for rows.Next() {
		lt, err := scanLeaveType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, *lt)
	}
	return types, rows.Err()
}

func (r repo) SaveLeaveType(ctx context.Context, lt ledger.LeaveType) error {
	var maxCarry decimal.NullDecimal
	if lt.MaxCarryForward != nil {
		maxCarry = decimal.NewNullDecimal(*lt.MaxCarryForward)
	}
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO leave_types
		(id, tenant_id, name, annual_allowance, carry_forward, max_carry_forward, is_comp_off, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			annual_allowance = excluded.annual_allowance,
			carry_forward = excluded.carry_forward,
			max_carry_forward = excluded.max_carry_forward,
			is_comp_off = excluded.is_comp_off,
			is_active = excluded.is_active
		WHERE leave_types.tenant_id = excluded.tenant_id
	`, lt.ID, lt.TenantID, lt.Name, lt.AnnualAllowance, lt.CarryForward, maxCarry, lt.IsCompOff, lt.IsActive)
	return checkOwned(res, err, "leave_type", lt.ID, lt.TenantID)
}

// =============================================================================
// LEDGER ROWS
// =============================================================================

const balanceColumns = `id, tenant_id, user_id, leave_type_id, year,
	allocated, carried_over, used, pending, remaining, version, created_at, updated_at`

func scanBalance(row scanner) (*ledger.LeaveBalance, error) {
	var (
		b                    ledger.LeaveBalance
		createdAt, updatedAt string
	)
	err := row.Scan(&b.ID, &b.TenantID, &b.UserID, &b.LeaveTypeID, &b.Year,
		&b.Allocated, &b.CarriedOver, &b.Used, &b.Pending, &b.Remaining,
		&b.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	b.CreatedAt, _ = time.Parse(timestampLayout, createdAt)
	b.UpdatedAt, _ = time.Parse(timestampLayout, updatedAt)
	return &b, nil
}

func (r repo) GetBalance(ctx context.Context, key ledger.BalanceKey) (*ledger.LeaveBalance, error) {
	b, err := scanBalance(r.q.QueryRowContext(ctx, `
		SELECT `+balanceColumns+` FROM leave_balances
		WHERE tenant_id = ? AND user_id = ? AND leave_type_id = ? AND year = ?
	`, key.TenantID, key.UserID, key.LeaveTypeID, key.Year))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("balance", fmt.Sprintf("%s/%s/%d", key.UserID, key.LeaveTypeID, key.Year))
	}
	return b, err
}

func (r repo) ListBalances(ctx context.Context, tenantID, userID string, year int) ([]ledger.LeaveBalance, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+balanceColumns+` FROM leave_balances
		WHERE tenant_id = ? AND user_id = ? AND (? = 0 OR year = ?)
		ORDER BY year, leave_type_id
	`, tenantID, userID, year, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []ledger.LeaveBalance
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
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO leave_balances
		(id, tenant_id, user_id, leave_type_id, year,
		 allocated, carried_over, used, pending, remaining, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`, b.ID, b.TenantID, b.UserID, b.LeaveTypeID, b.Year,
		b.Allocated, b.CarriedOver, b.Used, b.Pending, b.Remaining,
		b.CreatedAt.UTC().Format(timestampLayout), b.UpdatedAt.UTC().Format(timestampLayout))
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicate
		}
		return fmt.Errorf("failed to create balance: %w", err)
	}
	b.Version = 1
	return nil
}

func (r repo) UpdateBalance(ctx context.Context, b *ledger.LeaveBalance) error {
	if err := b.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		UPDATE leave_balances
		SET allocated = ?, carried_over = ?, used = ?, pending = ?, remaining = ?,
			version = version + 1, updated_at = ?
		WHERE tenant_id = ? AND user_id = ? AND leave_type_id = ? AND year = ? AND version = ?
	`, b.Allocated, b.CarriedOver, b.Used, b.Pending, b.Remaining, now.Format(timestampLayout),
		b.TenantID, b.UserID, b.LeaveTypeID, b.Year, b.Version)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
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

const leaveColumns = `id, tenant_id, user_id, leave_type_id, start_date, end_date, total_days,
	duration, status, approved_by, rejection_reason, reason, created_at, updated_at`

func scanLeave(row scanner) (*ledger.Leave, error) {
	var (
		l                    ledger.Leave
		start, end           string
		createdAt, updatedAt string
	)
	err := row.Scan(&l.ID, &l.TenantID, &l.UserID, &l.LeaveTypeID, &start, &end, &l.TotalDays,
		&l.Duration, &l.Status, &l.ApprovedBy, &l.RejectionReason, &l.Reason, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	l.StartDate, _ = ledger.ParseDate(start)
	l.EndDate, _ = ledger.ParseDate(end)
	l.CreatedAt, _ = time.Parse(timestampLayout, createdAt)
	l.UpdatedAt, _ = time.Parse(timestampLayout, updatedAt)
	return &l, nil
}

func (r repo) GetLeave(ctx context.Context, id string) (*ledger.Leave, error) {
	l, err := scanLeave(r.q.QueryRowContext(ctx,
		"SELECT "+leaveColumns+" FROM leaves WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("leave", id)
	}
	return l, err
}

func (r repo) CreateLeave(ctx context.Context, l *ledger.Leave) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO leaves
		(id, tenant_id, user_id, leave_type_id, start_date, end_date, total_days,
		 duration, status, approved_by, rejection_reason, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.TenantID, l.UserID, l.LeaveTypeID,
		l.StartDate.Format(ledger.DateLayout), l.EndDate.Format(ledger.DateLayout), l.TotalDays,
		string(l.Duration), string(l.Status), l.ApprovedBy, l.RejectionReason, l.Reason,
		l.CreatedAt.UTC().Format(timestampLayout), l.UpdatedAt.UTC().Format(timestampLayout))
	if isUniqueConstraintError(err) {
		return ledger.ErrDuplicate
	}
	return err
}

func (r repo) UpdateLeaveStatus(ctx context.Context, l *ledger.Leave, from ledger.LeaveStatus) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE leaves
		SET status = ?, approved_by = ?, rejection_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(l.Status), l.ApprovedBy, l.RejectionReason, l.UpdatedAt.UTC().Format(timestampLayout),
		l.ID, string(from))
	if err != nil {
		return fmt.Errorf("failed to update leave status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetLeave(ctx, l.ID); err != nil {
			return err
		}
		return ledger.ErrConcurrentModification
	}
	return nil
}

func (r repo) ListApprovedLeaves(ctx context.Context, tenantID, userID string, from, to time.Time) ([]ledger.Leave, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+leaveColumns+` FROM leaves
		WHERE tenant_id = ? AND user_id = ? AND status = ?
		  AND start_date <= ? AND end_date >= ?
		ORDER BY start_date
	`, tenantID, userID, string(ledger.StatusApproved),
		to.Format(ledger.DateLayout), from.Format(ledger.DateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leaves []ledger.Leave
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

const creditColumns = `id, tenant_id, user_id, leave_type_id, credited_days, used_days, remaining_days,
	week_key, reason, expires_at, created_at`

func scanCredit(row scanner) (*ledger.CompOffCredit, error) {
	var (
		c                    ledger.CompOffCredit
		expiresAt, createdAt string
	)
	err := row.Scan(&c.ID, &c.TenantID, &c.UserID, &c.LeaveTypeID,
		&c.CreditedDays, &c.UsedDays, &c.RemainingDays, &c.WeekKey, &c.Reason, &expiresAt, &createdAt)
	if err != nil {
		return nil, err
	}
	c.ExpiresAt, _ = time.Parse(timestampLayout, expiresAt)
	c.CreatedAt, _ = time.Parse(timestampLayout, createdAt)
	return &c, nil
}

func (r repo) CreateCompOffCredit(ctx context.Context, c *ledger.CompOffCredit) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO comp_off_credits
		(id, tenant_id, user_id, leave_type_id, credited_days, used_days, remaining_days,
		 week_key, reason, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.TenantID, c.UserID, c.LeaveTypeID, c.CreditedDays, c.UsedDays, c.RemainingDays,
		c.WeekKey, c.Reason, c.ExpiresAt.UTC().Format(timestampLayout), c.CreatedAt.UTC().Format(timestampLayout))
	if isUniqueConstraintError(err) {
		return ledger.ErrDuplicate
	}
	return err
}

func (r repo) GetCompOffCreditForWeek(ctx context.Context, tenantID, userID, weekKey string) (*ledger.CompOffCredit, error) {
	c, err := scanCredit(r.q.QueryRowContext(ctx, `
		SELECT `+creditColumns+` FROM comp_off_credits
		WHERE tenant_id = ? AND user_id = ? AND week_key = ?
	`, tenantID, userID, weekKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("comp_off_credit", weekKey)
	}
	return c, err
}

func (r repo) ListCompOffCredits(ctx context.Context, tenantID, userID string) ([]ledger.CompOffCredit, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+creditColumns+` FROM comp_off_credits
		WHERE tenant_id = ? AND user_id = ?
		ORDER BY week_key
	`, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var credits []ledger.CompOffCredit
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
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, tenant_id, user_email, date, hours, minutes FROM timesheets
		WHERE tenant_id = ? AND user_email = ? COLLATE NOCASE AND date >= ? AND date <= ?
		ORDER BY date, id
	`, tenantID, userEmail, from.Format(ledger.DateLayout), to.Format(ledger.DateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sheets []ledger.Timesheet
	for rows.Next() {
		var (
			ts   ledger.Timesheet
			date string
		)
		if err := rows.Scan(&ts.ID, &ts.TenantID, &ts.UserEmail, &date, &ts.Hours, &ts.Minutes); err != nil {
			return nil, err
		}
		ts.Date, _ = ledger.ParseDate(date)
		sheets = append(sheets, ts)
	}
	return sheets, rows.Err()
}

func (r repo) SaveTimesheet(ctx context.Context, ts ledger.Timesheet) error {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO timesheets (id, tenant_id, user_email, date, hours, minutes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_email = excluded.user_email,
			date = excluded.date,
			hours = excluded.hours,
			minutes = excluded.minutes
		WHERE timesheets.tenant_id = excluded.tenant_id
	`, ts.ID, ts.TenantID, ts.UserEmail, ts.Date.Format(ledger.DateLayout), ts.Hours, ts.Minutes)
	return checkOwned(res, err, "timesheet", ts.ID, ts.TenantID)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (r repo) CreateNotification(ctx context.Context, n ledger.Notification) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO notifications (id, tenant_id, user_id, type, title, message, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.TenantID, n.UserID, n.Type, n.Title, n.Message, n.IsRead, n.CreatedAt.UTC().Format(timestampLayout))
	if isUniqueConstraintError(err) {
		return ledger.ErrDuplicate
	}
	return err
}

func (r repo) ListNotifications(ctx context.Context, tenantID, userID string) ([]ledger.Notification, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, tenant_id, user_id, type, title, message, is_read, created_at FROM notifications
		WHERE tenant_id = ? AND user_id = ?
		ORDER BY created_at
	`, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Notification
	for rows.Next() {
		var (
			n         ledger.Notification
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.TenantID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.IsRead, &createdAt); err != nil {
			return nil, err
		}
		n.CreatedAt, _ = time.Parse(timestampLayout, createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

// Helper functions

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

var (
	_ ledger.TxStore = (*Store)(nil)
	_ ledger.Store   = repo{}
)
