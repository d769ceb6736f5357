/*
store.go - Persistence contract for the leave ledger

PURPOSE:
  One interface per entity. Components take only the interfaces they use,
  so every component runs against the in-memory store in tests.

FILTERS:
  Lookups are equality filters plus date-window overlap for leaves and
  timesheets. No joins: callers resolve references one at a time.

ATOMICITY:
  TxStore.WithTx runs fn against a transactional view. If fn returns an
  error nothing it wrote is kept. Ledger rows are additionally protected by
  a compare-and-swap on LeaveBalance.Version, and a leave's status change
  only succeeds while the stored status still matches the expected one.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory, for tests and dev
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL
*/
package ledger

import (
	"context"
	"time"
)

type UserStore interface {
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, tenantID, email string) (*User, error)
	ListUsers(ctx context.Context, tenantID string) ([]User, error)

	// SaveUser upserts by id. An id held by another tenant fails with
	// *TenantMismatchError and the stored row is left alone.
	SaveUser(ctx context.Context, u User) error
}

type LeaveTypeStore interface {
	GetLeaveType(ctx context.Context, id string) (*LeaveType, error)
	ListLeaveTypes(ctx context.Context, tenantID string) ([]LeaveType, error)

	// FindCompOffType returns the tenant's active comp-off leave type.
	FindCompOffType(ctx context.Context, tenantID string) (*LeaveType, error)

	// SaveLeaveType upserts by id with the same tenant check as SaveUser.
	SaveLeaveType(ctx context.Context, lt LeaveType) error
}

// BalanceStore persists ledger rows. Rows are never deleted.
type BalanceStore interface {
	GetBalance(ctx context.Context, key BalanceKey) (*LeaveBalance, error)

	// ListBalances returns a user's rows; year 0 means every year.
	ListBalances(ctx context.Context, tenantID, userID string, year int) ([]LeaveBalance, error)

	// CreateBalance inserts a new row with Version 1. ErrDuplicate if the
	// key exists.
	CreateBalance(ctx context.Context, b *LeaveBalance) error

	// UpdateBalance writes b if the stored version equals b.Version, then
	// bumps b.Version. ErrConcurrentModification otherwise.
	UpdateBalance(ctx context.Context, b *LeaveBalance) error
}

type LeaveStore interface {
	GetLeave(ctx context.Context, id string) (*Leave, error)
	CreateLeave(ctx context.Context, l *Leave) error

	// UpdateLeaveStatus writes l's status fields if the stored status is
	// still from. ErrConcurrentModification otherwise.
	UpdateLeaveStatus(ctx context.Context, l *Leave, from LeaveStatus) error

	// ListApprovedLeaves returns approved leaves overlapping [from, to].
	ListApprovedLeaves(ctx context.Context, tenantID, userID string, from, to time.Time) ([]Leave, error)
}

// CompOffStore is append-only.
type CompOffStore interface {
	// CreateCompOffCredit fails with ErrDuplicate if a credit exists for
	// the same (tenant, user, week).
	CreateCompOffCredit(ctx context.Context, c *CompOffCredit) error
	GetCompOffCreditForWeek(ctx context.Context, tenantID, userID, weekKey string) (*CompOffCredit, error)
	ListCompOffCredits(ctx context.Context, tenantID, userID string) ([]CompOffCredit, error)
}

type TimesheetStore interface {
	// ListTimesheets returns rows with from <= date <= to.
	ListTimesheets(ctx context.Context, tenantID, userEmail string, from, to time.Time) ([]Timesheet, error)

	// SaveTimesheet upserts by id with the same tenant check as SaveUser.
	SaveTimesheet(ctx context.Context, t Timesheet) error
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context, tenantID, userID string) ([]Notification, error)
}

// Store is every repository behind one value.
type Store interface {
	UserStore
	LeaveTypeStore
	BalanceStore
	LeaveStore
	CompOffStore
	TimesheetStore
	NotificationStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
