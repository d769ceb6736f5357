package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var key = ledger.BalanceKey{TenantID: "t1", UserID: "u1", LeaveTypeID: "annual", Year: 2025}

func TestSQLite_BalanceRoundTripAndCAS(t *testing.T) {
	// GIVEN: A fresh ledger row
	s := newTestStore(t)
	ctx := context.Background()
	b, created, err := ledger.UpsertAllocation(ctx, s, key, decimal.RequireFromString("12.5"), decimal.NewFromInt(2))
	require.NoError(t, err)
	require.True(t, created)

	// WHEN: Two readers write back in turn
	first, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	second, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	require.NoError(t, first.Reserve(decimal.NewFromFloat(0.5)))
	require.NoError(t, s.UpdateBalance(ctx, first))
	require.NoError(t, second.Reserve(decimal.NewFromInt(1)))
	err = s.UpdateBalance(ctx, second)

	// THEN: Decimals survive storage and the stale write loses
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)
	stored, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, b.ID, stored.ID)
	assert.Equal(t, int64(2), stored.Version)
	assert.True(t, stored.Remaining.Equal(decimal.NewFromInt(14)), stored.Remaining.String())
	assert.True(t, stored.Pending.Equal(decimal.NewFromFloat(0.5)))
}

func TestSQLite_BalanceErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _, err := ledger.UpsertAllocation(ctx, s, key, decimal.NewFromInt(10), decimal.Zero)
	require.NoError(t, err)

	dup := ledger.NewBalance(key, decimal.NewFromInt(1), decimal.Zero)
	dup.ID = "other"
	assert.ErrorIs(t, s.CreateBalance(ctx, dup), ledger.ErrDuplicate)

	broken, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	broken.Remaining = decimal.NewFromInt(99)
	assert.ErrorIs(t, s.UpdateBalance(ctx, broken), ledger.ErrInvariantViolation)

	missing := ledger.NewBalance(ledger.BalanceKey{TenantID: "t1", UserID: "nobody", LeaveTypeID: "annual", Year: 2025}, decimal.Zero, decimal.Zero)
	assert.ErrorIs(t, s.UpdateBalance(ctx, missing), ledger.ErrNotFound)
}

func TestSQLite_WithTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx ledger.Store) error {
		_, _, err := ledger.FindOrCreateBalance(ctx, tx, key)
		require.NoError(t, err)
		return boom
	})

	require.ErrorIs(t, err, boom)
	_, err = s.GetBalance(ctx, key)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestSQLite_CompOffWeekIsUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := &ledger.CompOffCredit{
		ID: "c1", TenantID: "t1", UserID: "u1", LeaveTypeID: "comp",
		CreditedDays: decimal.NewFromFloat(0.5), UsedDays: decimal.Zero, RemainingDays: decimal.NewFromFloat(0.5),
		WeekKey: "2025-W10", ExpiresAt: time.Date(2025, 3, 9, 23, 59, 59, 0, time.UTC), CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateCompOffCredit(ctx, c))

	dup := *c
	dup.ID = "c2"
	assert.ErrorIs(t, s.CreateCompOffCredit(ctx, &dup), ledger.ErrDuplicate)

	got, err := s.GetCompOffCreditForWeek(ctx, "t1", "u1", "2025-W10")
	require.NoError(t, err)
	assert.True(t, got.CreditedDays.Equal(decimal.NewFromFloat(0.5)))
	assert.True(t, got.ExpiresAt.Equal(c.ExpiresAt))
}

func TestSQLite_LeaveTypesAndUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	maxCarry := decimal.NewFromInt(5)
	require.NoError(t, s.SaveLeaveType(ctx, ledger.LeaveType{
		ID: "annual", TenantID: "t1", Name: "Annual", AnnualAllowance: decimal.NewFromInt(20),
		CarryForward: true, MaxCarryForward: &maxCarry, IsActive: true,
	}))
	require.NoError(t, s.SaveLeaveType(ctx, ledger.LeaveType{
		ID: "comp", TenantID: "t1", Name: "Comp-off", IsCompOff: true, IsActive: true,
	}))
	require.NoError(t, s.SaveUser(ctx, ledger.User{ID: "u1", TenantID: "t1", Name: "Ann", Email: "Ann@Example.com"}))

	lt, err := s.GetLeaveType(ctx, "annual")
	require.NoError(t, err)
	require.NotNil(t, lt.MaxCarryForward)
	assert.True(t, lt.MaxCarryForward.Equal(maxCarry))
	assert.True(t, lt.CarryForward)

	comp, err := s.FindCompOffType(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "comp", comp.ID)
	assert.Nil(t, comp.MaxCarryForward)

	_, err = s.FindCompOffType(ctx, "t2")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	u, err := s.GetUserByEmail(ctx, "t1", "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
}

func TestSQLite_SaveKeepsRowsInTheirTenant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveUser(ctx, ledger.User{ID: "u1", TenantID: "t1", Name: "Ann", Email: "ann@example.com"}))
	require.NoError(t, s.SaveLeaveType(ctx, ledger.LeaveType{ID: "annual", TenantID: "t1", Name: "Annual", IsActive: true}))
	require.NoError(t, s.SaveTimesheet(ctx, ledger.Timesheet{ID: "ts1", TenantID: "t1", UserEmail: "ann@example.com", Date: day, Hours: decimal.NewFromInt(8)}))

	// Same tenant may update
	require.NoError(t, s.SaveUser(ctx, ledger.User{ID: "u1", TenantID: "t1", Name: "Ann B.", Email: "ann@example.com"}))

	// Another tenant may not take the id over
	assert.ErrorIs(t, s.SaveUser(ctx, ledger.User{ID: "u1", TenantID: "t2", Name: "Eve", Email: "eve@example.com"}), ledger.ErrTenantMismatch)
	assert.ErrorIs(t, s.SaveLeaveType(ctx, ledger.LeaveType{ID: "annual", TenantID: "t2", Name: "Stolen"}), ledger.ErrTenantMismatch)
	assert.ErrorIs(t, s.SaveTimesheet(ctx, ledger.Timesheet{ID: "ts1", TenantID: "t2", UserEmail: "eve@example.com", Date: day, Hours: decimal.NewFromInt(1)}), ledger.ErrTenantMismatch)

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "t1", u.TenantID)
	assert.Equal(t, "Ann B.", u.Name)
	lt, err := s.GetLeaveType(ctx, "annual")
	require.NoError(t, err)
	assert.Equal(t, "t1", lt.TenantID)
	assert.Equal(t, "Annual", lt.Name)
	rows, err := s.ListTimesheets(ctx, "t1", "ann@example.com", day, day)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Hours.Equal(decimal.NewFromInt(8)))
}

func TestSQLite_MigratesLegacyDaysAllowed(t *testing.T) {
	// GIVEN: A database written before annual_allowance existed
	path := filepath.Join(t.TempDir(), "legacy.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE leave_types (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			days_allowed TEXT,
			carry_forward BOOLEAN NOT NULL DEFAULT FALSE,
			max_carry_forward TEXT,
			is_comp_off BOOLEAN NOT NULL DEFAULT FALSE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		);
		INSERT INTO leave_types (id, tenant_id, name, days_allowed) VALUES ('annual', 't1', 'Annual', '18');
		INSERT INTO leave_types (id, tenant_id, name) VALUES ('unpaid', 't1', 'Unpaid');
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// WHEN: The store opens it
	s, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	// THEN: days_allowed is folded into annual_allowance
	types, err := s.ListLeaveTypes(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.True(t, types[0].AnnualAllowance.Equal(decimal.NewFromInt(18)))
	assert.True(t, types[1].AnnualAllowance.IsZero())
}

func TestSQLite_ApplyApproveAndCapacity(t *testing.T) {
	// GIVEN: A user with an allocation, on the SQLite store
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveUser(ctx, ledger.User{ID: "u1", TenantID: "t1", Name: "Ann", Email: "ann@example.com"}))
	require.NoError(t, s.SaveLeaveType(ctx, ledger.LeaveType{
		ID: "annual", TenantID: "t1", Name: "Annual", AnnualAllowance: decimal.NewFromInt(20), IsActive: true,
	}))
	alloc := leave.NewAllocator(s, nil)
	_, err := alloc.RunAnnualAllocation(ctx, "t1", 2025, false)
	require.NoError(t, err)

	// WHEN: A week is applied for, approved twice
	r := leave.NewReservations(s, nil, nil)
	l, _, err := r.Apply(ctx, leave.ApplyInput{
		TenantID: "t1", UserID: "u1", LeaveTypeID: "annual",
		StartDate: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	_, b, err := r.Approve(ctx, l.ID, "boss")
	require.NoError(t, err)
	_, _, err = r.Approve(ctx, l.ID, "boss")

	// THEN: One commit, and capacity sees the approved leave
	assert.ErrorIs(t, err, ledger.ErrAlreadyProcessed)
	assert.True(t, b.Used.Equal(decimal.NewFromInt(5)))
	assert.True(t, b.Remaining.Equal(decimal.NewFromInt(15)))

	c, err := leave.NewCapacityCalculator(s, s).Capacity(ctx, "t1", "ann@example.com", time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, c.AdjustedCapacity.IsZero())
}

func TestSQLite_TimesheetsWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i, day := range []int{2, 3, 9, 10} {
		require.NoError(t, s.SaveTimesheet(ctx, ledger.Timesheet{
			ID: string(rune('a' + i)), TenantID: "t1", UserEmail: "ann@example.com",
			Date: time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC), Hours: decimal.NewFromInt(9), Minutes: 30,
		}))
	}

	rows, err := s.ListTimesheets(ctx, "t1", "ANN@example.com",
		ledger.StartOfWeek(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)),
		ledger.EndOfWeek(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 3, rows[0].Date.Day())
	assert.True(t, rows[1].WorkedHours().Equal(decimal.NewFromFloat(9.5)))
}
