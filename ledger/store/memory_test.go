package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/ledger/store"
)

var key = ledger.BalanceKey{TenantID: "t1", UserID: "u1", LeaveTypeID: "annual", Year: 2025}

func newTestMemory(t *testing.T) (*store.Memory, *ledger.LeaveBalance) {
	t.Helper()
	m := store.NewMemory()
	b, created, err := ledger.UpsertAllocation(context.Background(), m, key, decimal.NewFromInt(10), decimal.Zero)
	require.NoError(t, err)
	require.True(t, created)
	return m, b
}

func TestMemory_BalanceVersionCAS(t *testing.T) {
	// GIVEN: Two readers of the same row
	m, _ := newTestMemory(t)
	ctx := context.Background()
	first, err := m.GetBalance(ctx, key)
	require.NoError(t, err)
	second, err := m.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Version)

	// WHEN: Both write back
	require.NoError(t, first.Reserve(decimal.NewFromInt(2)))
	require.NoError(t, m.UpdateBalance(ctx, first))
	require.NoError(t, second.Reserve(decimal.NewFromInt(3)))
	err = m.UpdateBalance(ctx, second)

	// THEN: The stale writer loses
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)
	stored, err := m.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	assert.True(t, stored.Pending.Equal(decimal.NewFromInt(2)))
}

func TestMemory_RefusesInvariantViolation(t *testing.T) {
	m, b := newTestMemory(t)

	b.Used = decimal.NewFromInt(1)
	err := m.UpdateBalance(context.Background(), b)

	assert.ErrorIs(t, err, ledger.ErrInvariantViolation)
}

func TestMemory_CreateBalanceDuplicate(t *testing.T) {
	m, _ := newTestMemory(t)

	err := m.CreateBalance(context.Background(), ledger.NewBalance(key, decimal.NewFromInt(1), decimal.Zero))

	assert.ErrorIs(t, err, ledger.ErrDuplicate)
}

func TestMemory_WithTxRollsBack(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.WithTx(ctx, func(s ledger.Store) error {
		b, err := s.GetBalance(ctx, key)
		require.NoError(t, err)
		require.NoError(t, b.Reserve(decimal.NewFromInt(4)))
		require.NoError(t, s.UpdateBalance(ctx, b))
		require.NoError(t, s.SaveUser(ctx, ledger.User{ID: "u2", TenantID: "t1"}))
		return boom
	})

	require.ErrorIs(t, err, boom)
	b, err := m.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, b.Pending.IsZero())
	assert.Equal(t, int64(1), b.Version)
	_, err = m.GetUser(ctx, "u2")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestMemory_LeaveStatusCAS(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	l := &ledger.Leave{ID: "l1", TenantID: "t1", UserID: "u1", Status: ledger.StatusPending}
	require.NoError(t, m.CreateLeave(ctx, l))

	l.Status = ledger.StatusApproved
	require.NoError(t, m.UpdateLeaveStatus(ctx, l, ledger.StatusPending))

	l.Status = ledger.StatusRejected
	assert.ErrorIs(t, m.UpdateLeaveStatus(ctx, l, ledger.StatusPending), ledger.ErrConcurrentModification)
}

func TestMemory_CompOffWeekIsUnique(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	c := &ledger.CompOffCredit{ID: "c1", TenantID: "t1", UserID: "u1", WeekKey: "2025-W10"}
	require.NoError(t, m.CreateCompOffCredit(ctx, c))

	dup := *c
	dup.ID = "c2"
	assert.ErrorIs(t, m.CreateCompOffCredit(ctx, &dup), ledger.ErrDuplicate)

	other := *c
	other.ID, other.WeekKey = "c3", "2025-W11"
	require.NoError(t, m.CreateCompOffCredit(ctx, &other))

	got, err := m.GetCompOffCreditForWeek(ctx, "t1", "u1", "2025-W10")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)
}

func TestMemory_LookupsAreTenantScoped(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.SaveUser(ctx, ledger.User{ID: "u1", TenantID: "t1", Email: "Ann@Example.com"}))

	u, err := m.GetUserByEmail(ctx, "t1", "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	_, err = m.GetUserByEmail(ctx, "t2", "ann@example.com")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestMemory_SaveKeepsRowsInTheirTenant(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.SaveUser(ctx, ledger.User{ID: "u1", TenantID: "t1", Name: "Ann"}))
	require.NoError(t, m.SaveLeaveType(ctx, ledger.LeaveType{ID: "annual", TenantID: "t1", Name: "Annual"}))
	require.NoError(t, m.SaveTimesheet(ctx, ledger.Timesheet{ID: "ts1", TenantID: "t1", UserEmail: "ann@example.com"}))

	// Same tenant may update
	require.NoError(t, m.SaveUser(ctx, ledger.User{ID: "u1", TenantID: "t1", Name: "Ann B."}))

	// Another tenant may not take the id over
	var mismatch *ledger.TenantMismatchError
	err := m.SaveUser(ctx, ledger.User{ID: "u1", TenantID: "t2", Name: "Eve"})
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "t1", mismatch.OwnerID)
	assert.ErrorIs(t, m.SaveLeaveType(ctx, ledger.LeaveType{ID: "annual", TenantID: "t2"}), ledger.ErrTenantMismatch)
	assert.ErrorIs(t, m.SaveTimesheet(ctx, ledger.Timesheet{ID: "ts1", TenantID: "t2"}), ledger.ErrTenantMismatch)

	u, err := m.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "t1", u.TenantID)
	assert.Equal(t, "Ann B.", u.Name)
	lt, err := m.GetLeaveType(ctx, "annual")
	require.NoError(t, err)
	assert.Equal(t, "t1", lt.TenantID)
}

func TestMemory_ListApprovedLeavesOverlap(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	day := func(d int) time.Time { return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC) }
	for _, l := range []ledger.Leave{
		{ID: "in", TenantID: "t1", UserID: "u1", StartDate: day(1), EndDate: day(4), Status: ledger.StatusApproved},
		{ID: "pending", TenantID: "t1", UserID: "u1", StartDate: day(5), EndDate: day(5), Status: ledger.StatusPending},
		{ID: "after", TenantID: "t1", UserID: "u1", StartDate: day(10), EndDate: day(11), Status: ledger.StatusApproved},
	} {
		l := l
		require.NoError(t, m.CreateLeave(ctx, &l))
	}

	got, err := m.ListApprovedLeaves(ctx, "t1", "u1", day(3), day(9))

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "in", got[0].ID)
}
