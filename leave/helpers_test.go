package leave_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/ledger/store"
	"github.com/warp/leave-engine/notify"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const (
	tenantA = "tenant-a"
	tenantB = "tenant-b"
)

// recordingNotifier keeps every enqueued task.
type recordingNotifier struct {
	mu    sync.Mutex
	tasks []notify.Task
}

func (n *recordingNotifier) Enqueue(t notify.Task) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tasks = append(n.tasks, t)
	return true
}

func (n *recordingNotifier) Tasks() []notify.Task {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Task(nil), n.tasks...)
}

type fixture struct {
	ctx      context.Context
	store    *store.Memory
	notifier *recordingNotifier
}

func newTestFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:      context.Background(),
		store:    store.NewMemory(),
		notifier: &recordingNotifier{},
	}
	require.NoError(t, f.store.SaveUser(f.ctx, ledger.User{ID: "alice", TenantID: tenantA, Name: "Alice", Email: "alice@example.com"}))
	require.NoError(t, f.store.SaveUser(f.ctx, ledger.User{ID: "bob", TenantID: tenantA, Name: "Bob", Email: "bob@example.com"}))
	require.NoError(t, f.store.SaveUser(f.ctx, ledger.User{ID: "mallory", TenantID: tenantB, Name: "Mallory", Email: "mallory@example.com"}))

	maxCarry := decimal.NewFromInt(5)
	require.NoError(t, f.store.SaveLeaveType(f.ctx, ledger.LeaveType{
		ID: "annual", TenantID: tenantA, Name: "annual leave",
		AnnualAllowance: decimal.NewFromInt(20), CarryForward: true, MaxCarryForward: &maxCarry, IsActive: true,
	}))
	require.NoError(t, f.store.SaveLeaveType(f.ctx, ledger.LeaveType{
		ID: "sick", TenantID: tenantA, Name: "sick leave",
		AnnualAllowance: decimal.NewFromInt(10), IsActive: true,
	}))
	require.NoError(t, f.store.SaveLeaveType(f.ctx, ledger.LeaveType{
		ID: "comp", TenantID: tenantA, Name: "comp-off", IsCompOff: true, IsActive: true,
	}))
	require.NoError(t, f.store.SaveLeaveType(f.ctx, ledger.LeaveType{
		ID: "other-annual", TenantID: tenantB, Name: "annual leave",
		AnnualAllowance: decimal.NewFromInt(25), IsActive: true,
	}))
	return f
}

func (f *fixture) seedBalance(t *testing.T, userID, leaveTypeID string, year int, allocated float64) *ledger.LeaveBalance {
	t.Helper()
	key := ledger.BalanceKey{TenantID: tenantA, UserID: userID, LeaveTypeID: leaveTypeID, Year: year}
	b := ledger.NewBalance(key, decimal.NewFromFloat(allocated), decimal.Zero)
	b.ID = userID + "-" + leaveTypeID
	require.NoError(t, f.store.CreateBalance(f.ctx, b))
	return b
}

func (f *fixture) balance(t *testing.T, userID, leaveTypeID string, year int) *ledger.LeaveBalance {
	t.Helper()
	b, err := f.store.GetBalance(f.ctx, ledger.BalanceKey{TenantID: tenantA, UserID: userID, LeaveTypeID: leaveTypeID, Year: year})
	require.NoError(t, err)
	return b
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func assertDays(t *testing.T, want float64, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, got.Equal(decimal.NewFromFloat(want)), "%s: got %s, want %v", field, got, want)
}

func assertInvariant(t *testing.T, b *ledger.LeaveBalance) {
	t.Helper()
	assert.NoError(t, b.Validate())
}
