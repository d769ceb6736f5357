package ledger_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/ledger"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func testKey() ledger.BalanceKey {
	return ledger.BalanceKey{TenantID: "t1", UserID: "u1", LeaveTypeID: "annual", Year: 2025}
}

// =============================================================================
// LEDGER INVARIANT
// =============================================================================

func TestBalance_ReservationArithmeticKeepsInvariant(t *testing.T) {
	b := ledger.NewBalance(testKey(), d(20), d(3))
	require.NoError(t, b.Validate())

	require.NoError(t, b.Reserve(d(5)))
	require.NoError(t, b.Validate())
	assert.True(t, b.Remaining.Equal(d(18)))

	b.Commit(d(2))
	require.NoError(t, b.Validate())

	b.Release(d(3))
	require.NoError(t, b.Validate())
	assert.True(t, b.Pending.IsZero())
	assert.True(t, b.Used.Equal(d(2)))
	assert.True(t, b.Remaining.Equal(d(21)))
}

func TestBalance_ReserveInsufficient(t *testing.T) {
	b := ledger.NewBalance(testKey(), d(2), d(0))

	err := b.Reserve(d(2.5))

	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	var ibe *ledger.InsufficientBalanceError
	require.True(t, errors.As(err, &ibe))
	assert.True(t, ibe.Available.Equal(d(2)))
	assert.True(t, b.Pending.IsZero(), "failed reserve must not mutate")
}

func TestBalance_PendingFlooredAtZeroSurfacesDrift(t *testing.T) {
	// GIVEN: A row where pending already drifted below the request size
	b := ledger.NewBalance(testKey(), d(10), d(0))
	require.NoError(t, b.Reserve(d(1)))

	// WHEN: A 3-day request is released
	b.Release(d(3))

	// THEN: pending stops at zero and the drift is reported, not hidden
	assert.True(t, b.Pending.IsZero())
	err := b.Validate()
	require.ErrorIs(t, err, ledger.ErrInvariantViolation)
	var ie *ledger.InvariantError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "remaining", ie.Field)
}

func TestBalance_ValidateRejectsNegativeFields(t *testing.T) {
	b := ledger.NewBalance(testKey(), d(5), d(0))
	b.Used = d(-1)
	b.Remaining = b.Expected()

	err := b.Validate()

	var ie *ledger.InvariantError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "used", ie.Field)
}

func TestBalance_ReallocateKeepsPending(t *testing.T) {
	b := ledger.NewBalance(testKey(), d(10), d(2))
	require.NoError(t, b.Reserve(d(4)))
	b.Commit(d(1))

	b.Reallocate(d(15))

	assert.True(t, b.Pending.Equal(d(3)))
	assert.True(t, b.Remaining.Equal(d(13)))
	assert.NoError(t, b.Validate())
}

func TestBalance_Reseed(t *testing.T) {
	b := ledger.NewBalance(testKey(), d(10), d(0))
	require.NoError(t, b.Reserve(d(2)))

	b.Reseed(d(20), d(5))

	assert.True(t, b.Remaining.Equal(d(23)))
	assert.NoError(t, b.Validate())
}

func TestLeaveType_CarryCap(t *testing.T) {
	five := d(5)
	capped := ledger.LeaveType{CarryForward: true, MaxCarryForward: &five}
	uncapped := ledger.LeaveType{CarryForward: true}
	off := ledger.LeaveType{MaxCarryForward: &five}

	assert.True(t, capped.CarryCap(d(10)).Equal(d(5)))
	assert.True(t, capped.CarryCap(d(3)).Equal(d(3)))
	assert.True(t, uncapped.CarryCap(d(10)).Equal(d(10)))
	assert.True(t, off.CarryCap(d(10)).IsZero())
	assert.True(t, capped.CarryCap(d(-1)).IsZero())
}

func TestLeaveStatus(t *testing.T) {
	assert.False(t, ledger.StatusPending.IsTerminal())
	for _, s := range []ledger.LeaveStatus{ledger.StatusApproved, ledger.StatusRejected, ledger.StatusCancelled} {
		assert.True(t, s.IsTerminal(), s)
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, ledger.LeaveStatus("archived").Valid())
}

func TestTimesheet_WorkedHours(t *testing.T) {
	ts := ledger.Timesheet{Hours: d(7), Minutes: 90}
	assert.True(t, ts.WorkedHours().Equal(d(8.5)))
}

func TestLeave_BalanceKeyUsesStartYear(t *testing.T) {
	l := ledger.Leave{TenantID: "t1", UserID: "u1", LeaveTypeID: "annual",
		StartDate: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, 2025, l.BalanceKey().Year)
}

// =============================================================================
// ERRORS
// =============================================================================

func TestErrorHelpers(t *testing.T) {
	assert.True(t, ledger.IsClientError(ledger.Invalid("days", "negative")))
	assert.True(t, ledger.IsClientError(&ledger.TenantMismatchError{Kind: "user"}))
	assert.True(t, ledger.IsConflict(&ledger.AlreadyProcessedError{LeaveID: "l1"}))
	assert.True(t, ledger.IsConflict(ledger.ErrDuplicate))
	assert.True(t, ledger.IsNotFound(ledger.NotFound("leave", "l1")))
	assert.True(t, ledger.IsRetryable(ledger.ErrConcurrentModification))
	assert.False(t, ledger.IsClientError(ledger.ErrNotFound))
	assert.Equal(t, "leave l1 not found", ledger.NotFound("leave", "l1").Error())
}
