package leave_test

import (
	"errors"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/notify"
)

func newTestReservations(t *testing.T) (*fixture, *leave.Reservations) {
	t.Helper()
	f := newTestFixture(t)
	r := leave.NewReservations(f.store, f.notifier, nil)
	r.Now = func() time.Time { return date(2025, time.March, 1) }
	return f, r
}

func applyFiveDays(t *testing.T, f *fixture, r *leave.Reservations) *ledger.Leave {
	t.Helper()
	l, _, err := r.Apply(f.ctx, leave.ApplyInput{
		TenantID:    tenantA,
		UserID:      "alice",
		LeaveTypeID: "annual",
		StartDate:   date(2025, time.March, 10),
		EndDate:     date(2025, time.March, 14),
	})
	require.NoError(t, err)
	return l
}

// =============================================================================
// APPLY
// =============================================================================

func TestApply_ReservesDays(t *testing.T) {
	// GIVEN: Alice has 20 days allocated for 2025
	f, r := newTestReservations(t)
	f.seedBalance(t, "alice", "annual", 2025, 20)

	// WHEN: She applies for Mon-Fri
	l, b, err := r.Apply(f.ctx, leave.ApplyInput{
		TenantID:    tenantA,
		UserID:      "alice",
		LeaveTypeID: "annual",
		StartDate:   date(2025, time.March, 10),
		EndDate:     date(2025, time.March, 14),
		Reason:      "holiday",
	})

	// THEN: The request is pending and 5 days moved from remaining to pending
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, l.Status)
	assert.Equal(t, ledger.FullDay, l.Duration)
	assertDays(t, 5, l.TotalDays, "total_days")
	assertDays(t, 15, b.Remaining, "remaining")
	assertDays(t, 5, b.Pending, "pending")
	assertInvariant(t, f.balance(t, "alice", "annual", 2025))
}

func TestApply_HalfDay(t *testing.T) {
	f, r := newTestReservations(t)
	f.seedBalance(t, "alice", "annual", 2025, 20)

	l, b, err := r.Apply(f.ctx, leave.ApplyInput{
		TenantID:    tenantA,
		UserID:      "alice",
		LeaveTypeID: "annual",
		StartDate:   date(2025, time.March, 12),
		EndDate:     date(2025, time.March, 12),
		Duration:    ledger.HalfDay,
	})

	require.NoError(t, err)
	assertDays(t, 0.5, l.TotalDays, "total_days")
	assertDays(t, 19.5, b.Remaining, "remaining")
}

func TestApply_CreatesMissingRowThenFailsOnEmptyBalance(t *testing.T) {
	// GIVEN: No ledger row for Bob
	f, r := newTestReservations(t)

	// WHEN: Bob applies
	_, _, err := r.Apply(f.ctx, leave.ApplyInput{
		TenantID:    tenantA,
		UserID:      "bob",
		LeaveTypeID: "annual",
		StartDate:   date(2025, time.March, 10),
		EndDate:     date(2025, time.March, 10),
	})

	// THEN: The reservation fails and the transaction leaves nothing behind
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	_, err = f.store.GetBalance(f.ctx, ledger.BalanceKey{TenantID: tenantA, UserID: "bob", LeaveTypeID: "annual", Year: 2025})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestApply_Validation(t *testing.T) {
	f, r := newTestReservations(t)
	f.seedBalance(t, "alice", "annual", 2025, 20)

	tests := []struct {
		name string
		in   leave.ApplyInput
		want error
	}{
		{
			name: "end before start",
			in: leave.ApplyInput{TenantID: tenantA, UserID: "alice", LeaveTypeID: "annual",
				StartDate: date(2025, time.March, 10), EndDate: date(2025, time.March, 9)},
			want: ledger.ErrValidation,
		},
		{
			name: "half day over several dates",
			in: leave.ApplyInput{TenantID: tenantA, UserID: "alice", LeaveTypeID: "annual",
				StartDate: date(2025, time.March, 10), EndDate: date(2025, time.March, 11), Duration: ledger.HalfDay},
			want: ledger.ErrValidation,
		},
		{
			name: "spans two years",
			in: leave.ApplyInput{TenantID: tenantA, UserID: "alice", LeaveTypeID: "annual",
				StartDate: date(2025, time.December, 30), EndDate: date(2026, time.January, 2)},
			want: ledger.ErrValidation,
		},
		{
			name: "leave type of another tenant",
			in: leave.ApplyInput{TenantID: tenantA, UserID: "alice", LeaveTypeID: "other-annual",
				StartDate: date(2025, time.March, 10), EndDate: date(2025, time.March, 10)},
			want: ledger.ErrTenantMismatch,
		},
		{
			name: "unknown user",
			in: leave.ApplyInput{TenantID: tenantA, UserID: "nobody", LeaveTypeID: "annual",
				StartDate: date(2025, time.March, 10), EndDate: date(2025, time.March, 10)},
			want: ledger.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := r.Apply(f.ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assertDays(t, 20, f.balance(t, "alice", "annual", 2025).Remaining, "remaining")
}

func TestApply_RejectsInactiveLeaveType(t *testing.T) {
	f, r := newTestReservations(t)
	require.NoError(t, f.store.SaveLeaveType(f.ctx, ledger.LeaveType{
		ID: "retired", TenantID: tenantA, Name: "retired", AnnualAllowance: decimal.NewFromInt(5),
	}))

	_, _, err := r.Apply(f.ctx, leave.ApplyInput{
		TenantID: tenantA, UserID: "alice", LeaveTypeID: "retired",
		StartDate: date(2025, time.March, 10), EndDate: date(2025, time.March, 10),
	})

	assert.ErrorIs(t, err, ledger.ErrValidation)
}

// =============================================================================
// TRANSITION
// =============================================================================

func TestReject_RoundTripRestoresRemaining(t *testing.T) {
	// GIVEN: 20 days and a pending 5-day request
	f, r := newTestReservations(t)
	f.seedBalance(t, "alice", "annual", 2025, 20)
	l := applyFiveDays(t, f, r)

	// WHEN: The request is rejected
	got, b, err := r.Reject(f.ctx, l.ID, "manager", "team offsite")

	// THEN: remaining is back to the pre-apply value and nothing is pending
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusRejected, got.Status)
	assert.Equal(t, "manager", got.ApprovedBy)
	assert.Equal(t, "team offsite", got.RejectionReason)
	assertDays(t, 20, b.Remaining, "remaining")
	assertDays(t, 0, b.Pending, "pending")
	assertDays(t, 0, b.Used, "used")
	assertInvariant(t, f.balance(t, "alice", "annual", 2025))
}

func TestApprove_CommitsWithoutDoubleDeduction(t *testing.T) {
	// GIVEN: 20 days and a pending 5-day request
	f, r := newTestReservations(t)
	f.seedBalance(t, "alice", "annual", 2025, 20)
	l := applyFiveDays(t, f, r)

	// WHEN: The request is approved
	_, b, err := r.Approve(f.ctx, l.ID, "manager")

	// THEN: used grows by 5, pending drains, remaining stays at the apply-time value
	require.NoError(t, err)
	assertDays(t, 5, b.Used, "used")
	assertDays(t, 0, b.Pending, "pending")
	assertDays(t, 15, b.Remaining, "remaining")

	stored, err := f.store.GetLeave(f.ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusApproved, stored.Status)
}

func TestApprove_Twice_AlreadyProcessed(t *testing.T) {
	f, r := newTestReservations(t)
	f.seedBalance(t, "alice", "annual", 2025, 20)
	l := applyFiveDays(t, f, r)
	_, _, err := r.Approve(f.ctx, l.ID, "manager")
	require.NoError(t, err)
	after := f.balance(t, "alice", "annual", 2025)

	_, _, err = r.Approve(f.ctx, l.ID, "manager")

	require.ErrorIs(t, err, ledger.ErrAlreadyProcessed)
	var ape *ledger.AlreadyProcessedError
	require.True(t, errors.As(err, &ape))
	assert.Equal(t, ledger.StatusApproved, ape.Status)
	assert.Equal(t, after, f.balance(t, "alice", "annual", 2025))
}

func TestCancel_Twice_AlreadyProcessed(t *testing.T) {
	f, r := newTestReservations(t)
	f.seedBalance(t, "alice", "annual", 2025, 20)
	l := applyFiveDays(t, f, r)

	_, b, err := r.Cancel(f.ctx, l.ID)
	require.NoError(t, err)
	assertDays(t, 20, b.Remaining, "remaining")

	_, _, err = r.Cancel(f.ctx, l.ID)
	assert.ErrorIs(t, err, ledger.ErrAlreadyProcessed)
	assertDays(t, 20, f.balance(t, "alice", "annual", 2025).Remaining, "remaining")
}

func TestTransition_TenantMismatch(t *testing.T) {
	f, r := newTestReservations(t)
	f.seedBalance(t, "alice", "annual", 2025, 20)
	l := applyFiveDays(t, f, r)

	_, _, err := r.Transition(f.ctx, leave.TransitionInput{
		LeaveID: l.ID, TenantID: tenantB, Status: ledger.StatusApproved, ApproverID: "mallory",
	})

	assert.ErrorIs(t, err, ledger.ErrTenantMismatch)
	stored, err := f.store.GetLeave(f.ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, stored.Status)
}

func TestTransition_UnknownLeaveAndStatus(t *testing.T) {
	f, r := newTestReservations(t)

	_, _, err := r.Approve(f.ctx, "missing", "manager")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, _, err = r.Transition(f.ctx, leave.TransitionInput{LeaveID: "missing", Status: ledger.StatusPending})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestTransition_ConcurrentApprovalsApplyOnce(t *testing.T) {
	// GIVEN: One pending request
	f, r := newTestReservations(t)
	f.seedBalance(t, "alice", "annual", 2025, 20)
	l := applyFiveDays(t, f, r)

	// WHEN: Eight approvers race
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := r.Approve(f.ctx, l.ID, "manager")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ledger.ErrAlreadyProcessed):
				conflicts++
			}
		}()
	}
	wg.Wait()

	// THEN: Exactly one approval landed
	assert.Equal(t, 1, successes)
	assert.Equal(t, 7, conflicts)
	b := f.balance(t, "alice", "annual", 2025)
	assertDays(t, 5, b.Used, "used")
	assertInvariant(t, b)
}

func TestTransition_EnqueuesNotification(t *testing.T) {
	f, r := newTestReservations(t)
	f.seedBalance(t, "alice", "annual", 2025, 20)
	l := applyFiveDays(t, f, r)

	_, _, err := r.Reject(f.ctx, l.ID, "manager", "coverage")
	require.NoError(t, err)

	tasks := f.notifier.Tasks()
	require.Len(t, tasks, 1)
	task := tasks[0]
	require.NotNil(t, task.Notification)
	assert.Equal(t, "leave_rejected", task.Notification.Type)
	assert.Equal(t, "Annual leave request rejected", task.Notification.Title)
	require.NotNil(t, task.Email)
	assert.Equal(t, "alice@example.com", task.Email.To)
	assert.Equal(t, notify.TemplateLeaveRejected, task.Email.TemplateType)
	assert.Equal(t, "coverage", task.Email.Data["Reason"])
}

func TestTransition_NotificationTitleKeepsMultibyteName(t *testing.T) {
	f, r := newTestReservations(t)
	lt, err := f.store.GetLeaveType(f.ctx, "annual")
	require.NoError(t, err)
	lt.Name = "état"
	require.NoError(t, f.store.SaveLeaveType(f.ctx, *lt))
	f.seedBalance(t, "alice", "annual", 2025, 20)
	l := applyFiveDays(t, f, r)

	_, _, err = r.Approve(f.ctx, l.ID, "manager")
	require.NoError(t, err)

	tasks := f.notifier.Tasks()
	require.Len(t, tasks, 1)
	title := tasks[0].Notification.Title
	assert.True(t, utf8.ValidString(title))
	assert.Equal(t, "État request approved", title)
}

// rejectingNotifier models a full queue.
type rejectingNotifier struct{}

func (rejectingNotifier) Enqueue(notify.Task) bool { return false }

func TestTransition_NotificationFailureDoesNotUndoCommit(t *testing.T) {
	f, r := newTestReservations(t)
	r.Notifier = rejectingNotifier{}
	f.seedBalance(t, "alice", "annual", 2025, 20)
	l := applyFiveDays(t, f, r)

	_, _, err := r.Approve(f.ctx, l.ID, "manager")

	require.NoError(t, err)
	assertDays(t, 5, f.balance(t, "alice", "annual", 2025).Used, "used")
}
