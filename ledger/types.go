/*
Package ledger holds the leave balance ledger: entities, the error taxonomy
and the persistence contract every store implements.

PURPOSE:
  One ledger row exists per (tenant, user, leave type, year). Leave requests
  reserve days on that row when submitted and commit or release the
  reservation when they leave the pending state. Comp-off credits live in a
  separate append-only ledger fed by detected overtime.

LEDGER INVARIANT:
  remaining == allocated + carried_over - used - pending

  Every field is a non-negative decimal. Stores call Validate() before each
  write and refuse rows that break the invariant.

RESERVATION ARITHMETIC:
  apply:            remaining -= days; pending += days
  approve:          pending = max(0, pending - days); used += days
  reject / cancel:  pending = max(0, pending - days); remaining += days

SEE ALSO:
  - store.go: Repository interfaces
  - balance.go: Balance Store contract (find-or-create, upsert allocation)
  - leave/: Components operating on the ledger
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEAVE TYPE - Policy definition, read-only to the engine
// =============================================================================

type LeaveType struct {
	ID       string
	TenantID string
	Name     string

	// AnnualAllowance is days per year. Legacy days_allowed values are
	// folded into this field by the stores at migration time.
	AnnualAllowance decimal.Decimal

	CarryForward    bool
	MaxCarryForward *decimal.Decimal // nil = uncapped

	IsCompOff bool
	IsActive  bool
}

// CarryCap returns how much of a prior-year remainder may be carried.
func (lt LeaveType) CarryCap(priorRemaining decimal.Decimal) decimal.Decimal {
	if !lt.CarryForward || !priorRemaining.IsPositive() {
		return decimal.Zero
	}
	if lt.MaxCarryForward == nil {
		return priorRemaining
	}
	return decimal.Min(priorRemaining, *lt.MaxCarryForward)
}

// =============================================================================
// USER
// =============================================================================

type User struct {
	ID       string
	TenantID string
	Name     string
	Email    string
}

// =============================================================================
// LEAVE BALANCE - The ledger row
// =============================================================================

// BalanceKey identifies a ledger row. It is unique across a store.
type BalanceKey struct {
	TenantID    string
	UserID      string
	LeaveTypeID string
	Year        int
}

type LeaveBalance struct {
	ID string
	BalanceKey

	Allocated   decimal.Decimal
	CarriedOver decimal.Decimal
	Used        decimal.Decimal
	Pending     decimal.Decimal
	Remaining   decimal.Decimal

	// Version is bumped on every successful UpdateBalance and is the
	// compare-and-swap token for concurrent writers.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBalance returns a fresh row seeded with an allocation and carry-over.
func NewBalance(key BalanceKey, allocated, carried decimal.Decimal) *LeaveBalance {
	return &LeaveBalance{
		BalanceKey:  key,
		Allocated:   allocated,
		CarriedOver: carried,
		Used:        decimal.Zero,
		Pending:     decimal.Zero,
		Remaining:   allocated.Add(carried),
	}
}

// Expected is the remaining value the invariant demands.
func (b *LeaveBalance) Expected() decimal.Decimal {
	return b.Allocated.Add(b.CarriedOver).Sub(b.Used).Sub(b.Pending)
}

// Validate checks non-negativity and the ledger invariant.
func (b *LeaveBalance) Validate() error {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"allocated", b.Allocated},
		{"carried_over", b.CarriedOver},
		{"used", b.Used},
		{"pending", b.Pending},
		{"remaining", b.Remaining},
	}
	for _, f := range fields {
		if f.value.IsNegative() {
			return &InvariantError{Key: b.BalanceKey, Field: f.name, Got: f.value, Want: decimal.Zero}
		}
	}
	if want := b.Expected(); !b.Remaining.Equal(want) {
		return &InvariantError{Key: b.BalanceKey, Field: "remaining", Got: b.Remaining, Want: want}
	}
	return nil
}

// Reserve earmarks days for a pending request.
func (b *LeaveBalance) Reserve(days decimal.Decimal) error {
	if b.Remaining.LessThan(days) {
		return &InsufficientBalanceError{Key: b.BalanceKey, Available: b.Remaining, Requested: days}
	}
	b.Remaining = b.Remaining.Sub(days)
	b.Pending = b.Pending.Add(days)
	return nil
}

// Commit turns a reservation into consumption. Remaining was already
// decremented at reservation time and is left alone.
func (b *LeaveBalance) Commit(days decimal.Decimal) {
	b.Pending = floorZero(b.Pending.Sub(days))
	b.Used = b.Used.Add(days)
}

// Release hands a reservation back to remaining.
func (b *LeaveBalance) Release(days decimal.Decimal) {
	b.Pending = floorZero(b.Pending.Sub(days))
	b.Remaining = b.Remaining.Add(days)
}

// Reallocate replaces the allocation. In-flight reservations stay pending.
func (b *LeaveBalance) Reallocate(days decimal.Decimal) {
	b.Allocated = days
	b.Remaining = b.Expected()
}

// Reseed applies an annual allocation to an existing row, keeping used
// and pending history.
func (b *LeaveBalance) Reseed(allowance, carried decimal.Decimal) {
	b.Allocated = allowance
	b.CarriedOver = carried
	b.Remaining = b.Expected()
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

type LeaveStatus string

const (
	StatusPending   LeaveStatus = "pending"
	StatusApproved  LeaveStatus = "approved"
	StatusRejected  LeaveStatus = "rejected"
	StatusCancelled LeaveStatus = "cancelled"
)

func (s LeaveStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s LeaveStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

type Duration string

const (
	FullDay Duration = "full_day"
	HalfDay Duration = "half_day"
)

func (d Duration) Factor() decimal.Decimal {
	if d == HalfDay {
		return decimal.NewFromFloat(0.5)
	}
	return decimal.NewFromInt(1)
}

type Leave struct {
	ID          string
	TenantID    string
	UserID      string
	LeaveTypeID string

	StartDate time.Time
	EndDate   time.Time
	TotalDays decimal.Decimal
	Duration  Duration

	Status          LeaveStatus
	ApprovedBy      string
	RejectionReason string
	Reason          string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BalanceKey is the ledger row this request reserves against.
func (l *Leave) BalanceKey() BalanceKey {
	return BalanceKey{
		TenantID:    l.TenantID,
		UserID:      l.UserID,
		LeaveTypeID: l.LeaveTypeID,
		Year:        l.StartDate.Year(),
	}
}

// =============================================================================
// COMP-OFF CREDIT - Separate append-only ledger
// =============================================================================

type CompOffCredit struct {
	ID          string
	TenantID    string
	UserID      string
	LeaveTypeID string

	CreditedDays  decimal.Decimal
	UsedDays      decimal.Decimal
	RemainingDays decimal.Decimal

	// WeekKey is the ISO week (e.g. "2025-W10") the credit was earned in.
	// (tenant, user, week) is unique.
	WeekKey string
	Reason  string

	ExpiresAt time.Time
	CreatedAt time.Time
}

// =============================================================================
// TIMESHEET
// =============================================================================

type Timesheet struct {
	ID        string
	TenantID  string
	UserEmail string
	Date      time.Time
	Hours     decimal.Decimal
	Minutes   int
}

// WorkedHours is hours + minutes/60.
func (t Timesheet) WorkedHours() decimal.Decimal {
	return t.Hours.Add(decimal.NewFromInt(int64(t.Minutes)).Div(decimal.NewFromInt(60)))
}

// =============================================================================
// NOTIFICATION - In-app record written by the notification worker
// =============================================================================

type Notification struct {
	ID        string
	TenantID  string
	UserID    string
	Type      string
	Title     string
	Message   string
	IsRead    bool
	CreatedAt time.Time
}
