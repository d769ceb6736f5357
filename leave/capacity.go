package leave

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/ledger"
)

var (
	weeklyCapacityHours = decimal.NewFromInt(40)
	hundred             = decimal.NewFromInt(100)
)

// CapacityCalculator turns approved leaves into a weekly capacity
// reduction. It reads leave requests only, never the ledger.
type CapacityCalculator struct {
	Users  ledger.UserStore
	Leaves ledger.LeaveStore
}

func NewCapacityCalculator(users ledger.UserStore, leaves ledger.LeaveStore) *CapacityCalculator {
	return &CapacityCalculator{Users: users, Leaves: leaves}
}

type Capacity struct {
	UserEmail          string          `json:"user_email"`
	WeekStart          string          `json:"week_start"`
	WeekEnd            string          `json:"week_end"`
	LeaveDays          decimal.Decimal `json:"leave_days"`
	OriginalCapacity   decimal.Decimal `json:"original_capacity"`
	HoursReduction     decimal.Decimal `json:"hours_reduction"`
	AdjustedCapacity   decimal.Decimal `json:"adjusted_capacity"`
	CapacityPercentage decimal.Decimal `json:"capacity_percentage"`
}

// Capacity computes the capacity of one user for the week starting at
// weekStart. weekStart is used as given; the window ends at the Sunday on
// or after it.
func (c *CapacityCalculator) Capacity(ctx context.Context, tenantID, userEmail string, weekStart time.Time) (*Capacity, error) {
	if tenantID == "" {
		return nil, ledger.Invalid("tenant_id", "required")
	}
	if userEmail == "" {
		return nil, ledger.Invalid("user_email", "required")
	}
	if weekStart.IsZero() {
		return nil, ledger.Invalid("week_start", "required")
	}
	weekStart = ledger.Day(weekStart)
	weekEnd := ledger.Day(ledger.EndOfWeek(weekStart))

	user, err := c.Users.GetUserByEmail(ctx, tenantID, userEmail)
	if err != nil {
		return nil, err
	}
	leaves, err := c.Leaves.ListApprovedLeaves(ctx, tenantID, user.ID, weekStart, weekEnd)
	if err != nil {
		return nil, err
	}

	days := LeaveDaysInWindow(leaves, weekStart, weekEnd)
	reduction := days.Mul(hoursPerDay)
	adjusted := weeklyCapacityHours.Sub(reduction)
	if adjusted.IsNegative() {
		adjusted = decimal.Zero
	}

	return &Capacity{
		UserEmail:          userEmail,
		WeekStart:          weekStart.Format(ledger.DateLayout),
		WeekEnd:            weekEnd.Format(ledger.DateLayout),
		LeaveDays:          days,
		OriginalCapacity:   weeklyCapacityHours,
		HoursReduction:     reduction,
		AdjustedCapacity:   adjusted,
		CapacityPercentage: adjusted.Div(weeklyCapacityHours).Mul(hundred).Round(2),
	}, nil
}

// LeaveDaysInWindow sums the calendar days of each leave clipped to
// [from, to], halved for half-day leaves.
func LeaveDaysInWindow(leaves []ledger.Leave, from, to time.Time) decimal.Decimal {
	from, to = ledger.Day(from), ledger.Day(to)
	total := decimal.Zero
	for _, l := range leaves {
		if !ledger.Overlaps(l.StartDate, l.EndDate, from, to) {
			continue
		}
		start, end := ledger.Day(l.StartDate), ledger.Day(l.EndDate)
		if start.Before(from) {
			start = from
		}
		if end.After(to) {
			end = to
		}
		n := decimal.NewFromInt(int64(ledger.DaysInclusive(start, end)))
		total = total.Add(n.Mul(l.Duration.Factor()))
	}
	return total
}
