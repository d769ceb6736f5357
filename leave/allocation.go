/*
allocation.go - Individual and annual leave allocation

INDIVIDUAL:
  AllocateIndividualLeave sets allocated on one ledger row. An existing row
  keeps carried_over, used and pending; remaining is recomputed from them.
  A missing row is created with remaining = days.

ANNUAL:
  RunAnnualAllocation seeds every (user, leave type) row of a tenant for a
  year, comp-off types excluded:

    allowance = leave_type.annual_allowance
    carried   = min(prior_year.remaining, max_carry_forward)   if carry_forward
    available = allowance + carried

  Pairs with zero allowance and no carry-forward are skipped. Dry runs only
  classify pairs as create/update and write nothing. Re-running resets
  allocated on existing rows, including individual allocations.

  AllocateMissing is the unattended variant: it only creates rows that do
  not exist yet and counts the others as Existing.

  Each row is written in its own transaction. A failing row is logged,
  counted in Failed, and the run continues.
*/
package leave

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/ledger"
)

type Allocator struct {
	Store  ledger.TxStore
	Logger *slog.Logger
}

func NewAllocator(store ledger.TxStore, logger *slog.Logger) *Allocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{Store: store, Logger: logger}
}

// =============================================================================
// INDIVIDUAL ALLOCATION
// =============================================================================

type IndividualAllocation struct {
	TenantID    string
	UserID      string
	LeaveTypeID string
	Days        decimal.Decimal
	Year        int
}

func (a *Allocator) AllocateIndividualLeave(ctx context.Context, in IndividualAllocation) (*ledger.LeaveBalance, error) {
	switch {
	case in.TenantID == "":
		return nil, ledger.Invalid("tenant_id", "required")
	case in.UserID == "":
		return nil, ledger.Invalid("user_id", "required")
	case in.LeaveTypeID == "":
		return nil, ledger.Invalid("leave_type_id", "required")
	case in.Days.IsNegative():
		return nil, ledger.Invalid("days", "must not be negative")
	}
	if err := validYear(in.Year); err != nil {
		return nil, err
	}
	if _, err := resolveUser(ctx, a.Store, in.TenantID, in.UserID); err != nil {
		return nil, err
	}
	if _, err := resolveLeaveType(ctx, a.Store, in.TenantID, in.LeaveTypeID); err != nil {
		return nil, err
	}

	key := ledger.BalanceKey{TenantID: in.TenantID, UserID: in.UserID, LeaveTypeID: in.LeaveTypeID, Year: in.Year}
	var balance *ledger.LeaveBalance
	err := a.Store.WithTx(ctx, func(s ledger.Store) error {
		b, created, err := ledger.FindOrCreateBalance(ctx, s, key)
		if err != nil {
			return err
		}
		b.Reallocate(in.Days)
		if b.Remaining.IsNegative() {
			return ledger.Invalid("days", "%s is below used %s plus pending %s minus carried %s",
				in.Days, b.Used, b.Pending, b.CarriedOver)
		}
		if err := s.UpdateBalance(ctx, b); err != nil {
			return err
		}
		balance = b
		if created {
			a.Logger.Info("ledger row created by individual allocation",
				"tenantId", key.TenantID, "userId", key.UserID, "leaveTypeId", key.LeaveTypeID, "year", key.Year)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// =============================================================================
// ANNUAL ALLOCATION
// =============================================================================

type AllocationStats struct {
	TenantID       string `json:"tenant_id"`
	Created        int    `json:"created"`
	Updated        int    `json:"updated"`
	CarriedForward int    `json:"carried_forward"`
	TotalUsers     int    `json:"total_users"`
	Skipped        int    `json:"skipped"`
	Existing       int    `json:"existing,omitempty"`
	Failed         int    `json:"failed"`
	DryRun         bool   `json:"dry_run"`
}

type allocationMode struct {
	dryRun      bool
	missingOnly bool
}

func (a *Allocator) RunAnnualAllocation(ctx context.Context, tenantID string, year int, dryRun bool) (AllocationStats, error) {
	return a.run(ctx, tenantID, year, allocationMode{dryRun: dryRun})
}

// AllocateMissing creates the tenant's absent rows for year and leaves
// existing rows alone.
func (a *Allocator) AllocateMissing(ctx context.Context, tenantID string, year int) (AllocationStats, error) {
	return a.run(ctx, tenantID, year, allocationMode{missingOnly: true})
}

func (a *Allocator) run(ctx context.Context, tenantID string, year int, mode allocationMode) (AllocationStats, error) {
	stats := AllocationStats{TenantID: tenantID, DryRun: mode.dryRun}
	if tenantID == "" {
		return stats, ledger.Invalid("tenant_id", "required")
	}
	if err := validYear(year); err != nil {
		return stats, err
	}

	users, err := a.Store.ListUsers(ctx, tenantID)
	if err != nil {
		return stats, err
	}
	types, err := a.Store.ListLeaveTypes(ctx, tenantID)
	if err != nil {
		return stats, err
	}
	stats.TotalUsers = len(users)

	for _, user := range users {
		for _, lt := range types {
			if lt.IsCompOff {
				continue
			}
			if lt.AnnualAllowance.IsZero() && !lt.CarryForward {
				stats.Skipped++
				continue
			}
			key := ledger.BalanceKey{TenantID: tenantID, UserID: user.ID, LeaveTypeID: lt.ID, Year: year}
			if err := a.allocatePair(ctx, key, lt, mode, &stats); err != nil {
				stats.Failed++
				a.Logger.Warn("annual allocation failed for row",
					"tenantId", tenantID, "userId", user.ID, "leaveTypeId", lt.ID, "year", year, "err", err)
			}
		}
	}

	a.Logger.Info("annual allocation finished",
		"tenantId", tenantID, "year", year, "dryRun", mode.dryRun, "missingOnly", mode.missingOnly,
		"created", stats.Created, "updated", stats.Updated, "existing", stats.Existing,
		"carriedForward", stats.CarriedForward, "failed", stats.Failed)
	return stats, nil
}

// allocatePair counts into stats only once the row is settled.
func (a *Allocator) allocatePair(ctx context.Context, key ledger.BalanceKey, lt ledger.LeaveType, mode allocationMode, stats *AllocationStats) error {
	carried, err := a.carryForward(ctx, key, lt)
	if err != nil {
		return err
	}

	if mode.dryRun {
		_, err := a.Store.GetBalance(ctx, key)
		switch {
		case err == nil:
			stats.Updated++
		case errors.Is(err, ledger.ErrNotFound):
			stats.Created++
		default:
			return err
		}
		if carried.IsPositive() {
			stats.CarriedForward++
		}
		return nil
	}

	var created, existing bool
	err = a.Store.WithTx(ctx, func(s ledger.Store) error {
		created, existing = false, false
		if mode.missingOnly {
			_, err := s.GetBalance(ctx, key)
			if err == nil {
				existing = true
				return nil
			}
			if !errors.Is(err, ledger.ErrNotFound) {
				return err
			}
		}
		_, c, err := ledger.UpsertAllocation(ctx, s, key, lt.AnnualAllowance, carried)
		created = c
		return err
	})
	if err != nil {
		return err
	}

	switch {
	case existing:
		stats.Existing++
		return nil
	case created:
		stats.Created++
	default:
		stats.Updated++
	}
	if carried.IsPositive() {
		stats.CarriedForward++
	}
	return nil
}

// carryForward returns the capped prior-year remainder for key.
func (a *Allocator) carryForward(ctx context.Context, key ledger.BalanceKey, lt ledger.LeaveType) (decimal.Decimal, error) {
	if !lt.CarryForward {
		return decimal.Zero, nil
	}
	prior := key
	prior.Year--
	b, err := a.Store.GetBalance(ctx, prior)
	if errors.Is(err, ledger.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return lt.CarryCap(b.Remaining), nil
}
