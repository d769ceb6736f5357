package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// BALANCE STORE CONTRACT
// =============================================================================

// FindOrCreateBalance returns the row for key, inserting an empty one if
// none exists. created reports whether the row is new.
func FindOrCreateBalance(ctx context.Context, s BalanceStore, key BalanceKey) (b *LeaveBalance, created bool, err error) {
	b, err = s.GetBalance(ctx, key)
	if err == nil {
		return b, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	b = NewBalance(key, decimal.Zero, decimal.Zero)
	if err := createBalance(ctx, s, b); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost an insert race; the winner's row is the one to use.
			b, err = s.GetBalance(ctx, key)
			return b, false, err
		}
		return nil, false, err
	}
	return b, true, nil
}

// UpsertAllocation seeds the row for key with an allowance and carry-over.
// An existing row keeps its used and pending history.
func UpsertAllocation(ctx context.Context, s BalanceStore, key BalanceKey, allowance, carried decimal.Decimal) (b *LeaveBalance, created bool, err error) {
	b, err = s.GetBalance(ctx, key)
	switch {
	case err == nil:
		b.Reseed(allowance, carried)
		if err := s.UpdateBalance(ctx, b); err != nil {
			return nil, false, err
		}
		return b, false, nil
	case errors.Is(err, ErrNotFound):
		b = NewBalance(key, allowance, carried)
		if err := createBalance(ctx, s, b); err != nil {
			return nil, false, err
		}
		return b, true, nil
	default:
		return nil, false, err
	}
}

func createBalance(ctx context.Context, s BalanceStore, b *LeaveBalance) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	return s.CreateBalance(ctx, b)
}
