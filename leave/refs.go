package leave

import (
	"context"

	"github.com/warp/leave-engine/ledger"
)

// resolveUser loads a user and checks it belongs to tenantID.
func resolveUser(ctx context.Context, users ledger.UserStore, tenantID, userID string) (*ledger.User, error) {
	u, err := users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.TenantID != tenantID {
		return nil, &ledger.TenantMismatchError{Kind: "user", ID: userID, TenantID: tenantID, OwnerID: u.TenantID}
	}
	return u, nil
}

// resolveLeaveType loads a leave type and checks it belongs to tenantID.
func resolveLeaveType(ctx context.Context, types ledger.LeaveTypeStore, tenantID, leaveTypeID string) (*ledger.LeaveType, error) {
	lt, err := types.GetLeaveType(ctx, leaveTypeID)
	if err != nil {
		return nil, err
	}
	if lt.TenantID != tenantID {
		return nil, &ledger.TenantMismatchError{Kind: "leave_type", ID: leaveTypeID, TenantID: tenantID, OwnerID: lt.TenantID}
	}
	return lt, nil
}

func validYear(year int) error {
	if year < 1970 || year > 9999 {
		return ledger.Invalid("year", "%d is out of range", year)
	}
	return nil
}
