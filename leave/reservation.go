/*
reservation.go - Leave request lifecycle and the matching ledger mutation

STATES:
  pending ──▶ approved    pending -= days (floor 0); used += days
          ──▶ rejected    pending -= days (floor 0); remaining += days
          ──▶ cancelled   pending -= days (floor 0); remaining += days

  All three targets are terminal. A request leaves pending exactly once;
  any second transition, including a repeated cancel, fails with
  ledger.ErrAlreadyProcessed and writes nothing.

ATOMICITY:
  The status change and the ledger mutation commit together in one
  TxStore.WithTx. The ledger row write is a version compare-and-swap and
  the status write only matches a still-pending row, so two concurrent
  transitions cannot both apply.

SIDE EFFECTS:
  After commit, an email and an in-app notification are enqueued on the
  Notifier. Lookups for display data are best-effort: failures are logged
  and never undo or block the committed mutation.
*/
package leave

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/notify"
)

// Notifier accepts outbound tasks without blocking.
type Notifier interface {
	Enqueue(t notify.Task) bool
}

type Reservations struct {
	Store    ledger.TxStore
	Notifier Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

func NewReservations(store ledger.TxStore, notifier Notifier, logger *slog.Logger) *Reservations {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reservations{Store: store, Notifier: notifier, Logger: logger, Now: time.Now}
}

// =============================================================================
// APPLY - Create a pending request and reserve days
// =============================================================================

type ApplyInput struct {
	TenantID    string
	UserID      string
	LeaveTypeID string
	StartDate   time.Time
	EndDate     time.Time
	Duration    ledger.Duration

	// TotalDays defaults to the inclusive calendar days of the range,
	// halved for a half day.
	TotalDays decimal.Decimal
	Reason    string
}

func (in *ApplyInput) normalize() error {
	if in.TenantID == "" {
		return ledger.Invalid("tenant_id", "required")
	}
	if in.UserID == "" {
		return ledger.Invalid("user_id", "required")
	}
	if in.LeaveTypeID == "" {
		return ledger.Invalid("leave_type_id", "required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return ledger.Invalid("dates", "start_date and end_date are required")
	}
	in.StartDate, in.EndDate = ledger.Day(in.StartDate), ledger.Day(in.EndDate)
	if in.EndDate.Before(in.StartDate) {
		return ledger.Invalid("end_date", "before start_date")
	}
	if in.StartDate.Year() != in.EndDate.Year() {
		return ledger.Invalid("end_date", "a request cannot span two leave years")
	}
	switch in.Duration {
	case "":
		in.Duration = ledger.FullDay
	case ledger.FullDay:
	case ledger.HalfDay:
		if !in.StartDate.Equal(in.EndDate) {
			return ledger.Invalid("duration", "half_day requires a single date")
		}
	default:
		return ledger.Invalid("duration", "unknown value %q", in.Duration)
	}
	if in.TotalDays.IsZero() {
		days := decimal.NewFromInt(int64(ledger.DaysInclusive(in.StartDate, in.EndDate)))
		in.TotalDays = days.Mul(in.Duration.Factor())
	}
	if !in.TotalDays.IsPositive() {
		return ledger.Invalid("total_days", "must be positive")
	}
	return nil
}

// Apply creates the request with status pending and reserves its days on
// the ledger row of the start date's year.
func (r *Reservations) Apply(ctx context.Context, in ApplyInput) (*ledger.Leave, *ledger.LeaveBalance, error) {
	if err := in.normalize(); err != nil {
		return nil, nil, err
	}
	if _, err := resolveUser(ctx, r.Store, in.TenantID, in.UserID); err != nil {
		return nil, nil, err
	}
	lt, err := resolveLeaveType(ctx, r.Store, in.TenantID, in.LeaveTypeID)
	if err != nil {
		return nil, nil, err
	}
	if !lt.IsActive {
		return nil, nil, ledger.Invalid("leave_type_id", "leave type %s is inactive", lt.ID)
	}

	now := r.Now().UTC()
	leave := &ledger.Leave{
		ID:          uuid.NewString(),
		TenantID:    in.TenantID,
		UserID:      in.UserID,
		LeaveTypeID: in.LeaveTypeID,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		TotalDays:   in.TotalDays,
		Duration:    in.Duration,
		Status:      ledger.StatusPending,
		Reason:      in.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var balance *ledger.LeaveBalance
	err = r.Store.WithTx(ctx, func(s ledger.Store) error {
		b, _, err := ledger.FindOrCreateBalance(ctx, s, leave.BalanceKey())
		if err != nil {
			return err
		}
		if err := b.Reserve(leave.TotalDays); err != nil {
			return err
		}
		if err := s.UpdateBalance(ctx, b); err != nil {
			return err
		}
		if err := s.CreateLeave(ctx, leave); err != nil {
			return err
		}
		balance = b
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	r.Logger.Info("leave applied",
		"tenantId", leave.TenantID, "userId", leave.UserID, "leaveId", leave.ID,
		"days", leave.TotalDays.String())
	return leave, balance, nil
}

// =============================================================================
// TRANSITION - pending → approved | rejected | cancelled
// =============================================================================

type TransitionInput struct {
	LeaveID string

	// TenantID, when set, must own the leave.
	TenantID string

	Status          ledger.LeaveStatus
	ApproverID      string
	RejectionReason string
}

// Transition moves a pending request to a terminal status and applies the
// matching ledger mutation. Returns the updated leave and ledger row.
func (r *Reservations) Transition(ctx context.Context, in TransitionInput) (*ledger.Leave, *ledger.LeaveBalance, error) {
	if in.LeaveID == "" {
		return nil, nil, ledger.Invalid("leave_id", "required")
	}
	switch in.Status {
	case ledger.StatusApproved, ledger.StatusRejected, ledger.StatusCancelled:
	default:
		return nil, nil, ledger.Invalid("status", "must be approved, rejected or cancelled, got %q", in.Status)
	}

	var (
		leave   *ledger.Leave
		balance *ledger.LeaveBalance
	)
	err := r.Store.WithTx(ctx, func(s ledger.Store) error {
		l, err := s.GetLeave(ctx, in.LeaveID)
		if err != nil {
			return err
		}
		if in.TenantID != "" && l.TenantID != in.TenantID {
			return &ledger.TenantMismatchError{Kind: "leave", ID: l.ID, TenantID: in.TenantID, OwnerID: l.TenantID}
		}
		if l.Status != ledger.StatusPending {
			return &ledger.AlreadyProcessedError{LeaveID: l.ID, Status: l.Status}
		}

		b, err := s.GetBalance(ctx, l.BalanceKey())
		if err != nil {
			return err
		}
		if in.Status == ledger.StatusApproved {
			b.Commit(l.TotalDays)
		} else {
			b.Release(l.TotalDays)
		}
		if err := s.UpdateBalance(ctx, b); err != nil {
			return err
		}

		l.Status = in.Status
		l.UpdatedAt = r.Now().UTC()
		if in.Status != ledger.StatusCancelled {
			l.ApprovedBy = in.ApproverID
		}
		if in.Status == ledger.StatusRejected {
			l.RejectionReason = in.RejectionReason
		}
		if err := s.UpdateLeaveStatus(ctx, l, ledger.StatusPending); err != nil {
			if errors.Is(err, ledger.ErrConcurrentModification) {
				return r.lostRace(ctx, s, l.ID)
			}
			return err
		}

		leave, balance = l, b
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	r.Logger.Info("leave status updated",
		"tenantId", leave.TenantID, "leaveId", leave.ID, "status", string(leave.Status),
		"approverId", in.ApproverID)
	r.notifyStatusChange(ctx, leave)
	return leave, balance, nil
}

func (r *Reservations) lostRace(ctx context.Context, s ledger.Store, leaveID string) error {
	current, err := s.GetLeave(ctx, leaveID)
	if err != nil {
		return ledger.ErrConcurrentModification
	}
	return &ledger.AlreadyProcessedError{LeaveID: leaveID, Status: current.Status}
}

func (r *Reservations) Approve(ctx context.Context, leaveID, approverID string) (*ledger.Leave, *ledger.LeaveBalance, error) {
	return r.Transition(ctx, TransitionInput{LeaveID: leaveID, Status: ledger.StatusApproved, ApproverID: approverID})
}

func (r *Reservations) Reject(ctx context.Context, leaveID, approverID, reason string) (*ledger.Leave, *ledger.LeaveBalance, error) {
	return r.Transition(ctx, TransitionInput{
		LeaveID:         leaveID,
		Status:          ledger.StatusRejected,
		ApproverID:      approverID,
		RejectionReason: reason,
	})
}

func (r *Reservations) Cancel(ctx context.Context, leaveID string) (*ledger.Leave, *ledger.LeaveBalance, error) {
	return r.Transition(ctx, TransitionInput{LeaveID: leaveID, Status: ledger.StatusCancelled})
}

// =============================================================================
// SIDE EFFECTS - Best-effort, after commit
// =============================================================================

var statusTemplates = map[ledger.LeaveStatus]string{
	ledger.StatusApproved:  notify.TemplateLeaveApproved,
	ledger.StatusRejected:  notify.TemplateLeaveRejected,
	ledger.StatusCancelled: notify.TemplateLeaveCancelled,
}

func (r *Reservations) notifyStatusChange(ctx context.Context, leave *ledger.Leave) {
	if r.Notifier == nil {
		return
	}
	log := r.Logger.With("tenantId", leave.TenantID, "leaveId", leave.ID)

	typeName := "leave"
	if lt, err := r.Store.GetLeaveType(ctx, leave.LeaveTypeID); err != nil {
		log.Warn("leave type lookup for notification failed", "err", err)
	} else if lt.Name != "" {
		typeName = lt.Name
	}

	task := notify.Task{TenantID: leave.TenantID, UserID: leave.UserID}
	title := capitalize(typeName) + " request " + string(leave.Status)
	task.Notification = &ledger.Notification{
		TenantID: leave.TenantID,
		UserID:   leave.UserID,
		Type:     "leave_" + string(leave.Status),
		Title:    title,
		Message: typeName + " from " + leave.StartDate.Format(ledger.DateLayout) +
			" to " + leave.EndDate.Format(ledger.DateLayout) + " was " + string(leave.Status),
	}

	if user, err := r.Store.GetUser(ctx, leave.UserID); err != nil {
		log.Warn("user lookup for notification failed", "userId", leave.UserID, "err", err)
	} else if user.Email != "" {
		task.Email = &notify.Email{
			To:           user.Email,
			TemplateType: statusTemplates[leave.Status],
			Data: map[string]any{
				"Name":      user.Name,
				"LeaveType": typeName,
				"StartDate": leave.StartDate.Format(ledger.DateLayout),
				"EndDate":   leave.EndDate.Format(ledger.DateLayout),
				"Days":      leave.TotalDays.String(),
				"Reason":    leave.RejectionReason,
			},
		}
	}

	if !r.Notifier.Enqueue(task) {
		log.Warn("leave notification not enqueued")
	}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
