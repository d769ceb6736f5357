/*
overtime.go - Overtime detection and comp-off crediting

DETECTION (one Monday-start week of timesheets):
  worked(day)  = Σ hours + minutes/60
  daily        = Σ (worked(day) - 8) / 8     for every day over 8h
  weekly       = (Σ worked - 40) / 8          if the week is over 40h
  overtime     = daily + weekly               (buckets are independent)
  comp-off     = overtime rounded to the nearest 0.5

  A long day feeds both buckets, so the same hours can be counted twice.

CREDIT:
  At most one credit per (tenant, user, ISO week). The week key is checked
  before crediting and enforced again by the store's unique constraint, so
  a concurrent duplicate is reported as not credited instead of an error.
  A tenant without an active comp-off leave type is a silent no-op.
*/
package leave

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/notify"
)

var (
	dailyThreshold  = decimal.NewFromInt(8)
	weeklyThreshold = decimal.NewFromInt(40)
	hoursPerDay     = decimal.NewFromInt(8)
)

type OvertimeEngine struct {
	Store    ledger.TxStore
	Notifier Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

func NewOvertimeEngine(store ledger.TxStore, notifier Notifier, logger *slog.Logger) *OvertimeEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &OvertimeEngine{Store: store, Notifier: notifier, Logger: logger, Now: time.Now}
}

type OvertimeResult struct {
	Credited bool
	Days     decimal.Decimal
	WeekKey  string
	Credit   *ledger.CompOffCredit
}

// OvertimeDays sums the daily and weekly overtime buckets of one week's
// timesheet rows, in days. Not rounded.
func OvertimeDays(rows []ledger.Timesheet) decimal.Decimal {
	perDay := make(map[string]decimal.Decimal)
	total := decimal.Zero
	for _, r := range rows {
		h := r.WorkedHours()
		day := ledger.Day(r.Date).Format(ledger.DateLayout)
		perDay[day] = perDay[day].Add(h)
		total = total.Add(h)
	}

	overtime := decimal.Zero
	for _, h := range perDay {
		if h.GreaterThan(dailyThreshold) {
			overtime = overtime.Add(h.Sub(dailyThreshold).Div(hoursPerDay))
		}
	}
	if total.GreaterThan(weeklyThreshold) {
		overtime = overtime.Add(total.Sub(weeklyThreshold).Div(hoursPerDay))
	}
	return overtime
}

// RoundToHalf rounds d to the nearest 0.5.
func RoundToHalf(d decimal.Decimal) decimal.Decimal {
	two := decimal.NewFromInt(2)
	return d.Mul(two).Round(0).Div(two)
}

// ProcessOvertimeForCompOff credits comp-off for the week containing date.
func (e *OvertimeEngine) ProcessOvertimeForCompOff(ctx context.Context, tenantID, userEmail string, date time.Time) (OvertimeResult, error) {
	if tenantID == "" {
		return OvertimeResult{}, ledger.Invalid("tenant_id", "required")
	}
	if userEmail == "" {
		return OvertimeResult{}, ledger.Invalid("user_email", "required")
	}
	if date.IsZero() {
		return OvertimeResult{}, ledger.Invalid("date", "required")
	}

	weekStart := ledger.StartOfWeek(date)
	weekEnd := ledger.EndOfWeek(weekStart)
	res := OvertimeResult{Days: decimal.Zero, WeekKey: ledger.WeekKey(weekStart)}
	log := e.Logger.With("tenantId", tenantID, "userEmail", userEmail, "week", res.WeekKey)

	user, err := e.Store.GetUserByEmail(ctx, tenantID, userEmail)
	if err != nil {
		return res, err
	}

	rows, err := e.Store.ListTimesheets(ctx, tenantID, userEmail, weekStart, weekEnd)
	if err != nil {
		return res, err
	}
	overtime := OvertimeDays(rows)
	if !overtime.IsPositive() {
		return res, nil
	}
	days := RoundToHalf(overtime)
	if !days.IsPositive() {
		log.Debug("overtime below rounding threshold", "overtime", overtime.String())
		return res, nil
	}

	if _, err := e.Store.GetCompOffCreditForWeek(ctx, tenantID, user.ID, res.WeekKey); err == nil {
		log.Info("comp-off already credited for week")
		return res, nil
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return res, err
	}

	lt, err := e.Store.FindCompOffType(ctx, tenantID)
	if errors.Is(err, ledger.ErrNotFound) {
		log.Info("no active comp-off leave type, overtime not credited")
		return res, nil
	}
	if err != nil {
		return res, err
	}

	credit := &ledger.CompOffCredit{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		UserID:        user.ID,
		LeaveTypeID:   lt.ID,
		CreditedDays:  days,
		UsedDays:      decimal.Zero,
		RemainingDays: days,
		WeekKey:       res.WeekKey,
		Reason:        "Auto-credited for overtime work (Week of " + weekStart.Format(ledger.DateLayout) + ")",
		ExpiresAt:     ledger.EndOfWeek(weekEnd),
		CreatedAt:     e.Now().UTC(),
	}
	err = e.Store.WithTx(ctx, func(s ledger.Store) error {
		return s.CreateCompOffCredit(ctx, credit)
	})
	if errors.Is(err, ledger.ErrDuplicate) {
		log.Info("comp-off credited concurrently for week")
		return res, nil
	}
	if err != nil {
		return res, err
	}

	res.Credited, res.Days, res.Credit = true, days, credit
	log.Info("comp-off credited", "days", days.String())
	e.notifyCredit(user, credit, weekStart)
	return res, nil
}

func (e *OvertimeEngine) notifyCredit(user *ledger.User, credit *ledger.CompOffCredit, weekStart time.Time) {
	if e.Notifier == nil {
		return
	}
	task := notify.Task{
		TenantID: credit.TenantID,
		UserID:   credit.UserID,
		Notification: &ledger.Notification{
			TenantID: credit.TenantID,
			UserID:   credit.UserID,
			Type:     "comp_off_credited",
			Title:    "Comp-off credited",
			Message:  credit.CreditedDays.String() + " days credited. " + credit.Reason,
		},
	}
	if user.Email != "" {
		task.Email = &notify.Email{
			To:           user.Email,
			TemplateType: notify.TemplateCompOffCredit,
			Data: map[string]any{
				"Name":      user.Name,
				"Days":      credit.CreditedDays.String(),
				"WeekStart": weekStart.Format(ledger.DateLayout),
			},
		}
	}
	if !e.Notifier.Enqueue(task) {
		e.Logger.Warn("comp-off notification not enqueued", "tenantId", credit.TenantID, "userId", credit.UserID)
	}
}
