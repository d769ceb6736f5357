/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *Request: Request body types from clients, validated with validator tags
  - *DTO: Response types returned to clients
  - *Response: Response wrappers

AMOUNTS:
  Day and hour amounts are decimals. Requests accept JSON numbers or
  strings; responses carry JSON numbers (12.5).

DATES:
  YYYY-MM-DD, UTC.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/leave"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

type AllocateIndividualRequest struct {
	TenantID    string           `json:"tenant_id" validate:"required"`
	UserID      string           `json:"user_id" validate:"required"`
	LeaveTypeID string           `json:"leave_type_id" validate:"required"`
	Days        *decimal.Decimal `json:"days" validate:"required"`
	Year        int              `json:"year" validate:"required,gte=1970,lte=9999"`
}

type ApplyRequest struct {
	TenantID    string           `json:"tenant_id" validate:"required"`
	UserID      string           `json:"user_id" validate:"required"`
	LeaveTypeID string           `json:"leave_type_id" validate:"required"`
	StartDate   string           `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string           `json:"end_date" validate:"required,datetime=2006-01-02"`
	Duration    string           `json:"duration" validate:"omitempty,oneof=full_day half_day"`
	TotalDays   *decimal.Decimal `json:"total_days,omitempty"`
	Reason      string           `json:"reason"`
}

type UpdateLeaveStatusRequest struct {
	LeaveID         string `json:"leave_id" validate:"required"`
	TenantID        string `json:"tenant_id"`
	Status          string `json:"status" validate:"required,oneof=approved rejected cancelled"`
	ApproverID      string `json:"approver_id"`
	RejectionReason string `json:"rejection_reason"`
}

type RunAnnualAllocationRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	Year     int    `json:"year" validate:"required,gte=1970,lte=9999"`
	DryRun   bool   `json:"dry_run"`
}

type ProcessOvertimeRequest struct {
	TenantID  string `json:"tenant_id" validate:"required"`
	UserEmail string `json:"user_email" validate:"required,email"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
}

type CreateUserRequest struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id" validate:"required"`
	Name     string `json:"name" validate:"required,singleline"`
	Email    string `json:"email" validate:"required,email"`
}

// CreateLeaveTypeRequest accepts the legacy days_allowed field as an alias
// for annual_allowance. annual_allowance wins when both are set.
type CreateLeaveTypeRequest struct {
	ID              string           `json:"id"`
	TenantID        string           `json:"tenant_id" validate:"required"`
	Name            string           `json:"name" validate:"required,singleline"`
	AnnualAllowance *decimal.Decimal `json:"annual_allowance,omitempty"`
	DaysAllowed     *decimal.Decimal `json:"days_allowed,omitempty"`
	CarryForward    bool             `json:"carry_forward"`
	MaxCarryForward *decimal.Decimal `json:"max_carry_forward,omitempty"`
	IsCompOff       bool             `json:"is_comp_off"`
	IsActive        *bool            `json:"is_active,omitempty"`
}

func (r CreateLeaveTypeRequest) allowance() decimal.Decimal {
	switch {
	case r.AnnualAllowance != nil:
		return *r.AnnualAllowance
	case r.DaysAllowed != nil:
		return *r.DaysAllowed
	}
	return decimal.Zero
}

type CreateTimesheetRequest struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id" validate:"required"`
	UserEmail string          `json:"user_email" validate:"required,email"`
	Date      string          `json:"date" validate:"required,datetime=2006-01-02"`
	Hours     decimal.Decimal `json:"hours"`
	Minutes   int             `json:"minutes" validate:"gte=0,lt=60"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type BalanceDTO struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	UserID      string          `json:"user_id"`
	LeaveTypeID string          `json:"leave_type_id"`
	Year        int             `json:"year"`
	Allocated   decimal.Decimal `json:"allocated"`
	CarriedOver decimal.Decimal `json:"carried_over"`
	Used        decimal.Decimal `json:"used"`
	Pending     decimal.Decimal `json:"pending"`
	Remaining   decimal.Decimal `json:"remaining"`
	Version     int64           `json:"version"`
	UpdatedAt   string          `json:"updated_at,omitempty"`
}

type LeaveDTO struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	UserID          string          `json:"user_id"`
	LeaveTypeID     string          `json:"leave_type_id"`
	StartDate       string          `json:"start_date"`
	EndDate         string          `json:"end_date"`
	TotalDays       decimal.Decimal `json:"total_days"`
	Duration        string          `json:"duration"`
	Status          string          `json:"status"`
	ApprovedBy      string          `json:"approved_by,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	Reason          string          `json:"reason,omitempty"`
}

type UserDTO struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

type LeaveTypeDTO struct {
	ID              string           `json:"id"`
	TenantID        string           `json:"tenant_id"`
	Name            string           `json:"name"`
	AnnualAllowance decimal.Decimal  `json:"annual_allowance"`
	CarryForward    bool             `json:"carry_forward"`
	MaxCarryForward *decimal.Decimal `json:"max_carry_forward,omitempty"`
	IsCompOff       bool             `json:"is_comp_off"`
	IsActive        bool             `json:"is_active"`
}

type TimesheetDTO struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	UserEmail string          `json:"user_email"`
	Date      string          `json:"date"`
	Hours     decimal.Decimal `json:"hours"`
	Minutes   int             `json:"minutes"`
}

type BalanceResponse struct {
	Success bool       `json:"success"`
	Balance BalanceDTO `json:"balance"`
}

type LeaveResponse struct {
	Success bool       `json:"success"`
	Leave   LeaveDTO   `json:"leave"`
	Balance BalanceDTO `json:"balance"`
}

type AnnualAllocationResponse struct {
	Success bool                    `json:"success"`
	Year    int                     `json:"year"`
	Results []leave.AllocationStats `json:"results"`
}

type OvertimeResponse struct {
	Credited bool            `json:"credited"`
	Days     decimal.Decimal `json:"days"`
	WeekKey  string          `json:"week_key"`
}

type BalancesResponse struct {
	Balances []BalanceDTO `json:"balances"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toBalanceDTO(b *ledger.LeaveBalance) BalanceDTO {
	dto := BalanceDTO{
		ID:          b.ID,
		TenantID:    b.TenantID,
		UserID:      b.UserID,
		LeaveTypeID: b.LeaveTypeID,
		Year:        b.Year,
		Allocated:   b.Allocated,
		CarriedOver: b.CarriedOver,
		Used:        b.Used,
		Pending:     b.Pending,
		Remaining:   b.Remaining,
		Version:     b.Version,
	}
	if !b.UpdatedAt.IsZero() {
		dto.UpdatedAt = b.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

func toLeaveDTO(l *ledger.Leave) LeaveDTO {
	return LeaveDTO{
		ID:              l.ID,
		TenantID:        l.TenantID,
		UserID:          l.UserID,
		LeaveTypeID:     l.LeaveTypeID,
		StartDate:       l.StartDate.Format(ledger.DateLayout),
		EndDate:         l.EndDate.Format(ledger.DateLayout),
		TotalDays:       l.TotalDays,
		Duration:        string(l.Duration),
		Status:          string(l.Status),
		ApprovedBy:      l.ApprovedBy,
		RejectionReason: l.RejectionReason,
		Reason:          l.Reason,
	}
}

func toLeaveTypeDTO(lt ledger.LeaveType) LeaveTypeDTO {
	return LeaveTypeDTO{
		ID:              lt.ID,
		TenantID:        lt.TenantID,
		Name:            lt.Name,
		AnnualAllowance: lt.AnnualAllowance,
		CarryForward:    lt.CarryForward,
		MaxCarryForward: lt.MaxCarryForward,
		IsCompOff:       lt.IsCompOff,
		IsActive:        lt.IsActive,
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
	TenantID   string `json:"tenant_id"`
}
