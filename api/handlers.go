/*
handlers.go - HTTP API handlers for the leave ledger engine

ENDPOINTS (all under /leave-management):
  Ledger:
    POST /allocate-individual       Set allocated days on one ledger row
    POST /run-annual-allocation     Seed every row of a tenant for a year
    GET  /balances/{userId}         A user's ledger rows (?tenant_id&year)

  Requests:
    POST /apply                     Create a pending request, reserve days
    POST /update-leave-status       approved | rejected | cancelled

  Overtime and capacity:
    POST /process-overtime          Credit comp-off for one week
    GET  /capacity/{userEmail}      Weekly capacity (?week_start&tenant_id)

  Reference data:
    POST /users, POST /leave-types, GET /leave-types, POST /timesheets

REQUEST FLOW:
  1. Decode JSON body
  2. Validate with validator tags
  3. Call the leave component
  4. Serialize response

ERROR HANDLING:
  Errors are returned as {"error": message, "details": ...}:
  - 400: Validation errors, insufficient balance
  - 403: Tenant mismatch
  - 404: Unknown user, leave type, leave or ledger row
  - 409: Already processed, concurrent modification, duplicate
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        ledger.TxStore
	Reservations *leave.Reservations
	Allocator    *leave.Allocator
	Overtime     *leave.OvertimeEngine
	Capacity     *leave.CapacityCalculator
	Logger       *slog.Logger

	validate *validator.Validate
}

// NewHandler wires every component against one store. notifier may be nil.
func NewHandler(store ledger.TxStore, notifier leave.Notifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("singleline", singleLine)
	return &Handler{
		Store:        store,
		Reservations: leave.NewReservations(store, notifier, logger),
		Allocator:    leave.NewAllocator(store, logger),
		Overtime:     leave.NewOvertimeEngine(store, notifier, logger),
		Capacity:     leave.NewCapacityCalculator(store, store),
		Logger:       logger,
		validate:     v,
	}
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// AllocateIndividual sets allocated days on one ledger row.
// POST /leave-management/allocate-individual
func (h *Handler) AllocateIndividual(w http.ResponseWriter, r *http.Request) {
	var req AllocateIndividualRequest
	if !h.decode(w, r, &req) {
		return
	}

	b, err := h.Allocator.AllocateIndividualLeave(r.Context(), leave.IndividualAllocation{
		TenantID:    req.TenantID,
		UserID:      req.UserID,
		LeaveTypeID: req.LeaveTypeID,
		Days:        *req.Days,
		Year:        req.Year,
	})
	if err != nil {
		h.fail(w, r, "Failed to allocate leave", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Success: true, Balance: toBalanceDTO(b)})
}

// RunAnnualAllocation seeds every ledger row of a tenant for a year.
// POST /leave-management/run-annual-allocation
func (h *Handler) RunAnnualAllocation(w http.ResponseWriter, r *http.Request) {
	var req RunAnnualAllocationRequest
	if !h.decode(w, r, &req) {
		return
	}

	stats, err := h.Allocator.RunAnnualAllocation(r.Context(), req.TenantID, req.Year, req.DryRun)
	if err != nil {
		h.fail(w, r, "Failed to run annual allocation", err)
		return
	}
	writeJSON(w, http.StatusOK, AnnualAllocationResponse{
		Success: true,
		Year:    req.Year,
		Results: []leave.AllocationStats{stats},
	})
}

// GetBalances lists a user's ledger rows.
// GET /leave-management/balances/{userId}?tenant_id=...&year=...
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required", nil)
		return
	}
	year := 0
	if s := r.URL.Query().Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = y
	}

	user, err := h.Store.GetUser(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "Failed to get user", err)
		return
	}
	if user.TenantID != tenantID {
		h.fail(w, r, "Failed to get user", &ledger.TenantMismatchError{Kind: "user", ID: user.ID, TenantID: tenantID, OwnerID: user.TenantID})
		return
	}

	rows, err := h.Store.ListBalances(r.Context(), tenantID, userID, year)
	if err != nil {
		h.fail(w, r, "Failed to list balances", err)
		return
	}
	dtos := make([]BalanceDTO, len(rows))
	for i := range rows {
		dtos[i] = toBalanceDTO(&rows[i])
	}
	writeJSON(w, http.StatusOK, BalancesResponse{Balances: dtos})
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// Apply creates a pending leave request and reserves its days.
// POST /leave-management/apply
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := ledger.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}
	end, err := ledger.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}

	in := leave.ApplyInput{
		TenantID:    req.TenantID,
		UserID:      req.UserID,
		LeaveTypeID: req.LeaveTypeID,
		StartDate:   start,
		EndDate:     end,
		Duration:    ledger.Duration(req.Duration),
		Reason:      req.Reason,
	}
	if req.TotalDays != nil {
		in.TotalDays = *req.TotalDays
	}

	l, b, err := h.Reservations.Apply(r.Context(), in)
	if err != nil {
		h.fail(w, r, "Failed to apply for leave", err)
		return
	}
	writeJSON(w, http.StatusCreated, LeaveResponse{Success: true, Leave: toLeaveDTO(l), Balance: toBalanceDTO(b)})
}

// UpdateLeaveStatus approves, rejects or cancels a pending request.
// POST /leave-management/update-leave-status
func (h *Handler) UpdateLeaveStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateLeaveStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	l, b, err := h.Reservations.Transition(r.Context(), leave.TransitionInput{
		LeaveID:         req.LeaveID,
		TenantID:        req.TenantID,
		Status:          ledger.LeaveStatus(req.Status),
		ApproverID:      req.ApproverID,
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		h.fail(w, r, "Failed to update leave status", err)
		return
	}
	writeJSON(w, http.StatusOK, LeaveResponse{Success: true, Leave: toLeaveDTO(l), Balance: toBalanceDTO(b)})
}

// =============================================================================
// OVERTIME AND CAPACITY
// =============================================================================

// ProcessOvertime credits comp-off for the week containing date.
// POST /leave-management/process-overtime
func (h *Handler) ProcessOvertime(w http.ResponseWriter, r *http.Request) {
	var req ProcessOvertimeRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := ledger.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	res, err := h.Overtime.ProcessOvertimeForCompOff(r.Context(), req.TenantID, req.UserEmail, date)
	if err != nil {
		h.fail(w, r, "Failed to process overtime", err)
		return
	}
	writeJSON(w, http.StatusOK, OvertimeResponse{Credited: res.Credited, Days: res.Days, WeekKey: res.WeekKey})
}

// GetCapacity returns a user's capacity for one week.
// GET /leave-management/capacity/{userEmail}?week_start=YYYY-MM-DD&tenant_id=...
func (h *Handler) GetCapacity(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "userEmail")
	tenantID := r.URL.Query().Get("tenant_id")
	weekStart, err := ledger.ParseDate(r.URL.Query().Get("week_start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid week_start format (use YYYY-MM-DD)", err)
		return
	}

	c, err := h.Capacity.Capacity(r.Context(), tenantID, email, weekStart)
	if err != nil {
		h.fail(w, r, "Failed to compute capacity", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// CreateUser creates or replaces a user.
// POST /leave-management/users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	u := ledger.User{ID: req.ID, TenantID: req.TenantID, Name: req.Name, Email: req.Email}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if err := h.Store.SaveUser(r.Context(), u); err != nil {
		h.fail(w, r, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, UserDTO{ID: u.ID, TenantID: u.TenantID, Name: u.Name, Email: u.Email})
}

// CreateLeaveType creates or replaces a leave type.
// POST /leave-management/leave-types
func (h *Handler) CreateLeaveType(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaveTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	lt := ledger.LeaveType{
		ID:              req.ID,
		TenantID:        req.TenantID,
		Name:            req.Name,
		AnnualAllowance: req.allowance(),
		CarryForward:    req.CarryForward,
		MaxCarryForward: req.MaxCarryForward,
		IsCompOff:       req.IsCompOff,
		IsActive:        req.IsActive == nil || *req.IsActive,
	}
	if lt.ID == "" {
		lt.ID = uuid.NewString()
	}
	if lt.AnnualAllowance.IsNegative() {
		writeError(w, http.StatusBadRequest, "Validation failed", ledger.Invalid("annual_allowance", "must not be negative"))
		return
	}
	if err := h.Store.SaveLeaveType(r.Context(), lt); err != nil {
		h.fail(w, r, "Failed to create leave type", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveTypeDTO(lt))
}

// ListLeaveTypes lists a tenant's leave types.
// GET /leave-management/leave-types?tenant_id=...
func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required", nil)
		return
	}
	types, err := h.Store.ListLeaveTypes(r.Context(), tenantID)
	if err != nil {
		h.fail(w, r, "Failed to list leave types", err)
		return
	}
	dtos := make([]LeaveTypeDTO, len(types))
	for i, lt := range types {
		dtos[i] = toLeaveTypeDTO(lt)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTimesheet records worked time for one day.
// POST /leave-management/timesheets
func (h *Handler) CreateTimesheet(w http.ResponseWriter, r *http.Request) {
	var req CreateTimesheetRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := ledger.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	if req.Hours.IsNegative() {
		writeError(w, http.StatusBadRequest, "Validation failed", ledger.Invalid("hours", "must not be negative"))
		return
	}
	ts := ledger.Timesheet{
		ID:        req.ID,
		TenantID:  req.TenantID,
		UserEmail: req.UserEmail,
		Date:      date,
		Hours:     req.Hours,
		Minutes:   req.Minutes,
	}
	if ts.ID == "" {
		ts.ID = uuid.NewString()
	}
	if err := h.Store.SaveTimesheet(r.Context(), ts); err != nil {
		h.fail(w, r, "Failed to save timesheet", err)
		return
	}
	writeJSON(w, http.StatusCreated, TimesheetDTO{
		ID:        ts.ID,
		TenantID:  ts.TenantID,
		UserEmail: ts.UserEmail,
		Date:      ts.Date.Format(ledger.DateLayout),
		Hours:     ts.Hours,
		Minutes:   ts.Minutes,
	})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates the body into dst. On failure it writes a 400
// and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := make(map[string]string, len(ve))
			for _, fe := range ve {
				fields[fe.Field()] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Details: fields})
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// singleLine rejects CR and LF. Names end up in mail headers.
func singleLine(fl validator.FieldLevel) bool {
	return !strings.ContainsAny(fl.Field().String(), "\r\n")
}

// fail maps a component error to its status code.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error(message, "path", r.URL.Path, "err", err)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrTenantMismatch):
		return http.StatusForbidden
	case ledger.IsClientError(err):
		return http.StatusBadRequest
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case ledger.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
