/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
	Populates a tenant with realistic data for demos and manual testing.
	Each scenario creates users, leave types, ledger rows and requests that
	demonstrate one feature of the engine.

AVAILABLE SCENARIOS:
	new-employee:      One user, annual + sick + comp-off, allocated for this year
	year-end-rollover: Prior-year leftovers carried into this year, capped
	overtime-week:     Last week's long days credited as comp-off
	pending-requests:  A pending and an approved request against one row

HOW SCENARIOS WORK:
 1. Pick the tenant (given, or a fresh demo-<id>)
 2. Create users and leave types
 3. Drive the engine through its own operations (allocation, apply,
    approve, overtime) so every row obeys the ledger invariant

USAGE VIA API:
	POST /leave-management/scenarios/load
	{"scenario_id": "year-end-rollover", "tenant_id": "acme"}

NOTE:
	Scenarios never delete data. Loading into a tenant that already has the
	scenario's ids overwrites users and leave types and fails on duplicate
	requests; use a fresh tenant.
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "new-employee",
		Name:        "New Employee",
		Description: "Annual, sick and comp-off leave types allocated for the current year",
	},
	{
		ID:          "year-end-rollover",
		Name:        "Year-End Rollover",
		Description: "Prior-year leftovers carried forward up to the leave type's cap",
	},
	{
		ID:          "overtime-week",
		Name:        "Overtime Week",
		Description: "Five 10-hour days last week credited as comp-off",
	},
	{
		ID:          "pending-requests",
		Name:        "Pending Requests",
		Description: "One approved and one pending request reserving days on the same row",
	},
}

// ListScenarios returns available scenarios.
// GET /leave-management/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario into a tenant.
// POST /leave-management/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = "demo-" + uuid.NewString()[:8]
	}

	if err := h.SeedScenario(r.Context(), req.ScenarioID, tenantID); err != nil {
		h.fail(w, r, fmt.Sprintf("Failed to load scenario %q", req.ScenarioID), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID, "tenant_id": tenantID})
}

// SeedScenario loads scenario id into tenantID.
func (h *Handler) SeedScenario(ctx context.Context, id, tenantID string) error {
	now := time.Now().UTC()
	switch id {
	case "new-employee":
		return h.loadNewEmployeeScenario(ctx, tenantID, now)
	case "year-end-rollover":
		return h.loadYearEndRolloverScenario(ctx, tenantID, now)
	case "overtime-week":
		return h.loadOvertimeWeekScenario(ctx, tenantID, now)
	case "pending-requests":
		return h.loadPendingRequestsScenario(ctx, tenantID, now)
	}
	return ledger.Invalid("scenario_id", "unknown scenario %q", id)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) seedStandardTypes(ctx context.Context, tenantID string) error {
	maxCarry := decimal.NewFromInt(5)
	types := []ledger.LeaveType{
		{
			ID: tenantID + "-annual", TenantID: tenantID, Name: "annual leave",
			AnnualAllowance: decimal.NewFromInt(20), CarryForward: true, MaxCarryForward: &maxCarry, IsActive: true,
		},
		{
			ID: tenantID + "-sick", TenantID: tenantID, Name: "sick leave",
			AnnualAllowance: decimal.NewFromInt(10), IsActive: true,
		},
		{
			ID: tenantID + "-comp", TenantID: tenantID, Name: "comp-off",
			IsCompOff: true, IsActive: true,
		},
	}
	for _, lt := range types {
		if err := h.Store.SaveLeaveType(ctx, lt); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) seedUser(ctx context.Context, tenantID, name string) (ledger.User, error) {
	u := ledger.User{
		ID:       tenantID + "-" + name,
		TenantID: tenantID,
		Name:     name,
		Email:    name + "@" + tenantID + ".example.com",
	}
	return u, h.Store.SaveUser(ctx, u)
}

func (h *Handler) loadNewEmployeeScenario(ctx context.Context, tenantID string, now time.Time) error {
	if err := h.seedStandardTypes(ctx, tenantID); err != nil {
		return err
	}
	if _, err := h.seedUser(ctx, tenantID, "alice"); err != nil {
		return err
	}
	_, err := h.Allocator.RunAnnualAllocation(ctx, tenantID, now.Year(), false)
	return err
}

func (h *Handler) loadYearEndRolloverScenario(ctx context.Context, tenantID string, now time.Time) error {
	if err := h.seedStandardTypes(ctx, tenantID); err != nil {
		return err
	}
	lastYear := now.Year() - 1

	// alice leaves 8 days unused (capped to 5), bob leaves 3.
	leftovers := map[string]int64{"alice": 8, "bob": 3}
	for name, left := range leftovers {
		u, err := h.seedUser(ctx, tenantID, name)
		if err != nil {
			return err
		}
		if _, err := h.Allocator.AllocateIndividualLeave(ctx, leave.IndividualAllocation{
			TenantID:    tenantID,
			UserID:      u.ID,
			LeaveTypeID: tenantID + "-annual",
			Days:        decimal.NewFromInt(20),
			Year:        lastYear,
		}); err != nil {
			return err
		}
		// Take the used days as one approved request in January.
		start := time.Date(lastYear, time.January, 2, 0, 0, 0, 0, time.UTC)
		l, _, err := h.Reservations.Apply(ctx, leave.ApplyInput{
			TenantID:    tenantID,
			UserID:      u.ID,
			LeaveTypeID: tenantID + "-annual",
			StartDate:   start,
			EndDate:     start.AddDate(0, 0, int(20-left)-1),
			Reason:      "winter holiday",
		})
		if err != nil {
			return err
		}
		if _, _, err := h.Reservations.Approve(ctx, l.ID, "scenario"); err != nil {
			return err
		}
	}

	_, err := h.Allocator.RunAnnualAllocation(ctx, tenantID, now.Year(), false)
	return err
}

func (h *Handler) loadOvertimeWeekScenario(ctx context.Context, tenantID string, now time.Time) error {
	if err := h.seedStandardTypes(ctx, tenantID); err != nil {
		return err
	}
	u, err := h.seedUser(ctx, tenantID, "alice")
	if err != nil {
		return err
	}

	lastMonday := ledger.StartOfWeek(now).AddDate(0, 0, -7)
	for i := 0; i < 5; i++ {
		day := lastMonday.AddDate(0, 0, i)
		if err := h.Store.SaveTimesheet(ctx, ledger.Timesheet{
			ID:        fmt.Sprintf("%s-ts-%s", u.ID, day.Format(ledger.DateLayout)),
			TenantID:  tenantID,
			UserEmail: u.Email,
			Date:      day,
			Hours:     decimal.NewFromInt(10),
		}); err != nil {
			return err
		}
	}

	_, err = h.Overtime.ProcessOvertimeForCompOff(ctx, tenantID, u.Email, lastMonday)
	return err
}

func (h *Handler) loadPendingRequestsScenario(ctx context.Context, tenantID string, now time.Time) error {
	if err := h.seedStandardTypes(ctx, tenantID); err != nil {
		return err
	}
	u, err := h.seedUser(ctx, tenantID, "alice")
	if err != nil {
		return err
	}
	if _, err := h.Allocator.RunAnnualAllocation(ctx, tenantID, now.Year(), false); err != nil {
		return err
	}

	// Requests sit late in the year so they never span two years.
	base := time.Date(now.Year(), time.December, 1, 0, 0, 0, 0, time.UTC)
	approved, _, err := h.Reservations.Apply(ctx, leave.ApplyInput{
		TenantID:    tenantID,
		UserID:      u.ID,
		LeaveTypeID: tenantID + "-annual",
		StartDate:   base,
		EndDate:     base.AddDate(0, 0, 2),
		Reason:      "family visit",
	})
	if err != nil {
		return err
	}
	if _, _, err := h.Reservations.Approve(ctx, approved.ID, "scenario"); err != nil {
		return err
	}

	_, _, err = h.Reservations.Apply(ctx, leave.ApplyInput{
		TenantID:    tenantID,
		UserID:      u.ID,
		LeaveTypeID: tenantID + "-annual",
		StartDate:   base.AddDate(0, 0, 14),
		EndDate:     base.AddDate(0, 0, 14),
		Duration:    ledger.HalfDay,
		Reason:      "appointment",
	})
	return err
}
