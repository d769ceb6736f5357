package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/ledger"
)

func TestScenarios_LoadEach(t *testing.T) {
	for _, sc := range scenarios {
		t.Run(sc.ID, func(t *testing.T) {
			ts := newTestServer(t)

			var resp map[string]string
			status := ts.do(t, http.MethodPost, "/leave-management/scenarios/load", map[string]any{
				"scenario_id": sc.ID, "tenant_id": "demo",
			}, &resp)

			require.Equal(t, http.StatusOK, status, resp)
			assert.Equal(t, "demo", resp["tenant_id"])

			rows, err := ts.store.ListBalances(context.Background(), "demo", "demo-alice", 0)
			require.NoError(t, err)
			for i := range rows {
				assert.NoError(t, rows[i].Validate(), "row %d", i)
			}
			if sc.ID != "overtime-week" {
				assert.NotEmpty(t, rows)
			}
		})
	}
}

func TestScenarios_YearEndRolloverCapsCarry(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	year := time.Now().UTC().Year()

	require.NoError(t, ts.handler.SeedScenario(ctx, "year-end-rollover", "demo"))

	alice, err := ts.store.GetBalance(ctx, ledger.BalanceKey{TenantID: "demo", UserID: "demo-alice", LeaveTypeID: "demo-annual", Year: year})
	require.NoError(t, err)
	bob, err := ts.store.GetBalance(ctx, ledger.BalanceKey{TenantID: "demo", UserID: "demo-bob", LeaveTypeID: "demo-annual", Year: year})
	require.NoError(t, err)

	assert.Equal(t, "5", alice.CarriedOver.String())
	assert.Equal(t, "25", alice.Remaining.String())
	assert.Equal(t, "3", bob.CarriedOver.String())
}

func TestScenarios_OvertimeWeekCredits(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, ts.handler.SeedScenario(ctx, "overtime-week", "demo"))

	credits, err := ts.store.ListCompOffCredits(ctx, "demo", "demo-alice")
	require.NoError(t, err)
	require.Len(t, credits, 1)
	// 5 * 2h/8 daily + 10h/8 weekly
	assert.Equal(t, "2.5", credits[0].CreditedDays.String())
}

func TestScenarios_Unknown(t *testing.T) {
	ts := newTestServer(t)

	status := ts.do(t, http.MethodPost, "/leave-management/scenarios/load", map[string]any{"scenario_id": "nope"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	var list []ScenarioDTO
	ts.do(t, http.MethodGet, "/leave-management/scenarios", nil, &list)
	assert.Len(t, list, len(scenarios))
}
