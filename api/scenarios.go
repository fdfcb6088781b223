/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
	Provides pre-built scenarios that populate the database with a
	reviewer cast and sample workflows, so the API can be explored without
	hand-crafting every record.

AVAILABLE SCENARIOS:
	reviewers:           The cast only (employee, HR, supervisor, finance, admin)
	leave-round-trip:    Cast + one approved and one pending leave request
	advance-liquidation: Cast + a fully approved advance with a liquidation

HOW SCENARIOS WORK:
 1. Open every cast member that does not exist yet (ids are fixed)
 2. Run the workflow through the real services, so balances, ledger
    entries and reviewer metadata are exactly what the API would produce

Scenarios are additive. Loading one twice adds its sample requests twice
but never duplicates the cast.

USAGE VIA API:
	POST /api/scenarios/load
	{"scenarioId": "leave-round-trip"}

SEE ALSO:
  - handlers.go: Handler and services
  - approval/authz.go: DefaultPolicy (roles and positions used by the cast)
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/approval-engine/approval"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "reviewers",
		Name:        "Reviewer Cast",
		Description: "One employee with 15 days, plus HR, supervisor, finance and admin reviewers",
	},
	{
		ID:          "leave-round-trip",
		Name:        "Leave Round Trip",
		Description: "An approved 3-day request (balance 12) and a pending 2-day request",
	},
	{
		ID:          "advance-liquidation",
		Name:        "Advance and Liquidation",
		Description: "A 5000 support advance approved at both levels, liquidated for 4500 (500 back)",
	},
}

// demoCast is the set of employees every scenario relies on.
var demoCast = []approval.NewEmployee{
	{ID: "demo-employee", Name: "Dana Employee", Role: "employee", OpeningBalance: decimal.NewFromInt(15)},
	{ID: "demo-hr", Name: "Harper HR", Role: "hr", OpeningBalance: decimal.NewFromInt(15)},
	{ID: "demo-supervisor", Name: "Sam Supervisor", Role: "employee", PositionID: strPtr("supervisor"), OpeningBalance: decimal.NewFromInt(15)},
	{ID: "demo-finance", Name: "Frankie Finance", Role: "finance", OpeningBalance: decimal.NewFromInt(15)},
	{ID: "demo-admin", Name: "Alex Admin", Role: "admin", OpeningBalance: decimal.NewFromInt(15)},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the most recently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario seeds the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "reviewers":
		err = h.loadCast(r.Context())
	case "leave-round-trip":
		err = h.loadLeaveRoundTripScenario(r.Context())
	case "advance-liquidation":
		err = h.loadAdvanceLiquidationScenario(r.Context())
	default:
		err = &approval.ValidationError{Field: "scenarioId", Message: fmt.Sprintf("unknown scenario %q", req.ScenarioID)}
	}
	if err != nil {
		fail(w, r, err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenarioId": req.ScenarioID})
}

// =============================================================================
// LOADERS
// =============================================================================

func (h *Handler) loadCast(ctx context.Context) error {
	for _, in := range demoCast {
		_, err := h.Ledger.Employee(ctx, in.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, approval.ErrNotFound) {
			return err
		}
		if _, err := h.Ledger.Open(ctx, in); err != nil {
			return fmt.Errorf("open %s: %w", in.ID, err)
		}
	}
	return nil
}

func (h *Handler) demoActor(ctx context.Context, id string) (approval.Actor, error) {
	return h.Gate.Resolve(ctx, id)
}

func (h *Handler) loadLeaveRoundTripScenario(ctx context.Context) error {
	if err := h.loadCast(ctx); err != nil {
		return err
	}
	hr, err := h.demoActor(ctx, "demo-hr")
	if err != nil {
		return err
	}

	start := nextMonday(time.Now().UTC())
	approved, err := h.Leave.Create(ctx, approval.NewLeaveRequest{
		EmployeeID: "demo-employee",
		LeaveType:  "vacation",
		StartDate:  start,
		EndDate:    start.AddDate(0, 0, 2),
		Reason:     "Long weekend",
	})
	if err != nil {
		return err
	}
	if _, err := h.Leave.Approve(ctx, hr, approved.ID, "Enjoy"); err != nil {
		return err
	}

	_, err = h.Leave.Create(ctx, approval.NewLeaveRequest{
		EmployeeID: "demo-employee",
		LeaveType:  "sick",
		StartDate:  start.AddDate(0, 0, 14),
		EndDate:    start.AddDate(0, 0, 15),
		Reason:     "Appointment",
	})
	return err
}

func (h *Handler) loadAdvanceLiquidationScenario(ctx context.Context) error {
	if err := h.loadCast(ctx); err != nil {
		return err
	}
	supervisor, err := h.demoActor(ctx, "demo-supervisor")
	if err != nil {
		return err
	}
	finance, err := h.demoActor(ctx, "demo-finance")
	if err != nil {
		return err
	}
	employee, err := h.demoActor(ctx, "demo-employee")
	if err != nil {
		return err
	}

	adv, err := h.Advances.Create(ctx, approval.NewCashAdvance{
		EmployeeID: "demo-employee",
		Type:       approval.AdvanceSupport,
		Amount:     decimal.NewFromInt(5000),
		Purpose:    "Client site visit",
	})
	if err != nil {
		return err
	}
	if _, err := h.Advances.Act(ctx, supervisor, adv.ID, approval.Level1, approval.ReviewApprove, "Approved for travel"); err != nil {
		return err
	}
	if _, err := h.Advances.Act(ctx, finance, adv.ID, approval.Level2, approval.ReviewApprove, "Released"); err != nil {
		return err
	}

	_, err = h.Liquidations.Create(ctx, employee, approval.NewLiquidation{
		CashAdvanceID: adv.ID,
		StoreID:       "store-001",
		Date:          time.Now().UTC().Truncate(24 * time.Hour),
		Remarks:       "Site visit expenses",
		Items: []approval.NewLiquidationItem{
			{FromDestination: "Head office", ToDestination: "Client site", Description: "Fuel and tolls", Total: decimal.NewFromInt(3000)},
			{Description: "Meals", Total: decimal.NewFromInt(1500)},
		},
	})
	return err
}

func nextMonday(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	for {
		day = day.AddDate(0, 0, 1)
		if day.Weekday() == time.Monday {
			return day
		}
	}
}

func strPtr(s string) *string {
	return &s
}
