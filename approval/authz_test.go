package approval_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/approval-engine/approval"
)

func TestGate_ResolveUnknownCallerIsDenied(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.gate.Resolve(context.Background(), "ghost")
	assert.ErrorIs(t, err, approval.ErrPermissionDenied)

	_, err = e.gate.Resolve(context.Background(), "  ")
	assert.ErrorIs(t, err, approval.ErrPermissionDenied)
}

func TestGate_ResolveCarriesRoleAndPosition(t *testing.T) {
	e := newTestEngine(t)

	a := e.actor(t, "sup-1")
	assert.Equal(t, "sup-1", a.EmployeeID)
	assert.Equal(t, "employee", a.Role)
	require.NotNil(t, a.PositionID)
	assert.Equal(t, "supervisor", *a.PositionID)
}

func TestGate_DefaultPolicyMatrix(t *testing.T) {
	gate := approval.NewGate(nil, approval.DefaultPolicy())
	supervisor := ptr("supervisor")
	financeHead := ptr("finance_head")

	tests := []struct {
		name  string
		actor approval.Actor
		cap   approval.Capability
		want  bool
	}{
		{"hr reviews leave", approval.Actor{EmployeeID: "a", Role: "hr"}, approval.CapLeaveReview, true},
		{"supervisor reviews leave", approval.Actor{EmployeeID: "a", Role: "employee", PositionID: supervisor}, approval.CapLeaveReview, true},
		{"employee cannot review leave", approval.Actor{EmployeeID: "a", Role: "employee"}, approval.CapLeaveReview, false},
		{"supervisor at level1", approval.Actor{EmployeeID: "a", Role: "employee", PositionID: supervisor}, approval.CapAdvanceLevel1, true},
		{"supervisor not at level2", approval.Actor{EmployeeID: "a", Role: "employee", PositionID: supervisor}, approval.CapAdvanceLevel2, false},
		{"finance at level2", approval.Actor{EmployeeID: "a", Role: "finance"}, approval.CapAdvanceLevel2, true},
		{"finance head at level2", approval.Actor{EmployeeID: "a", Role: "employee", PositionID: financeHead}, approval.CapAdvanceLevel2, true},
		{"finance not at level1", approval.Actor{EmployeeID: "a", Role: "finance"}, approval.CapAdvanceLevel1, false},
		{"finance reviews liquidations", approval.Actor{EmployeeID: "a", Role: "finance"}, approval.CapLiquidationReview, true},
		{"hr adjusts ledger", approval.Actor{EmployeeID: "a", Role: "hr"}, approval.CapLedgerAdjust, true},
		{"admin everywhere", approval.Actor{EmployeeID: "a", Role: "admin"}, approval.CapAdvanceLevel2, true},
		{"empty actor", approval.Actor{Role: "admin"}, approval.CapLeaveReview, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gate.Can(tt.actor, tt.cap))
			if !tt.want {
				assert.ErrorIs(t, gate.Authorize(tt.actor, tt.cap), approval.ErrPermissionDenied)
			}
		})
	}
}

func TestGate_CustomPolicy(t *testing.T) {
	gate := approval.NewGate(nil, approval.Policy{
		Rules: map[approval.Capability]approval.Rule{
			approval.CapLeaveReview: {Roles: []string{"manager"}},
		},
	})

	assert.True(t, gate.Can(approval.Actor{EmployeeID: "m", Role: "manager"}, approval.CapLeaveReview))
	assert.False(t, gate.Can(approval.Actor{EmployeeID: "m", Role: "admin"}, approval.CapLeaveReview), "no superusers configured")
	assert.False(t, gate.Can(approval.Actor{EmployeeID: "m", Role: "manager"}, approval.CapLedgerAdjust), "unlisted capability")
}

func TestLevelCapability(t *testing.T) {
	assert.Equal(t, approval.CapAdvanceLevel1, approval.LevelCapability(approval.Level1))
	assert.Equal(t, approval.CapAdvanceLevel2, approval.LevelCapability(approval.Level2))
}
