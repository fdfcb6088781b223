/*
authz.go - Authorization gate

PURPOSE:
  Answers "may this actor perform this capability?" from the actor's role and
  position. The caller identity is resolved once per request into an explicit
  Actor value that is passed to every workflow operation. There is no global
  session.

CAPABILITIES:
  leave.review          approve, reject, revoke leave requests
  cash_advance.level1   act on level 1 of a cash advance
  cash_advance.level2   act on level 2 of a cash advance
  liquidation.review    change a liquidation's status, delete a liquidation
  ledger.adjust         manual balance corrections

  The role/position lists per capability come from configuration
  (config.AuthzConfig). Superuser roles pass every check.

SEE ALSO:
  - config/config.go: authz section
  - api/handlers.go: actor resolution from reviewerId / X-Actor-ID
*/
package approval

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

type Capability string

const (
	CapLeaveReview       Capability = "leave.review"
	CapAdvanceLevel1     Capability = "cash_advance.level1"
	CapAdvanceLevel2     Capability = "cash_advance.level2"
	CapLiquidationReview Capability = "liquidation.review"
	CapLedgerAdjust      Capability = "ledger.adjust"
)

// Capabilities lists every known capability.
var Capabilities = []Capability{
	CapLeaveReview, CapAdvanceLevel1, CapAdvanceLevel2, CapLiquidationReview, CapLedgerAdjust,
}

// LevelCapability maps a cash-advance level to the capability it requires.
func LevelCapability(level Level) Capability {
	if level == Level2 {
		return CapAdvanceLevel2
	}
	return CapAdvanceLevel1
}

// Actor is the resolved caller of an operation.
type Actor struct {
	EmployeeID string
	Role       string
	PositionID *string
}

// Rule grants a capability to any of the listed roles or positions.
type Rule struct {
	Roles     []string
	Positions []string
}

type Policy struct {
	SuperuserRoles []string
	Rules          map[Capability]Rule
}

// DefaultPolicy is used when configuration does not override the authz section.
func DefaultPolicy() Policy {
	return Policy{
		SuperuserRoles: []string{"admin"},
		Rules: map[Capability]Rule{
			CapLeaveReview:       {Roles: []string{"hr"}, Positions: []string{"supervisor"}},
			CapAdvanceLevel1:     {Positions: []string{"supervisor"}},
			CapAdvanceLevel2:     {Roles: []string{"finance"}, Positions: []string{"finance_head"}},
			CapLiquidationReview: {Roles: []string{"finance"}},
			CapLedgerAdjust:      {Roles: []string{"hr"}},
		},
	}
}

// EmployeeLookup is the subset of Reader the gate needs.
type EmployeeLookup interface {
	GetEmployee(ctx context.Context, id string) (*Employee, error)
}

type Gate struct {
	directory EmployeeLookup
	policy    Policy
}

func NewGate(directory EmployeeLookup, policy Policy) *Gate {
	return &Gate{directory: directory, policy: policy}
}

// Resolve turns a caller id into an Actor. Unknown callers are denied.
func (g *Gate) Resolve(ctx context.Context, employeeID string) (Actor, error) {
	id := strings.TrimSpace(employeeID)
	if id == "" {
		return Actor{}, &PermissionError{Reason: "caller identity is required"}
	}
	emp, err := g.directory.GetEmployee(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Actor{}, &PermissionError{ActorID: id, Reason: "unknown caller"}
	}
	if err != nil {
		return Actor{}, fmt.Errorf("resolve actor %s: %w", id, err)
	}
	return Actor{EmployeeID: emp.ID, Role: emp.Role, PositionID: emp.PositionID}, nil
}

// Authorize returns a *PermissionError unless the actor holds the capability.
func (g *Gate) Authorize(actor Actor, capability Capability) error {
	if actor.EmployeeID == "" {
		return &PermissionError{Capability: capability, Reason: "no actor"}
	}
	if slices.Contains(g.policy.SuperuserRoles, actor.Role) {
		return nil
	}
	rule, ok := g.policy.Rules[capability]
	if !ok {
		return &PermissionError{ActorID: actor.EmployeeID, Capability: capability, Reason: "capability not granted to anyone"}
	}
	if slices.Contains(rule.Roles, actor.Role) {
		return nil
	}
	if actor.PositionID != nil && slices.Contains(rule.Positions, *actor.PositionID) {
		return nil
	}
	return &PermissionError{
		ActorID:    actor.EmployeeID,
		Capability: capability,
		Reason:     fmt.Sprintf("role %q lacks authority", actor.Role),
	}
}

// Can is Authorize as a predicate.
func (g *Gate) Can(actor Actor, capability Capability) bool {
	return g.Authorize(actor, capability) == nil
}
