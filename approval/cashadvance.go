/*
cashadvance.go - Two-level cash advance approval

PURPOSE:
  A cash advance needs two ordered sign-offs. Level 1 (typically a
  supervisor) acts first; level 2 (typically finance) can only act after
  level 1 approved. Either level rejecting freezes the advance.

LEVEL GATING:
  level1 active:  level1 = pending
  level2 active:  level1 = approved, level2 not yet decided
  overall status: derived by CashAdvance.Status(), never stored

  ┌────────────────────┐  L1 approve  ┌─────────────────────┐  L2 approve  ┌──────────┐
  │ L1 pending, L2 nil │────────────▶│ L1 approved, L2 pend │────────────▶│ approved │
  └────────────────────┘              └─────────────────────┘              └──────────┘
          │ L1 reject                          │ L2 reject
          ▼                                    ▼
      rejected                             rejected

CHECK ORDER:
  1. Actor authority for the level (PermissionDenied)
  2. Level is active (InvalidTransition)
  3. Guarded write on that level's previous status (ConcurrencyConflict)

  No ledger interaction.
*/
package approval

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// NewCashAdvance is the input of CashAdvanceService.Create.
type NewCashAdvance struct {
	EmployeeID string
	Type       AdvanceType
	Amount     decimal.Decimal
	Purpose    string
}

type CashAdvanceService struct {
	store  Store
	gate   *Gate
	logger *zap.Logger
	now    func() time.Time
}

func NewCashAdvanceService(store Store, gate *Gate, logger *zap.Logger) *CashAdvanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CashAdvanceService{store: store, gate: gate, logger: logger, now: time.Now}
}

func (s *CashAdvanceService) Create(ctx context.Context, in NewCashAdvance) (*CashAdvance, error) {
	if strings.TrimSpace(in.EmployeeID) == "" {
		return nil, &ValidationError{Field: "employeeId", Message: "is required"}
	}
	if !in.Type.IsValid() {
		return nil, &ValidationError{Field: "type", Message: "must be personal or support"}
	}
	if !in.Amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "must be positive"}
	}
	if strings.TrimSpace(in.Purpose) == "" {
		return nil, &ValidationError{Field: "purpose", Message: "is required"}
	}
	if _, err := s.store.GetEmployee(ctx, in.EmployeeID); err != nil {
		return nil, err
	}

	at := s.now().UTC()
	adv := CashAdvance{
		ID:         uuid.NewString(),
		EmployeeID: in.EmployeeID,
		Type:       in.Type,
		Amount:     in.Amount,
		Purpose:    strings.TrimSpace(in.Purpose),
		Level1:     Review{Status: LevelPending},
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	if err := s.store.WithTx(ctx, func(tx Tx) error {
		return tx.InsertCashAdvance(ctx, adv)
	}); err != nil {
		return nil, err
	}

	s.logger.Info("cash advance created",
		zap.String("advance_id", adv.ID),
		zap.String("employee_id", adv.EmployeeID),
		zap.String("amount", adv.Amount.String()))
	return &adv, nil
}

func (s *CashAdvanceService) Get(ctx context.Context, id string) (*CashAdvance, error) {
	return s.store.GetCashAdvance(ctx, id)
}

// Act records a level's decision. Approving level 1 opens level 2.
func (s *CashAdvanceService) Act(ctx context.Context, actor Actor, id string, level Level, action ReviewAction, comment string) (*CashAdvance, error) {
	if err := s.gate.Authorize(actor, LevelCapability(level)); err != nil {
		return nil, err
	}

	adv, err := s.store.GetCashAdvance(ctx, id)
	if err != nil {
		return nil, err
	}
	active, ok := adv.ActiveLevel()
	if !ok || active != level {
		from := string(adv.Status())
		if ok {
			from = "awaiting " + string(active)
		}
		return nil, &TransitionError{
			Entity: "cash advance " + string(level),
			ID:     id,
			From:   from,
			Action: string(action),
		}
	}

	at := s.now().UTC()
	expected := adv.Review(level).Status
	review := Review{
		Status:     action.Result(),
		ReviewerID: &actor.EmployeeID,
		ReviewedAt: &at,
		Comment:    comment,
	}

	next := *adv
	next.UpdatedAt = at
	switch level {
	case Level1:
		next.Level1 = review
		if action == ReviewApprove {
			next.Level2 = Review{Status: LevelPending}
		}
	case Level2:
		next.Level2 = review
	}

	if err := s.store.WithTx(ctx, func(tx Tx) error {
		return tx.UpdateCashAdvance(ctx, next, level, expected)
	}); err != nil {
		return nil, err
	}

	s.logger.Info("cash advance reviewed",
		zap.String("advance_id", id),
		zap.String("level", string(level)),
		zap.String("action", string(action)),
		zap.String("actor", actor.EmployeeID),
		zap.String("status", string(next.Status())))
	return &next, nil
}
