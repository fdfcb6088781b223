/*
leave.go - Leave request state machine

PURPOSE:
  Moves leave requests through their lifecycle and keeps the employee's
  balance in step with it.

STATE MACHINE:
  ┌─────────┐  approve   ┌──────────┐  revoke   ┌─────────┐
  │ pending │──────────▶│ approved │─────────▶│ revoked │
  └─────────┘            └──────────┘           └─────────┘
       │ reject
       ▼
  ┌──────────┐
  │ rejected │
  └──────────┘

  approve: debit the inclusive day count, record it as DebitedDays
  revoke:  credit back exactly DebitedDays (never recomputed from dates)
  reject:  no balance effect

  Anything else is a TransitionError.

CONCURRENCY:
  The status write is conditional on the status read before the transaction.
  Two reviewers approving the same request: one write matches, the other
  affects nothing and gets ErrConcurrencyConflict. The debit only happens in
  the transaction that won.

SEE ALSO:
  - ledger.go: Debit / Credit
  - authz.go: leave.review capability
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

// NewLeaveRequest is the input of LeaveService.Create.
type NewLeaveRequest struct {
	EmployeeID string
	LeaveType  string
	StartDate  time.Time
	EndDate    time.Time
	Reason     string
}

type LeaveService struct {
	store  Store
	ledger *Ledger
	gate   *Gate
	logger *zap.Logger
	now    func() time.Time
}

func NewLeaveService(store Store, ledger *Ledger, gate *Gate, logger *zap.Logger) *LeaveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaveService{store: store, ledger: ledger, gate: gate, logger: logger, now: time.Now}
}

// Create validates and inserts a pending request. The balance is not touched
// until approval.
func (s *LeaveService) Create(ctx context.Context, in NewLeaveRequest) (*LeaveRequest, error) {
	if strings.TrimSpace(in.EmployeeID) == "" {
		return nil, &ValidationError{Field: "employeeId", Message: "is required"}
	}
	if strings.TrimSpace(in.LeaveType) == "" {
		return nil, &ValidationError{Field: "leaveType", Message: "is required"}
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return nil, &ValidationError{Field: "startDate", Message: "start and end dates are required"}
	}
	start, end := truncateDay(in.StartDate), truncateDay(in.EndDate)
	if end.Before(start) {
		return nil, &ValidationError{Field: "endDate", Message: "must not be before startDate"}
	}
	if _, err := s.store.GetEmployee(ctx, in.EmployeeID); err != nil {
		return nil, err
	}

	at := s.now().UTC()
	req := LeaveRequest{
		ID:         uuid.NewString(),
		EmployeeID: in.EmployeeID,
		LeaveType:  strings.TrimSpace(in.LeaveType),
		StartDate:  start,
		EndDate:    end,
		Reason:     in.Reason,
		Status:     LeavePending,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	if err := s.store.WithTx(ctx, func(tx Tx) error {
		return tx.InsertLeaveRequest(ctx, req)
	}); err != nil {
		return nil, err
	}

	s.logger.Info("leave request created",
		zap.String("leave_id", req.ID),
		zap.String("employee_id", req.EmployeeID),
		zap.Int("days", InclusiveDays(start, end)))
	return &req, nil
}

func (s *LeaveService) Get(ctx context.Context, id string) (*LeaveRequest, error) {
	return s.store.GetLeaveRequest(ctx, id)
}

func (s *LeaveService) List(ctx context.Context, filter LeaveFilter) ([]LeaveRequest, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, &ValidationError{Field: "status", Message: "unknown leave status " + string(filter.Status)}
	}
	return s.store.ListLeaveRequests(ctx, filter)
}

// Transition dispatches a reviewer action.
func (s *LeaveService) Transition(ctx context.Context, actor Actor, id string, action LeaveAction, comment string) (*LeaveRequest, error) {
	switch action {
	case LeaveActionApprove:
		return s.Approve(ctx, actor, id, comment)
	case LeaveActionReject:
		return s.Reject(ctx, actor, id, comment)
	case LeaveActionRevoke:
		return s.Revoke(ctx, actor, id, comment)
	}
	return nil, &ValidationError{Field: "action", Message: "unknown leave action " + string(action)}
}

// Approve debits the request's duration and marks it approved.
func (s *LeaveService) Approve(ctx context.Context, actor Actor, id, comment string) (*LeaveRequest, error) {
	return s.transition(ctx, actor, id, LeaveActionApprove, comment)
}

// Reject closes a pending request without touching the balance.
func (s *LeaveService) Reject(ctx context.Context, actor Actor, id, comment string) (*LeaveRequest, error) {
	return s.transition(ctx, actor, id, LeaveActionReject, comment)
}

// Revoke credits back what approval debited.
func (s *LeaveService) Revoke(ctx context.Context, actor Actor, id, comment string) (*LeaveRequest, error) {
	return s.transition(ctx, actor, id, LeaveActionRevoke, comment)
}

// transitions maps each action to its required pre-state and resulting state.
var transitions = map[LeaveAction]struct{ from, to LeaveStatus }{
	LeaveActionApprove: {LeavePending, LeaveApproved},
	LeaveActionReject:  {LeavePending, LeaveRejected},
	LeaveActionRevoke:  {LeaveApproved, LeaveRevoked},
}

func (s *LeaveService) transition(ctx context.Context, actor Actor, id string, action LeaveAction, comment string) (*LeaveRequest, error) {
	if err := s.gate.Authorize(actor, CapLeaveReview); err != nil {
		return nil, err
	}

	req, err := s.store.GetLeaveRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	rule := transitions[action]
	if req.Status != rule.from {
		return nil, &TransitionError{Entity: "leave request", ID: id, From: string(req.Status), Action: string(action)}
	}

	at := s.now().UTC()
	next := *req
	next.Status = rule.to
	next.ReviewerID = &actor.EmployeeID
	next.ReviewerComment = comment
	next.ReviewedAt = &at
	next.UpdatedAt = at
	if action == LeaveActionApprove {
		next.DebitedDays = req.Duration()
	}

	var balance decimal.Decimal
	err = s.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.UpdateLeaveRequest(ctx, next, rule.from); err != nil {
			return err
		}

		ref := Reference{ID: req.ID, Reason: string(action) + " leave " + req.LeaveType, Actor: actor.EmployeeID}
		var err error
		switch action {
		case LeaveActionApprove:
			ref.Key = "leave:" + req.ID + ":debit"
			balance, err = s.ledger.Debit(ctx, tx, req.EmployeeID, next.DebitedDays, ref)
		case LeaveActionRevoke:
			ref.Key = "leave:" + req.ID + ":credit"
			balance, err = s.ledger.Credit(ctx, tx, req.EmployeeID, req.DebitedDays, ref)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.String("leave_id", id),
		zap.String("actor", actor.EmployeeID),
		zap.String("status", string(next.Status)),
	}
	if action != LeaveActionReject {
		fields = append(fields, zap.String("balance", balance.String()))
	}
	s.logger.Info("leave request "+string(next.Status), fields...)
	return &next, nil
}
