/*
ledger.go - Leave balance ledger

PURPOSE:
  The only code that changes Employee.LeaveBalance. Every change is a guarded
  balance write plus an append-only LedgerEntry, both inside the transaction of
  the state change that caused it.

CRITICAL INVARIANTS:
  1. NON-NEGATIVE: a debit larger than the balance fails, nothing is written
  2. APPEND-ONLY: entries are never updated or deleted
  3. IDEMPOTENT: an idempotency key can be used once
  4. GUARDED: the balance write is conditional on the version read in the
     same transaction

ENTRY KINDS:
  opening     initial balance when the employee is created
  debit       leave approval (negative days)
  credit      leave revoke (positive days)
  adjustment  manual HR correction (either sign)

  For any employee: opening + sum(other entries) == current balance.

SEE ALSO:
  - leave.go: Debit on approve, Credit on revoke
  - store.go: SetLeaveBalance / AppendLedgerEntry
*/
package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reference ties a ledger movement to what caused it.
type Reference struct {
	ID     string // leave request id or adjustment id
	Key    string // idempotency key
	Reason string
	Actor  string
}

// NewEmployee is the input of Ledger.Open.
type NewEmployee struct {
	ID             string
	Name           string
	Role           string
	PositionID     *string
	OpeningBalance decimal.Decimal
}

// Adjustment is the input of Ledger.Adjust.
type Adjustment struct {
	EmployeeID     string
	Days           decimal.Decimal
	Reason         string
	IdempotencyKey string
}

type Ledger struct {
	store  Store
	gate   *Gate
	logger *zap.Logger
	now    func() time.Time
}

func NewLedger(store Store, gate *Gate, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, gate: gate, logger: logger, now: time.Now}
}

// =============================================================================
// TRANSACTIONAL MOVEMENTS - Called with the caller's Tx
// =============================================================================

// Debit subtracts days from the employee's balance and returns the new balance.
func (l *Ledger) Debit(ctx context.Context, tx Tx, employeeID string, days decimal.Decimal, ref Reference) (decimal.Decimal, error) {
	if !days.IsPositive() {
		return decimal.Zero, &ValidationError{Field: "days", Message: "debit must be positive"}
	}
	entry, err := l.apply(ctx, tx, employeeID, days.Neg(), EntryDebit, ref)
	return entry.BalanceAfter, err
}

// Credit adds days to the employee's balance and returns the new balance.
func (l *Ledger) Credit(ctx context.Context, tx Tx, employeeID string, days decimal.Decimal, ref Reference) (decimal.Decimal, error) {
	if !days.IsPositive() {
		return decimal.Zero, &ValidationError{Field: "days", Message: "credit must be positive"}
	}
	entry, err := l.apply(ctx, tx, employeeID, days, EntryCredit, ref)
	return entry.BalanceAfter, err
}

func (l *Ledger) apply(ctx context.Context, tx Tx, employeeID string, delta decimal.Decimal, kind EntryKind, ref Reference) (LedgerEntry, error) {
	emp, err := tx.GetEmployee(ctx, employeeID)
	if err != nil {
		return LedgerEntry{}, err
	}

	next := emp.LeaveBalance.Add(delta)
	if next.IsNegative() {
		return LedgerEntry{}, &InsufficientBalanceError{
			EmployeeID: employeeID,
			Available:  emp.LeaveBalance,
			Requested:  delta.Abs(),
		}
	}

	at := l.now().UTC()
	if err := tx.SetLeaveBalance(ctx, employeeID, emp.Version, next, at); err != nil {
		return LedgerEntry{}, err
	}

	entry := LedgerEntry{
		ID:             uuid.NewString(),
		EmployeeID:     employeeID,
		Kind:           kind,
		Days:           delta,
		BalanceAfter:   next,
		ReferenceID:    ref.ID,
		IdempotencyKey: ref.Key,
		Reason:         ref.Reason,
		CreatedBy:      ref.Actor,
		CreatedAt:      at,
	}
	if err := tx.AppendLedgerEntry(ctx, entry); err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

// =============================================================================
// STANDALONE OPERATIONS - Run their own transaction
// =============================================================================

// Open creates an employee and records the opening balance.
func (l *Ledger) Open(ctx context.Context, in NewEmployee) (*Employee, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, &ValidationError{Field: "name", Message: "is required"}
	}
	if strings.TrimSpace(in.Role) == "" {
		return nil, &ValidationError{Field: "role", Message: "is required"}
	}
	if in.OpeningBalance.IsNegative() {
		return nil, &ValidationError{Field: "openingBalance", Message: "must not be negative"}
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	at := l.now().UTC()
	emp := Employee{
		ID:           id,
		Name:         strings.TrimSpace(in.Name),
		Role:         strings.TrimSpace(in.Role),
		PositionID:   in.PositionID,
		LeaveBalance: in.OpeningBalance,
		CreatedAt:    at,
		UpdatedAt:    at,
	}

	err := l.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertEmployee(ctx, emp); err != nil {
			return err
		}
		return tx.AppendLedgerEntry(ctx, LedgerEntry{
			ID:             uuid.NewString(),
			EmployeeID:     id,
			Kind:           EntryOpening,
			Days:           in.OpeningBalance,
			BalanceAfter:   in.OpeningBalance,
			ReferenceID:    id,
			IdempotencyKey: "employee:" + id + ":opening",
			Reason:         "opening balance",
			CreatedAt:      at,
		})
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("employee opened",
		zap.String("employee_id", id),
		zap.String("role", emp.Role),
		zap.String("opening_balance", in.OpeningBalance.String()))
	return &emp, nil
}

// Adjust applies a manual correction. The idempotency key makes replays fail
// with ErrDuplicateEntry instead of applying twice.
func (l *Ledger) Adjust(ctx context.Context, actor Actor, in Adjustment) (*LedgerEntry, error) {
	if err := l.gate.Authorize(actor, CapLedgerAdjust); err != nil {
		return nil, err
	}
	if in.Days.IsZero() {
		return nil, &ValidationError{Field: "days", Message: "must not be zero"}
	}
	if strings.TrimSpace(in.Reason) == "" {
		return nil, &ValidationError{Field: "reason", Message: "is required"}
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" {
		return nil, &ValidationError{Field: "idempotencyKey", Message: "is required"}
	}

	ref := Reference{
		ID:     "adjustment:" + key,
		Key:    fmt.Sprintf("employee:%s:adjust:%s", in.EmployeeID, key),
		Reason: in.Reason,
		Actor:  actor.EmployeeID,
	}
	var entry LedgerEntry
	err := l.store.WithTx(ctx, func(tx Tx) error {
		var err error
		entry, err = l.apply(ctx, tx, in.EmployeeID, in.Days, EntryAdjustment, ref)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("ledger adjusted",
		zap.String("employee_id", in.EmployeeID),
		zap.String("actor", actor.EmployeeID),
		zap.String("days", in.Days.String()),
		zap.String("balance_after", entry.BalanceAfter.String()))
	return &entry, nil
}

// Entries returns the employee's ledger history, oldest first.
func (l *Ledger) Entries(ctx context.Context, employeeID string) ([]LedgerEntry, error) {
	if _, err := l.store.GetEmployee(ctx, employeeID); err != nil {
		return nil, err
	}
	return l.store.ListLedgerEntries(ctx, employeeID)
}

// Employee returns one employee.
func (l *Ledger) Employee(ctx context.Context, id string) (*Employee, error) {
	return l.store.GetEmployee(ctx, id)
}

// Employees lists all employees.
func (l *Ledger) Employees(ctx context.Context) ([]Employee, error) {
	return l.store.ListEmployees(ctx)
}
