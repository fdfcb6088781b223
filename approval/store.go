/*
store.go - Persistence contract for the approval engine

PURPOSE:
  Defines the interface between the workflows and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Reader: Lookups and listings (outside or inside a transaction)
  Tx:     Writes, only available inside WithTx
  Store:  Reader plus WithTx

GUARDED WRITES:
  Every update of an existing row names the state it expects to replace:
  - UpdateLeaveRequest:  expected status
  - UpdateCashAdvance:   expected status of the acting level
  - UpdateLiquidation:   expected version
  - SetLeaveBalance:     expected employee version
  When the row no longer matches, the write affects nothing and the store
  returns ErrConcurrencyConflict. Callers never retry.

APPEND-ONLY LEDGER:
  AppendLedgerEntry has no update or delete counterpart. A duplicate
  idempotency key returns ErrDuplicateEntry.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite via database/sql
  - approval/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Uses SetLeaveBalance + AppendLedgerEntry inside the caller's Tx
*/
package approval

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LeaveFilter narrows ListLeaveRequests. Zero values match everything.
type LeaveFilter struct {
	EmployeeID string
	Status     LeaveStatus
}

// Reader is the read side of the store. All getters return a *NotFoundError
// for unknown ids.
type Reader interface {
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
	ListLedgerEntries(ctx context.Context, employeeID string) ([]LedgerEntry, error)

	GetLeaveRequest(ctx context.Context, id string) (*LeaveRequest, error)
	ListLeaveRequests(ctx context.Context, filter LeaveFilter) ([]LeaveRequest, error)

	GetCashAdvance(ctx context.Context, id string) (*CashAdvance, error)

	// GetLiquidation returns the liquidation with its items and receipts.
	GetLiquidation(ctx context.Context, id string) (*Liquidation, error)
	ListLiquidations(ctx context.Context, cashAdvanceID string) ([]Liquidation, error)
}

// Tx is the write handle passed to WithTx callbacks. Reads through a Tx see
// the transaction's own writes.
type Tx interface {
	Reader

	InsertEmployee(ctx context.Context, emp Employee) error
	// SetLeaveBalance writes the new balance and bumps the employee version
	// if the stored version still equals expectedVersion.
	SetLeaveBalance(ctx context.Context, employeeID string, expectedVersion int64, balance decimal.Decimal, at time.Time) error
	AppendLedgerEntry(ctx context.Context, entry LedgerEntry) error

	InsertLeaveRequest(ctx context.Context, req LeaveRequest) error
	UpdateLeaveRequest(ctx context.Context, req LeaveRequest, expected LeaveStatus) error

	InsertCashAdvance(ctx context.Context, adv CashAdvance) error
	UpdateCashAdvance(ctx context.Context, adv CashAdvance, level Level, expected LevelStatus) error

	// InsertLiquidation writes the liquidation and its items.
	InsertLiquidation(ctx context.Context, liq Liquidation) error
	// UpdateLiquidation writes metadata and status and sets version to
	// expectedVersion+1.
	UpdateLiquidation(ctx context.Context, liq Liquidation, expectedVersion int64) error
	// DeleteLiquidation removes the liquidation, its items and its receipt
	// rows, returning the removed receipts so their blobs can be cleaned up.
	DeleteLiquidation(ctx context.Context, id string) ([]Receipt, error)
	InsertReceipt(ctx context.Context, rec Receipt) error
}

// Store is the full persistence interface.
type Store interface {
	Reader

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// BlobStore holds receipt bytes. Implementations live in package receipts.
type BlobStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}
