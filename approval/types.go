/*
Package approval provides the approval and balance-reconciliation engine.

PURPOSE:
  Governs the three review workflows of the back office:
  - Leave requests, which debit and credit an employee's leave balance
  - Cash advances, which need two ordered reviewer sign-offs
  - Liquidations, which reconcile expenses against an advance

KEY CONCEPTS IN THIS FILE (types.go):
  - Employee:        Identity, role/position, leave balance (days)
  - LeaveRequest:    One leave request and its review metadata
  - CashAdvance:     Two independent Review levels, derived overall status
  - Liquidation:     Items, receipts and the computed settlement
  - Closed variants: LeaveAction, ReviewAction, Level parsed at the boundary

DESIGN PRINCIPLES:
  1. Precision: days and money are decimal.Decimal, never float64
  2. Optional references are pointers: nil means "not yet reviewed"
  3. Derived values (CashAdvance.Status) are computed, never stored
  4. Statuses are typed strings with IsValid() so unknown values are rejected early

SEE ALSO:
  - errors.go: Error taxonomy
  - store.go: Persistence contract
  - ledger.go, leave.go, cashadvance.go, liquidation.go, authz.go: Components
*/
package approval

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// =============================================================================
// EMPLOYEE
// =============================================================================

// Employee is the owner of a leave balance. LeaveBalance is only ever changed
// through the Ledger.
type Employee struct {
	ID           string
	Name         string
	Role         string
	PositionID   *string
	LeaveBalance decimal.Decimal
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

type EntryKind string

const (
	EntryOpening    EntryKind = "opening"
	EntryDebit      EntryKind = "debit"
	EntryCredit     EntryKind = "credit"
	EntryAdjustment EntryKind = "adjustment"
)

// LedgerEntry records one balance movement. Entries are append-only.
type LedgerEntry struct {
	ID             string
	EmployeeID     string
	Kind           EntryKind
	Days           decimal.Decimal // signed: debits are negative
	BalanceAfter   decimal.Decimal
	ReferenceID    string
	IdempotencyKey string
	Reason         string
	CreatedBy      string
	CreatedAt      time.Time
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

type LeaveStatus string

const (
	LeavePending  LeaveStatus = "pending"
	LeaveApproved LeaveStatus = "approved"
	LeaveRejected LeaveStatus = "rejected"
	LeaveRevoked  LeaveStatus = "revoked"
)

func (s LeaveStatus) IsValid() bool {
	switch s {
	case LeavePending, LeaveApproved, LeaveRejected, LeaveRevoked:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s LeaveStatus) IsTerminal() bool {
	return s == LeaveRejected || s == LeaveRevoked
}

// LeaveAction is the closed set of reviewer actions on a leave request.
type LeaveAction string

const (
	LeaveActionApprove LeaveAction = "approve"
	LeaveActionReject  LeaveAction = "reject"
	LeaveActionRevoke  LeaveAction = "revoke"
)

// ParseLeaveAction rejects anything outside approve|reject|revoke.
func ParseLeaveAction(s string) (LeaveAction, error) {
	switch a := LeaveAction(strings.ToLower(strings.TrimSpace(s))); a {
	case LeaveActionApprove, LeaveActionReject, LeaveActionRevoke:
		return a, nil
	}
	return "", &ValidationError{Field: "action", Message: fmt.Sprintf("unknown leave action %q", s)}
}

type LeaveRequest struct {
	ID              string
	EmployeeID      string
	LeaveType       string
	StartDate       time.Time
	EndDate         time.Time
	Reason          string
	Status          LeaveStatus
	ReviewerID      *string
	ReviewerComment string
	ReviewedAt      *time.Time

	// DebitedDays is fixed at approval and is what a revoke credits back.
	DebitedDays decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Duration is the inclusive day count end - start + 1.
func (r LeaveRequest) Duration() decimal.Decimal {
	return decimal.NewFromInt(int64(InclusiveDays(r.StartDate, r.EndDate)))
}

// InclusiveDays counts calendar days from start to end, both included.
func InclusiveDays(start, end time.Time) int {
	s := truncateDay(start)
	e := truncateDay(end)
	return int(e.Sub(s).Hours()/24) + 1
}

// ParseDate parses a YYYY-MM-DD date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD)", s)
	}
	return t.UTC(), nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// CASH ADVANCES
// =============================================================================

type AdvanceType string

const (
	AdvancePersonal AdvanceType = "personal"
	AdvanceSupport  AdvanceType = "support"
)

func (t AdvanceType) IsValid() bool {
	return t == AdvancePersonal || t == AdvanceSupport
}

// LevelStatus is the state of one review level. LevelUnset means the level
// has not been opened yet (stored as NULL).
type LevelStatus string

const (
	LevelUnset    LevelStatus = ""
	LevelPending  LevelStatus = "pending"
	LevelApproved LevelStatus = "approved"
	LevelRejected LevelStatus = "rejected"
)

// Level identifies one of the two ordered reviewer gates.
type Level string

const (
	Level1 Level = "level1"
	Level2 Level = "level2"
)

func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case Level1, Level2:
		return l, nil
	}
	return "", &ValidationError{Field: "level", Message: fmt.Sprintf("unknown level %q", s)}
}

// ReviewAction is the closed set of actions at a cash-advance level.
type ReviewAction string

const (
	ReviewApprove ReviewAction = "approve"
	ReviewReject  ReviewAction = "reject"
)

func ParseReviewAction(s string) (ReviewAction, error) {
	switch a := ReviewAction(strings.ToLower(strings.TrimSpace(s))); a {
	case ReviewApprove, ReviewReject:
		return a, nil
	}
	return "", &ValidationError{Field: "action", Message: fmt.Sprintf("unknown review action %q", s)}
}

// Result maps an action to the level status it produces.
func (a ReviewAction) Result() LevelStatus {
	if a == ReviewApprove {
		return LevelApproved
	}
	return LevelRejected
}

// Review holds one level's outcome.
type Review struct {
	Status     LevelStatus
	ReviewerID *string
	ReviewedAt *time.Time
	Comment    string
}

type AdvanceStatus string

const (
	AdvancePending  AdvanceStatus = "pending"
	AdvanceApproved AdvanceStatus = "approved"
	AdvanceRejected AdvanceStatus = "rejected"
)

type CashAdvance struct {
	ID         string
	EmployeeID string
	Type       AdvanceType
	Amount     decimal.Decimal
	Purpose    string
	Level1     Review
	Level2     Review
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Status derives the overall status from the two levels.
func (a CashAdvance) Status() AdvanceStatus {
	switch {
	case a.Level1.Status == LevelRejected || a.Level2.Status == LevelRejected:
		return AdvanceRejected
	case a.Level1.Status == LevelApproved && a.Level2.Status == LevelApproved:
		return AdvanceApproved
	default:
		return AdvancePending
	}
}

// ActiveLevel returns the level allowed to act next, if any.
func (a CashAdvance) ActiveLevel() (Level, bool) {
	if a.Status() != AdvancePending {
		return "", false
	}
	if a.Level1.Status != LevelApproved {
		return Level1, true
	}
	if a.Level2.Status != LevelApproved && a.Level2.Status != LevelRejected {
		return Level2, true
	}
	return "", false
}

// Review returns the review at the given level.
func (a CashAdvance) Review(level Level) Review {
	if level == Level2 {
		return a.Level2
	}
	return a.Level1
}

// =============================================================================
// LIQUIDATIONS
// =============================================================================

type LiquidationStatus string

const (
	LiquidationPending  LiquidationStatus = "pending"
	LiquidationApproved LiquidationStatus = "approved"
	LiquidationRejected LiquidationStatus = "rejected"
)

func (s LiquidationStatus) IsValid() bool {
	switch s {
	case LiquidationPending, LiquidationApproved, LiquidationRejected:
		return true
	}
	return false
}

type Liquidation struct {
	ID              string
	CashAdvanceID   string
	StoreID         string
	TicketID        *string
	Date            time.Time
	TotalAmount     decimal.Decimal
	ReturnToCompany decimal.Decimal
	Reimbursement   decimal.Decimal
	Remarks         string
	Status          LiquidationStatus
	Version         int64
	CreatedBy       string
	Items           []LiquidationItem
	Receipts        []Receipt
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type LiquidationItem struct {
	ID              string
	LiquidationID   string
	FromDestination string
	ToDestination   string
	Description     string
	Total           decimal.Decimal
}

// Receipt is a file attached to a liquidation. The bytes live in a BlobStore
// under StorageKey.
type Receipt struct {
	ID            string
	LiquidationID string
	ItemID        *string
	FileName      string
	ContentType   string
	StorageKey    string
	Size          int64
	CreatedAt     time.Time
}
