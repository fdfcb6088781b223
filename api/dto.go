/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the approval domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

JSON:
  Field names are camelCase. Days and money are decimals; responses encode
  them as strings ("2.5"), requests accept strings or numbers. Dates are
  YYYY-MM-DD, timestamps RFC3339.

VALIDATION:
  Shape checks (required fields, enum values, date layout) are struct tags
  run by validator/v10 in decode(). Business rules stay in the services.

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go: ErrorResponse
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/approval-engine/approval"
)

// =============================================================================
// EMPLOYEES + LEDGER
// =============================================================================

type EmployeeDTO struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Role         string          `json:"role"`
	PositionID   *string         `json:"positionId,omitempty"`
	LeaveBalance decimal.Decimal `json:"leaveBalance"`
	CreatedAt    string          `json:"createdAt"`
	UpdatedAt    string          `json:"updatedAt"`
}

type CreateEmployeeRequest struct {
	ID             string          `json:"id"`
	Name           string          `json:"name" validate:"required"`
	Role           string          `json:"role" validate:"required"`
	PositionID     *string         `json:"positionId"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
}

type LedgerEntryDTO struct {
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	Days           decimal.Decimal `json:"days"`
	BalanceAfter   decimal.Decimal `json:"balanceAfter"`
	ReferenceID    string          `json:"referenceId,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	CreatedBy      string          `json:"createdBy,omitempty"`
	CreatedAt      string          `json:"createdAt"`
}

type AdjustmentRequest struct {
	Days           decimal.Decimal `json:"days"`
	Reason         string          `json:"reason" validate:"required"`
	IdempotencyKey string          `json:"idempotencyKey" validate:"required"`
}

// =============================================================================
// LEAVE
// =============================================================================

type LeaveRequestDTO struct {
	ID              string          `json:"id"`
	EmployeeID      string          `json:"employeeId"`
	LeaveType       string          `json:"leaveType"`
	StartDate       string          `json:"startDate"`
	EndDate         string          `json:"endDate"`
	Days            decimal.Decimal `json:"days"`
	Reason          string          `json:"reason,omitempty"`
	Status          string          `json:"status"`
	ReviewerID      *string         `json:"reviewerId,omitempty"`
	ReviewerComment string          `json:"reviewerComment,omitempty"`
	ReviewedAt      *string         `json:"reviewedAt,omitempty"`
	DebitedDays     decimal.Decimal `json:"debitedDays"`
	CreatedAt       string          `json:"createdAt"`
	UpdatedAt       string          `json:"updatedAt"`
}

type CreateLeaveRequest struct {
	EmployeeID string `json:"employeeId" validate:"required"`
	LeaveType  string `json:"leaveType" validate:"required"`
	StartDate  string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate    string `json:"endDate" validate:"required,datetime=2006-01-02"`
	Reason     string `json:"reason"`
}

type LeaveTransitionRequest struct {
	ID         string `json:"id" validate:"required"`
	Action     string `json:"action" validate:"required"`
	ReviewerID string `json:"reviewerId"`
	Comment    string `json:"comment"`
}

// =============================================================================
// CASH ADVANCES
// =============================================================================

type ReviewDTO struct {
	Status     string  `json:"status"`
	ReviewerID *string `json:"reviewerId,omitempty"`
	ReviewedAt *string `json:"reviewedAt,omitempty"`
	Comment    string  `json:"comment,omitempty"`
}

type CashAdvanceDTO struct {
	ID          string          `json:"id"`
	EmployeeID  string          `json:"employeeId"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Purpose     string          `json:"purpose"`
	Status      string          `json:"status"`
	ActiveLevel string          `json:"activeLevel,omitempty"`
	Level1      *ReviewDTO      `json:"level1"`
	Level2      *ReviewDTO      `json:"level2"`
	CreatedAt   string          `json:"createdAt"`
	UpdatedAt   string          `json:"updatedAt"`
}

type CreateCashAdvanceRequest struct {
	EmployeeID string          `json:"employeeId" validate:"required"`
	Type       string          `json:"type" validate:"required,oneof=personal support"`
	Amount     decimal.Decimal `json:"amount"`
	Purpose    string          `json:"purpose" validate:"required"`
}

type CashAdvanceTransitionRequest struct {
	ID         string `json:"id" validate:"required"`
	Level      string `json:"level" validate:"required"`
	Action     string `json:"action" validate:"required"`
	ReviewerID string `json:"reviewerId"`
	Comment    string `json:"comment"`
}

// =============================================================================
// LIQUIDATIONS
// =============================================================================

type LiquidationItemDTO struct {
	ID              string          `json:"id"`
	FromDestination string          `json:"fromDestination,omitempty"`
	ToDestination   string          `json:"toDestination,omitempty"`
	Description     string          `json:"description,omitempty"`
	Total           decimal.Decimal `json:"total"`
}

type ReceiptDTO struct {
	ID          string  `json:"id"`
	ItemID      *string `json:"itemId,omitempty"`
	FileName    string  `json:"fileName"`
	ContentType string  `json:"contentType,omitempty"`
	StorageKey  string  `json:"storageKey"`
	Size        int64   `json:"size"`
	CreatedAt   string  `json:"createdAt"`
}

type LiquidationDTO struct {
	ID              string               `json:"id"`
	CashAdvanceID   string               `json:"cashAdvanceId"`
	StoreID         string               `json:"storeId"`
	TicketID        *string              `json:"ticketId,omitempty"`
	Date            string               `json:"date"`
	TotalAmount     decimal.Decimal      `json:"totalAmount"`
	ReturnToCompany decimal.Decimal      `json:"returnToCompany"`
	Reimbursement   decimal.Decimal      `json:"reimbursement"`
	Remarks         string               `json:"remarks,omitempty"`
	Status          string               `json:"status"`
	Version         int64                `json:"version"`
	CreatedBy       string               `json:"createdBy,omitempty"`
	Items           []LiquidationItemDTO `json:"items"`
	Receipts        []ReceiptDTO         `json:"receipts"`
	CreatedAt       string               `json:"createdAt"`
	UpdatedAt       string               `json:"updatedAt"`
}

type LiquidationItemRequest struct {
	FromDestination string          `json:"fromDestination"`
	ToDestination   string          `json:"toDestination"`
	Description     string          `json:"description"`
	Total           decimal.Decimal `json:"total"`
}

type CreateLiquidationRequest struct {
	CashAdvanceID string                   `json:"cashAdvanceId" validate:"required"`
	StoreID       string                   `json:"storeId" validate:"required"`
	TicketID      *string                  `json:"ticketId"`
	Date          string                   `json:"date" validate:"required,datetime=2006-01-02"`
	Remarks       string                   `json:"remarks"`
	Items         []LiquidationItemRequest `json:"items" validate:"required,min=1,dive"`
}

type UpdateLiquidationRequest struct {
	StoreID  *string `json:"storeId" validate:"omitempty,min=1"`
	TicketID *string `json:"ticketId"`
	Date     *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Remarks  *string `json:"remarks"`
	Status   *string `json:"status" validate:"omitempty,oneof=pending approved rejected"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenarioId" validate:"required"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func formatTS(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTSPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTS(*t)
	return &s
}

func toEmployeeDTO(e approval.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:           e.ID,
		Name:         e.Name,
		Role:         e.Role,
		PositionID:   e.PositionID,
		LeaveBalance: e.LeaveBalance,
		CreatedAt:    formatTS(e.CreatedAt),
		UpdatedAt:    formatTS(e.UpdatedAt),
	}
}

func toLedgerEntryDTO(e approval.LedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		ID:             e.ID,
		Kind:           string(e.Kind),
		Days:           e.Days,
		BalanceAfter:   e.BalanceAfter,
		ReferenceID:    e.ReferenceID,
		IdempotencyKey: e.IdempotencyKey,
		Reason:         e.Reason,
		CreatedBy:      e.CreatedBy,
		CreatedAt:      formatTS(e.CreatedAt),
	}
}

func toLeaveRequestDTO(r approval.LeaveRequest) LeaveRequestDTO {
	return LeaveRequestDTO{
		ID:              r.ID,
		EmployeeID:      r.EmployeeID,
		LeaveType:       r.LeaveType,
		StartDate:       r.StartDate.Format(approval.DateLayout),
		EndDate:         r.EndDate.Format(approval.DateLayout),
		Days:            r.Duration(),
		Reason:          r.Reason,
		Status:          string(r.Status),
		ReviewerID:      r.ReviewerID,
		ReviewerComment: r.ReviewerComment,
		ReviewedAt:      formatTSPtr(r.ReviewedAt),
		DebitedDays:     r.DebitedDays,
		CreatedAt:       formatTS(r.CreatedAt),
		UpdatedAt:       formatTS(r.UpdatedAt),
	}
}

func toReviewDTO(r approval.Review) *ReviewDTO {
	if r.Status == approval.LevelUnset {
		return nil
	}
	return &ReviewDTO{
		Status:     string(r.Status),
		ReviewerID: r.ReviewerID,
		ReviewedAt: formatTSPtr(r.ReviewedAt),
		Comment:    r.Comment,
	}
}

func toCashAdvanceDTO(a approval.CashAdvance) CashAdvanceDTO {
	dto := CashAdvanceDTO{
		ID:         a.ID,
		EmployeeID: a.EmployeeID,
		Type:       string(a.Type),
		Amount:     a.Amount,
		Purpose:    a.Purpose,
		Status:     string(a.Status()),
		Level1:     toReviewDTO(a.Level1),
		Level2:     toReviewDTO(a.Level2),
		CreatedAt:  formatTS(a.CreatedAt),
		UpdatedAt:  formatTS(a.UpdatedAt),
	}
	if level, ok := a.ActiveLevel(); ok {
		dto.ActiveLevel = string(level)
	}
	return dto
}

func toLiquidationDTO(l approval.Liquidation) LiquidationDTO {
	dto := LiquidationDTO{
		ID:              l.ID,
		CashAdvanceID:   l.CashAdvanceID,
		StoreID:         l.StoreID,
		TicketID:        l.TicketID,
		Date:            l.Date.Format(approval.DateLayout),
		TotalAmount:     l.TotalAmount,
		ReturnToCompany: l.ReturnToCompany,
		Reimbursement:   l.Reimbursement,
		Remarks:         l.Remarks,
		Status:          string(l.Status),
		Version:         l.Version,
		CreatedBy:       l.CreatedBy,
		Items:           make([]LiquidationItemDTO, len(l.Items)),
		Receipts:        make([]ReceiptDTO, len(l.Receipts)),
		CreatedAt:       formatTS(l.CreatedAt),
		UpdatedAt:       formatTS(l.UpdatedAt),
	}
	for i, it := range l.Items {
		dto.Items[i] = LiquidationItemDTO{
			ID:              it.ID,
			FromDestination: it.FromDestination,
			ToDestination:   it.ToDestination,
			Description:     it.Description,
			Total:           it.Total,
		}
	}
	for i, r := range l.Receipts {
		dto.Receipts[i] = toReceiptDTO(r)
	}
	return dto
}

func toReceiptDTO(r approval.Receipt) ReceiptDTO {
	return ReceiptDTO{
		ID:          r.ID,
		ItemID:      r.ItemID,
		FileName:    r.FileName,
		ContentType: r.ContentType,
		StorageKey:  r.StorageKey,
		Size:        r.Size,
		CreatedAt:   formatTS(r.CreatedAt),
	}
}
