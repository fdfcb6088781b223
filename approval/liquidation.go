/*
liquidation.go - Expense liquidation against a cash advance

PURPOSE:
  A liquidation lists what an advance was spent on and settles the
  difference with the company.

RECONCILIATION (computed once, at creation):
  total  = sum(item totals)
  delta  = advance amount - total
  delta > 0  → employee returns delta     (ReturnToCompany)
  delta < 0  → company reimburses -delta  (Reimbursement)
  delta = 0  → both zero

  Example: advance 5000, items 3000 + 1500 → return 500
           advance 3000, items 2000 + 1800 → reimburse 800

EDITS:
  Edit changes metadata and the review status only. Amounts stay as computed
  at creation. Every edit is guarded by Version.

DELETION:
  Items, receipt rows and the liquidation go in one transaction. Receipt
  blobs are removed after commit; a failed blob delete is logged and does
  not undo the deletion. The cash advance is never touched.

SEE ALSO:
  - receipts/: BlobStore implementations
*/
package approval

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Settlement is the result of reconciling an advance against its expenses.
type Settlement struct {
	Total           decimal.Decimal
	ReturnToCompany decimal.Decimal
	Reimbursement   decimal.Decimal
}

// Reconcile computes the settlement of an advance against item totals.
func Reconcile(advance decimal.Decimal, totals []decimal.Decimal) Settlement {
	total := decimal.Zero
	for _, t := range totals {
		total = total.Add(t)
	}
	s := Settlement{Total: total, ReturnToCompany: decimal.Zero, Reimbursement: decimal.Zero}
	switch delta := advance.Sub(total); {
	case delta.IsPositive():
		s.ReturnToCompany = delta
	case delta.IsNegative():
		s.Reimbursement = delta.Neg()
	}
	return s
}

// =============================================================================
// INPUTS
// =============================================================================

type NewLiquidationItem struct {
	FromDestination string
	ToDestination   string
	Description     string
	Total           decimal.Decimal
}

type NewLiquidation struct {
	CashAdvanceID string
	StoreID       string
	TicketID      *string
	Date          time.Time
	Remarks       string
	Items         []NewLiquidationItem
}

// LiquidationPatch holds the fields an edit may change. Nil means unchanged.
type LiquidationPatch struct {
	StoreID  *string
	TicketID *string
	Date     *time.Time
	Remarks  *string
	Status   *LiquidationStatus
}

// ReceiptUpload is a file to attach to a liquidation.
type ReceiptUpload struct {
	ItemID      *string
	FileName    string
	ContentType string
	Body        []byte
}

// =============================================================================
// SERVICE
// =============================================================================

type LiquidationService struct {
	store  Store
	blobs  BlobStore
	gate   *Gate
	logger *zap.Logger
	now    func() time.Time
}

func NewLiquidationService(store Store, blobs BlobStore, gate *Gate, logger *zap.Logger) *LiquidationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiquidationService{store: store, blobs: blobs, gate: gate, logger: logger, now: time.Now}
}

func (s *LiquidationService) Create(ctx context.Context, actor Actor, in NewLiquidation) (*Liquidation, error) {
	if strings.TrimSpace(in.CashAdvanceID) == "" {
		return nil, &ValidationError{Field: "cashAdvanceId", Message: "is required"}
	}
	if strings.TrimSpace(in.StoreID) == "" {
		return nil, &ValidationError{Field: "storeId", Message: "is required"}
	}
	if in.Date.IsZero() {
		return nil, &ValidationError{Field: "date", Message: "is required"}
	}
	if len(in.Items) == 0 {
		return nil, &ValidationError{Field: "items", Message: "at least one item is required"}
	}
	totals := make([]decimal.Decimal, 0, len(in.Items))
	for i, item := range in.Items {
		if item.Total.IsNegative() {
			return nil, &ValidationError{Field: fmt.Sprintf("items[%d].total", i), Message: "must not be negative"}
		}
		totals = append(totals, item.Total)
	}

	adv, err := s.store.GetCashAdvance(ctx, in.CashAdvanceID)
	if err != nil {
		return nil, err
	}
	settlement := Reconcile(adv.Amount, totals)

	at := s.now().UTC()
	liq := Liquidation{
		ID:              uuid.NewString(),
		CashAdvanceID:   adv.ID,
		StoreID:         strings.TrimSpace(in.StoreID),
		TicketID:        in.TicketID,
		Date:            truncateDay(in.Date),
		TotalAmount:     settlement.Total,
		ReturnToCompany: settlement.ReturnToCompany,
		Reimbursement:   settlement.Reimbursement,
		Remarks:         in.Remarks,
		Status:          LiquidationPending,
		Version:         1,
		CreatedBy:       actor.EmployeeID,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
	for _, item := range in.Items {
		liq.Items = append(liq.Items, LiquidationItem{
			ID:              uuid.NewString(),
			LiquidationID:   liq.ID,
			FromDestination: item.FromDestination,
			ToDestination:   item.ToDestination,
			Description:     item.Description,
			Total:           item.Total,
		})
	}

	if err := s.store.WithTx(ctx, func(tx Tx) error {
		return tx.InsertLiquidation(ctx, liq)
	}); err != nil {
		return nil, err
	}

	s.logger.Info("liquidation created",
		zap.String("liquidation_id", liq.ID),
		zap.String("advance_id", adv.ID),
		zap.String("total", liq.TotalAmount.String()),
		zap.String("return_to_company", liq.ReturnToCompany.String()),
		zap.String("reimbursement", liq.Reimbursement.String()))
	return &liq, nil
}

func (s *LiquidationService) Get(ctx context.Context, id string) (*Liquidation, error) {
	return s.store.GetLiquidation(ctx, id)
}

// ListByAdvance returns the liquidations filed against one advance.
func (s *LiquidationService) ListByAdvance(ctx context.Context, cashAdvanceID string) ([]Liquidation, error) {
	if _, err := s.store.GetCashAdvance(ctx, cashAdvanceID); err != nil {
		return nil, err
	}
	return s.store.ListLiquidations(ctx, cashAdvanceID)
}

// Edit applies a patch. Changing the status requires liquidation.review.
func (s *LiquidationService) Edit(ctx context.Context, actor Actor, id string, patch LiquidationPatch) (*Liquidation, error) {
	liq, err := s.store.GetLiquidation(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *liq
	if patch.Status != nil && *patch.Status != liq.Status {
		if !patch.Status.IsValid() {
			return nil, &ValidationError{Field: "status", Message: "unknown liquidation status " + string(*patch.Status)}
		}
		if err := s.gate.Authorize(actor, CapLiquidationReview); err != nil {
			return nil, err
		}
		next.Status = *patch.Status
	}
	if patch.StoreID != nil {
		if strings.TrimSpace(*patch.StoreID) == "" {
			return nil, &ValidationError{Field: "storeId", Message: "must not be empty"}
		}
		next.StoreID = strings.TrimSpace(*patch.StoreID)
	}
	if patch.TicketID != nil {
		next.TicketID = patch.TicketID
		if *patch.TicketID == "" {
			next.TicketID = nil
		}
	}
	if patch.Date != nil {
		if patch.Date.IsZero() {
			return nil, &ValidationError{Field: "date", Message: "must not be empty"}
		}
		next.Date = truncateDay(*patch.Date)
	}
	if patch.Remarks != nil {
		next.Remarks = *patch.Remarks
	}
	next.UpdatedAt = s.now().UTC()
	next.Version = liq.Version + 1

	if err := s.store.WithTx(ctx, func(tx Tx) error {
		return tx.UpdateLiquidation(ctx, next, liq.Version)
	}); err != nil {
		return nil, err
	}

	s.logger.Info("liquidation edited",
		zap.String("liquidation_id", id),
		zap.String("actor", actor.EmployeeID),
		zap.String("status", string(next.Status)),
		zap.Int64("version", next.Version))
	return &next, nil
}

// Delete removes a liquidation and everything it owns.
func (s *LiquidationService) Delete(ctx context.Context, actor Actor, id string) error {
	if err := s.gate.Authorize(actor, CapLiquidationReview); err != nil {
		return err
	}

	var removed []Receipt
	if err := s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		removed, err = tx.DeleteLiquidation(ctx, id)
		return err
	}); err != nil {
		return err
	}

	for _, rec := range removed {
		if s.blobs == nil {
			break
		}
		if err := s.blobs.Delete(ctx, rec.StorageKey); err != nil {
			s.logger.Warn("failed to delete receipt blob",
				zap.String("liquidation_id", id),
				zap.String("storage_key", rec.StorageKey),
				zap.Error(err))
		}
	}

	s.logger.Info("liquidation deleted",
		zap.String("liquidation_id", id),
		zap.String("actor", actor.EmployeeID),
		zap.Int("receipts", len(removed)))
	return nil
}

// AttachReceipt stores the file and records it against the liquidation.
func (s *LiquidationService) AttachReceipt(ctx context.Context, actor Actor, id string, upload ReceiptUpload) (*Receipt, error) {
	if s.blobs == nil {
		return nil, fmt.Errorf("receipt storage is not configured")
	}
	if len(upload.Body) == 0 {
		return nil, &ValidationError{Field: "file", Message: "is empty"}
	}
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(upload.FileName), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return nil, &ValidationError{Field: "file", Message: "file name is required"}
	}

	liq, err := s.store.GetLiquidation(ctx, id)
	if err != nil {
		return nil, err
	}
	if upload.ItemID != nil && !hasItem(liq.Items, *upload.ItemID) {
		return nil, &NotFoundError{Entity: "liquidation item", ID: *upload.ItemID}
	}

	rec := Receipt{
		ID:            uuid.NewString(),
		LiquidationID: id,
		ItemID:        upload.ItemID,
		FileName:      name,
		ContentType:   upload.ContentType,
		Size:          int64(len(upload.Body)),
		CreatedAt:     s.now().UTC(),
	}
	rec.StorageKey = path.Join("liquidations", id, rec.ID+path.Ext(name))

	if err := s.blobs.Put(ctx, rec.StorageKey, upload.Body, upload.ContentType); err != nil {
		return nil, fmt.Errorf("store receipt: %w", err)
	}
	if err := s.store.WithTx(ctx, func(tx Tx) error {
		return tx.InsertReceipt(ctx, rec)
	}); err != nil {
		if derr := s.blobs.Delete(ctx, rec.StorageKey); derr != nil {
			s.logger.Warn("failed to clean up receipt blob",
				zap.String("storage_key", rec.StorageKey),
				zap.Error(derr))
		}
		return nil, err
	}

	s.logger.Info("receipt attached",
		zap.String("liquidation_id", id),
		zap.String("receipt_id", rec.ID),
		zap.String("actor", actor.EmployeeID),
		zap.Int64("size", rec.Size))
	return &rec, nil
}

func hasItem(items []LiquidationItem, id string) bool {
	for _, it := range items {
		if it.ID == id {
			return true
		}
	}
	return false
}
