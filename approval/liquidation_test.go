package approval_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/approval-engine/approval"
)

func items(totals ...string) []approval.NewLiquidationItem {
	out := make([]approval.NewLiquidationItem, 0, len(totals))
	for i, t := range totals {
		out = append(out, approval.NewLiquidationItem{
			FromDestination: "office",
			ToDestination:   "site " + string(rune('A'+i)),
			Total:           dec(t),
		})
	}
	return out
}

func (e *testEngine) newLiquidation(t *testing.T, advanceID string, totals ...string) *approval.Liquidation {
	t.Helper()
	liq, err := e.liquidations.Create(context.Background(), e.actor(t, "emp-1"), approval.NewLiquidation{
		CashAdvanceID: advanceID,
		StoreID:       "store-7",
		Date:          date(t, "2025-04-02"),
		Items:         items(totals...),
	})
	require.NoError(t, err)
	return liq
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestReconcile(t *testing.T) {
	tests := []struct {
		name                       string
		advance                    string
		totals                     []string
		total, returned, reimburse string
	}{
		{"underspent", "5000", []string{"3000", "1500"}, "4500", "500", "0"},
		{"overspent", "3000", []string{"2000", "1800"}, "3800", "0", "800"},
		{"exact", "1200.50", []string{"1000", "200.50"}, "1200.50", "0", "0"},
		{"all zero items", "100", []string{"0"}, "0", "100", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			totals := make([]decimal.Decimal, 0, len(tt.totals))
			for _, s := range tt.totals {
				totals = append(totals, dec(s))
			}
			got := approval.Reconcile(dec(tt.advance), totals)
			assertAmount(t, tt.total, got.Total)
			assertAmount(t, tt.returned, got.ReturnToCompany)
			assertAmount(t, tt.reimburse, got.Reimbursement)
			assert.False(t, got.ReturnToCompany.IsPositive() && got.Reimbursement.IsPositive())
		})
	}
}

func TestLiquidation_CreateReturnsRemainder(t *testing.T) {
	e := newTestEngine(t)
	adv := e.newAdvance(t, "5000")

	liq := e.newLiquidation(t, adv.ID, "3000", "1500")

	assertAmount(t, "4500", liq.TotalAmount)
	assertAmount(t, "500", liq.ReturnToCompany)
	assertAmount(t, "0", liq.Reimbursement)
	assert.Equal(t, approval.LiquidationPending, liq.Status)
	assert.Equal(t, "emp-1", liq.CreatedBy)

	stored, err := e.liquidations.Get(context.Background(), liq.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 2)
	assertAmount(t, "4500", stored.TotalAmount)
}

func TestLiquidation_CreateReimbursesOverspend(t *testing.T) {
	e := newTestEngine(t)
	adv := e.newAdvance(t, "3000")

	liq := e.newLiquidation(t, adv.ID, "2000", "1800")

	assertAmount(t, "3800", liq.TotalAmount)
	assertAmount(t, "0", liq.ReturnToCompany)
	assertAmount(t, "800", liq.Reimbursement)
}

func TestLiquidation_CreateValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	adv := e.newAdvance(t, "100")
	actor := e.actor(t, "emp-1")

	_, err := e.liquidations.Create(ctx, actor, approval.NewLiquidation{
		CashAdvanceID: adv.ID, StoreID: "s", Date: date(t, "2025-01-01"),
	})
	assert.ErrorIs(t, err, approval.ErrValidation, "no items")

	_, err = e.liquidations.Create(ctx, actor, approval.NewLiquidation{
		CashAdvanceID: adv.ID, StoreID: "s", Date: date(t, "2025-01-01"), Items: items("10", "-1"),
	})
	var ve *approval.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "items[1].total", ve.Field)

	_, err = e.liquidations.Create(ctx, actor, approval.NewLiquidation{
		CashAdvanceID: "missing", StoreID: "s", Date: date(t, "2025-01-01"), Items: items("10"),
	})
	assert.ErrorIs(t, err, approval.ErrNotFound)

	_, err = e.liquidations.Create(ctx, actor, approval.NewLiquidation{
		CashAdvanceID: adv.ID, Date: date(t, "2025-01-01"), Items: items("10"),
	})
	assert.ErrorIs(t, err, approval.ErrValidation, "no store")
}

// =============================================================================
// EDIT
// =============================================================================

func TestLiquidation_EditDoesNotRecomputeAmounts(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	adv := e.newAdvance(t, "5000")
	liq := e.newLiquidation(t, adv.ID, "3000", "1500")

	edited, err := e.liquidations.Edit(ctx, e.actor(t, "fin-1"), liq.ID, approval.LiquidationPatch{
		StoreID:  ptr("store-9"),
		TicketID: ptr("T-77"),
		Remarks:  ptr("receipts checked"),
		Status:   ptr(approval.LiquidationApproved),
	})
	require.NoError(t, err)

	assert.Equal(t, "store-9", edited.StoreID)
	require.NotNil(t, edited.TicketID)
	assert.Equal(t, "T-77", *edited.TicketID)
	assert.Equal(t, approval.LiquidationApproved, edited.Status)
	assert.Equal(t, liq.Version+1, edited.Version)

	stored, err := e.liquidations.Get(ctx, liq.ID)
	require.NoError(t, err)
	assertAmount(t, "4500", stored.TotalAmount)
	assertAmount(t, "500", stored.ReturnToCompany)
	assert.Equal(t, "receipts checked", stored.Remarks)
}

func TestLiquidation_StatusChangeNeedsReviewer(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	adv := e.newAdvance(t, "100")
	liq := e.newLiquidation(t, adv.ID, "100")

	_, err := e.liquidations.Edit(ctx, e.actor(t, "emp-1"), liq.ID, approval.LiquidationPatch{
		Status: ptr(approval.LiquidationApproved),
	})
	assert.ErrorIs(t, err, approval.ErrPermissionDenied)

	// metadata-only edits are open to the caller
	_, err = e.liquidations.Edit(ctx, e.actor(t, "emp-1"), liq.ID, approval.LiquidationPatch{Remarks: ptr("typo")})
	assert.NoError(t, err)

	_, err = e.liquidations.Edit(ctx, e.actor(t, "fin-1"), liq.ID, approval.LiquidationPatch{
		Status: ptr(approval.LiquidationStatus("paid")),
	})
	assert.ErrorIs(t, err, approval.ErrValidation)
}

func TestLiquidation_StaleEditConflicts(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	adv := e.newAdvance(t, "100")
	liq := e.newLiquidation(t, adv.ID, "100")

	_, err := e.liquidations.Edit(ctx, e.actor(t, "fin-1"), liq.ID, approval.LiquidationPatch{Remarks: ptr("first")})
	require.NoError(t, err)

	err = e.store.WithTx(ctx, func(tx approval.Tx) error {
		return tx.UpdateLiquidation(ctx, *liq, liq.Version)
	})
	assert.ErrorIs(t, err, approval.ErrConcurrencyConflict)
}

// =============================================================================
// DELETE + RECEIPTS
// =============================================================================

func TestLiquidation_DeleteCascades(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	adv := e.newAdvance(t, "5000")
	liq := e.newLiquidation(t, adv.ID, "3000", "1500")

	rec, err := e.liquidations.AttachReceipt(ctx, e.actor(t, "emp-1"), liq.ID, approval.ReceiptUpload{
		ItemID:      &liq.Items[0].ID,
		FileName:    "taxi.pdf",
		ContentType: "application/pdf",
		Body:        []byte("%PDF-1.4"),
	})
	require.NoError(t, err)
	assert.True(t, e.blobs.has(rec.StorageKey))

	require.NoError(t, e.liquidations.Delete(ctx, e.actor(t, "fin-1"), liq.ID))

	_, err = e.liquidations.Get(ctx, liq.ID)
	assert.ErrorIs(t, err, approval.ErrNotFound)
	assert.False(t, e.blobs.has(rec.StorageKey))

	// the advance is untouched
	stored, err := e.advances.Get(ctx, adv.ID)
	require.NoError(t, err)
	assertAmount(t, "5000", stored.Amount)

	remaining, err := e.liquidations.ListByAdvance(ctx, adv.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestLiquidation_DeleteSurvivesBlobFailure(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	adv := e.newAdvance(t, "100")
	liq := e.newLiquidation(t, adv.ID, "100")
	_, err := e.liquidations.AttachReceipt(ctx, e.actor(t, "emp-1"), liq.ID, approval.ReceiptUpload{
		FileName: "r.jpg", ContentType: "image/jpeg", Body: []byte{0xff, 0xd8},
	})
	require.NoError(t, err)

	e.blobs.failDelete = true
	require.NoError(t, e.liquidations.Delete(ctx, e.actor(t, "fin-1"), liq.ID))

	_, err = e.liquidations.Get(ctx, liq.ID)
	assert.ErrorIs(t, err, approval.ErrNotFound)
}

func TestLiquidation_DeleteRequiresReviewer(t *testing.T) {
	e := newTestEngine(t)
	adv := e.newAdvance(t, "100")
	liq := e.newLiquidation(t, adv.ID, "100")

	err := e.liquidations.Delete(context.Background(), e.actor(t, "emp-1"), liq.ID)
	assert.ErrorIs(t, err, approval.ErrPermissionDenied)
}

func TestLiquidation_AttachReceiptValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	adv := e.newAdvance(t, "100")
	liq := e.newLiquidation(t, adv.ID, "100")
	actor := e.actor(t, "emp-1")

	_, err := e.liquidations.AttachReceipt(ctx, actor, liq.ID, approval.ReceiptUpload{FileName: "a.png"})
	assert.ErrorIs(t, err, approval.ErrValidation)

	_, err = e.liquidations.AttachReceipt(ctx, actor, liq.ID, approval.ReceiptUpload{
		ItemID: ptr("nope"), FileName: "a.png", Body: []byte{1},
	})
	assert.ErrorIs(t, err, approval.ErrNotFound)

	rec, err := e.liquidations.AttachReceipt(ctx, actor, liq.ID, approval.ReceiptUpload{
		FileName: "../../etc/passwd.png", Body: []byte{1},
	})
	require.NoError(t, err)
	assert.Equal(t, "passwd.png", rec.FileName)
	assert.Contains(t, rec.StorageKey, "liquidations/"+liq.ID+"/")

	stored, err := e.liquidations.Get(ctx, liq.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Receipts, 1)
}

func TestLiquidation_ListByUnknownAdvance(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.liquidations.ListByAdvance(context.Background(), "missing")
	assert.ErrorIs(t, err, approval.ErrNotFound)
}
