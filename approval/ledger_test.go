package approval_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/approval-engine/approval"
)

func TestLedger_OpenRecordsOpeningEntry(t *testing.T) {
	e := newTestEngine(t)

	entries, err := e.ledger.Entries(context.Background(), "emp-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, approval.EntryOpening, entries[0].Kind)
	assertAmount(t, "10", entries[0].Days)
	assertAmount(t, "10", entries[0].BalanceAfter)
}

func TestLedger_OpenValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.ledger.Open(ctx, approval.NewEmployee{Role: "employee"})
	assert.ErrorIs(t, err, approval.ErrValidation)

	_, err = e.ledger.Open(ctx, approval.NewEmployee{Name: "X", Role: "employee", OpeningBalance: dec("-1")})
	assert.ErrorIs(t, err, approval.ErrValidation)

	// duplicate id
	_, err = e.ledger.Open(ctx, approval.NewEmployee{ID: "emp-1", Name: "Again", Role: "employee"})
	assert.ErrorIs(t, err, approval.ErrValidation)

	emp, err := e.ledger.Open(ctx, approval.NewEmployee{Name: "Generated", Role: "employee"})
	require.NoError(t, err)
	assert.NotEmpty(t, emp.ID)
}

func TestLedger_DebitRejectsNonPositive(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	for _, days := range []string{"0", "-2"} {
		err := e.store.WithTx(ctx, func(tx approval.Tx) error {
			_, err := e.ledger.Debit(ctx, tx, "emp-1", dec(days), approval.Reference{ID: "x"})
			return err
		})
		assert.ErrorIs(t, err, approval.ErrValidation, days)

		err = e.store.WithTx(ctx, func(tx approval.Tx) error {
			_, err := e.ledger.Credit(ctx, tx, "emp-1", dec(days), approval.Reference{ID: "x"})
			return err
		})
		assert.ErrorIs(t, err, approval.ErrValidation, days)
	}
}

func TestLedger_DebitNeverGoesNegative(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	err := e.store.WithTx(ctx, func(tx approval.Tx) error {
		_, err := e.ledger.Debit(ctx, tx, "emp-1", dec("10.5"), approval.Reference{ID: "r1", Key: "k1"})
		return err
	})
	assert.ErrorIs(t, err, approval.ErrInsufficientBalance)
	assertAmount(t, "10", e.balance(t, "emp-1"))

	// exactly the balance is fine
	err = e.store.WithTx(ctx, func(tx approval.Tx) error {
		next, err := e.ledger.Debit(ctx, tx, "emp-1", dec("10"), approval.Reference{ID: "r2", Key: "k2"})
		assert.True(t, next.IsZero())
		return err
	})
	require.NoError(t, err)
	assertAmount(t, "0", e.balance(t, "emp-1"))
}

func TestLedger_DuplicateKeyRollsBack(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	ref := approval.Reference{ID: "r1", Key: "same"}

	require.NoError(t, e.store.WithTx(ctx, func(tx approval.Tx) error {
		_, err := e.ledger.Credit(ctx, tx, "emp-1", dec("1"), ref)
		return err
	}))
	err := e.store.WithTx(ctx, func(tx approval.Tx) error {
		_, err := e.ledger.Credit(ctx, tx, "emp-1", dec("1"), ref)
		return err
	})
	assert.ErrorIs(t, err, approval.ErrDuplicateEntry)
	assert.ErrorIs(t, err, approval.ErrConcurrencyConflict)
	assertAmount(t, "11", e.balance(t, "emp-1"))
}

func TestLedger_Adjust(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	hr := e.actor(t, "hr-1")

	entry, err := e.ledger.Adjust(ctx, hr, approval.Adjustment{
		EmployeeID: "emp-1", Days: dec("2.5"), Reason: "carry-over", IdempotencyKey: "2025-carry",
	})
	require.NoError(t, err)
	assert.Equal(t, approval.EntryAdjustment, entry.Kind)
	assert.Equal(t, "hr-1", entry.CreatedBy)
	assertAmount(t, "12.5", entry.BalanceAfter)
	assertAmount(t, "12.5", e.balance(t, "emp-1"))

	// replaying the same key does not apply twice
	_, err = e.ledger.Adjust(ctx, hr, approval.Adjustment{
		EmployeeID: "emp-1", Days: dec("2.5"), Reason: "carry-over", IdempotencyKey: "2025-carry",
	})
	assert.ErrorIs(t, err, approval.ErrDuplicateEntry)
	assertAmount(t, "12.5", e.balance(t, "emp-1"))

	// negative adjustments obey the floor
	_, err = e.ledger.Adjust(ctx, hr, approval.Adjustment{
		EmployeeID: "emp-1", Days: dec("-20"), Reason: "fix", IdempotencyKey: "fix-1",
	})
	assert.ErrorIs(t, err, approval.ErrInsufficientBalance)
}

func TestLedger_AdjustValidationAndAuthority(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	hr := e.actor(t, "hr-1")

	_, err := e.ledger.Adjust(ctx, e.actor(t, "emp-1"), approval.Adjustment{
		EmployeeID: "emp-1", Days: dec("1"), Reason: "self-service", IdempotencyKey: "k",
	})
	assert.ErrorIs(t, err, approval.ErrPermissionDenied)

	for _, in := range []approval.Adjustment{
		{EmployeeID: "emp-1", Days: dec("0"), Reason: "r", IdempotencyKey: "k"},
		{EmployeeID: "emp-1", Days: dec("1"), IdempotencyKey: "k"},
		{EmployeeID: "emp-1", Days: dec("1"), Reason: "r"},
	} {
		_, err := e.ledger.Adjust(ctx, hr, in)
		assert.ErrorIs(t, err, approval.ErrValidation)
	}

	_, err = e.ledger.Adjust(ctx, hr, approval.Adjustment{
		EmployeeID: "ghost", Days: dec("1"), Reason: "r", IdempotencyKey: "k",
	})
	assert.ErrorIs(t, err, approval.ErrNotFound)
}

func TestLedger_EntriesSumToBalance(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	hr := e.actor(t, "hr-1")

	a := e.newLeave(t, "emp-1", "2025-02-03", "2025-02-05")
	b := e.newLeave(t, "emp-1", "2025-03-10", "2025-03-11")
	_, err := e.leave.Approve(ctx, hr, a.ID, "")
	require.NoError(t, err)
	_, err = e.leave.Approve(ctx, hr, b.ID, "")
	require.NoError(t, err)
	_, err = e.leave.Revoke(ctx, hr, a.ID, "")
	require.NoError(t, err)
	_, err = e.ledger.Adjust(ctx, hr, approval.Adjustment{
		EmployeeID: "emp-1", Days: dec("0.5"), Reason: "bonus", IdempotencyKey: "b1",
	})
	require.NoError(t, err)

	entries, err := e.ledger.Entries(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, entries, 5)

	sum := decimal.Zero
	for _, en := range entries {
		sum = sum.Add(en.Days)
	}
	balance := e.balance(t, "emp-1")
	assert.True(t, sum.Equal(balance), "entries sum %s, balance %s", sum, balance)
	assertAmount(t, "8.5", balance)
	assert.True(t, entries[len(entries)-1].BalanceAfter.Equal(balance))
}

func TestLedger_EntriesUnknownEmployee(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.ledger.Entries(context.Background(), "ghost")
	assert.ErrorIs(t, err, approval.ErrNotFound)
}
