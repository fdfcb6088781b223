package approval_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/approval-engine/approval"
)

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, got.Equal(dec(want)), "want %s, got %s", want, got)
}

// =============================================================================
// BALANCE ROUND TRIP
// =============================================================================

func TestLeave_ApproveThenRevokeRestoresBalance(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	hr := e.actor(t, "hr-1")

	// GIVEN: balance 10 and a 5-day request (Mar 1..Mar 5 inclusive)
	req := e.newLeave(t, "emp-1", "2025-03-01", "2025-03-05")
	assert.Equal(t, approval.LeavePending, req.Status)
	assertAmount(t, "10", e.balance(t, "emp-1"))

	// WHEN: approved
	approved, err := e.leave.Approve(ctx, hr, req.ID, "enjoy")
	require.NoError(t, err)

	// THEN: balance 5, reviewer metadata set, duration recorded
	assert.Equal(t, approval.LeaveApproved, approved.Status)
	require.NotNil(t, approved.ReviewerID)
	assert.Equal(t, "hr-1", *approved.ReviewerID)
	assert.NotNil(t, approved.ReviewedAt)
	assert.Equal(t, "enjoy", approved.ReviewerComment)
	assertAmount(t, "5", approved.DebitedDays)
	assertAmount(t, "5", e.balance(t, "emp-1"))

	// WHEN: revoked
	revoked, err := e.leave.Revoke(ctx, hr, req.ID, "")
	require.NoError(t, err)

	// THEN: balance back to 10
	assert.Equal(t, approval.LeaveRevoked, revoked.Status)
	assertAmount(t, "10", e.balance(t, "emp-1"))

	stored, err := e.leave.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, approval.LeaveRevoked, stored.Status)
}

func TestLeave_SingleDayRequestDebitsOne(t *testing.T) {
	e := newTestEngine(t)
	req := e.newLeave(t, "emp-1", "2025-06-10", "2025-06-10")

	_, err := e.leave.Approve(context.Background(), e.actor(t, "hr-1"), req.ID, "")
	require.NoError(t, err)
	assertAmount(t, "9", e.balance(t, "emp-1"))
}

func TestLeave_RevokeCreditsDebitedDaysNotDates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	hr := e.actor(t, "hr-1")

	req := e.newLeave(t, "emp-1", "2025-03-01", "2025-03-03")
	_, err := e.leave.Approve(ctx, hr, req.ID, "")
	require.NoError(t, err)
	assertAmount(t, "7", e.balance(t, "emp-1"))

	// Tamper with the dates after approval; revoke must still credit 3.
	require.NoError(t, e.store.WithTx(ctx, func(tx approval.Tx) error {
		cur, err := tx.GetLeaveRequest(ctx, req.ID)
		if err != nil {
			return err
		}
		cur.EndDate = date(t, "2025-03-10")
		return tx.UpdateLeaveRequest(ctx, *cur, approval.LeaveApproved)
	}))

	_, err = e.leave.Revoke(ctx, hr, req.ID, "")
	require.NoError(t, err)
	assertAmount(t, "10", e.balance(t, "emp-1"))
}

// =============================================================================
// TRANSITION GUARDS
// =============================================================================

func TestLeave_TransitionGuards(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   []approval.LeaveAction
		action  approval.LeaveAction
		wantErr error
	}{
		{"revoke pending", nil, approval.LeaveActionRevoke, approval.ErrInvalidTransition},
		{"approve approved", []approval.LeaveAction{approval.LeaveActionApprove}, approval.LeaveActionApprove, approval.ErrInvalidTransition},
		{"reject approved", []approval.LeaveAction{approval.LeaveActionApprove}, approval.LeaveActionReject, approval.ErrInvalidTransition},
		{"approve rejected", []approval.LeaveAction{approval.LeaveActionReject}, approval.LeaveActionApprove, approval.ErrInvalidTransition},
		{"revoke rejected", []approval.LeaveAction{approval.LeaveActionReject}, approval.LeaveActionRevoke, approval.ErrInvalidTransition},
		{"approve revoked", []approval.LeaveAction{approval.LeaveActionApprove, approval.LeaveActionRevoke}, approval.LeaveActionApprove, approval.ErrInvalidTransition},
		{"revoke revoked", []approval.LeaveAction{approval.LeaveActionApprove, approval.LeaveActionRevoke}, approval.LeaveActionRevoke, approval.ErrInvalidTransition},
		{"reject pending", nil, approval.LeaveActionReject, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			hr := e.actor(t, "hr-1")
			req := e.newLeave(t, "emp-1", "2025-03-01", "2025-03-02")
			for _, a := range tt.setup {
				_, err := e.leave.Transition(ctx, hr, req.ID, a, "")
				require.NoError(t, err)
			}
			before := e.balance(t, "emp-1")

			_, err := e.leave.Transition(ctx, hr, req.ID, tt.action, "")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, e.balance(t, "emp-1").Equal(before), "balance must not change on a refused transition")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLeave_RejectLeavesBalanceUntouched(t *testing.T) {
	e := newTestEngine(t)
	req := e.newLeave(t, "emp-1", "2025-03-01", "2025-03-05")

	rejected, err := e.leave.Reject(context.Background(), e.actor(t, "hr-1"), req.ID, "busy season")
	require.NoError(t, err)
	assert.Equal(t, approval.LeaveRejected, rejected.Status)
	assert.Equal(t, "busy season", rejected.ReviewerComment)
	assertAmount(t, "10", e.balance(t, "emp-1"))
}

func TestLeave_InsufficientBalanceKeepsRequestPending(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// 11 days against a balance of 10
	req := e.newLeave(t, "emp-1", "2025-03-01", "2025-03-11")

	_, err := e.leave.Approve(ctx, e.actor(t, "hr-1"), req.ID, "")
	require.ErrorIs(t, err, approval.ErrInsufficientBalance)

	var ib *approval.InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assertAmount(t, "10", ib.Available)
	assertAmount(t, "11", ib.Requested)

	stored, err := e.leave.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, approval.LeavePending, stored.Status, "status write must roll back with the failed debit")
	assertAmount(t, "10", e.balance(t, "emp-1"))
}

func TestLeave_ReviewRequiresAuthority(t *testing.T) {
	e := newTestEngine(t)
	req := e.newLeave(t, "emp-1", "2025-03-01", "2025-03-02")

	_, err := e.leave.Approve(context.Background(), e.actor(t, "fin-1"), req.ID, "")
	assert.ErrorIs(t, err, approval.ErrPermissionDenied)

	// supervisors review leave by position
	_, err = e.leave.Approve(context.Background(), e.actor(t, "sup-1"), req.ID, "")
	assert.NoError(t, err)
}

func TestLeave_UnknownRequest(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.leave.Approve(context.Background(), e.actor(t, "hr-1"), "missing", "")
	assert.ErrorIs(t, err, approval.ErrNotFound)
}

// =============================================================================
// CREATE VALIDATION
// =============================================================================

func TestLeave_CreateValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		in      approval.NewLeaveRequest
		wantErr error
	}{
		{"missing employee", approval.NewLeaveRequest{LeaveType: "vacation", StartDate: date(t, "2025-01-01"), EndDate: date(t, "2025-01-02")}, approval.ErrValidation},
		{"missing type", approval.NewLeaveRequest{EmployeeID: "emp-1", StartDate: date(t, "2025-01-01"), EndDate: date(t, "2025-01-02")}, approval.ErrValidation},
		{"end before start", approval.NewLeaveRequest{EmployeeID: "emp-1", LeaveType: "vacation", StartDate: date(t, "2025-01-05"), EndDate: date(t, "2025-01-02")}, approval.ErrValidation},
		{"missing dates", approval.NewLeaveRequest{EmployeeID: "emp-1", LeaveType: "vacation"}, approval.ErrValidation},
		{"unknown employee", approval.NewLeaveRequest{EmployeeID: "ghost", LeaveType: "vacation", StartDate: date(t, "2025-01-01"), EndDate: date(t, "2025-01-02")}, approval.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.leave.Create(ctx, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLeave_ListFilters(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := e.newLeave(t, "emp-1", "2025-03-01", "2025-03-01")
	e.newLeave(t, "emp-1", "2025-04-01", "2025-04-01")
	e.newLeave(t, "hr-1", "2025-05-01", "2025-05-01")
	_, err := e.leave.Approve(ctx, e.actor(t, "hr-1"), a.ID, "")
	require.NoError(t, err)

	mine, err := e.leave.List(ctx, approval.LeaveFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	pending, err := e.leave.List(ctx, approval.LeaveFilter{Status: approval.LeavePending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	_, err = e.leave.List(ctx, approval.LeaveFilter{Status: "archived"})
	assert.ErrorIs(t, err, approval.ErrValidation)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

// barrierStore makes every GetLeaveRequest caller wait until all expected
// callers have read, so both approvers see "pending" before either writes.
type barrierStore struct {
	approval.Store
	reads sync.WaitGroup
}

func (b *barrierStore) GetLeaveRequest(ctx context.Context, id string) (*approval.LeaveRequest, error) {
	req, err := b.Store.GetLeaveRequest(ctx, id)
	b.reads.Done()
	b.reads.Wait()
	return req, err
}

func TestLeave_ConcurrentApproveDebitsOnce(t *testing.T) {
	base := newTestEngine(t)
	ctx := context.Background()
	req := base.newLeave(t, "emp-1", "2025-03-01", "2025-03-04")

	gated := &barrierStore{Store: base.store}
	gated.reads.Add(2)
	gate := approval.NewGate(base.store, approval.DefaultPolicy())
	ledger := approval.NewLedger(gated, gate, nil)
	svc := approval.NewLeaveService(gated, ledger, gate, nil)

	actors := []approval.Actor{base.actor(t, "hr-1"), base.actor(t, "admin-1")}
	errs := make([]error, len(actors))
	var wg sync.WaitGroup
	for i, a := range actors {
		wg.Add(1)
		go func(i int, a approval.Actor) {
			defer wg.Done()
			_, errs[i] = svc.Approve(ctx, a, req.ID, "")
		}(i, a)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, approval.ErrConcurrencyConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
	assertAmount(t, "6", base.balance(t, "emp-1"))

	entries, err := base.ledger.Entries(ctx, "emp-1")
	require.NoError(t, err)
	var debits int
	for _, en := range entries {
		if en.Kind == approval.EntryDebit {
			debits++
		}
	}
	assert.Equal(t, 1, debits)
}
