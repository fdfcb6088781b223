package approval_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/approval-engine/approval"
	"github.com/warp/approval-engine/approval/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testEngine struct {
	store        approval.Store
	gate         *approval.Gate
	ledger       *approval.Ledger
	leave        *approval.LeaveService
	advances     *approval.CashAdvanceService
	liquidations *approval.LiquidationService
	blobs        *memBlobs
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	return newTestEngineWithStore(t, store.NewMemory())
}

func newTestEngineWithStore(t *testing.T, s approval.Store) *testEngine {
	t.Helper()
	gate := approval.NewGate(s, approval.DefaultPolicy())
	ledger := approval.NewLedger(s, gate, nil)
	blobs := newMemBlobs()
	e := &testEngine{
		store:        s,
		gate:         gate,
		ledger:       ledger,
		leave:        approval.NewLeaveService(s, ledger, gate, nil),
		advances:     approval.NewCashAdvanceService(s, gate, nil),
		liquidations: approval.NewLiquidationService(s, blobs, gate, nil),
		blobs:        blobs,
	}
	e.seed(t)
	return e
}

func ptr[T any](v T) *T { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := approval.ParseDate(s)
	require.NoError(t, err)
	return d
}

// seed creates the cast used across tests:
//
//	emp-1    employee, 10 days
//	hr-1     hr
//	sup-1    employee at position supervisor
//	fin-1    finance
//	admin-1  admin (superuser)
func (e *testEngine) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, in := range []approval.NewEmployee{
		{ID: "emp-1", Name: "Ana", Role: "employee", OpeningBalance: dec("10")},
		{ID: "hr-1", Name: "Hugo", Role: "hr", OpeningBalance: dec("15")},
		{ID: "sup-1", Name: "Sol", Role: "employee", PositionID: ptr("supervisor"), OpeningBalance: dec("15")},
		{ID: "fin-1", Name: "Fin", Role: "finance", OpeningBalance: dec("15")},
		{ID: "admin-1", Name: "Ada", Role: "admin", OpeningBalance: dec("15")},
	} {
		_, err := e.ledger.Open(ctx, in)
		require.NoError(t, err)
	}
}

func (e *testEngine) actor(t *testing.T, id string) approval.Actor {
	t.Helper()
	a, err := e.gate.Resolve(context.Background(), id)
	require.NoError(t, err)
	return a
}

func (e *testEngine) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	emp, err := e.store.GetEmployee(context.Background(), id)
	require.NoError(t, err)
	return emp.LeaveBalance
}

func (e *testEngine) newLeave(t *testing.T, employeeID, start, end string) *approval.LeaveRequest {
	t.Helper()
	req, err := e.leave.Create(context.Background(), approval.NewLeaveRequest{
		EmployeeID: employeeID,
		LeaveType:  "vacation",
		StartDate:  date(t, start),
		EndDate:    date(t, end),
		Reason:     "trip",
	})
	require.NoError(t, err)
	return req
}

func (e *testEngine) newAdvance(t *testing.T, amount string) *approval.CashAdvance {
	t.Helper()
	adv, err := e.advances.Create(context.Background(), approval.NewCashAdvance{
		EmployeeID: "emp-1",
		Type:       approval.AdvanceSupport,
		Amount:     dec(amount),
		Purpose:    "site visit",
	})
	require.NoError(t, err)
	return adv
}

// =============================================================================
// FAKE BLOB STORE
// =============================================================================

type memBlobs struct {
	mu         sync.Mutex
	objects    map[string][]byte
	failDelete bool
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: make(map[string][]byte)}
}

func (b *memBlobs) Put(_ context.Context, key string, body []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = append([]byte(nil), body...)
	return nil
}

func (b *memBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failDelete {
		return context.DeadlineExceeded
	}
	delete(b.objects, key)
	return nil
}

func (b *memBlobs) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}
