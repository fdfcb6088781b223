// Package store provides an in-memory approval.Store.
package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/approval-engine/approval"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps everything in maps. WithTx works on a copy of the data and
// swaps it in on success, so a failed callback leaves no trace.
type Memory struct {
	mu sync.RWMutex
	d  *data
}

var _ approval.Store = (*Memory)(nil)

type data struct {
	employees    map[string]approval.Employee
	entries      map[string][]approval.LedgerEntry
	idempotency  map[string]bool
	leave        map[string]approval.LeaveRequest
	leaveOrder   []string
	advances     map[string]approval.CashAdvance
	liquidations map[string]approval.Liquidation
	liqOrder     []string
	items        map[string][]approval.LiquidationItem
	receipts     map[string][]approval.Receipt
}

func NewMemory() *Memory {
	return &Memory{d: &data{
		employees:    make(map[string]approval.Employee),
		entries:      make(map[string][]approval.LedgerEntry),
		idempotency:  make(map[string]bool),
		leave:        make(map[string]approval.LeaveRequest),
		advances:     make(map[string]approval.CashAdvance),
		liquidations: make(map[string]approval.Liquidation),
		items:        make(map[string][]approval.LiquidationItem),
		receipts:     make(map[string][]approval.Receipt),
	}}
}

func (d *data) clone() *data {
	c := &data{
		employees:    maps.Clone(d.employees),
		entries:      make(map[string][]approval.LedgerEntry, len(d.entries)),
		idempotency:  maps.Clone(d.idempotency),
		leave:        maps.Clone(d.leave),
		leaveOrder:   slices.Clone(d.leaveOrder),
		advances:     maps.Clone(d.advances),
		liquidations: maps.Clone(d.liquidations),
		liqOrder:     slices.Clone(d.liqOrder),
		items:        make(map[string][]approval.LiquidationItem, len(d.items)),
		receipts:     make(map[string][]approval.Receipt, len(d.receipts)),
	}
	for k, v := range d.entries {
		c.entries[k] = slices.Clone(v)
	}
	for k, v := range d.items {
		c.items[k] = slices.Clone(v)
	}
	for k, v := range d.receipts {
		c.receipts[k] = slices.Clone(v)
	}
	return c
}

// WithTx runs fn against a private copy. Writers are serialized.
func (m *Memory) WithTx(_ context.Context, fn func(tx approval.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.d.clone()
	if err := fn(&memTx{d: work}); err != nil {
		return err
	}
	m.d = work
	return nil
}

// =============================================================================
// READS - Outside a transaction
// =============================================================================

func (m *Memory) GetEmployee(_ context.Context, id string) (*approval.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.getEmployee(id)
}

func (m *Memory) ListEmployees(_ context.Context) ([]approval.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.listEmployees(), nil
}

func (m *Memory) ListLedgerEntries(_ context.Context, employeeID string) ([]approval.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.d.entries[employeeID]), nil
}

func (m *Memory) GetLeaveRequest(_ context.Context, id string) (*approval.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.getLeave(id)
}

func (m *Memory) ListLeaveRequests(_ context.Context, filter approval.LeaveFilter) ([]approval.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.listLeave(filter), nil
}

func (m *Memory) GetCashAdvance(_ context.Context, id string) (*approval.CashAdvance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.getAdvance(id)
}

func (m *Memory) GetLiquidation(_ context.Context, id string) (*approval.Liquidation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.getLiquidation(id)
}

func (m *Memory) ListLiquidations(_ context.Context, cashAdvanceID string) ([]approval.Liquidation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.listLiquidations(cashAdvanceID), nil
}

// =============================================================================
// SHARED READ HELPERS - Caller holds the lock
// =============================================================================

func (d *data) getEmployee(id string) (*approval.Employee, error) {
	emp, ok := d.employees[id]
	if !ok {
		return nil, &approval.NotFoundError{Entity: "employee", ID: id}
	}
	return &emp, nil
}

func (d *data) listEmployees() []approval.Employee {
	out := make([]approval.Employee, 0, len(d.employees))
	for _, e := range d.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *data) getLeave(id string) (*approval.LeaveRequest, error) {
	req, ok := d.leave[id]
	if !ok {
		return nil, &approval.NotFoundError{Entity: "leave request", ID: id}
	}
	return &req, nil
}

func (d *data) listLeave(filter approval.LeaveFilter) []approval.LeaveRequest {
	var out []approval.LeaveRequest
	for _, id := range d.leaveOrder {
		req := d.leave[id]
		if filter.EmployeeID != "" && req.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, req)
	}
	return out
}

func (d *data) getAdvance(id string) (*approval.CashAdvance, error) {
	adv, ok := d.advances[id]
	if !ok {
		return nil, &approval.NotFoundError{Entity: "cash advance", ID: id}
	}
	return &adv, nil
}

func (d *data) getLiquidation(id string) (*approval.Liquidation, error) {
	liq, ok := d.liquidations[id]
	if !ok {
		return nil, &approval.NotFoundError{Entity: "liquidation", ID: id}
	}
	liq.Items = slices.Clone(d.items[id])
	liq.Receipts = slices.Clone(d.receipts[id])
	return &liq, nil
}

func (d *data) listLiquidations(cashAdvanceID string) []approval.Liquidation {
	var out []approval.Liquidation
	for _, id := range d.liqOrder {
		if d.liquidations[id].CashAdvanceID != cashAdvanceID {
			continue
		}
		liq, _ := d.getLiquidation(id)
		out = append(out, *liq)
	}
	return out
}

// =============================================================================
// TRANSACTION - Reads and writes against the working copy
// =============================================================================

type memTx struct {
	d *data
}

func (t *memTx) GetEmployee(_ context.Context, id string) (*approval.Employee, error) {
	return t.d.getEmployee(id)
}

func (t *memTx) ListEmployees(_ context.Context) ([]approval.Employee, error) {
	return t.d.listEmployees(), nil
}

func (t *memTx) ListLedgerEntries(_ context.Context, employeeID string) ([]approval.LedgerEntry, error) {
	return slices.Clone(t.d.entries[employeeID]), nil
}

func (t *memTx) GetLeaveRequest(_ context.Context, id string) (*approval.LeaveRequest, error) {
	return t.d.getLeave(id)
}

func (t *memTx) ListLeaveRequests(_ context.Context, filter approval.LeaveFilter) ([]approval.LeaveRequest, error) {
	return t.d.listLeave(filter), nil
}

func (t *memTx) GetCashAdvance(_ context.Context, id string) (*approval.CashAdvance, error) {
	return t.d.getAdvance(id)
}

func (t *memTx) GetLiquidation(_ context.Context, id string) (*approval.Liquidation, error) {
	return t.d.getLiquidation(id)
}

func (t *memTx) ListLiquidations(_ context.Context, cashAdvanceID string) ([]approval.Liquidation, error) {
	return t.d.listLiquidations(cashAdvanceID), nil
}

func (t *memTx) InsertEmployee(_ context.Context, emp approval.Employee) error {
	if _, exists := t.d.employees[emp.ID]; exists {
		return &approval.ValidationError{Field: "id", Message: "employee " + emp.ID + " already exists"}
	}
	t.d.employees[emp.ID] = emp
	return nil
}

func (t *memTx) SetLeaveBalance(_ context.Context, employeeID string, expectedVersion int64, balance decimal.Decimal, at time.Time) error {
	emp, ok := t.d.employees[employeeID]
	if !ok {
		return &approval.NotFoundError{Entity: "employee", ID: employeeID}
	}
	if emp.Version != expectedVersion {
		return &approval.ConflictError{Entity: "employee", ID: employeeID}
	}
	emp.LeaveBalance = balance
	emp.Version++
	emp.UpdatedAt = at
	t.d.employees[employeeID] = emp
	return nil
}

func (t *memTx) AppendLedgerEntry(_ context.Context, entry approval.LedgerEntry) error {
	if entry.IdempotencyKey != "" {
		if t.d.idempotency[entry.IdempotencyKey] {
			return approval.ErrDuplicateEntry
		}
		t.d.idempotency[entry.IdempotencyKey] = true
	}
	t.d.entries[entry.EmployeeID] = append(t.d.entries[entry.EmployeeID], entry)
	return nil
}

func (t *memTx) InsertLeaveRequest(_ context.Context, req approval.LeaveRequest) error {
	if _, ok := t.d.employees[req.EmployeeID]; !ok {
		return &approval.NotFoundError{Entity: "employee", ID: req.EmployeeID}
	}
	t.d.leave[req.ID] = req
	t.d.leaveOrder = append(t.d.leaveOrder, req.ID)
	return nil
}

func (t *memTx) UpdateLeaveRequest(_ context.Context, req approval.LeaveRequest, expected approval.LeaveStatus) error {
	cur, ok := t.d.leave[req.ID]
	if !ok {
		return &approval.NotFoundError{Entity: "leave request", ID: req.ID}
	}
	if cur.Status != expected {
		return &approval.ConflictError{Entity: "leave request", ID: req.ID}
	}
	t.d.leave[req.ID] = req
	return nil
}

func (t *memTx) InsertCashAdvance(_ context.Context, adv approval.CashAdvance) error {
	if _, ok := t.d.employees[adv.EmployeeID]; !ok {
		return &approval.NotFoundError{Entity: "employee", ID: adv.EmployeeID}
	}
	t.d.advances[adv.ID] = adv
	return nil
}

func (t *memTx) UpdateCashAdvance(_ context.Context, adv approval.CashAdvance, level approval.Level, expected approval.LevelStatus) error {
	cur, ok := t.d.advances[adv.ID]
	if !ok {
		return &approval.NotFoundError{Entity: "cash advance", ID: adv.ID}
	}
	if cur.Review(level).Status != expected {
		return &approval.ConflictError{Entity: "cash advance", ID: adv.ID}
	}
	t.d.advances[adv.ID] = adv
	return nil
}

func (t *memTx) InsertLiquidation(_ context.Context, liq approval.Liquidation) error {
	if _, ok := t.d.advances[liq.CashAdvanceID]; !ok {
		return &approval.NotFoundError{Entity: "cash advance", ID: liq.CashAdvanceID}
	}
	items := slices.Clone(liq.Items)
	liq.Items, liq.Receipts = nil, nil
	t.d.liquidations[liq.ID] = liq
	t.d.liqOrder = append(t.d.liqOrder, liq.ID)
	t.d.items[liq.ID] = items
	return nil
}

func (t *memTx) UpdateLiquidation(_ context.Context, liq approval.Liquidation, expectedVersion int64) error {
	cur, ok := t.d.liquidations[liq.ID]
	if !ok {
		return &approval.NotFoundError{Entity: "liquidation", ID: liq.ID}
	}
	if cur.Version != expectedVersion {
		return &approval.ConflictError{Entity: "liquidation", ID: liq.ID}
	}
	cur.StoreID = liq.StoreID
	cur.TicketID = liq.TicketID
	cur.Date = liq.Date
	cur.Remarks = liq.Remarks
	cur.Status = liq.Status
	cur.UpdatedAt = liq.UpdatedAt
	cur.Version = expectedVersion + 1
	t.d.liquidations[liq.ID] = cur
	return nil
}

func (t *memTx) DeleteLiquidation(_ context.Context, id string) ([]approval.Receipt, error) {
	if _, ok := t.d.liquidations[id]; !ok {
		return nil, &approval.NotFoundError{Entity: "liquidation", ID: id}
	}
	removed := t.d.receipts[id]
	delete(t.d.receipts, id)
	delete(t.d.items, id)
	delete(t.d.liquidations, id)
	t.d.liqOrder = slices.DeleteFunc(t.d.liqOrder, func(v string) bool { return v == id })
	return removed, nil
}

func (t *memTx) InsertReceipt(_ context.Context, rec approval.Receipt) error {
	if _, ok := t.d.liquidations[rec.LiquidationID]; !ok {
		return &approval.NotFoundError{Entity: "liquidation", ID: rec.LiquidationID}
	}
	t.d.receipts[rec.LiquidationID] = append(t.d.receipts[rec.LiquidationID], rec)
	return nil
}
