/*
Package sqlite provides a SQLite-backed implementation of approval.Store.

PURPOSE:
  Persists employees, the leave ledger, leave requests, cash advances and
  liquidations using database/sql and mattn/go-sqlite3.

KEY TABLES:
  employees:          Identity, role/position, leave balance + version
  ledger_entries:     Append-only ledger, unique idempotency_key
  leave_requests:     Leave lifecycle and reviewer metadata
  cash_advances:      Two review levels, no stored overall status
  liquidations:       Settlement amounts + version for guarded edits
  liquidation_items:  Owned by a liquidation (ON DELETE CASCADE)
  receipts:           Owned by a liquidation (ON DELETE CASCADE)

GUARDED UPDATES:
  Every UPDATE carries the expected pre-state in its WHERE clause:

    UPDATE leave_requests SET ... WHERE id = ? AND status = ?
    UPDATE employees      SET ... WHERE id = ? AND version = ?
    UPDATE liquidations   SET ... WHERE id = ? AND version = ?

  Zero affected rows means someone else won: ErrConcurrencyConflict.

CONCURRENCY:
  sync.RWMutex serializes writers in this process; SQLite allows only one
  writer anyway. Reads inside WithTx go through the *sql.Tx.

WAL MODE:
  Opened with WAL, foreign keys on and a busy timeout.

MIGRATION:
  Versioned SQL files under migrations/, embedded and applied by
  golang-migrate on New().

USAGE:
  store, err := sqlite.New("./data/approvals.db", 5*time.Second)
  if err != nil {
      return err
  }
  defer store.Close()

SEE ALSO:
  - approval/store.go: Interface definitions
  - approval/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/approval-engine/approval"
)

// Store implements approval.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ approval.Store = (*Store)(nil)

// New opens (creating if needed) the database file at dbPath and applies
// migrations. dbPath must be a file; each pooled connection to ":memory:"
// would see its own empty database.
func New(dbPath string, busyTimeout time.Duration) (*Store, error) {
	if dbPath == "" || dbPath == ":memory:" {
		return nil, fmt.Errorf("sqlite: a database file path is required")
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d",
		dbPath, busyTimeout.Milliseconds())

	if err := RunMigrations(dsn); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an already-open, already-migrated database.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection; used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx approval.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

// =============================================================================
// READS (Store, outside a transaction)
// =============================================================================

func (s *Store) GetEmployee(ctx context.Context, id string) (*approval.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEmployee(ctx, s.db, id)
}

func (s *Store) ListEmployees(ctx context.Context) ([]approval.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEmployees(ctx, s.db)
}

func (s *Store) ListLedgerEntries(ctx context.Context, employeeID string) ([]approval.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listLedgerEntries(ctx, s.db, employeeID)
}

func (s *Store) GetLeaveRequest(ctx context.Context, id string) (*approval.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getLeaveRequest(ctx, s.db, id)
}

func (s *Store) ListLeaveRequests(ctx context.Context, filter approval.LeaveFilter) ([]approval.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listLeaveRequests(ctx, s.db, filter)
}

func (s *Store) GetCashAdvance(ctx context.Context, id string) (*approval.CashAdvance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCashAdvance(ctx, s.db, id)
}

func (s *Store) GetLiquidation(ctx context.Context, id string) (*approval.Liquidation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getLiquidation(ctx, s.db, id)
}

func (s *Store) ListLiquidations(ctx context.Context, cashAdvanceID string) ([]approval.Liquidation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listLiquidations(ctx, s.db, cashAdvanceID)
}

// =============================================================================
// READS (txStore, inside a transaction)
// =============================================================================

func (ts *txStore) GetEmployee(ctx context.Context, id string) (*approval.Employee, error) {
	return getEmployee(ctx, ts.tx, id)
}

func (ts *txStore) ListEmployees(ctx context.Context) ([]approval.Employee, error) {
	return listEmployees(ctx, ts.tx)
}

func (ts *txStore) ListLedgerEntries(ctx context.Context, employeeID string) ([]approval.LedgerEntry, error) {
	return listLedgerEntries(ctx, ts.tx, employeeID)
}

func (ts *txStore) GetLeaveRequest(ctx context.Context, id string) (*approval.LeaveRequest, error) {
	return getLeaveRequest(ctx, ts.tx, id)
}

func (ts *txStore) ListLeaveRequests(ctx context.Context, filter approval.LeaveFilter) ([]approval.LeaveRequest, error) {
	return listLeaveRequests(ctx, ts.tx, filter)
}

func (ts *txStore) GetCashAdvance(ctx context.Context, id string) (*approval.CashAdvance, error) {
	return getCashAdvance(ctx, ts.tx, id)
}

func (ts *txStore) GetLiquidation(ctx context.Context, id string) (*approval.Liquidation, error) {
	return getLiquidation(ctx, ts.tx, id)
}

func (ts *txStore) ListLiquidations(ctx context.Context, cashAdvanceID string) ([]approval.Liquidation, error) {
	return listLiquidations(ctx, ts.tx, cashAdvanceID)
}

// =============================================================================
// EMPLOYEES + LEDGER
// =============================================================================

const employeeColumns = `id, name, role, position_id, leave_balance, version, created_at, updated_at`

func getEmployee(ctx context.Context, q querier, id string) (*approval.Employee, error) {
	row := q.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &approval.NotFoundError{Entity: "employee", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

func listEmployees(ctx context.Context, q querier) ([]approval.Employee, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var out []approval.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, emp)
	}
	return out, rows.Err()
}

func scanEmployee(sc scanner) (approval.Employee, error) {
	var (
		emp                  approval.Employee
		position             sql.NullString
		balance              string
		createdAt, updatedAt string
	)
	if err := sc.Scan(&emp.ID, &emp.Name, &emp.Role, &position, &balance, &emp.Version, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return emp, err
		}
		return emp, fmt.Errorf("failed to scan employee: %w", err)
	}
	emp.PositionID = stringPtr(position)
	var err error
	if emp.LeaveBalance, err = parseDecimal("leave_balance", balance); err != nil {
		return emp, err
	}
	emp.CreatedAt = parseTime(createdAt)
	emp.UpdatedAt = parseTime(updatedAt)
	return emp, nil
}

func (ts *txStore) InsertEmployee(ctx context.Context, emp approval.Employee) error {
	_, err := ts.tx.ExecContext(ctx, `
		INSERT INTO employees (id, name, role, position_id, leave_balance, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		emp.ID, emp.Name, emp.Role, nullStringPtr(emp.PositionID), emp.LeaveBalance.String(),
		emp.Version, formatTime(emp.CreatedAt), formatTime(emp.UpdatedAt),
	)
	if isConstraint(err, sqlite3.ErrConstraintPrimaryKey) || isConstraint(err, sqlite3.ErrConstraintUnique) {
		return &approval.ValidationError{Field: "id", Message: "employee " + emp.ID + " already exists"}
	}
	if err != nil {
		return fmt.Errorf("failed to insert employee: %w", err)
	}
	return nil
}

func (ts *txStore) SetLeaveBalance(ctx context.Context, employeeID string, expectedVersion int64, balance decimal.Decimal, at time.Time) error {
	res, err := ts.tx.ExecContext(ctx, `
		UPDATE employees SET leave_balance = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		balance.String(), formatTime(at), employeeID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update leave balance: %w", err)
	}
	return expectOneRow(res, "employee", employeeID)
}

func (ts *txStore) AppendLedgerEntry(ctx context.Context, e approval.LedgerEntry) error {
	_, err := ts.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(id, employee_id, kind, days, balance_after, reference_id, idempotency_key, reason, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EmployeeID, string(e.Kind), e.Days.String(), e.BalanceAfter.String(),
		nullString(e.ReferenceID), nullString(e.IdempotencyKey), nullString(e.Reason),
		nullString(e.CreatedBy), formatTime(e.CreatedAt),
	)
	if isConstraint(err, sqlite3.ErrConstraintUnique) {
		return approval.ErrDuplicateEntry
	}
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func listLedgerEntries(ctx context.Context, q querier, employeeID string) ([]approval.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, employee_id, kind, days, balance_after, reference_id, idempotency_key,
		       reason, created_by, created_at
		FROM ledger_entries
		WHERE employee_id = ?
		ORDER BY rowid ASC`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []approval.LedgerEntry
	for rows.Next() {
		var (
			e                           approval.LedgerEntry
			kind, days, after, created  string
			ref, key, reason, createdBy sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.EmployeeID, &kind, &days, &after, &ref, &key, &reason, &createdBy, &created); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Kind = approval.EntryKind(kind)
		if e.Days, err = parseDecimal("days", days); err != nil {
			return nil, err
		}
		if e.BalanceAfter, err = parseDecimal("balance_after", after); err != nil {
			return nil, err
		}
		e.ReferenceID = ref.String
		e.IdempotencyKey = key.String
		e.Reason = reason.String
		e.CreatedBy = createdBy.String
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

const leaveColumns = `id, employee_id, leave_type, start_date, end_date, reason, status,
	reviewer_id, reviewer_comment, reviewed_at, debited_days, created_at, updated_at`

func getLeaveRequest(ctx context.Context, q querier, id string) (*approval.LeaveRequest, error) {
	row := q.QueryRowContext(ctx, `SELECT `+leaveColumns+` FROM leave_requests WHERE id = ?`, id)
	req, err := scanLeaveRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &approval.NotFoundError{Entity: "leave request", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func listLeaveRequests(ctx context.Context, q querier, filter approval.LeaveFilter) ([]approval.LeaveRequest, error) {
	var (
		where []string
		args  []any
	)
	if filter.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, filter.EmployeeID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	query := `SELECT ` + leaveColumns + ` FROM leave_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC, rowid ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave requests: %w", err)
	}
	defer rows.Close()

	var out []approval.LeaveRequest
	for rows.Next() {
		req, err := scanLeaveRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func scanLeaveRequest(sc scanner) (approval.LeaveRequest, error) {
	var (
		r                                approval.LeaveRequest
		start, end, status, debited      string
		created, updated                 string
		reason, reviewer, comment, rvwAt sql.NullString
	)
	err := sc.Scan(&r.ID, &r.EmployeeID, &r.LeaveType, &start, &end, &reason, &status,
		&reviewer, &comment, &rvwAt, &debited, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("failed to scan leave request: %w", err)
	}
	r.StartDate = parseDate(start)
	r.EndDate = parseDate(end)
	r.Reason = reason.String
	r.Status = approval.LeaveStatus(status)
	r.ReviewerID = stringPtr(reviewer)
	r.ReviewerComment = comment.String
	r.ReviewedAt = timePtr(rvwAt)
	if r.DebitedDays, err = parseDecimal("debited_days", debited); err != nil {
		return r, err
	}
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	return r, nil
}

func (ts *txStore) InsertLeaveRequest(ctx context.Context, r approval.LeaveRequest) error {
	_, err := ts.tx.ExecContext(ctx, `
		INSERT INTO leave_requests (`+leaveColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.EmployeeID, r.LeaveType, formatDate(r.StartDate), formatDate(r.EndDate),
		nullString(r.Reason), string(r.Status), nullStringPtr(r.ReviewerID), nullString(r.ReviewerComment),
		nullTime(r.ReviewedAt), r.DebitedDays.String(), formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
		return &approval.NotFoundError{Entity: "employee", ID: r.EmployeeID}
	}
	if err != nil {
		return fmt.Errorf("failed to insert leave request: %w", err)
	}
	return nil
}

func (ts *txStore) UpdateLeaveRequest(ctx context.Context, r approval.LeaveRequest, expected approval.LeaveStatus) error {
	res, err := ts.tx.ExecContext(ctx, `
		UPDATE leave_requests
		SET start_date = ?, end_date = ?, status = ?, reviewer_id = ?, reviewer_comment = ?,
		    reviewed_at = ?, debited_days = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		formatDate(r.StartDate), formatDate(r.EndDate), string(r.Status), nullStringPtr(r.ReviewerID),
		nullString(r.ReviewerComment), nullTime(r.ReviewedAt), r.DebitedDays.String(), formatTime(r.UpdatedAt),
		r.ID, string(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to update leave request: %w", err)
	}
	return expectOneRow(res, "leave request", r.ID)
}

// =============================================================================
// CASH ADVANCES
// =============================================================================

const advanceColumns = `id, employee_id, type, amount, purpose,
	level1_status, level1_reviewer_id, level1_reviewed_at, level1_comment,
	level2_status, level2_reviewer_id, level2_reviewed_at, level2_comment,
	created_at, updated_at`

func getCashAdvance(ctx context.Context, q querier, id string) (*approval.CashAdvance, error) {
	var (
		a                    approval.CashAdvance
		typ, amount          string
		created, updated     string
		l1, l1By, l1At, l1Cm sql.NullString
		l2, l2By, l2At, l2Cm sql.NullString
	)
	err := q.QueryRowContext(ctx, `SELECT `+advanceColumns+` FROM cash_advances WHERE id = ?`, id).Scan(
		&a.ID, &a.EmployeeID, &typ, &amount, &a.Purpose,
		&l1, &l1By, &l1At, &l1Cm,
		&l2, &l2By, &l2At, &l2Cm,
		&created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &approval.NotFoundError{Entity: "cash advance", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan cash advance: %w", err)
	}
	a.Type = approval.AdvanceType(typ)
	if a.Amount, err = parseDecimal("amount", amount); err != nil {
		return nil, err
	}
	a.Level1 = approval.Review{Status: approval.LevelStatus(l1.String), ReviewerID: stringPtr(l1By), ReviewedAt: timePtr(l1At), Comment: l1Cm.String}
	a.Level2 = approval.Review{Status: approval.LevelStatus(l2.String), ReviewerID: stringPtr(l2By), ReviewedAt: timePtr(l2At), Comment: l2Cm.String}
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return &a, nil
}

func (ts *txStore) InsertCashAdvance(ctx context.Context, a approval.CashAdvance) error {
	_, err := ts.tx.ExecContext(ctx, `
		INSERT INTO cash_advances (`+advanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.EmployeeID, string(a.Type), a.Amount.String(), a.Purpose,
		nullString(string(a.Level1.Status)), nullStringPtr(a.Level1.ReviewerID), nullTime(a.Level1.ReviewedAt), nullString(a.Level1.Comment),
		nullString(string(a.Level2.Status)), nullStringPtr(a.Level2.ReviewerID), nullTime(a.Level2.ReviewedAt), nullString(a.Level2.Comment),
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
		return &approval.NotFoundError{Entity: "employee", ID: a.EmployeeID}
	}
	if err != nil {
		return fmt.Errorf("failed to insert cash advance: %w", err)
	}
	return nil
}

func (ts *txStore) UpdateCashAdvance(ctx context.Context, a approval.CashAdvance, level approval.Level, expected approval.LevelStatus) error {
	guard := "level1_status"
	if level == approval.Level2 {
		guard = "level2_status"
	}
	res, err := ts.tx.ExecContext(ctx, `
		UPDATE cash_advances
		SET level1_status = ?, level1_reviewer_id = ?, level1_reviewed_at = ?, level1_comment = ?,
		    level2_status = ?, level2_reviewer_id = ?, level2_reviewed_at = ?, level2_comment = ?,
		    updated_at = ?
		WHERE id = ? AND COALESCE(`+guard+`, '') = ?`,
		nullString(string(a.Level1.Status)), nullStringPtr(a.Level1.ReviewerID), nullTime(a.Level1.ReviewedAt), nullString(a.Level1.Comment),
		nullString(string(a.Level2.Status)), nullStringPtr(a.Level2.ReviewerID), nullTime(a.Level2.ReviewedAt), nullString(a.Level2.Comment),
		formatTime(a.UpdatedAt), a.ID, string(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to update cash advance: %w", err)
	}
	return expectOneRow(res, "cash advance", a.ID)
}

// =============================================================================
// LIQUIDATIONS, ITEMS, RECEIPTS
// =============================================================================

const liquidationColumns = `id, cash_advance_id, store_id, ticket_id, liquidation_date, total_amount,
	return_to_company, reimbursement, remarks, status, version, created_by, created_at, updated_at`

func getLiquidation(ctx context.Context, q querier, id string) (*approval.Liquidation, error) {
	row := q.QueryRowContext(ctx, `SELECT `+liquidationColumns+` FROM liquidations WHERE id = ?`, id)
	liq, err := scanLiquidation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &approval.NotFoundError{Entity: "liquidation", ID: id}
	}
	if err != nil {
		return nil, err
	}
	if err := loadChildren(ctx, q, &liq); err != nil {
		return nil, err
	}
	return &liq, nil
}

func listLiquidations(ctx context.Context, q querier, cashAdvanceID string) ([]approval.Liquidation, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+liquidationColumns+` FROM liquidations
		WHERE cash_advance_id = ?
		ORDER BY created_at ASC, rowid ASC`, cashAdvanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query liquidations: %w", err)
	}
	var out []approval.Liquidation
	for rows.Next() {
		liq, err := scanLiquidation(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, liq)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range out {
		if err := loadChildren(ctx, q, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanLiquidation(sc scanner) (approval.Liquidation, error) {
	var (
		l                          approval.Liquidation
		day, total, ret, reimb     string
		status, created, updated   string
		ticket, remarks, createdBy sql.NullString
	)
	err := sc.Scan(&l.ID, &l.CashAdvanceID, &l.StoreID, &ticket, &day, &total, &ret, &reimb,
		&remarks, &status, &l.Version, &createdBy, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return l, err
		}
		return l, fmt.Errorf("failed to scan liquidation: %w", err)
	}
	l.TicketID = stringPtr(ticket)
	l.Date = parseDate(day)
	if l.TotalAmount, err = parseDecimal("total_amount", total); err != nil {
		return l, err
	}
	if l.ReturnToCompany, err = parseDecimal("return_to_company", ret); err != nil {
		return l, err
	}
	if l.Reimbursement, err = parseDecimal("reimbursement", reimb); err != nil {
		return l, err
	}
	l.Remarks = remarks.String
	l.Status = approval.LiquidationStatus(status)
	l.CreatedBy = createdBy.String
	l.CreatedAt = parseTime(created)
	l.UpdatedAt = parseTime(updated)
	return l, nil
}

func loadChildren(ctx context.Context, q querier, liq *approval.Liquidation) error {
	items, err := listItems(ctx, q, liq.ID)
	if err != nil {
		return err
	}
	receipts, err := listReceipts(ctx, q, liq.ID)
	if err != nil {
		return err
	}
	liq.Items = items
	liq.Receipts = receipts
	return nil
}

func listItems(ctx context.Context, q querier, liquidationID string) ([]approval.LiquidationItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, liquidation_id, from_destination, to_destination, description, total
		FROM liquidation_items WHERE liquidation_id = ? ORDER BY position ASC`, liquidationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query liquidation items: %w", err)
	}
	defer rows.Close()

	var out []approval.LiquidationItem
	for rows.Next() {
		var (
			it             approval.LiquidationItem
			from, to, desc sql.NullString
			total          string
		)
		if err := rows.Scan(&it.ID, &it.LiquidationID, &from, &to, &desc, &total); err != nil {
			return nil, fmt.Errorf("failed to scan liquidation item: %w", err)
		}
		it.FromDestination = from.String
		it.ToDestination = to.String
		it.Description = desc.String
		if it.Total, err = parseDecimal("total", total); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func listReceipts(ctx context.Context, q querier, liquidationID string) ([]approval.Receipt, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, liquidation_id, item_id, file_name, content_type, storage_key, size, created_at
		FROM receipts WHERE liquidation_id = ? ORDER BY created_at ASC, rowid ASC`, liquidationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var out []approval.Receipt
	for rows.Next() {
		var (
			r           approval.Receipt
			item, ctype sql.NullString
			created     string
		)
		if err := rows.Scan(&r.ID, &r.LiquidationID, &item, &r.FileName, &ctype, &r.StorageKey, &r.Size, &created); err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		r.ItemID = stringPtr(item)
		r.ContentType = ctype.String
		r.CreatedAt = parseTime(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (ts *txStore) InsertLiquidation(ctx context.Context, l approval.Liquidation) error {
	_, err := ts.tx.ExecContext(ctx, `
		INSERT INTO liquidations (`+liquidationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.CashAdvanceID, l.StoreID, nullStringPtr(l.TicketID), formatDate(l.Date), l.TotalAmount.String(),
		l.ReturnToCompany.String(), l.Reimbursement.String(), nullString(l.Remarks), string(l.Status),
		l.Version, nullString(l.CreatedBy), formatTime(l.CreatedAt), formatTime(l.UpdatedAt),
	)
	if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
		return &approval.NotFoundError{Entity: "cash advance", ID: l.CashAdvanceID}
	}
	if err != nil {
		return fmt.Errorf("failed to insert liquidation: %w", err)
	}

	for i, it := range l.Items {
		_, err := ts.tx.ExecContext(ctx, `
			INSERT INTO liquidation_items (id, liquidation_id, position, from_destination, to_destination, description, total)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			it.ID, l.ID, i, nullString(it.FromDestination), nullString(it.ToDestination),
			nullString(it.Description), it.Total.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert liquidation item: %w", err)
		}
	}
	return nil
}

func (ts *txStore) UpdateLiquidation(ctx context.Context, l approval.Liquidation, expectedVersion int64) error {
	res, err := ts.tx.ExecContext(ctx, `
		UPDATE liquidations
		SET store_id = ?, ticket_id = ?, liquidation_date = ?, remarks = ?, status = ?,
		    version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		l.StoreID, nullStringPtr(l.TicketID), formatDate(l.Date), nullString(l.Remarks), string(l.Status),
		expectedVersion+1, formatTime(l.UpdatedAt), l.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update liquidation: %w", err)
	}
	return expectOneRow(res, "liquidation", l.ID)
}

func (ts *txStore) DeleteLiquidation(ctx context.Context, id string) ([]approval.Receipt, error) {
	removed, err := listReceipts(ctx, ts.tx, id)
	if err != nil {
		return nil, err
	}
	if _, err := ts.tx.ExecContext(ctx, `DELETE FROM receipts WHERE liquidation_id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to delete receipts: %w", err)
	}
	if _, err := ts.tx.ExecContext(ctx, `DELETE FROM liquidation_items WHERE liquidation_id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to delete liquidation items: %w", err)
	}
	res, err := ts.tx.ExecContext(ctx, `DELETE FROM liquidations WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete liquidation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to delete liquidation: %w", err)
	}
	if n == 0 {
		return nil, &approval.NotFoundError{Entity: "liquidation", ID: id}
	}
	return removed, nil
}

func (ts *txStore) InsertReceipt(ctx context.Context, r approval.Receipt) error {
	_, err := ts.tx.ExecContext(ctx, `
		INSERT INTO receipts (id, liquidation_id, item_id, file_name, content_type, storage_key, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.LiquidationID, nullStringPtr(r.ItemID), r.FileName, nullString(r.ContentType),
		r.StorageKey, r.Size, formatTime(r.CreatedAt),
	)
	if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
		return &approval.NotFoundError{Entity: "liquidation", ID: r.LiquidationID}
	}
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func expectOneRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return &approval.ConflictError{Entity: entity, ID: id}
	}
	return nil
}

func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == code
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func timePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func formatDate(t time.Time) string {
	return t.UTC().Format(approval.DateLayout)
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(approval.DateLayout, s)
	return t
}

func parseDecimal(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal in %s: %w", column, err)
	}
	return d, nil
}
