/*
handlers.go - HTTP API handlers for the approval engine

PURPOSE:
  Exposes the ledger, leave, cash-advance and liquidation workflows via a
  REST API. Handles HTTP request/response, JSON serialization, caller
  identity, and delegates to the approval services.

ENDPOINTS:
  Employees:
    GET    /api/employees                       List employees
    POST   /api/employees                       Create employee + opening balance
    GET    /api/employees/{id}                  Get employee
    GET    /api/employees/{id}/ledger           Ledger entries
    POST   /api/employees/{id}/adjustments      Manual balance adjustment

  Leave:
    POST   /api/leave                           Submit a request (pending)
    GET    /api/leave?employeeId=&status=       List requests
    GET    /api/leave/{id}                      Get request
    POST   /api/leave/transition                approve | reject | revoke

  Cash advances:
    POST   /api/cash-advances                   Create (level 1 pending)
    GET    /api/cash-advances/{id}              Get advance with derived status
    GET    /api/cash-advances/{id}/liquidations Liquidations of an advance
    POST   /api/cash-advances/transition        Act on level1 or level2

  Liquidations:
    POST   /api/liquidations                    Create with items
    GET    /api/liquidations/{id}               Get with items + receipts
    PUT    /api/liquidations/{id}               Edit metadata / status
    DELETE /api/liquidations/{id}               Delete with items + receipts
    POST   /api/liquidations/{id}/receipts      Upload a receipt (multipart)

CALLER IDENTITY:
  Transition bodies carry reviewerId; every other mutating endpoint reads
  the X-Actor-ID header. When both are present they must match. The id is
  resolved to an approval.Actor by the Gate before the service is called.

ERROR HANDLING:
  See errors.go. Errors are returned as {error, code} with:
  - 400: Validation errors, invalid input
  - 403: Unknown caller or missing capability
  - 404: Resource not found
  - 409: Invalid transition, concurrent modification
  - 422: Insufficient leave balance
  - 500: Internal errors (logged, message hidden)

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo data loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/approval-engine/approval"
)

// ActorHeader names the caller on non-transition endpoints.
const ActorHeader = "X-Actor-ID"

// defaultMaxUpload bounds receipt uploads when no limit is configured.
const defaultMaxUpload = 10 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tune a Handler.
type Options struct {
	Policy         approval.Policy
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        approval.Store
	Gate         *approval.Gate
	Ledger       *approval.Ledger
	Leave        *approval.LeaveService
	Advances     *approval.CashAdvanceService
	Liquidations *approval.LiquidationService

	maxUpload int64
	validate  *validator.Validate
	logger    *zap.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the approval services over store and blobs. blobs may
// be nil, in which case receipt uploads fail.
func NewHandler(store approval.Store, blobs approval.BlobStore, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := opts.Policy
	if policy.Rules == nil {
		policy = approval.DefaultPolicy()
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}

	gate := approval.NewGate(store, policy)
	ledger := approval.NewLedger(store, gate, logger.Named("ledger"))
	return &Handler{
		Store:        store,
		Gate:         gate,
		Ledger:       ledger,
		Leave:        approval.NewLeaveService(store, ledger, gate, logger.Named("leave")),
		Advances:     approval.NewCashAdvanceService(store, gate, logger.Named("cash_advance")),
		Liquidations: approval.NewLiquidationService(store, blobs, gate, logger.Named("liquidation")),
		maxUpload:    maxUpload,
		validate:     newValidator(),
		logger:       logger,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Use JSON tag names for field names in errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Ledger.Employees(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee with its current balance.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Ledger.Employee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

// CreateEmployee creates an employee and records the opening balance.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := h.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	emp, err := h.Ledger.Open(r.Context(), approval.NewEmployee{
		ID:             req.ID,
		Name:           req.Name,
		Role:           req.Role,
		PositionID:     req.PositionID,
		OpeningBalance: req.OpeningBalance,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(*emp))
}

// GetLedger returns the employee's ledger, oldest first.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Ledger.Entries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	dtos := make([]LedgerEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toLedgerEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAdjustment applies a manual balance correction.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := h.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	actor, err := h.actorFor(r, "")
	if err != nil {
		fail(w, r, err)
		return
	}

	entry, err := h.Ledger.Adjust(r.Context(), actor, approval.Adjustment{
		EmployeeID:     chi.URLParam(r, "id"),
		Days:           req.Days,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLedgerEntryDTO(*entry))
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// CreateLeave submits a pending leave request.
func (h *Handler) CreateLeave(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaveRequest
	if err := h.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	start, err := parseDateField("startDate", req.StartDate)
	if err != nil {
		fail(w, r, err)
		return
	}
	end, err := parseDateField("endDate", req.EndDate)
	if err != nil {
		fail(w, r, err)
		return
	}

	created, err := h.Leave.Create(r.Context(), approval.NewLeaveRequest{
		EmployeeID: req.EmployeeID,
		LeaveType:  req.LeaveType,
		StartDate:  start,
		EndDate:    end,
		Reason:     req.Reason,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveRequestDTO(*created))
}

// ListLeave returns leave requests filtered by employeeId and status.
func (h *Handler) ListLeave(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	requests, err := h.Leave.List(r.Context(), approval.LeaveFilter{
		EmployeeID: q.Get("employeeId"),
		Status:     approval.LeaveStatus(q.Get("status")),
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	dtos := make([]LeaveRequestDTO, len(requests))
	for i, req := range requests {
		dtos[i] = toLeaveRequestDTO(req)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLeave returns a single leave request.
func (h *Handler) GetLeave(w http.ResponseWriter, r *http.Request) {
	req, err := h.Leave.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(*req))
}

// TransitionLeave approves, rejects or revokes a leave request.
func (h *Handler) TransitionLeave(w http.ResponseWriter, r *http.Request) {
	var req LeaveTransitionRequest
	if err := h.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	action, err := approval.ParseLeaveAction(req.Action)
	if err != nil {
		fail(w, r, err)
		return
	}
	actor, err := h.actorFor(r, req.ReviewerID)
	if err != nil {
		fail(w, r, err)
		return
	}

	updated, err := h.Leave.Transition(r.Context(), actor, req.ID, action, req.Comment)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(*updated))
}

// =============================================================================
// CASH ADVANCE HANDLERS
// =============================================================================

// CreateCashAdvance creates an advance awaiting level-1 review.
func (h *Handler) CreateCashAdvance(w http.ResponseWriter, r *http.Request) {
	var req CreateCashAdvanceRequest
	if err := h.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	adv, err := h.Advances.Create(r.Context(), approval.NewCashAdvance{
		EmployeeID: req.EmployeeID,
		Type:       approval.AdvanceType(req.Type),
		Amount:     req.Amount,
		Purpose:    req.Purpose,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCashAdvanceDTO(*adv))
}

// GetCashAdvance returns an advance with its derived status.
func (h *Handler) GetCashAdvance(w http.ResponseWriter, r *http.Request) {
	adv, err := h.Advances.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCashAdvanceDTO(*adv))
}

// TransitionCashAdvance records a level-1 or level-2 decision.
func (h *Handler) TransitionCashAdvance(w http.ResponseWriter, r *http.Request) {
	var req CashAdvanceTransitionRequest
	if err := h.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	level, err := approval.ParseLevel(req.Level)
	if err != nil {
		fail(w, r, err)
		return
	}
	action, err := approval.ParseReviewAction(req.Action)
	if err != nil {
		fail(w, r, err)
		return
	}
	actor, err := h.actorFor(r, req.ReviewerID)
	if err != nil {
		fail(w, r, err)
		return
	}

	adv, err := h.Advances.Act(r.Context(), actor, req.ID, level, action, req.Comment)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCashAdvanceDTO(*adv))
}

// ListAdvanceLiquidations returns the liquidations filed against an advance.
func (h *Handler) ListAdvanceLiquidations(w http.ResponseWriter, r *http.Request) {
	liqs, err := h.Liquidations.ListByAdvance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	dtos := make([]LiquidationDTO, len(liqs))
	for i, l := range liqs {
		dtos[i] = toLiquidationDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LIQUIDATION HANDLERS
// =============================================================================

// CreateLiquidation files a liquidation with its line items.
func (h *Handler) CreateLiquidation(w http.ResponseWriter, r *http.Request) {
	var req CreateLiquidationRequest
	if err := h.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	day, err := parseDateField("date", req.Date)
	if err != nil {
		fail(w, r, err)
		return
	}
	actor, err := h.actorFor(r, "")
	if err != nil {
		fail(w, r, err)
		return
	}

	items := make([]approval.NewLiquidationItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = approval.NewLiquidationItem{
			FromDestination: it.FromDestination,
			ToDestination:   it.ToDestination,
			Description:     it.Description,
			Total:           it.Total,
		}
	}

	liq, err := h.Liquidations.Create(r.Context(), actor, approval.NewLiquidation{
		CashAdvanceID: req.CashAdvanceID,
		StoreID:       req.StoreID,
		TicketID:      req.TicketID,
		Date:          day,
		Remarks:       req.Remarks,
		Items:         items,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLiquidationDTO(*liq))
}

// GetLiquidation returns a liquidation with its items and receipts.
func (h *Handler) GetLiquidation(w http.ResponseWriter, r *http.Request) {
	liq, err := h.Liquidations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLiquidationDTO(*liq))
}

// UpdateLiquidation edits metadata or status. Amounts are never recomputed.
func (h *Handler) UpdateLiquidation(w http.ResponseWriter, r *http.Request) {
	var req UpdateLiquidationRequest
	if err := h.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	actor, err := h.actorFor(r, "")
	if err != nil {
		fail(w, r, err)
		return
	}

	patch := approval.LiquidationPatch{
		StoreID:  req.StoreID,
		TicketID: req.TicketID,
		Remarks:  req.Remarks,
	}
	if req.Date != nil {
		day, err := parseDateField("date", *req.Date)
		if err != nil {
			fail(w, r, err)
			return
		}
		patch.Date = &day
	}
	if req.Status != nil {
		status := approval.LiquidationStatus(*req.Status)
		patch.Status = &status
	}

	liq, err := h.Liquidations.Edit(r.Context(), actor, chi.URLParam(r, "id"), patch)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLiquidationDTO(*liq))
}

// DeleteLiquidation removes a liquidation and everything it owns.
func (h *Handler) DeleteLiquidation(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actorFor(r, "")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Liquidations.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadReceipt attaches a multipart "file" to a liquidation, optionally
// to one of its items via the "itemId" form field.
func (h *Handler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actorFor(r, "")
	if err != nil {
		fail(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		fail(w, r, &approval.ValidationError{Field: "file", Message: "invalid multipart upload: " + err.Error()})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		fail(w, r, &approval.ValidationError{Field: "file", Message: "is required"})
		return
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		fail(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	upload := approval.ReceiptUpload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        body,
	}
	if upload.ContentType == "" || upload.ContentType == "application/octet-stream" {
		upload.ContentType = http.DetectContentType(body)
	}
	if itemID := strings.TrimSpace(r.FormValue("itemId")); itemID != "" {
		upload.ItemID = &itemID
	}

	rec, err := h.Liquidations.AttachReceipt(r.Context(), actor, chi.URLParam(r, "id"), upload)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReceiptDTO(*rec))
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports whether the store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// actorFor resolves the caller. bodyID is the reviewerId of a transition
// body, empty elsewhere.
func (h *Handler) actorFor(r *http.Request, bodyID string) (approval.Actor, error) {
	headerID := strings.TrimSpace(r.Header.Get(ActorHeader))
	bodyID = strings.TrimSpace(bodyID)
	if bodyID != "" && headerID != "" && bodyID != headerID {
		return approval.Actor{}, &approval.PermissionError{
			ActorID: headerID,
			Reason:  "reviewerId does not match " + ActorHeader,
		}
	}
	id := bodyID
	if id == "" {
		id = headerID
	}
	return h.Gate.Resolve(r.Context(), id)
}

// decode reads a JSON body into dst and runs struct validation.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &approval.ValidationError{Message: "invalid request body: " + err.Error()}
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &approval.ValidationError{Field: fieldPath(verrs[0]), Message: validationMessage(verrs[0])}
		}
		return &approval.ValidationError{Message: err.Error()}
	}
	return nil
}

// fieldPath drops the struct name from the namespace: items[0].total.
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + e.Param()
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "min":
		return "must have at least " + e.Param()
	default:
		return "is invalid"
	}
}

func parseDateField(field, value string) (time.Time, error) {
	d, err := approval.ParseDate(value)
	if err != nil {
		return d, &approval.ValidationError{Field: field, Message: "must be a date in YYYY-MM-DD format"}
	}
	return d, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
