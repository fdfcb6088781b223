package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/approval-engine/approval"
	"github.com/warp/approval-engine/logging"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// Stable error codes clients can switch on.
const (
	CodeValidation          = "validation_error"
	CodePermissionDenied    = "permission_denied"
	CodeInvalidTransition   = "invalid_transition"
	CodeInsufficientBalance = "insufficient_balance"
	CodeNotFound            = "not_found"
	CodeConflict            = "concurrency_conflict"
	CodeInternal            = "internal_error"
)

// classify maps an error to its HTTP status and code. Order matters:
// ErrDuplicateEntry wraps ErrConcurrencyConflict and lands on 409 with it.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, approval.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, approval.ErrPermissionDenied):
		return http.StatusForbidden, CodePermissionDenied
	case errors.Is(err, approval.ErrInvalidTransition):
		return http.StatusConflict, CodeInvalidTransition
	case errors.Is(err, approval.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, CodeInsufficientBalance
	case errors.Is(err, approval.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, approval.ErrConcurrencyConflict):
		return http.StatusConflict, CodeConflict
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// fail writes err as an ErrorResponse. Internal errors are logged and their
// message is not exposed.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}

	var verr *approval.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}

	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		resp.Error = "internal server error"
	}
	writeJSON(w, status, resp)
}
