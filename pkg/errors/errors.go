package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	CodeNotFound                = "NOT_FOUND"
	CodeValidation              = "VALIDATION_ERROR"
	CodeForbidden               = "FORBIDDEN"
	CodeConflict                = "CONFLICT"
	CodeInternal                = "INTERNAL_ERROR"
	CodeInvalidInput            = "INVALID_INPUT"
	CodeSeatUnavailable         = "SEAT_UNAVAILABLE"
	CodeLockExpired             = "LOCK_EXPIRED"
	CodePaymentFailed           = "PAYMENT_FAILED"
	CodeSettlementInconsistency = "SETTLEMENT_INCONSISTENCY"
	CodeTimeout                 = "TIMEOUT"
	CodeUnavailable             = "SERVICE_UNAVAILABLE"
)

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	return e.HTTPStatus
}

func (e *AppError) ToJSON() []byte {
	response := ErrorResponse{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
	data, _ := json.Marshal(response)
	return data
}

type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

func NotFoundWithID(resource, id string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details: map[string]any{
			"resource": resource,
			"id":       id,
		},
	}
}

func Validation(message string, details map[string]any) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func InvalidInput(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// SeatUnavailable is a normal, expected outcome of racing for the same units.
// The conflicting subset goes into Details so clients can reselect.
func SeatUnavailable(conflicting []string) *AppError {
	return &AppError{
		Code:       CodeSeatUnavailable,
		Message:    "Selected units are no longer available, please reselect",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"conflicting": conflicting,
		},
	}
}

func LockExpired(message string) *AppError {
	return &AppError{
		Code:       CodeLockExpired,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

func PaymentFailed(message string, err error) *AppError {
	return &AppError{
		Code:       CodePaymentFailed,
		Message:    message,
		HTTPStatus: http.StatusPaymentRequired,
		Err:        err,
	}
}

// SettlementInconsistency flags a charge that succeeded while the hold was
// lost. The charge has already been refunded by the time this surfaces.
func SettlementInconsistency(message string) *AppError {
	return &AppError{
		Code:       CodeSettlementInconsistency,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func Timeout(message string) *AppError {
	return &AppError{
		Code:       CodeTimeout,
		Message:    message,
		HTTPStatus: http.StatusGatewayTimeout,
	}
}

func Unavailable(service string) *AppError {
	return &AppError{
		Code:       CodeUnavailable,
		Message:    fmt.Sprintf("%s is temporarily unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func AsAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}
