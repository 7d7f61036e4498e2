package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	InventoryErrorNotFound               = "INVENTORY_NOT_FOUND"
	InventoryErrorInsufficientStock      = "INVENTORY_INSUFFICIENT_STOCK"
	InventoryErrorInvalidStateTransition = "INVENTORY_INVALID_STATE_TRANSITION"
	InventoryErrorConflict               = "INVENTORY_CONFLICT"
	InventoryErrorValidation             = "INVENTORY_VALIDATION"
	InventoryErrorInvariantViolation     = "INVENTORY_INVARIANT_VIOLATION"
	InventoryErrorAlreadyReserved        = "INVENTORY_ALREADY_RESERVED"
	InventoryErrorTimeout                = "INVENTORY_TIMEOUT"
	InventoryErrorCacheInvalidation      = "INVENTORY_CACHE_INVALIDATION"
	InventoryErrorInternal               = "INVENTORY_INTERNAL_ERROR"
)

var (
	ErrNotFound               = errors.New("inventory: not found")
	ErrInsufficientStock      = errors.New("inventory: insufficient stock")
	ErrInvalidStateTransition = errors.New("inventory: invalid state transition")
	ErrConflict               = errors.New("inventory: concurrent modification conflict")
	ErrValidation             = errors.New("inventory: validation failed")
	ErrInvariantViolation     = errors.New("inventory: invariant violation")
	ErrAlreadyReserved        = errors.New("inventory: already reserved")
	ErrTimeout                = errors.New("inventory: lock timeout")
	ErrCacheInvalidation      = errors.New("inventory: balance cache invalidation failed")
)

// ErrorKind is the stable tag callers branch on, independent of the error's concrete type.
type ErrorKind string

const (
	ErrorKindNone                   ErrorKind = ""
	ErrorKindNotFound               ErrorKind = "NOT_FOUND"
	ErrorKindInsufficientStock      ErrorKind = "INSUFFICIENT_STOCK"
	ErrorKindInvalidStateTransition ErrorKind = "INVALID_STATE_TRANSITION"
	ErrorKindConflict               ErrorKind = "CONFLICT"
	ErrorKindValidation             ErrorKind = "VALIDATION"
	ErrorKindInvariantViolation     ErrorKind = "INVARIANT_VIOLATION"
	ErrorKindAlreadyReserved        ErrorKind = "ALREADY_RESERVED"
	ErrorKindTimeout                ErrorKind = "TIMEOUT"
	ErrorKindCacheInvalidation      ErrorKind = "CACHE_INVALIDATION"
	ErrorKindInternal               ErrorKind = "INTERNAL"
)

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return ErrNotFound.Error()
	}
	return fmt.Sprintf("%s: %s %q", ErrNotFound.Error(), e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func (e *NotFoundError) ToServiceError() *goerrors.Error {
	return newInventoryError(e.Error(), goerrors.CategoryNotFound, InventoryErrorNotFound).
		WithMetadata(map[string]any{"entity": e.Entity, "id": e.ID})
}

type InsufficientStockError struct {
	Key       BalanceKey
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	if e == nil {
		return ErrInsufficientStock.Error()
	}
	return fmt.Sprintf("%s for %s: available %d, requested %d", ErrInsufficientStock.Error(), e.Key, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

func (e *InsufficientStockError) ToServiceError() *goerrors.Error {
	return newInventoryError(e.Error(), goerrors.CategoryConflict, InventoryErrorInsufficientStock).
		WithCode(http.StatusUnprocessableEntity).
		WithMetadata(map[string]any{
			"tenant_id": e.Key.TenantID,
			"item_id":   e.Key.ItemID,
			"available": e.Available,
			"requested": e.Requested,
		})
}

type InvalidStateTransitionError struct {
	ReservationID string
	From          ReservationStatus
	To            ReservationStatus
}

func (e *InvalidStateTransitionError) Error() string {
	if e == nil {
		return ErrInvalidStateTransition.Error()
	}
	return fmt.Sprintf("%s: reservation %q %s -> %s", ErrInvalidStateTransition.Error(), e.ReservationID, e.From, e.To)
}

func (e *InvalidStateTransitionError) Unwrap() error { return ErrInvalidStateTransition }

func (e *InvalidStateTransitionError) ToServiceError() *goerrors.Error {
	return newInventoryError(e.Error(), goerrors.CategoryConflict, InventoryErrorInvalidStateTransition).
		WithMetadata(map[string]any{
			"reservation_id": e.ReservationID,
			"from":           string(e.From),
			"to":             string(e.To),
		})
}

// ConflictError reports a lost optimistic write. It is the only retryable kind.
type ConflictError struct {
	Entity string
	ID     string
	Cause  error
}

func (e *ConflictError) Error() string {
	if e == nil {
		return ErrConflict.Error()
	}
	msg := fmt.Sprintf("%s on %s %q", ErrConflict.Error(), e.Entity, e.ID)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConflictError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return ErrConflict
	}
	return errors.Join(ErrConflict, e.Cause)
}

func (e *ConflictError) ToServiceError() *goerrors.Error {
	return newInventoryError(e.Error(), goerrors.CategoryConflict, InventoryErrorConflict).
		WithMetadata(map[string]any{"entity": e.Entity, "id": e.ID})
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ErrValidation.Error()
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation.Error(), e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) ToServiceError() *goerrors.Error {
	validation := goerrors.NewValidation(e.Error(), goerrors.FieldError{
		Field:   e.Field,
		Message: e.Message,
	})
	return ensureInventoryErrorEnvelope(validation.WithTextCode(InventoryErrorValidation))
}

func validationError(field string, message string) error {
	return &ValidationError{Field: field, Message: message}
}

type InvariantViolationError struct {
	Key     BalanceKey
	Message string
}

func (e *InvariantViolationError) Error() string {
	if e == nil {
		return ErrInvariantViolation.Error()
	}
	return fmt.Sprintf("%s on %s: %s", ErrInvariantViolation.Error(), e.Key, e.Message)
}

func (e *InvariantViolationError) Unwrap() error { return ErrInvariantViolation }

func (e *InvariantViolationError) ToServiceError() *goerrors.Error {
	return newInventoryError(e.Error(), goerrors.CategoryInternal, InventoryErrorInvariantViolation).
		WithSeverity(goerrors.SeverityError).
		WithMetadata(map[string]any{"tenant_id": e.Key.TenantID, "item_id": e.Key.ItemID})
}

type AlreadyReservedError struct {
	Key           BalanceKey
	OrderID       string
	ReservationID string
}

func (e *AlreadyReservedError) Error() string {
	if e == nil {
		return ErrAlreadyReserved.Error()
	}
	return fmt.Sprintf("%s: order %q holds active reservation %q on %s", ErrAlreadyReserved.Error(), e.OrderID, e.ReservationID, e.Key)
}

func (e *AlreadyReservedError) Unwrap() error { return ErrAlreadyReserved }

func (e *AlreadyReservedError) ToServiceError() *goerrors.Error {
	return newInventoryError(e.Error(), goerrors.CategoryConflict, InventoryErrorAlreadyReserved).
		WithMetadata(map[string]any{
			"tenant_id":      e.Key.TenantID,
			"item_id":        e.Key.ItemID,
			"order_id":       e.OrderID,
			"reservation_id": e.ReservationID,
		})
}

type TimeoutError struct {
	Key   BalanceKey
	Cause error
}

func (e *TimeoutError) Error() string {
	if e == nil {
		return ErrTimeout.Error()
	}
	msg := fmt.Sprintf("%s on %s", ErrTimeout.Error(), e.Key)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *TimeoutError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return ErrTimeout
	}
	return errors.Join(ErrTimeout, e.Cause)
}

func (e *TimeoutError) ToServiceError() *goerrors.Error {
	return newInventoryError(e.Error(), goerrors.CategoryOperation, InventoryErrorTimeout).
		WithCode(http.StatusServiceUnavailable)
}

// CacheInvalidationError reports a committed mutation whose availability cache
// entry could not be dropped. The mutation result is returned alongside it.
type CacheInvalidationError struct {
	Key   BalanceKey
	Cause error
}

func (e *CacheInvalidationError) Error() string {
	if e == nil {
		return ErrCacheInvalidation.Error()
	}
	msg := fmt.Sprintf("%s for %s", ErrCacheInvalidation.Error(), e.Key)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *CacheInvalidationError) Unwrap() []error {
	if e == nil || e.Cause == nil {
		return []error{ErrCacheInvalidation}
	}
	return []error{ErrCacheInvalidation, e.Cause}
}

func (e *CacheInvalidationError) ToServiceError() *goerrors.Error {
	return newInventoryError(e.Error(), goerrors.CategoryInternal, InventoryErrorCacheInvalidation).
		WithSeverity(goerrors.SeverityError).
		WithMetadata(map[string]any{"tenant_id": e.Key.TenantID, "item_id": e.Key.ItemID})
}

type serviceErrorConvertible interface {
	ToServiceError() *goerrors.Error
}

// ErrorKindOf resolves the kind of err, whether it is a typed inventory error
// or one already mapped into a go-errors envelope.
func ErrorKindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	switch {
	case errors.Is(err, ErrCacheInvalidation):
		return ErrorKindCacheInvalidation
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrInsufficientStock):
		return ErrorKindInsufficientStock
	case errors.Is(err, ErrInvalidStateTransition):
		return ErrorKindInvalidStateTransition
	case errors.Is(err, ErrAlreadyReserved):
		return ErrorKindAlreadyReserved
	case errors.Is(err, ErrConflict):
		return ErrorKindConflict
	case errors.Is(err, ErrValidation):
		return ErrorKindValidation
	case errors.Is(err, ErrInvariantViolation):
		return ErrorKindInvariantViolation
	case errors.Is(err, ErrTimeout):
		return ErrorKindTimeout
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil {
		switch richErr.TextCode {
		case InventoryErrorNotFound:
			return ErrorKindNotFound
		case InventoryErrorInsufficientStock:
			return ErrorKindInsufficientStock
		case InventoryErrorInvalidStateTransition:
			return ErrorKindInvalidStateTransition
		case InventoryErrorConflict:
			return ErrorKindConflict
		case InventoryErrorValidation:
			return ErrorKindValidation
		case InventoryErrorInvariantViolation:
			return ErrorKindInvariantViolation
		case InventoryErrorAlreadyReserved:
			return ErrorKindAlreadyReserved
		case InventoryErrorTimeout:
			return ErrorKindTimeout
		case InventoryErrorCacheInvalidation:
			return ErrorKindCacheInvalidation
		}
	}
	return ErrorKindInternal
}

// IsRetryable reports whether an operation failing with err may be attempted again.
func IsRetryable(err error) bool {
	return ErrorKindOf(err) == ErrorKindConflict
}

// MapError converts err into the go-errors envelope exposed to callers.
func MapError(err error) *goerrors.Error {
	return inventoryErrorMapper(err)
}

func inventoryErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureInventoryErrorEnvelope(richErr)
	}

	var convertible serviceErrorConvertible
	if errors.As(err, &convertible) {
		return ensureInventoryErrorEnvelope(convertible.ToServiceError())
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return newInventoryError(err.Error(), goerrors.CategoryOperation, InventoryErrorTimeout).
			WithCode(http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled):
		return newInventoryError(err.Error(), goerrors.CategoryOperation, InventoryErrorInternal)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureInventoryErrorEnvelope(mapped)
}

func newInventoryError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureInventoryErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureInventoryErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = inventoryHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultInventoryTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultInventoryTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return InventoryErrorValidation
	case goerrors.CategoryNotFound:
		return InventoryErrorNotFound
	case goerrors.CategoryConflict:
		return InventoryErrorConflict
	case goerrors.CategoryOperation:
		return InventoryErrorTimeout
	default:
		return InventoryErrorInternal
	}
}

func inventoryHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
