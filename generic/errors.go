/*
errors.go - Centralized error taxonomy for the payment engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch on the KIND of an error (errors.Is against a sentinel or
  KindOf), never on its message.

ERROR CATEGORIES:
  1. Lookup errors - NotFound (payment, income event, attribution, category, household)
  2. Validation errors - Invalid field values, detected before any write
  3. State errors - ImmutableState, AlreadySettled, NotSettled, Cancelled
  4. Ledger bound errors - OverAttributed, InsufficientIncome
  5. Store errors - Conflict (serialization failure, the only retryable kind)

USAGE:
  if errors.Is(err, generic.ErrPaymentNotFound) { ... }
  if generic.IsRetryable(err) { retry the whole operation }

  var over *generic.OverAttributedError
  if errors.As(err, &over) {
      fmt.Println(over.Available())
  }

SEE ALSO:
  - payments/lifecycle.go, payments/attribution.go: Produce these errors
  - api/handlers.go: Maps kinds to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound matches every NotFoundError regardless of entity.
	ErrNotFound = errors.New("not found")

	// ErrInvalid is returned for malformed or out-of-range input.
	ErrInvalid = errors.New("invalid")

	// ErrImmutableState is returned when mutating a settled payment.
	ErrImmutableState = errors.New("payment is settled and cannot be modified")

	// ErrAlreadySettled is returned when settling a paid payment.
	ErrAlreadySettled = errors.New("payment already settled")

	// ErrNotSettled is returned when reverting a payment that is neither paid nor partial.
	ErrNotSettled = errors.New("payment is not settled")

	// ErrCancelled is returned when operating on a cancelled payment.
	ErrCancelled = errors.New("payment is cancelled")

	// ErrOverAttributed is returned when attributions would exceed the payment amount.
	ErrOverAttributed = errors.New("attributions exceed payment amount")

	// ErrInsufficientIncome is returned when an income event lacks remaining funds.
	ErrInsufficientIncome = errors.New("insufficient income remaining")

	// ErrConflict is returned when a transaction could not be serialized.
	// Retry the whole operation.
	ErrConflict = errors.New("conflicting concurrent modification")

	// ErrInvalidPeriod is returned when a period ends before it starts.
	ErrInvalidPeriod = &ValidationError{Field: "period", Message: "end before start"}
)

// Entity names used in NotFoundError.
const (
	EntityHousehold   = "household"
	EntityPayment     = "payment"
	EntityIncomeEvent = "income_event"
	EntityAttribution = "attribution"
	EntityCategory    = "category"
)

// Entity-specific not-found sentinels. errors.Is(err, ErrPaymentNotFound)
// matches any NotFoundError for a payment, whatever its ID.
var (
	ErrHouseholdNotFound   = &NotFoundError{Entity: EntityHousehold}
	ErrPaymentNotFound     = &NotFoundError{Entity: EntityPayment}
	ErrIncomeEventNotFound = &NotFoundError{Entity: EntityIncomeEvent}
	ErrAttributionNotFound = &NotFoundError{Entity: EntityAttribution}

	// ErrCategoryInvalid is returned when a category does not resolve to an
	// active category of the household.
	ErrCategoryInvalid = &NotFoundError{Entity: EntityCategory}
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError reports an entity absent from the household scope.
type NotFoundError struct {
	Entity string
	ID     string
}

func NotFound(entity string, id any) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
}

func (e *NotFoundError) Error() string {
	if e.Entity == EntityCategory {
		return fmt.Sprintf("category invalid: %q is not an active category of the household", e.ID)
	}
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Is matches ErrNotFound and the entity sentinel for the same entity.
func (e *NotFoundError) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	t, ok := target.(*NotFoundError)
	return ok && t.ID == "" && t.Entity == e.Entity
}

// ValidationError reports a malformed or out-of-range field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// StateError reports an operation rejected by the payment lifecycle.
type StateError struct {
	PaymentID PaymentID
	Status    string
	Op        string
	Err       error // one of the state sentinels
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %s (status %s): %v", e.Op, e.PaymentID, e.Status, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

// OverAttributedError provides details about an attribution exceeding its payment.
type OverAttributedError struct {
	PaymentID  PaymentID
	Amount     decimal.Decimal // payment amount
	Attributed decimal.Decimal // already attributed
	Requested  decimal.Decimal
}

// Available is how much more can still be attributed to the payment.
func (e *OverAttributedError) Available() decimal.Decimal {
	return e.Amount.Sub(e.Attributed)
}

func (e *OverAttributedError) Error() string {
	return fmt.Sprintf("over-attributed payment %s: amount %s, attributed %s, requested %s",
		e.PaymentID, e.Amount, e.Attributed, e.Requested)
}

func (e *OverAttributedError) Unwrap() error { return ErrOverAttributed }

// InsufficientIncomeError provides details about an income shortfall.
type InsufficientIncomeError struct {
	IncomeEventID IncomeEventID
	Remaining     decimal.Decimal
	Requested     decimal.Decimal
}

func (e *InsufficientIncomeError) Error() string {
	return fmt.Sprintf("insufficient income on %s: remaining %s, requested %s, shortfall %s",
		e.IncomeEventID, e.Remaining, e.Requested, e.Requested.Sub(e.Remaining))
}

func (e *InsufficientIncomeError) Unwrap() error { return ErrInsufficientIncome }

// =============================================================================
// ERROR KINDS
// =============================================================================

// Kind is the taxonomy bucket of an error, stable across versions.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindInvalid            Kind = "invalid"
	KindImmutableState     Kind = "immutable_state"
	KindAlreadySettled     Kind = "already_settled"
	KindNotSettled         Kind = "not_settled"
	KindCancelled          Kind = "cancelled"
	KindOverAttributed     Kind = "over_attributed"
	KindInsufficientIncome Kind = "insufficient_income"
	KindConflict           Kind = "conflict"
	KindInternal           Kind = "internal"
)

var kinds = []struct {
	sentinel error
	kind     Kind
}{
	{ErrNotFound, KindNotFound},
	{ErrInvalid, KindInvalid},
	{ErrImmutableState, KindImmutableState},
	{ErrAlreadySettled, KindAlreadySettled},
	{ErrNotSettled, KindNotSettled},
	{ErrCancelled, KindCancelled},
	{ErrOverAttributed, KindOverAttributed},
	{ErrInsufficientIncome, KindInsufficientIncome},
	{ErrConflict, KindConflict},
}

// KindOf classifies err. Unknown errors are KindInternal; nil is "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindInternal
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is due to the request, not the system.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindInternal, KindConflict, "":
		return false
	default:
		return true
	}
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStateError returns true for lifecycle rejections.
func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}
