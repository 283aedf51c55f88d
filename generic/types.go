/*
Package generic provides the domain-agnostic primitives of the payment engine.

PURPOSE:
  This package contains the building blocks shared by every layer: typed
  identifiers, exact money arithmetic, calendar dates, recurrence rules and
  the error taxonomy. Nothing here knows about payments or income events;
  the payments package composes these primitives into the engine.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: Type-safe IDs for households, payments, income events...
  - Money: decimal.Decimal helpers (parse, validate, sum)

DESIGN PRINCIPLES:
  1. Precision: Money is always decimal.Decimal, never float64. A single
     rounding error would break the allocated + remaining == total invariant.
  2. Type Safety: Strong typing for IDs prevents mixing payment/income IDs
  3. Calendar Awareness: Dates are calendar days, not durations (time.go)

USAGE:
  amount, err := generic.ParseAmount("125.50")
  due := generic.NewDate(2024, time.January, 31)
  next := generic.NextOccurrence(due, generic.FrequencyMonthly) // 2024-02-29

SEE ALSO:
  - time.go: Date type and calendar arithmetic
  - recurrence.go: Recurrence calculator
  - errors.go: Error taxonomy
*/
package generic

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type HouseholdID string
type PaymentID string
type IncomeEventID string
type AttributionID string
type CategoryID string

// MemberID identifies the household member acting on the engine.
type MemberID string

// SystemMember is the actor recorded for scheduler-driven changes.
const SystemMember MemberID = "system"

// =============================================================================
// MONEY - Fixed-point decimal amounts
// =============================================================================

// ParseAmount parses a decimal string such as "100" or "99.95".
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: "amount", Message: fmt.Sprintf("not a decimal: %q", s)}
	}
	return d, nil
}

// MustParseAmount is ParseAmount for literals in tests and fixtures.
func MustParseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// RequirePositive returns a ValidationError for field when d <= 0.
func RequirePositive(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return &ValidationError{Field: field, Message: "must be greater than zero"}
	}
	return nil
}

// Sum adds amounts exactly.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
