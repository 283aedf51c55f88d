/*
Package payments implements the income–payment attribution engine.

PURPOSE:
  Tracks a household's obligations (payments), earmarks portions of income
  events against them through an attribution ledger, drives the payment
  lifecycle (settle, revert, recurrence) and runs a greedy auto-attribution
  pass.

KEY CONCEPTS IN THIS FILE (types.go):
  - Payment: an obligation to pay a payee a fixed amount by a due date
  - IncomeEvent: an inflow whose funds can be partially earmarked
  - Attribution: a ledger entry earmarking income funds for a payment

CRITICAL INVARIANTS:
  1. For every income event: Allocated + Remaining == Total, Remaining >= 0
  2. For every payment: Σ attribution amounts <= payment amount
  3. Attribution writes and the matching income balance change commit together
  4. "overdue" is derived at read time, never persisted

SEE ALSO:
  - lifecycle.go: Payment lifecycle operations
  - attribution.go: Attribution ledger
  - matcher.go: Auto-attribution scheduler
  - query.go: Upcoming, overdue and period summaries
*/
package payments

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/household-payments/generic"
)

// =============================================================================
// PAYMENT
// =============================================================================

type Kind string

const (
	KindOnce      Kind = "once"
	KindRecurring Kind = "recurring"
	KindVariable  Kind = "variable"
)

func (k Kind) Valid() bool {
	return k == KindOnce || k == KindRecurring || k == KindVariable
}

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusPartial   Status = "partial"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue" // derived, never stored
	StatusCancelled Status = "cancelled"
)

// Settled reports whether a settlement is recorded (paid or partial).
func (s Status) Settled() bool { return s == StatusPaid || s == StatusPartial }

type Payment struct {
	ID          generic.PaymentID
	HouseholdID generic.HouseholdID
	Payee       string
	Amount      decimal.Decimal
	DueDate     generic.Date
	Kind        Kind
	Frequency   generic.Frequency
	NextDueDate *generic.Date
	Status      Status
	PaidDate    *generic.Date
	PaidAmount  *decimal.Decimal
	CategoryID  generic.CategoryID
	AutoPay     bool
	Notes       string
	// SpawnedID is the occurrence created when this payment was first
	// settled. It guards against spawning twice after a revert.
	SpawnedID *generic.PaymentID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ObservedStatus is the status a reader sees at the given day: a scheduled
// or partial payment whose due date has passed is overdue.
func (p Payment) ObservedStatus(today generic.Date) Status {
	if (p.Status == StatusScheduled || p.Status == StatusPartial) && p.DueDate.Before(today) {
		return StatusOverdue
	}
	return p.Status
}

// Observe returns a copy with Status replaced by ObservedStatus.
func (p Payment) Observe(today generic.Date) Payment {
	p.Status = p.ObservedStatus(today)
	return p
}

// nextDueDate applies the creation rule: once payments point at their own
// due date, everything else at the following occurrence.
func nextDueDate(kind Kind, due generic.Date, f generic.Frequency) *generic.Date {
	if kind == KindOnce {
		return due.Ptr()
	}
	return generic.NextOccurrence(due, f).Ptr()
}

// NewPayment is the creation request for a payment.
type NewPayment struct {
	Payee      string
	Amount     decimal.Decimal
	DueDate    generic.Date
	Kind       Kind
	Frequency  generic.Frequency
	CategoryID generic.CategoryID
	AutoPay    bool
	Notes      string
}

// PaymentUpdate carries the fields to change; nil means unchanged.
type PaymentUpdate struct {
	Payee      *string
	Amount     *decimal.Decimal
	DueDate    *generic.Date
	Kind       *Kind
	Frequency  *generic.Frequency
	CategoryID *generic.CategoryID
	AutoPay    *bool
	Notes      *string
}

// PaymentFilter narrows ListPayments. Zero values match everything.
type PaymentFilter struct {
	Statuses []Status // stored statuses
	DueFrom  *generic.Date
	DueTo    *generic.Date
}

// Matches applies the filter in memory.
func (f PaymentFilter) Matches(p Payment) bool {
	if f.DueFrom != nil && p.DueDate.Before(*f.DueFrom) {
		return false
	}
	if f.DueTo != nil && p.DueDate.After(*f.DueTo) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if p.Status == s {
			return true
		}
	}
	return false
}

// =============================================================================
// INCOME EVENT - Owned by the income collaborator, balances owned by the ledger
// =============================================================================

type IncomeStatus string

const (
	IncomeScheduled IncomeStatus = "scheduled"
	IncomeReceived  IncomeStatus = "received"
	IncomeCancelled IncomeStatus = "cancelled"
)

type IncomeEvent struct {
	ID              generic.IncomeEventID
	HouseholdID     generic.HouseholdID
	Source          string
	TotalAmount     decimal.Decimal
	AllocatedAmount decimal.Decimal
	RemainingAmount decimal.Decimal
	Status          IncomeStatus
	ScheduledDate   generic.Date
	CreatedAt       time.Time
}

// Balanced reports whether the conservation invariant holds.
func (e IncomeEvent) Balanced() bool {
	return e.AllocatedAmount.Add(e.RemainingAmount).Equal(e.TotalAmount) &&
		!e.RemainingAmount.IsNegative() && !e.AllocatedAmount.IsNegative()
}

// =============================================================================
// ATTRIBUTION - Ledger entry, never mutated in place
// =============================================================================

type AttributionKind string

const (
	AttributionManual    AttributionKind = "manual"
	AttributionAutomatic AttributionKind = "automatic"
)

type Attribution struct {
	ID            generic.AttributionID
	HouseholdID   generic.HouseholdID
	PaymentID     generic.PaymentID
	IncomeEventID generic.IncomeEventID
	Amount        decimal.Decimal
	Kind          AttributionKind
	CreatedBy     generic.MemberID
	CreatedAt     time.Time
}

// =============================================================================
// COLLABORATOR ENTITIES
// =============================================================================

type Household struct {
	ID        generic.HouseholdID
	Name      string
	CreatedAt time.Time
}

type Category struct {
	ID          generic.CategoryID
	HouseholdID generic.HouseholdID
	Name        string
	Active      bool
}
