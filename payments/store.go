/*
store.go - Persistence and collaborator interfaces

PURPOSE:
  Defines the boundary between the engine and everything it does not own:
  storage, the category taxonomy and the audit sink. Implementations live
  in store/sqlite (production) and store/memory (tests, dev).

TRANSACTIONS:
  TxStore.WithTx is the only transaction boundary. Every operation that
  touches both a payment/attribution and an income event runs its reads,
  checks and writes inside one WithTx call. A store must guarantee that two
  concurrent WithTx calls cannot both observe the same income balance and
  both commit (serialize them, or fail one with generic.ErrConflict).

BALANCE OWNERSHIP:
  AdjustIncomeBalances is the only way to change allocated/remaining
  amounts, and only the attribution ledger calls it.

LOOKUPS:
  Get* methods return (nil, nil) when the row does not exist in the
  household; the engine turns that into a NotFoundError.

SEE ALSO:
  - store/sqlite/sqlite.go: SQLite implementation
  - store/memory/memory.go: In-memory implementation
*/
package payments

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/household-payments/generic"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	HouseholdExists(ctx context.Context, householdID generic.HouseholdID) (bool, error)

	GetPayment(ctx context.Context, householdID generic.HouseholdID, id generic.PaymentID) (*Payment, error)
	ListPayments(ctx context.Context, householdID generic.HouseholdID, filter PaymentFilter) ([]Payment, error)
	// SavePayment inserts or replaces the payment row.
	SavePayment(ctx context.Context, p Payment) error
	DeletePayment(ctx context.Context, householdID generic.HouseholdID, id generic.PaymentID) error

	GetIncomeEvent(ctx context.Context, householdID generic.HouseholdID, id generic.IncomeEventID) (*IncomeEvent, error)
	ListIncomeEvents(ctx context.Context, householdID generic.HouseholdID) ([]IncomeEvent, error)
	// AdjustIncomeBalances adds the deltas to allocated and remaining.
	// Implementations reject results that break conservation or go negative.
	AdjustIncomeBalances(ctx context.Context, householdID generic.HouseholdID, id generic.IncomeEventID, deltaAllocated, deltaRemaining decimal.Decimal) error

	GetAttribution(ctx context.Context, householdID generic.HouseholdID, id generic.AttributionID) (*Attribution, error)
	ListAttributions(ctx context.Context, householdID generic.HouseholdID, paymentID generic.PaymentID) ([]Attribution, error)
	ListHouseholdAttributions(ctx context.Context, householdID generic.HouseholdID) ([]Attribution, error)
	InsertAttribution(ctx context.Context, a Attribution) error
	DeleteAttribution(ctx context.Context, householdID generic.HouseholdID, id generic.AttributionID) error
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// CATEGORY TAXONOMY COLLABORATOR
// =============================================================================

// CategoryResolver resolves a category reference. It returns (nil, nil)
// when the category is absent, inactive or owned by another household.
type CategoryResolver interface {
	ResolveActiveCategory(ctx context.Context, householdID generic.HouseholdID, id generic.CategoryID) (*Category, error)
}

// =============================================================================
// AUDIT SINK COLLABORATOR
// =============================================================================

type AuditAction string

const (
	AuditCreate AuditAction = "create"
	AuditUpdate AuditAction = "update"
	AuditDelete AuditAction = "delete"
)

// AuditEntry is a fact emitted after a payment change commits.
// Before/After hold payment snapshots (nil for create/delete respectively).
type AuditEntry struct {
	HouseholdID generic.HouseholdID
	Action      AuditAction
	EntityType  string
	EntityID    string
	Before      *Payment
	After       *Payment
	ActorID     generic.MemberID
	At          time.Time
}

// AuditSink persists audit facts. Failures never undo the committed change.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// =============================================================================
// RUN LOG - Auto-attribution pass history
// =============================================================================

// AttributionRun records one scheduled AutoAttribute pass for a household.
type AttributionRun struct {
	ID          string
	HouseholdID generic.HouseholdID
	StartedAt   time.Time
	FinishedAt  time.Time
	Attributed  int
	Error       string // empty on success
}

type RunLog interface {
	SaveAttributionRun(ctx context.Context, run AttributionRun) error
	// ListAttributionRuns returns the household's most recent runs first.
	ListAttributionRuns(ctx context.Context, householdID generic.HouseholdID, limit int) ([]AttributionRun, error)
}
