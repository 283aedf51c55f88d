package payments

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/warp/household-payments/generic"
)

// Engine exposes the lifecycle, ledger, scheduler and query operations.
// It is safe for concurrent use; all coordination happens in the TxStore.
type Engine struct {
	Store      TxStore
	Categories CategoryResolver
	Audit      AuditSink // optional
	Logger     *slog.Logger

	// Now is the wall clock, replaceable in tests.
	Now func() time.Time
	// NewID generates entity identifiers.
	NewID func() string
}

// NewEngine wires an engine with a real clock and UUID identifiers.
func NewEngine(store TxStore, categories CategoryResolver, audit AuditSink) *Engine {
	return &Engine{
		Store:      store,
		Categories: categories,
		Audit:      audit,
		Logger:     slog.Default(),
		Now:        time.Now,
		NewID:      uuid.NewString,
	}
}

func (e *Engine) today() generic.Date { return generic.DateOf(e.Now()) }

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// emit records an audit fact after commit. A failing sink is logged only.
func (e *Engine) emit(ctx context.Context, entry AuditEntry) {
	if e.Audit == nil {
		return
	}
	entry.At = e.Now().UTC()
	if entry.EntityType == "" {
		entry.EntityType = generic.EntityPayment
	}
	if err := e.Audit.Record(ctx, entry); err != nil {
		e.logger().WarnContext(ctx, "audit record failed",
			"household_id", entry.HouseholdID,
			"action", entry.Action,
			"entity_id", entry.EntityID,
			"error", err)
	}
}

func (e *Engine) requireHousehold(ctx context.Context, store Store, householdID generic.HouseholdID) error {
	ok, err := store.HouseholdExists(ctx, householdID)
	if err != nil {
		return err
	}
	if !ok {
		return generic.NotFound(generic.EntityHousehold, householdID)
	}
	return nil
}

func (e *Engine) loadPayment(ctx context.Context, store Store, householdID generic.HouseholdID, id generic.PaymentID) (*Payment, error) {
	p, err := store.GetPayment(ctx, householdID, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, generic.NotFound(generic.EntityPayment, id)
	}
	return p, nil
}

func (e *Engine) loadIncome(ctx context.Context, store Store, householdID generic.HouseholdID, id generic.IncomeEventID) (*IncomeEvent, error) {
	ev, err := store.GetIncomeEvent(ctx, householdID, id)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, generic.NotFound(generic.EntityIncomeEvent, id)
	}
	return ev, nil
}

func snapshot(p Payment) *Payment { return &p }
