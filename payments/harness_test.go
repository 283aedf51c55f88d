package payments_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/household-payments/generic"
	"github.com/warp/household-payments/payments"
	"github.com/warp/household-payments/store/memory"
	"github.com/warp/household-payments/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// backend is what both stores offer beyond payments.TxStore.
type backend interface {
	payments.TxStore
	payments.CategoryResolver
	payments.AuditSink
	CreateHousehold(ctx context.Context, h payments.Household) (*payments.Household, error)
	CreateCategory(ctx context.Context, c payments.Category) (*payments.Category, error)
	CreateIncomeEvent(ctx context.Context, ev payments.IncomeEvent) (*payments.IncomeEvent, error)
	ListAuditEntries(ctx context.Context, householdID generic.HouseholdID) ([]payments.AuditEntry, error)
}

// today for every engine under test. 2024-01 fixtures are in the past.
var testNow = time.Date(2024, time.June, 15, 9, 30, 0, 0, time.UTC)

type harness struct {
	ctx      context.Context
	engine   *payments.Engine
	store    backend
	hh       generic.HouseholdID
	category generic.CategoryID
}

func newHarness(t *testing.T, b backend) *harness {
	t.Helper()
	ctx := payments.WithActor(context.Background(), "member-1")

	hh, err := b.CreateHousehold(ctx, payments.Household{ID: "hh-1", Name: "Test Household"})
	require.NoError(t, err)
	cat, err := b.CreateCategory(ctx, payments.Category{ID: "cat-rent", HouseholdID: hh.ID, Name: "Rent", Active: true})
	require.NoError(t, err)

	engine := payments.NewEngine(b, b, b)
	engine.Now = func() time.Time { return testNow }

	return &harness{ctx: ctx, engine: engine, store: b, hh: hh.ID, category: cat.ID}
}

// forEachStore runs fn against a fresh memory store and a fresh SQLite store.
func forEachStore(t *testing.T, fn func(t *testing.T, h *harness)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, newHarness(t, memory.New()))
	})
	t.Run("sqlite", func(t *testing.T) {
		store, err := sqlite.New(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		fn(t, newHarness(t, store))
	})
}

func amt(s string) decimal.Decimal { return generic.MustParseAmount(s) }

func date(s string) generic.Date { return generic.MustParseDate(s) }

func (h *harness) once(t *testing.T, payee, amount, due string) payments.Payment {
	t.Helper()
	return h.create(t, payments.NewPayment{
		Payee:      payee,
		Amount:     amt(amount),
		DueDate:    date(due),
		CategoryID: h.category,
	})
}

func (h *harness) monthly(t *testing.T, payee, amount, due string) payments.Payment {
	t.Helper()
	return h.create(t, payments.NewPayment{
		Payee:      payee,
		Amount:     amt(amount),
		DueDate:    date(due),
		Kind:       payments.KindRecurring,
		Frequency:  generic.FrequencyMonthly,
		CategoryID: h.category,
	})
}

func (h *harness) create(t *testing.T, in payments.NewPayment) payments.Payment {
	t.Helper()
	p, err := h.engine.Create(h.ctx, h.hh, in)
	require.NoError(t, err)
	return *p
}

func (h *harness) income(t *testing.T, id, total, scheduled string) payments.IncomeEvent {
	t.Helper()
	ev, err := h.store.CreateIncomeEvent(h.ctx, payments.IncomeEvent{
		ID:            generic.IncomeEventID(id),
		HouseholdID:   h.hh,
		Source:        "salary",
		TotalAmount:   amt(total),
		ScheduledDate: date(scheduled),
	})
	require.NoError(t, err)
	return *ev
}

func (h *harness) reloadIncome(t *testing.T, id generic.IncomeEventID) payments.IncomeEvent {
	t.Helper()
	ev, err := h.store.GetIncomeEvent(h.ctx, h.hh, id)
	require.NoError(t, err)
	require.NotNil(t, ev)
	return *ev
}

func (h *harness) attributions(t *testing.T, id generic.PaymentID) []payments.Attribution {
	t.Helper()
	attrs, err := h.engine.Attributions(h.ctx, h.hh, id)
	require.NoError(t, err)
	return attrs
}

// assertAmount compares decimals by value.
func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Equal(t, amt(want).String(), got.String())
}

func assertBalanced(t *testing.T, ev payments.IncomeEvent) {
	t.Helper()
	assert.True(t, ev.Balanced(), "income %s: allocated %s + remaining %s != total %s",
		ev.ID, ev.AllocatedAmount, ev.RemainingAmount, ev.TotalAmount)
}
