/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate a fresh household with
	realistic data for testing and demos. Each scenario creates categories,
	payments, income events and attributions that demonstrate specific
	features.

AVAILABLE SCENARIOS:

	monthly-bills:   Recurring bills and two paychecks, matched automatically
	overdue-catchup: Missed bills, one partly paid, a bonus covering them
	shared-income:   Two earners, manual attributions split across incomes

HOW SCENARIOS WORK:
 1. Create a new household (scenarios never touch existing data)
 2. Create categories
 3. Bulk-create payments from JSON via the factory
 4. Register income events
 5. Settle, attribute, or run the auto-attribution pass

	Dates are relative to the engine clock, so "overdue" stays overdue
	whenever the scenario is loaded.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "monthly-bills"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, hh)
 3. Add it to the 'loaders' map

SEE ALSO:
  - handlers.go: Endpoints the loaded data can be inspected with
  - factory/payment.go: Payment JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/warp/household-payments/factory"
	"github.com/warp/household-payments/generic"
	"github.com/warp/household-payments/payments"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "monthly-bills",
		Name:        "Monthly Bills",
		Description: "Rent, utilities and a subscription paid from two paychecks by the auto-attribution pass",
	},
	{
		ID:          "overdue-catchup",
		Name:        "Overdue Catch-up",
		Description: "Missed bills, one partly paid, and a bonus manually attributed to catch up",
	},
	{
		ID:          "shared-income",
		Name:        "Shared Income",
		Description: "Two earners splitting a large payment with manual attributions",
	},
}

type scenarioLoader func(h *Handler, ctx context.Context, hh generic.HouseholdID) (scenarioCounts, error)

type scenarioCounts struct {
	payments int
	incomes  int
}

var loaders = map[string]scenarioLoader{
	"monthly-bills":   (*Handler).loadMonthlyBillsScenario,
	"overdue-catchup": (*Handler).loadOverdueCatchupScenario,
	"shared-income":   (*Handler).loadSharedIncomeScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario into a new household.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}

	load, ok := loaders[req.ScenarioID]
	if !ok {
		h.writeEngineError(w, r, &generic.ValidationError{Field: "scenario_id", Message: fmt.Sprintf("unknown scenario %q", req.ScenarioID)})
		return
	}

	ctx := r.Context()
	var name string
	for _, s := range scenarios {
		if s.ID == req.ScenarioID {
			name = s.Name
		}
	}
	hh, err := h.Store.CreateHousehold(ctx, payments.Household{
		ID:   generic.HouseholdID(fmt.Sprintf("demo-%s-%s", req.ScenarioID, uuid.NewString()[:8])),
		Name: name,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	counts, err := load(h, ctx, hh.ID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	h.Logger.InfoContext(ctx, "scenario loaded", "scenario_id", req.ScenarioID, "household_id", hh.ID)
	writeJSON(w, http.StatusCreated, LoadScenarioResponse{
		ScenarioID:  req.ScenarioID,
		HouseholdID: string(hh.ID),
		Payments:    counts.payments,
		Incomes:     counts.incomes,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadMonthlyBillsScenario(ctx context.Context, hh generic.HouseholdID) (scenarioCounts, error) {
	today := generic.DateOf(h.Engine.Now())
	if err := h.createCategories(ctx, hh, "housing", "utilities", "subscriptions"); err != nil {
		return scenarioCounts{}, err
	}

	created, err := h.bulkCreate(ctx, hh, []factory.PaymentJSON{
		paymentJSON("Landlord", "1450.00", today.AddDays(3), "recurring", "monthly", hh, "housing"),
		paymentJSON("City Power", "96.40", today.AddDays(8), "variable", "monthly", hh, "utilities"),
		paymentJSON("Water Board", "38.15", today.AddDays(12), "recurring", "monthly", hh, "utilities"),
		paymentJSON("Streaming", "15.99", today.AddDays(20), "recurring", "monthly", hh, "subscriptions"),
	})
	if err != nil {
		return scenarioCounts{}, err
	}

	for _, inc := range []payments.IncomeEvent{
		{Source: "Salary", TotalAmount: generic.MustParseAmount("1600.00"), ScheduledDate: today.AddDays(1)},
		{Source: "Salary", TotalAmount: generic.MustParseAmount("1600.00"), ScheduledDate: today.AddDays(15)},
	} {
		inc.HouseholdID = hh
		if _, err := h.Store.CreateIncomeEvent(ctx, inc); err != nil {
			return scenarioCounts{}, err
		}
	}

	if _, err := h.Engine.AutoAttribute(ctx, hh, generic.SystemMember); err != nil {
		return scenarioCounts{}, err
	}
	return scenarioCounts{payments: len(created), incomes: 2}, nil
}

func (h *Handler) loadOverdueCatchupScenario(ctx context.Context, hh generic.HouseholdID) (scenarioCounts, error) {
	today := generic.DateOf(h.Engine.Now())
	if err := h.createCategories(ctx, hh, "utilities", "insurance"); err != nil {
		return scenarioCounts{}, err
	}

	created, err := h.bulkCreate(ctx, hh, []factory.PaymentJSON{
		paymentJSON("Gas Company", "120.00", today.AddDays(-20), "recurring", "monthly", hh, "utilities"),
		paymentJSON("Car Insurance", "310.50", today.AddDays(-5), "recurring", "quarterly", hh, "insurance"),
		paymentJSON("Phone", "45.00", today.AddDays(6), "recurring", "monthly", hh, "utilities"),
	})
	if err != nil {
		return scenarioCounts{}, err
	}
	gas, insurance := created[0], created[1]

	// Half the insurance went out on time; the rest is still owed.
	if _, err := h.Engine.Settle(ctx, hh, insurance.ID, today.AddDays(-5), generic.MustParseAmount("150.00")); err != nil {
		return scenarioCounts{}, err
	}

	bonus, err := h.Store.CreateIncomeEvent(ctx, payments.IncomeEvent{
		HouseholdID:   hh,
		Source:        "Bonus",
		TotalAmount:   generic.MustParseAmount("400.00"),
		ScheduledDate: today.AddDays(-1),
		Status:        payments.IncomeReceived,
	})
	if err != nil {
		return scenarioCounts{}, err
	}

	actor := payments.ActorFrom(ctx)
	if _, err := h.Engine.Attribute(ctx, hh, gas.ID, bonus.ID, gas.Amount, payments.AttributionManual, actor); err != nil {
		return scenarioCounts{}, err
	}
	if _, err := h.Engine.Attribute(ctx, hh, insurance.ID, bonus.ID, generic.MustParseAmount("160.50"), payments.AttributionManual, actor); err != nil {
		return scenarioCounts{}, err
	}
	return scenarioCounts{payments: len(created), incomes: 1}, nil
}

func (h *Handler) loadSharedIncomeScenario(ctx context.Context, hh generic.HouseholdID) (scenarioCounts, error) {
	today := generic.DateOf(h.Engine.Now())
	if err := h.createCategories(ctx, hh, "housing", "childcare"); err != nil {
		return scenarioCounts{}, err
	}

	created, err := h.bulkCreate(ctx, hh, []factory.PaymentJSON{
		paymentJSON("Mortgage", "2100.00", today.AddDays(10), "recurring", "monthly", hh, "housing"),
		paymentJSON("Daycare", "880.00", today.AddDays(14), "recurring", "monthly", hh, "childcare"),
	})
	if err != nil {
		return scenarioCounts{}, err
	}
	mortgage, daycare := created[0], created[1]

	var incomes []*payments.IncomeEvent
	for _, inc := range []payments.IncomeEvent{
		{Source: "Alex salary", TotalAmount: generic.MustParseAmount("2400.00"), ScheduledDate: today.AddDays(2)},
		{Source: "Sam salary", TotalAmount: generic.MustParseAmount("1900.00"), ScheduledDate: today.AddDays(4)},
	} {
		inc.HouseholdID = hh
		ev, err := h.Store.CreateIncomeEvent(ctx, inc)
		if err != nil {
			return scenarioCounts{}, err
		}
		incomes = append(incomes, ev)
	}

	actor := payments.ActorFrom(ctx)
	splits := []struct {
		payment payments.Payment
		income  *payments.IncomeEvent
		amount  string
	}{
		{mortgage, incomes[0], "1260.00"},
		{mortgage, incomes[1], "840.00"},
		{daycare, incomes[0], "440.00"},
		{daycare, incomes[1], "440.00"},
	}
	for _, s := range splits {
		if _, err := h.Engine.Attribute(ctx, hh, s.payment.ID, s.income.ID, generic.MustParseAmount(s.amount), payments.AttributionManual, actor); err != nil {
			return scenarioCounts{}, err
		}
	}
	return scenarioCounts{payments: len(created), incomes: len(incomes)}, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// createCategories creates active categories whose IDs are "<hh>-<name>".
func (h *Handler) createCategories(ctx context.Context, hh generic.HouseholdID, names ...string) error {
	for _, name := range names {
		if _, err := h.Store.CreateCategory(ctx, payments.Category{
			ID:          categoryID(hh, name),
			HouseholdID: hh,
			Name:        name,
			Active:      true,
		}); err != nil {
			return err
		}
	}
	return nil
}

// bulkCreate round-trips the batch through JSON so scenarios exercise the
// same parsing path as POST .../payments/bulk.
func (h *Handler) bulkCreate(ctx context.Context, hh generic.HouseholdID, list []factory.PaymentJSON) ([]payments.Payment, error) {
	raw, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	batch, err := h.PaymentFactory.ParseBulk(string(raw))
	if err != nil {
		return nil, err
	}
	return h.Engine.BulkCreate(ctx, hh, batch)
}

func paymentJSON(payee, amount string, due generic.Date, kind, freq string, hh generic.HouseholdID, category string) factory.PaymentJSON {
	a := generic.MustParseAmount(amount)
	return factory.PaymentJSON{
		Payee:       payee,
		Amount:      &a,
		DueDate:     due.String(),
		PaymentType: kind,
		Frequency:   freq,
		CategoryID:  string(categoryID(hh, category)),
	}
}

func categoryID(hh generic.HouseholdID, name string) generic.CategoryID {
	return generic.CategoryID(string(hh) + "-" + name)
}
