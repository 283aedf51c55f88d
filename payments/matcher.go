/*
matcher.go - Greedy auto-attribution

PURPOSE:
  Attributes unattributed scheduled payments to income events without
  manual input. The algorithm is deliberately first-fit, not an optimal
  matching, so results are reproducible and auditable.

ALGORITHM (single pass, no backtracking):
  1. Payments: stored status scheduled, zero attributions,
     sorted by (due date, id)
  2. Income: status scheduled, remaining > 0, sorted by (scheduled date, id)
  3. For each payment pick the first income whose tracked remaining covers
     the FULL payment amount, attribute it, decrement the tracked remaining
  4. No fit: skip silently (next run or a manual attribution picks it up)
  5. Never partial

EXAMPLE:
  Payments: A 50 due 01-01, B 80 due 01-05
  Income:   X 60 on 01-01, Y 100 on 01-02
  A → X (X: 60 → 10), B → Y (Y: 100 → 20)

CONCURRENCY:
  Each attribution is its own transaction and re-checks the rows it reads.
  A payment or income event changed by a concurrent writer since the scan
  is skipped, never partially attributed.

SEE ALSO:
  - attribution.go: attributeIn
  - api/scheduler.go: Periodic trigger
*/
package payments

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/household-payments/generic"
)

// AutoAttribute runs one greedy pass for the household and returns how
// many payments were newly attributed.
func (e *Engine) AutoAttribute(ctx context.Context, householdID generic.HouseholdID, actor generic.MemberID) (int, error) {
	if err := e.requireHousehold(ctx, e.Store, householdID); err != nil {
		return 0, err
	}

	candidates, err := e.unattributedPayments(ctx, householdID)
	if err != nil {
		return 0, err
	}
	funds, err := e.availableIncome(ctx, householdID)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 || len(funds) == 0 {
		return 0, nil
	}

	remaining := make([]decimal.Decimal, len(funds))
	for i, ev := range funds {
		remaining[i] = ev.RemainingAmount
	}

	attributed := 0
	for _, p := range candidates {
		i := firstFit(remaining, p.Amount)
		if i < 0 {
			continue
		}

		err := e.Store.WithTx(ctx, func(s Store) error {
			_, err := e.attributeIn(ctx, s, attributeRequest{
				householdID:      householdID,
				paymentID:        p.ID,
				incomeEventID:    funds[i].ID,
				amount:           p.Amount,
				kind:             AttributionAutomatic,
				actor:            actor,
				onlyUnattributed: true,
			})
			return err
		})

		var short *generic.InsufficientIncomeError
		switch {
		case err == nil:
			remaining[i] = remaining[i].Sub(p.Amount)
			attributed++
		case errors.As(err, &short):
			// Another writer drew on this income since the scan.
			remaining[i] = short.Remaining
			e.logger().DebugContext(ctx, "auto-attribution skipped payment",
				"payment_id", p.ID, "income_event_id", funds[i].ID, "reason", err)
		case errors.Is(err, errAlreadyAttributed), generic.IsClientError(err):
			e.logger().DebugContext(ctx, "auto-attribution skipped payment",
				"payment_id", p.ID, "reason", err)
		default:
			return attributed, err
		}
	}

	e.logger().InfoContext(ctx, "auto-attribution pass complete",
		"household_id", householdID,
		"candidates", len(candidates),
		"attributed", attributed)
	return attributed, nil
}

// firstFit returns the index of the first capacity covering amount, or -1.
func firstFit(remaining []decimal.Decimal, amount decimal.Decimal) int {
	for i, r := range remaining {
		if r.GreaterThanOrEqual(amount) {
			return i
		}
	}
	return -1
}

func (e *Engine) unattributedPayments(ctx context.Context, householdID generic.HouseholdID) ([]Payment, error) {
	scheduled, err := e.Store.ListPayments(ctx, householdID, PaymentFilter{Statuses: []Status{StatusScheduled}})
	if err != nil {
		return nil, err
	}
	attrs, err := e.Store.ListHouseholdAttributions(ctx, householdID)
	if err != nil {
		return nil, err
	}
	has := make(map[generic.PaymentID]bool, len(attrs))
	for _, a := range attrs {
		has[a.PaymentID] = true
	}

	var out []Payment
	for _, p := range scheduled {
		if !has[p.ID] {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].DueDate.Compare(out[j].DueDate); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (e *Engine) availableIncome(ctx context.Context, householdID generic.HouseholdID) ([]IncomeEvent, error) {
	events, err := e.Store.ListIncomeEvents(ctx, householdID)
	if err != nil {
		return nil, err
	}
	var out []IncomeEvent
	for _, ev := range events {
		if ev.Status == IncomeScheduled && ev.RemainingAmount.IsPositive() {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].ScheduledDate.Compare(out[j].ScheduledDate); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
