/*
forecast.go - Cash-flow projection over a period

PURPOSE:
  Answers "will the money we expect cover what we owe?" for a future
  window. Stored payments contribute their unpaid remainder; recurring
  chains contribute the occurrences settlement has not spawned yet, so a
  quarter-long forecast sees every month's rent, not just the next one.

PROJECTION RULES:
  1. Stored, non-cancelled payments due in the period: amount − paid,
     minus what is already attributed to them
  2. Recurring payments that have not spawned their successor extend the
     chain with generic.Occurrences until the period end (Projected=true,
     never attributed)
  3. Expected income: remaining funds of non-cancelled income events
     scheduled in the period
  4. Shortfall = max(0, unfunded − expected income)

  A forecast never writes; projected items have no payment ID.

SEE ALSO:
  - query.go: Summary (what happened, observed statuses)
  - generic/recurrence.go: Occurrences
*/
package payments

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/household-payments/generic"
)

// ForecastItem is one obligation falling in the forecast period.
type ForecastItem struct {
	PaymentID  generic.PaymentID // empty when Projected
	Payee      string
	DueDate    generic.Date
	CategoryID generic.CategoryID
	Due        decimal.Decimal // still to pay
	Attributed decimal.Decimal
	Projected  bool
}

// Unfunded is the part of Due no attribution covers.
func (i ForecastItem) Unfunded() decimal.Decimal {
	u := i.Due.Sub(i.Attributed)
	if u.IsNegative() {
		return decimal.Zero
	}
	return u
}

type Forecast struct {
	HouseholdID    generic.HouseholdID
	Period         generic.Period
	Items          []ForecastItem // by due date, stored before projected
	TotalDue       decimal.Decimal
	TotalUnfunded  decimal.Decimal
	ExpectedIncome decimal.Decimal
	Shortfall      decimal.Decimal
}

// Forecast projects obligations and income over the period.
func (e *Engine) Forecast(ctx context.Context, householdID generic.HouseholdID, period generic.Period) (*Forecast, error) {
	if period.End.Before(period.Start) {
		return nil, generic.ErrInvalidPeriod
	}
	if err := e.requireHousehold(ctx, e.Store, householdID); err != nil {
		return nil, err
	}
	stored, err := e.Store.ListPayments(ctx, householdID, PaymentFilter{DueTo: &period.End})
	if err != nil {
		return nil, err
	}
	attrs, err := e.Store.ListHouseholdAttributions(ctx, householdID)
	if err != nil {
		return nil, err
	}
	attributedBy := make(map[generic.PaymentID]decimal.Decimal)
	for _, a := range attrs {
		attributedBy[a.PaymentID] = attributedBy[a.PaymentID].Add(a.Amount)
	}

	f := &Forecast{
		HouseholdID:    householdID,
		Period:         period,
		TotalDue:       decimal.Zero,
		TotalUnfunded:  decimal.Zero,
		ExpectedIncome: decimal.Zero,
		Shortfall:      decimal.Zero,
	}
	for _, p := range stored {
		if p.Status == StatusCancelled {
			continue
		}
		if period.Contains(p.DueDate) && p.Status != StatusPaid {
			due := p.Amount
			if p.PaidAmount != nil {
				due = due.Sub(*p.PaidAmount)
			}
			if due.IsPositive() {
				f.Items = append(f.Items, ForecastItem{
					PaymentID:  p.ID,
					Payee:      p.Payee,
					DueDate:    p.DueDate,
					CategoryID: p.CategoryID,
					Due:        due,
					Attributed: decimal.Min(attributedBy[p.ID], due),
				})
			}
		}
		if p.Kind == KindRecurring && p.SpawnedID == nil {
			f.Items = append(f.Items, projectChain(p, period)...)
		}
	}
	sort.SliceStable(f.Items, func(i, j int) bool {
		a, b := f.Items[i], f.Items[j]
		if c := a.DueDate.Compare(b.DueDate); c != 0 {
			return c < 0
		}
		if a.Projected != b.Projected {
			return !a.Projected
		}
		if a.PaymentID != b.PaymentID {
			return a.PaymentID < b.PaymentID
		}
		return a.Payee < b.Payee
	})
	for _, item := range f.Items {
		f.TotalDue = f.TotalDue.Add(item.Due)
		f.TotalUnfunded = f.TotalUnfunded.Add(item.Unfunded())
	}

	events, err := e.Store.ListIncomeEvents(ctx, householdID)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if ev.Status != IncomeCancelled && period.Contains(ev.ScheduledDate) {
			f.ExpectedIncome = f.ExpectedIncome.Add(ev.RemainingAmount)
		}
	}
	if gap := f.TotalUnfunded.Sub(f.ExpectedIncome); gap.IsPositive() {
		f.Shortfall = gap
	}
	return f, nil
}

// projectChain lists the occurrences after p that fall in the period.
func projectChain(p Payment, period generic.Period) []ForecastItem {
	first := generic.NextOccurrence(p.DueDate, p.Frequency)
	if !first.After(p.DueDate) {
		return nil
	}
	var items []ForecastItem
	for _, due := range generic.Occurrences(first, p.Frequency, period.End) {
		if due.Before(period.Start) {
			continue
		}
		items = append(items, ForecastItem{
			Payee:      p.Payee,
			DueDate:    due,
			CategoryID: p.CategoryID,
			Due:        p.Amount,
			Attributed: decimal.Zero,
			Projected:  true,
		})
	}
	return items
}
