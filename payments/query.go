package payments

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/household-payments/generic"
)

// =============================================================================
// QUERIES - Read side, statuses observed against today
// =============================================================================

// Get returns one payment with its observed status.
func (e *Engine) Get(ctx context.Context, householdID generic.HouseholdID, id generic.PaymentID) (*Payment, error) {
	p, err := e.loadPayment(ctx, e.Store, householdID, id)
	if err != nil {
		return nil, err
	}
	out := p.Observe(e.today())
	return &out, nil
}

// List returns the household's payments matching filter, ordered by due date.
// Filter statuses are matched against observed statuses, so overdue works.
func (e *Engine) List(ctx context.Context, householdID generic.HouseholdID, filter PaymentFilter) ([]Payment, error) {
	statuses := filter.Statuses
	filter.Statuses = nil
	all, err := e.observedPayments(ctx, householdID, filter)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return all, nil
	}
	out := all[:0]
	for _, p := range all {
		if (PaymentFilter{Statuses: statuses}).Matches(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Upcoming lists scheduled and partial payments due in [from, from+days].
func (e *Engine) Upcoming(ctx context.Context, householdID generic.HouseholdID, from generic.Date, days int) ([]Payment, error) {
	if days < 0 {
		return nil, &generic.ValidationError{Field: "days", Message: "must not be negative"}
	}
	window := generic.Window(from, days)
	return e.List(ctx, householdID, PaymentFilter{
		Statuses: []Status{StatusScheduled, StatusPartial},
		DueFrom:  &window.Start,
		DueTo:    &window.End,
	})
}

// Overdue lists payments whose due date passed without full settlement.
func (e *Engine) Overdue(ctx context.Context, householdID generic.HouseholdID) ([]Payment, error) {
	return e.List(ctx, householdID, PaymentFilter{Statuses: []Status{StatusOverdue}})
}

// IncomeEvents lists the household's income events by scheduled date.
func (e *Engine) IncomeEvents(ctx context.Context, householdID generic.HouseholdID) ([]IncomeEvent, error) {
	if err := e.requireHousehold(ctx, e.Store, householdID); err != nil {
		return nil, err
	}
	events, err := e.Store.ListIncomeEvents(ctx, householdID)
	if err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool {
		if c := events[i].ScheduledDate.Compare(events[j].ScheduledDate); c != 0 {
			return c < 0
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

func (e *Engine) observedPayments(ctx context.Context, householdID generic.HouseholdID, filter PaymentFilter) ([]Payment, error) {
	if err := e.requireHousehold(ctx, e.Store, householdID); err != nil {
		return nil, err
	}
	stored, err := e.Store.ListPayments(ctx, householdID, filter)
	if err != nil {
		return nil, err
	}
	today := e.today()
	out := make([]Payment, len(stored))
	for i, p := range stored {
		out[i] = p.Observe(today)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].DueDate.Compare(out[j].DueDate); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// PERIOD SUMMARY
// =============================================================================

type PeriodSummary struct {
	HouseholdID     generic.HouseholdID
	Period          generic.Period
	TotalScheduled  decimal.Decimal // amounts of non-cancelled payments
	TotalPaid       decimal.Decimal
	TotalAttributed decimal.Decimal
	Outstanding     decimal.Decimal // unpaid remainder of non-cancelled payments
	Count           int
	CountByStatus   map[Status]int // observed statuses
}

// Summary aggregates payments due within the period.
func (e *Engine) Summary(ctx context.Context, householdID generic.HouseholdID, period generic.Period) (*PeriodSummary, error) {
	if period.End.Before(period.Start) {
		return nil, generic.ErrInvalidPeriod
	}
	payments, err := e.observedPayments(ctx, householdID, PaymentFilter{DueFrom: &period.Start, DueTo: &period.End})
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

	s := &PeriodSummary{
		HouseholdID:     householdID,
		Period:          period,
		TotalScheduled:  decimal.Zero,
		TotalPaid:       decimal.Zero,
		TotalAttributed: decimal.Zero,
		Outstanding:     decimal.Zero,
		Count:           len(payments),
		CountByStatus:   make(map[Status]int),
	}
	for _, p := range payments {
		s.CountByStatus[p.Status]++
		if p.PaidAmount != nil {
			s.TotalPaid = s.TotalPaid.Add(*p.PaidAmount)
		}
		if p.Status == StatusCancelled {
			continue
		}
		s.TotalScheduled = s.TotalScheduled.Add(p.Amount)
		s.TotalAttributed = s.TotalAttributed.Add(attributedBy[p.ID])
		due := p.Amount
		if p.PaidAmount != nil {
			due = due.Sub(*p.PaidAmount)
		}
		if due.IsPositive() {
			s.Outstanding = s.Outstanding.Add(due)
		}
	}
	return s, nil
}
