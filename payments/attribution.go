/*
attribution.go - Attribution ledger between payments and income events

PURPOSE:
  Earmarks part of an income event for a payment. The attribution row and
  the income event's allocated/remaining balances are one unit: both are
  written in the same transaction or neither is.

CRITICAL INVARIANTS:
  1. CONSERVATION: allocated + remaining == total for every income event
  2. BOUNDED PAYMENT: Σ attributions(payment) <= payment.amount
  3. BOUNDED INCOME: an attribution never exceeds the event's remaining
  4. IMMUTABLE ENTRIES: an attribution is never edited; changing an amount
     is remove + attribute

EXAMPLE FLOW:
  Income 100 (allocated 0, remaining 100)
  1. Attribute 40 to rent:   allocated 40, remaining 60
  2. Attribute 70 to power:  InsufficientIncome, nothing written
  3. Remove the rent entry:  allocated 0, remaining 100

SEE ALSO:
  - store.go: AdjustIncomeBalances, WithTx
  - matcher.go: Automatic attributions go through attributeIn as well
*/
package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/household-payments/generic"
)

// =============================================================================
// ATTRIBUTE
// =============================================================================

// Attribute earmarks amount of an income event for a payment.
func (e *Engine) Attribute(ctx context.Context, householdID generic.HouseholdID, paymentID generic.PaymentID, incomeEventID generic.IncomeEventID, amount decimal.Decimal, kind AttributionKind, actor generic.MemberID) (*Attribution, error) {
	if err := generic.RequirePositive("amount", amount); err != nil {
		return nil, err
	}
	if kind == "" {
		kind = AttributionManual
	}
	if kind != AttributionManual && kind != AttributionAutomatic {
		return nil, &generic.ValidationError{Field: "attribution_type", Message: fmt.Sprintf("unknown kind %q", kind)}
	}

	var created Attribution
	err := e.Store.WithTx(ctx, func(s Store) error {
		a, err := e.attributeIn(ctx, s, attributeRequest{
			householdID:   householdID,
			paymentID:     paymentID,
			incomeEventID: incomeEventID,
			amount:        amount,
			kind:          kind,
			actor:         actor,
		})
		if err != nil {
			return err
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger().InfoContext(ctx, "attribution created",
		"household_id", householdID,
		"payment_id", paymentID,
		"income_event_id", incomeEventID,
		"amount", amount.String(),
		"kind", kind)
	return &created, nil
}

type attributeRequest struct {
	householdID   generic.HouseholdID
	paymentID     generic.PaymentID
	incomeEventID generic.IncomeEventID
	amount        decimal.Decimal
	kind          AttributionKind
	actor         generic.MemberID

	// onlyUnattributed makes the call a no-op (errAlreadyAttributed) when
	// the payment already has attributions. Used by the auto pass.
	onlyUnattributed bool
}

// errAlreadyAttributed signals the auto pass to skip a payment that gained
// attributions after its candidates were collected.
var errAlreadyAttributed = errors.New("payment already attributed")

// attributeIn runs every check against rows read inside the transaction.
func (e *Engine) attributeIn(ctx context.Context, s Store, req attributeRequest) (Attribution, error) {
	p, err := e.loadPayment(ctx, s, req.householdID, req.paymentID)
	if err != nil {
		return Attribution{}, err
	}
	ev, err := e.loadIncome(ctx, s, req.householdID, req.incomeEventID)
	if err != nil {
		return Attribution{}, err
	}
	if ev.Status == IncomeCancelled {
		return Attribution{}, &generic.ValidationError{Field: "income_event_id", Message: "income event is cancelled"}
	}

	existing, err := s.ListAttributions(ctx, req.householdID, req.paymentID)
	if err != nil {
		return Attribution{}, err
	}
	if req.onlyUnattributed && len(existing) > 0 {
		return Attribution{}, errAlreadyAttributed
	}
	attributed := attributedTotal(existing)
	if attributed.Add(req.amount).GreaterThan(p.Amount) {
		return Attribution{}, &generic.OverAttributedError{
			PaymentID:  p.ID,
			Amount:     p.Amount,
			Attributed: attributed,
			Requested:  req.amount,
		}
	}
	if req.amount.GreaterThan(ev.RemainingAmount) {
		return Attribution{}, &generic.InsufficientIncomeError{
			IncomeEventID: ev.ID,
			Remaining:     ev.RemainingAmount,
			Requested:     req.amount,
		}
	}

	a := Attribution{
		ID:            generic.AttributionID(e.NewID()),
		HouseholdID:   req.householdID,
		PaymentID:     req.paymentID,
		IncomeEventID: req.incomeEventID,
		Amount:        req.amount,
		Kind:          req.kind,
		CreatedBy:     req.actor,
		CreatedAt:     e.Now().UTC(),
	}
	if err := s.InsertAttribution(ctx, a); err != nil {
		return Attribution{}, err
	}
	if err := s.AdjustIncomeBalances(ctx, req.householdID, ev.ID, req.amount, req.amount.Neg()); err != nil {
		return Attribution{}, err
	}
	return a, nil
}

// =============================================================================
// REMOVE
// =============================================================================

// RemoveAttribution deletes an attribution of the payment and restores the
// income event by exactly the removed amount.
func (e *Engine) RemoveAttribution(ctx context.Context, householdID generic.HouseholdID, paymentID generic.PaymentID, attributionID generic.AttributionID) error {
	var removed Attribution
	err := e.Store.WithTx(ctx, func(s Store) error {
		a, err := s.GetAttribution(ctx, householdID, attributionID)
		if err != nil {
			return err
		}
		if a == nil || a.PaymentID != paymentID {
			return generic.NotFound(generic.EntityAttribution, attributionID)
		}
		removed = *a
		return e.removeAttributionIn(ctx, s, *a)
	})
	if err != nil {
		return err
	}

	e.logger().InfoContext(ctx, "attribution removed",
		"household_id", householdID,
		"payment_id", paymentID,
		"income_event_id", removed.IncomeEventID,
		"amount", removed.Amount.String())
	return nil
}

func (e *Engine) removeAttributionIn(ctx context.Context, s Store, a Attribution) error {
	if err := s.DeleteAttribution(ctx, a.HouseholdID, a.ID); err != nil {
		return err
	}
	return s.AdjustIncomeBalances(ctx, a.HouseholdID, a.IncomeEventID, a.Amount.Neg(), a.Amount)
}

// =============================================================================
// READS
// =============================================================================

// Attributions lists a payment's attributions in creation order.
func (e *Engine) Attributions(ctx context.Context, householdID generic.HouseholdID, paymentID generic.PaymentID) ([]Attribution, error) {
	if _, err := e.loadPayment(ctx, e.Store, householdID, paymentID); err != nil {
		return nil, err
	}
	return e.Store.ListAttributions(ctx, householdID, paymentID)
}

func attributedTotal(attrs []Attribution) decimal.Decimal {
	total := decimal.Zero
	for _, a := range attrs {
		total = total.Add(a.Amount)
	}
	return total
}
