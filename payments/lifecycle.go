/*
lifecycle.go - Payment lifecycle state machine

PURPOSE:
  Creates, updates, settles, reverts, cancels and deletes payments while
  keeping the payment invariants and, for recurring payments, spawning the
  next occurrence on settlement.

STATES:
  scheduled ──settle(paid >= amount)──▶ paid
      │    ──settle(paid <  amount)──▶ partial ──settle──▶ paid
      │                                   │
      ◀──────────── revert ───────────────┘ (also from paid)
  scheduled/partial ──cancel──▶ cancelled

  overdue is not a stored state: ObservedStatus derives it from
  (status, due date, today) on every read.

RULES:
  - paid payments are immutable (update, cancel fail with ImmutableState)
  - settling a recurring payment spawns the next occurrence once; the
    sibling survives a revert and is not spawned again on re-settlement
  - delete removes attributions (restoring income balances) and the
    payment in one transaction

SEE ALSO:
  - attribution.go: Attribution ledger used by delete
  - generic/recurrence.go: NextOccurrence
*/
package payments

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/household-payments/generic"
)

// Settlement is the outcome of Settle.
type Settlement struct {
	Payment Payment
	// Next is the spawned occurrence of a recurring payment, if any.
	Next *Payment
}

// =============================================================================
// CREATE
// =============================================================================

// Create validates and stores a new scheduled payment.
func (e *Engine) Create(ctx context.Context, householdID generic.HouseholdID, in NewPayment) (*Payment, error) {
	in = in.normalized()
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := e.resolveCategory(ctx, householdID, in.CategoryID); err != nil {
		return nil, err
	}

	var created Payment
	err := e.Store.WithTx(ctx, func(s Store) error {
		if err := e.requireHousehold(ctx, s, householdID); err != nil {
			return err
		}
		p, err := e.insertPayment(ctx, s, householdID, in)
		if err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, AuditEntry{
		HouseholdID: householdID,
		Action:      AuditCreate,
		EntityID:    string(created.ID),
		After:       snapshot(created),
		ActorID:     ActorFrom(ctx),
	})
	out := created.Observe(e.today())
	return &out, nil
}

// BulkCreate applies creates in order and stops at the first failure.
// Payments created before the failure are kept and returned with the error.
func (e *Engine) BulkCreate(ctx context.Context, householdID generic.HouseholdID, ins []NewPayment) ([]Payment, error) {
	created := make([]Payment, 0, len(ins))
	for _, in := range ins {
		p, err := e.Create(ctx, householdID, in)
		if err != nil {
			return created, err
		}
		created = append(created, *p)
	}
	return created, nil
}

func (e *Engine) insertPayment(ctx context.Context, s Store, householdID generic.HouseholdID, in NewPayment) (Payment, error) {
	now := e.Now().UTC()
	p := Payment{
		ID:          generic.PaymentID(e.NewID()),
		HouseholdID: householdID,
		Payee:       in.Payee,
		Amount:      in.Amount,
		DueDate:     in.DueDate,
		Kind:        in.Kind,
		Frequency:   in.Frequency,
		NextDueDate: nextDueDate(in.Kind, in.DueDate, in.Frequency),
		Status:      StatusScheduled,
		CategoryID:  in.CategoryID,
		AutoPay:     in.AutoPay,
		Notes:       in.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.SavePayment(ctx, p); err != nil {
		return Payment{}, err
	}
	return p, nil
}

func (e *Engine) resolveCategory(ctx context.Context, householdID generic.HouseholdID, id generic.CategoryID) error {
	cat, err := e.Categories.ResolveActiveCategory(ctx, householdID, id)
	if err != nil {
		return err
	}
	if cat == nil {
		return generic.NotFound(generic.EntityCategory, id)
	}
	return nil
}

// =============================================================================
// UPDATE
// =============================================================================

// Update applies the non-nil fields of upd to a scheduled, partial or
// overdue payment.
func (e *Engine) Update(ctx context.Context, householdID generic.HouseholdID, id generic.PaymentID, upd PaymentUpdate) (*Payment, error) {
	// The taxonomy is resolved up front so nothing is read mid-transaction
	// from outside the store; the result only matters if the category changes.
	categoryOK := true
	if upd.CategoryID != nil {
		if err := e.resolveCategory(ctx, householdID, *upd.CategoryID); err != nil {
			if !generic.IsNotFound(err) {
				return nil, err
			}
			categoryOK = false
		}
	}

	var before, after Payment
	err := e.Store.WithTx(ctx, func(s Store) error {
		p, err := e.loadPayment(ctx, s, householdID, id)
		if err != nil {
			return err
		}
		switch p.Status {
		case StatusPaid:
			return &generic.StateError{PaymentID: id, Status: string(p.Status), Op: "update", Err: generic.ErrImmutableState}
		case StatusCancelled:
			return &generic.StateError{PaymentID: id, Status: string(p.Status), Op: "update", Err: generic.ErrCancelled}
		}
		before = *p

		next := upd.apply(*p)
		if next.CategoryID != p.CategoryID && !categoryOK {
			return generic.NotFound(generic.EntityCategory, next.CategoryID)
		}
		if err := next.validate(); err != nil {
			return err
		}
		if !next.Amount.Equal(p.Amount) {
			if err := checkAmountCovers(ctx, s, next); err != nil {
				return err
			}
		}
		if !next.DueDate.Equal(p.DueDate) || next.Frequency != p.Frequency || next.Kind != p.Kind {
			next.NextDueDate = nextDueDate(next.Kind, next.DueDate, next.Frequency)
		}
		next.UpdatedAt = e.Now().UTC()
		if err := s.SavePayment(ctx, next); err != nil {
			return err
		}
		after = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, AuditEntry{
		HouseholdID: householdID,
		Action:      AuditUpdate,
		EntityID:    string(id),
		Before:      snapshot(before),
		After:       snapshot(after),
		ActorID:     ActorFrom(ctx),
	})
	out := after.Observe(e.today())
	return &out, nil
}

func (u PaymentUpdate) apply(p Payment) Payment {
	if u.Payee != nil {
		p.Payee = strings.TrimSpace(*u.Payee)
	}
	if u.Amount != nil {
		p.Amount = *u.Amount
	}
	if u.DueDate != nil {
		p.DueDate = *u.DueDate
	}
	if u.Kind != nil {
		p.Kind = *u.Kind
	}
	if u.Frequency != nil {
		p.Frequency = *u.Frequency
	}
	if u.CategoryID != nil {
		p.CategoryID = *u.CategoryID
	}
	if u.AutoPay != nil {
		p.AutoPay = *u.AutoPay
	}
	if u.Notes != nil {
		p.Notes = *u.Notes
	}
	return p
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes the payment and all its attributions, restoring every
// linked income event, in one transaction.
func (e *Engine) Delete(ctx context.Context, householdID generic.HouseholdID, id generic.PaymentID) error {
	var removed Payment
	err := e.Store.WithTx(ctx, func(s Store) error {
		p, err := e.loadPayment(ctx, s, householdID, id)
		if err != nil {
			return err
		}
		attrs, err := s.ListAttributions(ctx, householdID, id)
		if err != nil {
			return err
		}
		for _, a := range attrs {
			if err := e.removeAttributionIn(ctx, s, a); err != nil {
				return err
			}
		}
		removed = *p
		return s.DeletePayment(ctx, householdID, id)
	})
	if err != nil {
		return err
	}

	e.emit(ctx, AuditEntry{
		HouseholdID: householdID,
		Action:      AuditDelete,
		EntityID:    string(id),
		Before:      snapshot(removed),
		ActorID:     ActorFrom(ctx),
	})
	return nil
}

// =============================================================================
// SETTLE / REVERT / CANCEL
// =============================================================================

// Settle records a payment as paid (paidAmount >= amount) or partial.
// A recurring payment spawns its next occurrence in the same transaction.
func (e *Engine) Settle(ctx context.Context, householdID generic.HouseholdID, id generic.PaymentID, paidDate generic.Date, paidAmount decimal.Decimal) (*Settlement, error) {
	if err := generic.RequirePositive("paid_amount", paidAmount); err != nil {
		return nil, err
	}
	if paidDate.IsZero() {
		return nil, &generic.ValidationError{Field: "paid_date", Message: "required"}
	}

	var before Payment
	var result Settlement
	err := e.Store.WithTx(ctx, func(s Store) error {
		p, err := e.loadPayment(ctx, s, householdID, id)
		if err != nil {
			return err
		}
		switch p.Status {
		case StatusPaid:
			return &generic.StateError{PaymentID: id, Status: string(p.Status), Op: "settle", Err: generic.ErrAlreadySettled}
		case StatusCancelled:
			return &generic.StateError{PaymentID: id, Status: string(p.Status), Op: "settle", Err: generic.ErrCancelled}
		}
		before = *p

		settled := *p
		settled.PaidDate = paidDate.Ptr()
		settled.PaidAmount = &paidAmount
		settled.Status = StatusPartial
		if paidAmount.GreaterThanOrEqual(p.Amount) {
			settled.Status = StatusPaid
		}
		settled.UpdatedAt = e.Now().UTC()

		if p.Kind == KindRecurring && p.SpawnedID == nil {
			next, err := e.insertPayment(ctx, s, householdID, NewPayment{
				Payee:      p.Payee,
				Amount:     p.Amount,
				DueDate:    generic.NextOccurrence(p.DueDate, p.Frequency),
				Kind:       p.Kind,
				Frequency:  p.Frequency,
				CategoryID: p.CategoryID,
				AutoPay:    p.AutoPay,
				Notes:      p.Notes,
			})
			if err != nil {
				return err
			}
			settled.SpawnedID = &next.ID
			result.Next = &next
		}

		if err := s.SavePayment(ctx, settled); err != nil {
			return err
		}
		result.Payment = settled
		return nil
	})
	if err != nil {
		return nil, err
	}

	actor := ActorFrom(ctx)
	e.emit(ctx, AuditEntry{
		HouseholdID: householdID,
		Action:      AuditUpdate,
		EntityID:    string(id),
		Before:      snapshot(before),
		After:       snapshot(result.Payment),
		ActorID:     actor,
	})
	today := e.today()
	result.Payment = result.Payment.Observe(today)
	if result.Next != nil {
		e.emit(ctx, AuditEntry{
			HouseholdID: householdID,
			Action:      AuditCreate,
			EntityID:    string(result.Next.ID),
			After:       snapshot(*result.Next),
			ActorID:     actor,
		})
		next := result.Next.Observe(today)
		result.Next = &next
	}
	return &result, nil
}

// RevertSettlement clears a paid or partial settlement. The observed
// status becomes overdue when the due date has passed, else scheduled.
// An occurrence spawned by the settlement is kept.
func (e *Engine) RevertSettlement(ctx context.Context, householdID generic.HouseholdID, id generic.PaymentID) (*Payment, error) {
	var before, after Payment
	err := e.Store.WithTx(ctx, func(s Store) error {
		p, err := e.loadPayment(ctx, s, householdID, id)
		if err != nil {
			return err
		}
		if !p.Status.Settled() {
			return &generic.StateError{PaymentID: id, Status: string(p.Status), Op: "revert", Err: generic.ErrNotSettled}
		}
		before = *p

		reverted := *p
		reverted.Status = StatusScheduled
		reverted.PaidDate = nil
		reverted.PaidAmount = nil
		reverted.UpdatedAt = e.Now().UTC()
		if err := s.SavePayment(ctx, reverted); err != nil {
			return err
		}
		after = reverted
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, AuditEntry{
		HouseholdID: householdID,
		Action:      AuditUpdate,
		EntityID:    string(id),
		Before:      snapshot(before),
		After:       snapshot(after),
		ActorID:     ActorFrom(ctx),
	})
	out := after.Observe(e.today())
	return &out, nil
}

// Cancel moves an unpaid payment to cancelled. Attributions stay until
// removed explicitly.
func (e *Engine) Cancel(ctx context.Context, householdID generic.HouseholdID, id generic.PaymentID) (*Payment, error) {
	var before, after Payment
	err := e.Store.WithTx(ctx, func(s Store) error {
		p, err := e.loadPayment(ctx, s, householdID, id)
		if err != nil {
			return err
		}
		switch p.Status {
		case StatusPaid:
			return &generic.StateError{PaymentID: id, Status: string(p.Status), Op: "cancel", Err: generic.ErrImmutableState}
		case StatusCancelled:
			return &generic.StateError{PaymentID: id, Status: string(p.Status), Op: "cancel", Err: generic.ErrCancelled}
		}
		before = *p

		cancelled := *p
		cancelled.Status = StatusCancelled
		cancelled.UpdatedAt = e.Now().UTC()
		if err := s.SavePayment(ctx, cancelled); err != nil {
			return err
		}
		after = cancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, AuditEntry{
		HouseholdID: householdID,
		Action:      AuditUpdate,
		EntityID:    string(id),
		Before:      snapshot(before),
		After:       snapshot(after),
		ActorID:     ActorFrom(ctx),
	})
	return &after, nil
}
