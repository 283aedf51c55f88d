package payments_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/household-payments/generic"
	"github.com/warp/household-payments/payments"
)

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_DefaultsAndNextDueDate(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		once := h.once(t, "  Dentist ", "80", "2024-07-01")
		assert.Equal(t, "Dentist", once.Payee)
		assert.Equal(t, payments.KindOnce, once.Kind)
		assert.Equal(t, generic.FrequencyOnce, once.Frequency)
		assert.Equal(t, payments.StatusScheduled, once.Status)
		require.NotNil(t, once.NextDueDate)
		assert.Equal(t, "2024-07-01", once.NextDueDate.String())

		rent := h.monthly(t, "Landlord", "1200", "2024-01-31")
		require.NotNil(t, rent.NextDueDate)
		assert.Equal(t, "2024-02-29", rent.NextDueDate.String())
	})
}

func TestCreate_Validation(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		valid := payments.NewPayment{
			Payee:      "Power Co",
			Amount:     amt("55.10"),
			DueDate:    date("2024-07-01"),
			CategoryID: h.category,
		}

		tests := []struct {
			name   string
			mutate func(*payments.NewPayment)
		}{
			{"blank payee", func(p *payments.NewPayment) { p.Payee = "   " }},
			{"zero amount", func(p *payments.NewPayment) { p.Amount = decimal.Zero }},
			{"negative amount", func(p *payments.NewPayment) { p.Amount = amt("-1") }},
			{"missing due date", func(p *payments.NewPayment) { p.DueDate = generic.Date{} }},
			{"unknown kind", func(p *payments.NewPayment) { p.Kind = "sometimes" }},
			{"unknown frequency", func(p *payments.NewPayment) { p.Frequency = "fortnightly" }},
			{"recurring once", func(p *payments.NewPayment) {
				p.Kind = payments.KindRecurring
				p.Frequency = generic.FrequencyOnce
			}},
			{"missing category", func(p *payments.NewPayment) { p.CategoryID = "" }},
		}

		for _, tt := range tests {
			in := valid
			tt.mutate(&in)
			_, err := h.engine.Create(h.ctx, h.hh, in)
			assert.ErrorIs(t, err, generic.ErrInvalid, tt.name)
			assert.Equal(t, generic.KindInvalid, generic.KindOf(err), tt.name)
		}

		list, err := h.engine.List(h.ctx, h.hh, payments.PaymentFilter{})
		require.NoError(t, err)
		assert.Empty(t, list, "rejected creates must not write")
	})
}

func TestCreate_UnknownHouseholdOrCategory(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		in := payments.NewPayment{Payee: "Gym", Amount: amt("30"), DueDate: date("2024-07-01"), CategoryID: h.category}

		_, err := h.engine.Create(h.ctx, "hh-missing", in)
		assert.ErrorIs(t, err, generic.ErrCategoryInvalid, "category is scoped to its household")

		_, err = h.store.CreateCategory(h.ctx, payments.Category{ID: "cat-old", HouseholdID: h.hh, Name: "Old", Active: false})
		require.NoError(t, err)
		in.CategoryID = "cat-old"
		_, err = h.engine.Create(h.ctx, h.hh, in)
		assert.ErrorIs(t, err, generic.ErrCategoryInvalid)
		assert.True(t, generic.IsNotFound(err))
	})
}

func TestBulkCreate_StopsAtFirstFailure(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		ins := []payments.NewPayment{
			{Payee: "A", Amount: amt("10"), DueDate: date("2024-07-01"), CategoryID: h.category},
			{Payee: "B", Amount: amt("0"), DueDate: date("2024-07-02"), CategoryID: h.category},
			{Payee: "C", Amount: amt("30"), DueDate: date("2024-07-03"), CategoryID: h.category},
		}

		created, err := h.engine.BulkCreate(h.ctx, h.hh, ins)
		assert.ErrorIs(t, err, generic.ErrInvalid)
		require.Len(t, created, 1)
		assert.Equal(t, "A", created[0].Payee)

		list, err := h.engine.List(h.ctx, h.hh, payments.PaymentFilter{})
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}

// =============================================================================
// SETTLE
// =============================================================================

func TestSettle_FullSettlementSpawnsNextOccurrence(t *testing.T) {
	// GIVEN: A monthly recurring payment due 2024-01-01, amount 100
	// WHEN: Settled in full on its due date
	// THEN: It is paid and a scheduled sibling is due 2024-02-01 for 100
	forEachStore(t, func(t *testing.T, h *harness) {
		p := h.monthly(t, "Internet", "100", "2024-01-01")

		res, err := h.engine.Settle(h.ctx, h.hh, p.ID, date("2024-01-01"), amt("100"))
		require.NoError(t, err)

		assert.Equal(t, payments.StatusPaid, res.Payment.Status)
		require.NotNil(t, res.Payment.PaidDate)
		assert.Equal(t, "2024-01-01", res.Payment.PaidDate.String())
		assertAmount(t, "100", *res.Payment.PaidAmount)

		require.NotNil(t, res.Next)
		assert.Equal(t, "2024-02-01", res.Next.DueDate.String())
		assertAmount(t, "100", res.Next.Amount)
		assert.Equal(t, p.Payee, res.Next.Payee)
		assert.Equal(t, payments.KindRecurring, res.Next.Kind)

		stored, err := h.store.GetPayment(h.ctx, h.hh, res.Next.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, payments.StatusScheduled, stored.Status)
	})
}

func TestSettle_PartialThenFull(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		p := h.once(t, "Plumber", "300", "2024-07-10")

		res, err := h.engine.Settle(h.ctx, h.hh, p.ID, date("2024-06-14"), amt("120.50"))
		require.NoError(t, err)
		assert.Equal(t, payments.StatusPartial, res.Payment.Status)
		assert.Nil(t, res.Next, "once payments never spawn")

		res, err = h.engine.Settle(h.ctx, h.hh, p.ID, date("2024-06-15"), amt("300"))
		require.NoError(t, err)
		assert.Equal(t, payments.StatusPaid, res.Payment.Status)

		_, err = h.engine.Settle(h.ctx, h.hh, p.ID, date("2024-06-15"), amt("300"))
		assert.ErrorIs(t, err, generic.ErrAlreadySettled)
		assert.Equal(t, generic.KindAlreadySettled, generic.KindOf(err))
	})
}

func TestSettle_RejectsBadInputAndCancelled(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		p := h.once(t, "Council tax", "90", "2024-07-01")

		_, err := h.engine.Settle(h.ctx, h.hh, p.ID, date("2024-07-01"), decimal.Zero)
		assert.ErrorIs(t, err, generic.ErrInvalid)
		_, err = h.engine.Settle(h.ctx, h.hh, p.ID, generic.Date{}, amt("90"))
		assert.ErrorIs(t, err, generic.ErrInvalid)
		_, err = h.engine.Settle(h.ctx, h.hh, "missing", date("2024-07-01"), amt("90"))
		assert.ErrorIs(t, err, generic.ErrPaymentNotFound)

		_, err = h.engine.Cancel(h.ctx, h.hh, p.ID)
		require.NoError(t, err)
		_, err = h.engine.Settle(h.ctx, h.hh, p.ID, date("2024-07-01"), amt("90"))
		assert.ErrorIs(t, err, generic.ErrCancelled)
	})
}

func TestSettle_RecurringSpawnsOnlyOnce(t *testing.T) {
	// GIVEN: A settled recurring payment that was reverted
	// WHEN: It is settled again
	// THEN: No second sibling is spawned
	forEachStore(t, func(t *testing.T, h *harness) {
		p := h.monthly(t, "Phone", "25", "2024-07-01")

		first, err := h.engine.Settle(h.ctx, h.hh, p.ID, date("2024-07-01"), amt("25"))
		require.NoError(t, err)
		require.NotNil(t, first.Next)

		_, err = h.engine.RevertSettlement(h.ctx, h.hh, p.ID)
		require.NoError(t, err)

		second, err := h.engine.Settle(h.ctx, h.hh, p.ID, date("2024-07-02"), amt("25"))
		require.NoError(t, err)
		assert.Nil(t, second.Next)

		list, err := h.engine.List(h.ctx, h.hh, payments.PaymentFilter{})
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})
}

// =============================================================================
// REVERT
// =============================================================================

func TestRevert_RestoresScheduledOrOverdueAndKeepsSibling(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		past := h.monthly(t, "Water", "40", "2024-01-01")
		future := h.once(t, "Insurance", "400", "2024-12-01")

		settled, err := h.engine.Settle(h.ctx, h.hh, past.ID, date("2024-01-01"), amt("40"))
		require.NoError(t, err)
		_, err = h.engine.Settle(h.ctx, h.hh, future.ID, date("2024-06-01"), amt("100"))
		require.NoError(t, err)

		reverted, err := h.engine.RevertSettlement(h.ctx, h.hh, past.ID)
		require.NoError(t, err)
		assert.Equal(t, payments.StatusOverdue, reverted.Status, "due date has passed")
		assert.Nil(t, reverted.PaidDate)
		assert.Nil(t, reverted.PaidAmount)

		reverted, err = h.engine.RevertSettlement(h.ctx, h.hh, future.ID)
		require.NoError(t, err)
		assert.Equal(t, payments.StatusScheduled, reverted.Status)

		sibling, err := h.engine.Get(h.ctx, h.hh, settled.Next.ID)
		require.NoError(t, err, "revert keeps the spawned occurrence")
		assert.Equal(t, "2024-02-01", sibling.DueDate.String())

		stored, err := h.store.GetPayment(h.ctx, h.hh, past.ID)
		require.NoError(t, err)
		assert.Equal(t, payments.StatusScheduled, stored.Status, "overdue is never stored")
	})
}

func TestRevert_NotSettled(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		p := h.once(t, "Vet", "60", "2024-07-01")
		_, err := h.engine.RevertSettlement(h.ctx, h.hh, p.ID)
		assert.ErrorIs(t, err, generic.ErrNotSettled)

		var state *generic.StateError
		require.ErrorAs(t, err, &state)
		assert.Equal(t, "revert", state.Op)
		assert.Equal(t, "scheduled", state.Status)
	})
}

// =============================================================================
// UPDATE / CANCEL / DELETE
// =============================================================================

func TestUpdate_AppliesFieldsAndRecomputesNextDueDate(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		p := h.monthly(t, "Landlord", "1200", "2024-07-01")

		payee := "New Landlord"
		due := date("2024-08-31")
		updated, err := h.engine.Update(h.ctx, h.hh, p.ID, payments.PaymentUpdate{Payee: &payee, DueDate: &due})
		require.NoError(t, err)
		assert.Equal(t, payee, updated.Payee)
		assert.Equal(t, "2024-09-30", updated.NextDueDate.String())
		assertAmount(t, "1200", updated.Amount)
	})
}

func TestUpdate_StateAndCategoryErrors(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		paid := h.once(t, "Paid", "10", "2024-07-01")
		_, err := h.engine.Settle(h.ctx, h.hh, paid.ID, date("2024-07-01"), amt("10"))
		require.NoError(t, err)

		notes := "late"
		_, err = h.engine.Update(h.ctx, h.hh, paid.ID, payments.PaymentUpdate{Notes: &notes})
		assert.ErrorIs(t, err, generic.ErrImmutableState)
		_, err = h.engine.Cancel(h.ctx, h.hh, paid.ID)
		assert.ErrorIs(t, err, generic.ErrImmutableState)

		open := h.once(t, "Open", "10", "2024-07-01")
		missing := generic.CategoryID("cat-missing")
		_, err = h.engine.Update(h.ctx, h.hh, open.ID, payments.PaymentUpdate{CategoryID: &missing})
		assert.ErrorIs(t, err, generic.ErrCategoryInvalid)

		_, err = h.engine.Update(h.ctx, h.hh, "nope", payments.PaymentUpdate{Notes: &notes})
		assert.ErrorIs(t, err, generic.ErrPaymentNotFound)
	})
}

func TestUpdate_OverdueAllowed(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		p := h.once(t, "Old bill", "15", "2024-03-01")
		got, err := h.engine.Get(h.ctx, h.hh, p.ID)
		require.NoError(t, err)
		require.Equal(t, payments.StatusOverdue, got.Status)

		notes := "call them"
		updated, err := h.engine.Update(h.ctx, h.hh, p.ID, payments.PaymentUpdate{Notes: &notes})
		require.NoError(t, err)
		assert.Equal(t, payments.StatusOverdue, updated.Status)
		assert.Equal(t, notes, updated.Notes)
	})
}

func TestUpdate_AmountCannotDropBelowAttributed(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		p := h.once(t, "School", "100", "2024-07-01")
		ev := h.income(t, "inc-1", "500", "2024-06-30")
		_, err := h.engine.Attribute(h.ctx, h.hh, p.ID, ev.ID, amt("80"), payments.AttributionManual, "member-1")
		require.NoError(t, err)

		lower := amt("50")
		_, err = h.engine.Update(h.ctx, h.hh, p.ID, payments.PaymentUpdate{Amount: &lower})
		assert.ErrorIs(t, err, generic.ErrOverAttributed)

		lower = amt("80")
		updated, err := h.engine.Update(h.ctx, h.hh, p.ID, payments.PaymentUpdate{Amount: &lower})
		require.NoError(t, err)
		assertAmount(t, "80", updated.Amount)
	})
}

func TestCancel_Twice(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		p := h.once(t, "Magazine", "5", "2024-07-01")
		cancelled, err := h.engine.Cancel(h.ctx, h.hh, p.ID)
		require.NoError(t, err)
		assert.Equal(t, payments.StatusCancelled, cancelled.Status)

		_, err = h.engine.Cancel(h.ctx, h.hh, p.ID)
		assert.ErrorIs(t, err, generic.ErrCancelled)
		notes := "x"
		_, err = h.engine.Update(h.ctx, h.hh, p.ID, payments.PaymentUpdate{Notes: &notes})
		assert.ErrorIs(t, err, generic.ErrCancelled)
	})
}

func TestDelete_CascadesAttributionsAndRestoresBalances(t *testing.T) {
	// GIVEN: A payment with one attribution of 40 against an income of 100
	// WHEN: The payment is deleted
	// THEN: The income is back to 100 remaining and the attribution is gone
	forEachStore(t, func(t *testing.T, h *harness) {
		p := h.once(t, "Groceries", "40", "2024-07-01")
		ev := h.income(t, "inc-1", "100", "2024-06-30")
		_, err := h.engine.Attribute(h.ctx, h.hh, p.ID, ev.ID, amt("40"), payments.AttributionManual, "member-1")
		require.NoError(t, err)
		assertAmount(t, "60", h.reloadIncome(t, ev.ID).RemainingAmount)

		require.NoError(t, h.engine.Delete(h.ctx, h.hh, p.ID))

		after := h.reloadIncome(t, ev.ID)
		assertAmount(t, "100", after.RemainingAmount)
		assertAmount(t, "0", after.AllocatedAmount)
		assertBalanced(t, after)

		all, err := h.store.ListHouseholdAttributions(h.ctx, h.hh)
		require.NoError(t, err)
		assert.Empty(t, all)

		_, err = h.engine.Get(h.ctx, h.hh, p.ID)
		assert.ErrorIs(t, err, generic.ErrPaymentNotFound)
		assert.ErrorIs(t, h.engine.Delete(h.ctx, h.hh, p.ID), generic.ErrPaymentNotFound)
	})
}

// =============================================================================
// AUDIT
// =============================================================================

func TestAudit_RecordsActorAndSnapshots(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		p := h.monthly(t, "Gym", "30", "2024-07-01")
		_, err := h.engine.Settle(h.ctx, h.hh, p.ID, date("2024-07-01"), amt("30"))
		require.NoError(t, err)
		require.NoError(t, h.engine.Delete(h.ctx, h.hh, p.ID))

		entries, err := h.store.ListAuditEntries(h.ctx, h.hh)
		require.NoError(t, err)
		require.Len(t, entries, 4) // create, settle, spawn, delete

		assert.Equal(t, payments.AuditCreate, entries[0].Action)
		assert.Nil(t, entries[0].Before)
		require.NotNil(t, entries[0].After)
		assert.Equal(t, "Gym", entries[0].After.Payee)

		assert.Equal(t, payments.AuditUpdate, entries[1].Action)
		assert.Equal(t, payments.StatusScheduled, entries[1].Before.Status)
		assert.Equal(t, payments.StatusPaid, entries[1].After.Status)

		assert.Equal(t, payments.AuditCreate, entries[2].Action)
		assert.Equal(t, "2024-08-01", entries[2].After.DueDate.String())

		assert.Equal(t, payments.AuditDelete, entries[3].Action)
		assert.Nil(t, entries[3].After)

		for _, e := range entries {
			assert.Equal(t, generic.MemberID("member-1"), e.ActorID)
			assert.Equal(t, generic.EntityPayment, e.EntityType)
		}
	})
}
