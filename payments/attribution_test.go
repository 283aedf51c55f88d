package payments_test

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/household-payments/generic"
	"github.com/warp/household-payments/payments"
)

// =============================================================================
// ATTRIBUTE / REMOVE
// =============================================================================

func TestAttribute_MovesFundsAndRecordsCreator(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		p := h.once(t, "Rent", "100", "2024-07-01")
		ev := h.income(t, "inc-1", "250", "2024-06-28")

		a, err := h.engine.Attribute(h.ctx, h.hh, p.ID, ev.ID, amt("40.25"), "", "member-2")
		require.NoError(t, err)
		assert.Equal(t, payments.AttributionManual, a.Kind, "kind defaults to manual")
		assert.Equal(t, generic.MemberID("member-2"), a.CreatedBy)
		assertAmount(t, "40.25", a.Amount)

		after := h.reloadIncome(t, ev.ID)
		assertAmount(t, "40.25", after.AllocatedAmount)
		assertAmount(t, "209.75", after.RemainingAmount)
		assertBalanced(t, after)

		attrs := h.attributions(t, p.ID)
		require.Len(t, attrs, 1)
		assert.Equal(t, a.ID, attrs[0].ID)
	})
}

func TestAttribute_OverAttributedLeavesLedgerUnchanged(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		p := h.once(t, "Daycare", "50", "2024-07-01")
		ev := h.income(t, "inc-1", "500", "2024-06-28")
		_, err := h.engine.Attribute(h.ctx, h.hh, p.ID, ev.ID, amt("30"), payments.AttributionManual, "member-1")
		require.NoError(t, err)
		before := h.reloadIncome(t, ev.ID)

		_, err = h.engine.Attribute(h.ctx, h.hh, p.ID, ev.ID, amt("30"), payments.AttributionManual, "member-1")
		require.ErrorIs(t, err, generic.ErrOverAttributed)
		assert.Equal(t, generic.KindOverAttributed, generic.KindOf(err))

		var over *generic.OverAttributedError
		require.ErrorAs(t, err, &over)
		assertAmount(t, "20", over.Available())

		after := h.reloadIncome(t, ev.ID)
		assertAmount(t, before.AllocatedAmount.String(), after.AllocatedAmount)
		assertAmount(t, before.RemainingAmount.String(), after.RemainingAmount)
		assert.Len(t, h.attributions(t, p.ID), 1)
	})
}

func TestAttribute_InsufficientIncomeIsAtomic(t *testing.T) {
	// GIVEN: An income with 60 remaining
	// WHEN: 70 is attributed from it
	// THEN: InsufficientIncome and neither table changed
	forEachStore(t, func(t *testing.T, h *harness) {
		p := h.once(t, "Car", "200", "2024-07-01")
		ev := h.income(t, "inc-1", "60", "2024-06-28")

		_, err := h.engine.Attribute(h.ctx, h.hh, p.ID, ev.ID, amt("70"), payments.AttributionManual, "member-1")
		require.ErrorIs(t, err, generic.ErrInsufficientIncome)

		var short *generic.InsufficientIncomeError
		require.ErrorAs(t, err, &short)
		assertAmount(t, "60", short.Remaining)

		after := h.reloadIncome(t, ev.ID)
		assertAmount(t, "0", after.AllocatedAmount)
		assertAmount(t, "60", after.RemainingAmount)
		assert.Empty(t, h.attributions(t, p.ID))
	})
}

func TestAttribute_RejectsBadInput(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		p := h.once(t, "Car", "200", "2024-07-01")
		ev := h.income(t, "inc-1", "600", "2024-06-28")

		_, err := h.engine.Attribute(h.ctx, h.hh, p.ID, ev.ID, decimal.Zero, payments.AttributionManual, "m")
		assert.ErrorIs(t, err, generic.ErrInvalid)
		_, err = h.engine.Attribute(h.ctx, h.hh, p.ID, ev.ID, amt("1"), "guess", "m")
		assert.ErrorIs(t, err, generic.ErrInvalid)
		_, err = h.engine.Attribute(h.ctx, h.hh, "missing", ev.ID, amt("1"), payments.AttributionManual, "m")
		assert.ErrorIs(t, err, generic.ErrPaymentNotFound)
		_, err = h.engine.Attribute(h.ctx, h.hh, p.ID, "missing", amt("1"), payments.AttributionManual, "m")
		assert.ErrorIs(t, err, generic.ErrIncomeEventNotFound)

		cancelled, err := h.store.CreateIncomeEvent(h.ctx, payments.IncomeEvent{
			HouseholdID:   h.hh,
			TotalAmount:   amt("100"),
			ScheduledDate: date("2024-06-01"),
			Status:        payments.IncomeCancelled,
		})
		require.NoError(t, err)
		_, err = h.engine.Attribute(h.ctx, h.hh, p.ID, cancelled.ID, amt("1"), payments.AttributionManual, "m")
		assert.ErrorIs(t, err, generic.ErrInvalid)
	})
}

func TestRemoveAttribution_RestoresExactAmount(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		rent := h.once(t, "Rent", "100", "2024-07-01")
		power := h.once(t, "Power", "70", "2024-07-02")
		ev := h.income(t, "inc-1", "100", "2024-06-28")

		a, err := h.engine.Attribute(h.ctx, h.hh, rent.ID, ev.ID, amt("40"), payments.AttributionManual, "m")
		require.NoError(t, err)
		_, err = h.engine.Attribute(h.ctx, h.hh, power.ID, ev.ID, amt("70"), payments.AttributionManual, "m")
		require.ErrorIs(t, err, generic.ErrInsufficientIncome)

		err = h.engine.RemoveAttribution(h.ctx, h.hh, power.ID, a.ID)
		assert.ErrorIs(t, err, generic.ErrAttributionNotFound, "attribution belongs to another payment")

		require.NoError(t, h.engine.RemoveAttribution(h.ctx, h.hh, rent.ID, a.ID))
		after := h.reloadIncome(t, ev.ID)
		assertAmount(t, "0", after.AllocatedAmount)
		assertAmount(t, "100", after.RemainingAmount)

		err = h.engine.RemoveAttribution(h.ctx, h.hh, rent.ID, a.ID)
		assert.ErrorIs(t, err, generic.ErrAttributionNotFound)
	})
}

// =============================================================================
// PROPERTY: CONSERVATION
// =============================================================================

func TestConservation_RandomAttributeRemoveSequences(t *testing.T) {
	// GIVEN: Several payments and income events
	// WHEN: A random sequence of attribute/remove calls runs, some failing
	// THEN: allocated + remaining == total for every income event and no
	//       payment is ever over-attributed, after every single step
	forEachStore(t, func(t *testing.T, h *harness) {
		rng := rand.New(rand.NewSource(42))

		var pays []payments.Payment
		for i, a := range []string{"35", "80", "12.5", "150", "60"} {
			pays = append(pays, h.once(t, "payee", a, date("2024-07-01").AddDays(i).String()))
		}
		var incomes []payments.IncomeEvent
		for i, total := range []string{"100", "75.25", "200"} {
			incomes = append(incomes, h.income(t, "inc-"+string(rune('a'+i)), total, "2024-06-20"))
		}

		for step := 0; step < 150; step++ {
			p := pays[rng.Intn(len(pays))]
			if attrs := h.attributions(t, p.ID); len(attrs) > 0 && rng.Intn(3) == 0 {
				victim := attrs[rng.Intn(len(attrs))]
				require.NoError(t, h.engine.RemoveAttribution(h.ctx, h.hh, p.ID, victim.ID))
			} else {
				ev := incomes[rng.Intn(len(incomes))]
				amount := decimal.NewFromInt(int64(rng.Intn(6000) + 1)).Shift(-2) // 0.01 .. 60.00
				_, err := h.engine.Attribute(h.ctx, h.hh, p.ID, ev.ID, amount, payments.AttributionManual, "m")
				if err != nil {
					require.True(t, generic.KindOf(err) == generic.KindOverAttributed ||
						generic.KindOf(err) == generic.KindInsufficientIncome, "step %d: %v", step, err)
				}
			}

			for _, ev := range incomes {
				got := h.reloadIncome(t, ev.ID)
				require.True(t, got.Balanced(), "step %d: income %s unbalanced", step, ev.ID)
			}
			for _, p := range pays {
				sum := decimal.Zero
				for _, a := range h.attributions(t, p.ID) {
					sum = sum.Add(a.Amount)
				}
				require.True(t, sum.LessThanOrEqual(p.Amount), "step %d: payment %s over-attributed", step, p.ID)
			}
		}

		// Allocated equals the ledger total per income event.
		all, err := h.store.ListHouseholdAttributions(h.ctx, h.hh)
		require.NoError(t, err)
		byIncome := map[generic.IncomeEventID]decimal.Decimal{}
		for _, a := range all {
			byIncome[a.IncomeEventID] = byIncome[a.IncomeEventID].Add(a.Amount)
		}
		for _, ev := range incomes {
			assertAmount(t, byIncome[ev.ID].String(), h.reloadIncome(t, ev.ID).AllocatedAmount)
		}
	})
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestAttribute_ConcurrentCallsCannotOverAllocate(t *testing.T) {
	// GIVEN: One income event of 100 and ten payments of 30
	// WHEN: Ten goroutines each attribute 30 from the event at once
	// THEN: Exactly three succeed and the event stays balanced
	forEachStore(t, func(t *testing.T, h *harness) {
		ev := h.income(t, "inc-shared", "100", "2024-06-20")
		var pays []payments.Payment
		for i := 0; i < 10; i++ {
			pays = append(pays, h.once(t, "payee", "30", date("2024-07-01").AddDays(i).String()))
		}

		var wg sync.WaitGroup
		errs := make([]error, len(pays))
		for i, p := range pays {
			wg.Add(1)
			go func(i int, id generic.PaymentID) {
				defer wg.Done()
				_, errs[i] = h.engine.Attribute(h.ctx, h.hh, id, ev.ID, amt("30"), payments.AttributionManual, "m")
			}(i, p.ID)
		}
		wg.Wait()

		ok := 0
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.ErrorIs(t, err, generic.ErrInsufficientIncome)
		}
		assert.Equal(t, 3, ok)

		after := h.reloadIncome(t, ev.ID)
		assertAmount(t, "90", after.AllocatedAmount)
		assertAmount(t, "10", after.RemainingAmount)
		assertBalanced(t, after)
	})
}

func TestSettle_ConcurrentCallsSpawnOnce(t *testing.T) {
	// GIVEN: A monthly payment
	// WHEN: Five goroutines settle it in full at once
	// THEN: One wins, the rest see ErrAlreadySettled, one successor exists
	forEachStore(t, func(t *testing.T, h *harness) {
		p := h.monthly(t, "Rent", "1000", "2024-06-20")

		var wg sync.WaitGroup
		errs := make([]error, 5)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = h.engine.Settle(h.ctx, h.hh, p.ID, date("2024-06-19"), amt("1000"))
			}(i)
		}
		wg.Wait()

		ok := 0
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.True(t, errors.Is(err, generic.ErrAlreadySettled), "unexpected: %v", err)
		}
		assert.Equal(t, 1, ok)

		all, err := h.engine.List(h.ctx, h.hh, payments.PaymentFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}
