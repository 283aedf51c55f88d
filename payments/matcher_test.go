package payments_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/household-payments/generic"
	"github.com/warp/household-payments/payments"
)

func TestAutoAttribute_GreedyDeterminism(t *testing.T) {
	// GIVEN: Payments 50 (due 01-01) and 80 (due 01-05)
	//        Income 60 (01-01) and 100 (01-02)
	// WHEN: The auto pass runs
	// THEN: 50 → first income (60→10), 80 → second income (100→20), no partials
	forEachStore(t, func(t *testing.T, h *harness) {
		first := h.once(t, "Electric", "50", "2024-01-01")
		second := h.once(t, "Gas", "80", "2024-01-05")
		x := h.income(t, "inc-x", "60", "2024-01-01")
		y := h.income(t, "inc-y", "100", "2024-01-02")

		n, err := h.engine.AutoAttribute(h.ctx, h.hh, generic.SystemMember)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		a1 := h.attributions(t, first.ID)
		require.Len(t, a1, 1)
		assert.Equal(t, x.ID, a1[0].IncomeEventID)
		assertAmount(t, "50", a1[0].Amount)
		assert.Equal(t, payments.AttributionAutomatic, a1[0].Kind)
		assert.Equal(t, generic.SystemMember, a1[0].CreatedBy)

		a2 := h.attributions(t, second.ID)
		require.Len(t, a2, 1)
		assert.Equal(t, y.ID, a2[0].IncomeEventID)
		assertAmount(t, "80", a2[0].Amount)

		assertAmount(t, "10", h.reloadIncome(t, x.ID).RemainingAmount)
		assertAmount(t, "20", h.reloadIncome(t, y.ID).RemainingAmount)

		// A second pass finds nothing new.
		n, err = h.engine.AutoAttribute(h.ctx, h.hh, generic.SystemMember)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestAutoAttribute_NeverPartial(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		big := h.once(t, "Tuition", "500", "2024-07-01")
		small := h.once(t, "Books", "30", "2024-07-02")
		ev := h.income(t, "inc-1", "100", "2024-06-30")

		n, err := h.engine.AutoAttribute(h.ctx, h.hh, generic.SystemMember)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		assert.Empty(t, h.attributions(t, big.ID), "no income covers 500, so nothing is split")
		require.Len(t, h.attributions(t, small.ID), 1)
		assertAmount(t, "70", h.reloadIncome(t, ev.ID).RemainingAmount)
	})
}

func TestAutoAttribute_SkipsSettledCancelledAndAttributed(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		paid := h.once(t, "Paid", "10", "2024-07-01")
		cancelled := h.once(t, "Cancelled", "10", "2024-07-02")
		manual := h.once(t, "Manual", "10", "2024-07-03")
		open := h.once(t, "Open", "10", "2024-07-04")
		ev := h.income(t, "inc-1", "100", "2024-06-30")
		h.income(t, "inc-gone", "100", "2024-06-29")

		_, err := h.engine.Settle(h.ctx, h.hh, paid.ID, date("2024-07-01"), amt("10"))
		require.NoError(t, err)
		_, err = h.engine.Cancel(h.ctx, h.hh, cancelled.ID)
		require.NoError(t, err)
		_, err = h.engine.Attribute(h.ctx, h.hh, manual.ID, ev.ID, amt("4"), payments.AttributionManual, "m")
		require.NoError(t, err)

		n, err := h.engine.AutoAttribute(h.ctx, h.hh, generic.SystemMember)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		attrs := h.attributions(t, open.ID)
		require.Len(t, attrs, 1)
		assert.Equal(t, generic.IncomeEventID("inc-gone"), attrs[0].IncomeEventID, "earliest income first")
		assert.Empty(t, h.attributions(t, paid.ID))
		assert.Empty(t, h.attributions(t, cancelled.ID))
		assert.Len(t, h.attributions(t, manual.ID), 1)
	})
}

func TestAutoAttribute_UnknownHousehold(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		_, err := h.engine.AutoAttribute(h.ctx, "hh-missing", generic.SystemMember)
		assert.ErrorIs(t, err, generic.ErrHouseholdNotFound)
	})
}
