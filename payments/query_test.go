package payments_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/household-payments/generic"
	"github.com/warp/household-payments/payments"
)

func payees(list []payments.Payment) []string {
	out := make([]string, len(list))
	for i, p := range list {
		out[i] = p.Payee
	}
	return out
}

func TestUpcoming_WindowAndOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		h.once(t, "Late", "10", "2024-06-10")
		h.once(t, "Later", "10", "2024-06-25")
		h.once(t, "Today", "10", "2024-06-15")
		h.once(t, "Edge", "10", "2024-07-15")
		h.once(t, "Outside", "10", "2024-07-16")
		partial := h.once(t, "Partial", "10", "2024-06-20")
		paid := h.once(t, "Paid", "10", "2024-06-21")
		_, err := h.engine.Settle(h.ctx, h.hh, partial.ID, date("2024-06-14"), amt("4"))
		require.NoError(t, err)
		_, err = h.engine.Settle(h.ctx, h.hh, paid.ID, date("2024-06-14"), amt("10"))
		require.NoError(t, err)

		list, err := h.engine.Upcoming(h.ctx, h.hh, date("2024-06-15"), 30)
		require.NoError(t, err)
		assert.Equal(t, []string{"Today", "Partial", "Later", "Edge"}, payees(list))

		_, err = h.engine.Upcoming(h.ctx, h.hh, date("2024-06-15"), -1)
		assert.ErrorIs(t, err, generic.ErrInvalid)
	})
}

func TestOverdue_DerivedFromDueDate(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		h.once(t, "March", "10", "2024-03-01")
		h.once(t, "January", "10", "2024-01-01")
		h.once(t, "Future", "10", "2024-07-01")
		partial := h.once(t, "Partial", "10", "2024-05-01")
		done := h.once(t, "Done", "10", "2024-02-01")
		_, err := h.engine.Settle(h.ctx, h.hh, partial.ID, date("2024-05-01"), amt("1"))
		require.NoError(t, err)
		_, err = h.engine.Settle(h.ctx, h.hh, done.ID, date("2024-02-01"), amt("10"))
		require.NoError(t, err)

		list, err := h.engine.Overdue(h.ctx, h.hh)
		require.NoError(t, err)
		assert.Equal(t, []string{"January", "March", "Partial"}, payees(list))
		for _, p := range list {
			assert.Equal(t, payments.StatusOverdue, p.Status)
		}

		stored, err := h.store.ListPayments(h.ctx, h.hh, payments.PaymentFilter{Statuses: []payments.Status{payments.StatusOverdue}})
		require.NoError(t, err)
		assert.Empty(t, stored, "overdue is never persisted")
	})
}

func TestSummary_Period(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		a := h.once(t, "A", "100", "2024-01-05")
		b := h.once(t, "B", "50", "2024-01-20")
		c := h.once(t, "C", "30", "2024-01-25")
		h.once(t, "D", "70", "2024-02-01")
		ev := h.income(t, "inc-1", "500", "2024-01-01")

		_, err := h.engine.Settle(h.ctx, h.hh, a.ID, date("2024-01-05"), amt("100"))
		require.NoError(t, err)
		_, err = h.engine.Settle(h.ctx, h.hh, b.ID, date("2024-01-20"), amt("20"))
		require.NoError(t, err)
		_, err = h.engine.Cancel(h.ctx, h.hh, c.ID)
		require.NoError(t, err)
		_, err = h.engine.Attribute(h.ctx, h.hh, b.ID, ev.ID, amt("40"), payments.AttributionManual, "m")
		require.NoError(t, err)

		s, err := h.engine.Summary(h.ctx, h.hh, generic.PeriodFor(generic.PeriodMonth, date("2024-01-10")))
		require.NoError(t, err)
		assert.Equal(t, 3, s.Count)
		assertAmount(t, "150", s.TotalScheduled)
		assertAmount(t, "120", s.TotalPaid)
		assertAmount(t, "40", s.TotalAttributed)
		assertAmount(t, "30", s.Outstanding)
		assert.Equal(t, map[payments.Status]int{
			payments.StatusPaid:      1,
			payments.StatusOverdue:   1,
			payments.StatusCancelled: 1,
		}, s.CountByStatus)

		_, err = h.engine.Summary(h.ctx, "hh-missing", s.Period)
		assert.ErrorIs(t, err, generic.ErrHouseholdNotFound)
		_, err = h.engine.Summary(h.ctx, h.hh, generic.Period{Start: date("2024-02-01"), End: date("2024-01-01")})
		assert.ErrorIs(t, err, generic.ErrInvalidPeriod)
	})
}

func TestIncomeEvents_Ordered(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		h.income(t, "inc-b", "10", "2024-06-02")
		h.income(t, "inc-a", "10", "2024-06-02")
		h.income(t, "inc-c", "10", "2024-06-01")

		list, err := h.engine.IncomeEvents(h.ctx, h.hh)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, generic.IncomeEventID("inc-c"), list[0].ID)
		assert.Equal(t, generic.IncomeEventID("inc-a"), list[1].ID)
		assert.Equal(t, generic.IncomeEventID("inc-b"), list[2].ID)
	})
}
