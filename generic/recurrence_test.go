package generic_test

import (
	"errors"
	"testing"
	"time"

	"github.com/warp/household-payments/generic"
)

// =============================================================================
// RECURRENCE CALCULATOR
// =============================================================================

func TestNextOccurrence(t *testing.T) {
	tests := []struct {
		name string
		from string
		freq generic.Frequency
		want string
	}{
		{"once is identity", "2024-03-10", generic.FrequencyOnce, "2024-03-10"},
		{"weekly", "2024-03-10", generic.FrequencyWeekly, "2024-03-17"},
		{"weekly crosses month", "2024-03-28", generic.FrequencyWeekly, "2024-04-04"},
		{"biweekly", "2024-12-25", generic.FrequencyBiweekly, "2025-01-08"},
		{"monthly keeps day", "2024-01-15", generic.FrequencyMonthly, "2024-02-15"},
		{"monthly clamps leap year", "2024-01-31", generic.FrequencyMonthly, "2024-02-29"},
		{"monthly clamps common year", "2023-01-31", generic.FrequencyMonthly, "2023-02-28"},
		{"monthly clamps 30 day month", "2024-03-31", generic.FrequencyMonthly, "2024-04-30"},
		{"monthly crosses year", "2024-12-31", generic.FrequencyMonthly, "2025-01-31"},
		{"quarterly", "2024-01-15", generic.FrequencyQuarterly, "2024-04-15"},
		{"quarterly clamps", "2024-11-30", generic.FrequencyQuarterly, "2025-02-28"},
		{"annual", "2024-06-01", generic.FrequencyAnnual, "2025-06-01"},
		{"annual from leap day", "2024-02-29", generic.FrequencyAnnual, "2025-02-28"},
		{"unknown is identity", "2024-06-01", generic.Frequency("fortnightly"), "2024-06-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := generic.NextOccurrence(generic.MustParseDate(tt.from), tt.freq)
			if got.String() != tt.want {
				t.Errorf("NextOccurrence(%s, %s) = %s, want %s", tt.from, tt.freq, got, tt.want)
			}
		})
	}
}

func TestOccurrences_ChainsWithoutDuplicates(t *testing.T) {
	start := generic.NewDate(2024, time.January, 31)
	until := generic.NewDate(2024, time.May, 31)

	got := generic.Occurrences(start, generic.FrequencyMonthly, until)

	// Chaining follows settlement: the clamped Feb 29 carries forward.
	want := []string{"2024-01-31", "2024-02-29", "2024-03-29", "2024-04-29", "2024-05-29"}
	if len(got) != len(want) {
		t.Fatalf("expected %d occurrences, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("occurrence %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestOccurrences_OnceYieldsSingleDate(t *testing.T) {
	start := generic.NewDate(2024, time.March, 1)
	got := generic.Occurrences(start, generic.FrequencyOnce, start.AddYears(1))
	if len(got) != 1 || !got[0].Equal(start) {
		t.Errorf("expected only %s, got %v", start, got)
	}
}

func TestFrequency_Validate(t *testing.T) {
	for _, f := range generic.Frequencies {
		if err := f.Validate(); err != nil {
			t.Errorf("%s should be valid: %v", f, err)
		}
	}
	err := generic.Frequency("daily").Validate()
	if !errors.Is(err, generic.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

// =============================================================================
// DATES AND PERIODS
// =============================================================================

func TestDate_ParseAndCompare(t *testing.T) {
	a := generic.MustParseDate("2024-02-29")
	b := generic.NewDate(2024, time.March, 1)

	if !a.Before(b) || a.Compare(b) != -1 || b.Compare(a) != 1 || a.Compare(a) != 0 {
		t.Errorf("unexpected ordering between %s and %s", a, b)
	}
	if generic.DaysBetween(a, b) != 1 {
		t.Errorf("expected 1 day between %s and %s", a, b)
	}

	if _, err := generic.ParseDate("29/02/2024"); !errors.Is(err, generic.ErrInvalid) {
		t.Errorf("expected ErrInvalid for bad layout, got %v", err)
	}
}

func TestDateOf_DropsClock(t *testing.T) {
	at := time.Date(2024, time.July, 4, 23, 59, 0, 0, time.UTC)
	if got := generic.DateOf(at); !got.Equal(generic.NewDate(2024, time.July, 4)) {
		t.Errorf("DateOf = %s", got)
	}
}

func TestPeriodFor(t *testing.T) {
	d := generic.NewDate(2024, time.August, 17)

	month := generic.PeriodFor(generic.PeriodMonth, d)
	if month.String() != "[2024-08-01, 2024-08-31]" {
		t.Errorf("month period = %s", month)
	}
	quarter := generic.PeriodFor(generic.PeriodQuarter, d)
	if quarter.String() != "[2024-07-01, 2024-09-30]" {
		t.Errorf("quarter period = %s", quarter)
	}
	year := generic.PeriodFor(generic.PeriodYear, d)
	if year.Days() != 366 {
		t.Errorf("2024 should have 366 days, got %d", year.Days())
	}
	if !quarter.Contains(d) || quarter.Contains(generic.NewDate(2024, time.October, 1)) {
		t.Errorf("quarter containment wrong for %s", quarter)
	}
}

func TestNewPeriod_RejectsReversedRange(t *testing.T) {
	_, err := generic.NewPeriod(generic.NewDate(2024, 2, 1), generic.NewDate(2024, 1, 1))
	if !errors.Is(err, generic.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}
