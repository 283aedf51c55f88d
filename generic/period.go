package generic

import "time"

// =============================================================================
// PERIOD - Date window for summaries and upcoming lists
// =============================================================================

// Period is the inclusive range [Start, End] of calendar days.
type Period struct {
	Start Date
	End   Date
}

// NewPeriod validates that end is not before start.
func NewPeriod(start, end Date) (Period, error) {
	if end.Before(start) {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Start: start, End: end}, nil
}

// Contains returns true if the date is within the period [Start, End]
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Days returns the number of calendar days covered, inclusive.
func (p Period) Days() int { return DaysBetween(p.Start, p.End) + 1 }

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// Window returns the period of days starting at from and spanning n more days.
func Window(from Date, days int) Period {
	return Period{Start: from, End: from.AddDays(days)}
}

// PeriodType names the calendar-aligned periods summaries are usually asked for.
type PeriodType string

const (
	PeriodMonth   PeriodType = "month"
	PeriodQuarter PeriodType = "quarter"
	PeriodYear    PeriodType = "year"
)

// PeriodFor returns the calendar-aligned period of type t containing date.
func PeriodFor(t PeriodType, date Date) Period {
	switch t {
	case PeriodMonth:
		return Period{Start: StartOfMonth(date.Year(), date.Month()), End: EndOfMonth(date.Year(), date.Month())}
	case PeriodQuarter:
		first := time.Month((int(date.Month())-1)/3*3 + 1)
		return Period{Start: StartOfMonth(date.Year(), first), End: EndOfMonth(date.Year(), first+2)}
	default:
		return Period{Start: NewDate(date.Year(), time.January, 1), End: NewDate(date.Year(), time.December, 31)}
	}
}

// NextPeriod returns the period of equal length following this one.
func (p Period) NextPeriod() Period {
	start := p.End.AddDays(1)
	return Period{Start: start, End: start.AddDays(DaysBetween(p.Start, p.End))}
}
