package generic

import "fmt"

// =============================================================================
// FREQUENCY - How often a recurring obligation falls due
// =============================================================================

type Frequency string

const (
	FrequencyOnce      Frequency = "once"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiweekly  Frequency = "biweekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyAnnual    Frequency = "annual"
)

// Frequencies lists every supported frequency.
var Frequencies = []Frequency{
	FrequencyOnce, FrequencyWeekly, FrequencyBiweekly,
	FrequencyMonthly, FrequencyQuarterly, FrequencyAnnual,
}

func (f Frequency) Validate() error {
	for _, known := range Frequencies {
		if f == known {
			return nil
		}
	}
	return &ValidationError{Field: "frequency", Message: fmt.Sprintf("unsupported frequency %q", f)}
}

// =============================================================================
// RECURRENCE CALCULATOR
// =============================================================================

// NextOccurrence returns the due date following date for frequency f.
// Month-based steps use calendar months and clamp to the last valid day.
// FrequencyOnce (and any unknown value) returns date unchanged; callers
// decide whether a once payment spawns anything.
func NextOccurrence(date Date, f Frequency) Date {
	switch f {
	case FrequencyWeekly:
		return date.AddDays(7)
	case FrequencyBiweekly:
		return date.AddDays(14)
	case FrequencyMonthly:
		return date.AddMonths(1)
	case FrequencyQuarterly:
		return date.AddMonths(3)
	case FrequencyAnnual:
		return date.AddYears(1)
	default:
		return date
	}
}

// Occurrences enumerates due dates from start (inclusive) through until
// (inclusive) by chaining NextOccurrence, the same way settlement spawns
// them. A once frequency yields at most start.
func Occurrences(start Date, f Frequency, until Date) []Date {
	var dates []Date
	current := start
	for current.BeforeOrEqual(until) {
		dates = append(dates, current)
		next := NextOccurrence(current, f)
		if !next.After(current) {
			break
		}
		current = next
	}
	return dates
}
