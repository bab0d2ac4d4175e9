package core

import "time"

// GenerateOccurrences expands (start, end, every) into the ordered list of
// occurrence dates for a recurring series. Occurrence i is derived from the
// start date rather than from the previous occurrence, so a monthly series
// anchored on the 31st stays on the last day of short months and returns to
// the 31st afterwards (Jan 31 -> Feb 28 -> Mar 31) instead of drifting.
//
// The result always contains start as its first element and is strictly
// ascending; generation stops once an occurrence would pass end. Callers
// enforce start <= end, so the list is never empty.
func GenerateOccurrences(start, end Timestamp, every RecurrenceType) ([]Timestamp, error) {
	switch every {
	case Weekly, Monthly, Yearly:
	default:
		return nil, ErrInvalidRecurrenceType
	}

	startTime := start.Time()
	var out []Timestamp
	for i := 0; ; i++ {
		occ := Canonicalize(nthOccurrence(startTime, every, i))
		if end.Before(occ) {
			break
		}
		out = append(out, occ)
	}
	return out, nil
}

// nthOccurrence computes occurrence i of a series anchored at start.
func nthOccurrence(start time.Time, every RecurrenceType, i int) time.Time {
	switch every {
	case Weekly:
		return start.AddDate(0, 0, 7*i)
	case Monthly:
		return addMonthsClamped(start, i)
	default: // Yearly
		return addMonthsClamped(start, 12*i)
	}
}

// addMonthsClamped advances start by months whole calendar months, keeping
// the anchor day-of-month where possible and clamping to the last day of the
// target month otherwise. time.Time.AddDate is unsuitable here: it rolls
// Jan 31 + 1 month over into March.
func addMonthsClamped(start time.Time, months int) time.Time {
	year, month, day := start.Date()
	hour, min, sec := start.Clock()

	target := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := lastDayOfMonth(target.Year(), target.Month()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, hour, min, sec, start.Nanosecond(), time.UTC)
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
