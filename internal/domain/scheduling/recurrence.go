package scheduling

import (
	"time"
)

// MaxOccurrences caps how many occurrences any single pattern may generate.
// Expansion work is otherwise unbounded by external input.
const MaxOccurrences = 1000

// maxExpansionHorizon bounds until-terminated expansion when a caller passes
// an open-ended range.
const maxExpansionHorizon = 10 * 366 * 24 * time.Hour

// ExpandPattern returns the concrete occurrence start dates of the pattern
// that fall within [rangeStart, rangeEnd). The occurrence index is counted
// from the pattern's StartDate, not from rangeStart, so an OccurrenceCount
// termination is honored even when expansion is requested in range chunks.
// Expansion stops at the first of rangeEnd, UntilDate, OccurrenceCount, or
// MaxOccurrences.
func ExpandPattern(p *RecurrencePattern, rangeStart, rangeEnd time.Time) ([]time.Time, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	start := dateOnly(p.StartDate)
	limit := dateOnly(rangeEnd)
	if p.UntilDate != nil {
		// UntilDate is inclusive.
		untilLimit := dateOnly(*p.UntilDate).AddDate(0, 0, 1)
		if untilLimit.Before(limit) {
			limit = untilLimit
		}
	}
	if hardLimit := start.Add(maxExpansionHorizon); hardLimit.Before(limit) {
		limit = hardLimit
	}

	maxCount := MaxOccurrences
	if p.OccurrenceCount != nil && *p.OccurrenceCount < maxCount {
		maxCount = *p.OccurrenceCount
	}

	var dates []time.Time
	yielded := 0

	emit := func(d time.Time) bool {
		if !d.Before(limit) || yielded >= maxCount {
			return false
		}
		yielded++
		if !d.Before(dateOnly(rangeStart)) {
			dates = append(dates, d)
		}
		return true
	}

	switch p.Frequency {
	case FrequencyDaily:
		for d := start; ; d = d.AddDate(0, 0, p.Interval) {
			if !emit(d) {
				break
			}
		}

	case FrequencyWeekly:
		allowed := make(map[time.Weekday]bool, len(p.Weekdays))
		for _, wd := range p.Weekdays {
			allowed[time.Weekday(wd)] = true
		}
		for d := start; d.Before(limit) && yielded < maxCount; d = d.AddDate(0, 0, 1) {
			elapsedWeeks := int(d.Sub(start).Hours()) / (24 * 7)
			if elapsedWeeks%p.Interval != 0 {
				continue
			}
			if !allowed[d.Weekday()] {
				continue
			}
			if !emit(d) {
				break
			}
		}

	case FrequencyMonthly:
		day := start.Day()
		for i := 0; ; i += p.Interval {
			d := addMonthsClamped(start, i, day)
			if !emit(d) {
				break
			}
		}
	}

	return dates, nil
}

// ExpandFull returns every occurrence date of the series from its start to
// its termination rule, capped at MaxOccurrences.
func ExpandFull(p *RecurrencePattern) ([]time.Time, error) {
	end := dateOnly(p.StartDate).Add(maxExpansionHorizon)
	if p.UntilDate != nil {
		end = dateOnly(*p.UntilDate).AddDate(0, 0, 1)
	}
	return ExpandPattern(p, p.StartDate, end)
}

// dateOnly truncates t to UTC midnight.
func dateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// addMonthsClamped returns the date months after base, on the given
// day-of-month, clamped to the last day of the target month. AddDate alone
// would normalize Feb 31 into early March.
func addMonthsClamped(base time.Time, months, day int) time.Time {
	first := time.Date(base.Year(), base.Month(), 1, 0, 0, 0, 0, time.UTC)
	target := first.AddDate(0, months, 0)
	lastDay := daysInMonth(target.Year(), target.Month())
	if day > lastDay {
		day = lastDay
	}
	return time.Date(target.Year(), target.Month(), day, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// OccurrenceStart combines an expanded occurrence date with the
// time-of-day of the pattern's StartDate.
func OccurrenceStart(p *RecurrencePattern, date time.Time) time.Time {
	s := p.StartDate.UTC()
	return time.Date(date.Year(), date.Month(), date.Day(),
		s.Hour(), s.Minute(), s.Second(), 0, time.UTC)
}
