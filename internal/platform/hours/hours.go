// Package hours resolves clinic operating windows. The default implementation
// is config-backed: one weekly schedule applied to every clinic, with an
// optional set of closed weekdays. A per-clinic schedule table can replace it
// behind the same interface.
package hours

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/scheduling"
)

type Weekly struct {
	openHour, openMin   int
	closeHour, closeMin int
	closed              map[time.Weekday]bool
}

// NewWeekly builds a schedule from "HH:MM" open/close strings and a list of
// closed weekday names ("saturday", "sunday", ...).
func NewWeekly(open, close string, closedDays []string) (*Weekly, error) {
	oh, om, err := parseClock(open)
	if err != nil {
		return nil, fmt.Errorf("open time: %w", err)
	}
	ch, cm, err := parseClock(close)
	if err != nil {
		return nil, fmt.Errorf("close time: %w", err)
	}
	if ch*60+cm <= oh*60+om {
		return nil, fmt.Errorf("close time %s is not after open time %s", close, open)
	}
	w := &Weekly{openHour: oh, openMin: om, closeHour: ch, closeMin: cm, closed: map[time.Weekday]bool{}}
	for _, name := range closedDays {
		day, err := parseWeekday(name)
		if err != nil {
			return nil, err
		}
		w.closed[day] = true
	}
	return w, nil
}

// DayWindow returns the operating window for the calendar day containing the
// given time, in that time's location. The clinic id is unused by the weekly
// schedule but part of the interface.
func (w *Weekly) DayWindow(_ context.Context, _ uuid.UUID, day time.Time) (scheduling.Interval, bool, error) {
	if w.closed[day.Weekday()] {
		return scheduling.Interval{}, false, nil
	}
	y, m, d := day.Date()
	loc := day.Location()
	return scheduling.Interval{
		Start: time.Date(y, m, d, w.openHour, w.openMin, 0, 0, loc),
		End:   time.Date(y, m, d, w.closeHour, w.closeMin, 0, 0, loc),
	}, true, nil
}

func parseClock(s string) (hour, min int, err error) {
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &min); err != nil {
		return 0, 0, fmt.Errorf("invalid clock time %q, want HH:MM", s)
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("clock time %q out of range", s)
	}
	return hour, min, nil
}

func parseWeekday(name string) (time.Weekday, error) {
	switch strings.ToLower(name) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}
