package scheduling

import (
	"sort"
	"time"
)

// Interval is a half-open time window [Start, End). Back-to-back intervals do
// not overlap.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the two half-open intervals intersect.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Duration returns the interval length.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Contains reports whether t falls within [Start, End).
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// MergeIntervals sorts the given intervals by start time and coalesces
// overlapping or adjacent ones. The input slice is not modified.
func MergeIntervals(ivs []Interval) []Interval {
	if len(ivs) == 0 {
		return nil
	}

	sorted := make([]Interval, len(ivs))
	copy(sorted, ivs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// SubtractIntervals returns the free portions of window not covered by busy.
// Busy intervals may be unsorted and overlapping; they are merged first.
// With no busy intervals the whole window is free; with full coverage the
// result is empty.
func SubtractIntervals(window Interval, busy []Interval) []Interval {
	if !window.Start.Before(window.End) {
		return nil
	}

	var free []Interval
	cursor := window.Start
	for _, b := range MergeIntervals(busy) {
		if !b.End.After(window.Start) || !b.Start.Before(window.End) {
			continue
		}
		if b.Start.After(cursor) {
			free = append(free, Interval{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if cursor.Before(window.End) {
		free = append(free, Interval{Start: cursor, End: window.End})
	}
	return free
}

// ClipToWindow intersects each interval with the operating window, dropping
// intervals that fall entirely outside it.
func ClipToWindow(ivs []Interval, window Interval) []Interval {
	var out []Interval
	for _, iv := range ivs {
		if !iv.Overlaps(window) {
			continue
		}
		clipped := iv
		if clipped.Start.Before(window.Start) {
			clipped.Start = window.Start
		}
		if clipped.End.After(window.End) {
			clipped.End = window.End
		}
		if clipped.Start.Before(clipped.End) {
			out = append(out, clipped)
		}
	}
	return out
}

// SliceSlots splits a free interval into consecutive slots of the given
// duration. A trailing remainder shorter than the duration yields no slot,
// so a free interval shorter than the duration yields zero slots.
func SliceSlots(free Interval, d time.Duration) []Interval {
	if d <= 0 {
		return nil
	}
	var slots []Interval
	for cur := free.Start; !cur.Add(d).After(free.End); cur = cur.Add(d) {
		slots = append(slots, Interval{Start: cur, End: cur.Add(d)})
	}
	return slots
}
