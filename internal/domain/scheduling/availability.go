package scheduling

import (
	"bytes"
	"sort"
	"time"

	"github.com/google/uuid"
)

// AvailableSlot is one bookable opening for a provider.
type AvailableSlot struct {
	ProviderID uuid.UUID `json:"provider_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

// busyIntervals gathers the intervals during which the provider cannot take a
// new appointment: their non-terminal appointments plus every active blocked
// slot that applies to them (provider-specific or clinic-wide).
func busyIntervals(providerID uuid.UUID, appts []*Appointment, blocks []*BlockedSlot) []Interval {
	var busy []Interval
	for _, a := range appts {
		if a.ProviderID != providerID || a.Status.Terminal() {
			continue
		}
		busy = append(busy, a.Window())
	}
	for _, b := range blocks {
		if b.Status != BlockedActive || !b.AppliesTo(providerID) {
			continue
		}
		busy = append(busy, b.Window())
	}
	return busy
}

// ProviderSlots computes the bookable openings of slotMinutes duration for one
// provider within the clinic operating window. Busy intervals are merged,
// subtracted from the window, and each free gap is sliced into fixed-length
// slots aligned to the gap start. A gap shorter than the slot duration yields
// nothing.
func ProviderSlots(providerID uuid.UUID, window Interval, appts []*Appointment, blocks []*BlockedSlot, slotMinutes int) []AvailableSlot {
	d := time.Duration(slotMinutes) * time.Minute
	busy := MergeIntervals(busyIntervals(providerID, appts, blocks))
	var slots []AvailableSlot
	for _, free := range SubtractIntervals(window, busy) {
		for _, s := range SliceSlots(free, d) {
			slots = append(slots, AvailableSlot{
				ProviderID: providerID,
				StartTime:  s.Start,
				EndTime:    s.End,
			})
		}
	}
	return slots
}

// ClinicSlots computes openings for every provider appearing in the day's
// appointments plus any explicitly requested providers. Results are grouped
// per provider in deterministic order: requested providers first in the given
// order, then discovered ones sorted by id.
func ClinicSlots(providerIDs []uuid.UUID, window Interval, appts []*Appointment, blocks []*BlockedSlot, slotMinutes int) []AvailableSlot {
	ordered := make([]uuid.UUID, 0, len(providerIDs))
	seen := make(map[uuid.UUID]bool, len(providerIDs))
	for _, id := range providerIDs {
		if !seen[id] {
			seen[id] = true
			ordered = append(ordered, id)
		}
	}
	var discovered []uuid.UUID
	for _, a := range appts {
		if !seen[a.ProviderID] {
			seen[a.ProviderID] = true
			discovered = append(discovered, a.ProviderID)
		}
	}
	for _, b := range blocks {
		if b.ProviderID != nil && !seen[*b.ProviderID] {
			seen[*b.ProviderID] = true
			discovered = append(discovered, *b.ProviderID)
		}
	}
	sortUUIDs(discovered)
	ordered = append(ordered, discovered...)

	var slots []AvailableSlot
	for _, id := range ordered {
		slots = append(slots, ProviderSlots(id, window, appts, blocks, slotMinutes)...)
	}
	return slots
}

func sortUUIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}
