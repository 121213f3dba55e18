package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ScopeResult reports what a scoped mutation touched.
type ScopeResult struct {
	Scope            RecurringDeleteScope `json:"scope"`
	AffectedIDs      []uuid.UUID          `json:"affected_ids"`
	PatternTruncated bool                 `json:"pattern_truncated"`
	PatternClosed    bool                 `json:"pattern_closed"`
}

// cancelAppointmentOccurrence cancels a single materialized occurrence and
// marks it an exception so later series-wide edits leave it alone. Already
// terminal occurrences are skipped, which makes the scoped operations
// idempotent.
func cancelAppointmentOccurrence(ctx context.Context, repo AppointmentRepository, a *Appointment, reason *string) (bool, error) {
	if a.Status.Terminal() {
		return false, nil
	}
	a.Status = StatusCancelled
	a.CancellationReason = reason
	if a.RecurrencePatternID != nil {
		a.IsException = true
	}
	if err := repo.Update(ctx, a); err != nil {
		return false, err
	}
	return true, nil
}

func removeBlockedOccurrence(ctx context.Context, repo BlockedSlotRepository, b *BlockedSlot, reason *string) (bool, error) {
	if b.Status == BlockedRemoved {
		return false, nil
	}
	b.Status = BlockedRemoved
	if reason != nil {
		b.Reason = reason
	}
	b.IsException = true
	if err := repo.Update(ctx, b); err != nil {
		return false, err
	}
	return true, nil
}

// truncatePattern permanently ends the series the day before splitDate. The
// occurrence count, if any, is replaced by the until date so the pattern keeps
// exactly one termination rule.
func truncatePattern(ctx context.Context, repo PatternRepository, p *RecurrencePattern, splitDate time.Time) error {
	until := dateOnly(splitDate).AddDate(0, 0, -1)
	p.UntilDate = &until
	p.OccurrenceCount = nil
	return repo.Update(ctx, p)
}

func closePattern(ctx context.Context, repo PatternRepository, p *RecurrencePattern) error {
	if !p.IsActive {
		return nil
	}
	p.IsActive = false
	return repo.Update(ctx, p)
}

// resolveAppointmentScope applies a scoped cancellation to a recurring
// appointment series, anchored at the target occurrence. Callers run it
// inside a transaction.
func resolveAppointmentScope(ctx context.Context, appts AppointmentRepository, patterns PatternRepository,
	target *Appointment, scope RecurringDeleteScope, reason *string) (*ScopeResult, error) {

	res := &ScopeResult{Scope: scope}

	if target.RecurrencePatternID == nil {
		if scope != ScopeThisOccurrence {
			return nil, validationError("appointment %s is not recurring; scope %s requires a series", target.ID, scope)
		}
		changed, err := cancelAppointmentOccurrence(ctx, appts, target, reason)
		if err != nil {
			return nil, err
		}
		if changed {
			res.AffectedIDs = append(res.AffectedIDs, target.ID)
		}
		return res, nil
	}

	pattern, err := patterns.GetByID(ctx, *target.RecurrencePatternID)
	if err != nil {
		return nil, err
	}

	switch scope {
	case ScopeThisOccurrence:
		changed, err := cancelAppointmentOccurrence(ctx, appts, target, reason)
		if err != nil {
			return nil, err
		}
		if changed {
			res.AffectedIDs = append(res.AffectedIDs, target.ID)
		}

	case ScopeThisAndFuture:
		siblings, err := appts.ListByPattern(ctx, pattern.ID)
		if err != nil {
			return nil, err
		}
		split := dateOnly(target.StartTime)
		for _, sib := range siblings {
			if dateOnly(sib.StartTime).Before(split) {
				continue
			}
			// Exceptions other than the anchor were edited individually
			// and stay untouched.
			if sib.IsException && sib.ID != target.ID {
				continue
			}
			changed, err := cancelAppointmentOccurrence(ctx, appts, sib, reason)
			if err != nil {
				return nil, err
			}
			if changed {
				res.AffectedIDs = append(res.AffectedIDs, sib.ID)
			}
		}
		if err := truncatePattern(ctx, patterns, pattern, split); err != nil {
			return nil, err
		}
		res.PatternTruncated = true

	case ScopeAllInSeries:
		siblings, err := appts.ListByPattern(ctx, pattern.ID)
		if err != nil {
			return nil, err
		}
		for _, sib := range siblings {
			changed, err := cancelAppointmentOccurrence(ctx, appts, sib, reason)
			if err != nil {
				return nil, err
			}
			if changed {
				res.AffectedIDs = append(res.AffectedIDs, sib.ID)
			}
		}
		if err := closePattern(ctx, patterns, pattern); err != nil {
			return nil, err
		}
		res.PatternClosed = true

	default:
		return nil, validationError("unknown delete scope %d", scope)
	}
	return res, nil
}

// resolveBlockedScope is the blocked-time counterpart of
// resolveAppointmentScope.
func resolveBlockedScope(ctx context.Context, blocks BlockedSlotRepository, patterns PatternRepository,
	target *BlockedSlot, scope RecurringDeleteScope, reason *string) (*ScopeResult, error) {

	res := &ScopeResult{Scope: scope}

	if target.RecurrencePatternID == nil {
		if scope != ScopeThisOccurrence {
			return nil, validationError("blocked slot %s is not recurring; scope %s requires a series", target.ID, scope)
		}
		changed, err := removeBlockedOccurrence(ctx, blocks, target, reason)
		if err != nil {
			return nil, err
		}
		if changed {
			res.AffectedIDs = append(res.AffectedIDs, target.ID)
		}
		return res, nil
	}

	pattern, err := patterns.GetByID(ctx, *target.RecurrencePatternID)
	if err != nil {
		return nil, err
	}

	switch scope {
	case ScopeThisOccurrence:
		changed, err := removeBlockedOccurrence(ctx, blocks, target, reason)
		if err != nil {
			return nil, err
		}
		if changed {
			res.AffectedIDs = append(res.AffectedIDs, target.ID)
		}

	case ScopeThisAndFuture:
		siblings, err := blocks.ListByPattern(ctx, pattern.ID)
		if err != nil {
			return nil, err
		}
		split := dateOnly(target.StartTime)
		for _, sib := range siblings {
			if dateOnly(sib.StartTime).Before(split) {
				continue
			}
			if sib.IsException && sib.ID != target.ID {
				continue
			}
			changed, err := removeBlockedOccurrence(ctx, blocks, sib, reason)
			if err != nil {
				return nil, err
			}
			if changed {
				res.AffectedIDs = append(res.AffectedIDs, sib.ID)
			}
		}
		if err := truncatePattern(ctx, patterns, pattern, split); err != nil {
			return nil, err
		}
		res.PatternTruncated = true

	case ScopeAllInSeries:
		siblings, err := blocks.ListByPattern(ctx, pattern.ID)
		if err != nil {
			return nil, err
		}
		for _, sib := range siblings {
			changed, err := removeBlockedOccurrence(ctx, blocks, sib, reason)
			if err != nil {
				return nil, err
			}
			if changed {
				res.AffectedIDs = append(res.AffectedIDs, sib.ID)
			}
		}
		if err := closePattern(ctx, patterns, pattern); err != nil {
			return nil, err
		}
		res.PatternClosed = true

	default:
		return nil, validationError("unknown delete scope %d", scope)
	}
	return res, nil
}
