package sequence

import (
	"context"
	"time"

	"docseq/internal/core/apperror"
	"docseq/internal/core/id"
	"docseq/internal/core/numerator"
	"docseq/pkg/logger"
)

// SequenceUpdate is a partial update; nil fields are left unchanged.
type SequenceUpdate struct {
	Code            *string
	Name            *string
	Implementation  *numerator.Strategy
	NumberNext      *int64
	NumberIncrement *int64
	Padding         *int
	Prefix          *string
	Suffix          *string
	UseDateRange    *bool
	OrganizationID  **id.ID
	Active          *bool
	// Version, when set, must match the stored version.
	Version *int
}

func (u SequenceUpdate) apply(seq *Sequence) {
	if u.Code != nil {
		seq.Code = *u.Code
	}
	if u.Name != nil {
		seq.Name = *u.Name
	}
	if u.Implementation != nil {
		seq.Implementation = *u.Implementation
	}
	if u.NumberNext != nil {
		seq.NumberNext = *u.NumberNext
	}
	if u.NumberIncrement != nil {
		seq.NumberIncrement = *u.NumberIncrement
	}
	if u.Padding != nil {
		seq.Padding = *u.Padding
	}
	if u.Prefix != nil {
		seq.Prefix = *u.Prefix
	}
	if u.Suffix != nil {
		seq.Suffix = *u.Suffix
	}
	if u.UseDateRange != nil {
		seq.UseDateRange = *u.UseDateRange
	}
	if u.OrganizationID != nil {
		seq.OrganizationID = *u.OrganizationID
	}
	if u.Active != nil {
		seq.Active = *u.Active
	}
}

// Create validates and stores a new sequence. Standard sequences get a
// backing counter whose first value is NumberNext.
func (s *Service) Create(ctx context.Context, seq *Sequence) error {
	if id.IsNil(seq.ID) {
		seq.ID = id.New()
	}
	if seq.NumberNext == 0 {
		seq.NumberNext = 1
	}
	if err := seq.Validate(ctx); err != nil {
		return err
	}
	now := s.clock().UTC()
	seq.CreatedAt, seq.UpdatedAt = now, now
	seq.Version = 1

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, seq); err != nil {
			return err
		}
		if seq.Implementation == numerator.StrategyStandard {
			if err := s.counters.Create(ctx, SequenceKey(seq.ID), seq.NumberIncrement, seq.NumberNext); err != nil {
				return err
			}
		}
		return s.logChange(ctx, EntitySequence, seq.ID, "create", snapshot(seq))
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, "sequence created", "sequence_id", seq.ID, "code", seq.Code, "implementation", seq.Implementation.String())
	return nil
}

// Update applies patch to the sequence and keeps backing counters in step
// with the implementation, increment and next number.
func (s *Service) Update(ctx context.Context, sequenceID id.ID, patch SequenceUpdate) (*Sequence, error) {
	var updated *Sequence
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockSequence(ctx, sequenceID); err != nil {
			return err
		}
		cur, err := s.repo.GetByID(ctx, sequenceID)
		if err != nil {
			return err
		}
		if patch.Version != nil && *patch.Version != cur.Version {
			return apperror.NewConcurrentModification(EntitySequence, sequenceID)
		}

		next := *cur
		patch.apply(&next)
		if err := next.Validate(ctx); err != nil {
			return err
		}

		ranges, err := s.repo.ListDateRanges(ctx, sequenceID)
		if err != nil {
			return err
		}
		if err := s.syncCounters(ctx, cur, &next, patch, ranges); err != nil {
			return err
		}

		next.UpdatedAt = s.clock().UTC()
		if err := s.repo.Update(ctx, &next); err != nil {
			return err
		}
		updated = &next
		return s.logChange(ctx, EntitySequence, sequenceID, "update", diff(cur, &next))
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// syncCounters reconciles backing counters with an updated configuration.
// The parent row is locked by the caller; a strategy switch also locks every
// range row before its counter is read or seeded.
func (s *Service) syncCounters(ctx context.Context, cur, next *Sequence, patch SequenceUpdate, ranges []*DateRange) error {
	seqKey := SequenceKey(cur.ID)
	if cur.Implementation != next.Implementation {
		if err := s.lockRanges(ctx, ranges); err != nil {
			return err
		}
	}

	switch {
	case cur.Implementation == numerator.StrategyStandard && next.Implementation == numerator.StrategyStandard:
		change := CounterChange{}
		if next.NumberIncrement != cur.NumberIncrement {
			change.Increment = &next.NumberIncrement
		}
		if patch.NumberNext != nil {
			change.Restart = &next.NumberNext
		}
		if change.Increment != nil || change.Restart != nil {
			if err := s.counters.Alter(ctx, seqKey, change); err != nil {
				return err
			}
		}
		if change.Increment != nil {
			for _, r := range ranges {
				if err := s.counters.Alter(ctx, DateRangeKey(cur.ID, r.ID), CounterChange{Increment: change.Increment}); err != nil {
					return err
				}
			}
		}

	case cur.Implementation == numerator.StrategyStandard && next.Implementation == numerator.StrategyNoGap:
		// Carry the live counter values into the stored next numbers.
		if patch.NumberNext == nil {
			n, ok, err := s.peek(ctx, seqKey)
			if err != nil {
				return err
			}
			if ok {
				next.NumberNext = n
			}
		}
		keys := []CounterKey{seqKey}
		for _, r := range ranges {
			key := DateRangeKey(cur.ID, r.ID)
			n, ok, err := s.peek(ctx, key)
			if err != nil {
				return err
			}
			if ok && n != r.NumberNext {
				r.NumberNext = n
				if err := s.repo.UpdateDateRange(ctx, r); err != nil {
					return err
				}
			}
			keys = append(keys, key)
		}
		return s.counters.Drop(ctx, keys...)

	case cur.Implementation == numerator.StrategyNoGap && next.Implementation == numerator.StrategyStandard:
		if err := s.counters.Create(ctx, seqKey, next.NumberIncrement, next.NumberNext); err != nil {
			return err
		}
		for _, r := range ranges {
			if err := s.counters.Create(ctx, DateRangeKey(cur.ID, r.ID), next.NumberIncrement, r.NumberNext); err != nil {
				return err
			}
		}
	}
	return nil
}

// lockRanges locks the range rows and refreshes their stored next numbers.
func (s *Service) lockRanges(ctx context.Context, ranges []*DateRange) error {
	for _, r := range ranges {
		n, err := s.repo.LockNumberNext(ctx, DateRangeKey(r.SequenceID, r.ID), LockWait)
		if err != nil {
			return err
		}
		r.NumberNext = n
	}
	return nil
}

// peek reads a counter, reporting ok=false when it does not exist.
func (s *Service) peek(ctx context.Context, key CounterKey) (int64, bool, error) {
	n, err := s.counters.PeekNext(ctx, key)
	if err != nil {
		if apperror.IsNotFound(err) {
			logger.Warn(ctx, "backing counter missing", "key", key.String())
			return 0, false, nil
		}
		return 0, false, err
	}
	return n, true, nil
}

// Delete removes the sequence, its date ranges and all backing counters.
func (s *Service) Delete(ctx context.Context, sequenceID id.ID) error {
	return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockSequence(ctx, sequenceID); err != nil {
			return err
		}
		seq, err := s.repo.GetByID(ctx, sequenceID)
		if err != nil {
			return err
		}
		ranges, err := s.repo.ListDateRanges(ctx, sequenceID)
		if err != nil {
			return err
		}
		keys := []CounterKey{SequenceKey(sequenceID)}
		for _, r := range ranges {
			keys = append(keys, DateRangeKey(sequenceID, r.ID))
		}
		if err := s.counters.Drop(ctx, keys...); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, sequenceID); err != nil {
			return err
		}
		return s.logChange(ctx, EntitySequence, sequenceID, "delete", map[string]any{"code": seq.Code, "name": seq.Name})
	})
}

// NumberNextActual previews the number the next allocation would use,
// without consuming it.
func (s *Service) NumberNextActual(ctx context.Context, sequenceID id.ID) (int64, error) {
	seq, err := s.GetByID(ctx, sequenceID)
	if err != nil {
		return 0, err
	}
	if seq.Implementation == numerator.StrategyNoGap {
		return seq.NumberNext, nil
	}
	n, ok, err := s.peek(ctx, SequenceKey(seq.ID))
	if err != nil {
		return 0, err
	}
	if !ok {
		return seq.NumberNext, nil
	}
	return n, nil
}

// DateRangeUpdate is a partial update of a date range.
type DateRangeUpdate struct {
	DateFrom   *time.Time
	DateTo     *time.Time
	NumberNext *int64
}

// ListDateRanges returns the ranges of a sequence ordered by start date.
func (s *Service) ListDateRanges(ctx context.Context, sequenceID id.ID) ([]*DateRange, error) {
	if _, err := s.GetByID(ctx, sequenceID); err != nil {
		return nil, err
	}
	return s.repo.ListDateRanges(ctx, sequenceID)
}

// CreateDateRange adds an explicit range to a sequence. Ranges of one
// sequence never overlap.
func (s *Service) CreateDateRange(ctx context.Context, sequenceID id.ID, dr *DateRange) error {
	dr.SequenceID = sequenceID
	dr.DateFrom, dr.DateTo = Day(dr.DateFrom), Day(dr.DateTo)
	if id.IsNil(dr.ID) {
		dr.ID = id.New()
	}
	if dr.NumberNext == 0 {
		dr.NumberNext = 1
	}
	if err := dr.Validate(); err != nil {
		return err
	}

	return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockSequence(ctx, sequenceID); err != nil {
			return err
		}
		seq, err := s.repo.GetByID(ctx, sequenceID)
		if err != nil {
			return err
		}
		if err := s.checkOverlap(ctx, dr); err != nil {
			return err
		}
		return s.insertDateRange(ctx, seq, dr)
	})
}

// UpdateDateRange changes bounds and/or next number of a range. A new
// next number restarts the backing counter of Standard sequences.
func (s *Service) UpdateDateRange(ctx context.Context, dateRangeID id.ID, patch DateRangeUpdate) (*DateRange, error) {
	var updated *DateRange
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetDateRange(ctx, dateRangeID)
		if err != nil {
			return err
		}
		if err := s.repo.LockSequence(ctx, cur.SequenceID); err != nil {
			return err
		}
		if _, err := s.repo.LockNumberNext(ctx, DateRangeKey(cur.SequenceID, cur.ID), LockWait); err != nil {
			return err
		}
		if cur, err = s.repo.GetDateRange(ctx, dateRangeID); err != nil {
			return err
		}
		seq, err := s.repo.GetByID(ctx, cur.SequenceID)
		if err != nil {
			return err
		}

		next := *cur
		if patch.DateFrom != nil {
			next.DateFrom = Day(*patch.DateFrom)
		}
		if patch.DateTo != nil {
			next.DateTo = Day(*patch.DateTo)
		}
		if patch.NumberNext != nil {
			next.NumberNext = *patch.NumberNext
		}
		if err := next.Validate(); err != nil {
			return err
		}
		if err := s.checkOverlap(ctx, &next); err != nil {
			return err
		}

		if patch.NumberNext != nil && seq.Implementation == numerator.StrategyStandard {
			err := s.counters.Alter(ctx, DateRangeKey(seq.ID, next.ID), CounterChange{Restart: &next.NumberNext})
			if err != nil {
				return err
			}
		}
		if err := s.repo.UpdateDateRange(ctx, &next); err != nil {
			return err
		}
		updated = &next
		return s.logChange(ctx, EntityDateRange, next.ID, "update", map[string]any{
			"dateFrom":   next.DateFrom.Format(numerator.DateLayout),
			"dateTo":     next.DateTo.Format(numerator.DateLayout),
			"numberNext": next.NumberNext,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteDateRange removes a range and its backing counter.
func (s *Service) DeleteDateRange(ctx context.Context, dateRangeID id.ID) error {
	return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		dr, err := s.repo.GetDateRange(ctx, dateRangeID)
		if err != nil {
			return err
		}
		if err := s.repo.LockSequence(ctx, dr.SequenceID); err != nil {
			return err
		}
		if err := s.counters.Drop(ctx, DateRangeKey(dr.SequenceID, dr.ID)); err != nil {
			return err
		}
		if err := s.repo.DeleteDateRange(ctx, dateRangeID); err != nil {
			return err
		}
		return s.logChange(ctx, EntityDateRange, dr.ID, "delete", map[string]any{"sequenceId": dr.SequenceID})
	})
}

// DateRangeNumberNextActual previews the next number of a range.
func (s *Service) DateRangeNumberNextActual(ctx context.Context, dateRangeID id.ID) (int64, error) {
	dr, err := s.repo.GetDateRange(ctx, dateRangeID)
	if err != nil {
		return 0, err
	}
	seq, err := s.GetByID(ctx, dr.SequenceID)
	if err != nil {
		return 0, err
	}
	if seq.Implementation == numerator.StrategyNoGap {
		return dr.NumberNext, nil
	}
	n, ok, err := s.peek(ctx, DateRangeKey(seq.ID, dr.ID))
	if err != nil {
		return 0, err
	}
	if !ok {
		return dr.NumberNext, nil
	}
	return n, nil
}

func (s *Service) checkOverlap(ctx context.Context, dr *DateRange) error {
	siblings, err := s.repo.ListDateRanges(ctx, dr.SequenceID)
	if err != nil {
		return err
	}
	for _, other := range siblings {
		if other.ID == dr.ID {
			continue
		}
		if dr.Overlaps(other) {
			return apperror.NewConflict("date range overlaps an existing range").
				WithDetail("dateFrom", other.DateFrom.Format(numerator.DateLayout)).
				WithDetail("dateTo", other.DateTo.Format(numerator.DateLayout))
		}
	}
	return nil
}

func snapshot(seq *Sequence) map[string]any {
	return map[string]any{
		"code":            seq.Code,
		"name":            seq.Name,
		"implementation":  seq.Implementation.String(),
		"numberNext":      seq.NumberNext,
		"numberIncrement": seq.NumberIncrement,
		"padding":         seq.Padding,
		"prefix":          seq.Prefix,
		"suffix":          seq.Suffix,
		"useDateRange":    seq.UseDateRange,
		"organizationId":  seq.OrganizationID,
		"active":          seq.Active,
	}
}

// diff returns the changed fields as {"field": {"old": .., "new": ..}}.
func diff(before, after *Sequence) map[string]any {
	b, a := snapshot(before), snapshot(after)
	changes := make(map[string]any)
	for k, nv := range a {
		ov := b[k]
		if k == "organizationId" {
			if id.EqualPtr(before.OrganizationID, after.OrganizationID) {
				continue
			}
		} else if ov == nv {
			continue
		}
		changes[k] = map[string]any{"old": ov, "new": nv}
	}
	return changes
}
