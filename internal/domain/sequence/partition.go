package sequence

import (
	"context"
	"time"

	"docseq/internal/core/id"
	"docseq/internal/core/numerator"
	"docseq/pkg/logger"
)

// ResolveDateRange returns the date range of seq covering day, creating it
// when none exists. Creation is serialized per sequence by locking the
// parent row, so concurrent callers end up with the same range.
// Sequences without date ranges allocate from themselves: nil, nil.
func (s *Service) ResolveDateRange(ctx context.Context, seq *Sequence, day time.Time) (*DateRange, error) {
	if !seq.UseDateRange {
		return nil, nil
	}
	day = Day(day)

	dr, err := s.repo.FindDateRange(ctx, seq.ID, day)
	if err != nil {
		return nil, err
	}
	if dr != nil {
		return dr, nil
	}

	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockSequence(ctx, seq.ID); err != nil {
			return err
		}
		cur, err := s.repo.GetByID(ctx, seq.ID)
		if err != nil {
			return err
		}
		// Another caller may have created it while we waited for the lock.
		found, err := s.repo.FindDateRange(ctx, seq.ID, day)
		if err != nil {
			return err
		}
		if found != nil {
			dr = found
			return nil
		}

		siblings, err := s.repo.ListDateRanges(ctx, seq.ID)
		if err != nil {
			return err
		}
		from, to := ComputeRangeBounds(day, siblings)
		dr = &DateRange{
			ID:         id.New(),
			SequenceID: seq.ID,
			DateFrom:   from,
			DateTo:     to,
			NumberNext: cur.NumberNext,
		}
		if err := s.insertDateRange(ctx, cur, dr); err != nil {
			return err
		}
		s.metrics.DateRangeCreated(cur.Implementation)
		logger.Info(ctx, "date range created",
			"sequence_id", seq.ID,
			"date_from", from.Format(numerator.DateLayout),
			"date_to", to.Format(numerator.DateLayout))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dr, nil
}

// ComputeRangeBounds returns the bounds of a new range covering day, which
// no sibling covers. The range spans the calendar year of day, narrowed so
// it ends the day before the earliest sibling starting later that year and
// starts the day after the latest sibling ending earlier that year.
func ComputeRangeBounds(day time.Time, siblings []*DateRange) (from, to time.Time) {
	day = Day(day)
	yearStart := time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	yearEnd := time.Date(day.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)

	from, to = yearStart, yearEnd
	var nextStart, prevEnd *time.Time
	for _, r := range siblings {
		if !r.DateFrom.Before(day) && !r.DateFrom.After(yearEnd) {
			if nextStart == nil || r.DateFrom.Before(*nextStart) {
				start := r.DateFrom
				nextStart = &start
			}
		}
		if !r.DateTo.Before(yearStart) && !r.DateTo.After(day) {
			if prevEnd == nil || r.DateTo.After(*prevEnd) {
				end := r.DateTo
				prevEnd = &end
			}
		}
	}
	if nextStart != nil {
		to = nextStart.AddDate(0, 0, -1)
	}
	if prevEnd != nil {
		from = prevEnd.AddDate(0, 0, 1)
	}
	return from, to
}

// insertDateRange stores dr and, for Standard sequences, its counter.
func (s *Service) insertDateRange(ctx context.Context, seq *Sequence, dr *DateRange) error {
	if err := s.repo.CreateDateRange(ctx, dr); err != nil {
		return err
	}
	if seq.Implementation == numerator.StrategyStandard {
		if err := s.counters.Create(ctx, DateRangeKey(seq.ID, dr.ID), seq.NumberIncrement, dr.NumberNext); err != nil {
			return err
		}
	}
	return s.logChange(ctx, EntityDateRange, dr.ID, "create", map[string]any{
		"sequenceId": seq.ID,
		"dateFrom":   dr.DateFrom.Format(numerator.DateLayout),
		"dateTo":     dr.DateTo.Format(numerator.DateLayout),
		"numberNext": dr.NumberNext,
	})
}
