package sequence

import (
	"context"
	"fmt"

	"docseq/internal/core/numerator"
)

// allocate returns the raw number for key using the strategy of seq.
// Date range counters step by the parent's increment.
func (s *Service) allocate(ctx context.Context, seq *Sequence, key CounterKey) (int64, error) {
	switch seq.Implementation {
	case numerator.StrategyStandard:
		return s.allocateGapPermitting(ctx, key)
	case numerator.StrategyNoGap:
		return s.allocateGapFree(ctx, seq, key)
	default:
		return 0, fmt.Errorf("unknown implementation %d for sequence %s", seq.Implementation, seq.ID)
	}
}

// allocateGapPermitting advances the atomic counter. The value is consumed
// even if the caller's transaction rolls back.
func (s *Service) allocateGapPermitting(ctx context.Context, key CounterKey) (int64, error) {
	return s.counters.Advance(ctx, key)
}

// allocateGapFree reads and bumps the stored next number under a row lock.
// The lock is released when the enclosing transaction ends, so concurrent
// callers serialize and a rollback restores the number.
func (s *Service) allocateGapFree(ctx context.Context, seq *Sequence, key CounterKey) (int64, error) {
	n, err := s.repo.LockNumberNext(ctx, key, s.lockMode)
	if err != nil {
		return 0, err
	}
	if err := s.repo.IncrementNumberNext(ctx, key, seq.NumberIncrement); err != nil {
		return 0, err
	}
	return n, nil
}
