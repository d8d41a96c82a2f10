package memory

import (
	"context"

	"docseq/internal/core/apperror"
	"docseq/internal/domain/sequence"
)

// CounterStore is the Store viewed as a sequence.CounterStore.
// Create, Drop and Alter are transactional; Advance is not.
type CounterStore Store

func (c *CounterStore) store() *Store { return (*Store)(c) }

func (c *CounterStore) Create(ctx context.Context, key sequence.CounterKey, increment, start int64) error {
	if increment == 0 {
		return apperror.NewInvalidStep()
	}
	s := c.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.counters[key]; ok {
		return apperror.NewConflict("counter already exists").WithDetail("key", key.String())
	}
	s.counters[key] = &counter{next: start, increment: increment}
	s.record(ctx, func() { delete(s.counters, key) })
	return nil
}

func (c *CounterStore) Drop(ctx context.Context, keys ...sequence.CounterKey) error {
	s := c.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		old, ok := s.counters[key]
		if !ok {
			continue
		}
		delete(s.counters, key)
		s.record(ctx, func() { s.counters[key] = old })
	}
	return nil
}

func (c *CounterStore) Alter(ctx context.Context, key sequence.CounterKey, change sequence.CounterChange) error {
	if change.Increment != nil && *change.Increment == 0 {
		return apperror.NewInvalidStep()
	}
	s := c.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	cnt, ok := s.counters[key]
	if !ok {
		return nil
	}
	prevIncrement, prevNext := cnt.increment, cnt.next
	if change.Increment != nil {
		cnt.increment = *change.Increment
	}
	if change.Restart != nil {
		cnt.next = *change.Restart
	}
	s.record(ctx, func() {
		cnt.increment = prevIncrement
		if change.Restart != nil {
			cnt.next = prevNext
		}
	})
	return nil
}

func (c *CounterStore) Advance(ctx context.Context, key sequence.CounterKey) (int64, error) {
	s := c.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	cnt, ok := s.counters[key]
	if !ok {
		return 0, apperror.NewNotFound("counter", key.String())
	}
	v := cnt.next
	cnt.next += cnt.increment
	return v, nil
}

func (c *CounterStore) PeekNext(ctx context.Context, key sequence.CounterKey) (int64, error) {
	s := c.store()
	s.mu.Lock()
	defer s.mu.Unlock()
	cnt, ok := s.counters[key]
	if !ok {
		return 0, apperror.NewNotFound("counter", key.String())
	}
	return cnt.next, nil
}
