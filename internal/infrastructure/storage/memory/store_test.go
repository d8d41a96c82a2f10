package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docseq/internal/core/apperror"
	appctx "docseq/internal/core/context"
	"docseq/internal/core/id"
	"docseq/internal/core/numerator"
	"docseq/internal/domain/sequence"
)

func newSeq(t *testing.T, s *Store) *sequence.Sequence {
	t.Helper()
	seq := sequence.NewSequence("Bills", "BILL")
	seq.Implementation = numerator.StrategyNoGap
	require.NoError(t, s.Create(context.Background(), seq))
	return seq
}

func TestTxManager_RollbackUndoesRowChanges(t *testing.T) {
	s := NewStore()
	seq := newSeq(t, s)
	ctx := context.Background()

	err := s.TxManager().RunInTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, s.IncrementNumberNext(ctx, sequence.SequenceKey(seq.ID), 5))
		require.NoError(t, s.CreateDateRange(ctx, &sequence.DateRange{
			ID:         id.New(),
			SequenceID: seq.ID,
			DateFrom:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			DateTo:     time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
			NumberNext: 1,
		}))
		return errors.New("abort")
	})
	require.Error(t, err)

	stored, err := s.GetByID(ctx, seq.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.NumberNext)

	ranges, err := s.ListDateRanges(ctx, seq.ID)
	require.NoError(t, err)
	assert.Empty(t, ranges)
}

func TestTxManager_PanicRollsBackAndReleasesLocks(t *testing.T) {
	s := NewStore()
	seq := newSeq(t, s)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = s.TxManager().RunInTransaction(ctx, func(ctx context.Context) error {
			_, err := s.LockNumberNext(ctx, sequence.SequenceKey(seq.ID), sequence.LockWait)
			require.NoError(t, err)
			require.NoError(t, s.IncrementNumberNext(ctx, sequence.SequenceKey(seq.ID), 1))
			panic("boom")
		})
	})

	err := s.TxManager().RunInTransaction(ctx, func(ctx context.Context) error {
		n, err := s.LockNumberNext(ctx, sequence.SequenceKey(seq.ID), sequence.LockNoWait)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(1), n)
		return nil
	})
	require.NoError(t, err)
}

func TestLockNumberNext_RequiresTransaction(t *testing.T) {
	s := NewStore()
	seq := newSeq(t, s)

	_, err := s.LockNumberNext(context.Background(), sequence.SequenceKey(seq.ID), sequence.LockWait)
	assert.ErrorIs(t, err, ErrNoTransaction)
}

func TestLockNumberNext_NoWaitConflict(t *testing.T) {
	s := NewStore()
	seq := newSeq(t, s)
	key := sequence.SequenceKey(seq.ID)
	ctx := context.Background()

	err := s.TxManager().RunInTransaction(ctx, func(ctx context.Context) error {
		_, err := s.LockNumberNext(ctx, key, sequence.LockWait)
		require.NoError(t, err)

		// Re-entrant within the same transaction.
		_, err = s.LockNumberNext(ctx, key, sequence.LockNoWait)
		require.NoError(t, err)

		return s.TxManager().RunInTransaction(context.Background(), func(other context.Context) error {
			_, err := s.LockNumberNext(other, key, sequence.LockNoWait)
			assert.True(t, apperror.HasCode(err, apperror.CodeLockConflict))
			return nil
		})
	})
	require.NoError(t, err)
}

func TestLockNumberNext_WaitHonoursContext(t *testing.T) {
	s := NewStore()
	seq := newSeq(t, s)
	key := sequence.SequenceKey(seq.ID)

	err := s.TxManager().RunInTransaction(context.Background(), func(ctx context.Context) error {
		_, err := s.LockNumberNext(ctx, key, sequence.LockWait)
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		return s.TxManager().RunInTransaction(waitCtx, func(other context.Context) error {
			_, err := s.LockNumberNext(other, key, sequence.LockWait)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			return nil
		})
	})
	require.NoError(t, err)
}

func TestStore_UpdateChecksVersion(t *testing.T) {
	s := NewStore()
	seq := newSeq(t, s)
	ctx := context.Background()

	stale := *seq
	seq.Name = "Renamed"
	require.NoError(t, s.TxManager().RunInTransaction(ctx, func(ctx context.Context) error {
		return s.Update(ctx, seq)
	}))
	assert.Equal(t, 2, seq.Version)

	err := s.TxManager().RunInTransaction(ctx, func(ctx context.Context) error {
		return s.Update(ctx, &stale)
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeConcurrentModification))
}

func TestStore_WritesRequireTransaction(t *testing.T) {
	s := NewStore()
	seq := newSeq(t, s)
	ctx := context.Background()

	assert.ErrorIs(t, s.Update(ctx, seq), ErrNoTransaction)
	assert.ErrorIs(t, s.IncrementNumberNext(ctx, sequence.SequenceKey(seq.ID), 1), ErrNoTransaction)
	assert.ErrorIs(t, s.Delete(ctx, seq.ID), ErrNoTransaction)
}

func TestUpdateDateRange_WaitsForRowLock(t *testing.T) {
	s := NewStore()
	seq := newSeq(t, s)
	ctx := context.Background()

	dr := &sequence.DateRange{
		ID:         id.New(),
		SequenceID: seq.ID,
		DateFrom:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		DateTo:     time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		NumberNext: 1,
	}
	require.NoError(t, s.CreateDateRange(ctx, dr))
	key := sequence.DateRangeKey(seq.ID, dr.ID)

	allocated := make(chan struct{})
	abort := make(chan struct{})
	allocDone := make(chan error, 1)
	go func() {
		allocDone <- s.TxManager().RunInTransaction(ctx, func(ctx context.Context) error {
			if _, err := s.LockNumberNext(ctx, key, sequence.LockWait); err != nil {
				return err
			}
			if err := s.IncrementNumberNext(ctx, key, 1); err != nil {
				return err
			}
			close(allocated)
			<-abort
			return errors.New("abort")
		})
	}()
	<-allocated

	edit := *dr
	edit.DateTo = time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	editDone := make(chan error, 1)
	go func() {
		editDone <- s.TxManager().RunInTransaction(ctx, func(ctx context.Context) error {
			return s.UpdateDateRange(ctx, &edit)
		})
	}()

	select {
	case err := <-editDone:
		t.Fatalf("update finished while the row was locked: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(abort)
	require.Error(t, <-allocDone)
	require.NoError(t, <-editDone)

	stored, err := s.GetDateRange(ctx, dr.ID)
	require.NoError(t, err)
	assert.Equal(t, edit.DateTo, stored.DateTo)
	assert.Equal(t, int64(1), stored.NumberNext)
}

func TestLockSequenceShared(t *testing.T) {
	s := NewStore()
	seq := newSeq(t, s)
	ctx := context.Background()

	err := s.TxManager().RunInTransaction(ctx, func(ctx context.Context) error {
		got, err := s.LockSequenceShared(ctx, seq.ID)
		require.NoError(t, err)
		assert.Equal(t, seq.Code, got.Code)

		// Shared holders block neither each other nor row writes.
		require.NoError(t, s.TxManager().RunInTransaction(context.Background(), func(other context.Context) error {
			if _, err := s.LockSequenceShared(other, seq.ID); err != nil {
				return err
			}
			_, err := s.LockNumberNext(other, sequence.SequenceKey(seq.ID), sequence.LockNoWait)
			return err
		}))

		// An exclusive lock waits for the shared holder.
		waitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err = s.TxManager().RunInTransaction(waitCtx, func(other context.Context) error {
			return s.LockSequence(other, seq.ID)
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		// The sole holder may upgrade.
		return s.LockSequence(ctx, seq.ID)
	})
	require.NoError(t, err)

	err = s.TxManager().RunInTransaction(ctx, func(ctx context.Context) error {
		_, err := s.LockNumberNext(ctx, sequence.SequenceKey(seq.ID), sequence.LockNoWait)
		return err
	})
	require.NoError(t, err, "locks are released at the end of the transaction")
}

func TestStore_FindByCode(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	orgA, orgB := id.New(), id.New()

	mk := func(name string, org *id.ID, active bool) {
		seq := sequence.NewSequence(name, "SO")
		seq.OrganizationID = org
		seq.Active = active
		require.NoError(t, s.Create(ctx, seq))
	}
	mk("b global", nil, true)
	mk("a org A", &orgA, true)
	mk("c org B", &orgB, true)
	mk("d inactive", nil, false)

	got, err := s.FindByCode(ctx, "SO", []id.ID{orgA})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a org A", got[0].Name)
	assert.Equal(t, "b global", got[1].Name)
}

func TestStore_VisibleOrganizations(t *testing.T) {
	s := NewStore()
	orgA, orgB := id.New(), id.New()
	s.AddOrganization(orgA, "A")
	s.AddOrganization(orgB, "B")

	all, err := s.VisibleOrganizations(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u", OrgIDs: []string{orgB.String()}})
	visible, err := s.VisibleOrganizations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []id.ID{orgB}, visible)

	admin := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "root", IsAdmin: true})
	all, err = s.VisibleOrganizations(admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCounterStore(t *testing.T) {
	s := NewStore()
	c := s.Counters()
	ctx := context.Background()
	key := sequence.SequenceKey(id.New())

	require.NoError(t, c.Create(ctx, key, 2, 10))
	assert.True(t, apperror.HasCode(c.Create(ctx, key, 1, 1), apperror.CodeConflict))
	assert.True(t, apperror.HasCode(c.Create(ctx, sequence.SequenceKey(id.New()), 0, 1), apperror.CodeInvalidStep))

	peek, err := c.PeekNext(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(10), peek)

	v, err := c.Advance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)

	require.NoError(t, c.Alter(ctx, key, sequence.CounterChange{Increment: ptr(int64(5))}))
	v, err = c.Advance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(12), v)

	require.NoError(t, c.Alter(ctx, key, sequence.CounterChange{Restart: ptr(int64(1))}))
	v, err = c.Advance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	missing := sequence.SequenceKey(id.New())
	require.NoError(t, c.Alter(ctx, missing, sequence.CounterChange{Restart: ptr(int64(1))}))
	require.NoError(t, c.Drop(ctx, key, missing))
	_, err = c.Advance(ctx, key)
	assert.True(t, apperror.IsNotFound(err))
}

func TestCounterStore_AdvanceSurvivesRollback(t *testing.T) {
	s := NewStore()
	c := s.Counters()
	key := sequence.SequenceKey(id.New())
	require.NoError(t, c.Create(context.Background(), key, 1, 1))

	_ = s.TxManager().RunInTransaction(context.Background(), func(ctx context.Context) error {
		_, err := c.Advance(ctx, key)
		require.NoError(t, err)
		return errors.New("abort")
	})

	v, err := c.PeekNext(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func ptr[T any](v T) *T { return &v }
