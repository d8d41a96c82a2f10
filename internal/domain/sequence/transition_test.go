package sequence_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docseq/internal/core/id"
	"docseq/internal/core/numerator"
	"docseq/internal/domain/sequence"
	"docseq/internal/infrastructure/storage/memory"
)

// pausingStore stops the first call of method until resume is closed.
// method is set once the fixture data exists.
type pausingStore struct {
	*memory.Store
	method  string
	paused  atomic.Bool
	reached chan struct{}
	resume  chan struct{}
}

func newPausingStore(store *memory.Store) *pausingStore {
	return &pausingStore{
		Store:   store,
		reached: make(chan struct{}),
		resume:  make(chan struct{}),
	}
}

func (p *pausingStore) pause(method string) {
	if method != p.method || !p.paused.CompareAndSwap(false, true) {
		return
	}
	close(p.reached)
	<-p.resume
}

func (p *pausingStore) GetByID(ctx context.Context, sequenceID id.ID) (*sequence.Sequence, error) {
	seq, err := p.Store.GetByID(ctx, sequenceID)
	p.pause("GetByID")
	return seq, err
}

func (p *pausingStore) LockNumberNext(ctx context.Context, key sequence.CounterKey, mode sequence.LockMode) (int64, error) {
	p.pause("LockNumberNext")
	return p.Store.LockNumberNext(ctx, key, mode)
}

func finishes(t *testing.T, done <-chan error) bool {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
		return true
	case <-time.After(50 * time.Millisecond):
		return false
	}
}

func TestNext_SwitchToStandardAfterCandidateRead(t *testing.T) {
	var store *pausingStore
	f := newFixture(t, func(cfg *sequence.Config) {
		store = newPausingStore(cfg.Repo.(*memory.Store))
		cfg.Repo = store
	})
	seq := f.create(t, func(s *sequence.Sequence) {
		s.Implementation = numerator.StrategyNoGap
		s.NumberNext = 5
	})
	ctx := context.Background()
	store.method = "GetByID"

	var inFlight string
	allocDone := make(chan error, 1)
	go func() {
		var err error
		inFlight, err = f.svc.NextByID(ctx, seq.ID)
		allocDone <- err
	}()
	<-store.reached

	_, err := f.svc.Update(ctx, seq.ID, sequence.SequenceUpdate{Implementation: ptr(numerator.StrategyStandard)})
	require.NoError(t, err)

	close(store.resume)
	require.NoError(t, <-allocDone)

	after, err := f.svc.NextByID(ctx, seq.ID)
	require.NoError(t, err)
	assert.NotEqual(t, inFlight, after)
	assert.ElementsMatch(t, []string{"5", "6"}, []string{inFlight, after})
}

func TestNext_TransitionWaitsForInFlightAllocation(t *testing.T) {
	for _, tt := range []struct {
		name string
		from numerator.Strategy
		to   numerator.Strategy
	}{
		{"no_gap to standard", numerator.StrategyNoGap, numerator.StrategyStandard},
		{"standard to no_gap", numerator.StrategyStandard, numerator.StrategyNoGap},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var store *pausingStore
			f := newFixture(t, func(cfg *sequence.Config) {
				store = newPausingStore(cfg.Repo.(*memory.Store))
				cfg.Repo = store
			})
			seq := f.create(t, func(s *sequence.Sequence) {
				s.Implementation = tt.from
				s.NumberNext = 5
			})
			ctx := context.Background()
			// Gap-free allocations pause holding the shared lock, Standard
			// ones before taking it.
			if tt.from == numerator.StrategyNoGap {
				store.method = "LockNumberNext"
			} else {
				store.method = "GetByID"
			}

			var inFlight string
			allocDone := make(chan error, 1)
			go func() {
				var err error
				inFlight, err = f.svc.NextByID(ctx, seq.ID)
				allocDone <- err
			}()
			<-store.reached

			updateDone := make(chan error, 1)
			go func() {
				_, err := f.svc.Update(ctx, seq.ID, sequence.SequenceUpdate{Implementation: ptr(tt.to)})
				updateDone <- err
			}()

			if tt.from == numerator.StrategyNoGap {
				// The allocation holds the shared lock, so the switch waits.
				assert.False(t, finishes(t, updateDone), "switch must wait for the allocation")
				close(store.resume)
				require.NoError(t, <-allocDone)
				require.NoError(t, <-updateDone)
			} else {
				// Paused before the shared lock: the switch goes first.
				require.NoError(t, <-updateDone)
				close(store.resume)
				require.NoError(t, <-allocDone)
			}

			after, err := f.svc.NextByID(ctx, seq.ID)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"5", "6"}, []string{inFlight, after})
		})
	}
}

func TestNext_DateRangeModeChangedAfterCandidateRead(t *testing.T) {
	var store *pausingStore
	f := newFixture(t, func(cfg *sequence.Config) {
		store = newPausingStore(cfg.Repo.(*memory.Store))
		cfg.Repo = store
	})
	seq := f.create(t, func(s *sequence.Sequence) {
		s.Implementation = numerator.StrategyNoGap
		s.NumberNext = 5
	})
	ctx := context.Background()
	store.method = "GetByID"

	var number string
	allocDone := make(chan error, 1)
	go func() {
		var err error
		number, err = f.svc.NextByID(ctx, seq.ID)
		allocDone <- err
	}()
	<-store.reached

	_, err := f.svc.Update(ctx, seq.ID, sequence.SequenceUpdate{UseDateRange: ptr(true)})
	require.NoError(t, err)

	close(store.resume)
	require.NoError(t, <-allocDone)
	assert.Equal(t, "5", number)

	ranges, err := f.svc.ListDateRanges(ctx, seq.ID)
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, int64(6), ranges[0].NumberNext)
}
