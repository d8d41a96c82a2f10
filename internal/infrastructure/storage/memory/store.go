package memory

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"docseq/internal/core/apperror"
	appctx "docseq/internal/core/context"
	"docseq/internal/core/id"
	"docseq/internal/domain/sequence"
)

// ErrNoTransaction is returned by row locks and by writes to existing rows
// outside a transaction.
var ErrNoTransaction = errors.New("memory: row lock requires a transaction")

type counter struct {
	next      int64
	increment int64
}

// Store keeps sequences, date ranges, organizations and counters in memory.
type Store struct {
	mu            sync.Mutex
	sequences     map[id.ID]*sequence.Sequence
	ranges        map[id.ID]*sequence.DateRange
	counters      map[sequence.CounterKey]*counter
	organizations map[id.ID]string
	locks         map[id.ID]*rowLock

	txm *TxManager
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{
		sequences:     make(map[id.ID]*sequence.Sequence),
		ranges:        make(map[id.ID]*sequence.DateRange),
		counters:      make(map[sequence.CounterKey]*counter),
		organizations: make(map[id.ID]string),
		locks:         make(map[id.ID]*rowLock),
	}
	s.txm = &TxManager{store: s}
	return s
}

// TxManager returns the transaction manager bound to the store.
func (s *Store) TxManager() *TxManager {
	return s.txm
}

// Counters returns the store as a sequence.CounterStore.
func (s *Store) Counters() *CounterStore {
	return (*CounterStore)(s)
}

// Ensure compile-time interface compliance.
var (
	_ sequence.Repository   = (*Store)(nil)
	_ sequence.Directory    = (*Store)(nil)
	_ sequence.CounterStore = (*CounterStore)(nil)
)

// --- Transactions ---

// record registers an undo action. Outside a transaction changes are final.
// Callers hold s.mu.
func (s *Store) record(ctx context.Context, undo func()) {
	if t := txFrom(ctx); t != nil {
		t.undo = append(t.undo, undo)
	}
}

func (s *Store) rollback(t *txn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// rowLock is a row lock with three modes. Shared holders only conflict
// with exclusive ones; writers conflict with each other. released is closed
// and replaced whenever holders leave.
type rowLock struct {
	shared    int
	writer    bool
	exclusive bool
	released  chan struct{}
}

// lockKind is a bit set of the modes a transaction holds on a row.
type lockKind int

const (
	lockShared lockKind = 1 << iota
	lockWrite
	lockExclusive
)

func (held lockKind) covers(kind lockKind) bool {
	switch {
	case held&(kind|lockExclusive) != 0:
		return true
	case kind == lockShared:
		return held&lockWrite != 0
	}
	return false
}

// lockRow takes a lock of the given kind on a row for the current
// transaction. Locks held by the same transaction never conflict.
func (s *Store) lockRow(ctx context.Context, entity string, rowID id.ID, kind lockKind, mode sequence.LockMode) error {
	t := txFrom(ctx)
	if t == nil {
		return ErrNoTransaction
	}

	for {
		s.mu.Lock()
		held := t.held[rowID]
		if held.covers(kind) {
			s.mu.Unlock()
			return nil
		}
		l, ok := s.locks[rowID]
		if !ok {
			l = &rowLock{released: make(chan struct{})}
			s.locks[rowID] = l
		}
		if l.acquire(kind, held) {
			t.held[rowID] = held | kind
			s.mu.Unlock()
			return nil
		}
		wait := l.released
		s.mu.Unlock()

		if mode == sequence.LockNoWait {
			return apperror.NewLockConflict(entity, rowID)
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// acquire grants kind unless another transaction holds a conflicting mode.
// held is what the caller already holds and does not hold kind.
func (l *rowLock) acquire(kind, held lockKind) bool {
	if l.exclusive {
		return false
	}
	switch kind {
	case lockShared:
		l.shared++
	case lockWrite:
		if l.writer {
			return false
		}
		l.writer = true
	case lockExclusive:
		others := l.shared
		if held&lockShared != 0 {
			others--
		}
		if others > 0 || (l.writer && held&lockWrite == 0) {
			return false
		}
		l.exclusive = true
	}
	return true
}

// release drops every lock held by t and wakes up waiters.
func (s *Store) release(t *txn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for rowID, held := range t.held {
		l := s.locks[rowID]
		if held&lockShared != 0 {
			l.shared--
		}
		if held&lockWrite != 0 {
			l.writer = false
		}
		if held&lockExclusive != 0 {
			l.exclusive = false
		}
		close(l.released)
		if l.shared == 0 && !l.writer && !l.exclusive {
			delete(s.locks, rowID)
		} else {
			l.released = make(chan struct{})
		}
	}
	t.held = nil
}

// lockKey takes the write lock of the row addressed by a counter key.
func (s *Store) lockKey(ctx context.Context, key sequence.CounterKey, mode sequence.LockMode) error {
	if key.IsDateRange() {
		return s.lockRow(ctx, sequence.EntityDateRange, key.DateRangeID, lockWrite, mode)
	}
	return s.lockRow(ctx, sequence.EntitySequence, key.SequenceID, lockWrite, mode)
}

// --- Organizations ---

// AddOrganization registers an organization.
func (s *Store) AddOrganization(orgID id.ID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.organizations[orgID] = name
}

// VisibleOrganizations returns every organization for admins and anonymous
// callers, otherwise the organizations listed in the user context.
func (s *Store) VisibleOrganizations(ctx context.Context) ([]id.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := appctx.GetUser(ctx)
	result := make([]id.ID, 0, len(s.organizations))
	for orgID := range s.organizations {
		if user == nil || appctx.HasOrgAccess(ctx, orgID.String()) {
			result = append(result, orgID)
		}
	}
	slices.SortFunc(result, compareIDs)
	return result, nil
}

// --- Sequences ---

func (s *Store) Create(ctx context.Context, seq *sequence.Sequence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sequences[seq.ID]; ok {
		return apperror.NewConflict("sequence already exists").WithDetail("id", seq.ID)
	}
	cp := *seq
	s.sequences[seq.ID] = &cp
	s.record(ctx, func() { delete(s.sequences, seq.ID) })
	return nil
}

func (s *Store) Update(ctx context.Context, seq *sequence.Sequence) error {
	if err := s.lockRow(ctx, sequence.EntitySequence, seq.ID, lockWrite, sequence.LockWait); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.sequences[seq.ID]
	if !ok {
		return apperror.NewNotFound(sequence.EntitySequence, seq.ID)
	}
	if old.Version != seq.Version {
		return apperror.NewConcurrentModification(sequence.EntitySequence, seq.ID)
	}
	seq.Version++
	cp := *seq
	s.sequences[seq.ID] = &cp
	s.record(ctx, func() { s.sequences[seq.ID] = old })
	return nil
}

func (s *Store) Delete(ctx context.Context, sequenceID id.ID) error {
	if err := s.lockRow(ctx, sequence.EntitySequence, sequenceID, lockExclusive, sequence.LockWait); err != nil {
		return err
	}
	ranges, err := s.ListDateRanges(ctx, sequenceID)
	if err != nil {
		return err
	}
	for _, r := range ranges {
		if err := s.lockRow(ctx, sequence.EntityDateRange, r.ID, lockExclusive, sequence.LockWait); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.sequences[sequenceID]
	if !ok {
		return apperror.NewNotFound(sequence.EntitySequence, sequenceID)
	}
	delete(s.sequences, sequenceID)
	s.record(ctx, func() { s.sequences[sequenceID] = old })
	for rangeID, r := range s.ranges {
		if r.SequenceID == sequenceID {
			delete(s.ranges, rangeID)
			s.record(ctx, func() { s.ranges[rangeID] = r })
		}
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, sequenceID id.ID) (*sequence.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.sequences[sequenceID]
	if !ok {
		return nil, apperror.NewNotFound(sequence.EntitySequence, sequenceID)
	}
	cp := *seq
	return &cp, nil
}

func (s *Store) List(ctx context.Context) ([]*sequence.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*sequence.Sequence, 0, len(s.sequences))
	for _, seq := range s.sequences {
		cp := *seq
		result = append(result, &cp)
	}
	slices.SortFunc(result, byNameThenID)
	return result, nil
}

func (s *Store) FindByCode(ctx context.Context, code string, orgIDs []id.ID) ([]*sequence.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*sequence.Sequence
	for _, seq := range s.sequences {
		if !seq.Active || seq.Code != code {
			continue
		}
		if seq.OrganizationID != nil && !slices.Contains(orgIDs, *seq.OrganizationID) {
			continue
		}
		cp := *seq
		result = append(result, &cp)
	}
	slices.SortFunc(result, byNameThenID)
	return result, nil
}

func (s *Store) LockSequence(ctx context.Context, sequenceID id.ID) error {
	if _, err := s.GetByID(ctx, sequenceID); err != nil {
		return err
	}
	return s.lockRow(ctx, sequence.EntitySequence, sequenceID, lockExclusive, sequence.LockWait)
}

func (s *Store) LockSequenceShared(ctx context.Context, sequenceID id.ID) (*sequence.Sequence, error) {
	if _, err := s.GetByID(ctx, sequenceID); err != nil {
		return nil, err
	}
	if err := s.lockRow(ctx, sequence.EntitySequence, sequenceID, lockShared, sequence.LockWait); err != nil {
		return nil, err
	}
	// The row may have been deleted while we waited.
	return s.GetByID(ctx, sequenceID)
}

// --- Date ranges ---

func (s *Store) CreateDateRange(ctx context.Context, dr *sequence.DateRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sequences[dr.SequenceID]; !ok {
		return apperror.NewNotFound(sequence.EntitySequence, dr.SequenceID)
	}
	if err := s.checkOverlap(dr); err != nil {
		return err
	}
	cp := *dr
	s.ranges[dr.ID] = &cp
	s.record(ctx, func() { delete(s.ranges, dr.ID) })
	return nil
}

func (s *Store) UpdateDateRange(ctx context.Context, dr *sequence.DateRange) error {
	if err := s.lockRow(ctx, sequence.EntityDateRange, dr.ID, lockWrite, sequence.LockWait); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.ranges[dr.ID]
	if !ok {
		return apperror.NewNotFound(sequence.EntityDateRange, dr.ID)
	}
	if err := s.checkOverlap(dr); err != nil {
		return err
	}
	cp := *dr
	s.ranges[dr.ID] = &cp
	s.record(ctx, func() { s.ranges[dr.ID] = old })
	return nil
}

// checkOverlap mirrors the exclusion constraint of the SQL schema.
func (s *Store) checkOverlap(dr *sequence.DateRange) error {
	for _, other := range s.ranges {
		if other.ID != dr.ID && other.SequenceID == dr.SequenceID && dr.Overlaps(other) {
			return apperror.NewConflict("date range overlaps an existing range")
		}
	}
	return nil
}

func (s *Store) DeleteDateRange(ctx context.Context, dateRangeID id.ID) error {
	if err := s.lockRow(ctx, sequence.EntityDateRange, dateRangeID, lockExclusive, sequence.LockWait); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.ranges[dateRangeID]
	if !ok {
		return apperror.NewNotFound(sequence.EntityDateRange, dateRangeID)
	}
	delete(s.ranges, dateRangeID)
	s.record(ctx, func() { s.ranges[dateRangeID] = old })
	return nil
}

func (s *Store) GetDateRange(ctx context.Context, dateRangeID id.ID) (*sequence.DateRange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.ranges[dateRangeID]
	if !ok {
		return nil, apperror.NewNotFound(sequence.EntityDateRange, dateRangeID)
	}
	cp := *r
	return &cp, nil
}

func (s *Store) ListDateRanges(ctx context.Context, sequenceID id.ID) ([]*sequence.DateRange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*sequence.DateRange
	for _, r := range s.ranges {
		if r.SequenceID == sequenceID {
			cp := *r
			result = append(result, &cp)
		}
	}
	slices.SortFunc(result, func(a, b *sequence.DateRange) int {
		return a.DateFrom.Compare(b.DateFrom)
	})
	return result, nil
}

func (s *Store) FindDateRange(ctx context.Context, sequenceID id.ID, day time.Time) (*sequence.DateRange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.ranges {
		if r.SequenceID == sequenceID && r.Contains(day) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

// --- Gap-free counters ---

func (s *Store) LockNumberNext(ctx context.Context, key sequence.CounterKey, mode sequence.LockMode) (int64, error) {
	if _, err := s.numberNext(key); err != nil {
		return 0, err
	}
	if err := s.lockKey(ctx, key, mode); err != nil {
		return 0, err
	}
	return s.numberNext(key)
}

func (s *Store) numberNext(key sequence.CounterKey) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key.IsDateRange() {
		r, ok := s.ranges[key.DateRangeID]
		if !ok {
			return 0, apperror.NewNotFound(sequence.EntityDateRange, key.DateRangeID)
		}
		return r.NumberNext, nil
	}
	seq, ok := s.sequences[key.SequenceID]
	if !ok {
		return 0, apperror.NewNotFound(sequence.EntitySequence, key.SequenceID)
	}
	return seq.NumberNext, nil
}

func (s *Store) IncrementNumberNext(ctx context.Context, key sequence.CounterKey, step int64) error {
	if err := s.lockKey(ctx, key, sequence.LockWait); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if key.IsDateRange() {
		old, ok := s.ranges[key.DateRangeID]
		if !ok {
			return apperror.NewNotFound(sequence.EntityDateRange, key.DateRangeID)
		}
		cp := *old
		cp.NumberNext += step
		s.ranges[key.DateRangeID] = &cp
		s.record(ctx, func() { s.ranges[key.DateRangeID] = old })
		return nil
	}
	old, ok := s.sequences[key.SequenceID]
	if !ok {
		return apperror.NewNotFound(sequence.EntitySequence, key.SequenceID)
	}
	cp := *old
	cp.NumberNext += step
	s.sequences[key.SequenceID] = &cp
	s.record(ctx, func() { s.sequences[key.SequenceID] = old })
	return nil
}

func byNameThenID(a, b *sequence.Sequence) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return compareIDs(a.ID, b.ID)
}

func compareIDs(a, b id.ID) int {
	return strings.Compare(a.String(), b.String())
}
