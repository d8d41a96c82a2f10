package sequence

import (
	"context"
	"time"

	"docseq/internal/core/id"
	"docseq/internal/core/numerator"
)

// LockMode controls how the gap-free strategy waits for a row lock.
type LockMode int

const (
	// LockWait blocks until the holder's transaction ends.
	LockWait LockMode = iota
	// LockNoWait fails immediately with a LOCK_CONFLICT error.
	LockNoWait
)

// Repository stores sequence and date range configuration rows.
// All methods participate in the transaction carried by ctx.
type Repository interface {
	Create(ctx context.Context, seq *Sequence) error
	// Update writes all mutable fields and bumps Version; it fails with a
	// concurrent modification error when Version does not match.
	Update(ctx context.Context, seq *Sequence) error
	// Delete removes the sequence and cascades to its date ranges.
	Delete(ctx context.Context, sequenceID id.ID) error
	GetByID(ctx context.Context, sequenceID id.ID) (*Sequence, error)
	List(ctx context.Context) ([]*Sequence, error)

	// FindByCode returns active sequences with the code whose organization is
	// one of orgIDs or nil, ordered by name then ID.
	FindByCode(ctx context.Context, code string, orgIDs []id.ID) ([]*Sequence, error)

	// LockSequence takes an exclusive lock on the sequence row, held until
	// the end of the transaction.
	LockSequence(ctx context.Context, sequenceID id.ID) error
	// LockSequenceShared reads the sequence under a shared lock, held until
	// the end of the transaction. Shared holders block neither each other
	// nor LockNumberNext, but LockSequence waits for all of them.
	LockSequenceShared(ctx context.Context, sequenceID id.ID) (*Sequence, error)

	CreateDateRange(ctx context.Context, dr *DateRange) error
	UpdateDateRange(ctx context.Context, dr *DateRange) error
	DeleteDateRange(ctx context.Context, dateRangeID id.ID) error
	GetDateRange(ctx context.Context, dateRangeID id.ID) (*DateRange, error)
	// ListDateRanges returns the ranges of a sequence ordered by DateFrom.
	ListDateRanges(ctx context.Context, sequenceID id.ID) ([]*DateRange, error)
	// FindDateRange returns the range covering day, or nil when none does.
	FindDateRange(ctx context.Context, sequenceID id.ID, day time.Time) (*DateRange, error)

	// LockNumberNext locks the row addressed by key and returns its stored
	// next number. The lock is released when the transaction ends.
	LockNumberNext(ctx context.Context, key CounterKey, mode LockMode) (int64, error)
	// IncrementNumberNext adds step to the stored next number of key.
	IncrementNumberNext(ctx context.Context, key CounterKey, step int64) error
}

// CounterChange describes an Alter call; nil fields are left unchanged.
type CounterChange struct {
	Increment *int64
	Restart   *int64
}

// CounterStore manages atomic backing counters for Standard sequences.
type CounterStore interface {
	// Create makes a counter whose first Advance returns start.
	Create(ctx context.Context, key CounterKey, increment, start int64) error
	// Drop removes counters; missing counters are ignored.
	Drop(ctx context.Context, keys ...CounterKey) error
	// Alter changes step and/or restart value; missing counters are ignored.
	Alter(ctx context.Context, key CounterKey, change CounterChange) error
	// Advance atomically returns the next value.
	Advance(ctx context.Context, key CounterKey) (int64, error)
	// PeekNext returns what Advance would return, without advancing.
	PeekNext(ctx context.Context, key CounterKey) (int64, error)
}

// Directory answers organization questions for code resolution.
type Directory interface {
	// VisibleOrganizations returns the organizations the caller can see.
	VisibleOrganizations(ctx context.Context) ([]id.ID, error)
}

// AccessChecker authorizes reading (and thus drawing from) a sequence.
type AccessChecker interface {
	CheckRead(ctx context.Context, seq *Sequence) error
}

// AuditLogger records configuration changes.
type AuditLogger interface {
	LogChange(ctx context.Context, entityType string, entityID id.ID, action string, changes map[string]any) error
}

// Metrics receives allocation observations.
type Metrics interface {
	ObserveAllocation(strategy numerator.Strategy, elapsed time.Duration, err error)
	DateRangeCreated(strategy numerator.Strategy)
}

type noopMetrics struct{}

func (noopMetrics) ObserveAllocation(numerator.Strategy, time.Duration, error) {}
func (noopMetrics) DateRangeCreated(numerator.Strategy)                        {}
