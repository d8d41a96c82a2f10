// Package sequence_repo provides PostgreSQL implementations of the sequence
// store: configuration rows, gap-free counters and native backing sequences.
package sequence_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"docseq/internal/core/apperror"
	"docseq/internal/core/id"
	"docseq/internal/domain/sequence"
	"docseq/internal/infrastructure/storage/postgres"
)

const (
	sequenceTable  = "sequences"
	dateRangeTable = "sequence_date_ranges"
)

// SequenceRepo implements sequence.Repository.
type SequenceRepo struct {
	txManager *postgres.TxManager
	seqCols   []string
	rangeCols []string
}

// Ensure compile-time interface compliance.
var _ sequence.Repository = (*SequenceRepo)(nil)

// NewSequenceRepo creates a new sequence repository.
func NewSequenceRepo(txManager *postgres.TxManager) *SequenceRepo {
	return &SequenceRepo{
		txManager: txManager,
		seqCols:   postgres.ExtractDBColumns[sequence.Sequence](),
		rangeCols: postgres.ExtractDBColumns[sequence.DateRange](),
	}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *SequenceRepo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *SequenceRepo) exec(ctx context.Context, q squirrel.Sqlizer, entity string, entityID any) (int64, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s statement: %w", entity, err)
	}
	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, postgres.MapError(fmt.Errorf("exec %s: %w", entity, err), entity, entityID)
	}
	return result.RowsAffected(), nil
}

func (r *SequenceRepo) get(ctx context.Context, dst any, q squirrel.SelectBuilder) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), dst, sql, args...)
}

func (r *SequenceRepo) selectAll(ctx context.Context, dst any, q squirrel.SelectBuilder) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), dst, sql, args...)
}

// --- Sequences ---

// Create inserts a new sequence using its "db" tags.
func (r *SequenceRepo) Create(ctx context.Context, seq *sequence.Sequence) error {
	q := r.Builder().
		Insert(sequenceTable).
		SetMap(postgres.StructToMap(seq))
	_, err := r.exec(ctx, q, sequence.EntitySequence, seq.ID)
	return err
}

// Update modifies a sequence with optimistic locking.
func (r *SequenceRepo) Update(ctx context.Context, seq *sequence.Sequence) error {
	affected, err := r.exec(ctx, r.updateQuery(seq), sequence.EntitySequence, seq.ID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperror.NewConcurrentModification(sequence.EntitySequence, seq.ID)
	}
	seq.Version++
	return nil
}

func (r *SequenceRepo) updateQuery(seq *sequence.Sequence) squirrel.UpdateBuilder {
	data := postgres.StructToMap(seq)
	for _, immutable := range []string{"id", "version", "created_at"} {
		delete(data, immutable)
	}
	return r.Builder().
		Update(sequenceTable).
		SetMap(data).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": seq.ID}).
		Where(squirrel.Eq{"version": seq.Version}) // optimistic lock: expect current version
}

// Delete removes a sequence; date ranges go with it (ON DELETE CASCADE).
func (r *SequenceRepo) Delete(ctx context.Context, sequenceID id.ID) error {
	q := r.Builder().
		Delete(sequenceTable).
		Where(squirrel.Eq{"id": sequenceID})
	affected, err := r.exec(ctx, q, sequence.EntitySequence, sequenceID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperror.NewNotFound(sequence.EntitySequence, sequenceID)
	}
	return nil
}

// GetByID retrieves a sequence by ID.
func (r *SequenceRepo) GetByID(ctx context.Context, sequenceID id.ID) (*sequence.Sequence, error) {
	seq := &sequence.Sequence{}
	q := r.Builder().
		Select(r.seqCols...).
		From(sequenceTable).
		Where(squirrel.Eq{"id": sequenceID}).
		Limit(1)

	if err := r.get(ctx, seq, q); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(sequence.EntitySequence, sequenceID)
		}
		return nil, fmt.Errorf("get sequence: %w", err)
	}
	return seq, nil
}

// List returns all sequences ordered by name.
func (r *SequenceRepo) List(ctx context.Context) ([]*sequence.Sequence, error) {
	var seqs []*sequence.Sequence
	q := r.Builder().
		Select(r.seqCols...).
		From(sequenceTable).
		OrderBy("name", "id")
	if err := r.selectAll(ctx, &seqs, q); err != nil {
		return nil, fmt.Errorf("list sequences: %w", err)
	}
	return seqs, nil
}

// FindByCode implements sequence.Repository.
func (r *SequenceRepo) FindByCode(ctx context.Context, code string, orgIDs []id.ID) ([]*sequence.Sequence, error) {
	var seqs []*sequence.Sequence
	if err := r.selectAll(ctx, &seqs, r.findByCodeQuery(code, orgIDs)); err != nil {
		return nil, fmt.Errorf("find sequences by code: %w", err)
	}
	return seqs, nil
}

func (r *SequenceRepo) findByCodeQuery(code string, orgIDs []id.ID) squirrel.SelectBuilder {
	return r.Builder().
		Select(r.seqCols...).
		From(sequenceTable).
		Where(squirrel.Eq{"code": code}).
		Where(squirrel.Eq{"active": true}).
		Where(squirrel.Or{
			squirrel.Eq{"organization_id": nil},
			squirrel.Eq{"organization_id": orgIDs},
		}).
		OrderBy("name", "id")
}

// LockSequence takes a row lock on the sequence until the transaction ends.
func (r *SequenceRepo) LockSequence(ctx context.Context, sequenceID id.ID) error {
	q := r.Builder().
		Select("id").
		From(sequenceTable).
		Where(squirrel.Eq{"id": sequenceID}).
		Suffix("FOR UPDATE")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build lock: %w", err)
	}
	var locked id.ID
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NewNotFound(sequence.EntitySequence, sequenceID)
		}
		return postgres.MapError(fmt.Errorf("lock sequence: %w", err), sequence.EntitySequence, sequenceID)
	}
	return nil
}

// LockSequenceShared reads the sequence under FOR KEY SHARE. It conflicts
// with the FOR UPDATE of LockSequence but not with the FOR NO KEY UPDATE
// taken by LockNumberNext, so allocators on one row do not deadlock.
func (r *SequenceRepo) LockSequenceShared(ctx context.Context, sequenceID id.ID) (*sequence.Sequence, error) {
	seq := &sequence.Sequence{}
	if err := r.get(ctx, seq, r.lockSharedQuery(sequenceID)); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(sequence.EntitySequence, sequenceID)
		}
		return nil, postgres.MapError(fmt.Errorf("lock sequence shared: %w", err), sequence.EntitySequence, sequenceID)
	}
	return seq, nil
}

func (r *SequenceRepo) lockSharedQuery(sequenceID id.ID) squirrel.SelectBuilder {
	return r.Builder().
		Select(r.seqCols...).
		From(sequenceTable).
		Where(squirrel.Eq{"id": sequenceID}).
		Suffix("FOR KEY SHARE")
}

// --- Date ranges ---

// CreateDateRange inserts a range. Overlaps are rejected by the exclusion
// constraint of the table.
func (r *SequenceRepo) CreateDateRange(ctx context.Context, dr *sequence.DateRange) error {
	q := r.Builder().
		Insert(dateRangeTable).
		SetMap(postgres.StructToMap(dr))
	_, err := r.exec(ctx, q, sequence.EntityDateRange, dr.ID)
	return err
}

// UpdateDateRange writes bounds and next number of a range.
func (r *SequenceRepo) UpdateDateRange(ctx context.Context, dr *sequence.DateRange) error {
	q := r.Builder().
		Update(dateRangeTable).
		Set("date_from", dr.DateFrom).
		Set("date_to", dr.DateTo).
		Set("number_next", dr.NumberNext).
		Where(squirrel.Eq{"id": dr.ID})
	affected, err := r.exec(ctx, q, sequence.EntityDateRange, dr.ID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperror.NewNotFound(sequence.EntityDateRange, dr.ID)
	}
	return nil
}

// DeleteDateRange removes a range.
func (r *SequenceRepo) DeleteDateRange(ctx context.Context, dateRangeID id.ID) error {
	q := r.Builder().
		Delete(dateRangeTable).
		Where(squirrel.Eq{"id": dateRangeID})
	affected, err := r.exec(ctx, q, sequence.EntityDateRange, dateRangeID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperror.NewNotFound(sequence.EntityDateRange, dateRangeID)
	}
	return nil
}

// GetDateRange retrieves a range by ID.
func (r *SequenceRepo) GetDateRange(ctx context.Context, dateRangeID id.ID) (*sequence.DateRange, error) {
	dr := &sequence.DateRange{}
	q := r.Builder().
		Select(r.rangeCols...).
		From(dateRangeTable).
		Where(squirrel.Eq{"id": dateRangeID}).
		Limit(1)

	if err := r.get(ctx, dr, q); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(sequence.EntityDateRange, dateRangeID)
		}
		return nil, fmt.Errorf("get date range: %w", err)
	}
	return dr, nil
}

// ListDateRanges returns the ranges of a sequence ordered by start date.
func (r *SequenceRepo) ListDateRanges(ctx context.Context, sequenceID id.ID) ([]*sequence.DateRange, error) {
	var ranges []*sequence.DateRange
	q := r.Builder().
		Select(r.rangeCols...).
		From(dateRangeTable).
		Where(squirrel.Eq{"sequence_id": sequenceID}).
		OrderBy("date_from")
	if err := r.selectAll(ctx, &ranges, q); err != nil {
		return nil, fmt.Errorf("list date ranges: %w", err)
	}
	return ranges, nil
}

// FindDateRange returns the range covering day, or nil.
func (r *SequenceRepo) FindDateRange(ctx context.Context, sequenceID id.ID, day time.Time) (*sequence.DateRange, error) {
	dr := &sequence.DateRange{}
	if err := r.get(ctx, dr, r.findDateRangeQuery(sequenceID, day)); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find date range: %w", err)
	}
	return dr, nil
}

func (r *SequenceRepo) findDateRangeQuery(sequenceID id.ID, day time.Time) squirrel.SelectBuilder {
	day = sequence.Day(day)
	return r.Builder().
		Select(r.rangeCols...).
		From(dateRangeTable).
		Where(squirrel.Eq{"sequence_id": sequenceID}).
		Where(squirrel.LtOrEq{"date_from": day}).
		Where(squirrel.GtOrEq{"date_to": day}).
		OrderBy("date_from DESC").
		Limit(1)
}

// --- Gap-free counters ---

// LockNumberNext reads number_next under a row lock held until the
// transaction ends. With LockNoWait a held lock fails with LOCK_CONFLICT.
func (r *SequenceRepo) LockNumberNext(ctx context.Context, key sequence.CounterKey, mode sequence.LockMode) (int64, error) {
	entity, rowID := rowOf(key)
	sql, args, err := r.lockNumberNextQuery(key, mode).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build lock: %w", err)
	}

	var n int64
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperror.NewNotFound(entity, rowID)
		}
		return 0, postgres.MapError(fmt.Errorf("lock number_next: %w", err), entity, rowID)
	}
	return n, nil
}

func (r *SequenceRepo) lockNumberNextQuery(key sequence.CounterKey, mode sequence.LockMode) squirrel.SelectBuilder {
	// NO KEY UPDATE lets allocators holding FOR KEY SHARE on the parent
	// row take it.
	lock := "FOR NO KEY UPDATE"
	if mode == sequence.LockNoWait {
		lock = "FOR NO KEY UPDATE NOWAIT"
	}
	_, rowID := rowOf(key)
	return r.Builder().
		Select("number_next").
		From(tableOf(key)).
		Where(squirrel.Eq{"id": rowID}).
		Suffix(lock)
}

// IncrementNumberNext adds step to number_next.
func (r *SequenceRepo) IncrementNumberNext(ctx context.Context, key sequence.CounterKey, step int64) error {
	entity, rowID := rowOf(key)
	affected, err := r.exec(ctx, r.incrementQuery(key, step), entity, rowID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperror.NewNotFound(entity, rowID)
	}
	return nil
}

func (r *SequenceRepo) incrementQuery(key sequence.CounterKey, step int64) squirrel.UpdateBuilder {
	_, rowID := rowOf(key)
	return r.Builder().
		Update(tableOf(key)).
		Set("number_next", squirrel.Expr("number_next + ?", step)).
		Where(squirrel.Eq{"id": rowID})
}

func tableOf(key sequence.CounterKey) string {
	if key.IsDateRange() {
		return dateRangeTable
	}
	return sequenceTable
}

func rowOf(key sequence.CounterKey) (string, id.ID) {
	if key.IsDateRange() {
		return sequence.EntityDateRange, key.DateRangeID
	}
	return sequence.EntitySequence, key.SequenceID
}
