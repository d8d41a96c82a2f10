package sequence_repo

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/jackc/pgx/v5"

	"docseq/internal/core/apperror"
	"docseq/internal/domain/sequence"
	"docseq/internal/infrastructure/storage/postgres"
)

// CounterStore backs Standard sequences with native PostgreSQL sequences.
// DDL runs in the caller's transaction; nextval never rolls back.
type CounterStore struct {
	txManager *postgres.TxManager
}

// Ensure compile-time interface compliance.
var _ sequence.CounterStore = (*CounterStore)(nil)

// NewCounterStore creates a new counter store.
func NewCounterStore(txManager *postgres.TxManager) *CounterStore {
	return &CounterStore{txManager: txManager}
}

// CounterName returns the name of the database sequence behind key.
// Range IDs are globally unique, so range counters do not repeat the
// sequence ID and stay under the 63 byte identifier limit.
func CounterName(key sequence.CounterKey) string {
	if key.IsDateRange() {
		return "seq_dr_" + hexID(key.DateRangeID.String())
	}
	return "seq_" + hexID(key.SequenceID.String())
}

func hexID(s string) string {
	return strings.ReplaceAll(s, "-", "")
}

func quoted(key sequence.CounterKey) string {
	return pgx.Identifier{CounterName(key)}.Sanitize()
}

func createCounterSQL(key sequence.CounterKey, increment, start int64) string {
	return fmt.Sprintf("CREATE SEQUENCE %s INCREMENT BY %d MINVALUE %d MAXVALUE %d START WITH %d",
		quoted(key), increment, int64(math.MinInt64), int64(math.MaxInt64), start)
}

func dropCountersSQL(keys []sequence.CounterKey) string {
	names := make([]string, len(keys))
	for i, key := range keys {
		names[i] = quoted(key)
	}
	return fmt.Sprintf("DROP SEQUENCE IF EXISTS %s RESTRICT", strings.Join(names, ", "))
}

func alterCounterSQL(key sequence.CounterKey, change sequence.CounterChange) string {
	var b strings.Builder
	b.WriteString("ALTER SEQUENCE ")
	b.WriteString(quoted(key))
	if change.Increment != nil {
		fmt.Fprintf(&b, " INCREMENT BY %d", *change.Increment)
	}
	if change.Restart != nil {
		fmt.Fprintf(&b, " RESTART WITH %d", *change.Restart)
	}
	return b.String()
}

func peekCounterSQL(key sequence.CounterKey) string {
	return fmt.Sprintf(`SELECT last_value, is_called,
		(SELECT increment_by FROM pg_sequences WHERE schemaname = current_schema() AND sequencename = $1)
		FROM %s`, quoted(key))
}

// Create makes a counter whose first Advance returns start.
func (s *CounterStore) Create(ctx context.Context, key sequence.CounterKey, increment, start int64) error {
	if increment == 0 {
		return apperror.NewInvalidStep()
	}
	if _, err := s.txManager.GetQuerier(ctx).Exec(ctx, createCounterSQL(key, increment, start)); err != nil {
		return postgres.MapError(fmt.Errorf("create counter %s: %w", CounterName(key), err), "counter", key.String())
	}
	return nil
}

// Drop removes counters; missing ones are ignored.
func (s *CounterStore) Drop(ctx context.Context, keys ...sequence.CounterKey) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := s.txManager.GetQuerier(ctx).Exec(ctx, dropCountersSQL(keys)); err != nil {
		return fmt.Errorf("drop counters: %w", err)
	}
	return nil
}

// Alter changes step and/or restart value of an existing counter.
func (s *CounterStore) Alter(ctx context.Context, key sequence.CounterKey, change sequence.CounterChange) error {
	if change.Increment == nil && change.Restart == nil {
		return nil
	}
	if change.Increment != nil && *change.Increment == 0 {
		return apperror.NewInvalidStep()
	}

	q := s.txManager.GetQuerier(ctx)
	var exists bool
	err := q.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_class WHERE relkind = 'S' AND relname = $1 AND relnamespace = current_schema()::regnamespace)",
		CounterName(key)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check counter %s: %w", CounterName(key), err)
	}
	if !exists {
		return nil
	}

	if _, err := q.Exec(ctx, alterCounterSQL(key, change)); err != nil {
		return fmt.Errorf("alter counter %s: %w", CounterName(key), err)
	}
	return nil
}

// Advance returns nextval of the counter.
func (s *CounterStore) Advance(ctx context.Context, key sequence.CounterKey) (int64, error) {
	var n int64
	err := s.txManager.GetQuerier(ctx).QueryRow(ctx, "SELECT nextval($1::text::regclass)", CounterName(key)).Scan(&n)
	if err != nil {
		return 0, postgres.MapError(fmt.Errorf("advance counter %s: %w", CounterName(key), err), "counter", key.String())
	}
	return n, nil
}

// PeekNext predicts what Advance would return without consuming it.
func (s *CounterStore) PeekNext(ctx context.Context, key sequence.CounterKey) (int64, error) {
	var (
		lastValue int64
		isCalled  bool
		increment int64
	)
	err := s.txManager.GetQuerier(ctx).QueryRow(ctx, peekCounterSQL(key), CounterName(key)).
		Scan(&lastValue, &isCalled, &increment)
	if err != nil {
		return 0, postgres.MapError(fmt.Errorf("peek counter %s: %w", CounterName(key), err), "counter", key.String())
	}
	return predictNext(lastValue, isCalled, increment), nil
}

// predictNext mirrors nextval: a fresh counter returns last_value itself.
func predictNext(lastValue int64, isCalled bool, increment int64) int64 {
	if !isCalled {
		return lastValue
	}
	return lastValue + increment
}
