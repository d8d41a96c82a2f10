// Package sequence provides transaction-safe document number sequences:
// allocation strategies, date-range partitioning, configuration lifecycle
// and resolution by ID or code.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docseq/internal/core/apperror"
	"docseq/internal/core/id"
	"docseq/internal/core/numerator"
)

// Sequence is a named counter configuration.
type Sequence struct {
	ID   id.ID  `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`

	// Implementation selects the allocation strategy.
	Implementation numerator.Strategy `db:"implementation" json:"implementation"`

	// NumberNext is the next value for NoGap and the seed for Standard.
	NumberNext      int64 `db:"number_next" json:"numberNext"`
	NumberIncrement int64 `db:"number_increment" json:"numberIncrement"`

	Padding int    `db:"padding" json:"padding"`
	Prefix  string `db:"prefix" json:"prefix"`
	Suffix  string `db:"suffix" json:"suffix"`

	UseDateRange bool `db:"use_date_range" json:"useDateRange"`

	// OrganizationID is nil for sequences shared by all organizations.
	OrganizationID *id.ID `db:"organization_id" json:"organizationId,omitempty"`

	// Active sequences are the only ones found by code.
	Active bool `db:"active" json:"active"`

	// Version for optimistic locking (incremented on each update)
	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewSequence creates a Standard sequence with the usual defaults.
func NewSequence(name, code string) *Sequence {
	return &Sequence{
		ID:              id.New(),
		Code:            code,
		Name:            name,
		Implementation:  numerator.StrategyStandard,
		NumberNext:      1,
		NumberIncrement: 1,
		Active:          true,
		Version:         1,
	}
}

// Template returns the rendering template of the sequence.
func (s *Sequence) Template() numerator.Template {
	return numerator.Template{Prefix: s.Prefix, Suffix: s.Suffix, Padding: s.Padding}
}

// Validate checks configuration invariants without touching the store.
func (s *Sequence) Validate(ctx context.Context) error {
	if strings.TrimSpace(s.Name) == "" {
		return apperror.NewValidation("name is required").WithDetail("field", "name")
	}
	if s.NumberIncrement == 0 {
		return apperror.NewInvalidStep().WithDetail("sequence", s.Name)
	}
	if s.Padding < 0 {
		return apperror.NewValidation("padding must not be negative").
			WithDetail("field", "padding").
			WithDetail("value", s.Padding)
	}
	if !s.Implementation.Valid() {
		return apperror.NewValidation("unknown implementation").
			WithDetail("field", "implementation").
			WithDetail("value", int(s.Implementation))
	}
	if err := s.checkTemplate(); err != nil {
		return err
	}
	return nil
}

// checkTemplate renders a dummy number so that broken placeholders are
// reported before any number is consumed.
func (s *Sequence) checkTemplate() error {
	_, err := numerator.Format(s.Template(), 0, numerator.NewDates(time.Unix(0, 0), time.UTC))
	if err != nil {
		return apperror.NewInvalidTemplate(s.Name, err)
	}
	return nil
}

// render formats number, mapping template errors to InvalidTemplate.
func (s *Sequence) render(number int64, dates numerator.Dates) (string, error) {
	out, err := numerator.Format(s.Template(), number, dates)
	if err != nil {
		if errors.Is(err, numerator.ErrInvalidTemplate) {
			return "", apperror.NewInvalidTemplate(s.Name, err)
		}
		return "", err
	}
	return out, nil
}

// DateRange is a child partition of a date-partitioned sequence.
// DateFrom and DateTo are inclusive calendar dates.
type DateRange struct {
	ID         id.ID     `db:"id" json:"id"`
	SequenceID id.ID     `db:"sequence_id" json:"sequenceId"`
	DateFrom   time.Time `db:"date_from" json:"dateFrom"`
	DateTo     time.Time `db:"date_to" json:"dateTo"`
	NumberNext int64     `db:"number_next" json:"numberNext"`
}

// Contains reports whether day falls inside the range.
func (r *DateRange) Contains(day time.Time) bool {
	day = Day(day)
	return !day.Before(r.DateFrom) && !day.After(r.DateTo)
}

// Overlaps reports whether the two ranges share at least one day.
func (r *DateRange) Overlaps(other *DateRange) bool {
	return !r.DateTo.Before(other.DateFrom) && !other.DateTo.Before(r.DateFrom)
}

// Validate checks the range bounds.
func (r *DateRange) Validate() error {
	if r.DateFrom.IsZero() || r.DateTo.IsZero() {
		return apperror.NewValidation("dateFrom and dateTo are required")
	}
	if r.DateTo.Before(r.DateFrom) {
		return apperror.NewValidation("dateTo must not be before dateFrom").
			WithDetail("dateFrom", r.DateFrom.Format(numerator.DateLayout)).
			WithDetail("dateTo", r.DateTo.Format(numerator.DateLayout))
	}
	return nil
}

// Day truncates t to its calendar date, expressed as midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CounterKey identifies a backing counter: the sequence itself or one of
// its date ranges. A zero DateRangeID means the sequence counter.
type CounterKey struct {
	SequenceID  id.ID
	DateRangeID id.ID
}

// SequenceKey returns the key of the sequence-level counter.
func SequenceKey(sequenceID id.ID) CounterKey {
	return CounterKey{SequenceID: sequenceID}
}

// DateRangeKey returns the key of a date range counter.
func DateRangeKey(sequenceID, dateRangeID id.ID) CounterKey {
	return CounterKey{SequenceID: sequenceID, DateRangeID: dateRangeID}
}

// IsDateRange reports whether the key addresses a date range.
func (k CounterKey) IsDateRange() bool {
	return !id.IsNil(k.DateRangeID)
}

func (k CounterKey) String() string {
	if k.IsDateRange() {
		return fmt.Sprintf("%s/%s", k.SequenceID, k.DateRangeID)
	}
	return k.SequenceID.String()
}
