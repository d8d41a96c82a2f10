// Package numerator provides domain contracts for document auto-numbering:
// the allocation strategy variant, the number template and its formatter.
package numerator

import (
	"database/sql/driver"
	"fmt"
)

// Strategy defines the numbering allocation strategy.
type Strategy int

const (
	// StrategyStandard draws numbers from an atomic store counter.
	// Fast and safe under any concurrency, but a rolled back transaction
	// leaves a gap. Suitable for internal documents (orders, shipments).
	StrategyStandard Strategy = iota

	// StrategyNoGap locks the configuration row and increments the stored
	// next number in the caller's transaction. No gaps, but all allocations
	// on the same row are serialized. Suitable for invoices and accounting.
	StrategyNoGap
)

const (
	strategyStandardName = "standard"
	strategyNoGapName    = "no_gap"
)

// String returns the persisted name of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyStandard:
		return strategyStandardName
	case StrategyNoGap:
		return strategyNoGapName
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// Valid reports whether s is one of the known strategies.
func (s Strategy) Valid() bool {
	return s == StrategyStandard || s == StrategyNoGap
}

// ParseStrategy converts a persisted name into a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case strategyStandardName, "":
		return StrategyStandard, nil
	case strategyNoGapName:
		return StrategyNoGap, nil
	default:
		return StrategyStandard, fmt.Errorf("unknown numbering strategy %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown numbering strategy %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(text []byte) error {
	v, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Value implements driver.Valuer; strategies are stored as text.
func (s Strategy) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown numbering strategy %d", int(s))
	}
	return s.String(), nil
}

// Scan implements sql.Scanner.
func (s *Strategy) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	case nil:
		*s = StrategyStandard
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Strategy", src)
	}
}

// Template describes how an allocated number is rendered.
type Template struct {
	// Prefix and Suffix may contain %(code)s date placeholders.
	Prefix string
	Suffix string

	// Padding is the minimum width of the numeric part (zero-filled).
	Padding int
}
