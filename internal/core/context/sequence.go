package context

import "context"

// SequenceOverrides carries per-request knobs for number generation.
// Every field is optional; empty means "use the default".
type SequenceOverrides struct {
	// Date is the effective date (YYYY-MM-DD) used for date codes and
	// date-range selection.
	Date string
	// DateRange is the date (YYYY-MM-DD) used for range_* codes.
	DateRange string
	// OrgID forces the preferred organization when resolving by code.
	OrgID string
	// TimeZone is an IANA zone name for the "now" baseline.
	TimeZone string
}

type sequenceOverridesKey struct{}

// WithSequenceOverrides adds SequenceOverrides to context.
func WithSequenceOverrides(ctx context.Context, o SequenceOverrides) context.Context {
	return context.WithValue(ctx, sequenceOverridesKey{}, o)
}

// GetSequenceOverrides returns overrides from context; the zero value when absent.
func GetSequenceOverrides(ctx context.Context) SequenceOverrides {
	o, _ := ctx.Value(sequenceOverridesKey{}).(SequenceOverrides)
	return o
}
