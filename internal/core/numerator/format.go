package numerator

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTemplate is wrapped by every interpolation failure.
var ErrInvalidTemplate = errors.New("invalid template")

// DateLayout is the layout of date overrides (effective date, range date).
const DateLayout = "2006-01-02"

// Dates holds the three timestamp baselines available to templates.
type Dates struct {
	// Now is the wall clock at call time, in the caller's zone.
	Now time.Time
	// Effective feeds the plain codes (year, month, ...).
	Effective time.Time
	// Range feeds the range_* codes.
	Range time.Time
}

// NewDates returns baselines where all three timestamps are now in loc.
// A nil loc means UTC.
func NewDates(now time.Time, loc *time.Location) Dates {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	return Dates{Now: now, Effective: now, Range: now}
}

// ParseDate parses a YYYY-MM-DD override as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DateLayout, s, loc)
}

// dateCodes maps a placeholder name to its rendering.
var dateCodes = map[string]func(t time.Time) string{
	"year":    func(t time.Time) string { return t.Format("2006") },
	"y":       func(t time.Time) string { return t.Format("06") },
	"month":   func(t time.Time) string { return t.Format("01") },
	"day":     func(t time.Time) string { return t.Format("02") },
	"doy":     func(t time.Time) string { return fmt.Sprintf("%03d", t.YearDay()) },
	"woy":     func(t time.Time) string { return fmt.Sprintf("%02d", mondayWeek(t)) },
	"weekday": func(t time.Time) string { return fmt.Sprintf("%d", int(t.Weekday())) },
	"h24":     func(t time.Time) string { return t.Format("15") },
	"h12":     func(t time.Time) string { return t.Format("03") },
	"min":     func(t time.Time) string { return t.Format("04") },
	"sec":     func(t time.Time) string { return t.Format("05") },
}

// mondayWeek is the week of the year with Monday as the first day of the
// week. Days before the first Monday are in week 0.
func mondayWeek(t time.Time) int {
	yday := t.YearDay() - 1
	weekday := (int(t.Weekday()) + 6) % 7
	return (yday + 7 - weekday) / 7
}

// Values returns the substitution set for the given baselines.
func (d Dates) Values() map[string]string {
	values := make(map[string]string, len(dateCodes)*3)
	for code, render := range dateCodes {
		values[code] = render(d.Effective)
		values["range_"+code] = render(d.Range)
		values["current_"+code] = render(d.Now)
	}
	return values
}

// Format renders number with the template: prefix + padded number + suffix.
// The numeric part is never truncated when it is wider than Padding.
func Format(tpl Template, number int64, dates Dates) (string, error) {
	values := dates.Values()

	prefix, err := Interpolate(tpl.Prefix, values)
	if err != nil {
		return "", fmt.Errorf("prefix: %w", err)
	}
	suffix, err := Interpolate(tpl.Suffix, values)
	if err != nil {
		return "", fmt.Errorf("suffix: %w", err)
	}

	padding := tpl.Padding
	if padding < 0 {
		padding = 0
	}
	return prefix + fmt.Sprintf("%0*d", padding, number) + suffix, nil
}

// Interpolate replaces %(name)s placeholders with values. "%%" renders a
// single percent sign; any other use of '%' is an error.
func Interpolate(s string, values map[string]string) (string, error) {
	if !strings.Contains(s, "%") {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("%w: incomplete format at end of %q", ErrInvalidTemplate, s)
		}

		switch s[i+1] {
		case '%':
			b.WriteByte('%')
			i++
		case '(':
			closing := strings.IndexByte(s[i+2:], ')')
			if closing < 0 {
				return "", fmt.Errorf("%w: unterminated key in %q", ErrInvalidTemplate, s)
			}
			key := s[i+2 : i+2+closing]
			conv := i + 2 + closing + 1
			if conv >= len(s) || s[conv] != 's' {
				return "", fmt.Errorf("%w: unsupported conversion for key %q", ErrInvalidTemplate, key)
			}
			v, ok := values[key]
			if !ok {
				return "", fmt.Errorf("%w: unknown key %q", ErrInvalidTemplate, key)
			}
			b.WriteString(v)
			i = conv
		default:
			return "", fmt.Errorf("%w: unsupported format character %q", ErrInvalidTemplate, s[i+1])
		}
	}

	return b.String(), nil
}
