package numerator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat_InvoiceRoundTrip(t *testing.T) {
	effective, err := ParseDate("2024-03-01", time.UTC)
	require.NoError(t, err)

	dates := NewDates(time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC), time.UTC)
	dates.Effective = effective

	got, err := Format(Template{Prefix: "INV/%(year)s/", Padding: 4}, 7, dates)
	require.NoError(t, err)
	assert.Equal(t, "INV/2024/0007", got)
}

func TestFormat_PaddingNeverTruncates(t *testing.T) {
	dates := NewDates(time.Now(), nil)

	got, err := Format(Template{Padding: 2}, 12345, dates)
	require.NoError(t, err)
	assert.Equal(t, "12345", got)

	got, err = Format(Template{Padding: 0}, 7, dates)
	require.NoError(t, err)
	assert.Equal(t, "7", got)
}

func TestFormat_ThreeBaselines(t *testing.T) {
	dates := Dates{
		Now:       time.Date(2026, 10, 19, 15, 4, 5, 0, time.UTC),
		Effective: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Range:     time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC),
	}

	got, err := Format(Template{
		Prefix:  "%(y)s%(month)s-%(range_year)s-",
		Suffix:  "/%(current_year)s%(current_h12)s%(current_min)s%(current_sec)s",
		Padding: 3,
	}, 42, dates)
	require.NoError(t, err)
	assert.Equal(t, "2403-2023-042/2026030405", got)
}

func TestDates_Values(t *testing.T) {
	d := NewDates(time.Date(2024, 3, 1, 15, 4, 5, 0, time.UTC), time.UTC)
	v := d.Values()

	tests := map[string]string{
		"year":    "2024",
		"y":       "24",
		"month":   "03",
		"day":     "01",
		"doy":     "061",
		"woy":     "09",
		"weekday": "5",
		"h24":     "15",
		"h12":     "03",
		"min":     "04",
		"sec":     "05",
	}
	for code, want := range tests {
		assert.Equal(t, want, v[code], code)
		assert.Equal(t, want, v["range_"+code], "range_"+code)
		assert.Equal(t, want, v["current_"+code], "current_"+code)
	}
	assert.Len(t, v, 33)
}

func TestMondayWeek(t *testing.T) {
	tests := []struct {
		date string
		want int
	}{
		{"2023-01-01", 0}, // Sunday before the first Monday
		{"2023-01-02", 1},
		{"2024-01-01", 1}, // year starts on Monday
		{"2024-12-31", 53},
	}
	for _, tt := range tests {
		d, err := ParseDate(tt.date, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, tt.want, mondayWeek(d), tt.date)
	}
}

func TestNewDates_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	d := NewDates(time.Date(2024, 12, 31, 20, 0, 0, 0, time.UTC), loc)

	assert.Equal(t, "2025", d.Values()["current_year"])
}

func TestInterpolate(t *testing.T) {
	values := map[string]string{"year": "2024"}

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "SO/", want: "SO/"},
		{name: "placeholder", in: "SO/%(year)s/", want: "SO/2024/"},
		{name: "escaped percent", in: "100%%-%(year)s", want: "100%-2024"},
		{name: "non-ascii kept", in: "Счёт-%(year)s", want: "Счёт-2024"},
		{name: "unknown key", in: "%(decade)s", wantErr: true},
		{name: "bare conversion", in: "%s", wantErr: true},
		{name: "wrong conversion", in: "%(year)d", wantErr: true},
		{name: "trailing percent", in: "50%", wantErr: true},
		{name: "unterminated key", in: "%(year", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Interpolate(tt.in, values)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidTemplate)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat_InvalidSuffix(t *testing.T) {
	_, err := Format(Template{Suffix: "%(nope)s"}, 1, NewDates(time.Now(), nil))

	require.ErrorIs(t, err, ErrInvalidTemplate)
	assert.Contains(t, err.Error(), "suffix")
}
