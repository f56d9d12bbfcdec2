package core

import (
	"fmt"
	"time"
)

// PeriodLayout is the archive period identifier format.
const PeriodLayout = "2006-01"

// PeriodOf returns the zero-padded YYYY-MM period containing t.
func PeriodOf(t time.Time) string {
	return t.Format(PeriodLayout)
}

// ParsePeriod validates a YYYY-MM period identifier and returns the first day
// of that month in UTC.
func ParsePeriod(period string) (time.Time, error) {
	t, err := time.Parse(PeriodLayout, period)
	if err != nil || len(period) != len(PeriodLayout) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	return t, nil
}

// Today formats t as a transaction date.
func Today(t time.Time) string {
	return t.Format(DateLayout)
}
