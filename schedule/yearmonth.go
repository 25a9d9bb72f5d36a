package schedule

import (
	"fmt"
	"time"
)

// =============================================================================
// YEAR MONTH - Calendar month key for submission locking
// =============================================================================

// YearMonth identifies one calendar month, e.g. "2024-05". It is the key the
// submission gate locks on: every ClassRecord whose StartTime falls inside
// the month is governed by the same MonthlySubmission.
type YearMonth struct {
	Year  int
	Month time.Month
}

// YearMonthOf returns the month containing t.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// ParseYearMonth parses the "2006-01" wire format.
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("invalid year-month %q (use YYYY-MM): %w", s, err)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// Start returns midnight UTC on the first day of the month.
func (ym YearMonth) Start() time.Time {
	return time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant of the following month (exclusive bound).
func (ym YearMonth) End() time.Time {
	return ym.Start().AddDate(0, 1, 0)
}

// Contains reports whether t falls inside the month.
func (ym YearMonth) Contains(t time.Time) bool {
	return t.Year() == ym.Year && t.Month() == ym.Month
}

func (ym YearMonth) IsZero() bool {
	return ym.Year == 0 && ym.Month == 0
}
