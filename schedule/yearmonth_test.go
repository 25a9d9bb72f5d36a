package schedule_test

import (
	"testing"
	"time"

	"github.com/fitdesk/gym-engine/schedule"
)

func TestParseYearMonth(t *testing.T) {
	ym, err := schedule.ParseYearMonth("2024-05")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ym.Year != 2024 || ym.Month != time.May {
		t.Errorf("got %v, want 2024-05", ym)
	}
	if got := ym.String(); got != "2024-05" {
		t.Errorf("String() = %q, want 2024-05", got)
	}

	for _, bad := range []string{"", "2024", "2024-13", "2024-5", "may-2024"} {
		if _, err := schedule.ParseYearMonth(bad); err == nil {
			t.Errorf("ParseYearMonth(%q): expected error", bad)
		}
	}
}

func TestYearMonthContains(t *testing.T) {
	ym := schedule.YearMonth{Year: 2024, Month: time.May}

	if !ym.Contains(time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("first instant of the month should be contained")
	}
	if !ym.Contains(time.Date(2024, time.May, 31, 23, 59, 59, 0, time.UTC)) {
		t.Error("last second of the month should be contained")
	}
	if ym.Contains(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("first instant of the next month should not be contained")
	}

	// End is exclusive and equals the next month's Start
	next := schedule.YearMonth{Year: 2024, Month: time.June}
	if !ym.End().Equal(next.Start()) {
		t.Errorf("End() = %v, want %v", ym.End(), next.Start())
	}
}

func TestYearMonthOf_DecemberRollover(t *testing.T) {
	ym := schedule.YearMonthOf(time.Date(2023, time.December, 31, 23, 0, 0, 0, time.UTC))
	if ym.String() != "2023-12" {
		t.Fatalf("got %s", ym)
	}
	if got := ym.End(); !got.Equal(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("End() = %v, want 2024-01-01", got)
	}
}
