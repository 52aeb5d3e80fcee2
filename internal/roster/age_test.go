package roster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAge(t *testing.T) {
	today := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		dob  time.Time
		want int
	}{
		{"birthday earlier this year", time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), 35},
		{"birthday later this year", time.Date(1990, 12, 31, 0, 0, 0, 0, time.UTC), 34},
		{"birthday today", time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC), 35},
		{"birthday tomorrow", time.Date(1990, 6, 16, 0, 0, 0, 0, time.UTC), 34},
		{"same month earlier day", time.Date(2013, 6, 14, 0, 0, 0, 0, time.UTC), 12},
		{"born this year", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 0},
		{"leap day birthday", time.Date(2000, 2, 29, 0, 0, 0, 0, time.UTC), 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Age(tt.dob, today))
		})
	}

	// Feb 29 birthdays are not reached on Feb 28 of a common year.
	assert.Equal(t, 24, Age(time.Date(2000, 2, 29, 0, 0, 0, 0, time.UTC), time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 25, Age(time.Date(2000, 2, 29, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
}

// Every calendar day of a leap and a common year: a twelve-year-old adult is
// accepted and an eleven-year-old one is rejected.
func TestAdultBoundaryForAnyToday(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for today := start; today.Before(end); today = today.AddDate(0, 0, 1) {
		twelve := today.AddDate(-12, 0, 0)
		eleven := twelve.AddDate(0, 0, 1)

		if got := Age(twelve, today); got != 12 {
			t.Fatalf("today %s dob %s: expected age 12, got %d", today.Format(DateLayout), twelve.Format(DateLayout), got)
		}
		if got := Age(eleven, today); got != 11 {
			t.Fatalf("today %s dob %s: expected age 11, got %d", today.Format(DateLayout), eleven.Format(DateLayout), got)
		}

		p := Passenger{Category: Adult, FullName: "A", IDNumber: "123456789012"}
		p.DateOfBirth = twelve.Format(DateLayout)
		if errs := validatePassenger(p, today); errs[FieldDateOfBirth] != "" {
			t.Fatalf("today %s: age 12 adult rejected: %v", today.Format(DateLayout), errs)
		}
		p.DateOfBirth = eleven.Format(DateLayout)
		if errs := validatePassenger(p, today); errs[FieldDateOfBirth] != MsgAdultAge {
			t.Fatalf("today %s: age 11 adult accepted: %v", today.Format(DateLayout), errs)
		}
	}
}

func TestValidateUsesCalendarDateOfNow(t *testing.T) {
	late := time.Date(2025, 6, 14, 23, 59, 59, 0, time.UTC)
	p := Passenger{Category: Adult, FullName: "A", IDNumber: "123456789012", DateOfBirth: "2013-06-15"}
	assert.Equal(t, MsgAdultAge, validatePassenger(p, late)[FieldDateOfBirth])
	assert.Empty(t, validatePassenger(p, late.Add(time.Second)))
}
