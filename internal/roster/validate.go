package roster

import (
	"regexp"
	"strings"
	"time"
)

const idNumberLength = 12

var idNumberPattern = regexp.MustCompile(`^\d{12}$`)

// Validation messages surfaced inline next to the field.
const (
	MsgRequired       = "required"
	MsgInvalidDate    = "invalid date, expected YYYY-MM-DD"
	MsgFutureDate     = "date of birth cannot be in the future"
	MsgAdultAge       = "adult must be at least 12 years old"
	MsgChildAge       = "child must be between 2 and 11 years old"
	MsgInfantAge      = "infant must be under 2 years old"
	MsgIDNumberDigits = "must be 12 digits"
)

// Age returns the passenger's age in whole years on the calendar date of today.
// The year difference is reduced by one while today's month/day is still
// before the birth month/day.
func Age(dob, today time.Time) int {
	age := today.Year() - dob.Year()
	if today.Month() < dob.Month() || (today.Month() == dob.Month() && today.Day() < dob.Day()) {
		age--
	}
	return age
}

// ParseDate parses a YYYY-MM-DD date of birth.
func ParseDate(value string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(value))
}

// InBracket reports whether age is allowed for the category.
func InBracket(c Category, age int) bool {
	switch c {
	case Adult:
		return age >= 12
	case Child:
		return age >= 2 && age <= 11
	case Infant:
		return age < 2
	default:
		return false
	}
}

func bracketMessage(c Category) string {
	switch c {
	case Adult:
		return MsgAdultAge
	case Child:
		return MsgChildAge
	default:
		return MsgInfantAge
	}
}

func validatePassenger(p Passenger, now time.Time) FieldErrors {
	errs := FieldErrors{}
	if strings.TrimSpace(p.FullName) == "" {
		errs[FieldFullName] = MsgRequired
	}
	if msg := validateDateOfBirth(p.Category, p.DateOfBirth, now); msg != "" {
		errs[FieldDateOfBirth] = msg
	}
	if p.Category == Adult {
		switch {
		case p.IDNumber == "":
			errs[FieldIDNumber] = MsgRequired
		case !idNumberPattern.MatchString(p.IDNumber):
			errs[FieldIDNumber] = MsgIDNumberDigits
		}
	}
	return errs
}

func validateDateOfBirth(c Category, value string, now time.Time) string {
	if strings.TrimSpace(value) == "" {
		return MsgRequired
	}
	dob, err := ParseDate(value)
	if err != nil {
		return MsgInvalidDate
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if dob.After(today) {
		return MsgFutureDate
	}
	if !InBracket(c, Age(dob, today)) {
		return bracketMessage(c)
	}
	return ""
}
