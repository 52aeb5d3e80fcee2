package roster

import (
	"bytes"
	"fmt"
	"strings"
)

// Category classifies a passenger row. A row never changes category.
type Category string

const (
	Adult  Category = "ADULT"
	Child  Category = "CHILD"
	Infant Category = "INFANT"
)

// Categories lists every category in submission order.
var Categories = []Category{Adult, Child, Infant}

// ParseCategory accepts the canonical names case-insensitively along with the
// plural forms used in URLs (adults, children, infants).
func ParseCategory(value string) (Category, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "ADULT", "ADULTS":
		return Adult, nil
	case "CHILD", "CHILDREN":
		return Child, nil
	case "INFANT", "INFANTS":
		return Infant, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, value)
	}
}

// Floor is the minimum number of rows the category may hold.
func (c Category) Floor() int {
	if c == Adult {
		return 1
	}
	return 0
}

// Gender of a passenger. Empty input defaults to Male.
type Gender string

const (
	Male   Gender = "MALE"
	Female Gender = "FEMALE"
	Other  Gender = "OTHER"
)

func parseGender(value string) (Gender, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", "MALE":
		return Male, nil
	case "FEMALE":
		return Female, nil
	case "OTHER":
		return Other, nil
	default:
		return "", fmt.Errorf("%w: gender %q", ErrInvalidValue, value)
	}
}

// Flag is a boolean carried as 0/1 on the wire.
type Flag bool

// MarshalJSON implements json.Marshaler.
func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// UnmarshalJSON accepts 0/1, true/false and their string forms.
func (f *Flag) UnmarshalJSON(data []byte) error {
	raw := string(bytes.Trim(bytes.TrimSpace(data), `"`))
	v, err := parseFlag(raw)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

func parseFlag(raw string) (Flag, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true":
		return true, nil
	case "0", "false", "", "null":
		return false, nil
	default:
		return false, fmt.Errorf("%w: flag %q", ErrInvalidValue, raw)
	}
}

// Field names accepted by UpdateField and used as keys in FieldErrors.
const (
	FieldFullName    = "full_name"
	FieldDateOfBirth = "date_of_birth"
	FieldGender      = "gender"
	FieldIDNumber    = "id_number"
	FieldSingleRoom  = "single_room"
)

// DateLayout is the wire format of date_of_birth.
const DateLayout = "2006-01-02"

// Passenger is one traveller in the roster.
type Passenger struct {
	Category    Category `json:"category"`
	FullName    string   `json:"full_name"`
	DateOfBirth string   `json:"date_of_birth"`
	Gender      Gender   `json:"gender"`
	IDNumber    string   `json:"id_number"`
	SingleRoom  Flag     `json:"single_room"`
}

func blankPassenger(c Category) Passenger {
	return Passenger{Category: c, Gender: Male}
}

// FieldErrors maps a field name to its validation message.
type FieldErrors map[string]string

// Row keeps a passenger and its validation state together.
type Row struct {
	Data   Passenger   `json:"data"`
	Errors FieldErrors `json:"errors"`
}

// hasRequired reports whether the row carries every required field.
func (r Row) hasRequired() bool {
	if strings.TrimSpace(r.Data.FullName) == "" || strings.TrimSpace(r.Data.DateOfBirth) == "" {
		return false
	}
	if r.Data.Category == Adult && r.Data.IDNumber == "" {
		return false
	}
	return true
}

// NormalizeIDNumber strips non-digits and caps the result at 12 characters.
func NormalizeIDNumber(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r < '0' || r > '9' {
			continue
		}
		b.WriteRune(r)
		if b.Len() == idNumberLength {
			break
		}
	}
	return b.String()
}

// Counts is the head-count summary published by the roster.
type Counts struct {
	Adults      int `json:"num_adults"`
	Children    int `json:"num_children"`
	Infants     int `json:"num_infants"`
	SingleRooms int `json:"num_single_rooms"`
}
