package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnknownCategory is returned for a category outside ADULT/CHILD/INFANT.
	ErrUnknownCategory = errors.New("roster: unknown category")
	// ErrRowOutOfRange indicates the row index does not exist in the category list.
	ErrRowOutOfRange = errors.New("roster: row index out of range")
	// ErrUnknownField indicates the field name is not a passenger field.
	ErrUnknownField = errors.New("roster: unknown field")
	// ErrInvalidValue indicates a value that cannot be assigned to the field at all.
	ErrInvalidValue = errors.New("roster: invalid value")
	// ErrTooManyRows is returned when a resize would exceed MaxRows.
	ErrTooManyRows = errors.New("roster: too many passengers")
)

// MaxRows caps the rows held per category.
const MaxRows = 50

// LoadState tracks one-time adoption of an externally supplied roster.
type LoadState string

const (
	LoadEmpty   LoadState = "empty"
	LoadLoading LoadState = "loading"
	LoadLoaded  LoadState = "loaded"
)

// Roster owns the adult, child and infant passenger lists. It is not safe for
// concurrent use.
type Roster struct {
	// Now supplies "today" for age checks. Defaults to time.Now.
	Now func() time.Time

	lists map[Category][]Row
	load  LoadState
}

// New returns a roster holding the minimum rows per category.
func New() *Roster {
	r := &Roster{lists: make(map[Category][]Row, len(Categories)), load: LoadEmpty}
	for _, c := range Categories {
		r.lists[c] = nil
		r.grow(c, c.Floor())
	}
	return r
}

func (r *Roster) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Roster) ensure() {
	if r.lists == nil {
		r.lists = make(map[Category][]Row, len(Categories))
	}
	if r.load == "" {
		r.load = LoadEmpty
	}
}

// Count returns the number of rows held for the category.
func (r *Roster) Count(c Category) int {
	return len(r.lists[c])
}

// Rows returns a copy of the category's rows.
func (r *Roster) Rows(c Category) []Row {
	src := r.lists[c]
	out := make([]Row, len(src))
	for i, row := range src {
		out[i] = Row{Data: row.Data, Errors: copyErrors(row.Errors)}
	}
	return out
}

// SetCount resizes the category list by delta, clamped to the category floor.
// Growing past MaxRows fails with ErrTooManyRows and leaves the list as is.
// It returns the resulting count.
func (r *Roster) SetCount(c Category, delta int) (int, error) {
	if !validCategory(c) {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
	}
	r.ensure()
	current := len(r.lists[c])
	if delta > 0 && delta > MaxRows-current {
		return current, fmt.Errorf("%w: %s limited to %d", ErrTooManyRows, c, MaxRows)
	}
	next := c.Floor()
	if delta > c.Floor()-current {
		next = current + delta
	}
	switch {
	case next > current:
		r.grow(c, next-current)
	case next < current:
		r.lists[c] = r.lists[c][:next:next]
	}
	return next, nil
}

func (r *Roster) grow(c Category, n int) {
	for i := 0; i < n; i++ {
		r.lists[c] = append(r.lists[c], Row{Data: blankPassenger(c), Errors: FieldErrors{}})
	}
}

// UpdateField assigns value to a row field. It never validates.
func (r *Roster) UpdateField(c Category, index int, field string, value any) error {
	row, err := r.row(c, index)
	if err != nil {
		return err
	}
	switch field {
	case FieldFullName:
		row.Data.FullName = stringValue(value)
	case FieldDateOfBirth:
		row.Data.DateOfBirth = strings.TrimSpace(stringValue(value))
	case FieldGender:
		g, err := parseGender(stringValue(value))
		if err != nil {
			return err
		}
		row.Data.Gender = g
	case FieldIDNumber:
		row.Data.IDNumber = NormalizeIDNumber(stringValue(value))
	case FieldSingleRoom:
		f, err := flagValue(value)
		if err != nil {
			return err
		}
		if f && c != Adult {
			return fmt.Errorf("%w: single_room applies to adults only", ErrInvalidValue)
		}
		row.Data.SingleRoom = f
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

// ValidateRow recomputes the errors of a single row and stores them on it.
func (r *Roster) ValidateRow(c Category, index int) (FieldErrors, error) {
	row, err := r.row(c, index)
	if err != nil {
		return nil, err
	}
	row.Errors = validatePassenger(row.Data, r.now())
	return copyErrors(row.Errors), nil
}

// ValidateAll validates every row in every category.
func (r *Roster) ValidateAll() {
	today := r.now()
	for _, c := range Categories {
		rows := r.lists[c]
		for i := range rows {
			rows[i].Errors = validatePassenger(rows[i].Data, today)
		}
	}
}

// Counts returns the head counts and the number of adults requesting a single room.
func (r *Roster) Counts() Counts {
	counts := Counts{
		Adults:   len(r.lists[Adult]),
		Children: len(r.lists[Child]),
		Infants:  len(r.lists[Infant]),
	}
	for _, row := range r.lists[Adult] {
		if row.Data.SingleRoom {
			counts.SingleRooms++
		}
	}
	return counts
}

// Passengers returns every passenger, adults first, then children, then infants.
func (r *Roster) Passengers() []Passenger {
	out := make([]Passenger, 0, len(r.lists[Adult])+len(r.lists[Child])+len(r.lists[Infant]))
	for _, c := range Categories {
		for _, row := range r.lists[c] {
			out = append(out, row.Data)
		}
	}
	return out
}

// Valid reports whether every row has its required fields and no active error.
func (r *Roster) Valid() bool {
	for _, c := range Categories {
		for _, row := range r.lists[c] {
			if !row.hasRequired() || len(row.Errors) > 0 {
				return false
			}
		}
	}
	return true
}

// LoadState returns the seeding state.
func (r *Roster) LoadState() LoadState {
	if r.load == "" {
		return LoadEmpty
	}
	return r.load
}

// BeginLoad marks an external roster as being fetched. It only applies to an
// empty roster.
func (r *Roster) BeginLoad() bool {
	r.ensure()
	if r.load != LoadEmpty {
		return false
	}
	r.load = LoadLoading
	return true
}

// Seed adopts passengers wholesale exactly once. Later calls are ignored and
// report false so user edits made after the first load survive.
func (r *Roster) Seed(passengers []Passenger) bool {
	r.ensure()
	if r.load == LoadLoaded {
		return false
	}
	lists := make(map[Category][]Row, len(Categories))
	for _, p := range passengers {
		if !validCategory(p.Category) {
			continue
		}
		if p.Gender == "" {
			p.Gender = Male
		}
		p.IDNumber = NormalizeIDNumber(p.IDNumber)
		if p.Category != Adult {
			p.SingleRoom = false
		}
		lists[p.Category] = append(lists[p.Category], Row{Data: p, Errors: FieldErrors{}})
	}
	r.lists = lists
	for _, c := range Categories {
		if missing := c.Floor() - len(r.lists[c]); missing > 0 {
			r.grow(c, missing)
		}
	}
	r.load = LoadLoaded
	return true
}

func (r *Roster) row(c Category, index int) (*Row, error) {
	if !validCategory(c) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
	}
	rows := r.lists[c]
	if index < 0 || index >= len(rows) {
		return nil, fmt.Errorf("%w: %s[%d]", ErrRowOutOfRange, c, index)
	}
	return &rows[index], nil
}

type snapshot struct {
	Adults    []Row     `json:"adults"`
	Children  []Row     `json:"children"`
	Infants   []Row     `json:"infants"`
	LoadState LoadState `json:"load_state"`
}

// MarshalJSON implements json.Marshaler.
func (r *Roster) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshot{
		Adults:    nonNil(r.lists[Adult]),
		Children:  nonNil(r.lists[Child]),
		Infants:   nonNil(r.lists[Infant]),
		LoadState: r.LoadState(),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Roster) UnmarshalJSON(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	r.lists = map[Category][]Row{
		Adult:  snap.Adults,
		Child:  snap.Children,
		Infant: snap.Infants,
	}
	for c, rows := range r.lists {
		for i := range rows {
			rows[i].Data.Category = c
			if rows[i].Errors == nil {
				rows[i].Errors = FieldErrors{}
			}
		}
	}
	r.load = snap.LoadState
	r.ensure()
	return nil
}

func validCategory(c Category) bool {
	return c == Adult || c == Child || c == Infant
}

func nonNil(rows []Row) []Row {
	if rows == nil {
		return []Row{}
	}
	return rows
}

func copyErrors(src FieldErrors) FieldErrors {
	out := make(FieldErrors, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func stringValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func flagValue(value any) (Flag, error) {
	switch v := value.(type) {
	case bool:
		return Flag(v), nil
	case Flag:
		return v, nil
	case float64:
		return parseFlag(fmt.Sprint(v))
	case int:
		return parseFlag(fmt.Sprint(v))
	default:
		return parseFlag(stringValue(value))
	}
}
