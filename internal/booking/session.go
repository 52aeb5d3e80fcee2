package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/tourbook/internal/backend"
	"github.com/noah-isme/tourbook/internal/coupon"
	"github.com/noah-isme/tourbook/internal/pricing"
	"github.com/noah-isme/tourbook/internal/roster"
)

var (
	// ErrNotSubmittable is matched by NotSubmittableError.
	ErrNotSubmittable = errors.New("booking: not submittable")
	// ErrUnknownMode is returned for a mode outside create/update/admin_create.
	ErrUnknownMode = errors.New("booking: unknown mode")
	// ErrAlreadyLoaded is returned when an existing booking was adopted before.
	ErrAlreadyLoaded = errors.New("booking: existing booking already loaded")
)

// Mode selects which backend operation a submission maps to.
type Mode string

const (
	ModeCreate      Mode = "create"
	ModeUpdate      Mode = "update"
	ModeAdminCreate Mode = "admin_create"
)

// ParseMode validates a mode string. Empty input means create.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModeCreate:
		return ModeCreate, nil
	case ModeUpdate:
		return ModeUpdate, nil
	case ModeAdminCreate:
		return ModeAdminCreate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, value)
	}
}

// Blocker codes explain why a session cannot be submitted.
const (
	BlockerTourMissing      = "tour_not_selected"
	BlockerScheduleMissing  = "schedule_not_selected"
	BlockerBookingMissing   = "booking_not_selected"
	BlockerPassengerInvalid = "passengers_invalid"
	BlockerContactInvalid   = "contact_invalid"
)

// NotSubmittableError carries the blockers of a refused submission.
type NotSubmittableError struct {
	Blockers []string
}

func (e *NotSubmittableError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNotSubmittable, strings.Join(e.Blockers, ", "))
}

func (e *NotSubmittableError) Unwrap() error { return ErrNotSubmittable }

// NoticeCouponRevoked is the kind of notice emitted when a coupon is cleared.
const NoticeCouponRevoked = "coupon_revoked"

// Notice is an informational message for the user.
type Notice struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Submitter hands a finished booking to the backend.
type Submitter interface {
	CreateBooking(ctx context.Context, req backend.BookingRequest) (backend.Receipt, error)
	UpdateBooking(ctx context.Context, req backend.BookingRequest) (backend.Receipt, error)
}

// Session is one booking being composed. Every mutating method recomputes the
// quote before returning. It is not safe for concurrent use.
type Session struct {
	Mode           Mode
	BookingID      int64
	TourID         int64
	ScheduleID     int64
	Prices         pricing.UnitPrices
	Roster         *roster.Roster
	Quoter         pricing.Quoter
	Contact        Contact
	SpecialRequest string
	Notices        []Notice

	// Now supplies the clock for age and coupon window checks. Defaults to time.Now.
	Now func() time.Time

	quote pricing.Quote
}

// New starts a session for tourID.
func New(mode Mode, tourID int64) *Session {
	s := &Session{Mode: mode, TourID: tourID, Roster: roster.New()}
	s.recompute()
	return s
}

func (s *Session) wire() {
	if s.Roster == nil {
		s.Roster = roster.New()
	}
	s.Roster.Now = s.Now
	s.Quoter.Now = s.Now
	s.Quoter.OnRevoke = s.revoked
}

func (s *Session) revoked(r pricing.Revocation) {
	s.Notices = append(s.Notices, Notice{Kind: NoticeCouponRevoked, Message: r.Message()})
}

func (s *Session) recompute() {
	s.wire()
	s.quote = s.Quoter.Recompute(s.Roster.Counts(), s.Prices)
}

// Quote returns the pricing as of the last mutation.
func (s *Session) Quote() pricing.Quote {
	return s.quote
}

// SelectSchedule switches to another schedule and its unit prices.
func (s *Session) SelectSchedule(scheduleID int64, prices pricing.UnitPrices) {
	s.ScheduleID = scheduleID
	s.Prices = prices
	s.recompute()
}

// SetCount changes a category's passenger count by delta.
func (s *Session) SetCount(c roster.Category, delta int) (int, error) {
	s.wire()
	n, err := s.Roster.SetCount(c, delta)
	s.recompute()
	return n, err
}

// UpdateField edits one passenger field.
func (s *Session) UpdateField(c roster.Category, index int, field string, value any) error {
	s.wire()
	err := s.Roster.UpdateField(c, index, field, value)
	s.recompute()
	return err
}

// ValidateRow validates one passenger row.
func (s *Session) ValidateRow(c roster.Category, index int) (roster.FieldErrors, error) {
	s.wire()
	errs, err := s.Roster.ValidateRow(c, index)
	s.recompute()
	return errs, err
}

// ValidateAll validates every passenger row.
func (s *Session) ValidateAll() {
	s.wire()
	s.Roster.ValidateAll()
	s.recompute()
}

// SelectCoupon adopts c when it applies to the current subtotal. A rejected
// coupon leaves the session untouched.
func (s *Session) SelectCoupon(c coupon.Coupon) error {
	s.wire()
	if err := s.Quoter.Select(c, pricing.Subtotal(s.Roster.Counts(), s.Prices)); err != nil {
		return err
	}
	s.recompute()
	return nil
}

// RemoveCoupon clears the active coupon.
func (s *Session) RemoveCoupon() {
	s.Quoter.Remove()
	s.recompute()
}

// SetContact replaces the contact details.
func (s *Session) SetContact(c Contact) {
	s.Contact = c.Normalize()
}

// SetSpecialRequest replaces the free-text request.
func (s *Session) SetSpecialRequest(value string) {
	s.SpecialRequest = strings.TrimSpace(value)
}

// LoadBooking adopts an existing booking exactly once. The booking's coupon is
// resolved against catalog and kept only while its minimum order still holds.
func (s *Session) LoadBooking(b backend.Booking, catalog []coupon.Coupon) error {
	s.wire()
	if s.Roster.LoadState() == roster.LoadLoaded {
		return ErrAlreadyLoaded
	}
	s.BookingID = b.ID
	if b.TourID != 0 {
		s.TourID = b.TourID
	}
	if b.ScheduleID != 0 {
		s.ScheduleID = b.ScheduleID
	}
	s.Contact = Contact{
		Name:    b.ContactName,
		Email:   b.ContactEmail,
		Phone:   b.ContactPhone,
		Address: b.ContactAddress,
	}.Normalize()
	s.SpecialRequest = strings.TrimSpace(b.SpecialRequest)
	s.Roster.Seed(b.Passengers)
	if b.CouponID != nil {
		if c, ok := coupon.FindByID(catalog, *b.CouponID); ok {
			c = c.Normalize()
			s.Quoter.Active = &c
		}
	}
	s.recompute()
	return nil
}

// ContactErrors validates the contact details.
func (s *Session) ContactErrors() roster.FieldErrors {
	return s.Contact.Validate()
}

// Blockers lists the reasons the session cannot be submitted yet.
func (s *Session) Blockers() []string {
	s.wire()
	var blockers []string
	if s.TourID <= 0 {
		blockers = append(blockers, BlockerTourMissing)
	}
	if s.ScheduleID <= 0 {
		blockers = append(blockers, BlockerScheduleMissing)
	}
	if s.Mode == ModeUpdate && s.BookingID <= 0 {
		blockers = append(blockers, BlockerBookingMissing)
	}
	if !s.Roster.Valid() {
		blockers = append(blockers, BlockerPassengerInvalid)
	}
	if len(s.ContactErrors()) > 0 {
		blockers = append(blockers, BlockerContactInvalid)
	}
	return blockers
}

// CanSubmit reports whether the contact and roster are valid and a tour and
// schedule are selected.
func (s *Session) CanSubmit() bool {
	return len(s.Blockers()) == 0
}

// Payload assembles the request sent to the backend.
func (s *Session) Payload() backend.BookingRequest {
	s.wire()
	counts := s.Roster.Counts()
	req := backend.BookingRequest{
		TourID:         s.TourID,
		ScheduleID:     s.ScheduleID,
		NumAdults:      counts.Adults,
		NumChildren:    counts.Children,
		NumInfants:     counts.Infants,
		Passengers:     s.Roster.Passengers(),
		ContactName:    s.Contact.Name,
		ContactEmail:   s.Contact.Email,
		ContactPhone:   s.Contact.Phone,
		ContactAddress: s.Contact.Address,
		SpecialRequest: s.SpecialRequest,
	}
	if s.Mode == ModeUpdate {
		req.BookingID = s.BookingID
	}
	if active := s.Quoter.Active; active != nil && active.ID > 0 {
		id := active.ID
		req.CouponID = &id
	}
	return req
}

// Submit validates everything and, when nothing blocks, sends the payload.
func (s *Session) Submit(ctx context.Context, backendAPI Submitter) (backend.Receipt, error) {
	s.ValidateAll()
	if blockers := s.Blockers(); len(blockers) > 0 {
		return backend.Receipt{}, &NotSubmittableError{Blockers: blockers}
	}
	req := s.Payload()
	if s.Mode == ModeUpdate {
		return backendAPI.UpdateBooking(ctx, req)
	}
	return backendAPI.CreateBooking(ctx, req)
}

// DrainNotices returns and clears the pending notices.
func (s *Session) DrainNotices() []Notice {
	notices := s.Notices
	s.Notices = nil
	return notices
}

// View is the read model of a session.
type View struct {
	Mode           Mode                             `json:"mode"`
	BookingID      int64                            `json:"booking_id,omitempty"`
	TourID         int64                            `json:"tour_id"`
	ScheduleID     int64                            `json:"schedule_id,omitempty"`
	Prices         pricing.UnitPrices               `json:"prices"`
	Passengers     map[roster.Category][]roster.Row `json:"passengers"`
	Counts         roster.Counts                    `json:"counts"`
	LoadState      roster.LoadState                 `json:"load_state"`
	Quote          pricing.Quote                    `json:"quote"`
	ActiveCoupon   *coupon.Coupon                   `json:"active_coupon,omitempty"`
	Contact        Contact                          `json:"contact"`
	ContactErrors  roster.FieldErrors               `json:"contact_errors"`
	SpecialRequest string                           `json:"special_request"`
	CanSubmit      bool                             `json:"can_submit"`
	Blockers       []string                         `json:"blockers"`
	Notices        []Notice                         `json:"notices"`
}

// View summarises the session for callers.
func (s *Session) View() View {
	s.wire()
	passengers := make(map[roster.Category][]roster.Row, len(roster.Categories))
	for _, c := range roster.Categories {
		passengers[c] = s.Roster.Rows(c)
	}
	blockers := s.Blockers()
	if blockers == nil {
		blockers = []string{}
	}
	notices := s.Notices
	if notices == nil {
		notices = []Notice{}
	}
	return View{
		Mode:           s.Mode,
		BookingID:      s.BookingID,
		TourID:         s.TourID,
		ScheduleID:     s.ScheduleID,
		Prices:         s.Prices,
		Passengers:     passengers,
		Counts:         s.Roster.Counts(),
		LoadState:      s.Roster.LoadState(),
		Quote:          s.quote,
		ActiveCoupon:   s.Quoter.Active,
		Contact:        s.Contact,
		ContactErrors:  s.ContactErrors(),
		SpecialRequest: s.SpecialRequest,
		CanSubmit:      len(blockers) == 0,
		Blockers:       blockers,
		Notices:        notices,
	}
}

type snapshot struct {
	Mode           Mode               `json:"mode"`
	BookingID      int64              `json:"booking_id,omitempty"`
	TourID         int64              `json:"tour_id"`
	ScheduleID     int64              `json:"schedule_id,omitempty"`
	Prices         pricing.UnitPrices `json:"prices"`
	Roster         *roster.Roster     `json:"roster"`
	Coupon         *coupon.Coupon     `json:"active_coupon,omitempty"`
	Contact        Contact            `json:"contact"`
	SpecialRequest string             `json:"special_request,omitempty"`
	Notices        []Notice           `json:"notices,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s *Session) MarshalJSON() ([]byte, error) {
	s.wire()
	return json.Marshal(snapshot{
		Mode:           s.Mode,
		BookingID:      s.BookingID,
		TourID:         s.TourID,
		ScheduleID:     s.ScheduleID,
		Prices:         s.Prices,
		Roster:         s.Roster,
		Coupon:         s.Quoter.Active,
		Contact:        s.Contact,
		SpecialRequest: s.SpecialRequest,
		Notices:        s.Notices,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Session) UnmarshalJSON(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	s.Mode = snap.Mode
	s.BookingID = snap.BookingID
	s.TourID = snap.TourID
	s.ScheduleID = snap.ScheduleID
	s.Prices = snap.Prices
	s.Roster = snap.Roster
	s.Quoter = pricing.Quoter{Active: snap.Coupon}
	s.Contact = snap.Contact
	s.SpecialRequest = snap.SpecialRequest
	s.Notices = snap.Notices
	s.recompute()
	return nil
}
