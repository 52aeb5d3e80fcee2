package backend

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/tourbook/internal/coupon"
	"github.com/noah-isme/tourbook/internal/pricing"
	"github.com/noah-isme/tourbook/internal/roster"
)

// Number decodes JSON numbers as well as numeric strings, which the backend
// emits for DECIMAL columns.
type Number float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(bytes.Trim(bytes.TrimSpace(data), `"`)))
	if raw == "" || raw == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("backend: invalid number %q", raw)
	}
	*n = Number(v)
	return nil
}

// Int64 rounds the number to whole units.
func (n Number) Int64() int64 {
	return int64(math.Round(float64(n)))
}

// Tour is the subset of GET /tour/{id} the engine consumes.
type Tour struct {
	ID                  Number `json:"id"`
	Name                string `json:"name"`
	SingleRoomSurcharge Number `json:"single_room_surcharge"`
}

// Schedule is the subset of GET /tour_schedules/{id} the engine consumes.
type Schedule struct {
	ID          Number `json:"id"`
	TourID      Number `json:"tour_id"`
	StartDate   string `json:"start_date"`
	PriceAdult  Number `json:"price_adult"`
	PriceChild  Number `json:"price_child"`
	PriceInfant Number `json:"price_infant"`
}

// UnitPrices combines a schedule's prices with its tour's surcharge.
func UnitPrices(t Tour, s Schedule) pricing.UnitPrices {
	return pricing.UnitPrices{
		Adult:               s.PriceAdult.Int64(),
		Child:               s.PriceChild.Int64(),
		Infant:              s.PriceInfant.Int64(),
		SingleRoomSurcharge: t.SingleRoomSurcharge.Int64(),
	}
}

type couponDTO struct {
	ID                Number  `json:"id"`
	Code              string  `json:"code"`
	DiscountType      string  `json:"discount_type"`
	DiscountValue     Number  `json:"discount_value"`
	MinOrderAmount    Number  `json:"min_order_amount"`
	MaxDiscountAmount *Number `json:"max_discount_amount"`
	ValidFrom         *string `json:"valid_from"`
	ValidTo           *string `json:"valid_to"`
}

func (d couponDTO) toCoupon() coupon.Coupon {
	c := coupon.Coupon{
		ID:             d.ID.Int64(),
		Code:           d.Code,
		DiscountType:   coupon.DiscountType(d.DiscountType),
		DiscountValue:  float64(d.DiscountValue),
		MinOrderAmount: d.MinOrderAmount.Int64(),
		ValidFrom:      parseTimestamp(d.ValidFrom, false),
		ValidTo:        parseTimestamp(d.ValidTo, true),
	}
	if d.MaxDiscountAmount != nil {
		v := d.MaxDiscountAmount.Int64()
		c.MaxDiscountAmount = &v
	}
	return c.Normalize()
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTimestamp accepts full timestamps or plain dates. A plain date used as
// the end of a window covers that whole day.
func parseTimestamp(value *string, endOfDay bool) *time.Time {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil
	}
	raw := strings.TrimSpace(*value)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts
		}
	}
	day, err := time.Parse(roster.DateLayout, raw)
	if err != nil {
		return nil
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return &day
}

type passengerDTO struct {
	Category    string      `json:"category"`
	FullName    string      `json:"full_name"`
	DateOfBirth string      `json:"date_of_birth"`
	Gender      string      `json:"gender"`
	IDNumber    *string     `json:"id_number"`
	SingleRoom  roster.Flag `json:"single_room"`
}

func (d passengerDTO) toPassenger() (roster.Passenger, bool) {
	category, err := roster.ParseCategory(d.Category)
	if err != nil {
		return roster.Passenger{}, false
	}
	dob := strings.TrimSpace(d.DateOfBirth)
	if len(dob) > len(roster.DateLayout) {
		dob = dob[:len(roster.DateLayout)]
	}
	p := roster.Passenger{
		Category:    category,
		FullName:    d.FullName,
		DateOfBirth: dob,
		Gender:      roster.Gender(strings.ToUpper(strings.TrimSpace(d.Gender))),
		SingleRoom:  d.SingleRoom,
	}
	if d.IDNumber != nil {
		p.IDNumber = *d.IDNumber
	}
	return p, true
}

// Booking is an existing booking as returned by GET /booking/{id}.
type Booking struct {
	ID             int64
	TourID         int64
	ScheduleID     int64
	CouponID       *int64
	Passengers     []roster.Passenger
	ContactName    string
	ContactEmail   string
	ContactPhone   string
	ContactAddress string
	SpecialRequest string
}

type bookingDTO struct {
	ID             Number         `json:"id"`
	TourID         Number         `json:"tour_id"`
	ScheduleID     Number         `json:"schedule_id"`
	CouponID       *Number        `json:"coupon_id"`
	Passengers     []passengerDTO `json:"passengers"`
	ContactName    string         `json:"contact_name"`
	ContactEmail   string         `json:"contact_email"`
	ContactPhone   string         `json:"contact_phone"`
	ContactAddress string         `json:"contact_address"`
	SpecialRequest string         `json:"special_request"`
}

func (d bookingDTO) toBooking() Booking {
	b := Booking{
		ID:             d.ID.Int64(),
		TourID:         d.TourID.Int64(),
		ScheduleID:     d.ScheduleID.Int64(),
		ContactName:    d.ContactName,
		ContactEmail:   d.ContactEmail,
		ContactPhone:   d.ContactPhone,
		ContactAddress: d.ContactAddress,
		SpecialRequest: d.SpecialRequest,
	}
	if d.CouponID != nil && d.CouponID.Int64() > 0 {
		id := d.CouponID.Int64()
		b.CouponID = &id
	}
	for _, dto := range d.Passengers {
		if p, ok := dto.toPassenger(); ok {
			b.Passengers = append(b.Passengers, p)
		}
	}
	return b
}

// BookingRequest is the body of POST /booking/create and PATCH /booking/update.
type BookingRequest struct {
	BookingID      int64              `json:"booking_id,omitempty"`
	TourID         int64              `json:"tour_id"`
	ScheduleID     int64              `json:"schedule_id"`
	CouponID       *int64             `json:"coupon_id"`
	NumAdults      int                `json:"num_adults"`
	NumChildren    int                `json:"num_children"`
	NumInfants     int                `json:"num_infants"`
	Passengers     []roster.Passenger `json:"passengers"`
	ContactName    string             `json:"contact_name"`
	ContactEmail   string             `json:"contact_email"`
	ContactPhone   string             `json:"contact_phone"`
	ContactAddress string             `json:"contact_address"`
	SpecialRequest string             `json:"special_request"`
}

// Receipt is the backend's answer to a booking submission.
type Receipt struct {
	BookingID int64  `json:"booking_id"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
}

type receiptDTO struct {
	ID        Number `json:"id"`
	BookingID Number `json:"booking_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

func (d receiptDTO) toReceipt() Receipt {
	id := d.BookingID.Int64()
	if id == 0 {
		id = d.ID.Int64()
	}
	return Receipt{BookingID: id, Status: d.Status, Message: d.Message}
}
