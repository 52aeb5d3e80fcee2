package coupon

import (
	"errors"
	"math"
	"strings"
	"time"
)

var (
	// ErrMinimumSpendUnmet indicates the order total did not meet the coupon requirement.
	ErrMinimumSpendUnmet = errors.New("coupon minimum order amount not met")
	// ErrCouponInactive is returned when the coupon's validity window has not started.
	ErrCouponInactive = errors.New("coupon not active yet")
	// ErrCouponExpired is returned when the coupon's validity window has ended.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrUnknownDiscountType is returned for a discount type other than FIXED or PERCENTAGE.
	ErrUnknownDiscountType = errors.New("coupon discount type not supported")
)

// DiscountType selects how the discount value is interpreted.
type DiscountType string

const (
	Fixed      DiscountType = "FIXED"
	Percentage DiscountType = "PERCENTAGE"
)

// Coupon is a catalog entry as served by the backend.
type Coupon struct {
	ID                int64        `json:"id"`
	Code              string       `json:"code"`
	DiscountType      DiscountType `json:"discount_type"`
	DiscountValue     float64      `json:"discount_value"`
	MinOrderAmount    int64        `json:"min_order_amount"`
	MaxDiscountAmount *int64       `json:"max_discount_amount,omitempty"`
	ValidFrom         *time.Time   `json:"valid_from,omitempty"`
	ValidTo           *time.Time   `json:"valid_to,omitempty"`
}

// Normalize canonicalises the discount type and trims the code.
func (c Coupon) Normalize() Coupon {
	c.Code = strings.TrimSpace(c.Code)
	switch strings.ToUpper(strings.TrimSpace(string(c.DiscountType))) {
	case "FIXED", "AMOUNT", "FIXED_AMOUNT":
		c.DiscountType = Fixed
	case "PERCENTAGE", "PERCENT":
		c.DiscountType = Percentage
	}
	return c
}

// Eligible reports whether the coupon still applies to subtotal.
func (c Coupon) Eligible(subtotal int64) error {
	if subtotal < c.MinOrderAmount {
		return ErrMinimumSpendUnmet
	}
	return nil
}

// Active checks the validity window at the provided instant.
func (c Coupon) Active(now time.Time) error {
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return ErrCouponInactive
	}
	if c.ValidTo != nil && now.After(*c.ValidTo) {
		return ErrCouponExpired
	}
	return nil
}

// Validate runs the checks applied when a coupon is first selected.
func (c Coupon) Validate(now time.Time, subtotal int64) error {
	switch c.DiscountType {
	case Fixed, Percentage:
	default:
		return ErrUnknownDiscountType
	}
	if err := c.Eligible(subtotal); err != nil {
		return err
	}
	return c.Active(now)
}

// Compute determines the discount for subtotal. Percentage discounts are
// rounded down to whole currency units and clamped to MaxDiscountAmount when
// set. The discount value itself is trusted as served by the backend.
func Compute(subtotal int64, c Coupon) int64 {
	var discount int64
	switch c.DiscountType {
	case Fixed:
		discount = int64(math.Round(c.DiscountValue))
	case Percentage:
		discount = int64(math.Floor(float64(subtotal) * c.DiscountValue / 100))
		if c.MaxDiscountAmount != nil && discount > *c.MaxDiscountAmount {
			discount = *c.MaxDiscountAmount
		}
	}
	return discount
}

// FindByID returns the catalog entry with the given id.
func FindByID(catalog []Coupon, id int64) (Coupon, bool) {
	for _, c := range catalog {
		if c.ID == id {
			return c, true
		}
	}
	return Coupon{}, false
}

// FindByCode returns the catalog entry matching code case-insensitively.
func FindByCode(catalog []Coupon, code string) (Coupon, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Coupon{}, false
	}
	for _, c := range catalog {
		if strings.EqualFold(strings.TrimSpace(c.Code), code) {
			return c, true
		}
	}
	return Coupon{}, false
}
