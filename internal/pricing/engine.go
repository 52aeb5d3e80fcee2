package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/tourbook/internal/coupon"
	"github.com/noah-isme/tourbook/internal/roster"
)

// Money represents a monetary value in whole currency units.
type Money = int64

// ErrCouponRejected wraps the reason a coupon could not be adopted at selection.
var ErrCouponRejected = errors.New("coupon rejected")

// UnitPrices are the per-category prices of a schedule plus the tour's single
// room surcharge.
type UnitPrices struct {
	Adult               Money `json:"price_adult"`
	Child               Money `json:"price_child"`
	Infant              Money `json:"price_infant"`
	SingleRoomSurcharge Money `json:"single_room_surcharge"`
}

// Quote is the derived pricing of a roster.
type Quote struct {
	Subtotal Money `json:"subtotal"`
	Discount Money `json:"discount_amount"`
	Total    Money `json:"final_total"`
}

// Subtotal sums the category line totals and the single room surcharges.
func Subtotal(c roster.Counts, p UnitPrices) Money {
	return Money(c.Adults)*p.Adult +
		Money(c.Children)*p.Child +
		Money(c.Infants)*p.Infant +
		Money(c.SingleRooms)*p.SingleRoomSurcharge
}

// Compute prices the counts with an optional coupon. It performs no
// eligibility check; callers that hold a coupon go through Quoter.
func Compute(c roster.Counts, p UnitPrices, active *coupon.Coupon) Quote {
	subtotal := Subtotal(c, p)
	var discount Money
	if active != nil {
		discount = coupon.Compute(subtotal, *active)
	}
	return Quote{Subtotal: subtotal, Discount: discount, Total: subtotal - discount}
}

// Revocation describes a coupon cleared because the subtotal fell below its minimum.
type Revocation struct {
	Coupon   coupon.Coupon `json:"coupon"`
	Subtotal Money         `json:"subtotal"`
}

// Message renders the notice shown to the user.
func (r Revocation) Message() string {
	return fmt.Sprintf("coupon %s no longer applies: order total %d is below the minimum of %d",
		r.Coupon.Code, r.Subtotal, r.Coupon.MinOrderAmount)
}

// Quoter holds the active coupon and keeps it honest as the subtotal changes.
// It is not safe for concurrent use.
type Quoter struct {
	Active *coupon.Coupon `json:"active_coupon,omitempty"`

	// OnRevoke is called after a coupon has been cleared by Recompute.
	OnRevoke func(Revocation) `json:"-"`
	// Now is used for validity window checks at selection. Defaults to time.Now.
	Now func() time.Time `json:"-"`
}

func (q *Quoter) now() time.Time {
	if q != nil && q.Now != nil {
		return q.Now()
	}
	return time.Now()
}

// Select adopts c as the active coupon when it is eligible for subtotal.
// A rejected coupon leaves the quoter untouched.
func (q *Quoter) Select(c coupon.Coupon, subtotal Money) error {
	c = c.Normalize()
	if err := c.Validate(q.now(), subtotal); err != nil {
		return fmt.Errorf("%w: %w", ErrCouponRejected, err)
	}
	q.Active = &c
	return nil
}

// Remove clears the active coupon.
func (q *Quoter) Remove() {
	q.Active = nil
}

// Recompute prices the counts. An active coupon whose minimum order amount is
// no longer met is cleared before the quote is produced.
func (q *Quoter) Recompute(c roster.Counts, p UnitPrices) Quote {
	subtotal := Subtotal(c, p)
	if q.Active != nil {
		if err := q.Active.Eligible(subtotal); err != nil {
			revoked := *q.Active
			q.Active = nil
			if q.OnRevoke != nil {
				q.OnRevoke(Revocation{Coupon: revoked, Subtotal: subtotal})
			}
		}
	}
	return Compute(c, p, q.Active)
}
