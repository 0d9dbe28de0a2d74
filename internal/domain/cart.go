package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	SubTotal  decimal.Decimal `json:"sub_total"`
	Total     decimal.Decimal `json:"total"`
	Items     []CartItem      `json:"cart_products"`
	Coupon    *Coupon         `json:"coupon,omitempty"`
}

// CartItem is a line item keyed by (CartID, ProductID). Product carries the
// catalog data needed for pricing and is nil when the store did not load it.
type CartItem struct {
	CartID    string    `json:"cart_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Product   *Product  `json:"product,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Item returns the line item for productID, if present.
func (c *Cart) Item(productID string) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return CartItem{}, false
}

// CouponState reports where the cart is in the coupon attachment state machine.
func (c *Cart) CouponState() CouponState {
	if c.Coupon == nil {
		return CouponState{}
	}
	return CouponState{Code: c.Coupon.Code}
}

// CouponState is either NO_COUPON (zero value) or HAS_COUPON(Code).
type CouponState struct {
	Code string
}

func (s CouponState) HasCoupon() bool {
	return s.Code != ""
}

func (s CouponState) String() string {
	if !s.HasCoupon() {
		return "NO_COUPON"
	}
	return "HAS_COUPON(" + s.Code + ")"
}
