package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CouponType string

const (
	CouponTypeFixed      CouponType = "FIXED"
	CouponTypePercentage CouponType = "PERCENTAGE"
)

type CouponLevel string

const (
	CouponLevelCart    CouponLevel = "CART"
	CouponLevelProduct CouponLevel = "PRODUCT"
)

// Coupon is created administratively and only ever connected to or
// disconnected from a cart by the processor. ProductID is set for
// PRODUCT level coupons; CartID is set while the coupon is attached.
type Coupon struct {
	ID        string          `json:"id"`
	Code      string          `json:"code"`
	Discount  decimal.Decimal `json:"discount"`
	Type      CouponType      `json:"type"`
	Level     CouponLevel     `json:"level"`
	ProductID *string         `json:"product_id,omitempty"`
	IsActive  bool            `json:"is_active"`
	CartID    *string         `json:"cart_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// TargetsProduct reports whether a PRODUCT level coupon points at productID.
func (c *Coupon) TargetsProduct(productID string) bool {
	return c.Level == CouponLevelProduct && c.ProductID != nil && *c.ProductID == productID
}
