package service

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/cart-processor/internal/domain"
	"github.com/fjod/go_cart/cart-processor/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// CalculateTotals derives (subTotal, total) from a fully loaded cart.
//
// A coupon has exactly one level, so at most one of the product and cart
// adjustments applies. A product level coupon whose product is not in the
// cart has no effect.
func CalculateTotals(cart *domain.Cart) (subTotal, total decimal.Decimal, err error) {
	for _, item := range cart.Items {
		if item.Product == nil {
			return decimal.Zero, decimal.Zero, errors.Newf("line item %s has no product loaded", item.ProductID)
		}
		subTotal = subTotal.Add(lineAmount(item))
	}
	total = subTotal

	coupon := cart.Coupon
	if coupon == nil {
		return subTotal, total, nil
	}

	if coupon.Type == domain.CouponTypeFixed && coupon.Level == domain.CouponLevelCart && subTotal.LessThan(coupon.Discount) {
		return decimal.Zero, decimal.Zero, errors.Wrapf(ErrDiscountExceedsTotal,
			"sub_total %s, discount %s", subTotal, coupon.Discount)
	}

	switch coupon.Level {
	case domain.CouponLevelProduct:
		for _, item := range cart.Items {
			if !coupon.TargetsProduct(item.ProductID) {
				continue
			}
			if coupon.Type == domain.CouponTypeFixed {
				total = total.Sub(coupon.Discount)
			} else {
				total = total.Sub(lineAmount(item).Mul(coupon.Discount).Div(hundred))
			}
		}
	case domain.CouponLevelCart:
		if coupon.Type == domain.CouponTypeFixed {
			total = total.Sub(coupon.Discount)
		} else {
			total = total.Mul(decimal.NewFromInt(1).Sub(coupon.Discount.Div(hundred)))
		}
	}

	return subTotal, total, nil
}

func lineAmount(item domain.CartItem) decimal.Decimal {
	return item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

// TotalCalculator recomputes and persists the totals of a cart. The store is
// the source of truth; the result of CalculateTotals replaces whatever running
// totals the mutations left behind.
type TotalCalculator struct {
	store repository.CartStore
}

func NewTotalCalculator(store repository.CartStore) *TotalCalculator {
	return &TotalCalculator{store: store}
}

func (c *TotalCalculator) Recalculate(ctx context.Context, log *zap.Logger, cartID string) (*domain.Cart, error) {
	cart, err := c.store.GetCart(ctx, cartID)
	if err != nil {
		return nil, storeErr(err, "load cart")
	}

	subTotal, total, err := CalculateTotals(cart)
	if err != nil {
		return nil, err
	}

	updated, err := c.store.UpdateTotals(ctx, cartID, subTotal, total)
	if err != nil {
		return nil, storeErr(err, "update totals")
	}

	log.Debug("cart totals recalculated",
		zap.Stringer("sub_total", subTotal),
		zap.Stringer("total", total))
	return updated, nil
}
