package repository

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/cart-processor/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrCartExists      = errors.New("cart already exists")
	ErrProductNotFound = errors.New("product not found")
	ErrCouponNotFound  = errors.New("coupon not found")
	ErrItemNotFound    = errors.New("item not found in cart")
	ErrCartHasCoupon   = errors.New("cart already has a coupon attached")
	ErrCouponInUse     = errors.New("coupon is attached to another cart")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// CartStore is the storage collaborator of the processor. Every method is
// atomic on its own; there are no multi-call transactions.
// Carts are always returned fully loaded: line items with their product and
// the attached coupon, if any.
type CartStore interface {
	GetCart(ctx context.Context, cartID string) (*domain.Cart, error)
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error)

	CreateCart(ctx context.Context, cartID string) (*domain.Cart, error)
	DeleteCart(ctx context.Context, cartID string) (*domain.Cart, error)
	ClearCart(ctx context.Context, cartID string) (*domain.Cart, error)

	// AddItem creates the line item or increments its quantity, and adds
	// amount to the running sub_total of the cart.
	AddItem(ctx context.Context, cartID, productID string, quantity int, amount decimal.Decimal) (*domain.Cart, error)
	RemoveItem(ctx context.Context, cartID, productID string) (*domain.Cart, error)
	UpdateItemQuantity(ctx context.Context, cartID, productID string, quantity int) (*domain.Cart, error)

	// AttachCoupon never takes a coupon away from another cart.
	AttachCoupon(ctx context.Context, cartID, couponID string) (*domain.Cart, error)
	DetachCoupon(ctx context.Context, cartID string) (*domain.Cart, error)

	UpdateTotals(ctx context.Context, cartID string, subTotal, total decimal.Decimal) (*domain.Cart, error)
}

// IsDomainMiss reports whether err is one of the store's own answers about
// the data, as opposed to an infrastructure failure.
func IsDomainMiss(err error) bool {
	return errors.IsAny(err,
		ErrCartNotFound,
		ErrCartExists,
		ErrProductNotFound,
		ErrCouponNotFound,
		ErrItemNotFound,
		ErrCartHasCoupon,
		ErrCouponInUse,
	)
}
