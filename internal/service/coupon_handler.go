package service

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/cart-processor/internal/domain"
	"github.com/fjod/go_cart/cart-processor/internal/repository"
	"go.uber.org/zap"
)

// CouponHandler moves a cart between NO_COUPON and HAS_COUPON(code).
// A cart holds at most one coupon; a second code is rejected, never swapped in.
type CouponHandler struct {
	store repository.CartStore
}

func NewCouponHandler(store repository.CartStore) *CouponHandler {
	return &CouponHandler{store: store}
}

func (h *CouponHandler) AttachCoupon(ctx context.Context, log *zap.Logger, cartID, code string) (*domain.Cart, error) {
	cart, err := h.store.GetCart(ctx, cartID)
	if err != nil {
		return nil, storeErr(err, "load cart")
	}

	state := cart.CouponState()
	if state.HasCoupon() && state.Code != code {
		return nil, errors.Wrapf(ErrConflictingCoupon, "cart holds %q", state.Code)
	}
	if state.Code == code {
		return nil, ErrAlreadyAttached
	}

	coupon, err := h.store.GetCouponByCode(ctx, code)
	if err != nil {
		return nil, storeErr(err, "load coupon")
	}
	if !coupon.IsActive {
		return nil, ErrCouponInactive
	}
	if coupon.CartID != nil && *coupon.CartID != cartID {
		return nil, errors.Wrapf(ErrCouponInUse, "held by cart %q", *coupon.CartID)
	}

	updated, err := h.store.AttachCoupon(ctx, cartID, coupon.ID)
	if err != nil {
		return nil, storeErr(err, "attach coupon")
	}

	log.Info("coupon attached",
		zap.Stringer("from", state),
		zap.Stringer("to", updated.CouponState()))
	return updated, nil
}

func (h *CouponHandler) DetachCoupon(ctx context.Context, log *zap.Logger, cartID, code string) (*domain.Cart, error) {
	cart, err := h.store.GetCart(ctx, cartID)
	if err != nil {
		return nil, storeErr(err, "load cart")
	}

	if _, err := h.store.GetCouponByCode(ctx, code); err != nil {
		return nil, storeErr(err, "load coupon")
	}

	state := cart.CouponState()
	if state.Code != code {
		return nil, errors.Wrapf(ErrNotAttached, "cart is %s", state)
	}

	updated, err := h.store.DetachCoupon(ctx, cartID)
	if err != nil {
		return nil, storeErr(err, "detach coupon")
	}

	log.Info("coupon detached",
		zap.Stringer("from", state),
		zap.Stringer("to", updated.CouponState()))
	return updated, nil
}
