package service

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/cart-processor/internal/domain"
	"github.com/fjod/go_cart/cart-processor/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartHandler applies the structural cart events to the store.
type CartHandler struct {
	store repository.CartStore
}

func NewCartHandler(store repository.CartStore) *CartHandler {
	return &CartHandler{store: store}
}

// CreateCart inserts an empty cart. A cart that already exists is returned
// together with an error matching ErrConflict, which signals a duplicate
// delivery rather than a failure.
func (h *CartHandler) CreateCart(ctx context.Context, log *zap.Logger, cartID string) (*domain.Cart, error) {
	cart, err := h.store.CreateCart(ctx, cartID)
	if err == nil {
		log.Debug("cart created")
		return cart, nil
	}

	err = storeErr(err, "create cart")
	if !errors.Is(err, ErrConflict) {
		return nil, err
	}

	existing, getErr := h.store.GetCart(ctx, cartID)
	if getErr != nil {
		return nil, storeErr(getErr, "load existing cart")
	}
	log.Info("cart already exists, treating as duplicate delivery")
	return existing, err
}

func (h *CartHandler) DeleteCart(ctx context.Context, log *zap.Logger, cartID string) (*domain.Cart, error) {
	cart, err := h.store.DeleteCart(ctx, cartID)
	if err != nil {
		return nil, storeErr(err, "delete cart")
	}
	log.Debug("cart deleted", zap.Int("items", len(cart.Items)))
	return cart, nil
}

// ClearCart zeroes the totals, detaches the coupon and drops every line item.
func (h *CartHandler) ClearCart(ctx context.Context, log *zap.Logger, cartID string) (*domain.Cart, error) {
	cart, err := h.store.ClearCart(ctx, cartID)
	if err != nil {
		return nil, storeErr(err, "clear cart")
	}
	log.Debug("cart cleared")
	return cart, nil
}

// AddProduct creates the line item or increments its quantity. The running
// sub_total is bumped by price*quantity; the total calculator reconciles it.
func (h *CartHandler) AddProduct(ctx context.Context, log *zap.Logger, cartID, productID string, quantity int) (*domain.Cart, error) {
	if err := checkQuantity(int64(quantity)); err != nil {
		return nil, err
	}

	current, err := h.store.GetCart(ctx, cartID)
	if err != nil {
		return nil, storeErr(err, "load cart")
	}
	if item, ok := current.Item(productID); ok {
		if err := checkQuantity(int64(item.Quantity) + int64(quantity)); err != nil {
			return nil, errors.Wrap(err, "after increment")
		}
	}

	product, err := h.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, storeErr(err, "load product")
	}

	amount := product.Price.Mul(decimal.NewFromInt(int64(quantity)))
	cart, err := h.store.AddItem(ctx, cartID, productID, quantity, amount)
	if err != nil {
		return nil, storeErr(err, "add item")
	}

	log.Debug("product added",
		zap.Stringer("amount", amount),
		zap.Stringer("sub_total", cart.SubTotal))
	return cart, nil
}

func (h *CartHandler) RemoveProduct(ctx context.Context, log *zap.Logger, cartID, productID string) (*domain.Cart, error) {
	cart, err := h.store.RemoveItem(ctx, cartID, productID)
	if err != nil {
		return nil, storeErr(err, "remove item")
	}
	log.Debug("product removed")
	return cart, nil
}

func (h *CartHandler) UpdateQuantity(ctx context.Context, log *zap.Logger, cartID, productID string, quantity int) (*domain.Cart, error) {
	if err := checkQuantity(int64(quantity)); err != nil {
		return nil, err
	}

	cart, err := h.store.UpdateItemQuantity(ctx, cartID, productID, quantity)
	if err != nil {
		return nil, storeErr(err, "update item quantity")
	}
	log.Debug("product quantity updated", zap.Int("quantity", quantity))
	return cart, nil
}

// checkQuantity bounds a line quantity to what the store column can hold.
func checkQuantity(quantity int64) error {
	if quantity < 1 || quantity > math.MaxInt32 {
		return errors.Wrapf(ErrInvalidQuantity, "got %d", quantity)
	}
	return nil
}
