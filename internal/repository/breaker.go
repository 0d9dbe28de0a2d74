package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/cart-processor/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var ErrStoreUnavailable = errors.New("cart store unavailable")

type BreakerSettings struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	ConsecutiveFails uint32
}

// BreakerStore fails fast with ErrStoreUnavailable while the underlying
// store keeps failing. Misses such as ErrCartNotFound are answers, not
// failures, and never trip the breaker.
type BreakerStore struct {
	next CartStore
	cb   *gobreaker.CircuitBreaker[any]
}

func NewBreakerStore(next CartStore, s BreakerSettings, log *zap.Logger) *BreakerStore {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "cart-store",
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFails
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsDomainMiss(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})
	return &BreakerStore{next: next, cb: cb}
}

func (b *BreakerStore) GetCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	return call(b.cb, func() (*domain.Cart, error) { return b.next.GetCart(ctx, cartID) })
}

func (b *BreakerStore) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return call(b.cb, func() (*domain.Product, error) { return b.next.GetProduct(ctx, productID) })
}

func (b *BreakerStore) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	return call(b.cb, func() (*domain.Coupon, error) { return b.next.GetCouponByCode(ctx, code) })
}

func (b *BreakerStore) CreateCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	return call(b.cb, func() (*domain.Cart, error) { return b.next.CreateCart(ctx, cartID) })
}

func (b *BreakerStore) DeleteCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	return call(b.cb, func() (*domain.Cart, error) { return b.next.DeleteCart(ctx, cartID) })
}

func (b *BreakerStore) ClearCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	return call(b.cb, func() (*domain.Cart, error) { return b.next.ClearCart(ctx, cartID) })
}

func (b *BreakerStore) AddItem(ctx context.Context, cartID, productID string, quantity int, amount decimal.Decimal) (*domain.Cart, error) {
	return call(b.cb, func() (*domain.Cart, error) {
		return b.next.AddItem(ctx, cartID, productID, quantity, amount)
	})
}

func (b *BreakerStore) RemoveItem(ctx context.Context, cartID, productID string) (*domain.Cart, error) {
	return call(b.cb, func() (*domain.Cart, error) { return b.next.RemoveItem(ctx, cartID, productID) })
}

func (b *BreakerStore) UpdateItemQuantity(ctx context.Context, cartID, productID string, quantity int) (*domain.Cart, error) {
	return call(b.cb, func() (*domain.Cart, error) {
		return b.next.UpdateItemQuantity(ctx, cartID, productID, quantity)
	})
}

func (b *BreakerStore) AttachCoupon(ctx context.Context, cartID, couponID string) (*domain.Cart, error) {
	return call(b.cb, func() (*domain.Cart, error) { return b.next.AttachCoupon(ctx, cartID, couponID) })
}

func (b *BreakerStore) DetachCoupon(ctx context.Context, cartID string) (*domain.Cart, error) {
	return call(b.cb, func() (*domain.Cart, error) { return b.next.DetachCoupon(ctx, cartID) })
}

func (b *BreakerStore) UpdateTotals(ctx context.Context, cartID string, subTotal, total decimal.Decimal) (*domain.Cart, error) {
	return call(b.cb, func() (*domain.Cart, error) {
		return b.next.UpdateTotals(ctx, cartID, subTotal, total)
	})
}

func call[T any](cb *gobreaker.CircuitBreaker[any], fn func() (T, error)) (T, error) {
	var zero T
	v, err := cb.Execute(func() (any, error) {
		res, err := fn()
		return res, err
	})
	if err != nil {
		if errors.IsAny(err, gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		return zero, err
	}
	return v.(T), nil
}
