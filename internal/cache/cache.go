package cache

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/cart-processor/internal/domain"
)

// CartCache holds read-optimised snapshots of carts after their totals have
// been recalculated. The store stays the source of truth.
type CartCache interface {
	Get(ctx context.Context, cartID string) (*domain.Cart, error)
	Set(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, cartID string) error
}

var ErrCacheMiss = errors.New("cache miss")
