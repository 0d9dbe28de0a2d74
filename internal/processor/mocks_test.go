package processor

import (
	"context"
	"sync"

	"github.com/fjod/go_cart/cart-processor/internal/domain"
	"go.uber.org/zap"
)

// mockHandlers implements CartMutator, CouponMutator and Recalculator. Every
// call is recorded by method name; errs injects a failure per method.
type mockHandlers struct {
	m     sync.Mutex
	calls []string
	errs  map[string]error
}

func newMockHandlers() *mockHandlers {
	return &mockHandlers{errs: map[string]error{}}
}

func (h *mockHandlers) record(method, cartID string) (*domain.Cart, error) {
	h.m.Lock()
	defer h.m.Unlock()
	h.calls = append(h.calls, method)
	if err := h.errs[method]; err != nil {
		return nil, err
	}
	return &domain.Cart{ID: cartID}, nil
}

func (h *mockHandlers) called() []string {
	h.m.Lock()
	defer h.m.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *mockHandlers) CreateCart(_ context.Context, _ *zap.Logger, cartID string) (*domain.Cart, error) {
	return h.record("CreateCart", cartID)
}

func (h *mockHandlers) DeleteCart(_ context.Context, _ *zap.Logger, cartID string) (*domain.Cart, error) {
	return h.record("DeleteCart", cartID)
}

func (h *mockHandlers) ClearCart(_ context.Context, _ *zap.Logger, cartID string) (*domain.Cart, error) {
	return h.record("ClearCart", cartID)
}

func (h *mockHandlers) AddProduct(_ context.Context, _ *zap.Logger, cartID, _ string, _ int) (*domain.Cart, error) {
	return h.record("AddProduct", cartID)
}

func (h *mockHandlers) RemoveProduct(_ context.Context, _ *zap.Logger, cartID, _ string) (*domain.Cart, error) {
	return h.record("RemoveProduct", cartID)
}

func (h *mockHandlers) UpdateQuantity(_ context.Context, _ *zap.Logger, cartID, _ string, _ int) (*domain.Cart, error) {
	return h.record("UpdateQuantity", cartID)
}

func (h *mockHandlers) AttachCoupon(_ context.Context, _ *zap.Logger, cartID, _ string) (*domain.Cart, error) {
	return h.record("AttachCoupon", cartID)
}

func (h *mockHandlers) DetachCoupon(_ context.Context, _ *zap.Logger, cartID, _ string) (*domain.Cart, error) {
	return h.record("DetachCoupon", cartID)
}

func (h *mockHandlers) Recalculate(_ context.Context, _ *zap.Logger, cartID string) (*domain.Cart, error) {
	return h.record("Recalculate", cartID)
}

type mockCache struct {
	m       sync.Mutex
	set     []string
	deleted []string
	err     error
}

func (c *mockCache) Get(context.Context, string) (*domain.Cart, error) {
	return nil, nil
}

func (c *mockCache) Set(_ context.Context, cart *domain.Cart) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.set = append(c.set, cart.ID)
	return c.err
}

func (c *mockCache) Delete(_ context.Context, cartID string) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.deleted = append(c.deleted, cartID)
	return c.err
}
