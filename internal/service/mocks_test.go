package service

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_cart/cart-processor/internal/domain"
	"github.com/fjod/go_cart/cart-processor/internal/repository"
	"github.com/shopspring/decimal"
)

// mockStore is an in-memory repository.CartStore. failOn injects an error
// for a method name; writes counts every successful mutating call.
type mockStore struct {
	m        sync.Mutex
	carts    map[string]*domain.Cart
	products map[string]*domain.Product
	coupons  map[string]*domain.Coupon // by code
	failOn   map[string]error
	writes   int
}

func newMockStore() *mockStore {
	return &mockStore{
		carts:    map[string]*domain.Cart{},
		products: map[string]*domain.Product{},
		coupons:  map[string]*domain.Coupon{},
		failOn:   map[string]error{},
	}
}

func (s *mockStore) withProduct(id, price string) *mockStore {
	s.products[id] = &domain.Product{ID: id, Name: "product " + id, Price: decimal.RequireFromString(price)}
	return s
}

func (s *mockStore) withCoupon(c domain.Coupon) *mockStore {
	if c.ID == "" {
		c.ID = "coupon-" + c.Code
	}
	s.coupons[c.Code] = &c
	return s
}

func (s *mockStore) withCart(id string) *mockStore {
	s.carts[id] = &domain.Cart{ID: id, CreatedAt: time.Now()}
	return s
}

// withItem puts a line item straight into the cart, bypassing the running total.
func (s *mockStore) withItem(cartID, productID string, quantity int) *mockStore {
	cart := s.carts[cartID]
	cart.Items = append(cart.Items, domain.CartItem{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
		Product:   s.products[productID],
	})
	return s
}

func (s *mockStore) withAttached(cartID, code string) *mockStore {
	coupon := s.coupons[code]
	coupon.CartID = &cartID
	s.carts[cartID].Coupon = coupon
	return s
}

func (s *mockStore) cart(id string) *domain.Cart {
	s.m.Lock()
	defer s.m.Unlock()
	return s.carts[id]
}

func (s *mockStore) writeCount() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.writes
}

func (s *mockStore) fail(method string) error {
	return s.failOn[method]
}

// snapshot copies the cart so callers cannot alias store state.
func snapshot(c *domain.Cart) *domain.Cart {
	cp := *c
	cp.Items = append([]domain.CartItem(nil), c.Items...)
	if c.Coupon != nil {
		coupon := *c.Coupon
		cp.Coupon = &coupon
	}
	return &cp
}

func (s *mockStore) GetCart(_ context.Context, cartID string) (*domain.Cart, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.fail("GetCart"); err != nil {
		return nil, err
	}
	cart, ok := s.carts[cartID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return snapshot(cart), nil
}

func (s *mockStore) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.fail("GetProduct"); err != nil {
		return nil, err
	}
	p, ok := s.products[productID]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return p, nil
}

func (s *mockStore) GetCouponByCode(_ context.Context, code string) (*domain.Coupon, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.fail("GetCouponByCode"); err != nil {
		return nil, err
	}
	c, ok := s.coupons[code]
	if !ok {
		return nil, repository.ErrCouponNotFound
	}
	return c, nil
}

func (s *mockStore) CreateCart(_ context.Context, cartID string) (*domain.Cart, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.fail("CreateCart"); err != nil {
		return nil, err
	}
	if _, ok := s.carts[cartID]; ok {
		return nil, repository.ErrCartExists
	}
	s.carts[cartID] = &domain.Cart{ID: cartID, CreatedAt: time.Now()}
	s.writes++
	return snapshot(s.carts[cartID]), nil
}

func (s *mockStore) DeleteCart(_ context.Context, cartID string) (*domain.Cart, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.fail("DeleteCart"); err != nil {
		return nil, err
	}
	cart, ok := s.carts[cartID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	if cart.Coupon != nil {
		cart.Coupon.CartID = nil
	}
	delete(s.carts, cartID)
	s.writes++
	return snapshot(cart), nil
}

func (s *mockStore) ClearCart(_ context.Context, cartID string) (*domain.Cart, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.fail("ClearCart"); err != nil {
		return nil, err
	}
	cart, ok := s.carts[cartID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	if cart.Coupon != nil {
		cart.Coupon.CartID = nil
	}
	cart.Coupon = nil
	cart.Items = nil
	cart.SubTotal = decimal.Zero
	cart.Total = decimal.Zero
	s.writes++
	return snapshot(cart), nil
}

func (s *mockStore) AddItem(_ context.Context, cartID, productID string, quantity int, amount decimal.Decimal) (*domain.Cart, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.fail("AddItem"); err != nil {
		return nil, err
	}
	cart, ok := s.carts[cartID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	product, ok := s.products[productID]
	if !ok {
		return nil, repository.ErrProductNotFound
	}

	found := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Quantity += quantity
			found = true
		}
	}
	if !found {
		cart.Items = append(cart.Items, domain.CartItem{
			CartID:    cartID,
			ProductID: productID,
			Quantity:  quantity,
			Product:   product,
		})
	}
	cart.SubTotal = cart.SubTotal.Add(amount)
	s.writes++
	return snapshot(cart), nil
}

func (s *mockStore) RemoveItem(_ context.Context, cartID, productID string) (*domain.Cart, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.fail("RemoveItem"); err != nil {
		return nil, err
	}
	cart, ok := s.carts[cartID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	for i, item := range cart.Items {
		if item.ProductID == productID {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			s.writes++
			return snapshot(cart), nil
		}
	}
	return nil, repository.ErrItemNotFound
}

func (s *mockStore) UpdateItemQuantity(_ context.Context, cartID, productID string, quantity int) (*domain.Cart, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.fail("UpdateItemQuantity"); err != nil {
		return nil, err
	}
	cart, ok := s.carts[cartID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Quantity = quantity
			s.writes++
			return snapshot(cart), nil
		}
	}
	return nil, repository.ErrItemNotFound
}

func (s *mockStore) AttachCoupon(_ context.Context, cartID, couponID string) (*domain.Cart, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.fail("AttachCoupon"); err != nil {
		return nil, err
	}
	cart, ok := s.carts[cartID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	if cart.Coupon != nil {
		return nil, repository.ErrCartHasCoupon
	}
	for _, c := range s.coupons {
		if c.ID == couponID {
			if c.CartID != nil && *c.CartID != cartID {
				return nil, repository.ErrCouponInUse
			}
			c.CartID = &cartID
			cart.Coupon = c
			s.writes++
			return snapshot(cart), nil
		}
	}
	return nil, repository.ErrCouponNotFound
}

func (s *mockStore) DetachCoupon(_ context.Context, cartID string) (*domain.Cart, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.fail("DetachCoupon"); err != nil {
		return nil, err
	}
	cart, ok := s.carts[cartID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	if cart.Coupon != nil {
		cart.Coupon.CartID = nil
	}
	cart.Coupon = nil
	s.writes++
	return snapshot(cart), nil
}

func (s *mockStore) UpdateTotals(_ context.Context, cartID string, subTotal, total decimal.Decimal) (*domain.Cart, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.fail("UpdateTotals"); err != nil {
		return nil, err
	}
	cart, ok := s.carts[cartID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	cart.SubTotal = subTotal
	cart.Total = total
	s.writes++
	return snapshot(cart), nil
}
