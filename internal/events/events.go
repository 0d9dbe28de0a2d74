// Package events defines the cart domain events consumed by the processor.
//
// The set of kinds is closed: every Event is one of the payload structs below
// and consumers switch exhaustively over Kind.
package events

import (
	"github.com/cockroachdb/errors"
)

type Kind string

const (
	KindCartCreated            Kind = "cart.created"
	KindCartDeleted            Kind = "cart.deleted"
	KindCartCleared            Kind = "cart.cleared"
	KindProductAdded           Kind = "cart.product-added"
	KindProductRemoved         Kind = "cart.product-removed"
	KindProductQuantityUpdated Kind = "cart.product-quantity-updated"
	KindCouponAdded            Kind = "cart.coupon-added"
	KindCouponRemoved          Kind = "cart.coupon-removed"
)

// Kinds lists every known kind. The original producer publishes each kind to
// a topic of the same name.
var Kinds = []Kind{
	KindCartCreated,
	KindCartDeleted,
	KindCartCleared,
	KindProductAdded,
	KindProductRemoved,
	KindProductQuantityUpdated,
	KindCouponAdded,
	KindCouponRemoved,
}

// KindHeader names the Kafka header that carries the kind of an event
// published to a topic not named after its kind.
const KindHeader = "event_type"

var (
	ErrUnknownKind    = errors.New("unknown event kind")
	ErrMalformedEvent = errors.New("malformed event")
)

func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownKind, "%q", s)
}

// AffectsTotals reports whether events of this kind are followed by a
// recalculation of the cart totals.
func (k Kind) AffectsTotals() bool {
	switch k {
	case KindProductAdded, KindProductRemoved, KindProductQuantityUpdated,
		KindCouponAdded, KindCouponRemoved:
		return true
	default:
		return false
	}
}

type Event interface {
	Kind() Kind
	AggregateID() string
	Validate() error
	sealed()
}

type CartCreated struct {
	CartID string `json:"cartId"`
}

type CartDeleted struct {
	CartID string `json:"cartId"`
}

type CartCleared struct {
	CartID string `json:"cartId"`
}

type ProductAdded struct {
	CartID    string `json:"cartId"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type ProductRemoved struct {
	CartID    string `json:"cartId"`
	ProductID string `json:"productId"`
}

type ProductQuantityUpdated struct {
	CartID    string `json:"cartId"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type CouponAdded struct {
	CartID     string `json:"cartId"`
	CouponCode string `json:"couponCode"`
}

type CouponRemoved struct {
	CartID     string `json:"cartId"`
	CouponCode string `json:"couponCode"`
}

func (CartCreated) Kind() Kind            { return KindCartCreated }
func (CartDeleted) Kind() Kind            { return KindCartDeleted }
func (CartCleared) Kind() Kind            { return KindCartCleared }
func (ProductAdded) Kind() Kind           { return KindProductAdded }
func (ProductRemoved) Kind() Kind         { return KindProductRemoved }
func (ProductQuantityUpdated) Kind() Kind { return KindProductQuantityUpdated }
func (CouponAdded) Kind() Kind            { return KindCouponAdded }
func (CouponRemoved) Kind() Kind          { return KindCouponRemoved }

func (e CartCreated) AggregateID() string            { return e.CartID }
func (e CartDeleted) AggregateID() string            { return e.CartID }
func (e CartCleared) AggregateID() string            { return e.CartID }
func (e ProductAdded) AggregateID() string           { return e.CartID }
func (e ProductRemoved) AggregateID() string         { return e.CartID }
func (e ProductQuantityUpdated) AggregateID() string { return e.CartID }
func (e CouponAdded) AggregateID() string            { return e.CartID }
func (e CouponRemoved) AggregateID() string          { return e.CartID }

func (CartCreated) sealed()            {}
func (CartDeleted) sealed()            {}
func (CartCleared) sealed()            {}
func (ProductAdded) sealed()           {}
func (ProductRemoved) sealed()         {}
func (ProductQuantityUpdated) sealed() {}
func (CouponAdded) sealed()            {}
func (CouponRemoved) sealed()          {}

// Validate only checks that identifiers are present. Quantity rules belong to
// the handlers so that they are reported as domain failures.
func (e CartCreated) Validate() error { return requireCart(e.CartID) }
func (e CartDeleted) Validate() error { return requireCart(e.CartID) }
func (e CartCleared) Validate() error { return requireCart(e.CartID) }

func (e ProductAdded) Validate() error {
	return requireProduct(e.CartID, e.ProductID)
}

func (e ProductRemoved) Validate() error {
	return requireProduct(e.CartID, e.ProductID)
}

func (e ProductQuantityUpdated) Validate() error {
	return requireProduct(e.CartID, e.ProductID)
}

func (e CouponAdded) Validate() error {
	return requireCoupon(e.CartID, e.CouponCode)
}

func (e CouponRemoved) Validate() error {
	return requireCoupon(e.CartID, e.CouponCode)
}

func requireCart(cartID string) error {
	if cartID == "" {
		return errors.Wrap(ErrMalformedEvent, "missing cartId")
	}
	return nil
}

func requireProduct(cartID, productID string) error {
	if err := requireCart(cartID); err != nil {
		return err
	}
	if productID == "" {
		return errors.Wrap(ErrMalformedEvent, "missing productId")
	}
	return nil
}

func requireCoupon(cartID, code string) error {
	if err := requireCart(cartID); err != nil {
		return err
	}
	if code == "" {
		return errors.Wrap(ErrMalformedEvent, "missing couponCode")
	}
	return nil
}
