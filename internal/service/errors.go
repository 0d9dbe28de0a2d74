package service

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/cart-processor/internal/repository"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrAlreadyAttached      = errors.New("coupon already exists on cart")
	ErrConflictingCoupon    = errors.New("another coupon already exists on cart")
	ErrNotAttached          = errors.New("coupon not on cart")
	ErrCouponInactive       = errors.New("coupon is not active")
	ErrCouponNotFound       = errors.New("coupon not found")
	ErrCouponInUse          = errors.New("coupon is attached to another cart")
	ErrDiscountExceedsTotal = errors.New("total is less than discount")
	ErrInvalidQuantity      = errors.New("quantity must be between 1 and 2147483647")
	ErrStorageFailure       = errors.New("storage failure")
)

// Specific misses, all matching ErrNotFound.
var (
	ErrCartNotFound     = fmt.Errorf("cart %w", ErrNotFound)
	ErrProductNotFound  = fmt.Errorf("product %w", ErrNotFound)
	ErrLineItemNotFound = fmt.Errorf("line item %w", ErrNotFound)
)

// storeErr translates a store error into the handler taxonomy. Anything the
// store did not answer explicitly is a storage failure.
func storeErr(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrCartNotFound):
		return ErrCartNotFound
	case errors.Is(err, repository.ErrProductNotFound):
		return ErrProductNotFound
	case errors.Is(err, repository.ErrItemNotFound):
		return ErrLineItemNotFound
	case errors.Is(err, repository.ErrCouponNotFound):
		return ErrCouponNotFound
	case errors.Is(err, repository.ErrCartExists):
		return classed(ErrConflict, op, err)
	case errors.Is(err, repository.ErrCartHasCoupon):
		return classed(ErrConflictingCoupon, op, err)
	case errors.Is(err, repository.ErrCouponInUse):
		return classed(ErrCouponInUse, op, err)
	default:
		return classed(ErrStorageFailure, op, err)
	}
}

// classed keeps both the taxonomy sentinel and the store cause in the chain.
func classed(class error, op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, class, err)
}

type Disposition int

const (
	// Ack means the step succeeded.
	Ack Disposition = iota
	// Benign failures are duplicate-delivery signals; the event is done.
	Benign
	// Retry failures may succeed on redelivery.
	Retry
	// Reject failures will fail the same way every time.
	Reject
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Benign:
		return "benign"
	case Retry:
		return "retry"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// Classify decides what the consumer should do with a failed step.
// retryNotFound controls whether misses, typically caused by out-of-order
// delivery, are retried or treated as poison.
func Classify(err error, retryNotFound bool) Disposition {
	switch {
	case err == nil:
		return Ack
	case errors.IsAny(err, ErrConflict, ErrAlreadyAttached):
		return Benign
	case errors.Is(err, ErrStorageFailure), errors.Is(err, context.DeadlineExceeded):
		return Retry
	case errors.Is(err, ErrNotFound):
		if retryNotFound {
			return Retry
		}
		return Reject
	default:
		return Reject
	}
}
