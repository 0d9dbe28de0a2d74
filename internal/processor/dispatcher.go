// Package processor routes decoded cart events to the handlers that apply
// them and keeps the cart totals and the snapshot cache in step.
package processor

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/cart-processor/internal/cache"
	"github.com/fjod/go_cart/cart-processor/internal/domain"
	"github.com/fjod/go_cart/cart-processor/internal/events"
	"github.com/fjod/go_cart/cart-processor/internal/logger"
	"github.com/fjod/go_cart/cart-processor/internal/service"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/fjod/go_cart/cart-processor/internal/processor"

type CartMutator interface {
	CreateCart(ctx context.Context, log *zap.Logger, cartID string) (*domain.Cart, error)
	DeleteCart(ctx context.Context, log *zap.Logger, cartID string) (*domain.Cart, error)
	ClearCart(ctx context.Context, log *zap.Logger, cartID string) (*domain.Cart, error)
	AddProduct(ctx context.Context, log *zap.Logger, cartID, productID string, quantity int) (*domain.Cart, error)
	RemoveProduct(ctx context.Context, log *zap.Logger, cartID, productID string) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, log *zap.Logger, cartID, productID string, quantity int) (*domain.Cart, error)
}

type CouponMutator interface {
	AttachCoupon(ctx context.Context, log *zap.Logger, cartID, code string) (*domain.Cart, error)
	DetachCoupon(ctx context.Context, log *zap.Logger, cartID, code string) (*domain.Cart, error)
}

type Recalculator interface {
	Recalculate(ctx context.Context, log *zap.Logger, cartID string) (*domain.Cart, error)
}

// Outcome reports both steps of an event independently. Recalculated is set
// when the recalculation step ran, whatever its result.
type Outcome struct {
	Mutation      error
	Recalculation error
	Recalculated  bool
	Cart          *domain.Cart
}

func (o Outcome) Failed() bool {
	return o.Mutation != nil || o.Recalculation != nil
}

// Err combines both step errors, or returns nil when neither failed.
func (o Outcome) Err() error {
	return errors.Join(o.Mutation, o.Recalculation)
}

type Dispatcher struct {
	carts   CartMutator
	coupons CouponMutator
	totals  Recalculator
	cache   cache.CartCache
	tracer  trace.Tracer
}

// NewDispatcher wires the handlers together. snapshots may be nil, in which
// case no cache is maintained.
func NewDispatcher(carts CartMutator, coupons CouponMutator, totals Recalculator, snapshots cache.CartCache) *Dispatcher {
	return &Dispatcher{
		carts:   carts,
		coupons: coupons,
		totals:  totals,
		cache:   snapshots,
		tracer:  otel.Tracer(tracerName),
	}
}

// Dispatch applies the event and, for product and coupon kinds, recalculates
// the cart totals even when the mutation failed. Neither step is rolled back
// when the other fails.
func (d *Dispatcher) Dispatch(ctx context.Context, log *zap.Logger, ev events.Event) Outcome {
	ctx, span := d.startSpan(ctx, "dispatch", ev)
	defer span.End()
	log = logger.WithTrace(ctx, log)

	log.Info("event received", zap.Any("payload", ev))

	var out Outcome
	out.Cart, out.Mutation = d.mutate(ctx, log, ev)
	if out.Mutation != nil {
		log.Warn("event mutation failed", zap.Error(out.Mutation))
		span.RecordError(out.Mutation)
	}

	if ev.Kind().AffectsTotals() {
		d.recalculate(ctx, log, ev, &out)
		if out.Recalculation != nil {
			span.RecordError(out.Recalculation)
		}
	}

	if out.Failed() {
		span.SetStatus(codes.Error, out.Err().Error())
	}
	d.refreshCache(ctx, log, ev, out)
	return out
}

// Recalculate runs only the recalculation step for ev. It is used to retry a
// failed recalculation without reapplying a mutation that already succeeded.
func (d *Dispatcher) Recalculate(ctx context.Context, log *zap.Logger, ev events.Event) Outcome {
	ctx, span := d.startSpan(ctx, "recalculate", ev)
	defer span.End()
	log = logger.WithTrace(ctx, log)

	var out Outcome
	if !ev.Kind().AffectsTotals() {
		return out
	}

	d.recalculate(ctx, log, ev, &out)
	if out.Recalculation != nil {
		span.RecordError(out.Recalculation)
		span.SetStatus(codes.Error, out.Recalculation.Error())
	}
	d.refreshCache(ctx, log, ev, out)
	return out
}

// Redispatch retries ev after previous failed. A mutation that failed
// retryably is applied again together with the recalculation; otherwise the
// mutation is kept as it was and only the recalculation runs.
func (d *Dispatcher) Redispatch(ctx context.Context, log *zap.Logger, ev events.Event, previous Outcome, retryNotFound bool) Outcome {
	if service.Classify(previous.Mutation, retryNotFound) == service.Retry {
		return d.Dispatch(ctx, log, ev)
	}

	again := d.Recalculate(ctx, log, ev)
	out := previous
	out.Recalculated = again.Recalculated
	out.Recalculation = again.Recalculation
	if again.Cart != nil {
		out.Cart = again.Cart
	}
	return out
}

func (d *Dispatcher) mutate(ctx context.Context, log *zap.Logger, ev events.Event) (*domain.Cart, error) {
	switch e := ev.(type) {
	case events.CartCreated:
		return d.carts.CreateCart(ctx, log, e.CartID)
	case events.CartDeleted:
		return d.carts.DeleteCart(ctx, log, e.CartID)
	case events.CartCleared:
		return d.carts.ClearCart(ctx, log, e.CartID)
	case events.ProductAdded:
		return d.carts.AddProduct(ctx, log, e.CartID, e.ProductID, e.Quantity)
	case events.ProductRemoved:
		return d.carts.RemoveProduct(ctx, log, e.CartID, e.ProductID)
	case events.ProductQuantityUpdated:
		return d.carts.UpdateQuantity(ctx, log, e.CartID, e.ProductID, e.Quantity)
	case events.CouponAdded:
		return d.coupons.AttachCoupon(ctx, log, e.CartID, e.CouponCode)
	case events.CouponRemoved:
		return d.coupons.DetachCoupon(ctx, log, e.CartID, e.CouponCode)
	default:
		return nil, errors.Wrapf(events.ErrUnknownKind, "%T", ev)
	}
}

func (d *Dispatcher) recalculate(ctx context.Context, log *zap.Logger, ev events.Event, out *Outcome) {
	out.Recalculated = true
	cart, err := d.totals.Recalculate(ctx, log, ev.AggregateID())
	if err != nil {
		out.Recalculation = err
		log.Warn("cart total recalculation failed", zap.Error(err))
		return
	}
	out.Cart = cart
}

// refreshCache keeps the snapshot cache in line with the store. Cache errors
// are logged and never fail the event.
func (d *Dispatcher) refreshCache(ctx context.Context, log *zap.Logger, ev events.Event, out Outcome) {
	if d.cache == nil {
		return
	}

	var err error
	switch {
	case ev.Kind() == events.KindCartDeleted:
		if out.Mutation == nil {
			err = d.cache.Delete(ctx, ev.AggregateID())
		}
	case out.Recalculated && out.Recalculation != nil:
		// totals in the store are stale, drop the snapshot rather than serve it
		err = d.cache.Delete(ctx, ev.AggregateID())
	case out.Cart != nil && (out.Recalculated || out.Mutation == nil):
		err = d.cache.Set(ctx, out.Cart)
	}
	if err != nil {
		log.Warn("cart cache refresh failed", zap.Error(err))
	}
}

func (d *Dispatcher) startSpan(ctx context.Context, name string, ev events.Event) (context.Context, trace.Span) {
	return d.tracer.Start(ctx, "cart."+name,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("cart.id", ev.AggregateID()),
			attribute.String("cart.event_kind", string(ev.Kind())),
		))
}
