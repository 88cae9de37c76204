package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/happydevs-studio/wool-witch/internal/cart"
	"github.com/happydevs-studio/wool-witch/internal/domain"
	"github.com/happydevs-studio/wool-witch/internal/logger"
	"github.com/happydevs-studio/wool-witch/internal/pricing"
	"github.com/happydevs-studio/wool-witch/internal/publisher"
	"github.com/happydevs-studio/wool-witch/internal/repository"
	"github.com/happydevs-studio/wool-witch/internal/validator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ProductInvalidator drops cached copies of products whose stock moved.
type ProductInvalidator interface {
	InvalidateProducts(ctx context.Context, ids ...string)
}

// ProviderPayment is set when the payment provider already confirmed the
// charge before the order was submitted.
type ProviderPayment struct {
	ExternalID string
	Status     repository.PaymentStatus
	Details    map[string]string
}

type CheckoutRequest struct {
	Customer      repository.Customer
	PaymentMethod repository.PaymentMethod
	Payment       *ProviderPayment
}

type CheckoutResult struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	pricing.Breakdown
}

type Checkout struct {
	cart      *cart.Store
	validator *validator.Validator
	repo      repository.Repository
	products  ProductInvalidator
	publisher publisher.Publisher
	log       *zap.Logger
	now       func() time.Time
	tracer    trace.Tracer
}

func NewCheckout(
	c *cart.Store,
	v *validator.Validator,
	repo repository.Repository,
	products ProductInvalidator,
	pub publisher.Publisher,
	log *zap.Logger,
) *Checkout {
	if log == nil {
		log = zap.NewNop()
	}
	if pub == nil {
		pub = publisher.NopPublisher{}
	}
	return &Checkout{
		cart:      c,
		validator: v,
		repo:      repo,
		products:  products,
		publisher: pub,
		log:       log,
		now:       time.Now,
		tracer:    otel.Tracer("github.com/happydevs-studio/wool-witch/internal/service"),
	}
}

// Place submits the cart as an order. Nothing is submitted unless every line
// still validates; the cart is cleared only after the order and its payment
// record exist.
func (c *Checkout) Place(ctx context.Context, req CheckoutRequest) (res *CheckoutResult, err error) {
	ctx, span := c.tracer.Start(ctx, "checkout.place")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	log := logger.FromContext(ctx, c.log)

	if !req.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: unsupported payment method %q", ErrInvalidPayment, req.PaymentMethod)
	}
	if req.Payment != nil && !req.Payment.Status.Valid() {
		return nil, fmt.Errorf("%w: unsupported payment status %q", ErrInvalidPayment, req.Payment.Status)
	}

	lines := c.cart.Lines()
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	if err := c.verifyLines(ctx, lines); err != nil {
		return nil, err
	}

	totals := pricing.Calculate(lines)
	span.SetAttributes(
		attribute.Int("checkout.item_count", totals.ItemCount),
		attribute.String("checkout.total", totals.Total.StringFixed(2)),
	)

	orderID, err := c.createOrder(ctx, req, lines, totals)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("order_id", orderID))

	paymentID, err := c.recordPayment(ctx, orderID, req, totals)
	if err != nil {
		log.Error("order created but payment record failed", zap.Error(err))
		return nil, err
	}

	c.products.InvalidateProducts(ctx, productIDs(lines)...)
	c.cart.Clear(ctx)
	c.publish(ctx, log, orderID, lines, totals)

	log.Info("order placed",
		zap.String("payment_id", paymentID),
		zap.String("total", totals.Total.StringFixed(2)),
		zap.Int("item_count", totals.ItemCount),
	)
	return &CheckoutResult{OrderID: orderID, PaymentID: paymentID, Breakdown: totals}, nil
}

// verifyLines is the strict counterpart of the load-time cleanup: invalid
// lines abort the checkout instead of being dropped.
func (c *Checkout) verifyLines(ctx context.Context, lines []domain.LineItem) error {
	result, err := c.validator.Validate(ctx, lines)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCheckoutFailed, err)
	}
	if !result.Valid {
		return &ItemsChangedError{Items: result.InvalidItems}
	}
	return nil
}

func productIDs(lines []domain.LineItem) []string {
	ids := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.Product.ID]; ok {
			continue
		}
		seen[l.Product.ID] = struct{}{}
		ids = append(ids, l.Product.ID)
	}
	return ids
}

// classify maps a backend error onto the checkout error set.
func classify(op string, err error) error {
	switch {
	case repository.IsRejection(err), errors.Is(err, repository.ErrProductNotFound):
		return fmt.Errorf("%w: %s: %w", ErrOrderRejected, op, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrCheckoutFailed, op, err)
	}
}
