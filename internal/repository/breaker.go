package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/happydevs-studio/wool-witch/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type BreakerSettings struct {
	Name string
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests is how many trial requests are let through while half open.
	HalfOpenRequests uint32
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:                "storefront-backend",
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    1,
	}
}

// Breaker wraps a Repository with a circuit breaker. Not-found results and
// deliberate rejections are answers from a healthy backend, so they do not
// count towards tripping it.
type Breaker struct {
	next Repository
	cb   *gobreaker.CircuitBreaker[any]
}

var _ Repository = (*Breaker)(nil)

func NewBreaker(next Repository, s BreakerSettings, log *zap.Logger) *Breaker {
	if log == nil {
		log = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.HalfOpenRequests,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("backend circuit breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrProductNotFound) ||
				errors.Is(err, ErrOrderNotFound) ||
				errors.Is(err, ErrDuplicateProduct) ||
				IsRejection(err)
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (b *Breaker) ListProducts(ctx context.Context, f Filter) ([]domain.Product, error) {
	return execute(b, func() ([]domain.Product, error) { return b.next.ListProducts(ctx, f) })
}

func (b *Breaker) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return execute(b, func() (*domain.Product, error) { return b.next.GetProduct(ctx, id) })
}

func (b *Breaker) GetProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	return execute(b, func() ([]domain.Product, error) { return b.next.GetProductsByIDs(ctx, ids) })
}

func (b *Breaker) ListCategories(ctx context.Context) ([]string, error) {
	return execute(b, func() ([]string, error) { return b.next.ListCategories(ctx) })
}

func (b *Breaker) CreateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	return execute(b, func() (*domain.Product, error) { return b.next.CreateProduct(ctx, p) })
}

func (b *Breaker) UpdateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	return execute(b, func() (*domain.Product, error) { return b.next.UpdateProduct(ctx, p) })
}

func (b *Breaker) DeleteProduct(ctx context.Context, id string) error {
	_, err := execute(b, func() (struct{}, error) { return struct{}{}, b.next.DeleteProduct(ctx, id) })
	return err
}

func (b *Breaker) CreateOrder(ctx context.Context, req OrderRequest) (string, error) {
	return execute(b, func() (string, error) { return b.next.CreateOrder(ctx, req) })
}

func (b *Breaker) CreatePayment(ctx context.Context, req PaymentRequest) (string, error) {
	return execute(b, func() (string, error) { return b.next.CreatePayment(ctx, req) })
}
