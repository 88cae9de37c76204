package service

import (
	"context"

	"github.com/happydevs-studio/wool-witch/internal/cache"
	"github.com/happydevs-studio/wool-witch/internal/cart"
	"github.com/happydevs-studio/wool-witch/internal/logger"
	"github.com/happydevs-studio/wool-witch/internal/validator"
	"go.uber.org/zap"
)

// Storefront ties a shopper session together: the cart, the cache it reads
// products through, and the validator that keeps the two consistent.
type Storefront struct {
	cart      *cart.Store
	cache     *cache.Cache
	validator *validator.Validator
	log       *zap.Logger
}

func NewStorefront(c *cart.Store, ch *cache.Cache, v *validator.Validator, log *zap.Logger) *Storefront {
	if log == nil {
		log = zap.NewNop()
	}
	return &Storefront{cart: c, cache: ch, validator: v, log: log}
}

// OpenResult feeds the notices shown when a session starts.
type OpenResult struct {
	Removed   int `json:"removed"`
	Refreshed int `json:"refreshed"`
}

// Open prunes lines whose products are gone or unavailable and refreshes the
// product snapshot on lines whose price changed, reporting both counts for
// the "we removed unavailable items" notice. Lookup failures leave the cart
// untouched and report nothing.
func (s *Storefront) Open(ctx context.Context) OpenResult {
	log := logger.FromContext(ctx, s.log)

	lines := s.cart.Lines()
	if len(lines) == 0 {
		return OpenResult{}
	}
	rec, err := s.validator.Reconcile(ctx, lines)
	if err != nil {
		log.Warn("cart validation on load failed, keeping cart as is", zap.Error(err))
		return OpenResult{}
	}
	if rec.Removed == 0 && rec.Refreshed == 0 {
		return OpenResult{}
	}

	s.cart.Replace(ctx, rec.Lines)
	if rec.Removed > 0 {
		log.Info("removed unavailable items from cart", zap.Int("removed", rec.Removed))
	}
	if rec.Refreshed > 0 {
		log.Info("updated cart prices", zap.Int("refreshed", rec.Refreshed))
	}
	return OpenResult{Removed: rec.Removed, Refreshed: rec.Refreshed}
}

func (s *Storefront) Cart() *cart.Store {
	return s.cart
}

// Logout empties the cart, waits for background refreshes and then wipes
// both cache tiers.
func (s *Storefront) Logout(ctx context.Context) error {
	s.cart.Clear(ctx)
	s.cache.Close()
	if err := s.cache.Clear(ctx); err != nil {
		logger.FromContext(ctx, s.log).Warn("failed to clear cache on logout", zap.Error(err))
		return err
	}
	return nil
}
