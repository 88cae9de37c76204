package service

import (
	"context"

	"github.com/happydevs-studio/wool-witch/internal/domain"
	"github.com/happydevs-studio/wool-witch/internal/pricing"
	"github.com/happydevs-studio/wool-witch/internal/publisher"
	"go.uber.org/zap"
)

// publish announces the order. The order already exists, so a broker
// failure is only logged.
func (c *Checkout) publish(ctx context.Context, log *zap.Logger, orderID string, lines []domain.LineItem, totals pricing.Breakdown) {
	event := publisher.OrderPlaced{
		OrderID:  orderID,
		Total:    totals.Total,
		Items:    make([]publisher.OrderPlacedItem, 0, len(lines)),
		PlacedAt: c.now().UTC(),
	}
	for _, l := range lines {
		event.Items = append(event.Items, publisher.OrderPlacedItem{
			ProductID: l.Product.ID,
			Quantity:  l.Quantity,
			UnitPrice: pricing.EffectivePrice(l),
		})
	}
	if err := c.publisher.PublishOrderPlaced(ctx, event); err != nil {
		log.Warn("failed to publish order placed event", zap.Error(err))
	}
}
