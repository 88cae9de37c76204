package service

import (
	"context"

	"github.com/happydevs-studio/wool-witch/internal/domain"
	"github.com/happydevs-studio/wool-witch/internal/pricing"
	"github.com/happydevs-studio/wool-witch/internal/repository"
)

// createOrder submits the cart with the prices captured on each line. The
// backend re-prices every item and refuses the order when they disagree.
func (c *Checkout) createOrder(ctx context.Context, req CheckoutRequest, lines []domain.LineItem, totals pricing.Breakdown) (string, error) {
	items := make([]repository.OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, repository.OrderItem{
			ProductID:      l.Product.ID,
			ProductName:    l.Product.Name,
			Quantity:       l.Quantity,
			UnitPrice:      pricing.EffectivePrice(l),
			DeliveryCharge: l.Product.Delivery(),
			Selections:     l.Selections.Clone(),
		})
	}

	orderID, err := c.repo.CreateOrder(ctx, repository.OrderRequest{
		Customer:      req.Customer,
		Items:         items,
		Subtotal:      totals.Subtotal,
		DeliveryTotal: totals.DeliveryTotal,
		Total:         totals.Total,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		return "", classify("create order", err)
	}
	return orderID, nil
}
