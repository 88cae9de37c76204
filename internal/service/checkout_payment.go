package service

import (
	"context"

	"github.com/happydevs-studio/wool-witch/internal/pricing"
	"github.com/happydevs-studio/wool-witch/internal/repository"
)

func (c *Checkout) recordPayment(ctx context.Context, orderID string, req CheckoutRequest, totals pricing.Breakdown) (string, error) {
	payment := repository.PaymentRequest{
		OrderID: orderID,
		Method:  req.PaymentMethod,
		Amount:  totals.Total,
		Status:  repository.PaymentPending,
	}
	if p := req.Payment; p != nil {
		payment.ExternalPaymentID = p.ExternalID
		payment.Status = p.Status
		payment.Details = p.Details
	}

	paymentID, err := c.repo.CreatePayment(ctx, payment)
	if err != nil {
		return "", classify("record payment", err)
	}
	return paymentID, nil
}
