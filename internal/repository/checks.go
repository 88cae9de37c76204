package repository

import (
	"fmt"
	"unicode/utf8"

	"github.com/happydevs-studio/wool-witch/internal/domain"
	"github.com/happydevs-studio/wool-witch/internal/pricing"
	"github.com/shopspring/decimal"
)

const (
	MaxNameLength        = 200
	MaxDescriptionLength = 5000
	MaxEmailLength       = 320
	MaxPhoneLength       = 50
	MaxAddressLength     = 1000
	MaxQuantity          = 1000
)

// MaxAmount is the largest monetary value accepted on any field.
var MaxAmount = decimal.RequireFromString("999999.99")

func checkLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return &ConstraintError{Field: field, Reason: fmt.Sprintf("longer than %d characters", max)}
	}
	return nil
}

func checkAmount(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return &ConstraintError{Field: field, Reason: "must not be negative"}
	}
	if d.GreaterThan(MaxAmount) {
		return &ConstraintError{Field: field, Reason: "exceeds " + MaxAmount.StringFixed(2)}
	}
	return nil
}

func validateProduct(p domain.Product) error {
	if p.Name == "" {
		return &ConstraintError{Field: "name", Reason: "required"}
	}
	if err := checkLength("name", p.Name, MaxNameLength); err != nil {
		return err
	}
	if err := checkLength("description", p.Description, MaxDescriptionLength); err != nil {
		return err
	}
	if err := checkAmount("price", p.Price); err != nil {
		return err
	}
	if p.PriceMax != nil {
		if err := checkAmount("price_max", *p.PriceMax); err != nil {
			return err
		}
		if p.PriceMax.LessThan(p.Price) {
			return &ConstraintError{Field: "price_max", Reason: "lower than price"}
		}
	}
	if err := checkAmount("delivery_charge", p.Delivery()); err != nil {
		return err
	}
	if p.StockQuantity < 0 {
		return &ConstraintError{Field: "stock_quantity", Reason: "must not be negative"}
	}
	if err := p.CustomProperties.Validate(); err != nil {
		return &ConstraintError{Field: "custom_properties", Reason: err.Error()}
	}
	return nil
}

func validateCustomer(c Customer) error {
	if c.Name == "" {
		return &ConstraintError{Field: "customer.name", Reason: "required"}
	}
	if c.Email == "" {
		return &ConstraintError{Field: "customer.email", Reason: "required"}
	}
	if c.Address == "" {
		return &ConstraintError{Field: "customer.address", Reason: "required"}
	}
	for _, f := range []struct {
		field, value string
		max          int
	}{
		{"customer.name", c.Name, MaxNameLength},
		{"customer.email", c.Email, MaxEmailLength},
		{"customer.phone", c.Phone, MaxPhoneLength},
		{"customer.address", c.Address, MaxAddressLength},
	} {
		if err := checkLength(f.field, f.value, f.max); err != nil {
			return err
		}
	}
	return nil
}

// validateOrder checks a request against the current product records. Unit
// prices and delivery charges must match what the products say now, the
// stock must cover every product's total quantity, and the totals must add
// up within pricing.Tolerance.
func validateOrder(req OrderRequest, products map[string]domain.Product) error {
	if err := validateCustomer(req.Customer); err != nil {
		return err
	}
	if !req.PaymentMethod.Valid() {
		return &ConstraintError{Field: "payment_method", Reason: fmt.Sprintf("unsupported method %q", req.PaymentMethod)}
	}
	if len(req.Items) == 0 {
		return &ConstraintError{Field: "items", Reason: "order has no items"}
	}
	for field, amount := range map[string]decimal.Decimal{
		"subtotal": req.Subtotal, "delivery_total": req.DeliveryTotal, "total": req.Total,
	} {
		if err := checkAmount(field, amount); err != nil {
			return err
		}
	}

	subtotal, delivery := decimal.Zero, decimal.Zero
	wanted := make(map[string]int, len(req.Items))
	for i, item := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		if item.Quantity < 1 || item.Quantity > MaxQuantity {
			return &ConstraintError{Field: field + ".quantity", Reason: fmt.Sprintf("must be between 1 and %d", MaxQuantity)}
		}
		if err := checkAmount(field+".unit_price", item.UnitPrice); err != nil {
			return err
		}

		p, ok := products[item.ProductID]
		if !ok {
			return &ConstraintError{Field: field + ".product_id", Reason: "product does not exist"}
		}
		if !p.IsAvailable {
			return &ConstraintError{Field: field + ".product_id", Reason: "product is not available"}
		}
		wanted[item.ProductID] += item.Quantity
		if wanted[item.ProductID] > p.StockQuantity {
			return &ConstraintError{Field: field + ".quantity", Reason: fmt.Sprintf("only %d of %s in stock", p.StockQuantity, p.Name)}
		}
		if !pricing.WithinTolerance(item.UnitPrice, pricing.UnitPrice(p, item.Selections)) {
			return fmt.Errorf("%w: unit price of %s changed", ErrAmountMismatch, p.Name)
		}
		if !pricing.WithinTolerance(item.DeliveryCharge, p.Delivery()) {
			return fmt.Errorf("%w: delivery charge of %s changed", ErrAmountMismatch, p.Name)
		}

		qty := decimal.NewFromInt(int64(item.Quantity))
		subtotal = subtotal.Add(item.UnitPrice.Mul(qty))
		delivery = delivery.Add(item.DeliveryCharge.Mul(qty))
	}

	if !pricing.WithinTolerance(subtotal, req.Subtotal) {
		return fmt.Errorf("%w: subtotal %s, items sum to %s", ErrAmountMismatch, req.Subtotal, subtotal)
	}
	if !pricing.WithinTolerance(delivery, req.DeliveryTotal) {
		return fmt.Errorf("%w: delivery %s, items sum to %s", ErrAmountMismatch, req.DeliveryTotal, delivery)
	}
	if !pricing.WithinTolerance(req.Total, req.Subtotal.Add(req.DeliveryTotal)) {
		return fmt.Errorf("%w: total %s is not subtotal plus delivery", ErrAmountMismatch, req.Total)
	}
	return nil
}

func validatePayment(req PaymentRequest, orderTotal decimal.Decimal) error {
	if !req.Method.Valid() {
		return &ConstraintError{Field: "method", Reason: fmt.Sprintf("unsupported method %q", req.Method)}
	}
	if !req.Status.Valid() {
		return &ConstraintError{Field: "status", Reason: fmt.Sprintf("unsupported status %q", req.Status)}
	}
	if err := checkLength("external_payment_id", req.ExternalPaymentID, MaxNameLength); err != nil {
		return err
	}
	if err := checkAmount("amount", req.Amount); err != nil {
		return err
	}
	if !pricing.WithinTolerance(req.Amount, orderTotal) {
		return fmt.Errorf("%w: payment %s for order total %s", ErrAmountMismatch, req.Amount, orderTotal)
	}
	return nil
}
