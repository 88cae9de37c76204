// Package pricing derives unit prices, price ranges and cart totals. Every
// function is pure and tolerates partially hydrated products: missing optional
// fields fall back to the base price or zero.
package pricing

import (
	"github.com/happydevs-studio/wool-witch/internal/domain"
	"github.com/shopspring/decimal"
)

// Tolerance is the largest difference accepted between two totals that are
// meant to be equal, matching the check applied at order creation.
var Tolerance = decimal.New(1, -2)

type Range struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

type Breakdown struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	DeliveryTotal decimal.Decimal `json:"delivery_total"`
	Total         decimal.Decimal `json:"total"`
	ItemCount     int             `json:"item_count"`
}

// EffectivePrice is the unit price of a cart line.
func EffectivePrice(line domain.LineItem) decimal.Decimal {
	return UnitPrice(line.Product, line.Selections)
}

// UnitPrice walks the product's dropdown properties in definition order and
// returns the override price of the first one whose selected option carries a
// price. Later dropdowns are not consulted once one matches, even if their
// override would be higher or lower. Without a match the base price applies.
func UnitPrice(p domain.Product, selections domain.Selections) decimal.Decimal {
	if len(selections) == 0 {
		return p.Price
	}
	for _, d := range p.CustomProperties.Dropdowns() {
		chosen, ok := selections.Value(d.ID)
		if !ok {
			continue
		}
		if price, ok := d.OverridePrice(chosen); ok {
			return price
		}
	}
	return p.Price
}

// PriceRange is the display range for a product. Once any dropdown defines an
// override price the range spans only the override prices, and base/baseMax
// are ignored entirely.
func PriceRange(cfg domain.CustomPropertiesConfig, base decimal.Decimal, baseMax *decimal.Decimal) Range {
	var overrides []decimal.Decimal
	for _, d := range cfg.Dropdowns() {
		overrides = append(overrides, d.OverridePrices()...)
	}
	if len(overrides) == 0 {
		r := Range{Min: base, Max: base}
		if baseMax != nil {
			r.Max = *baseMax
		}
		return r
	}
	return Range{Min: decimal.Min(overrides[0], overrides[1:]...), Max: decimal.Max(overrides[0], overrides[1:]...)}
}

// ProductRange is PriceRange applied to a product's own fields.
func ProductRange(p domain.Product) Range {
	return PriceRange(p.CustomProperties, p.Price, p.PriceMax)
}

func LineTotal(line domain.LineItem) decimal.Decimal {
	return EffectivePrice(line).Mul(decimal.NewFromInt(int64(line.Quantity)))
}

func Subtotal(lines []domain.LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(LineTotal(l))
	}
	return sum
}

func DeliveryTotal(lines []domain.LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Product.Delivery().Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

func Total(lines []domain.LineItem) decimal.Decimal {
	return Subtotal(lines).Add(DeliveryTotal(lines))
}

func ItemCount(lines []domain.LineItem) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

func Calculate(lines []domain.LineItem) Breakdown {
	sub := Subtotal(lines)
	del := DeliveryTotal(lines)
	return Breakdown{
		Subtotal:      sub,
		DeliveryTotal: del,
		Total:         sub.Add(del),
		ItemCount:     ItemCount(lines),
	}
}

// WithinTolerance reports whether a and b differ by at most Tolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// Display rounds to cents. Only call it at presentation boundaries.
func Display(d decimal.Decimal) string {
	return d.StringFixed(2)
}
