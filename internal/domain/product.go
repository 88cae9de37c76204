package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a read-only snapshot of a catalog item as returned by the backend.
type Product struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	Description      string                 `json:"description,omitempty"`
	Category         string                 `json:"category,omitempty"`
	ImageURL         string                 `json:"image_url,omitempty"`
	Price            decimal.Decimal        `json:"price"`
	PriceMax         *decimal.Decimal       `json:"price_max,omitempty"`
	DeliveryCharge   *decimal.Decimal       `json:"delivery_charge,omitempty"`
	IsAvailable      bool                   `json:"is_available"`
	StockQuantity    int                    `json:"stock_quantity"`
	CustomProperties CustomPropertiesConfig `json:"custom_properties,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// Delivery returns the per-unit delivery charge, zero when unset.
func (p Product) Delivery() decimal.Decimal {
	if p.DeliveryCharge == nil {
		return decimal.Zero
	}
	return *p.DeliveryCharge
}

// Clone returns a copy that shares no mutable state with p.
func (p Product) Clone() Product {
	c := p
	if p.PriceMax != nil {
		v := *p.PriceMax
		c.PriceMax = &v
	}
	if p.DeliveryCharge != nil {
		v := *p.DeliveryCharge
		c.DeliveryCharge = &v
	}
	c.CustomProperties = p.CustomProperties.Clone()
	return c
}
