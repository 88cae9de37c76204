package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type PropertyType string

const (
	PropertyDropdown PropertyType = "dropdown"
	PropertyText     PropertyType = "text"
	PropertyTextarea PropertyType = "textarea"
	PropertyNumber   PropertyType = "number"
)

var ErrInvalidProperties = errors.New("invalid custom properties")

// CustomProperty is one customer-facing customization of a product. The set of
// implementations is closed: Dropdown, Text, Textarea and Number.
type CustomProperty interface {
	Base() PropertyBase
	Type() PropertyType
	isCustomProperty()
}

type PropertyBase struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

func (b PropertyBase) Base() PropertyBase { return b }

// Dropdown offers a fixed list of options. Prices maps an option label to a
// price that replaces the product's base price when that option is chosen.
type Dropdown struct {
	PropertyBase
	Options []string                   `json:"options"`
	Prices  map[string]decimal.Decimal `json:"prices,omitempty"`
}

type Text struct {
	PropertyBase
	MaxLength   int    `json:"max_length,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
}

type Textarea struct {
	PropertyBase
	MaxLength   int    `json:"max_length,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
}

type Number struct {
	PropertyBase
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

func (Dropdown) Type() PropertyType { return PropertyDropdown }
func (Text) Type() PropertyType     { return PropertyText }
func (Textarea) Type() PropertyType { return PropertyTextarea }
func (Number) Type() PropertyType   { return PropertyNumber }

func (Dropdown) isCustomProperty() {}
func (Text) isCustomProperty()     {}
func (Textarea) isCustomProperty() {}
func (Number) isCustomProperty()   {}

// HasOption reports whether option is one of the dropdown's labels.
func (d Dropdown) HasOption(option string) bool {
	for _, o := range d.Options {
		if o == option {
			return true
		}
	}
	return false
}

// OverridePrice returns the price attached to option. Price entries whose
// label is not among Options are ignored.
func (d Dropdown) OverridePrice(option string) (decimal.Decimal, bool) {
	if !d.HasOption(option) {
		return decimal.Zero, false
	}
	price, ok := d.Prices[option]
	return price, ok
}

// OverridePrices lists the usable override prices in option order.
func (d Dropdown) OverridePrices() []decimal.Decimal {
	var prices []decimal.Decimal
	for _, o := range d.Options {
		if p, ok := d.Prices[o]; ok {
			prices = append(prices, p)
		}
	}
	return prices
}

// CustomPropertiesConfig is the ordered list of customizations of a product.
type CustomPropertiesConfig []CustomProperty

func (c CustomPropertiesConfig) Clone() CustomPropertiesConfig {
	if c == nil {
		return nil
	}
	out := make(CustomPropertiesConfig, len(c))
	for i, p := range c {
		if d, ok := p.(Dropdown); ok {
			d.Options = append([]string(nil), d.Options...)
			if d.Prices != nil {
				prices := make(map[string]decimal.Decimal, len(d.Prices))
				for k, v := range d.Prices {
					prices[k] = v
				}
				d.Prices = prices
			}
			p = d
		}
		out[i] = p
	}
	return out
}

// Dropdowns returns the dropdown properties in definition order.
func (c CustomPropertiesConfig) Dropdowns() []Dropdown {
	var out []Dropdown
	for _, p := range c {
		if d, ok := p.(Dropdown); ok {
			out = append(out, d)
		}
	}
	return out
}

// Validate rejects definitions the storefront cannot price unambiguously.
func (c CustomPropertiesConfig) Validate() error {
	ids := make(map[string]struct{}, len(c))
	for i, p := range c {
		if p == nil {
			return fmt.Errorf("%w: property %d is empty", ErrInvalidProperties, i)
		}
		base := p.Base()
		if base.ID == "" {
			return fmt.Errorf("%w: property %d has no id", ErrInvalidProperties, i)
		}
		if _, dup := ids[base.ID]; dup {
			return fmt.Errorf("%w: duplicate property id %q", ErrInvalidProperties, base.ID)
		}
		ids[base.ID] = struct{}{}

		switch v := p.(type) {
		case Dropdown:
			if err := validateDropdown(v); err != nil {
				return err
			}
		case Number:
			if v.Min != nil && v.Max != nil && *v.Min > *v.Max {
				return fmt.Errorf("%w: %q min is greater than max", ErrInvalidProperties, base.ID)
			}
		case Text, Textarea:
		default:
			return fmt.Errorf("%w: unsupported property type %T", ErrInvalidProperties, p)
		}
	}
	return nil
}

func validateDropdown(d Dropdown) error {
	if len(d.Options) == 0 {
		return fmt.Errorf("%w: dropdown %q has no options", ErrInvalidProperties, d.ID)
	}
	seen := make(map[string]struct{}, len(d.Options))
	for _, o := range d.Options {
		if _, dup := seen[o]; dup {
			return fmt.Errorf("%w: dropdown %q repeats option %q", ErrInvalidProperties, d.ID, o)
		}
		seen[o] = struct{}{}
	}
	for label, price := range d.Prices {
		if _, ok := seen[label]; !ok {
			return fmt.Errorf("%w: dropdown %q prices unknown option %q", ErrInvalidProperties, d.ID, label)
		}
		if price.IsNegative() {
			return fmt.Errorf("%w: dropdown %q has a negative price for %q", ErrInvalidProperties, d.ID, label)
		}
	}
	return nil
}

func (c CustomPropertiesConfig) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(c))
	for _, p := range c {
		raw, err := marshalProperty(p)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

func marshalProperty(p CustomProperty) ([]byte, error) {
	switch v := p.(type) {
	case Dropdown:
		return json.Marshal(struct {
			Type PropertyType `json:"type"`
			Dropdown
		}{PropertyDropdown, v})
	case Text:
		return json.Marshal(struct {
			Type PropertyType `json:"type"`
			Text
		}{PropertyText, v})
	case Textarea:
		return json.Marshal(struct {
			Type PropertyType `json:"type"`
			Textarea
		}{PropertyTextarea, v})
	case Number:
		return json.Marshal(struct {
			Type PropertyType `json:"type"`
			Number
		}{PropertyNumber, v})
	default:
		return nil, fmt.Errorf("%w: unsupported property type %T", ErrInvalidProperties, p)
	}
}

// UnmarshalJSON decodes a tagged list. Entries with an unknown type are
// dropped so that older clients keep working against newer catalogs.
func (c *CustomPropertiesConfig) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProperties, err)
	}
	if raws == nil {
		*c = nil
		return nil
	}

	out := make(CustomPropertiesConfig, 0, len(raws))
	for _, raw := range raws {
		var head struct {
			Type PropertyType `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidProperties, err)
		}

		var (
			p   CustomProperty
			err error
		)
		switch head.Type {
		case PropertyDropdown:
			var v Dropdown
			err = json.Unmarshal(raw, &v)
			p = v
		case PropertyText:
			var v Text
			err = json.Unmarshal(raw, &v)
			p = v
		case PropertyTextarea:
			var v Textarea
			err = json.Unmarshal(raw, &v)
			p = v
		case PropertyNumber:
			var v Number
			err = json.Unmarshal(raw, &v)
			p = v
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidProperties, head.Type, err)
		}
		out = append(out, p)
	}
	*c = out
	return nil
}
