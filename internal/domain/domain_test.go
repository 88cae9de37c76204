package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sizeDropdown() Dropdown {
	return Dropdown{
		PropertyBase: PropertyBase{ID: "size", Label: "Size", Required: true},
		Options:      []string{"Small", "Medium", "Large"},
		Prices: map[string]decimal.Decimal{
			"Small":  decimal.RequireFromString("24.00"),
			"Medium": decimal.RequireFromString("28.00"),
			"Large":  decimal.RequireFromString("32.00"),
		},
	}
}

func TestCustomPropertiesConfig_JSONRoundTrip(t *testing.T) {
	minLen := 1.0
	cfg := CustomPropertiesConfig{
		sizeDropdown(),
		Text{PropertyBase: PropertyBase{ID: "name", Label: "Name to knit"}, MaxLength: 20},
		Textarea{PropertyBase: PropertyBase{ID: "notes", Label: "Notes"}},
		Number{PropertyBase: PropertyBase{ID: "length", Label: "Length (cm)"}, Min: &minLen},
	}

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"dropdown"`)
	assert.Contains(t, string(data), `"type":"number"`)

	var decoded CustomPropertiesConfig
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 4)

	d, ok := decoded[0].(Dropdown)
	require.True(t, ok)
	assert.Equal(t, "size", d.ID)
	assert.Equal(t, []string{"Small", "Medium", "Large"}, d.Options)
	price, ok := d.OverridePrice("Large")
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("32")))

	assert.Equal(t, PropertyText, decoded[1].Type())
	assert.Equal(t, PropertyTextarea, decoded[2].Type())
	n, ok := decoded[3].(Number)
	require.True(t, ok)
	require.NotNil(t, n.Min)
	assert.Equal(t, 1.0, *n.Min)
}

func TestCustomPropertiesConfig_UnknownTypeDropped(t *testing.T) {
	var cfg CustomPropertiesConfig
	err := json.Unmarshal([]byte(`[{"type":"colour","id":"c"},{"type":"text","id":"t","label":"T"}]`), &cfg)
	require.NoError(t, err)
	require.Len(t, cfg, 1)
	assert.Equal(t, "t", cfg[0].Base().ID)
}

func TestCustomPropertiesConfig_NotAList(t *testing.T) {
	var cfg CustomPropertiesConfig
	err := json.Unmarshal([]byte(`{"type":"text"}`), &cfg)
	assert.ErrorIs(t, err, ErrInvalidProperties)
}

func TestDropdown_OrphanedPriceIgnored(t *testing.T) {
	d := sizeDropdown()
	d.Prices["XL"] = decimal.RequireFromString("40.00")

	_, ok := d.OverridePrice("XL")
	assert.False(t, ok)
	assert.Len(t, d.OverridePrices(), 3)
}

func TestCustomPropertiesConfig_Validate(t *testing.T) {
	assert.NoError(t, CustomPropertiesConfig{sizeDropdown()}.Validate())

	dup := sizeDropdown()
	dup.Options = append(dup.Options, "Small")
	assert.ErrorIs(t, CustomPropertiesConfig{dup}.Validate(), ErrInvalidProperties)

	orphan := sizeDropdown()
	orphan.Prices["XL"] = decimal.NewFromInt(1)
	assert.ErrorIs(t, CustomPropertiesConfig{orphan}.Validate(), ErrInvalidProperties)

	sameID := CustomPropertiesConfig{sizeDropdown(), Text{PropertyBase: PropertyBase{ID: "size"}}}
	assert.ErrorIs(t, sameID.Validate(), ErrInvalidProperties)

	lo, hi := 5.0, 1.0
	badRange := CustomPropertiesConfig{Number{PropertyBase: PropertyBase{ID: "n"}, Min: &lo, Max: &hi}}
	assert.ErrorIs(t, badRange.Validate(), ErrInvalidProperties)
}

func TestSelections_Equivalent(t *testing.T) {
	a := Selections{{PropertyID: "size", Value: "Large"}, {PropertyID: "colour", Value: "Red"}}
	b := Selections{{PropertyID: "colour", Value: "Red"}, {PropertyID: "size", Value: "Large"}}
	c := Selections{{PropertyID: "size", Value: "Small"}, {PropertyID: "colour", Value: "Red"}}

	assert.True(t, a.Equivalent(b))
	assert.False(t, a.Equivalent(c))
	assert.False(t, a.Equivalent(nil))
	assert.True(t, Selections(nil).Equivalent(Selections{}))
}

func TestProduct_CloneIsIndependent(t *testing.T) {
	charge := decimal.RequireFromString("3.50")
	p := Product{ID: "p1", Price: decimal.NewFromInt(20), DeliveryCharge: &charge,
		CustomProperties: CustomPropertiesConfig{sizeDropdown()}}

	c := p.Clone()
	*c.DeliveryCharge = decimal.NewFromInt(99)
	c.CustomProperties[0].(Dropdown).Prices["Small"] = decimal.NewFromInt(1)

	assert.True(t, p.Delivery().Equal(decimal.RequireFromString("3.50")))
	small, _ := p.CustomProperties[0].(Dropdown).OverridePrice("Small")
	assert.True(t, small.Equal(decimal.NewFromInt(24)))
}

func TestProduct_DeliveryDefaultsToZero(t *testing.T) {
	assert.True(t, Product{}.Delivery().IsZero())
}

func TestCustomPropertiesConfig_CheckSelections(t *testing.T) {
	lo, hi := 1.0, 10.0
	cfg := CustomPropertiesConfig{
		sizeDropdown(),
		Text{PropertyBase: PropertyBase{ID: "name", Label: "Name"}, MaxLength: 5},
		Number{PropertyBase: PropertyBase{ID: "count", Label: "Count"}, Min: &lo, Max: &hi},
	}

	tests := []struct {
		name    string
		sel     Selections
		wantErr bool
	}{
		{"required only", Selections{{PropertyID: "size", Value: "Small"}}, false},
		{"all answered", Selections{
			{PropertyID: "size", Value: "Large"},
			{PropertyID: "name", Value: "Ada"},
			{PropertyID: "count", Value: "2.5"},
		}, false},
		{"missing required", Selections{{PropertyID: "name", Value: "Ada"}}, true},
		{"unknown option", Selections{{PropertyID: "size", Value: "Huge"}}, true},
		{"unknown property", Selections{{PropertyID: "size", Value: "Small"}, {PropertyID: "colour", Value: "red"}}, true},
		{"answered twice", Selections{{PropertyID: "size", Value: "Small"}, {PropertyID: "size", Value: "Large"}}, true},
		{"text too long", Selections{{PropertyID: "size", Value: "Small"}, {PropertyID: "name", Value: "Adelaide"}}, true},
		{"not a number", Selections{{PropertyID: "size", Value: "Small"}, {PropertyID: "count", Value: "many"}}, true},
		{"out of range", Selections{{PropertyID: "size", Value: "Small"}, {PropertyID: "count", Value: "11"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cfg.CheckSelections(tt.sel)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSelection)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
