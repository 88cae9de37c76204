package domain

import (
	"sort"
	"time"
)

// Selection is the value a customer chose for one custom property.
type Selection struct {
	PropertyID string `json:"property_id"`
	Value      string `json:"value"`
}

type Selections []Selection

// Value returns the chosen value for propertyID.
func (s Selections) Value(propertyID string) (string, bool) {
	for _, sel := range s {
		if sel.PropertyID == propertyID {
			return sel.Value, true
		}
	}
	return "", false
}

// Equivalent compares two selection sets ignoring order. Nil and empty sets
// are equivalent.
func (s Selections) Equivalent(other Selections) bool {
	if len(s) != len(other) {
		return false
	}
	a, b := s.sorted(), other.sorted()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s Selections) sorted() Selections {
	out := append(Selections(nil), s...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].PropertyID != out[j].PropertyID {
			return out[i].PropertyID < out[j].PropertyID
		}
		return out[i].Value < out[j].Value
	})
	return out
}

func (s Selections) Clone() Selections {
	if len(s) == 0 {
		return nil
	}
	return append(Selections(nil), s...)
}

// LineItem is one cart entry. ID is generated locally so the same product can
// appear on several lines with different selections.
type LineItem struct {
	ID         string     `json:"id"`
	Product    Product    `json:"product"`
	Quantity   int        `json:"quantity"`
	Selections Selections `json:"selections,omitempty"`
	AddedAt    time.Time  `json:"added_at"`
}

func (l LineItem) Clone() LineItem {
	c := l
	c.Product = l.Product.Clone()
	c.Selections = l.Selections.Clone()
	return c
}
