package domain

import (
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"
)

var ErrInvalidSelection = errors.New("invalid selection")

// CheckSelections verifies that s is a complete, well-formed answer to the
// product's properties: every required property is answered, no property is
// answered twice and every value fits its property.
func (c CustomPropertiesConfig) CheckSelections(s Selections) error {
	byID := make(map[string]CustomProperty, len(c))
	for _, p := range c {
		byID[p.Base().ID] = p
	}

	answered := make(map[string]struct{}, len(s))
	for _, sel := range s {
		prop, ok := byID[sel.PropertyID]
		if !ok {
			return fmt.Errorf("%w: unknown property %q", ErrInvalidSelection, sel.PropertyID)
		}
		if _, dup := answered[sel.PropertyID]; dup {
			return fmt.Errorf("%w: %q answered twice", ErrInvalidSelection, sel.PropertyID)
		}
		answered[sel.PropertyID] = struct{}{}
		if err := checkValue(prop, sel.Value); err != nil {
			return err
		}
	}

	for _, p := range c {
		b := p.Base()
		if _, ok := answered[b.ID]; b.Required && !ok {
			return fmt.Errorf("%w: %s is required", ErrInvalidSelection, b.Label)
		}
	}
	return nil
}

func checkValue(prop CustomProperty, value string) error {
	id := prop.Base().ID
	switch p := prop.(type) {
	case Dropdown:
		if !p.HasOption(value) {
			return fmt.Errorf("%w: %q is not an option of %q", ErrInvalidSelection, value, id)
		}
	case Text:
		return checkLength(id, value, p.MaxLength)
	case Textarea:
		return checkLength(id, value, p.MaxLength)
	case Number:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: %q expects a number", ErrInvalidSelection, id)
		}
		if (p.Min != nil && n < *p.Min) || (p.Max != nil && n > *p.Max) {
			return fmt.Errorf("%w: %s is out of range for %q", ErrInvalidSelection, value, id)
		}
	}
	return nil
}

func checkLength(id, value string, limit int) error {
	if limit > 0 && utf8.RuneCountInString(value) > limit {
		return fmt.Errorf("%w: %q allows at most %d characters", ErrInvalidSelection, id, limit)
	}
	return nil
}
