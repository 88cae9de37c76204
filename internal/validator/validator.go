// Package validator reconciles cart lines with the current product records.
package validator

import (
	"context"
	"fmt"

	"github.com/happydevs-studio/wool-witch/internal/domain"
	"github.com/happydevs-studio/wool-witch/internal/pricing"
)

type Reason string

const (
	ReasonNotFound    Reason = "not_found"
	ReasonUnavailable Reason = "unavailable"
	// ReasonChanged means the line's unit price or delivery charge no longer
	// matches the product; the backend would reject the order.
	ReasonChanged Reason = "changed"
)

// ProductSource resolves product ids. Ids that no longer exist are absent
// from the result rather than reported as errors.
type ProductSource interface {
	ProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
}

type InvalidItem struct {
	Line   domain.LineItem `json:"line"`
	Reason Reason          `json:"reason"`
	// Current is the product as it is now, set for ReasonChanged.
	Current *domain.Product `json:"current,omitempty"`
}

type Result struct {
	Valid        bool          `json:"valid"`
	InvalidItems []InvalidItem `json:"invalid_items"`
	Errors       []string      `json:"errors"`
}

type Validator struct {
	products ProductSource
}

func New(products ProductSource) *Validator {
	return &Validator{products: products}
}

// Validate looks up every distinct product referenced by lines and reports
// all lines whose product is gone, unavailable or priced differently from the
// line's snapshot. It returns an error only when the lookup itself fails.
func (v *Validator) Validate(ctx context.Context, lines []domain.LineItem) (Result, error) {
	res := Result{Valid: true, InvalidItems: []InvalidItem{}, Errors: []string{}}
	if len(lines) == 0 {
		return res, nil
	}

	ids := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.Product.ID]; ok {
			continue
		}
		seen[l.Product.ID] = struct{}{}
		ids = append(ids, l.Product.ID)
	}

	found, err := v.products.ProductsByIDs(ctx, ids)
	if err != nil {
		return Result{}, fmt.Errorf("fetch products for validation: %w", err)
	}
	current := make(map[string]domain.Product, len(found))
	for _, p := range found {
		current[p.ID] = p
	}

	for _, l := range lines {
		p, ok := current[l.Product.ID]
		switch {
		case !ok:
			res.InvalidItems = append(res.InvalidItems, InvalidItem{Line: l, Reason: ReasonNotFound})
			res.Errors = append(res.Errors, fmt.Sprintf("%s is no longer available", l.Product.Name))
		case !p.IsAvailable:
			res.InvalidItems = append(res.InvalidItems, InvalidItem{Line: l, Reason: ReasonUnavailable})
			res.Errors = append(res.Errors, fmt.Sprintf("%s is currently unavailable", p.Name))
		case priceChanged(l, p):
			cur := p.Clone()
			res.InvalidItems = append(res.InvalidItems, InvalidItem{Line: l, Reason: ReasonChanged, Current: &cur})
			res.Errors = append(res.Errors, fmt.Sprintf("the price of %s changed", p.Name))
		}
	}
	res.Valid = len(res.InvalidItems) == 0
	return res, nil
}

func priceChanged(l domain.LineItem, current domain.Product) bool {
	return !pricing.WithinTolerance(pricing.EffectivePrice(l), pricing.UnitPrice(current, l.Selections)) ||
		!pricing.WithinTolerance(l.Product.Delivery(), current.Delivery())
}

// Reconciled is a cart after cleanup.
type Reconciled struct {
	Lines []domain.LineItem
	// Removed counts lines dropped because their product is gone or
	// unavailable.
	Removed int
	// Refreshed counts lines whose product snapshot was replaced because the
	// price changed.
	Refreshed int
}

// Reconcile drops lines whose product is gone or unavailable and swaps in
// the current product on lines whose price changed. The input slice is not
// modified; committing the result is up to the caller.
func (v *Validator) Reconcile(ctx context.Context, lines []domain.LineItem) (Reconciled, error) {
	res, err := v.Validate(ctx, lines)
	if err != nil {
		return Reconciled{}, err
	}

	dropped := make(map[string]struct{}, len(res.InvalidItems))
	refreshed := make(map[string]domain.Product, len(res.InvalidItems))
	for _, it := range res.InvalidItems {
		if it.Reason == ReasonChanged {
			refreshed[it.Line.ID] = *it.Current
			continue
		}
		dropped[it.Line.ID] = struct{}{}
	}

	out := Reconciled{Lines: make([]domain.LineItem, 0, len(lines))}
	for _, l := range lines {
		if _, bad := dropped[l.ID]; bad {
			out.Removed++
			continue
		}
		l = l.Clone()
		if p, ok := refreshed[l.ID]; ok {
			l.Product = p.Clone()
			out.Refreshed++
		}
		out.Lines = append(out.Lines, l)
	}
	return out, nil
}

// Cleanup returns lines without the ones whose product is gone or
// unavailable, and how many were dropped. Lines whose price changed are kept
// with the current product.
func (v *Validator) Cleanup(ctx context.Context, lines []domain.LineItem) ([]domain.LineItem, int, error) {
	rec, err := v.Reconcile(ctx, lines)
	if err != nil {
		return nil, 0, err
	}
	return rec.Lines, rec.Removed, nil
}
