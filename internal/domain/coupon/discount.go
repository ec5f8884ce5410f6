package coupon

import (
	"fmt"

	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindFixedAmount   Kind = "fixed_amount"
	KindPercentage    Kind = "percentage"
	KindFreeItem      Kind = "free_item"
	KindCategoryOffer Kind = "category_offer"
)

var hundred = decimal.NewFromInt(100)

// PricedLine is the view of an order line a discount is computed from.
type PricedLine struct {
	MenuItemID string
	CategoryID string
	Quantity   int
	UnitPrice  decimal.Decimal
}

func (l PricedLine) amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Discount is one coupon variant. Amount never exceeds the subtotal of lines.
type Discount interface {
	Kind() Kind
	Amount(lines []PricedLine) decimal.Decimal
	validate() error
}

type FixedAmount struct {
	Value decimal.Decimal
}

func (FixedAmount) Kind() Kind { return KindFixedAmount }

func (d FixedAmount) Amount(lines []PricedLine) decimal.Decimal {
	return capAt(d.Value, subtotal(lines))
}

func (d FixedAmount) validate() error {
	if !d.Value.IsPositive() {
		return errs.Validation("coupon: fixed amount must be greater than zero")
	}
	return nil
}

// Percentage takes Percent of the subtotal, optionally capped at Max.
type Percentage struct {
	Percent decimal.Decimal
	Max     decimal.Decimal
}

func (Percentage) Kind() Kind { return KindPercentage }

func (d Percentage) Amount(lines []PricedLine) decimal.Decimal {
	total := subtotal(lines)
	off := total.Mul(d.Percent).Div(hundred).Round(2)
	if d.Max.IsPositive() {
		off = capAt(off, d.Max)
	}
	return capAt(off, total)
}

func (d Percentage) validate() error {
	if !d.Percent.IsPositive() || d.Percent.GreaterThan(hundred) {
		return errs.Validation("coupon: percent must be in (0, 100]")
	}
	if d.Max.IsNegative() {
		return errs.Validation("coupon: max discount must not be negative")
	}
	return nil
}

// FreeItem makes up to Quantity units of one menu item free.
type FreeItem struct {
	MenuItemID string
	Quantity   int
}

func (FreeItem) Kind() Kind { return KindFreeItem }

func (d FreeItem) Amount(lines []PricedLine) decimal.Decimal {
	remaining := d.Quantity
	off := decimal.Zero
	for _, l := range lines {
		if remaining == 0 {
			break
		}
		if l.MenuItemID != d.MenuItemID {
			continue
		}
		n := min(remaining, l.Quantity)
		off = off.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(n))))
		remaining -= n
	}
	return off
}

func (d FreeItem) validate() error {
	if d.MenuItemID == "" {
		return errs.Validation("coupon: free item requires a menu item id")
	}
	if d.Quantity <= 0 {
		return errs.Validation("coupon: free item quantity must be greater than zero")
	}
	return nil
}

// CategoryOffer takes Percent off every line of one category.
type CategoryOffer struct {
	CategoryID string
	Percent    decimal.Decimal
}

func (CategoryOffer) Kind() Kind { return KindCategoryOffer }

func (d CategoryOffer) Amount(lines []PricedLine) decimal.Decimal {
	base := decimal.Zero
	for _, l := range lines {
		if l.CategoryID == d.CategoryID {
			base = base.Add(l.amount())
		}
	}
	return base.Mul(d.Percent).Div(hundred).Round(2)
}

func (d CategoryOffer) validate() error {
	if d.CategoryID == "" {
		return errs.Validation("coupon: category offer requires a category id")
	}
	if !d.Percent.IsPositive() || d.Percent.GreaterThan(hundred) {
		return errs.Validation("coupon: percent must be in (0, 100]")
	}
	return nil
}

// Spec is the flat, tagged encoding of a Discount used at storage and
// transport boundaries.
type Spec struct {
	Kind       Kind            `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	Percent    decimal.Decimal `json:"percent"`
	MaxAmount  decimal.Decimal `json:"max_amount"`
	MenuItemID string          `json:"menu_item_id,omitempty"`
	Quantity   int             `json:"quantity,omitempty"`
	CategoryID string          `json:"category_id,omitempty"`
}

// Decode turns the spec into its variant and validates the variant's fields.
func (s Spec) Decode() (Discount, error) {
	var d Discount
	switch s.Kind {
	case KindFixedAmount:
		d = FixedAmount{Value: s.Amount}
	case KindPercentage:
		d = Percentage{Percent: s.Percent, Max: s.MaxAmount}
	case KindFreeItem:
		d = FreeItem{MenuItemID: s.MenuItemID, Quantity: s.Quantity}
	case KindCategoryOffer:
		d = CategoryOffer{CategoryID: s.CategoryID, Percent: s.Percent}
	default:
		return nil, errs.Validation("coupon: unknown discount kind %q", s.Kind)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// SpecOf encodes d.
func SpecOf(d Discount) Spec {
	switch v := d.(type) {
	case FixedAmount:
		return Spec{Kind: KindFixedAmount, Amount: v.Value}
	case Percentage:
		return Spec{Kind: KindPercentage, Percent: v.Percent, MaxAmount: v.Max}
	case FreeItem:
		return Spec{Kind: KindFreeItem, MenuItemID: v.MenuItemID, Quantity: v.Quantity}
	case CategoryOffer:
		return Spec{Kind: KindCategoryOffer, CategoryID: v.CategoryID, Percent: v.Percent}
	default:
		panic(fmt.Sprintf("coupon: unsupported discount %T", d))
	}
}

func subtotal(lines []PricedLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.amount())
	}
	return total
}

func capAt(v, limit decimal.Decimal) decimal.Decimal {
	if v.GreaterThan(limit) {
		return limit
	}
	return v
}
