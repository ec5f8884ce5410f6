package order

import (
	"fmt"
	"slices"
	"time"

	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/coupon"
	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errs.New(errs.ErrNotFound, "order: not found")
	ErrInvalidQuantity   = errs.New(errs.ErrValidation, "order: quantity must be greater than zero")
	ErrNoLines           = errs.New(errs.ErrValidation, "order: at least one line is required")
	ErrDuplicateItem     = errs.New(errs.ErrValidation, "order: duplicate menu item in request")
	ErrClosed            = errs.New(errs.ErrConflict, "order: order is closed for changes")
	ErrCouponAlreadySet  = errs.New(errs.ErrConflict, "order: a different coupon is already applied")
	ErrTableHasOpenOrder = errs.New(errs.ErrConflict, "order: table already has an open order")
	ErrNotPaid           = errs.New(errs.ErrConflict, "order: payment status is not paid")
)

// Line is one priced item of an order. UnitPrice is captured at sale time and
// never rewritten. StockedQuantity is how much of Quantity has already been
// deducted from inventory.
type Line struct {
	ID              string
	MenuItemID      string
	Name            string
	CategoryID      string
	Quantity        int
	UnitPrice       decimal.Decimal
	StockedQuantity int
	CreatedAt       time.Time
}

func (l Line) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Outstanding is the quantity not yet deducted from inventory.
func (l Line) Outstanding() int {
	return l.Quantity - l.StockedQuantity
}

// NewLine is a line to add, already priced from the menu.
type NewLine struct {
	MenuItemID string
	Name       string
	CategoryID string
	Quantity   int
	UnitPrice  decimal.Decimal
}

// AppliedCoupon is the coupon snapshot an order keeps for recomputing its
// discount as lines change.
type AppliedCoupon struct {
	CouponID     string
	Code         string
	RedemptionID string
	Discount     coupon.Discount
}

type Order struct {
	ID             string
	Number         int64
	RestaurantID   string
	RestaurantName string
	TableID        string
	CustomerID     string
	Status         Status
	PaymentStatus  PaymentStatus
	Lines          []Line
	TotalCost      decimal.Decimal
	Discount       decimal.Decimal
	Coupon         *AppliedCoupon
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StatusChange is one append-only entry of an order's status history.
type StatusChange struct {
	OrderID   string
	From      Status
	To        Status
	Actor     string
	Reason    string
	ChangedAt time.Time
}

// FormatID builds the restaurant-scoped order identifier.
func FormatID(restaurantID string, number int64) string {
	return fmt.Sprintf("%s_%d", restaurantID, number)
}

func New(restaurantID, restaurantName, tableID, customerID string, number int64, now time.Time) (*Order, error) {
	if restaurantID == "" {
		return nil, errs.Validation("order: restaurant id is required")
	}
	if number <= 0 {
		return nil, errs.Validation("order: sequence number must be positive")
	}
	now = now.UTC()
	return &Order{
		ID:             FormatID(restaurantID, number),
		Number:         number,
		RestaurantID:   restaurantID,
		RestaurantName: restaurantName,
		TableID:        tableID,
		CustomerID:     customerID,
		Status:         StatusPending,
		PaymentStatus:  PaymentPending,
		TotalCost:      decimal.Zero,
		Discount:       decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Created is the first history entry of a new order.
func (o *Order) Created(actor string) StatusChange {
	return StatusChange{OrderID: o.ID, To: o.Status, Actor: actor, Reason: "order opened", ChangedAt: o.CreatedAt}
}

// IsOpen reports whether lines may still be added.
func (o *Order) IsOpen() bool {
	return o.PaymentStatus == PaymentPending && (o.Status == StatusPending || o.Status == StatusConfirmed)
}

// AddLines merges lines into the order. A line for a menu item already on the
// order at the same captured price increments that line; anything else is
// appended so earlier sale prices stay untouched.
func (o *Order) AddLines(lines []NewLine, now time.Time) error {
	if !o.IsOpen() {
		return ErrClosed
	}
	if err := ValidateLines(lines); err != nil {
		return err
	}
	now = now.UTC()
	for _, nl := range lines {
		idx := slices.IndexFunc(o.Lines, func(l Line) bool {
			return l.MenuItemID == nl.MenuItemID && l.UnitPrice.Equal(nl.UnitPrice)
		})
		if idx >= 0 {
			o.Lines[idx].Quantity += nl.Quantity
			continue
		}
		o.Lines = append(o.Lines, Line{
			ID:         fmt.Sprintf("%s-%d", o.ID, len(o.Lines)+1),
			MenuItemID: nl.MenuItemID,
			Name:       nl.Name,
			CategoryID: nl.CategoryID,
			Quantity:   nl.Quantity,
			UnitPrice:  nl.UnitPrice,
			CreatedAt:  now,
		})
	}
	o.Recompute()
	o.touch(now)
	return nil
}

// ValidateLines rejects empty requests, non-positive quantities and duplicate
// menu items.
func ValidateLines(lines []NewLine) error {
	if len(lines) == 0 {
		return ErrNoLines
	}
	seen := make(map[string]struct{}, len(lines))
	for i, l := range lines {
		if l.MenuItemID == "" {
			return errs.Validation("order: line %d: menu item id is required", i)
		}
		if l.Quantity <= 0 {
			return fmt.Errorf("%w: line %d (%s)", ErrInvalidQuantity, i, l.MenuItemID)
		}
		if _, dup := seen[l.MenuItemID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateItem, l.MenuItemID)
		}
		seen[l.MenuItemID] = struct{}{}
	}
	return nil
}

// ApplyCoupon attaches c. Re-applying the same coupon is a no-op.
func (o *Order) ApplyCoupon(c AppliedCoupon, now time.Time) error {
	if o.Coupon != nil {
		if o.Coupon.CouponID == c.CouponID {
			return nil
		}
		return ErrCouponAlreadySet
	}
	if !o.IsOpen() {
		return ErrClosed
	}
	o.Coupon = &c
	o.Recompute()
	o.touch(now.UTC())
	return nil
}

// Recompute derives the total from the lines and the discount from the coupon.
func (o *Order) Recompute() {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Amount())
	}
	o.TotalCost = total

	o.Discount = decimal.Zero
	if o.Coupon != nil && o.Coupon.Discount != nil {
		d := o.Coupon.Discount.Amount(o.PricedLines())
		if d.GreaterThan(total) {
			d = total
		}
		o.Discount = d
	}
}

// Payable is the amount due after the discount.
func (o *Order) Payable() decimal.Decimal {
	return o.TotalCost.Sub(o.Discount)
}

func (o *Order) PricedLines() []coupon.PricedLine {
	out := make([]coupon.PricedLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		out = append(out, coupon.PricedLine{
			MenuItemID: l.MenuItemID,
			CategoryID: l.CategoryID,
			Quantity:   l.Quantity,
			UnitPrice:  l.UnitPrice,
		})
	}
	return out
}

// Transition moves the order along the lifecycle table.
func (o *Order) Transition(to Status, actor, reason string, now time.Time) (StatusChange, error) {
	if !CanTransition(o.Status, to) {
		return StatusChange{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	now = now.UTC()
	change := StatusChange{OrderID: o.ID, From: o.Status, To: to, Actor: actor, Reason: reason, ChangedAt: now}
	o.Status = to
	o.touch(now)
	return change, nil
}

// MarkPaid settles the order.
func (o *Order) MarkPaid(actor, reason string, now time.Time) (StatusChange, error) {
	change, err := o.Transition(StatusPaymentDone, actor, reason, now)
	if err != nil {
		return StatusChange{}, err
	}
	o.PaymentStatus = PaymentPaid
	return change, nil
}

// MarkRefunded requires a paid order.
func (o *Order) MarkRefunded(actor, reason string, now time.Time) (StatusChange, error) {
	if o.PaymentStatus != PaymentPaid {
		return StatusChange{}, ErrNotPaid
	}
	change, err := o.Transition(StatusRefunded, actor, reason, now)
	if err != nil {
		return StatusChange{}, err
	}
	o.PaymentStatus = PaymentRefunded
	return change, nil
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Lines = slices.Clone(o.Lines)
	if o.Coupon != nil {
		c := *o.Coupon
		clone.Coupon = &c
	}
	return &clone
}

func (o *Order) touch(now time.Time) {
	o.UpdatedAt = now
}
