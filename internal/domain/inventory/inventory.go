package inventory

import (
	"time"

	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errs.New(errs.ErrNotFound, "inventory: record not found")
	ErrAlreadyTracked  = errs.New(errs.ErrConflict, "inventory: item is already tracked")
	ErrInvalidQuantity = errs.New(errs.ErrValidation, "inventory: quantity must be greater than zero")
	ErrNegativeTarget  = errs.New(errs.ErrValidation, "inventory: stock level must not be negative")
	ErrInvalidKind     = errs.New(errs.ErrValidation, "inventory: change kind not allowed here")
)

type ChangeKind string

const (
	KindInitialStock     ChangeKind = "initial_stock"
	KindSaleDeduction    ChangeKind = "sale_deduction"
	KindManualAdjustment ChangeKind = "manual_adjustment"
	KindSpoilage         ChangeKind = "spoilage"
	KindCorrection       ChangeKind = "correction"
)

// IsAdjustment reports whether k may be used to set an absolute stock level.
func (k ChangeKind) IsAdjustment() bool {
	switch k {
	case KindManualAdjustment, KindSpoilage, KindCorrection:
		return true
	}
	return false
}

// Record is the stock level of one menu item in one restaurant. Quantity is
// always the running sum of the deltas of its ledger entries; Version is the
// sequence of the last entry.
type Record struct {
	RestaurantID      string
	MenuItemID        string
	Unit              string
	Quantity          decimal.Decimal
	LowStockThreshold decimal.Decimal
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Entry is one immutable ledger line.
type Entry struct {
	ID           string
	RestaurantID string
	MenuItemID   string
	Seq          int64
	Previous     decimal.Decimal
	Delta        decimal.Decimal
	Resulting    decimal.Decimal
	Kind         ChangeKind
	Actor        string
	Reason       string
	OrderID      string
	LineID       string
	Negative     bool
	CreatedAt    time.Time
}

// Change describes a quantity change to apply to a record.
type Change struct {
	Delta   decimal.Decimal
	Kind    ChangeKind
	Actor   string
	Reason  string
	OrderID string
	LineID  string
}

func NewRecord(restaurantID, menuItemID, unit string, threshold decimal.Decimal, now time.Time) (*Record, error) {
	if restaurantID == "" || menuItemID == "" {
		return nil, errs.Validation("inventory: restaurant id and menu item id are required")
	}
	if threshold.IsNegative() {
		return nil, errs.Validation("inventory: low stock threshold must not be negative")
	}
	if unit == "" {
		unit = "unit"
	}
	now = now.UTC()
	return &Record{
		RestaurantID:      restaurantID,
		MenuItemID:        menuItemID,
		Unit:              unit,
		Quantity:          decimal.Zero,
		LowStockThreshold: threshold,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Apply performs c on the record and returns the ledger entry describing it.
// A result below zero is kept as is and flagged on the entry.
func (r *Record) Apply(entryID string, c Change, now time.Time) Entry {
	now = now.UTC()
	prev := r.Quantity
	r.Quantity = prev.Add(c.Delta)
	r.Version++
	r.UpdatedAt = now
	return Entry{
		ID:           entryID,
		RestaurantID: r.RestaurantID,
		MenuItemID:   r.MenuItemID,
		Seq:          r.Version,
		Previous:     prev,
		Delta:        c.Delta,
		Resulting:    r.Quantity,
		Kind:         c.Kind,
		Actor:        c.Actor,
		Reason:       c.Reason,
		OrderID:      c.OrderID,
		LineID:       c.LineID,
		Negative:     r.Quantity.IsNegative(),
		CreatedAt:    now,
	}
}

// IsLow reports whether the record is at or below its threshold. A zero
// threshold disables the alert.
func (r *Record) IsLow() bool {
	return r.LowStockThreshold.IsPositive() && r.Quantity.LessThanOrEqual(r.LowStockThreshold)
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}
