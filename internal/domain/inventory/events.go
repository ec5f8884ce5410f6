package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockChangedEvent is emitted for every committed ledger entry.
type StockChangedEvent struct {
	RestaurantID string
	MenuItemID   string
	Kind         ChangeKind
	Delta        decimal.Decimal
	Resulting    decimal.Decimal
	OrderID      string
	OccurredAt   time.Time
}

func (StockChangedEvent) EventName() string { return "inventory.changed" }

func NewStockChangedEvent(e Entry) StockChangedEvent {
	return StockChangedEvent{
		RestaurantID: e.RestaurantID,
		MenuItemID:   e.MenuItemID,
		Kind:         e.Kind,
		Delta:        e.Delta,
		Resulting:    e.Resulting,
		OrderID:      e.OrderID,
		OccurredAt:   time.Now().UTC(),
	}
}

// LowStockEvent is emitted when a change leaves a record at or below its threshold.
type LowStockEvent struct {
	RestaurantID string
	MenuItemID   string
	Quantity     decimal.Decimal
	Threshold    decimal.Decimal
	OccurredAt   time.Time
}

func (LowStockEvent) EventName() string { return "inventory.low_stock" }

func NewLowStockEvent(r *Record) LowStockEvent {
	return LowStockEvent{
		RestaurantID: r.RestaurantID,
		MenuItemID:   r.MenuItemID,
		Quantity:     r.Quantity,
		Threshold:    r.LowStockThreshold,
		OccurredAt:   time.Now().UTC(),
	}
}

// NegativeStockEvent is emitted when a deduction drives a record below zero.
type NegativeStockEvent struct {
	RestaurantID string
	MenuItemID   string
	EntryID      string
	Quantity     decimal.Decimal
	OrderID      string
	OccurredAt   time.Time
}

func (NegativeStockEvent) EventName() string { return "inventory.negative_stock" }

func NewNegativeStockEvent(e Entry) NegativeStockEvent {
	return NegativeStockEvent{
		RestaurantID: e.RestaurantID,
		MenuItemID:   e.MenuItemID,
		EntryID:      e.ID,
		Quantity:     e.Resulting,
		OrderID:      e.OrderID,
		OccurredAt:   time.Now().UTC(),
	}
}
