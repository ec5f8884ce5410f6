package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderPlacedEvent is emitted when a new order is committed.
type OrderPlacedEvent struct {
	OrderID      string
	RestaurantID string
	TableID      string
	TotalCost    decimal.Decimal
	Lines        int
	OccurredAt   time.Time
}

func (OrderPlacedEvent) EventName() string { return "order.placed" }

func NewOrderPlacedEvent(o *Order) OrderPlacedEvent {
	return OrderPlacedEvent{
		OrderID:      o.ID,
		RestaurantID: o.RestaurantID,
		TableID:      o.TableID,
		TotalCost:    o.TotalCost,
		Lines:        len(o.Lines),
		OccurredAt:   time.Now().UTC(),
	}
}

// OrderItemsAddedEvent is emitted when lines are merged into an open table order.
type OrderItemsAddedEvent struct {
	OrderID      string
	RestaurantID string
	TableID      string
	TotalCost    decimal.Decimal
	OccurredAt   time.Time
}

func (OrderItemsAddedEvent) EventName() string { return "order.items_added" }

func NewOrderItemsAddedEvent(o *Order) OrderItemsAddedEvent {
	return OrderItemsAddedEvent{
		OrderID:      o.ID,
		RestaurantID: o.RestaurantID,
		TableID:      o.TableID,
		TotalCost:    o.TotalCost,
		OccurredAt:   time.Now().UTC(),
	}
}

// OrderStatusChangedEvent is emitted for every committed lifecycle transition.
type OrderStatusChangedEvent struct {
	OrderID      string
	RestaurantID string
	From         Status
	To           Status
	Actor        string
	OccurredAt   time.Time
}

func (OrderStatusChangedEvent) EventName() string { return "order.status_changed" }

func NewOrderStatusChangedEvent(o *Order, c StatusChange) OrderStatusChangedEvent {
	return OrderStatusChangedEvent{
		OrderID:      o.ID,
		RestaurantID: o.RestaurantID,
		From:         c.From,
		To:           c.To,
		Actor:        c.Actor,
		OccurredAt:   time.Now().UTC(),
	}
}
