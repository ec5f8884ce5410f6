package order

import "context"

// Repository is bound to one unit of work.
//
// FindOpenByTable serializes every caller working on the same (restaurant,
// table) until the unit of work ends, and Get locks the order row in a
// read-write unit of work. FindOpenByTable returns nil without an error when
// the table has no open order; Get returns ErrNotFound.
type Repository interface {
	NextNumber(ctx context.Context, restaurantID string) (int64, error)
	FindOpenByTable(ctx context.Context, restaurantID, tableID string) (*Order, error)
	Get(ctx context.Context, id string) (*Order, error)
	Insert(ctx context.Context, o *Order) error
	Update(ctx context.Context, o *Order) error
	AppendStatusChange(ctx context.Context, c StatusChange) error
	StatusHistory(ctx context.Context, orderID string) ([]StatusChange, error)
}
