package inventory

import (
	"context"
)

// Repository is bound to one unit of work. Get locks the record for the rest
// of a read-write unit of work and returns ErrNotFound for untracked items.
type Repository interface {
	Get(ctx context.Context, restaurantID, menuItemID string) (*Record, error)
	Insert(ctx context.Context, r *Record) error
	Update(ctx context.Context, r *Record) error
	AppendEntry(ctx context.Context, e Entry) error
	// History returns entries newest first.
	History(ctx context.Context, restaurantID, menuItemID string, limit, offset int) ([]Entry, error)
	ListLow(ctx context.Context) ([]Record, error)
}
