// Package menu describes the read-only menu and restaurant collaborators the
// transaction core consumes. Menu CRUD lives outside this service.
package menu

import (
	"context"

	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
	"github.com/shopspring/decimal"
)

var (
	ErrItemNotFound       = errs.New(errs.ErrNotFound, "menu: item not found")
	ErrRestaurantNotFound = errs.New(errs.ErrNotFound, "menu: restaurant not found")
)

type Item struct {
	ID           string
	RestaurantID string
	Name         string
	CategoryID   string
	Price        decimal.Decimal
	Available    bool
}

type Restaurant struct {
	ID   string
	Name string
}

// Catalog looks up menu items and restaurants by id.
type Catalog interface {
	GetMenuItem(ctx context.Context, restaurantID, itemID string) (Item, error)
	GetRestaurant(ctx context.Context, restaurantID string) (Restaurant, error)
}
