package application

import (
	"context"

	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/coupon"
	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/inventory"
	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/order"
	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/payment"
)

// Tx exposes the repositories bound to one unit of work.
type Tx interface {
	Orders() order.Repository
	Inventory() inventory.Repository
	Coupons() coupon.Repository
	Payments() payment.Repository
}

// UnitOfWork runs a function against one atomic unit of work.
//
// Do commits when fn returns nil and rolls everything back otherwise; locks
// taken through the repositories are held until it returns. View runs fn
// read-only and takes no row locks.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// IDGenerator produces opaque unique identifiers.
type IDGenerator interface {
	NewID() string
}
