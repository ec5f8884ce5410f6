package order

import (
	"context"

	"github.com/Zhima-Mochi/restaurant-pos/internal/application"
	appcoupon "github.com/Zhima-Mochi/restaurant-pos/internal/application/coupon"
	appinventory "github.com/Zhima-Mochi/restaurant-pos/internal/application/inventory"
	domcoupon "github.com/Zhima-Mochi/restaurant-pos/internal/domain/coupon"
	domorder "github.com/Zhima-Mochi/restaurant-pos/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/restaurant-pos/internal/domain/outbox"
)

// StockLedger deducts the outstanding line quantities of an order inside the
// caller's unit of work.
type StockLedger interface {
	DeductForOrder(ctx context.Context, tx application.Tx, o *domorder.Order, actor string) (*appinventory.Settlement, error)
}

// CouponRedeemer validates and records a redemption inside the caller's unit
// of work.
type CouponRedeemer interface {
	RedeemInTx(ctx context.Context, tx application.Tx, in appcoupon.RedeemInput) (*domcoupon.Detail, []domoutbox.Event, error)
}

// Refunder refunds a paid order inside the caller's unit of work.
type Refunder interface {
	RefundInTx(ctx context.Context, tx application.Tx, o *domorder.Order, actor, reason string) ([]domoutbox.Event, error)
}
