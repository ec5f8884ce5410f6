package coupon

import (
	"context"
	"time"
)

// Repository is bound to one unit of work. GetByCode locks the coupon for the
// rest of a read-write unit of work so counting and inserting redemptions are
// atomic per coupon. The Find methods return nil and no error when nothing
// matches.
type Repository interface {
	Insert(ctx context.Context, c *Coupon) error
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	CountRedemptions(ctx context.Context, couponID, userID string) (Usage, error)
	FindRedemptionForOrder(ctx context.Context, couponID, orderID string) (*Redemption, error)
	// FindRedemptionForUserDay only matches redemptions without an order id.
	FindRedemptionForUserDay(ctx context.Context, couponID, userID string, day time.Time) (*Redemption, error)
	InsertRedemption(ctx context.Context, r Redemption) error
}
