package coupon

import "time"

// CouponRedeemedEvent is emitted after a new redemption is committed.
type CouponRedeemedEvent struct {
	CouponID     string
	Code         string
	RedemptionID string
	UserID       string
	OrderID      string
	RestaurantID string
	OccurredAt   time.Time
}

func (CouponRedeemedEvent) EventName() string { return "coupon.redeemed" }

func NewCouponRedeemedEvent(d Detail, r Redemption) CouponRedeemedEvent {
	return CouponRedeemedEvent{
		CouponID:     d.CouponID,
		Code:         d.Code,
		RedemptionID: r.ID,
		UserID:       r.UserID,
		OrderID:      r.OrderID,
		RestaurantID: r.RestaurantID,
		OccurredAt:   time.Now().UTC(),
	}
}
