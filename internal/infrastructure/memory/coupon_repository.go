package memory

import (
	"context"
	"time"

	domain "github.com/Zhima-Mochi/restaurant-pos/internal/domain/coupon"
	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
)

type couponRepository struct{ t *tx }

func (r couponRepository) Insert(ctx context.Context, c *domain.Coupon) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	if _, err := r.GetByCode(ctx, c.Code); err == nil {
		return domain.ErrDuplicateCode
	}
	r.t.coupons[c.Code] = c.Clone()
	return nil
}

func (r couponRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	_ = ctx
	if c, ok := r.t.coupons[code]; ok {
		return c.Clone(), nil
	}
	c, ok := r.t.s.coupons[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c.Clone(), nil
}

func (r couponRepository) all(couponID string) []domain.Redemption {
	committed := r.t.s.redemptions[couponID]
	staged := r.t.redemptions[couponID]
	out := make([]domain.Redemption, 0, len(committed)+len(staged))
	out = append(out, committed...)
	return append(out, staged...)
}

func (r couponRepository) CountRedemptions(ctx context.Context, couponID, userID string) (domain.Usage, error) {
	_ = ctx
	var u domain.Usage
	for _, red := range r.all(couponID) {
		u.Total++
		if userID != "" && red.UserID == userID {
			u.ByUser++
		}
	}
	return u, nil
}

func (r couponRepository) FindRedemptionForOrder(ctx context.Context, couponID, orderID string) (*domain.Redemption, error) {
	_ = ctx
	for _, red := range r.all(couponID) {
		if red.OrderID == orderID {
			return &red, nil
		}
	}
	return nil, nil
}

func (r couponRepository) FindRedemptionForUserDay(ctx context.Context, couponID, userID string, day time.Time) (*domain.Redemption, error) {
	_ = ctx
	day = domain.Day(day)
	for _, red := range r.all(couponID) {
		if red.OrderID == "" && red.UserID == userID && domain.Day(red.RedeemedAt).Equal(day) {
			return &red, nil
		}
	}
	return nil, nil
}

func (r couponRepository) InsertRedemption(ctx context.Context, red domain.Redemption) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	if red.OrderID != "" {
		if prior, _ := r.FindRedemptionForOrder(ctx, red.CouponID, red.OrderID); prior != nil {
			return errs.Conflict("coupon repository: coupon %s already redeemed for order %s", red.CouponID, red.OrderID)
		}
	}
	r.t.redemptions[red.CouponID] = append(r.t.redemptions[red.CouponID], red)
	return nil
}
