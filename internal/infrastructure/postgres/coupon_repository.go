package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/restaurant-pos/internal/domain/coupon"
	"github.com/jackc/pgx/v5"
)

type couponRepository struct{ t *tx }

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (r couponRepository) Insert(ctx context.Context, c *domain.Coupon) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	discount, err := json.Marshal(domain.SpecOf(c.Discount))
	if err != nil {
		return fmt.Errorf("postgres: encode discount: %w", err)
	}
	allowed := c.AllowedUsers
	if allowed == nil {
		allowed = []string{}
	}
	_, err = r.t.q.Exec(ctx, `
		INSERT INTO coupons (id, code, discount, starts_at, ends_at, usage_limit, per_user_limit,
			restaurant_id, allowed_users, active, policy, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.Code, discount, nullTime(c.StartsAt), nullTime(c.EndsAt), c.UsageLimit, c.PerUserLimit,
		c.RestaurantID, allowed, c.Active, c.Policy, c.CreatedAt)
	if err != nil {
		err = mapError(err)
		if isConstraint(err, "coupons_code_key") {
			return domain.ErrDuplicateCode
		}
		return fmt.Errorf("postgres: insert coupon %s: %w", c.Code, err)
	}
	return nil
}

// GetByCode locks the coupon row in a read-write unit of work; counting and
// inserting redemptions happen under that lock.
func (r couponRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	var (
		c              domain.Coupon
		discount       []byte
		startsAt, ends *time.Time
	)
	err := r.t.q.QueryRow(ctx, `
		SELECT id, code, discount, starts_at, ends_at, usage_limit, per_user_limit,
			restaurant_id, allowed_users, active, policy, created_at
		FROM coupons WHERE code = $1`+r.t.forUpdate(), code).Scan(
		&c.ID, &c.Code, &discount, &startsAt, &ends, &c.UsageLimit, &c.PerUserLimit,
		&c.RestaurantID, &c.AllowedUsers, &c.Active, &c.Policy, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load coupon %s: %w", code, err)
	}
	if startsAt != nil {
		c.StartsAt = startsAt.UTC()
	}
	if ends != nil {
		c.EndsAt = ends.UTC()
	}
	var spec domain.Spec
	if err := json.Unmarshal(discount, &spec); err != nil {
		return nil, fmt.Errorf("postgres: decode discount of %s: %w", code, err)
	}
	if c.Discount, err = spec.Decode(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r couponRepository) CountRedemptions(ctx context.Context, couponID, userID string) (domain.Usage, error) {
	var u domain.Usage
	err := r.t.q.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE user_id = $2 AND $2 <> '')
		FROM coupon_redemptions WHERE coupon_id = $1`, couponID, userID).Scan(&u.Total, &u.ByUser)
	if err != nil {
		return u, fmt.Errorf("postgres: count redemptions: %w", err)
	}
	return u, nil
}

const redemptionColumns = `id, coupon_id, user_id, order_id, restaurant_id, redeemed_at`

func (r couponRepository) findOne(ctx context.Context, where string, args ...any) (*domain.Redemption, error) {
	var red domain.Redemption
	err := r.t.q.QueryRow(ctx, `SELECT `+redemptionColumns+` FROM coupon_redemptions WHERE `+where+` ORDER BY redeemed_at LIMIT 1`, args...).
		Scan(&red.ID, &red.CouponID, &red.UserID, &red.OrderID, &red.RestaurantID, &red.RedeemedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find redemption: %w", err)
	}
	return &red, nil
}

func (r couponRepository) FindRedemptionForOrder(ctx context.Context, couponID, orderID string) (*domain.Redemption, error) {
	return r.findOne(ctx, `coupon_id = $1 AND order_id = $2`, couponID, orderID)
}

func (r couponRepository) FindRedemptionForUserDay(ctx context.Context, couponID, userID string, day time.Time) (*domain.Redemption, error) {
	return r.findOne(ctx, `coupon_id = $1 AND user_id = $2 AND redeemed_day = $3 AND order_id = ''`, couponID, userID, domain.Day(day))
}

func (r couponRepository) InsertRedemption(ctx context.Context, red domain.Redemption) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	_, err := r.t.q.Exec(ctx, `
		INSERT INTO coupon_redemptions (`+redemptionColumns+`, redeemed_day)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		red.ID, red.CouponID, red.UserID, red.OrderID, red.RestaurantID, red.RedeemedAt, domain.Day(red.RedeemedAt))
	if err != nil {
		return fmt.Errorf("postgres: insert redemption: %w", mapError(err))
	}
	return nil
}
