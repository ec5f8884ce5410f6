package coupon

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/Zhima-Mochi/restaurant-pos/internal/application"
	domcoupon "github.com/Zhima-Mochi/restaurant-pos/internal/domain/coupon"
	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
	domoutbox "github.com/Zhima-Mochi/restaurant-pos/internal/domain/outbox"
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	couponService = "coupon-service"

	useCaseRedeem = "coupon.redeem"
	useCaseIssue  = "coupon.issue"
	useCaseGet    = "coupon.get"
)

// Service validates and redeems coupons. Counting and recording a redemption
// happen under the coupon lock of one unit of work, so usage limits hold under
// concurrent redemptions.
type Service struct {
	uow       application.UnitOfWork
	ids       application.IDGenerator
	publisher domoutbox.Publisher
	obs       *application.Instrumentation
	now       func() time.Time
}

func NewService(
	uow application.UnitOfWork,
	ids application.IDGenerator,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *Service {
	return &Service{
		uow:       uow,
		ids:       ids,
		publisher: publisher,
		obs:       application.NewInstrumentation(couponService, tel),
		now:       time.Now,
	}
}

type RedeemInput struct {
	Code         string
	UserID       string
	RestaurantID string
	// OrderID is optional; it keys replays under the per_order policy.
	OrderID string
}

// ValidateAndRedeem checks the code for the user and restaurant and records a
// redemption in its own unit of work. A repeated call with the same
// idempotence key returns the earlier redemption.
func (s *Service) ValidateAndRedeem(ctx context.Context, in RedeemInput) (_ *domcoupon.Detail, err error) {
	ctx, run := s.obs.Start(ctx, useCaseRedeem, "ValidateAndRedeem",
		attribute.String("coupon.code", domcoupon.NormalizeCode(in.Code)),
		attribute.String("coupon.restaurant_id", in.RestaurantID),
	)
	defer func() { run.End(err) }()

	var detail *domcoupon.Detail
	var events []domoutbox.Event
	err = s.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		var rerr error
		detail, events, rerr = s.RedeemInTx(ctx, tx, in)
		return rerr
	})
	if err != nil {
		var rej *domcoupon.Rejection
		if errors.As(err, &rej) {
			run.Fail(string(rej.Reason))
		}
		return nil, err
	}

	run.Field("coupon_id", detail.CouponID)
	run.Field("redemption_id", detail.RedemptionID)
	if detail.Replayed {
		run.SetStatus("IDEMPOTENT_REPLAY")
		run.Event("coupon.idempotent_replay", attribute.String("coupon.redemption_id", detail.RedemptionID))
		return detail, nil
	}
	run.Publish(s.publisher, events...)
	return detail, nil
}

// RedeemInTx runs the redemption inside the caller's unit of work. The
// returned events must be published after commit.
func (s *Service) RedeemInTx(ctx context.Context, tx application.Tx, in RedeemInput) (*domcoupon.Detail, []domoutbox.Event, error) {
	code := domcoupon.NormalizeCode(in.Code)
	if code == "" {
		return nil, nil, errs.Validation("coupon: code is required")
	}
	if in.UserID == "" {
		return nil, nil, errs.Validation("coupon: user id is required")
	}
	if in.RestaurantID == "" {
		return nil, nil, errs.Validation("coupon: restaurant id is required")
	}

	c, err := tx.Coupons().GetByCode(ctx, code)
	if errors.Is(err, domcoupon.ErrNotFound) {
		return nil, nil, domcoupon.NewRejection(domcoupon.ReasonNotFound, code)
	}
	if err != nil {
		return nil, nil, errs.Persistence("coupon: load", err)
	}
	now := s.now().UTC()

	prior, err := s.findReplay(ctx, tx, c, in, now)
	if err != nil {
		return nil, nil, errs.Persistence("coupon: find redemption", err)
	}
	if prior != nil {
		return detailOf(c, prior, true), nil, nil
	}

	usage, err := tx.Coupons().CountRedemptions(ctx, c.ID, in.UserID)
	if err != nil {
		return nil, nil, errs.Persistence("coupon: count redemptions", err)
	}
	if err := c.Check(in.UserID, in.RestaurantID, now, usage); err != nil {
		return nil, nil, err
	}

	r := domcoupon.Redemption{
		ID:           s.ids.NewID(),
		CouponID:     c.ID,
		UserID:       in.UserID,
		OrderID:      in.OrderID,
		RestaurantID: in.RestaurantID,
		RedeemedAt:   now,
	}
	if err := tx.Coupons().InsertRedemption(ctx, r); err != nil {
		return nil, nil, errs.Persistence("coupon: insert redemption", err)
	}
	d := detailOf(c, &r, false)
	return d, []domoutbox.Event{domcoupon.NewCouponRedeemedEvent(*d, r)}, nil
}

// findReplay returns the redemption a call repeats, if any. An order keeps its
// own redemption under either policy; the day key only covers order-less
// redemptions, so a second order always goes through the limit checks.
func (s *Service) findReplay(ctx context.Context, tx application.Tx, c *domcoupon.Coupon, in RedeemInput, now time.Time) (*domcoupon.Redemption, error) {
	if in.OrderID != "" {
		return tx.Coupons().FindRedemptionForOrder(ctx, c.ID, in.OrderID)
	}
	if c.Policy != domcoupon.PolicyPerUserDay {
		return nil, nil
	}
	return tx.Coupons().FindRedemptionForUserDay(ctx, c.ID, in.UserID, domcoupon.Day(now))
}

func detailOf(c *domcoupon.Coupon, r *domcoupon.Redemption, replayed bool) *domcoupon.Detail {
	return &domcoupon.Detail{
		CouponID:     c.ID,
		Code:         c.Code,
		Discount:     c.Discount,
		RedemptionID: r.ID,
		Replayed:     replayed,
	}
}

type IssueInput struct {
	Code         string
	Discount     domcoupon.Discount
	StartsAt     time.Time
	EndsAt       time.Time
	UsageLimit   int
	PerUserLimit int
	RestaurantID string
	AllowedUsers []string
	Active       bool
	Policy       domcoupon.Policy
}

func (s *Service) Issue(ctx context.Context, in IssueInput) (_ *domcoupon.Coupon, err error) {
	ctx, run := s.obs.Start(ctx, useCaseIssue, "Issue",
		attribute.String("coupon.code", domcoupon.NormalizeCode(in.Code)),
	)
	defer func() { run.End(err) }()

	policy := in.Policy
	if policy == "" {
		policy = domcoupon.PolicyPerOrder
	}
	c := &domcoupon.Coupon{
		ID:           s.ids.NewID(),
		Code:         domcoupon.NormalizeCode(in.Code),
		Discount:     in.Discount,
		StartsAt:     in.StartsAt.UTC(),
		EndsAt:       in.EndsAt.UTC(),
		UsageLimit:   in.UsageLimit,
		PerUserLimit: in.PerUserLimit,
		RestaurantID: in.RestaurantID,
		AllowedUsers: slices.Clone(in.AllowedUsers),
		Active:       in.Active,
		Policy:       policy,
		CreatedAt:    s.now().UTC(),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	err = s.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		_, gerr := tx.Coupons().GetByCode(ctx, c.Code)
		switch {
		case gerr == nil:
			return domcoupon.ErrDuplicateCode
		case !errors.Is(gerr, domcoupon.ErrNotFound):
			return errs.Persistence("coupon: load", gerr)
		}
		if ierr := tx.Coupons().Insert(ctx, c); ierr != nil {
			return errs.Persistence("coupon: insert", ierr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	run.Field("coupon_id", c.ID)
	return c.Clone(), nil
}

func (s *Service) Get(ctx context.Context, code string) (_ *domcoupon.Coupon, err error) {
	ctx, run := s.obs.Start(ctx, useCaseGet, "Get",
		attribute.String("coupon.code", domcoupon.NormalizeCode(code)),
	)
	defer func() { run.End(err) }()

	var c *domcoupon.Coupon
	err = s.uow.View(ctx, func(ctx context.Context, tx application.Tx) error {
		got, gerr := tx.Coupons().GetByCode(ctx, domcoupon.NormalizeCode(code))
		if gerr != nil {
			return errs.Persistence("coupon: load", gerr)
		}
		c = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
