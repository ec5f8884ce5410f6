package coupon

import (
	"slices"
	"strings"
	"time"

	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errs.New(errs.ErrNotFound, "coupon: not found")
	ErrDuplicateCode = errs.New(errs.ErrConflict, "coupon: code already issued")
)

// Policy selects the idempotence key of a redemption.
type Policy string

const (
	// PolicyPerOrder replays a redemption for the same (coupon, order).
	PolicyPerOrder Policy = "per_order"
	// PolicyPerUserDay also replays an order-less redemption for the same
	// (coupon, user, UTC day). Redemptions tied to an order still key on it.
	PolicyPerUserDay Policy = "per_user_day"
)

type Coupon struct {
	ID           string
	Code         string
	Discount     Discount
	StartsAt     time.Time
	EndsAt       time.Time
	UsageLimit   int
	PerUserLimit int
	RestaurantID string
	AllowedUsers []string
	Active       bool
	Policy       Policy
	CreatedAt    time.Time
}

// NormalizeCode is the canonical, case-insensitive form of a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks the fields required to issue c.
func (c *Coupon) Validate() error {
	if c.Code == "" {
		return errs.Validation("coupon: code is required")
	}
	if c.Discount == nil {
		return errs.Validation("coupon: discount is required")
	}
	if err := c.Discount.validate(); err != nil {
		return err
	}
	if !c.StartsAt.IsZero() && !c.EndsAt.IsZero() && c.EndsAt.Before(c.StartsAt) {
		return errs.Validation("coupon: end date is before start date")
	}
	if c.UsageLimit < 0 || c.PerUserLimit < 0 {
		return errs.Validation("coupon: usage limits must not be negative")
	}
	switch c.Policy {
	case PolicyPerOrder, PolicyPerUserDay:
	default:
		return errs.Validation("coupon: unknown redemption policy %q", c.Policy)
	}
	return nil
}

// Usage is the number of redemptions already recorded for a coupon.
type Usage struct {
	Total  int
	ByUser int
}

// Check runs the eligibility rules in order and returns the first rejection.
// Existence is the caller's concern.
func (c *Coupon) Check(userID, restaurantID string, now time.Time, usage Usage) error {
	switch {
	case !c.Active:
		return reject(ReasonInactive, c.Code)
	case !c.StartsAt.IsZero() && now.Before(c.StartsAt):
		return reject(ReasonNotStarted, c.Code)
	case !c.EndsAt.IsZero() && now.After(c.EndsAt):
		return reject(ReasonExpired, c.Code)
	case c.RestaurantID != "" && c.RestaurantID != restaurantID:
		return reject(ReasonWrongRestaurant, c.Code)
	case c.UsageLimit > 0 && usage.Total >= c.UsageLimit:
		return reject(ReasonUsageLimit, c.Code)
	case c.PerUserLimit > 0 && usage.ByUser >= c.PerUserLimit:
		return reject(ReasonUserLimit, c.Code)
	case len(c.AllowedUsers) > 0 && !slices.Contains(c.AllowedUsers, userID):
		return reject(ReasonUserNotAllowed, c.Code)
	}
	return nil
}

func (c *Coupon) Clone() *Coupon {
	if c == nil {
		return nil
	}
	clone := *c
	clone.AllowedUsers = slices.Clone(c.AllowedUsers)
	return &clone
}

type Redemption struct {
	ID           string
	CouponID     string
	UserID       string
	OrderID      string
	RestaurantID string
	RedeemedAt   time.Time
}

// Day is the UTC calendar day a redemption belongs to.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Detail is what a successful redemption hands back for price computation.
type Detail struct {
	CouponID     string
	Code         string
	Discount     Discount
	RedemptionID string
	Replayed     bool
}

func (d Detail) AmountFor(lines []PricedLine) decimal.Decimal {
	if d.Discount == nil {
		return decimal.Zero
	}
	return d.Discount.Amount(lines)
}
